// commands/runs.go
package commands

import (
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gewnthar/civicpulse/database"
	"github.com/gewnthar/civicpulse/models"
)

var runsLimit int

func init() {
	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "Number of ledger rows to show.")
	rootCmd.AddCommand(runsCmd)
}

var runsCmd = &cobra.Command{
	Use:   "runs [--limit n]",
	Short: "Lists recent collector outcomes from the ingestion ledger.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Enabled() {
			return fmt.Errorf("runs needs database.dbname")
		}
		db, err := database.Open(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer closeDB(db)

		runs, err := database.NewRunStore(db, logger).Recent(cmd.Context(), runsLimit)
		if err != nil {
			return err
		}
		renderRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

func renderRuns(w io.Writer, runs []models.IngestionRun) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Run", "Collector", "Status", "Kind", "Records", "Started", "Took", "Key / Reason"})

	for _, r := range runs {
		took := ""
		if r.FinishedAt != nil {
			took = r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		detail := r.ObjectKey
		if detail == "" {
			detail = r.Reason
		}
		t.AppendRow(table.Row{r.RunID, r.Collector, r.Status, r.FailureKind, r.Records,
			r.StartedAt.UTC().Format(time.RFC3339), took, detail})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
