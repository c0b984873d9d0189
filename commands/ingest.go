// commands/ingest.go
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gewnthar/civicpulse/messaging"
	"github.com/gewnthar/civicpulse/services"
)

var (
	ingestViaNATS bool
	ingestBy      string
)

func init() {
	ingestCmd.Flags().BoolVar(&ingestViaNATS, "via-nats", false, "Publish a trigger to the NATS subject instead of running locally.")
	ingestCmd.Flags().StringVar(&ingestBy, "requested-by", "cli", "Requester recorded in the trigger message.")
	rootCmd.AddCommand(ingestCmd)
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [economic|executive|approval ...]",
	Short: "Runs the collectors once (all of them when none are named).",
	RunE: func(cmd *cobra.Command, args []string) error {
		if ingestViaNATS {
			return triggerRemote(cmd.Context(), args)
		}

		db, err := openDB(cmd.Context())
		if err != nil {
			return err
		}
		defer closeDB(db)

		orch, _, err := newOrchestrator(db)
		if err != nil {
			return err
		}
		report, err := orch.RunOnly(cmd.Context(), args...)
		if err != nil {
			return err
		}

		renderReport(os.Stdout, report)
		if failed := report.Failed(); len(failed) > 0 {
			return fmt.Errorf("collectors failed: %s", strings.Join(failed, ", "))
		}
		return nil
	},
}

func triggerRemote(ctx context.Context, names []string) error {
	if cfg.NATS.URL == "" {
		return fmt.Errorf("nats.url is not configured")
	}
	conn, err := messaging.Connect(cfg.NATS, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, cfg.Orchestrator.RunTimeout)
	defer cancel()

	reply, err := messaging.Trigger(ctx, conn, cfg.NATS.Subject, messaging.TriggerRequest{
		Collectors:  names,
		RequestedBy: ingestBy,
	})
	if err != nil {
		return err
	}
	if reply.Error != "" {
		return fmt.Errorf("trigger rejected: %s", reply.Error)
	}

	logger.Info("remote run finished", "run_id", reply.RunID, "failed", reply.Failed)
	if len(reply.Failed) > 0 {
		return fmt.Errorf("collectors failed: %s", strings.Join(reply.Failed, ", "))
	}
	return nil
}

func renderReport(w io.Writer, report services.Report) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("run " + report.RunID)
	t.AppendHeader(table.Row{"Collector", "Status", "Kind", "Records", "Partial", "Key / Reason"})

	for _, o := range report.Outcomes {
		detail := o.Reason
		if o.Object != nil {
			detail = o.Object.Key
		}
		t.AppendRow(table.Row{o.Collector, o.Status, o.Kind, o.Records, len(o.Partial), detail})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}
