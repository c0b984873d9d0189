// commands/migrate.go
package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gewnthar/civicpulse/database"
)

var migrateSteps int

func init() {
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "Number of migrations (positive=up, negative=down, 0=all up).")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [--steps n]",
	Short: "Applies the embedded database migrations.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Enabled() {
			return fmt.Errorf("migrate needs database.dbname")
		}
		version, err := database.Migrate(cfg.Database, migrateSteps)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d\n", version)
		return nil
	},
}
