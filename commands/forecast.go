// commands/forecast.go
package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gewnthar/civicpulse/database"
	"github.com/gewnthar/civicpulse/forecast"
	"github.com/gewnthar/civicpulse/tracker"
)

func init() {
	rootCmd.AddCommand(forecastCmd)
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Fits the weekly executive order model and appends its forecast.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cfg.Database.Enabled() {
			return fmt.Errorf("forecast needs database.dbname")
		}
		db, err := database.Open(cmd.Context(), cfg.Database, logger)
		if err != nil {
			return err
		}
		defer closeDB(db)

		warehouse := database.NewWarehouse(db, cfg.Forecast, logger)

		var tr forecast.Tracker
		if cfg.Tracker.Enabled() {
			tr = tracker.NewClient(cfg.Tracker, cfg.HTTP, logger)
		} else {
			logger.Info("tracker not configured; experiment logging disabled")
		}

		res, err := forecast.NewJob(warehouse, warehouse, tr, cfg.Forecast, cfg.Tracker.Experiment, logger).Run(cmd.Context())
		if errors.Is(err, forecast.ErrTrackingFailed) {
			fmt.Fprintf(cmd.OutOrStdout(), "%d forecasts appended for load date %s; rerunning would append duplicate rows\n",
				len(res.Forecasts), res.Forecasts[0].LoadDate.Format("2006-01-02"))
			return err
		}
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "best %s%s AIC=%.3f, %d forecasts appended\n",
			res.Best.Order, res.Best.Seasonal, res.Best.AIC, len(res.Forecasts))
		if res.Run.RunID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "tracker run %s\n", res.Run.RunID)
		}
		return nil
	},
}
