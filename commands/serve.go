// commands/serve.go
package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/gewnthar/civicpulse/handlers"
	"github.com/gewnthar/civicpulse/messaging"
)

const shutdownTimeout = 30 * time.Second

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the HTTP trigger API and listens for NATS triggers.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		db, err := openDB(ctx)
		if err != nil {
			return err
		}
		defer closeDB(db)

		orch, runs, err := newOrchestrator(db)
		if err != nil {
			return err
		}

		if cfg.NATS.URL != "" {
			conn, err := messaging.Connect(cfg.NATS, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			listener := messaging.NewListener(conn, orch, cfg.NATS, cfg.Orchestrator.RunTimeout, logger)
			if err := listener.Start(); err != nil {
				return err
			}
			defer func() {
				if err := listener.Stop(); err != nil {
					logger.Warn("failed to drain trigger subscription", "error", err)
				}
			}()
		}

		// Interfaces stay nil when the database is disabled.
		var (
			lister handlers.RunLister
			pinger handlers.Pinger
		)
		if db != nil {
			lister, pinger = runs, db
		}

		mux := http.NewServeMux()
		handlers.NewAPI(orch, lister, pinger, logger).Routes(mux)

		srv := &http.Server{
			Addr:              ":" + cfg.Server.Port,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		logger.Info("server shutdown complete")
		return nil
	},
}
