// handlers/ingest_handler.go
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gewnthar/civicpulse/metrics"
	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/services"
)

// Runner runs a subset of collectors. *services.Orchestrator implements it.
type Runner interface {
	RunOnly(ctx context.Context, names ...string) (services.Report, error)
}

// RunLister reads the ingestion ledger. *database.RunStore implements it.
type RunLister interface {
	Recent(ctx context.Context, limit int) ([]models.IngestionRun, error)
}

// Pinger checks a dependency. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// API serves the ingestion trigger, ledger and health endpoints.
type API struct {
	runner Runner
	runs   RunLister // nil without a database
	db     Pinger    // nil without a database
	logger *slog.Logger
}

func NewAPI(runner Runner, runs RunLister, db Pinger, logger *slog.Logger) *API {
	return &API{runner: runner, runs: runs, db: db, logger: logger.With("component", "api")}
}

// Routes registers every endpoint on mux.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest/{target}", a.Ingest)
	mux.HandleFunc("GET /api/runs", a.Runs)
	mux.HandleFunc("GET /api/health", a.Health)
	mux.Handle("GET /metrics", promhttp.Handler())
}

// Ingest runs the collectors named by the {target} path value: "all" or
// economic, executive, approval. Responds 200 when every collector
// succeeded and 502 with the report otherwise.
func (a *API) Ingest(w http.ResponseWriter, r *http.Request) {
	metrics.TriggersTotal.WithLabelValues("http").Inc()

	target := r.PathValue("target")
	var names []string
	if target != "all" {
		names = []string{target}
	}

	report, err := a.runner.RunOnly(r.Context(), names...)
	if err != nil {
		if errors.Is(err, services.ErrUnknownCollector) {
			respondWithError(w, a.logger, http.StatusBadRequest,
				"Invalid target '"+target+"'. Use 'all', 'economic', 'executive', or 'approval'.")
			return
		}
		respondWithError(w, a.logger, http.StatusInternalServerError, err.Error())
		return
	}

	code := http.StatusOK
	if !report.Succeeded() {
		code = http.StatusBadGateway
	}
	respondWithJSON(w, a.logger, code, report)
}

// Runs lists the newest ledger rows; ?limit=N, default 50.
func (a *API) Runs(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		respondWithError(w, a.logger, http.StatusServiceUnavailable, "ingestion ledger is not configured")
		return
	}

	limit := 50
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 1000 {
			respondWithError(w, a.logger, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	runs, err := a.runs.Recent(r.Context(), limit)
	if err != nil {
		respondWithError(w, a.logger, http.StatusInternalServerError, "failed to read ingestion runs")
		return
	}
	if runs == nil {
		runs = []models.IngestionRun{}
	}
	respondWithJSON(w, a.logger, http.StatusOK, runs)
}

// Health reports ok, pinging the database when one is configured.
func (a *API) Health(w http.ResponseWriter, r *http.Request) {
	if a.db != nil {
		if err := a.db.PingContext(r.Context()); err != nil {
			a.logger.Error("health check failed", "error", err)
			respondWithJSON(w, a.logger, http.StatusServiceUnavailable,
				map[string]string{"status": "error", "message": "database connection error"})
			return
		}
	}
	respondWithJSON(w, a.logger, http.StatusOK, map[string]string{"status": "ok", "message": "civicpulse is healthy"})
}
