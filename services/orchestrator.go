// services/orchestrator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/metrics"
	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/scraper"
)

var tracer = otel.Tracer("civicpulse.services")

// ErrUnknownCollector is returned by RunOnly for names that match no collector.
var ErrUnknownCollector = errors.New("unknown collector")

// Recorder persists outcomes. database.RunStore implements it.
type Recorder interface {
	Record(ctx context.Context, runID string, o models.Outcome) (int64, error)
}

// Report is the result of one orchestrator run: one outcome per collector in
// the fixed collector order.
type Report struct {
	RunID      string           `json:"run_id"`
	Outcomes   []models.Outcome `json:"outcomes"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Failed names the collectors whose outcome is not a success.
func (r Report) Failed() []string {
	var failed []string
	for _, o := range r.Outcomes {
		if !o.Succeeded() {
			failed = append(failed, o.Collector)
		}
	}
	return failed
}

// Succeeded reports whether every collector succeeded.
func (r Report) Succeeded() bool { return len(r.Failed()) == 0 }

// Orchestrator runs the collectors in response to a trigger. A failing or
// panicking collector never prevents the others from running. Runs are
// serialized.
type Orchestrator struct {
	collectors []scraper.Collector
	recorder   Recorder
	concurrent bool
	timeout    time.Duration
	logger     *slog.Logger

	mu sync.Mutex
}

// NewOrchestrator wires collectors in the order given. recorder may be nil.
func NewOrchestrator(collectors []scraper.Collector, recorder Recorder, cfg config.OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		collectors: collectors,
		recorder:   recorder,
		concurrent: cfg.Concurrent,
		timeout:    cfg.RunTimeout,
		logger:     logger.With("component", "orchestrator"),
	}
}

// Names lists the collector names in run order.
func (o *Orchestrator) Names() []string {
	names := make([]string, len(o.collectors))
	for i, c := range o.collectors {
		names[i] = c.Name()
	}
	return names
}

// Run invokes every collector.
func (o *Orchestrator) Run(ctx context.Context) Report {
	return o.run(ctx, o.collectors)
}

// RunOnly invokes the named collectors, keeping the fixed order regardless of
// the order of names. Short aliases are accepted.
func (o *Orchestrator) RunOnly(ctx context.Context, names ...string) (Report, error) {
	if len(names) == 0 {
		return o.Run(ctx), nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		full, ok := scraper.ResolveName(n)
		if !ok {
			return Report{}, fmt.Errorf("%w: %q", ErrUnknownCollector, n)
		}
		want[full] = true
	}

	var selected []scraper.Collector
	for _, c := range o.collectors {
		if want[c.Name()] {
			selected = append(selected, c)
		}
	}
	if len(selected) == 0 {
		return Report{}, fmt.Errorf("%w: none of %v is configured", ErrUnknownCollector, names)
	}
	return o.run(ctx, selected), nil
}

func (o *Orchestrator) run(ctx context.Context, collectors []scraper.Collector) Report {
	o.mu.Lock()
	defer o.mu.Unlock()

	report := Report{
		RunID:     uuid.NewString(),
		Outcomes:  make([]models.Outcome, len(collectors)),
		StartedAt: time.Now().UTC(),
	}

	ctx, span := tracer.Start(ctx, "orchestrator.run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", report.RunID), attribute.Bool("concurrent", o.concurrent))

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	logger := o.logger.With("run_id", report.RunID)
	logger.InfoContext(ctx, "starting ingestion run", "collectors", len(collectors), "concurrent", o.concurrent)

	if o.concurrent {
		var g errgroup.Group
		for i, c := range collectors {
			g.Go(func() error {
				report.Outcomes[i] = safeCollect(ctx, c, logger)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i, c := range collectors {
			report.Outcomes[i] = safeCollect(ctx, c, logger)
		}
	}

	for _, out := range report.Outcomes {
		observe(out)
		o.record(ctx, logger, report.RunID, out)
	}

	report.FinishedAt = time.Now().UTC()
	if failed := report.Failed(); len(failed) > 0 {
		logger.WarnContext(ctx, "ingestion run finished with failures", "failed", failed)
	} else {
		logger.InfoContext(ctx, "ingestion run finished", "duration", report.FinishedAt.Sub(report.StartedAt))
	}
	return report
}

// safeCollect converts a collector panic into a failed outcome.
func safeCollect(ctx context.Context, c scraper.Collector, logger *slog.Logger) (out models.Outcome) {
	started := time.Now().UTC()
	defer func() {
		if r := recover(); r != nil {
			logger.ErrorContext(ctx, "collector panicked", "collector", c.Name(), "panic", r, "stack", string(debug.Stack()))
			out = models.Outcome{Collector: c.Name(), StartedAt: started, FinishedAt: time.Now().UTC()}
			out.Fail(models.FailurePanic, fmt.Errorf("collector %s panicked: %v", c.Name(), r))
		}
	}()

	out = c.Collect(ctx)
	if out.Collector == "" {
		out.Collector = c.Name()
	}

	attrs := []any{"collector", out.Collector, "status", out.Status, "records", out.Records}
	if out.Object != nil {
		attrs = append(attrs, "key", out.Object.Key)
	}
	if len(out.Partial) > 0 {
		attrs = append(attrs, "partial_failures", len(out.Partial))
	}
	if out.Succeeded() {
		logger.InfoContext(ctx, "collector succeeded", attrs...)
	} else {
		logger.ErrorContext(ctx, "collector failed", append(attrs, "kind", out.Kind, "reason", out.Reason)...)
	}
	return out
}

func observe(out models.Outcome) {
	metrics.CollectorRunsTotal.WithLabelValues(out.Collector, string(out.Status), string(out.Kind)).Inc()
	if !out.StartedAt.IsZero() && !out.FinishedAt.IsZero() {
		metrics.CollectorDuration.WithLabelValues(out.Collector).Observe(out.FinishedAt.Sub(out.StartedAt).Seconds())
	}
	if len(out.Partial) > 0 {
		metrics.CollectorPartialFailures.WithLabelValues(out.Collector).Add(float64(len(out.Partial)))
	}
	if out.Succeeded() {
		metrics.CollectorRecords.WithLabelValues(out.Collector).Set(float64(out.Records))
		metrics.CollectorLastSuccess.WithLabelValues(out.Collector).Set(float64(out.FinishedAt.Unix()))
	}
}

func (o *Orchestrator) record(ctx context.Context, logger *slog.Logger, runID string, out models.Outcome) {
	if o.recorder == nil {
		return
	}
	// the ledger must not fail a run, and a timed out run still gets recorded
	recCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if _, err := o.recorder.Record(recCtx, runID, out); err != nil {
		metrics.LedgerErrors.Inc()
		logger.WarnContext(ctx, "failed to record outcome", "collector", out.Collector, "error", err)
	}
}
