// forecast/job.go
package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/metrics"
	"github.com/gewnthar/civicpulse/models"
)

var tracer = otel.Tracer("civicpulse.forecast")

// SnapshotReader loads the newest feature snapshot. *database.Warehouse
// implements it.
type SnapshotReader interface {
	LatestSnapshot(ctx context.Context) (*models.Snapshot, error)
}

// ForecastWriter appends predictions. *database.Warehouse implements it.
type ForecastWriter interface {
	AppendForecasts(ctx context.Context, records []models.ForecastRecord) error
}

// Tracker records an experiment run. *tracker.Client implements it.
type Tracker interface {
	LogRun(ctx context.Context, run *models.ExperimentRun, params map[string]string, metrics map[string]float64, artifacts []models.Artifact) error
}

// Result summarizes one forecasting run.
type Result struct {
	Weeks      int
	Imputed    int
	Features   []string
	Explained  []float64
	Candidates []Candidate
	Best       Candidate
	Forecasts  []models.ForecastRecord
	Run        models.ExperimentRun
}

// Job is the weekly forecasting workflow.
type Job struct {
	reader    SnapshotReader
	writer    ForecastWriter
	tracker   Tracker // nil disables experiment logging
	estimator Estimator
	cfg       config.ForecastConfig
	exp       string
	now       func() time.Time
	logger    *slog.Logger
}

func NewJob(reader SnapshotReader, writer ForecastWriter, tracker Tracker, cfg config.ForecastConfig, experiment string, logger *slog.Logger) *Job {
	return &Job{
		reader:    reader,
		writer:    writer,
		tracker:   tracker,
		estimator: CSS{},
		cfg:       cfg,
		exp:       experiment,
		now:       time.Now,
		logger:    logger.With("component", "forecast"),
	}
}

// ErrTrackingFailed means the forecasts were appended but the experiment run
// could not be logged. Run returns the Result alongside it.
var ErrTrackingFailed = errors.New("forecasts written but experiment logging failed")

// Run loads the snapshot, prepares features, selects and refits the model
// with the lowest AIC, appends its test-horizon forecast and logs the run.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	ctx, span := tracer.Start(ctx, "forecast.run")
	defer span.End()

	res, err := j.run(ctx)
	switch {
	case errors.Is(err, ErrTrackingFailed):
		metrics.ForecastRunsTotal.WithLabelValues("tracking_failed").Inc()
		span.RecordError(err)
		return res, err
	case err != nil:
		metrics.ForecastRunsTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		return nil, err
	}
	metrics.ForecastRunsTotal.WithLabelValues("succeeded").Inc()
	metrics.ForecastAIC.Set(res.Best.AIC)
	return res, nil
}

func (j *Job) run(ctx context.Context) (*Result, error) {
	snap, err := j.reader.LatestSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	res := &Result{Weeks: snap.Len()}

	target, ok := snap.Column(j.cfg.TargetColumn)
	if !ok {
		return nil, fmt.Errorf("snapshot has no target column %q", j.cfg.TargetColumn)
	}
	y, imputed := ImputeOutliers(target, j.cfg.OutlierSigma)
	res.Imputed = imputed
	if math.IsNaN(Median(target)) {
		return nil, fmt.Errorf("target column %q has no values", j.cfg.TargetColumn)
	}

	var features [][]float64
	for i, name := range snap.Columns {
		if name == j.cfg.TargetColumn || slices.Contains(j.cfg.ExcludeColumns, name) {
			continue
		}
		filled, ok := Interpolate(snap.Series[i])
		if !ok {
			j.logger.WarnContext(ctx, "dropping feature with no values", "column", name)
			continue
		}
		features = append(features, filled)
		res.Features = append(res.Features, name)
	}
	if len(features) == 0 {
		return nil, fmt.Errorf("snapshot has no usable feature columns")
	}

	split := SplitIndex(len(y), j.cfg.TrainFraction)
	if split < 1 || split >= len(y) || len(y) < j.cfg.Components {
		return nil, fmt.Errorf("%w: %d weeks", ErrTooFewRows, len(y))
	}

	pcs, explained, err := PrincipalComponents(Standardize(features), j.cfg.Components)
	if err != nil {
		return nil, fmt.Errorf("failed to reduce features: %w", err)
	}
	res.Explained = explained
	trainX, testX := splitColumns(pcs, split)

	j.logger.InfoContext(ctx, "prepared features",
		"weeks", len(y), "imputed", imputed, "features", len(features),
		"components", len(pcs), "train", split, "test", len(y)-split)

	grid := Grid(j.cfg.MaxOrder, j.cfg.SeasonalPeriod)
	candidates, best, err := Search(j.estimator, y[:split], trainX, grid, j.logger)
	res.Candidates = candidates
	if err != nil {
		return nil, err
	}
	res.Best = candidates[best]

	fitted, err := j.estimator.Fit(y[:split], trainX, res.Best.Order, res.Best.Seasonal)
	if err != nil {
		return nil, fmt.Errorf("failed to refit %s x %s: %w", res.Best.Order, res.Best.Seasonal, err)
	}
	predicted, err := fitted.Forecast(testX)
	if err != nil {
		return nil, fmt.Errorf("failed to forecast: %w", err)
	}

	loadDate := dateOf(j.now())
	for i, v := range predicted {
		res.Forecasts = append(res.Forecasts, models.ForecastRecord{
			WeekStart:       snap.Weeks[split+i],
			PredictedOrders: v,
			LoadDate:        loadDate,
		})
	}
	if err := j.writer.AppendForecasts(ctx, res.Forecasts); err != nil {
		return nil, fmt.Errorf("failed to write forecasts: %w", err)
	}

	j.logger.InfoContext(ctx, "selected model",
		"order", res.Best.Order.String(), "seasonal_order", res.Best.Seasonal.String(),
		"aic", res.Best.AIC, "forecasts", len(res.Forecasts))

	params := fitted.Params()
	modelName := "SARIMAX_run_at_" + j.now().UTC().Format("20060102T150405Z")
	res.Run = models.ExperimentRun{
		RunName:       "Sarimax",
		Experiment:    j.exp,
		Order:         params.Order,
		SeasonalOrder: params.SeasonalOrder,
		AIC:           params.AIC,
		ModelArtifact: modelName + "/model.json",
		PlotArtifact:  "forecasting_results.png",
	}

	if j.tracker == nil {
		return res, nil
	}
	if err := j.logRun(ctx, res, params, y[split:], predicted, snap.Weeks[split:]); err != nil {
		return res, fmt.Errorf("%w: %w", ErrTrackingFailed, err)
	}
	return res, nil
}

type modelArtifact struct {
	Model      ModelParams        `json:"model"`
	Features   []string           `json:"features"`
	Explained  []float64          `json:"explained_variance_ratio"`
	Candidates []candidateSummary `json:"candidates"`
}

type candidateSummary struct {
	Order    string  `json:"order"`
	Seasonal string  `json:"seasonal_order"`
	AIC      float64 `json:"aic"`
}

func (j *Job) logRun(ctx context.Context, res *Result, params ModelParams, observed, predicted []float64, weeks []time.Time) error {
	art := modelArtifact{Model: params, Features: res.Features, Explained: res.Explained}
	for _, c := range res.Candidates {
		if c.Err == "" {
			art.Candidates = append(art.Candidates, candidateSummary{Order: c.Order.String(), Seasonal: c.Seasonal.String(), AIC: c.AIC})
		}
	}
	modelJSON, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	png, err := RenderPlot(weeks, observed, predicted)
	if err != nil {
		return err
	}

	return j.tracker.LogRun(ctx, &res.Run,
		map[string]string{
			"order":          res.Best.Order.String(),
			"seasonal_order": res.Best.Seasonal.String(),
		},
		map[string]float64{"AIC": res.Best.AIC},
		[]models.Artifact{
			{Path: res.Run.ModelArtifact, ContentType: "application/json", Data: modelJSON},
			{Path: res.Run.PlotArtifact, ContentType: "image/png", Data: png},
		},
	)
}

func splitColumns(cols [][]float64, at int) (train, test [][]float64) {
	train = make([][]float64, len(cols))
	test = make([][]float64, len(cols))
	for i, c := range cols {
		train[i] = c[:at]
		test[i] = c[at:]
	}
	return train, test
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
