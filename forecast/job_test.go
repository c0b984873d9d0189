// forecast/job_test.go
package forecast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
)

type memWarehouse struct {
	snap    *models.Snapshot
	written []models.ForecastRecord
}

func (m *memWarehouse) LatestSnapshot(context.Context) (*models.Snapshot, error) {
	if m.snap == nil {
		return nil, errors.New("snapshot table is empty")
	}
	return m.snap, nil
}

func (m *memWarehouse) AppendForecasts(_ context.Context, r []models.ForecastRecord) error {
	m.written = append(m.written, r...)
	return nil
}

type memTracker struct {
	run       *models.ExperimentRun
	params    map[string]string
	metrics   map[string]float64
	artifacts []models.Artifact
}

func (m *memTracker) LogRun(_ context.Context, run *models.ExperimentRun, params map[string]string, metrics map[string]float64, artifacts []models.Artifact) error {
	run.RunID = "run-123"
	m.run, m.params, m.metrics, m.artifacts = run, params, metrics, artifacts
	return nil
}

func testSnapshot(n int) *models.Snapshot {
	rng := rand.New(rand.NewSource(11))
	start := time.Date(2022, 1, 3, 0, 0, 0, 0, time.UTC)
	snap := &models.Snapshot{
		RunDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		Columns: []string{"orders_outcome_var", "approving", "disapproving", "unemployment", "cpi", "gdp"},
		Series:  make([][]float64, 6),
	}
	for i := 0; i < n; i++ {
		snap.Weeks = append(snap.Weeks, start.AddDate(0, 0, 7*i))
		approving := 45 + 3*math.Sin(float64(i)/6) + rng.NormFloat64()
		unemployment := 4 + 0.01*float64(i) + rng.NormFloat64()*0.1
		snap.Series[1] = append(snap.Series[1], approving)
		snap.Series[2] = append(snap.Series[2], 100-approving)
		snap.Series[3] = append(snap.Series[3], unemployment)
		snap.Series[4] = append(snap.Series[4], 300+0.5*float64(i)+rng.NormFloat64())
		snap.Series[5] = append(snap.Series[5], 2+rng.NormFloat64()*0.3)
		snap.Series[0] = append(snap.Series[0], math.Round(5+0.2*(approving-45)+rng.NormFloat64()))
	}
	snap.Series[0][n/2] = 400 // outlier
	if n > 10 {
		snap.Series[3][5] = math.NaN()
		snap.Series[4][n-1] = math.NaN()
	}
	return snap
}

func testForecastConfig() config.ForecastConfig {
	return config.ForecastConfig{
		TargetColumn:   "orders_outcome_var",
		ExcludeColumns: []string{"disapproving"},
		Components:     2,
		TrainFraction:  0.8,
		SeasonalPeriod: 4,
		OutlierSigma:   3,
		MaxOrder:       1,
	}
}

func TestJobRun(t *testing.T) {
	wh := &memWarehouse{snap: testSnapshot(60)}
	tr := &memTracker{}
	job := NewJob(wh, wh, tr, testForecastConfig(), "SARIMAX", discard())
	job.now = func() time.Time { return time.Date(2024, 1, 5, 15, 30, 0, 0, time.UTC) }

	res, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 60, res.Weeks)
	assert.GreaterOrEqual(t, res.Imputed, 1)
	assert.Equal(t, []string{"approving", "unemployment", "cpi", "gdp"}, res.Features)
	assert.Len(t, res.Explained, 2)
	assert.Len(t, res.Candidates, 64)
	assert.Empty(t, res.Best.Err)

	require.Len(t, wh.written, 12)
	assert.Equal(t, wh.snap.Weeks[48], wh.written[0].WeekStart)
	assert.Equal(t, wh.snap.Weeks[59], wh.written[11].WeekStart)
	for _, r := range wh.written {
		assert.Equal(t, "2024-01-05", r.LoadDate.Format("2006-01-02"))
		assert.False(t, math.IsNaN(r.PredictedOrders))
	}

	require.NotNil(t, tr.run)
	assert.Equal(t, "run-123", res.Run.RunID)
	assert.Equal(t, "SARIMAX", tr.run.Experiment)
	assert.Equal(t, res.Best.Order.String(), tr.params["order"])
	assert.Equal(t, res.Best.Seasonal.String(), tr.params["seasonal_order"])
	assert.Equal(t, res.Best.AIC, tr.metrics["AIC"])

	require.Len(t, tr.artifacts, 2)
	assert.Equal(t, "SARIMAX_run_at_20240105T153000Z/model.json", tr.artifacts[0].Path)
	var model modelArtifact
	require.NoError(t, json.Unmarshal(tr.artifacts[0].Data, &model))
	assert.Equal(t, res.Best.AIC, model.Model.AIC)
	assert.Equal(t, "forecasting_results.png", tr.artifacts[1].Path)
	assert.True(t, bytes.HasPrefix(tr.artifacts[1].Data, []byte("\x89PNG")))
}

func TestJobRunWithoutTracker(t *testing.T) {
	wh := &memWarehouse{snap: testSnapshot(40)}
	cfg := testForecastConfig()
	cfg.MaxOrder = 0

	res, err := NewJob(wh, wh, nil, cfg, "SARIMAX", discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Candidates, 1)
	assert.Len(t, wh.written, 8)
	assert.Empty(t, res.Run.RunID)
}

func TestJobRunMissingTarget(t *testing.T) {
	wh := &memWarehouse{snap: testSnapshot(40)}
	cfg := testForecastConfig()
	cfg.TargetColumn = "nope"

	_, err := NewJob(wh, wh, nil, cfg, "SARIMAX", discard()).Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, wh.written)
}

func TestJobRunTooFewRows(t *testing.T) {
	wh := &memWarehouse{snap: testSnapshot(1)}

	_, err := NewJob(wh, wh, nil, testForecastConfig(), "SARIMAX", discard()).Run(context.Background())
	assert.ErrorIs(t, err, ErrTooFewRows)
}

func TestJobRunFewerWeeksThanComponents(t *testing.T) {
	wh := &memWarehouse{snap: testSnapshot(3)}
	cfg := testForecastConfig()
	cfg.Components = 4

	var err error
	assert.NotPanics(t, func() {
		_, err = NewJob(wh, wh, nil, cfg, "SARIMAX", discard()).Run(context.Background())
	})
	assert.ErrorIs(t, err, ErrTooFewRows)
	assert.Empty(t, wh.written)
}

type failingTracker struct{}

func (failingTracker) LogRun(context.Context, *models.ExperimentRun, map[string]string, map[string]float64, []models.Artifact) error {
	return errors.New("tracking server unavailable")
}

func TestJobRunTrackerFailureReturnsResult(t *testing.T) {
	wh := &memWarehouse{snap: testSnapshot(40)}
	cfg := testForecastConfig()
	cfg.MaxOrder = 0

	res, err := NewJob(wh, wh, failingTracker{}, cfg, "SARIMAX", discard()).Run(context.Background())
	require.ErrorIs(t, err, ErrTrackingFailed)
	require.NotNil(t, res)
	assert.Len(t, wh.written, 8)
	assert.Equal(t, wh.written, res.Forecasts)
}
