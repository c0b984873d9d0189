// handlers/ingest_handler_test.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/scraper"
	"github.com/gewnthar/civicpulse/services"
)

type fakeRunner struct {
	got  []string
	fail bool
}

func (f *fakeRunner) RunOnly(_ context.Context, names ...string) (services.Report, error) {
	f.got = names
	for _, n := range names {
		if _, ok := scraper.ResolveName(n); !ok {
			return services.Report{}, services.ErrUnknownCollector
		}
	}
	out := models.Outcome{Collector: scraper.EconomicIndicators}
	if f.fail {
		out.Fail(models.FailureStatus, errors.New("no file"))
	} else {
		out.Succeed(models.StorageObject{Key: "k"}, 1)
	}
	return services.Report{RunID: "r1", Outcomes: []models.Outcome{out}}, nil
}

type fakeRuns struct {
	runs  []models.IngestionRun
	limit int
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]models.IngestionRun, error) {
	f.limit = limit
	return f.runs, nil
}

type fakePinger struct{ err error }

func (f fakePinger) PingContext(context.Context) error { return f.err }

func newServer(t *testing.T, api *API) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	api.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestIngestAll(t *testing.T) {
	runner := &fakeRunner{}
	srv := newServer(t, NewAPI(runner, nil, nil, discard()))

	resp, err := http.Post(srv.URL+"/api/ingest/all", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, runner.got)

	var report services.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, "r1", report.RunID)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, models.StatusSucceeded, report.Outcomes[0].Status)
}

func TestIngestSingleCollectorFailure(t *testing.T) {
	runner := &fakeRunner{fail: true}
	srv := newServer(t, NewAPI(runner, nil, nil, discard()))

	resp, err := http.Post(srv.URL+"/api/ingest/economic", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, []string{"economic"}, runner.got)
}

func TestIngestUnknownTarget(t *testing.T) {
	srv := newServer(t, NewAPI(&fakeRunner{}, nil, nil, discard()))

	resp, err := http.Post(srv.URL+"/api/ingest/weather", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/ingest/all")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestRuns(t *testing.T) {
	runs := &fakeRuns{runs: []models.IngestionRun{{ID: 1, Collector: scraper.ExecutiveOrders, Status: models.StatusSucceeded, StartedAt: time.Now()}}}
	srv := newServer(t, NewAPI(&fakeRunner{}, runs, nil, discard()))

	resp, err := http.Get(srv.URL + "/api/runs?limit=5")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, runs.limit)

	var got []models.IngestionRun
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, scraper.ExecutiveOrders, got[0].Collector)

	bad, err := http.Get(srv.URL + "/api/runs?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestRunsWithoutLedger(t *testing.T) {
	srv := newServer(t, NewAPI(&fakeRunner{}, nil, nil, discard()))
	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	ok := newServer(t, NewAPI(&fakeRunner{}, nil, fakePinger{}, discard()))
	resp, err := http.Get(ok.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	down := newServer(t, NewAPI(&fakeRunner{}, nil, fakePinger{err: errors.New("refused")}, discard()))
	resp, err = http.Get(down.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newServer(t, NewAPI(&fakeRunner{}, nil, nil, discard()))
	trigger, err := http.Post(srv.URL+"/api/ingest/all", "application/json", nil)
	require.NoError(t, err)
	trigger.Body.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "civicpulse_triggers_total")
}
