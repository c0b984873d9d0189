// tracker/mlflow_test.go
package tracker

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
)

type fakeMLflow struct {
	mu          sync.Mutex
	experiments map[string]string
	calls       []string
	batch       map[string]any
	artifacts   map[string][]byte
	status      string
	failUpload  bool
	user        string
}

func newFakeMLflow() *fakeMLflow {
	return &fakeMLflow{experiments: map[string]string{}, artifacts: map[string][]byte{}}
}

func (f *fakeMLflow) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)
	f.user, _, _ = r.BasicAuth()

	decode := func() map[string]any {
		body := map[string]any{}
		_ = json.NewDecoder(r.Body).Decode(&body)
		return body
	}
	reply := func(status int, v any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(v)
	}

	switch {
	case r.URL.Path == "/api/2.0/mlflow/experiments/get-by-name":
		id, ok := f.experiments[r.URL.Query().Get("experiment_name")]
		if !ok {
			reply(http.StatusNotFound, map[string]string{"error_code": "RESOURCE_DOES_NOT_EXIST", "message": "no such experiment"})
			return
		}
		reply(http.StatusOK, map[string]any{"experiment": map[string]string{"experiment_id": id}})
	case r.URL.Path == "/api/2.0/mlflow/experiments/create":
		f.experiments[decode()["name"].(string)] = "7"
		reply(http.StatusOK, map[string]string{"experiment_id": "7"})
	case r.URL.Path == "/api/2.0/mlflow/runs/create":
		reply(http.StatusOK, map[string]any{"run": map[string]any{"info": map[string]string{
			"run_id":       "abc123",
			"artifact_uri": "mlflow-artifacts:/7/abc123/artifacts",
		}}})
	case r.URL.Path == "/api/2.0/mlflow/runs/log-batch":
		f.batch = decode()
		reply(http.StatusOK, map[string]any{})
	case strings.HasPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/"):
		if f.failUpload {
			reply(http.StatusForbidden, map[string]string{"error_code": "PERMISSION_DENIED", "message": "nope"})
			return
		}
		data, _ := io.ReadAll(r.Body)
		f.artifacts[strings.TrimPrefix(r.URL.Path, "/api/2.0/mlflow-artifacts/artifacts/")] = data
		reply(http.StatusOK, map[string]any{})
	case r.URL.Path == "/api/2.0/mlflow/runs/update":
		f.status = decode()["status"].(string)
		reply(http.StatusOK, map[string]any{})
	default:
		reply(http.StatusNotFound, map[string]string{"error_code": "ENDPOINT_NOT_FOUND"})
	}
}

func newTestClient(t *testing.T, f *fakeMLflow) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(
		config.TrackerConfig{URI: srv.URL + "/", Username: "svc", Password: "secret"},
		config.HTTPConfig{Timeout: 5 * time.Second, RetryWait: time.Millisecond, RetryMaxWait: time.Millisecond, UserAgent: "test"},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
}

func TestLogRunCreatesExperimentAndUploads(t *testing.T) {
	f := newFakeMLflow()
	c := newTestClient(t, f)

	run := &models.ExperimentRun{RunName: "Sarimax", Experiment: "/Shared/executive-orders"}
	err := c.LogRun(context.Background(), run,
		map[string]string{"order": "(1, 0, 0)", "seasonal_order": "(0, 1, 0, 52)"},
		map[string]float64{"AIC": 123.5},
		[]models.Artifact{
			{Path: "SARIMAX_run/model.json", ContentType: "application/json", Data: []byte(`{"a":1}`)},
			{Path: "forecasting_results.png", ContentType: "image/png", Data: []byte("png")},
		})
	require.NoError(t, err)

	assert.Equal(t, "abc123", run.RunID)
	assert.Equal(t, "FINISHED", f.status)
	assert.Equal(t, "svc", f.user)
	assert.Equal(t, "7", f.experiments["/Shared/executive-orders"])
	assert.Equal(t, []byte(`{"a":1}`), f.artifacts["7/abc123/artifacts/SARIMAX_run/model.json"])
	assert.Equal(t, []byte("png"), f.artifacts["7/abc123/artifacts/forecasting_results.png"])

	params := f.batch["params"].([]any)
	require.Len(t, params, 2)
	assert.Equal(t, "order", params[0].(map[string]any)["key"])
	metrics := f.batch["metrics"].([]any)
	require.Len(t, metrics, 1)
	assert.Equal(t, 123.5, metrics[0].(map[string]any)["value"])
}

func TestLogRunReusesExistingExperiment(t *testing.T) {
	f := newFakeMLflow()
	f.experiments["forecasts"] = "3"
	c := newTestClient(t, f)

	require.NoError(t, c.LogRun(context.Background(), &models.ExperimentRun{Experiment: "forecasts"}, nil, nil, nil))
	assert.NotContains(t, f.calls, "POST /api/2.0/mlflow/experiments/create")
}

func TestLogRunMarksFailedRun(t *testing.T) {
	f := newFakeMLflow()
	f.failUpload = true
	c := newTestClient(t, f)

	err := c.LogRun(context.Background(), &models.ExperimentRun{Experiment: "x"}, nil, nil,
		[]models.Artifact{{Path: "model.json", Data: []byte("{}")}})
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "FAILED", f.status)
}
