// tracker/mlflow.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
)

const artifactScheme = "mlflow-artifacts:/"

// ErrUnsupportedArtifactStore means the run's artifact URI is not served
// through the tracking server's artifact proxy.
var ErrUnsupportedArtifactStore = errors.New("artifact store is not proxied by the tracking server")

// APIError is an error response of the tracking server.
type APIError struct {
	Status    int    `json:"-"`
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mlflow: %d %s: %s", e.Status, e.ErrorCode, e.Message)
}

// Client logs runs to an MLflow tracking server over its REST API.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

func NewClient(cfg config.TrackerConfig, httpCfg config.HTTPConfig, logger *slog.Logger) *Client {
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.URI, "/")).
		SetTimeout(httpCfg.Timeout).
		SetRetryCount(httpCfg.RetryCount).
		SetRetryWaitTime(httpCfg.RetryWait).
		SetRetryMaxWaitTime(httpCfg.RetryMaxWait).
		SetHeader("User-Agent", httpCfg.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	if cfg.Username != "" {
		c.SetBasicAuth(cfg.Username, cfg.Password)
	}
	return &Client{http: c, logger: logger.With("component", "tracker")}
}

type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type metric struct {
	Key       string  `json:"key"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Step      int64   `json:"step"`
}

type runInfo struct {
	RunID       string `json:"run_id"`
	ArtifactURI string `json:"artifact_uri"`
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	apiErr := &APIError{}
	req := c.http.R().SetContext(ctx).SetError(apiErr)
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return apiErr
	}
	return nil
}

// ExperimentID looks up an experiment by name, creating it when missing.
func (c *Client) ExperimentID(ctx context.Context, name string) (string, error) {
	var found struct {
		Experiment struct {
			ExperimentID string `json:"experiment_id"`
		} `json:"experiment"`
	}
	err := c.do(ctx, http.MethodGet,
		"/api/2.0/mlflow/experiments/get-by-name?experiment_name="+url.QueryEscape(name), nil, &found)
	if err == nil {
		return found.Experiment.ExperimentID, nil
	}
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode != "RESOURCE_DOES_NOT_EXIST" {
		return "", err
	}

	var created struct {
		ExperimentID string `json:"experiment_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/experiments/create",
		map[string]string{"name": name}, &created); err != nil {
		return "", fmt.Errorf("failed to create experiment %s: %w", name, err)
	}
	c.logger.InfoContext(ctx, "created experiment", "name", name, "id", created.ExperimentID)
	return created.ExperimentID, nil
}

// LogRun creates a run in run.Experiment, logs params, metrics and artifacts,
// and terminates it. run.RunID is set once the run exists; a run that fails
// midway is marked FAILED.
func (c *Client) LogRun(ctx context.Context, run *models.ExperimentRun, params map[string]string, metrics map[string]float64, artifacts []models.Artifact) error {
	expID, err := c.ExperimentID(ctx, run.Experiment)
	if err != nil {
		return err
	}

	now := time.Now()
	var created struct {
		Run struct {
			Info runInfo `json:"info"`
		} `json:"run"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/create", map[string]any{
		"experiment_id": expID,
		"run_name":      run.RunName,
		"start_time":    now.UnixMilli(),
		"tags": []keyValue{
			{Key: "mlflow.runName", Value: run.RunName},
			{Key: "civicpulse.request_id", Value: uuid.NewString()},
		},
	}, &created); err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	info := created.Run.Info
	run.RunID = info.RunID

	if err := c.logRun(ctx, info, params, metrics, artifacts); err != nil {
		if endErr := c.endRun(ctx, info.RunID, "FAILED"); endErr != nil {
			c.logger.WarnContext(ctx, "failed to mark run failed", "run_id", info.RunID, "error", endErr)
		}
		return err
	}
	if err := c.endRun(ctx, info.RunID, "FINISHED"); err != nil {
		return err
	}

	c.logger.InfoContext(ctx, "logged experiment run",
		"experiment", run.Experiment, "run_id", info.RunID, "artifacts", len(artifacts))
	return nil
}

func (c *Client) logRun(ctx context.Context, info runInfo, params map[string]string, metrics map[string]float64, artifacts []models.Artifact) error {
	ts := time.Now().UnixMilli()
	batch := struct {
		RunID   string     `json:"run_id"`
		Params  []keyValue `json:"params"`
		Metrics []metric   `json:"metrics"`
	}{RunID: info.RunID, Params: []keyValue{}, Metrics: []metric{}}

	for _, k := range sortedKeys(params) {
		batch.Params = append(batch.Params, keyValue{Key: k, Value: params[k]})
	}
	for _, k := range sortedKeys(metrics) {
		batch.Metrics = append(batch.Metrics, metric{Key: k, Value: metrics[k], Timestamp: ts})
	}
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/log-batch", batch, nil); err != nil {
		return fmt.Errorf("failed to log params and metrics: %w", err)
	}

	for _, a := range artifacts {
		if err := c.uploadArtifact(ctx, info.ArtifactURI, a); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) uploadArtifact(ctx context.Context, artifactURI string, a models.Artifact) error {
	if !strings.HasPrefix(artifactURI, artifactScheme) {
		return fmt.Errorf("%w: %s", ErrUnsupportedArtifactStore, artifactURI)
	}
	root := strings.Trim(strings.TrimPrefix(artifactURI, artifactScheme), "/")
	path := "/api/2.0/mlflow-artifacts/artifacts/" + root + "/" + strings.TrimLeft(a.Path, "/")

	apiErr := &APIError{}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", a.ContentType).
		SetBody(a.Data).
		SetError(apiErr).
		Put(path)
	if err != nil {
		return fmt.Errorf("failed to upload artifact %s: %w", a.Path, err)
	}
	if resp.IsError() {
		apiErr.Status = resp.StatusCode()
		return fmt.Errorf("failed to upload artifact %s: %w", a.Path, apiErr)
	}
	return nil
}

func (c *Client) endRun(ctx context.Context, runID, status string) error {
	if err := c.do(ctx, http.MethodPost, "/api/2.0/mlflow/runs/update", map[string]any{
		"run_id":   runID,
		"status":   status,
		"end_time": time.Now().UnixMilli(),
	}, nil); err != nil {
		return fmt.Errorf("failed to set run %s to %s: %w", runID, status, err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
