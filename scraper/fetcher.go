// scraper/fetcher.go
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
)

const libraryName = "civicpulse.scraper"

var tracer = otel.Tracer(libraryName)

// Fetcher performs GET requests with a per-request timeout and bounded
// retry with backoff on transport errors, 429 and 5xx responses. Other
// non-success statuses are returned immediately as *StatusError.
type Fetcher struct {
	client *resty.Client
	logger *slog.Logger
}

// NewFetcher builds a Fetcher from the http section of the config.
func NewFetcher(cfg config.HTTPConfig, logger *slog.Logger) *Fetcher {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(cfg.RetryWait).
		SetRetryMaxWaitTime(cfg.RetryMaxWait).
		SetHeader("User-Agent", cfg.UserAgent).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := r.StatusCode()
			return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
		})

	return &Fetcher{
		client: client,
		logger: logger.With("component", "fetcher"),
	}
}

// Get fetches url. A non-2xx response yields a *StatusError; the RawDocument
// is only returned on success.
func (f *Fetcher) Get(ctx context.Context, url string) (*models.RawDocument, error) {
	ctx, span := tracer.Start(ctx, "fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("http.url", url)))
	defer span.End()

	f.logger.DebugContext(ctx, "fetching", "url", url)

	resp, err := f.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return nil, fmt.Errorf("failed to make GET request to %s: %w", url, err)
	}

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if !resp.IsSuccess() {
		span.SetStatus(codes.Error, resp.Status())
		return nil, &StatusError{URL: url, Code: resp.StatusCode()}
	}

	return &models.RawDocument{
		SourceURL:   url,
		RetrievedAt: time.Now().UTC(),
		ContentType: resp.Header().Get("Content-Type"),
		StatusCode:  resp.StatusCode(),
		Body:        resp.Body(),
	}, nil
}
