// scraper/executive_orders.go
package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/storage"
)

// ExecutiveOrderCollector pages through the Federal Register documents API
// and lands every executive order as one JSON array.
type ExecutiveOrderCollector struct {
	fetcher  *Fetcher
	store    storage.System
	url      string
	maxPages int
	now      Clock
	logger   *slog.Logger
}

func NewExecutiveOrderCollector(cfg config.SourcesConfig, fetcher *Fetcher, store storage.System, now Clock, logger *slog.Logger) *ExecutiveOrderCollector {
	if now == nil {
		now = time.Now
	}
	return &ExecutiveOrderCollector{
		fetcher:  fetcher,
		store:    store,
		url:      cfg.ExecutiveOrdersURL,
		maxPages: cfg.MaxPages,
		now:      now,
		logger:   logger.With("collector", ExecutiveOrders),
	}
}

func (c *ExecutiveOrderCollector) Name() string { return ExecutiveOrders }

// FetchAll follows next_page_url until the API stops returning one. Any
// failed page fails the whole fetch; a partial set is never returned.
func (c *ExecutiveOrderCollector) FetchAll(ctx context.Context) ([]models.ExecutiveOrder, error) {
	var orders []models.ExecutiveOrder
	seen := make(map[string]bool)

	url := c.url
	for page := 1; url != ""; page++ {
		if page > c.maxPages || seen[url] {
			return nil, fmt.Errorf("%w: stopped at page %d (%s)", ErrPaginationLoop, page, url)
		}
		seen[url] = true

		doc, err := c.fetcher.Get(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch executive orders page %d: %w", page, err)
		}

		var p models.ExecutiveOrderPage
		if err := json.Unmarshal(doc.Body, &p); err != nil {
			return nil, &ParseError{What: fmt.Sprintf("executive orders page %d", page), Err: err}
		}
		orders = append(orders, p.Results...)
		c.logger.DebugContext(ctx, "fetched page", "page", page, "results", len(p.Results), "total_pages", p.TotalPages)

		url = ""
		if p.NextPageURL != nil {
			url = strings.TrimSpace(*p.NextPageURL)
		}
	}
	return orders, nil
}

// Summarize derives the key facts of an order set. Null or non-numeric
// document numbers and null or malformed publication dates are ignored.
func Summarize(orders []models.ExecutiveOrder) (models.ExecutiveOrderSummary, error) {
	summary := models.ExecutiveOrderSummary{Records: len(orders)}

	var haveID bool
	var maxDate time.Time
	for _, o := range orders {
		if o.PresidentialDocumentNumber != nil {
			if id, err := strconv.ParseInt(strings.TrimSpace(string(*o.PresidentialDocumentNumber)), 10, 64); err == nil {
				if !haveID || id > summary.MaxDocumentID {
					summary.MaxDocumentID = id
					haveID = true
				}
			}
		}
		if o.PublicationDate != nil {
			if d, err := time.Parse(isoDateLayout, strings.TrimSpace(*o.PublicationDate)); err == nil && d.After(maxDate) {
				maxDate = d
			}
		}
	}

	if !haveID || maxDate.IsZero() {
		return summary, fmt.Errorf("%w (%d records)", ErrNoExecutiveOrders, len(orders))
	}
	summary.MaxPublishedOn = maxDate.Format(isoDateLayout)
	return summary, nil
}

// Collect fetches every page, summarizes, and uploads the JSON array.
func (c *ExecutiveOrderCollector) Collect(ctx context.Context) models.Outcome {
	ctx, span := tracer.Start(ctx, "collect."+ExecutiveOrders)
	defer span.End()

	o := newOutcome(ExecutiveOrders, c.now)

	orders, err := c.FetchAll(ctx)
	if err != nil {
		o.Fail(Classify(err), err)
		return finish(&o, c.now)
	}

	summary, err := Summarize(orders)
	if err != nil {
		o.Fail(Classify(err), err)
		return finish(&o, c.now)
	}

	body, err := json.Marshal(orders)
	if err != nil {
		o.Fail(models.FailureParse, fmt.Errorf("failed to encode executive orders: %w", err))
		return finish(&o, c.now)
	}

	key := storage.ExecutiveOrdersKey(c.now(), summary.MaxDocumentID, summary.MaxPublishedOn)
	obj, err := storage.Put(ctx, c.store, key, body, "application/json")
	if err != nil {
		o.Fail(models.FailureStorage, fmt.Errorf("failed to upload executive orders: %w", err))
		return finish(&o, c.now)
	}

	c.logger.InfoContext(ctx, "uploaded executive orders",
		"key", obj.Key, "records", summary.Records, "max_id", summary.MaxDocumentID, "max_date", summary.MaxPublishedOn)
	o.Succeed(obj, summary.Records)
	return finish(&o, c.now)
}
