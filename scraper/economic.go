// scraper/economic.go
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/storage"
)

// EconomicCollector lands the Census weekly indicator input CSV. The file is
// published on Fridays but sometimes a few days late or early, so the
// collector walks back from the most recent Friday one day at a time.
type EconomicCollector struct {
	fetcher  *Fetcher
	store    storage.System
	baseURL  string
	lookback int
	now      Clock
	logger   *slog.Logger
}

func NewEconomicCollector(cfg config.SourcesConfig, fetcher *Fetcher, store storage.System, now Clock, logger *slog.Logger) *EconomicCollector {
	if now == nil {
		now = time.Now
	}
	return &EconomicCollector{
		fetcher:  fetcher,
		store:    store,
		baseURL:  cfg.EconomicIndicatorsURL,
		lookback: cfg.LookbackDays,
		now:      now,
		logger:   logger.With("collector", EconomicIndicators),
	}
}

func (c *EconomicCollector) Name() string { return EconomicIndicators }

// IndicatorURL is the archive URL of the file published on date.
func (c *EconomicCollector) IndicatorURL(date time.Time) string {
	return c.baseURL + date.Format("20060102") + ".csv"
}

// FetchLatest returns the newest indicator CSV within the lookback window and
// the date it was published under. Status failures step one day back;
// transport failures abort. ErrIndicatorsNotFound is returned when no date in
// the window has a file.
func (c *EconomicCollector) FetchLatest(ctx context.Context) ([]byte, time.Time, error) {
	date := MostRecentFriday(c.now())

	for attempt := 0; attempt < c.lookback; attempt++ {
		url := c.IndicatorURL(date)
		doc, err := c.fetcher.Get(ctx, url)
		if err == nil {
			c.logger.InfoContext(ctx, "found indicator file", "date", date.Format(isoDateLayout), "attempt", attempt+1)
			return doc.Body, date, nil
		}

		var statusErr *StatusError
		if !errors.As(err, &statusErr) {
			return nil, time.Time{}, err
		}
		c.logger.DebugContext(ctx, "no indicator file", "date", date.Format(isoDateLayout), "status", statusErr.Code)
		date = date.AddDate(0, 0, -1)
	}

	return nil, time.Time{}, fmt.Errorf("%w (%d days back from %s)",
		ErrIndicatorsNotFound, c.lookback, MostRecentFriday(c.now()).Format(isoDateLayout))
}

// Collect fetches the latest indicator file and uploads it unchanged.
func (c *EconomicCollector) Collect(ctx context.Context) models.Outcome {
	ctx, span := tracer.Start(ctx, "collect."+EconomicIndicators)
	defer span.End()

	o := newOutcome(EconomicIndicators, c.now)

	body, date, err := c.FetchLatest(ctx)
	if err != nil {
		o.Fail(Classify(err), err)
		return finish(&o, c.now)
	}

	obj, err := storage.Put(ctx, c.store, storage.EconomicIndicatorsKey(date), body, "text/csv")
	if err != nil {
		o.Fail(models.FailureStorage, fmt.Errorf("failed to upload indicators: %w", err))
		return finish(&o, c.now)
	}

	c.logger.InfoContext(ctx, "uploaded indicators", "key", obj.Key, "bytes", obj.Size)
	o.Succeed(obj, 1)
	return finish(&o, c.now)
}
