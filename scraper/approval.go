// scraper/approval.go
package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/storage"
)

// ErrAllPresidentsFailed means no approval page could be fetched and parsed.
var ErrAllPresidentsFailed = errors.New("every president's approval page failed")

// ApprovalCollector scrapes the approval table of each configured president
// and lands the combined rows as one CSV.
type ApprovalCollector struct {
	fetcher    *Fetcher
	store      storage.System
	prefix     string
	suffix     string
	presidents []string
	now        Clock
	logger     *slog.Logger
}

func NewApprovalCollector(cfg config.SourcesConfig, fetcher *Fetcher, store storage.System, now Clock, logger *slog.Logger) *ApprovalCollector {
	if now == nil {
		now = time.Now
	}
	return &ApprovalCollector{
		fetcher:    fetcher,
		store:      store,
		prefix:     cfg.ApprovalURLPrefix,
		suffix:     cfg.ApprovalURLSuffix,
		presidents: cfg.Presidents,
		now:        now,
		logger:     logger.With("collector", PresidentialApproval),
	}
}

func (c *ApprovalCollector) Name() string { return PresidentialApproval }

// PageURL is the approval statistics page of president.
func (c *ApprovalCollector) PageURL(president string) string {
	return c.prefix + president + c.suffix
}

// FetchPresident scrapes one president's table.
func (c *ApprovalCollector) FetchPresident(ctx context.Context, president string) ([]models.ApprovalRating, error) {
	doc, err := c.fetcher.Get(ctx, c.PageURL(president))
	if err != nil {
		return nil, err
	}
	rows, err := ExtractFirstTable(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, err
	}
	ratings, err := TableToRatings(rows, president)
	if err != nil {
		return nil, err
	}
	if extra := ExtraHeaders(ratings); len(extra) > 0 {
		c.logger.InfoContext(ctx, "keeping unrecognized columns", "president", president, "columns", extra)
	}
	return ratings, nil
}

// FetchAll scrapes every configured president. A failed president is
// reported in the returned partial failures and contributes no rows.
func (c *ApprovalCollector) FetchAll(ctx context.Context) ([]models.ApprovalRating, []models.PartialFailure, error) {
	var all []models.ApprovalRating
	var partial []models.PartialFailure

	for _, president := range c.presidents {
		if err := ctx.Err(); err != nil {
			return nil, partial, err
		}
		ratings, err := c.FetchPresident(ctx, president)
		if err != nil {
			c.logger.WarnContext(ctx, "skipping president", "president", president, "error", err)
			partial = append(partial, models.PartialFailure{
				Item:   president,
				Kind:   Classify(err),
				Reason: err.Error(),
			})
			continue
		}
		c.logger.DebugContext(ctx, "scraped president", "president", president, "rows", len(ratings))
		all = append(all, ratings...)
	}

	if len(c.presidents) > 0 && len(partial) == len(c.presidents) {
		return nil, partial, fmt.Errorf("%w (%d presidents)", ErrAllPresidentsFailed, len(partial))
	}
	return all, partial, nil
}

// FilterValidDates keeps rows whose start date is a well-formed calendar
// date and returns the newest such date.
func FilterValidDates(ratings []models.ApprovalRating) ([]models.ApprovalRating, time.Time) {
	var kept []models.ApprovalRating
	var maxDate time.Time
	for _, r := range ratings {
		d, err := ParseStartDate(r.StartDate)
		if err != nil {
			continue
		}
		kept = append(kept, r)
		if d.After(maxDate) {
			maxDate = d
		}
	}
	return kept, maxDate
}

// Collect scrapes, filters, and uploads the combined approval CSV.
func (c *ApprovalCollector) Collect(ctx context.Context) models.Outcome {
	ctx, span := tracer.Start(ctx, "collect."+PresidentialApproval)
	defer span.End()

	o := newOutcome(PresidentialApproval, c.now)

	ratings, partial, err := c.FetchAll(ctx)
	o.Partial = partial
	if err != nil {
		kind := models.FailureTransport
		if len(partial) > 0 && errors.Is(err, ErrAllPresidentsFailed) {
			kind = partial[0].Kind
		}
		o.Fail(kind, err)
		return finish(&o, c.now)
	}

	kept, maxDate := FilterValidDates(ratings)
	if len(kept) == 0 {
		o.Fail(models.FailureEmpty, fmt.Errorf("%w (%d rows scraped)", ErrNoApprovalData, len(ratings)))
		return finish(&o, c.now)
	}
	if dropped := len(ratings) - len(kept); dropped > 0 {
		c.logger.InfoContext(ctx, "dropped rows with malformed start dates", "rows", dropped)
	}

	body, err := EncodeRatings(kept)
	if err != nil {
		o.Fail(models.FailureParse, err)
		return finish(&o, c.now)
	}

	obj, err := storage.Put(ctx, c.store, storage.ApprovalsKey(maxDate), body, "text/csv")
	if err != nil {
		o.Fail(models.FailureStorage, fmt.Errorf("failed to upload approval ratings: %w", err))
		return finish(&o, c.now)
	}

	c.logger.InfoContext(ctx, "uploaded approval ratings",
		"key", obj.Key, "rows", len(kept), "through", maxDate.Format(startDateLayout), "failed_presidents", len(partial))
	o.Succeed(obj, len(kept))
	return finish(&o, c.now)
}
