// scraper/collector.go
package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/gewnthar/civicpulse/config"
	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/storage"
)

const (
	EconomicIndicators   = "economic_indicators"
	ExecutiveOrders      = "executive_orders"
	PresidentialApproval = "presidential_approval"
)

// Collector fetches one dataset and lands it in object storage. Collect never
// panics on remote failures and always returns a finished Outcome.
type Collector interface {
	Name() string
	Collect(ctx context.Context) models.Outcome
}

// Clock returns the current time. Collectors take one so tests can pin dates.
type Clock func() time.Time

func newOutcome(name string, now Clock) models.Outcome {
	return models.Outcome{
		Collector: name,
		Status:    models.StatusFailed,
		StartedAt: now().UTC(),
	}
}

func finish(o *models.Outcome, now Clock) models.Outcome {
	o.FinishedAt = now().UTC()
	return *o
}

var aliases = map[string]string{
	"economic":  EconomicIndicators,
	"executive": ExecutiveOrders,
	"approval":  PresidentialApproval,
}

// ResolveName maps a collector name or its short alias (economic, executive,
// approval) to the collector name.
func ResolveName(name string) (string, bool) {
	switch name {
	case EconomicIndicators, ExecutiveOrders, PresidentialApproval:
		return name, true
	}
	full, ok := aliases[name]
	return full, ok
}

// NewCollectors builds the three collectors in their run order.
func NewCollectors(cfg config.SourcesConfig, fetcher *Fetcher, store storage.System, logger *slog.Logger) []Collector {
	return []Collector{
		NewEconomicCollector(cfg, fetcher, store, nil, logger),
		NewExecutiveOrderCollector(cfg, fetcher, store, nil, logger),
		NewApprovalCollector(cfg, fetcher, store, nil, logger),
	}
}
