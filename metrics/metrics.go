// metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Collector metrics
	CollectorRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_collector_runs_total",
			Help: "Total number of collector runs by outcome",
		},
		[]string{"collector", "status", "kind"},
	)

	CollectorDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "civicpulse_collector_duration_seconds",
			Help:    "Duration of collector runs in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"collector"},
	)

	CollectorRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "civicpulse_collector_records",
			Help: "Records landed by the last successful collector run",
		},
		[]string{"collector"},
	)

	CollectorPartialFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_collector_partial_failures_total",
			Help: "Items skipped inside otherwise successful collector runs",
		},
		[]string{"collector"},
	)

	CollectorLastSuccess = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "civicpulse_collector_last_success_timestamp_seconds",
			Help: "Unix time of the last successful collector run",
		},
		[]string{"collector"},
	)

	// Trigger metrics
	TriggersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_triggers_total",
			Help: "Total number of ingestion triggers received",
		},
		[]string{"source"},
	)

	LedgerErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "civicpulse_ledger_errors_total",
			Help: "Total number of outcomes that could not be written to the ledger",
		},
	)

	// Forecast metrics
	ForecastRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "civicpulse_forecast_runs_total",
			Help: "Total number of forecasting job runs",
		},
		[]string{"status"},
	)

	ForecastAIC = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "civicpulse_forecast_best_aic",
			Help: "AIC of the model chosen by the last forecasting run",
		},
	)
)
