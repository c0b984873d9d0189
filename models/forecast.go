// models/forecast.go
package models

import "time"

// ForecastRecord is one predicted week appended to the forecast output table.
// Rows are never updated; each load carries its own LoadDate.
type ForecastRecord struct {
	WeekStart       time.Time `db:"week_start" json:"week_start"`
	PredictedOrders float64   `db:"predicted_orders" json:"predicted_orders"`
	LoadDate        time.Time `db:"bq_load_dt" json:"bq_load_dt"`
}

// ExperimentRun is what the forecasting job reports to the experiment tracker.
type ExperimentRun struct {
	RunName       string
	Experiment    string
	Order         [3]int
	SeasonalOrder [4]int
	AIC           float64
	ModelArtifact string // artifact path of the serialized model
	PlotArtifact  string // artifact path of the forecast plot
	RunID         string // assigned by the tracker
}

// Artifact is a file attached to an experiment run.
type Artifact struct {
	Path        string
	ContentType string
	Data        []byte
}
