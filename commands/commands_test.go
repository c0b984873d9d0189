// commands/commands_test.go
package commands

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/services"
)

func TestRenderReport(t *testing.T) {
	report := services.Report{
		RunID: "run-1",
		Outcomes: []models.Outcome{
			{
				Collector: "economic_indicators",
				Status:    models.StatusSucceeded,
				Object:    &models.StorageObject{Key: "economic_indicators/economic indicators_on_20240510.csv"},
				Records:   1,
			},
			{
				Collector: "executive_orders",
				Status:    models.StatusFailed,
				Kind:      models.FailureStatus,
				Reason:    "unexpected status 400",
			},
		},
	}

	var buf bytes.Buffer
	renderReport(&buf, report)
	out := buf.String()

	assert.Contains(t, out, "run run-1")
	assert.Contains(t, out, "economic indicators_on_20240510.csv")
	assert.Contains(t, out, "unexpected status 400")
	assert.Contains(t, out, "failed")
}

func TestRenderRuns(t *testing.T) {
	started := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	var buf bytes.Buffer
	renderRuns(&buf, []models.IngestionRun{
		{RunID: "r1", Collector: "presidential_approval", Status: models.StatusSucceeded, ObjectKey: "presidential_approvals/x.csv", StartedAt: started, FinishedAt: &finished},
		{RunID: "r1", Collector: "executive_orders", Status: models.StatusFailed, FailureKind: "transport", Reason: "timeout", StartedAt: started},
	})
	out := buf.String()

	assert.Contains(t, out, "2024-05-10T12:00:00Z")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "presidential_approvals/x.csv")
	assert.Contains(t, out, "timeout")
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"ingest", "serve", "forecast", "migrate", "runs"} {
		assert.True(t, names[want], want)
	}
}
