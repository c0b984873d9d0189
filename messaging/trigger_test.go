// messaging/trigger_test.go
package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/civicpulse/models"
	"github.com/gewnthar/civicpulse/services"
)

type fakeRunner struct {
	got []string
	err error
}

func (f *fakeRunner) RunOnly(_ context.Context, names ...string) (services.Report, error) {
	f.got = names
	if f.err != nil {
		return services.Report{}, f.err
	}
	out := models.Outcome{Collector: "executive_orders"}
	out.Fail(models.FailureStatus, errors.New("503"))
	return services.Report{RunID: "run-1", Outcomes: []models.Outcome{out}}, nil
}

func TestHandleTriggerEmptyBodyRunsAll(t *testing.T) {
	r := &fakeRunner{}
	report, err := HandleTrigger(context.Background(), r, nil)
	require.NoError(t, err)
	assert.Empty(t, r.got)
	assert.Equal(t, "run-1", report.RunID)
	assert.Equal(t, []string{"executive_orders"}, report.Failed())
}

func TestHandleTriggerSelectsCollectors(t *testing.T) {
	r := &fakeRunner{}
	_, err := HandleTrigger(context.Background(), r, []byte(`{"collectors":["economic","approval"],"requested_by":"scheduler"}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"economic", "approval"}, r.got)
}

func TestHandleTriggerRejectsBadPayload(t *testing.T) {
	r := &fakeRunner{}
	_, err := HandleTrigger(context.Background(), r, []byte(`{"collectors":`))
	require.Error(t, err)
	assert.Nil(t, r.got)
}

func TestHandleTriggerPropagatesRunnerError(t *testing.T) {
	r := &fakeRunner{err: services.ErrUnknownCollector}
	_, err := HandleTrigger(context.Background(), r, []byte(`{"collectors":["weather"]}`))
	assert.ErrorIs(t, err, services.ErrUnknownCollector)
}
