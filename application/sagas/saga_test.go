package sagas

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trail struct {
	ran         []string
	compensated []string
}

func step(name string, failures int) SagaStep[trail] {
	remaining := failures
	return SagaStep[trail]{
		Name: name,
		Execute: func(_ context.Context, t *trail) error {
			t.ran = append(t.ran, name)
			if remaining != 0 {
				remaining--
				return errors.New(name + " failed")
			}
			return nil
		},
		Compensate: func(_ context.Context, t *trail) error {
			t.compensated = append(t.compensated, name)
			return nil
		},
	}
}

func TestSagaCompletes(t *testing.T) {
	saga := NewSaga[trail]("ok", nil).AddStep(step("a", 0)).AddStep(step("b", 0))
	var st trail

	require.NoError(t, saga.Execute(context.Background(), &st))
	assert.Equal(t, []string{"a", "b"}, st.ran)
	assert.Empty(t, st.compensated)
	assert.Equal(t, SagaStateCompleted, saga.GetState())
	assert.Contains(t, saga.GetID(), "saga_")
}

func TestSagaCompensatesInReverse(t *testing.T) {
	saga := NewSaga[trail]("rollback", nil).
		AddStep(step("a", 0)).
		AddStep(step("b", 0)).
		AddStep(step("c", -1))
	var st trail

	err := saga.Execute(context.Background(), &st)
	require.Error(t, err)
	assert.Equal(t, []string{"b", "a"}, st.compensated)
	assert.Equal(t, SagaStateCompensated, saga.GetState())
	assert.Equal(t, 2, saga.GetCurrentStep())
	assert.NotErrorIs(t, err, ErrCompensationFailed)
}

func TestSagaRetriesStep(t *testing.T) {
	flaky := step("flaky", 2)
	flaky.MaxRetries = 3
	saga := NewSaga[trail]("retry", nil).AddStep(flaky)
	var st trail

	require.NoError(t, saga.Execute(context.Background(), &st))
	assert.Len(t, st.ran, 3)
}

func TestSagaStopsOnNonRetryableError(t *testing.T) {
	flaky := step("flaky", -1)
	flaky.MaxRetries = 5
	flaky.Retryable = func(error) bool { return false }
	saga := NewSaga[trail]("no-retry", nil).AddStep(flaky)
	var st trail

	require.Error(t, saga.Execute(context.Background(), &st))
	assert.Len(t, st.ran, 1)
}

func TestSagaReportsFailedCompensation(t *testing.T) {
	broken := step("a", 0)
	broken.Compensate = func(context.Context, *trail) error { return errors.New("undo failed") }
	saga := NewSaga[trail]("broken", nil).AddStep(broken).AddStep(step("b", -1))
	var st trail

	err := saga.Execute(context.Background(), &st)
	assert.ErrorIs(t, err, ErrCompensationFailed)
	assert.Equal(t, SagaStateFailed, saga.GetState())
}

func TestSagaRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	flaky := step("flaky", -1)
	flaky.MaxRetries = 3
	flaky.Execute = func(context.Context, *trail) error {
		cancel()
		return errors.New("boom")
	}
	saga := NewSaga[trail]("cancel", nil).AddStep(flaky)
	var st trail

	err := saga.Execute(ctx, &st)
	assert.ErrorIs(t, err, context.Canceled)
}
