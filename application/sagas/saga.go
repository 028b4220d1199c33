package sagas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SagaStep represents a single step in a saga. Execute and Compensate work
// on the saga's shared state.
type SagaStep[T any] struct {
	Name       string
	Execute    func(ctx context.Context, state *T) error
	Compensate func(ctx context.Context, state *T) error
	MaxRetries int
	RetryDelay time.Duration
	// Retryable decides whether a failed attempt is tried again. Nil means
	// every error is retried until MaxRetries.
	Retryable func(error) bool
}

// SagaState represents the current state of a saga execution
type SagaState string

const (
	SagaStatePending      SagaState = "PENDING"
	SagaStateRunning      SagaState = "RUNNING"
	SagaStateCompleted    SagaState = "COMPLETED"
	SagaStateFailed       SagaState = "FAILED"
	SagaStateCompensating SagaState = "COMPENSATING"
	SagaStateCompensated  SagaState = "COMPENSATED"
)

// ErrCompensationFailed marks a saga whose rollback did not complete, which
// leaves a partial state for reconciliation.
var ErrCompensationFailed = errors.New("saga compensation failed")

// Saga runs steps in order and, when one fails, compensates the completed
// steps in reverse order.
type Saga[T any] struct {
	id          string
	name        string
	steps       []SagaStep[T]
	state       SagaState
	currentStep int
	logger      *zap.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// NewSaga creates a new saga instance
func NewSaga[T any](name string, logger *zap.Logger) *Saga[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Saga[T]{
		id:     "saga_" + uuid.NewString(),
		name:   name,
		state:  SagaStatePending,
		logger: logger,
		sleep:  sleepContext,
	}
}

// AddStep adds a step to the saga
func (s *Saga[T]) AddStep(step SagaStep[T]) *Saga[T] {
	s.steps = append(s.steps, step)
	return s
}

// Execute runs the saga against state.
func (s *Saga[T]) Execute(ctx context.Context, state *T) error {
	s.state = SagaStateRunning
	s.logger.Debug("Starting saga execution",
		zap.String("sagaID", s.id),
		zap.String("sagaName", s.name),
		zap.Int("totalSteps", len(s.steps)),
	)

	for i, step := range s.steps {
		s.currentStep = i
		if err := s.executeStepWithRetry(ctx, step, state); err != nil {
			s.state = SagaStateFailed
			s.logger.Warn("Saga step failed",
				zap.String("sagaID", s.id),
				zap.String("stepName", step.Name),
				zap.Error(err),
			)

			if compErr := s.compensate(ctx, i, state); compErr != nil {
				s.state = SagaStateFailed
				s.logger.Error("Saga compensation failed",
					zap.String("sagaID", s.id),
					zap.Error(compErr),
				)
				return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, errors.Join(err, ErrCompensationFailed, compErr))
			}

			s.state = SagaStateCompensated
			return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
		}
	}

	s.state = SagaStateCompleted
	s.logger.Debug("Saga completed",
		zap.String("sagaID", s.id),
		zap.String("sagaName", s.name),
	)
	return nil
}

// executeStepWithRetry executes a step with retry logic
func (s *Saga[T]) executeStepWithRetry(ctx context.Context, step SagaStep[T], state *T) error {
	maxRetries := step.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Debug("Retrying saga step",
				zap.String("sagaID", s.id),
				zap.String("stepName", step.Name),
				zap.Int("attempt", attempt+1),
			)
			if err := s.sleep(ctx, step.RetryDelay); err != nil {
				return errors.Join(lastErr, err)
			}
		}

		err := step.Execute(ctx, state)
		if err == nil {
			return nil
		}
		lastErr = err
		if step.Retryable != nil && !step.Retryable(err) {
			break
		}
	}
	return lastErr
}

// compensate undoes steps [0, failed) in reverse order. Every compensation
// runs even if an earlier one fails.
func (s *Saga[T]) compensate(ctx context.Context, failed int, state *T) error {
	s.state = SagaStateCompensating
	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := step.Compensate(ctx, state); err != nil {
			s.logger.Error("Compensation step failed",
				zap.String("sagaID", s.id),
				zap.String("stepName", step.Name),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}

// GetState returns the current state of the saga
func (s *Saga[T]) GetState() SagaState {
	return s.state
}

// GetID returns the saga ID
func (s *Saga[T]) GetID() string {
	return s.id
}

// GetCurrentStep returns the current step index
func (s *Saga[T]) GetCurrentStep() int {
	return s.currentStep
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
