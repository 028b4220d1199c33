package dynamodb

import (
	"context"
	"errors"
	"io"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RetryPolicy bounds the retries applied to transient transport failures.
type RetryPolicy struct {
	MaxAttempts   int           // total attempts, including the first
	BaseDelay     time.Duration // delay before the second attempt
	MaxDelay      time.Duration // cap for any single delay
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultRetryPolicy returns the engine defaults: 3 attempts, 50ms doubling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BaseDelay:     50 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = d.MaxDelay
	}
	if p.BackoffFactor < 1 {
		p.BackoffFactor = d.BackoffFactor
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	return p
}

// delay returns the wait before attempt+1 (attempt is zero based).
func (p RetryPolicy) delay(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	if p.JitterFactor > 0 {
		d += d * p.JitterFactor * (rand.Float64()*2 - 1)
	}
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// IsTransientError reports whether err is a transport-level failure worth
// retrying. Conditional check failures and validation errors never are.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var (
		throughput  *types.ProvisionedThroughputExceededException
		requestLim  *types.RequestLimitExceeded
		internal    *types.InternalServerError
		conditional *types.ConditionalCheckFailedException
	)
	switch {
	case errors.As(err, &conditional):
		return false
	case errors.As(err, &throughput), errors.As(err, &requestLim), errors.As(err, &internal):
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ServiceUnavailable", "Throttling", "ThrottlingException", "RequestTimeout", "RequestLimitExceeded":
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// newBreaker builds the circuit breaker guarding the table. Only transient
// failures count against it, so conflicts and missing keys never trip it.
func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return !IsTransientError(err)
		},
	})
}

func isBreakerRejection(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
