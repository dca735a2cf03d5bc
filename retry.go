package focusflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/aadithya-v/focusflow/internal/metrics"
	"github.com/aadithya-v/focusflow/store"
)

func newBreaker(name string, cfg BreakerConfig, log zerolog.Logger) *gobreaker.CircuitBreaker[any] {
	return gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name + "-store",
		MaxRequests: cfg.HalfOpenRequests,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.Set(float64(to))
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Store circuit breaker state changed")
		},
		// Absent keys are an expected outcome, not a store failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, store.ErrNotFound)
		},
	})
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, store.ErrWrongType),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// withRetry runs fn through the circuit breaker up to RetryAttempts times,
// waiting RetryBaseDelay after the first failure and doubling each time.
// The wait is cancelled with ctx.
func withRetry[T any](ctx context.Context, s *Service, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	delay := s.config.RetryBaseDelay

	var (
		out T
		err error
	)
retry:
	for attempt := 1; ; attempt++ {
		out, err = guarded(ctx, s, fn)
		if err == nil || !retryable(err) || attempt >= s.config.RetryAttempts {
			break
		}

		metrics.StoreRetries.WithLabelValues(op).Inc()
		s.log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Int("max_attempts", s.config.RetryAttempts).Dur("delay", delay).Msg("Retrying store operation")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
			break retry
		}
		delay *= 2
	}

	if errors.Is(err, store.ErrNotFound) {
		metrics.RecordStoreOperation(op, start, nil)
	} else {
		metrics.RecordStoreOperation(op, start, err)
	}
	return out, err
}

// guarded runs a single attempt through the circuit breaker, if enabled.
func guarded[T any](ctx context.Context, s *Service, fn func(ctx context.Context) (T, error)) (T, error) {
	if s.breaker == nil {
		return fn(ctx)
	}

	var out T
	_, err := s.breaker.Execute(func() (any, error) {
		var err error
		out, err = fn(ctx)
		return nil, err
	})
	return out, err
}

// exec is withRetry for operations without a result.
func (s *Service) exec(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	_, err := withRetry(ctx, s, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// unavailable wraps a write failure so callers can match ErrStoreUnavailable.
func unavailable(op string, err error) error {
	return fmt.Errorf("focusflow: %s: %w: %w", op, ErrStoreUnavailable, err)
}

// failOpen records a read or limit check that fell back to its default.
func (s *Service) failOpen(op string, err error) *zerolog.Event {
	metrics.FailOpenTotal.WithLabelValues(op).Inc()
	return s.log.Warn().Err(err).Str("op", op)
}
