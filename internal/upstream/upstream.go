// Package upstream holds the pieces shared by the outbound API clients:
// circuit breakers, the fixed courtesy pause and request metrics.
package upstream

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/starford/paperfeed/internal/metrics"
)

// NewBreaker returns a circuit breaker that opens after five consecutive
// failures and probes again after timeout.
func NewBreaker[T any](name string, timeout time.Duration, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !Transient(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
		},
	})
}

// StatusError is implemented by errors that carry an upstream HTTP status.
type StatusError interface {
	error
	StatusCode() int
}

// abandonedError is a request error observed after the caller's context
// was already done.
type abandonedError struct {
	err error
}

func (e *abandonedError) Error() string { return e.err.Error() }
func (e *abandonedError) Unwrap() error { return e.err }

// Abandoned marks err as caused by the caller when ctx is done, so it
// does not count against a circuit breaker. Other errors pass through.
func Abandoned(ctx context.Context, err error) error {
	if err == nil || ctx.Err() == nil {
		return err
	}
	return &abandonedError{err: err}
}

// Transient reports whether err should count against a circuit breaker:
// transport failures, 5xx and 429. Client errors and requests abandoned
// by the caller do not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var ae *abandonedError
	if errors.As(err, &ae) || errors.Is(err, context.Canceled) {
		return false
	}
	var se StatusError
	if errors.As(err, &se) {
		code := se.StatusCode()
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}
	return true
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// Pause blocks for d or until ctx is done. It is unconditional: callers
// invoke it before every outbound request regardless of recent traffic.
func Pause(ctx context.Context, d time.Duration) error {
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

// Observe records the outcome and latency of one outbound request.
func Observe(service, result string, start time.Time) {
	metrics.UpstreamRequestsTotal.WithLabelValues(service, result).Inc()
	metrics.UpstreamRequestDuration.WithLabelValues(service).Observe(time.Since(start).Seconds())
}
