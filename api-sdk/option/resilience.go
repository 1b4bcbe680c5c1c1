package option

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var errServerFailure = errors.New("server failure")

// NewCircuitBreaker opens after failures consecutive failed requests and
// lets a single trial request through once cooldown has passed.
func NewCircuitBreaker(name string, failures uint32, cooldown time.Duration) *gobreaker.CircuitBreaker {
	if failures == 0 {
		failures = 5
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
	})
}

// WithCircuitBreaker fails requests fast while cb is open. Transport errors
// and 5xx responses count as failures; 4xx responses do not.
func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) RequestOption {
	return WithMiddleware(func(r *http.Request, next MiddlewareNext) (*http.Response, error) {
		var resp *http.Response
		_, err := cb.Execute(func() (any, error) {
			var err error
			resp, err = next(r)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode >= http.StatusInternalServerError {
				return nil, errServerFailure
			}
			return nil, nil
		})

		switch {
		case errors.Is(err, errServerFailure):
			return resp, nil
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return nil, fmt.Errorf("requestoption: %s: %w", cb.Name(), err)
		}
		return resp, err
	})
}

// WithRateLimit delays requests so that no more than limiter allows are
// sent. A cancelled context aborts the wait.
func WithRateLimit(limiter *rate.Limiter) RequestOption {
	return WithMiddleware(func(r *http.Request, next MiddlewareNext) (*http.Response, error) {
		if err := limiter.Wait(r.Context()); err != nil {
			return nil, fmt.Errorf("requestoption: rate limit: %w", err)
		}
		return next(r)
	})
}
