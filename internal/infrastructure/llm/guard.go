package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// guard throttles outbound model calls and stops hammering a failing backend.
type guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func newGuard(name string, requestsPerSecond float64, logger *slog.Logger) *guard {
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("llm circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return &guard{
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
	}
}

func (g *guard) do(ctx context.Context, call func() (string, error)) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for rate limiter: %w", err)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return call()
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}
