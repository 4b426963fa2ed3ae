package refresher

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sony/gobreaker"
)

// BackoffConfig controls exponential backoff behaviour.
type BackoffConfig struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

var errCircuitOpen = errors.New("circuit breaker open")

// executeWithResilience runs fn with retries, exponential backoff, and
// a circuit breaker. An open circuit aborts immediately; the breaker
// protects the weather server from a retry storm when it is down.
func executeWithResilience(cfg BackoffConfig, cb *gobreaker.CircuitBreaker, fn func() error) error {
	var attempt int
	var lastErr error

	for {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}

		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %v", errCircuitOpen, err)
		}

		lastErr = err
		if attempt >= cfg.MaxRetries {
			return lastErr
		}

		delay := cfg.InitialInterval * time.Duration(math.Pow(2, float64(attempt)))
		if cfg.MaxInterval > 0 && delay > cfg.MaxInterval {
			delay = cfg.MaxInterval
		}
		time.Sleep(delay)

		attempt++
	}
}
