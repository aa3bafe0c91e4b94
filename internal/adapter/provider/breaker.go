package provider

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig controls the per-source circuit breaker.
type BreakerConfig struct {
	MaxFailures uint32
	OpenTimeout time.Duration
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{MaxFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerDoer stops calling a source after repeated transport failures or 5xx answers.
// It never retries: each Do is at most one request.
type BreakerDoer struct {
	next    Doer
	breaker *gobreaker.CircuitBreaker
}

// serverError marks a 5xx response as a breaker failure while still handing the
// response back, so callers can report the real status code.
type serverError struct {
	resp *http.Response
}

func (e *serverError) Error() string {
	return fmt.Sprintf("HTTP %d", e.resp.StatusCode)
}

func NewBreakerDoer(name string, next Doer, cfg BreakerConfig) *BreakerDoer {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("⚡ Circuit breaker '%s' changed from %s to %s", name, from, to)
		},
	}

	return &BreakerDoer{
		next:    orDefault(next),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (b *BreakerDoer) Do(req *http.Request) (*http.Response, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		resp, err := b.next.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return resp, &serverError{resp: resp}
		}
		return resp, nil
	})

	var se *serverError
	if errors.As(err, &se) {
		return se.resp, nil
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("circuit breaker is open for %s: %w", b.breaker.Name(), err)
		}
		return nil, err
	}

	return result.(*http.Response), nil
}

// State reports whether the breaker is closed, half-open or open.
func (b *BreakerDoer) State() gobreaker.State {
	return b.breaker.State()
}
