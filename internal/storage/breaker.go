package storage

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"

	"github.com/scrypster/confidant/pkg/types"
)

// ErrCircuitOpen is returned when the persistence circuit breaker is open
// and rejects calls to prevent a failing backend from slowing turns.
var ErrCircuitOpen = errors.New("persistence circuit breaker is open")

// BreakerConfig holds circuit breaker tuning for the persistence layer.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing test
	// requests. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of successes required in
	// half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// BreakerStore wraps an EngagementStore with a circuit breaker so a
// failing or slow backend degrades to in-memory operation instead of
// blocking the decision path. ErrNotFound is a normal outcome and never
// counts as a breaker failure.
type BreakerStore struct {
	inner   EngagementStore
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerStore wraps inner with the default breaker configuration.
func NewBreakerStore(inner EngagementStore) *BreakerStore {
	return NewBreakerStoreWithConfig(inner, BreakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	})
}

// NewBreakerStoreWithConfig wraps inner with a custom breaker configuration.
func NewBreakerStoreWithConfig(inner EngagementStore, cfg BreakerConfig) *BreakerStore {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HalfOpenMaxSuccesses == 0 {
		cfg.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        "EngagementStore",
		MaxRequests: cfg.HalfOpenMaxSuccesses,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("storage: circuit %s -> %s", from, to)
		},
	}

	return &BreakerStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// execute runs fn through the breaker, mapping ErrNotFound to a
// successful call so record absence never trips the circuit. notFound
// reports whether fn observed absence.
func (b *BreakerStore) execute(fn func() (interface{}, error)) (result interface{}, notFound bool, err error) {
	result, err = b.breaker.Execute(func() (interface{}, error) {
		res, innerErr := fn()
		if errors.Is(innerErr, ErrNotFound) {
			notFound = true
			return res, nil
		}
		return res, innerErr
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, false, ErrCircuitOpen
	}
	return result, notFound, err
}

// Load fetches the record through the breaker. Backend failures and an
// open circuit surface as errors; callers fall back to default state.
func (b *BreakerStore) Load(ctx context.Context, userID string) (*types.EngagementRecord, error) {
	result, notFound, err := b.execute(func() (interface{}, error) {
		return b.inner.Load(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, ErrNotFound
	}
	return result.(*types.EngagementRecord), nil
}

// Save writes the record through the breaker.
func (b *BreakerStore) Save(ctx context.Context, rec *types.EngagementRecord) error {
	_, _, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.Save(ctx, rec)
	})
	return err
}

// Delete removes the record through the breaker.
func (b *BreakerStore) Delete(ctx context.Context, userID string) error {
	_, notFound, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.Delete(ctx, userID)
	})
	if err != nil {
		return err
	}
	if notFound {
		return ErrNotFound
	}
	return nil
}

// Close closes the wrapped store directly; shutdown is not gated by
// breaker state.
func (b *BreakerStore) Close() error { return b.inner.Close() }

// State returns the breaker state: "closed", "open", or "half-open".
func (b *BreakerStore) State() string {
	switch b.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
