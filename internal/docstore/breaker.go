package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker placed in front of a Store.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32        // consecutive failures before opening
	Timeout          time.Duration // time spent open before probing again
	MaxRequests      uint32        // probes allowed while half-open
}

// Breaker wraps a Store so that reads and writes fail fast with
// ErrCircuitOpen while the backing store keeps failing. Subscriptions pass
// straight through.
type Breaker struct {
	next Store
	cb   *gobreaker.CircuitBreaker[Snapshot]
}

// NewBreaker wraps next with a circuit breaker.
func NewBreaker(next Store, cfg BreakerConfig) *Breaker {
	if cfg.Name == "" {
		cfg.Name = "docstore"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("document store breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
		// Caller cancellation says nothing about store health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	}
	return &Breaker{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[Snapshot](settings),
	}
}

func (b *Breaker) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	snap, err := b.cb.Execute(func() (Snapshot, error) {
		return b.next.Get(ctx, collection, id)
	})
	return snap, b.translate(err)
}

func (b *Breaker) Put(ctx context.Context, collection, id string, fields map[string]any, opts PutOptions) error {
	_, err := b.cb.Execute(func() (Snapshot, error) {
		return Snapshot{}, b.next.Put(ctx, collection, id, fields, opts)
	})
	return b.translate(err)
}

func (b *Breaker) Subscribe(ctx context.Context, collection, id string, fn Listener) (func(), error) {
	return b.next.Subscribe(ctx, collection, id, fn)
}

// State reports the breaker state ("closed", "half-open", "open").
func (b *Breaker) State() string {
	return b.cb.State().String()
}

func (b *Breaker) translate(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", ErrCircuitOpen, err)
	}
	return err
}
