package docstore

import (
	"context"
	"errors"
	"testing"
	"time"
)

type flakyStore struct {
	err   error
	calls int
}

func (f *flakyStore) Get(_ context.Context, collection, id string) (Snapshot, error) {
	f.calls++
	return Snapshot{Collection: collection, ID: id}, f.err
}

func (f *flakyStore) Put(_ context.Context, _, _ string, _ map[string]any, _ PutOptions) error {
	f.calls++
	return f.err
}

func (f *flakyStore) Subscribe(_ context.Context, _, _ string, _ Listener) (func(), error) {
	return func() {}, nil
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	inner := &flakyStore{err: errors.New("disk full")}
	b := NewBreaker(inner, BreakerConfig{FailureThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := b.Put(ctx, "profiles", "u1", map[string]any{"a": 1}, PutOptions{Merge: true})
		if err == nil || errors.Is(err, ErrCircuitOpen) {
			t.Fatalf("call %d: expected pass-through failure, got %v", i, err)
		}
	}

	err := b.Put(ctx, "profiles", "u1", map[string]any{"a": 1}, PutOptions{Merge: true})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 3 {
		t.Errorf("inner store called %d times, want 3", inner.calls)
	}
	if b.State() != "open" {
		t.Errorf("State() = %q, want open", b.State())
	}
}

func TestBreaker_CancellationDoesNotTrip(t *testing.T) {
	inner := &flakyStore{err: context.Canceled}
	b := NewBreaker(inner, BreakerConfig{FailureThreshold: 1, Timeout: time.Minute})

	for i := 0; i < 3; i++ {
		if _, err := b.Get(context.Background(), "profiles", "u1"); !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	}
	if b.State() != "closed" {
		t.Errorf("State() = %q, want closed", b.State())
	}
}

func TestBreaker_PassesThroughSuccess(t *testing.T) {
	ds := openTestDocStore(t)
	b := NewBreaker(ds, BreakerConfig{})
	ctx := context.Background()

	if err := b.Put(ctx, "profiles", "u1", map[string]any{"name": "x"}, PutOptions{}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snap, err := b.Get(ctx, "profiles", "u1")
	if err != nil || !snap.Exists {
		t.Fatalf("Get = %+v, %v", snap, err)
	}
}
