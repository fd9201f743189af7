package retention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	cutoffs []time.Time
	removed int
	err     error
}

func (f *fakeStore) Sweep(ctx context.Context, before time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return f.removed, f.err
}

func (f *fakeStore) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{removed: 3}
	s := &Sweeper{Store: store, Retention: 24 * time.Hour, Now: func() time.Time { return now }}

	removed, err := s.RunOnce(context.Background())
	if err != nil || removed != 3 {
		t.Fatalf("RunOnce = %d, %v", removed, err)
	}
	if want := now.Add(-24 * time.Hour); !store.cutoffs[0].Equal(want) {
		t.Fatalf("cutoff = %v, want %v", store.cutoffs[0], want)
	}
}

func TestRunOnceReturnsStoreError(t *testing.T) {
	s := &Sweeper{Store: &fakeStore{err: errors.New("denied")}, Retention: time.Hour}
	if _, err := s.RunOnce(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunDisabledReturnsImmediately(t *testing.T) {
	store := &fakeStore{}
	done := make(chan struct{})
	go func() {
		(&Sweeper{Store: store}).Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run should return when retention is zero")
	}
	if store.calls() != 0 {
		t.Fatalf("disabled sweeper must not sweep")
	}
}

func TestRunSweepsUntilCancelled(t *testing.T) {
	store := &fakeStore{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		(&Sweeper{Store: store, Retention: time.Hour, Interval: 5 * time.Millisecond}).Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for store.calls() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected repeated sweeps, got %d", store.calls())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
}

func TestStartOnlyWhenEnabled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if (&Sweeper{Store: &fakeStore{}}).Start(ctx) {
		t.Fatalf("disabled sweeper should not start")
	}

	store := &fakeStore{}
	if !(&Sweeper{Store: store, Retention: time.Hour, Interval: time.Hour}).Start(ctx) {
		t.Fatalf("expected sweeper to start")
	}
	deadline := time.After(2 * time.Second)
	for store.calls() == 0 {
		select {
		case <-deadline:
			t.Fatalf("expected an initial sweep")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
