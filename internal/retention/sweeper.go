// Package retention deletes uploads older than the configured lifetime.
package retention

import (
	"context"
	"time"

	"docparse-backend/internal/shared/metrics"
	"docparse-backend/internal/shared/telemetry"
)

// Sweepable removes stored objects last modified before a cutoff.
type Sweepable interface {
	Sweep(ctx context.Context, before time.Time) (int, error)
}

// Sweeper periodically removes uploads older than Retention.
type Sweeper struct {
	Store     Sweepable
	Retention time.Duration
	Interval  time.Duration
	Now       func() time.Time
}

// Enabled reports whether a positive retention is configured.
func (s *Sweeper) Enabled() bool {
	return s != nil && s.Store != nil && s.Retention > 0
}

// RunOnce performs a single sweep and returns the number of removed uploads.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	cutoff := now().Add(-s.Retention)
	removed, err := s.Store.Sweep(ctx, cutoff)
	metrics.AddSwept(removed)
	fields := map[string]any{
		"removed": removed,
		"cutoff":  cutoff.UTC().Format(time.RFC3339),
	}
	if err != nil {
		fields["error"] = err
		telemetry.Error("retention.sweep", fields)
		return removed, err
	}
	telemetry.Info("retention.sweep", fields)
	return removed, nil
}

// Start runs the sweeper in the background when enabled and reports
// whether it did.
func (s *Sweeper) Start(ctx context.Context) bool {
	if !s.Enabled() {
		return false
	}
	telemetry.Info("retention.started", map[string]any{
		"retention": s.Retention.String(),
		"interval":  s.Interval.String(),
	})
	go s.Run(ctx)
	return true
}

// Run sweeps immediately and then every Interval until ctx is done. It
// returns at once when retention is disabled.
func (s *Sweeper) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	_, _ = s.RunOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.RunOnce(ctx)
		}
	}
}
