package janitor

import (
	"context"
	"log/slog"
	"time"

	"htmlurl/internal/metrics"
	"htmlurl/internal/storage"
)

// SweepResult summarizes one cleanup cycle.
type SweepResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// Janitor periodically removes artifacts older than MaxAge.
// It only goes through storage.ContentStore, so it never blocks foreground
// requests and tolerates artifacts vanishing mid-sweep.
type Janitor struct {
	store    storage.ContentStore
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics
}

// Option customizes a Janitor.
type Option func(*Janitor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(j *Janitor) { j.now = now }
}

// WithMetrics records sweep outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Janitor) { j.metrics = m }
}

// New creates a Janitor. log must not be nil.
func New(store storage.ContentStore, maxAge, interval time.Duration, log *slog.Logger, opts ...Option) *Janitor {
	j := &Janitor{
		store:    store,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		log:      log.With("component", "janitor"),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run sweeps immediately and then every interval until ctx is done.
func (j *Janitor) Run(ctx context.Context) {
	j.log.Info("janitor_started", "max_age", j.maxAge.String(), "interval", j.interval.String())

	t := time.NewTicker(j.interval)
	defer t.Stop()
	for {
		j.Sweep(ctx)
		select {
		case <-ctx.Done():
			j.log.Info("janitor_stopped")
			return
		case <-t.C:
		}
	}
}

// Sweep runs a single cycle. A failure on one artifact is logged and the sweep continues.
func (j *Janitor) Sweep(ctx context.Context) SweepResult {
	var res SweepResult

	artifacts, err := j.store.List(ctx)
	if err != nil {
		j.log.Error("janitor_list_failed", "error", err)
		return res
	}

	now := j.now()
	for _, a := range artifacts {
		if ctx.Err() != nil {
			break
		}
		res.Scanned++

		age := now.Sub(a.CreatedAt)
		if age <= j.maxAge {
			continue
		}
		if err := j.store.Delete(ctx, a.ID, a.Kind); err != nil {
			res.Failed++
			j.log.Error("janitor_delete_failed", "filename", a.Filename(), "error", err)
			continue
		}
		res.Deleted++
		j.log.Info("janitor_deleted", "filename", a.Filename(), "age_hours", age.Hours())
	}

	j.metrics.JanitorSweep(res.Deleted, res.Failed)
	if res.Deleted > 0 || res.Failed > 0 {
		j.log.Info("janitor_sweep_completed", "scanned", res.Scanned, "deleted", res.Deleted, "failed", res.Failed)
	}
	return res
}
