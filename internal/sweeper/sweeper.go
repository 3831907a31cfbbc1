// Package sweeper runs the periodic SLA escalation scan. It is the only
// component that mutates exceptions without a caller-supplied request, so the
// handle is explicitly owned: main starts Run in a group and stops it by
// cancelling the context. No package-level state.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"ems/internal/platform/metrics"
)

// DefaultInterval is the tick period when config leaves it unset.
const DefaultInterval = time.Minute

// Engine is the slice of the lifecycle service the sweeper drives.
type Engine interface {
	ListOverdueIDs(ctx context.Context, now time.Time) ([]int64, error)
	EscalateOverdue(ctx context.Context, id int64, now time.Time) (bool, error)
}

// Sweeper escalates overdue exceptions on a timer.
type Sweeper struct {
	engine   Engine
	interval time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

func New(engine Engine, interval time.Duration, m *metrics.Metrics, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// Run ticks until the context is cancelled. Sweep errors are logged and the
// loop continues; the next tick retries whatever remains overdue.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info("sla sweeper started", "interval", s.interval.String())
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sla sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx, s.now()); err != nil {
				s.logger.ErrorContext(ctx, "sla sweep failed", "error", err.Error())
			}
		}
	}
}

// SweepOnce performs one scan: candidates are selected id-ascending, then each
// row is escalated in its own transaction with the overdue predicate
// re-checked inside it. A failing row is logged and skipped so the remaining
// candidates still get escalated; the empty candidate set performs no writes.
// Also callable directly, which is how tests drive it.
func (s *Sweeper) SweepOnce(ctx context.Context, now time.Time) (int, error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveSweep(time.Since(start).Seconds())
	}()

	ids, err := s.engine.ListOverdueIDs(ctx, now)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	escalated := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return escalated, err
		}
		done, err := s.engine.EscalateOverdue(ctx, id, now)
		if err != nil {
			s.logger.ErrorContext(ctx, "escalation failed, skipping row",
				"exception_id", id,
				"error", err.Error(),
			)
			continue
		}
		if done {
			escalated++
		}
	}
	if escalated > 0 {
		s.logger.InfoContext(ctx, "sla sweep escalated overdue exceptions", "count", escalated)
	}
	return escalated, nil
}
