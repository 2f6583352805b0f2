// Package sched runs the periodic processing trigger.
package sched

import (
	"context"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/attend/internal/appointment"
)

// Processor is the single operation the scheduler drives.
type Processor interface {
	ProcessDue(ctx context.Context) (*appointment.BatchResult, error)
}

// Runner invokes ProcessDue on a fixed interval until the context is
// cancelled. Manual triggers through the API may overlap a scheduled
// run; the engine tolerates that at per-row atomicity.
type Runner struct {
	proc     Processor
	interval time.Duration
	logger   log.Logger
}

// New creates a runner. Interval must be positive; callers disable
// scheduling by not starting a runner at all.
func New(proc Processor, interval time.Duration, logger log.Logger) *Runner {
	if logger == nil {
		logger = log.Nop()
	}
	return &Runner{proc: proc, interval: interval, logger: logger}
}

// Run blocks until ctx is cancelled. Each tick runs one batch; a slow
// batch delays the next tick rather than stacking runs.
func (r *Runner) Run(ctx context.Context) {
	r.logger.Info(ctx, "scheduler started", "interval", r.interval.String())

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			result, err := r.proc.ProcessDue(ctx)
			if err != nil {
				r.logger.Error(ctx, err, "scheduled batch failed")
				continue
			}
			if result.Total > 0 {
				r.logger.Info(ctx, "scheduled batch complete",
					"processed", result.Processed,
					"failed", result.Failed,
					"total", result.Total,
				)
			}
		}
	}
}
