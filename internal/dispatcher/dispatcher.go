// Package dispatcher manages worker fan-out over the job queue plus the
// housekeeping loops: the stall watchdog and terminal-job retention.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/citescout/citescout/internal/scholar"
	"github.com/citescout/citescout/internal/worker"
)

// Config controls the housekeeping loops.
type Config struct {
	// StallTimeout fails running jobs with no progress update for this long.
	StallTimeout time.Duration
	// Retention prunes terminal jobs finished longer ago than this.
	Retention time.Duration
	// HousekeepPeriod is the sweep interval (default 1m).
	HousekeepPeriod time.Duration
}

// Dispatcher fans out queue work to a pool of workers and runs the
// watchdog and retention sweeps.
type Dispatcher struct {
	queue    scholar.Queue
	jobStore scholar.JobStore
	workers  []*worker.Worker
	clock    scholar.Clock
	cfg      Config
	logger   *zap.Logger
}

// New creates a Dispatcher.
func New(
	queue scholar.Queue,
	jobStore scholar.JobStore,
	workers []*worker.Worker,
	clock scholar.Clock,
	cfg Config,
	logger *zap.Logger,
) *Dispatcher {
	if cfg.HousekeepPeriod <= 0 {
		cfg.HousekeepPeriod = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		queue:    queue,
		jobStore: jobStore,
		workers:  workers,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run starts all workers and the housekeeping loop, blocking until the
// context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.housekeep(ctx)
	}()
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item scholar.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

func (d *Dispatcher) housekeep(ctx context.Context) {
	ticker := time.NewTicker(d.cfg.HousekeepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Sweep(ctx)
		}
	}
}

// Sweep runs one watchdog and retention pass.
func (d *Dispatcher) Sweep(ctx context.Context) {
	now := d.clock.Now()
	if d.cfg.StallTimeout > 0 {
		d.failStalled(ctx, now)
	}
	if d.cfg.Retention > 0 {
		pruned, err := d.jobStore.PruneFinished(ctx, now.Add(-d.cfg.Retention))
		if err != nil {
			d.logger.Warn("job retention prune failed", zap.Error(err))
		} else if pruned > 0 {
			d.logger.Info("pruned finished jobs", zap.Int("count", pruned))
		}
	}
}

func (d *Dispatcher) failStalled(ctx context.Context, now time.Time) {
	stalled, err := d.jobStore.StalledJobs(ctx, now.Add(-d.cfg.StallTimeout))
	if err != nil {
		d.logger.Warn("stalled job scan failed", zap.Error(err))
		return
	}
	for _, job := range stalled {
		jobErr := &scholar.JobError{
			Code:    scholar.ErrCodeInternal,
			Message: fmt.Sprintf("no progress for %s, marked stalled", d.cfg.StallTimeout),
		}
		if err := d.jobStore.UpdateJobStatus(ctx, job.ID, scholar.JobStatusFailed, jobErr, nil); err != nil {
			d.logger.Warn("stalled job transition failed", zap.String("job_id", job.ID), zap.Error(err))
			continue
		}
		d.logger.Warn("stalled job failed by watchdog",
			zap.String("job_id", job.ID),
			zap.Time("last_update", job.UpdatedAt),
		)
	}
}
