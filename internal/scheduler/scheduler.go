// Package scheduler runs recurring maintenance jobs with at-most-one
// concurrent execution per job name across a fleet of worker processes.
// Leader election is delegated to the lock manager; a worker that fails to
// acquire a job's lock simply skips that tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"corpusd/internal/locks"
)

// Job defines one recurring maintenance task. Lease must exceed Interval's
// renewal period; bodies that may outlast one lease keep leadership through
// the renewal sub-loop and must stop when their context is canceled.
type Job struct {
	Name     string
	Interval time.Duration
	Lease    time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler owns one polling loop per registered job. All leadership state
// lives in per-job run frames; there are no ambient flags.
type Scheduler struct {
	locks  *locks.Manager
	holder string
	logger *slog.Logger

	mu     sync.Mutex
	jobs   []Job
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. The holder identity is unique per process so
// lock rows attribute leadership to a specific worker.
func New(lockMgr *locks.Manager, logger *slog.Logger) *Scheduler {
	hostname, _ := os.Hostname()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		locks:  lockMgr,
		holder: fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8]),
		logger: logger,
	}
}

// Holder returns this worker's lock holder identity.
func (s *Scheduler) Holder() string { return s.holder }

// Register adds a job definition. Must be called before Start.
func (s *Scheduler) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
}

// Start launches one polling goroutine per registered job and returns.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		s.wg.Add(1)
		go func(j Job) {
			defer s.wg.Done()
			s.runLoop(ctx, j)
		}(job)
	}
	s.logger.Info("scheduler started", "holder", s.holder, "jobs", len(s.jobs))
}

// Stop cancels all job loops and waits for them to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// runLoop ticks at the job's interval and attempts an execution per tick.
// Lock contention degrades to skipping the tick; it is never retried
// within the same tick and never logged as an error.
func (s *Scheduler) runLoop(ctx context.Context, job Job) {
	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tryRun(ctx, job)
		}
	}
}

func (s *Scheduler) tryRun(ctx context.Context, job Job) {
	err := s.locks.Acquire(ctx, job.Name, s.holder, job.Lease)
	if errors.Is(err, locks.ErrNotAcquired) {
		s.logger.Debug("skipping tick, lock held elsewhere", "job", job.Name)
		return
	}
	if err != nil {
		s.logger.Error("lock acquire failed", "job", job.Name, "error", err)
		return
	}

	start := time.Now()
	s.logger.Info("job started", "job", job.Name, "holder", s.holder)

	jobCtx, cancel := context.WithCancel(ctx)
	renewDone := make(chan struct{})
	go func() {
		defer close(renewDone)
		s.renewLoop(jobCtx, cancel, job)
	}()

	runErr := job.Run(jobCtx)

	cancel()
	<-renewDone

	// Release regardless of the body's outcome. ErrNotHeld here means the
	// lease lapsed mid-run and someone else may own the lock now.
	if err := s.locks.Release(context.WithoutCancel(ctx), job.Name, s.holder); err != nil && !errors.Is(err, locks.ErrNotHeld) {
		s.logger.Error("lock release failed", "job", job.Name, "error", err)
	}

	if runErr != nil {
		s.logger.Error("job failed", "job", job.Name, "duration", time.Since(start), "error", runErr)
	} else {
		s.logger.Info("job finished", "job", job.Name, "duration", time.Since(start))
	}
}

// renewLoop extends the lease at half its duration while the job body
// runs. Losing the lease is fatal to this run: the job context is canceled
// so the body stops assuming leadership.
func (s *Scheduler) renewLoop(ctx context.Context, cancelJob context.CancelFunc, job Job) {
	period := job.Lease / 2
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.locks.Renew(ctx, job.Name, s.holder, job.Lease); err != nil {
				s.logger.Warn("lease renewal failed, abandoning run", "job", job.Name, "error", err)
				cancelJob()
				return
			}
		}
	}
}
