// Package worker runs the periodic email jobs: drip sequence advancement,
// retries of stalled activations and dispatch of scheduled emails. It is
// decoupled from the HTTP layer: the api package holds narrow interfaces and
// never depends on the concrete Runner or Advancer types.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCycleBusy is returned by RunCycle when another cycle holds the lock.
var ErrCycleBusy = errors.New("worker: another cycle is running")

const cycleLockKey = "worker:cycle"

// ─── RUNNER ───────────────────────────────────────────────────────────────────

// RunnerConfig holds tuning parameters for the Runner. All fields have
// sensible defaults if zero-valued; call DefaultRunnerConfig() to get them.
type RunnerConfig struct {
	// PollInterval is how often a cycle runs. Default: 5 minutes.
	PollInterval time.Duration

	// CycleTimeout bounds a whole cycle and is also the lock TTL.
	// Default: 4 minutes.
	CycleTimeout time.Duration
}

// DefaultRunnerConfig returns safe production defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		PollInterval: 5 * time.Minute,
		CycleTimeout: 4 * time.Minute,
	}
}

// Runner invokes the Advancer on a fixed interval. The same cycle can be
// triggered on demand through RunCycle (the admin endpoint does this for
// external schedulers).
type Runner struct {
	advancer *Advancer
	locker   Locker
	cfg      RunnerConfig
	logger   *slog.Logger

	// mu keeps ticker and on-demand cycles in this process from overlapping;
	// locker does the same across processes.
	mu sync.Mutex
	wg sync.WaitGroup
}

// NewRunner constructs a Runner. A nil locker means single-replica mode.
func NewRunner(advancer *Advancer, locker Locker, cfg RunnerConfig, logger *slog.Logger) *Runner {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultRunnerConfig().PollInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = DefaultRunnerConfig().CycleTimeout
	}
	if locker == nil {
		locker = NopLocker{}
	}

	return &Runner{
		advancer: advancer,
		locker:   locker,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start runs a cycle immediately and then every PollInterval. It blocks
// until ctx is cancelled. Call it in a goroutine from main:
//
//	go runner.Start(ctx)
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("worker: starting", "poll_interval", r.cfg.PollInterval)

	r.wg.Add(1)
	go r.poll(ctx)

	r.wg.Wait()
	r.logger.Info("worker: stopped")
}

func (r *Runner) poll(ctx context.Context) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollOnce(ctx)
		}
	}
}

func (r *Runner) pollOnce(ctx context.Context) {
	_, err := r.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleBusy):
		r.logger.Debug("worker: cycle skipped, lock held elsewhere")
	case err != nil:
		r.logger.Error("worker: cycle failed", "error", err)
	}
}

// RunCycle runs one Advancer pass under the cycle lock.
func (r *Runner) RunCycle(ctx context.Context) (CycleResult, error) {
	if !r.mu.TryLock() {
		cyclesTotal.WithLabelValues("busy").Inc()
		return CycleResult{}, ErrCycleBusy
	}
	defer r.mu.Unlock()

	release, ok, err := r.locker.TryLock(ctx, cycleLockKey, r.cfg.CycleTimeout)
	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return CycleResult{}, err
	}
	if !ok {
		cyclesTotal.WithLabelValues("busy").Inc()
		return CycleResult{}, ErrCycleBusy
	}
	defer release()

	cycleCtx, cancel := context.WithTimeout(ctx, r.cfg.CycleTimeout)
	defer cancel()

	start := time.Now()
	res, err := r.advancer.RunOnce(cycleCtx)
	cycleDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		cyclesTotal.WithLabelValues("error").Inc()
		return res, err
	}
	cyclesTotal.WithLabelValues("ok").Inc()
	return res, nil
}
