package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrAlreadyInFlight marks tasks dropped because a run for the same sender is
// still active. No user-visible effect; the caller acknowledges and moves on.
var ErrAlreadyInFlight = errors.New("sender already being processed")

// Scheduler admits tasks and runs the pipeline off the request path. Enqueue
// returns immediately; completion is never awaited by the caller.
type Scheduler struct {
	runner     *Runner
	guard      *Inflight
	runTimeout time.Duration
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// NewScheduler creates a scheduler around the runner and admission guard.
func NewScheduler(log *slog.Logger, runner *Runner, guard *Inflight, runTimeout time.Duration) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if runTimeout <= 0 {
		runTimeout = 2 * time.Minute
	}
	return &Scheduler{
		runner:     runner,
		guard:      guard,
		runTimeout: runTimeout,
		logger:     log.With(slog.String("service", "scheduler")),
	}
}

// Enqueue admits the task and starts a background run. Returns
// ErrAlreadyInFlight when the sender is already being processed. The identity
// is released on every terminal state via deferred cleanup, so a failing
// stage can never leak a registry entry.
func (s *Scheduler) Enqueue(task Task) error {
	if !s.guard.Admit(task.Identity) {
		s.logger.Warn("task dropped, sender already in flight",
			slog.String("identity", task.Identity))
		return ErrAlreadyInFlight
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.guard.Release(task.Identity)

		ctx, cancel := context.WithTimeout(context.Background(), s.runTimeout)
		defer cancel()

		// Errors are already logged per stage with the sender identity;
		// nothing is propagated because nobody awaits the run.
		_ = s.runner.Process(ctx, task)
	}()
	return nil
}

// Drain waits for in-flight runs to finish, bounded by ctx.
func (s *Scheduler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
