package healthcheck

import (
	"context"
	"log/slog"
	"time"
)

const (
	// StatusOK indicates the dependency answered the probe.
	StatusOK = "ok"
	// StatusError indicates the probe failed.
	StatusError = "error"
)

// Checker probes one external dependency.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	ID string
	Fn func(ctx context.Context) error
}

func (c CheckerFunc) Name() string { return c.ID }

func (c CheckerFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// Result is the aggregated outcome of one probe pass.
type Result struct {
	Healthy    bool
	Components map[string]string
}

// Runner probes a fixed set of dependencies with a shared timeout.
type Runner struct {
	checkers []Checker
	timeout  time.Duration
	logger   *slog.Logger
}

// NewRunner creates a health probe runner.
func NewRunner(log *slog.Logger, timeout time.Duration, checkers ...Checker) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Runner{
		checkers: checkers,
		timeout:  timeout,
		logger:   log.With(slog.String("service", "healthcheck")),
	}
}

// Run probes every dependency. The result is healthy only when all probes
// pass; individual failures are reported per component, never as a panic or
// an early return.
func (r *Runner) Run(ctx context.Context) Result {
	result := Result{Healthy: true, Components: make(map[string]string, len(r.checkers))}
	for _, checker := range r.checkers {
		probeCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := checker.Check(probeCtx)
		cancel()
		if err != nil {
			r.logger.Warn("dependency probe failed",
				slog.String("component", checker.Name()),
				slog.Any("error", err))
			result.Components[checker.Name()] = StatusError
			result.Healthy = false
			continue
		}
		result.Components[checker.Name()] = StatusOK
	}
	return result
}
