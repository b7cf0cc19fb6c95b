package healthcheck

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRunAllHealthy(t *testing.T) {
	t.Parallel()

	runner := NewRunner(nil, time.Second,
		CheckerFunc{ID: "persistence", Fn: func(context.Context) error { return nil }},
		CheckerFunc{ID: "vector_store", Fn: func(context.Context) error { return nil }},
	)

	result := runner.Run(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, map[string]string{
		"persistence":  StatusOK,
		"vector_store": StatusOK,
	}, result.Components)
}

func TestRunReportsEveryComponentOnFailure(t *testing.T) {
	t.Parallel()

	runner := NewRunner(nil, time.Second,
		CheckerFunc{ID: "persistence", Fn: func(context.Context) error { return nil }},
		CheckerFunc{ID: "generation", Fn: func(context.Context) error { return errors.New("connection refused") }},
		CheckerFunc{ID: "gateway", Fn: func(context.Context) error { return nil }},
	)

	result := runner.Run(context.Background())
	assert.False(t, result.Healthy)
	// A failing probe never hides the remaining components.
	assert.Equal(t, map[string]string{
		"persistence": StatusOK,
		"generation":  StatusError,
		"gateway":     StatusOK,
	}, result.Components)
}

func TestRunAppliesProbeTimeout(t *testing.T) {
	t.Parallel()

	runner := NewRunner(nil, 10*time.Millisecond,
		CheckerFunc{ID: "slow", Fn: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}},
	)

	result := runner.Run(context.Background())
	assert.False(t, result.Healthy)
	assert.Equal(t, StatusError, result.Components["slow"])
}
