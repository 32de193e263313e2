package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noop(ctx context.Context) error { return nil }

func TestNewRejectsInvalidSteps(t *testing.T) {
	_, err := New()
	assert.ErrorContains(t, err, "at least one step")

	_, err = New(Step{Name: "", Run: noop})
	assert.ErrorContains(t, err, "has no name")

	_, err = New(Step{Name: "load"})
	assert.ErrorContains(t, err, "has no run function")

	_, err = New(
		Step{Name: "load", Run: noop},
		Step{Name: "load", Run: noop},
	)
	assert.ErrorContains(t, err, "duplicate step name")

	_, err = New(Step{Name: "load", DependsOn: []string{"extract"}, Run: noop})
	assert.ErrorContains(t, err, "unknown step")
}

func TestNewDetectsDependencyCycles(t *testing.T) {
	_, err := New(
		Step{Name: "a", DependsOn: []string{"b"}, Run: noop},
		Step{Name: "b", DependsOn: []string{"a"}, Run: noop},
	)
	assert.ErrorContains(t, err, "dependency cycle")

	_, err = New(Step{Name: "a", DependsOn: []string{"a"}, Run: noop})
	assert.ErrorContains(t, err, "dependency cycle")
}

func TestNewOrdersStepsByDependencies(t *testing.T) {
	// Declared out of order on purpose
	p, err := New(
		Step{Name: "report", DependsOn: []string{"rollup"}, Run: noop},
		Step{Name: "rollup", DependsOn: []string{"aggregate"}, Run: noop},
		Step{Name: "aggregate", Run: noop},
	)
	require.NoError(t, err)

	steps := p.Steps()
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	assert.Equal(t, []string{"aggregate", "rollup", "report"}, names)

	pos, ok := p.Position("rollup")
	require.True(t, ok)
	assert.Equal(t, 1, pos)
}

func TestNewKeepsDeclarationOrderForIndependentSteps(t *testing.T) {
	p, err := New(
		Step{Name: "behavioral", Run: noop},
		Step{Name: "consolidate", Run: noop},
		Step{Name: "ratesensitive", Run: noop},
	)
	require.NoError(t, err)

	steps := p.Steps()
	assert.Equal(t, "behavioral", steps[0].Name)
	assert.Equal(t, "consolidate", steps[1].Name)
	assert.Equal(t, "ratesensitive", steps[2].Name)
}

func TestRunStepSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	p, err := New(Step{Name: "load", RetryCount: 3, Run: func(ctx context.Context) error {
		calls++
		return nil
	}})
	require.NoError(t, err)

	attempts, err := p.RunStep(context.Background(), "load")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRunStepRetriesUntilSuccess(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out retry backoff")
	}

	calls := 0
	p, err := New(Step{Name: "load", RetryCount: 3, Run: func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}})
	require.NoError(t, err)

	attempts, err := p.RunStep(context.Background(), "load")
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, 3, calls)
}

func TestRunStepExhaustsRetries(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out retry backoff")
	}

	calls := 0
	p, err := New(Step{Name: "load", RetryCount: 2, Run: func(ctx context.Context) error {
		calls++
		return errors.New("still broken")
	}})
	require.NoError(t, err)

	attempts, err := p.RunStep(context.Background(), "load")
	assert.ErrorContains(t, err, "still broken")
	assert.Equal(t, 2, attempts)
	assert.Equal(t, 2, calls)
}

func TestRunStepBackoffStartsAtOneSecond(t *testing.T) {
	if testing.Short() {
		t.Skip("waits out retry backoff")
	}

	p, err := New(Step{Name: "load", RetryCount: 2, Run: func(ctx context.Context) error {
		return errors.New("still broken")
	}})
	require.NoError(t, err)

	started := time.Now()
	_, err = p.RunStep(context.Background(), "load")
	elapsed := time.Since(started)

	assert.Error(t, err)
	// Two attempts with a single wait between them of 1s
	assert.GreaterOrEqual(t, elapsed, time.Second)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestRunStepDefaultsToSingleAttempt(t *testing.T) {
	calls := 0
	p, err := New(Step{Name: "load", Run: func(ctx context.Context) error {
		calls++
		return errors.New("broken")
	}})
	require.NoError(t, err)

	attempts, err := p.RunStep(context.Background(), "load")
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestRunStepStopsWaitingOnCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	p, err := New(Step{Name: "load", RetryCount: 5, Run: func(ctx context.Context) error {
		cancel()
		return errors.New("interrupted")
	}})
	require.NoError(t, err)

	// The backoff wait ends as soon as the context is cancelled
	attempts, err := p.RunStep(ctx, "load")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestRunStepUnknownStep(t *testing.T) {
	p, err := New(Step{Name: "load", Run: noop})
	require.NoError(t, err)

	_, err = p.RunStep(context.Background(), "missing")
	assert.ErrorContains(t, err, "unknown step")
}
