package pipeline

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
)

// Step is one unit of pipeline work. DependsOn names steps that must
// reach Success earlier in the same run; RetryCount is the number of
// attempts before the step counts as failed (0 means one attempt).
type Step struct {
	Name       string
	DependsOn  []string
	RetryCount int
	Run        func(ctx context.Context) error
}

// Pipeline is a validated, topologically ordered set of steps
type Pipeline struct {
	steps    []Step
	position map[string]int
}

// New validates the steps and fixes their execution order. Dependencies
// must reference declared steps and must not form a cycle. Declaration
// order is kept wherever the dependency graph allows it.
func New(steps ...Step) (*Pipeline, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("pipeline needs at least one step")
	}

	byName := make(map[string]*Step, len(steps))
	for i := range steps {
		s := &steps[i]
		if s.Name == "" {
			return nil, fmt.Errorf("step %d has no name", i)
		}
		if s.Run == nil {
			return nil, fmt.Errorf("step %s has no run function", s.Name)
		}
		if _, dup := byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate step name %s", s.Name)
		}
		byName[s.Name] = s
	}
	for _, s := range steps {
		for _, dep := range s.DependsOn {
			if _, ok := byName[dep]; !ok {
				return nil, fmt.Errorf("step %s depends on unknown step %s", s.Name, dep)
			}
		}
	}

	ordered, err := sortSteps(steps, byName)
	if err != nil {
		return nil, err
	}

	position := make(map[string]int, len(ordered))
	for i, s := range ordered {
		position[s.Name] = i
	}

	return &Pipeline{steps: ordered, position: position}, nil
}

// sortSteps produces a depth-first topological order, visiting steps in
// declaration order so independent steps keep their relative position.
func sortSteps(steps []Step, byName map[string]*Step) ([]Step, error) {
	const (
		unvisited = 0
		visiting  = 1
		done      = 2
	)

	state := make(map[string]int, len(steps))
	ordered := make([]Step, 0, len(steps))

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case visiting:
			return fmt.Errorf("dependency cycle through step %s", name)
		}
		state[name] = visiting
		for _, dep := range byName[name].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[name] = done
		ordered = append(ordered, *byName[name])
		return nil
	}

	for _, s := range steps {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}

	return ordered, nil
}

// Steps returns the steps in execution order
func (p *Pipeline) Steps() []Step {
	out := make([]Step, len(p.steps))
	copy(out, p.steps)
	return out
}

// Position returns a step's index in the execution order
func (p *Pipeline) Position(name string) (int, bool) {
	pos, ok := p.position[name]
	return pos, ok
}

// RunStep executes one step with retries. Failed attempts back off
// exponentially (1s, 2s, 4s, ...); a cancelled context ends the wait
// early and surfaces the context error. Returns how many attempts ran
// and the final error, nil on success.
func (p *Pipeline) RunStep(ctx context.Context, name string) (int, error) {
	pos, ok := p.position[name]
	if !ok {
		return 0, fmt.Errorf("unknown step %s", name)
	}
	step := p.steps[pos]

	maxAttempts := step.RetryCount
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = step.Run(ctx)
		if lastErr == nil {
			return attempt, nil
		}

		log.WithFields(log.Fields{
			"step":    step.Name,
			"attempt": attempt,
			"error":   lastErr.Error(),
		}).Warn("Pipeline step attempt failed")

		if attempt == maxAttempts {
			break
		}

		backoff := time.Duration(1<<uint(attempt-1)) * time.Second
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return attempt, ctx.Err()
		}
	}

	return maxAttempts, lastErr
}
