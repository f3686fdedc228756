package engine

import "context"

// StepFunc is the body of one step-graph node. It receives the
// accumulated workflow state and returns the updated state (opaque to
// the engine, serialized verbatim into the next checkpoint) along with
// an optional progress reporter the step may call zero or more times.
type StepFunc func(ctx context.Context, state map[string]any, progress func(fraction float64)) (map[string]any, error)

// Step is one node in a workflow's step graph. Dependencies names other
// step IDs in the same graph that must complete first; a step with no
// dependencies may run as soon as the engine schedules it.
type Step struct {
	ID           string
	Name         string
	Dependencies []string
	Run          StepFunc
	// Interrupt, if set, causes the engine to pause after this step
	// completes and await an external response keyed by interrupt id
	// before continuing to any step that depends on it.
	Interrupt bool
}

// Graph is an ordered set of steps describing one workflow run. Steps
// may be declared in any order; dependency resolution is computed by
// the engine, not by declaration order.
type Graph struct {
	Steps []Step
	// ContinueOnError, when true, lets sibling steps keep running after
	// one step fails instead of the engine cancelling them.
	ContinueOnError bool
	// FanOut bounds how many independent steps run concurrently.
	// Zero means the engine's configured default applies.
	FanOut int
}

// HasDependency reports whether step id depends on depID.
func (g Graph) HasDependency(id, depID string) bool {
	for _, s := range g.Steps {
		if s.ID == id {
			for _, d := range s.Dependencies {
				if d == depID {
					return true
				}
			}
		}
	}
	return false
}

// byID indexes steps for quick lookup during scheduling.
func (g Graph) byID() map[string]Step {
	m := make(map[string]Step, len(g.Steps))
	for _, s := range g.Steps {
		m[s.ID] = s
	}
	return m
}

// ready returns the steps whose dependencies are all in done and which
// are not themselves already in done.
func (g Graph) ready(done map[string]bool) []Step {
	var out []Step
	for _, s := range g.Steps {
		if done[s.ID] {
			continue
		}
		ok := true
		for _, dep := range s.Dependencies {
			if !done[dep] {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, s)
		}
	}
	return out
}
