package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu          sync.Mutex
	executions  map[string]Execution
	checkpoints map[string]Checkpoint
}

func newMemStore() *memStore {
	return &memStore{executions: map[string]Execution{}, checkpoints: map[string]Checkpoint{}}
}

func (s *memStore) SaveExecution(_ context.Context, e Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *memStore) UpdateExecution(_ context.Context, e Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executions[e.ID] = e
	return nil
}

func (s *memStore) SaveCheckpoint(_ context.Context, c Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[c.ID] = c
	return nil
}

func (s *memStore) LoadCheckpoint(_ context.Context, id string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoints[id], nil
}

func (s *memStore) get(id string) Execution {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions[id]
}

type fakeLocker struct {
	mu     sync.Mutex
	locked map[string]bool
}

func newFakeLocker() *fakeLocker { return &fakeLocker{locked: map[string]bool{}} }

func (l *fakeLocker) TryLock(specID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[specID] {
		return nil, &apperrBundleBusyStub{specID}
	}
	l.locked[specID] = true
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.locked, specID)
	}, nil
}

// apperrBundleBusyStub avoids importing apperr into the test for the
// contention path, where only error-ness is asserted.
type apperrBundleBusyStub struct{ specID string }

func (e *apperrBundleBusyStub) Error() string { return "bundle busy: " + e.specID }

func noopStep(id, name string, deps ...string) Step {
	return Step{
		ID:           id,
		Name:         name,
		Dependencies: deps,
		Run: func(_ context.Context, state map[string]any, progress func(float64)) (map[string]any, error) {
			progress(1.0)
			state[id] = true
			return state, nil
		},
	}
}

func drain(t *testing.T, events <-chan Event, timeout time.Duration) []Event {
	t.Helper()
	var out []Event
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
			if ev.IsTerminal() {
				return out
			}
		case <-deadline:
			t.Fatal("timed out waiting for terminal event")
			return out
		}
	}
}

func TestExecuteRunsLinearGraphToCompletion(t *testing.T) {
	store := newMemStore()
	eng := New(Config{}, store, nil, nil)

	graph := Graph{Steps: []Step{
		noopStep("a", "first"),
		noopStep("b", "second", "a"),
	}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)

	events := drain(t, eng.Events(id), 2*time.Second)
	require.NotEmpty(t, events)
	assert.Equal(t, EventWorkflowCompleted, events[len(events)-1].Type)

	exec := store.get(id)
	assert.Equal(t, StatusCompleted, exec.Status)
	assert.Equal(t, 2, exec.StepCount)
}

func TestExecuteRunsIndependentStepsConcurrently(t *testing.T) {
	store := newMemStore()
	eng := New(Config{DefaultFanOut: 4}, store, nil, nil)

	graph := Graph{Steps: []Step{
		noopStep("a", "left"),
		noopStep("b", "right"),
		noopStep("c", "join", "a", "b"),
	}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)

	events := drain(t, eng.Events(id), 2*time.Second)
	assert.Equal(t, EventWorkflowCompleted, events[len(events)-1].Type)
}

func TestExecuteAssignsUniqueStepIndicesUnderFanOut(t *testing.T) {
	store := newMemStore()
	eng := New(Config{DefaultFanOut: 8}, store, nil, nil)

	steps := make([]Step, 0, 16)
	for i := 0; i < 16; i++ {
		steps = append(steps, noopStep(fmt.Sprintf("s%d", i), fmt.Sprintf("step %d", i)))
	}
	graph := Graph{Steps: steps, FanOut: 8}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)
	events := drain(t, eng.Events(id), 2*time.Second)
	assert.Equal(t, EventWorkflowCompleted, events[len(events)-1].Type)

	store.mu.Lock()
	seen := map[int]int{}
	for _, c := range store.checkpoints {
		// Only post-step checkpoints carry CompletedStepIDs; each one's
		// StepIndex is that step's uniquely assigned counter value.
		if c.ExecutionID == id && len(c.CompletedStepIDs) > 0 {
			seen[c.StepIndex]++
		}
	}
	store.mu.Unlock()

	// 16 steps dispatched concurrently in one fan-out wave must still
	// land on 16 distinct, strictly monotonic step indices, none
	// assigned to more than one step.
	assert.Len(t, seen, 16)
	for idx, count := range seen {
		assert.Equalf(t, 1, count, "step index %d was assigned to more than one step", idx)
	}
}

func TestExecuteFailsFastWithoutContinueOnError(t *testing.T) {
	store := newMemStore()
	eng := New(Config{}, store, nil, nil)

	failing := Step{ID: "a", Name: "boom", Run: func(_ context.Context, s map[string]any, _ func(float64)) (map[string]any, error) {
		return nil, assertErr{}
	}}
	graph := Graph{Steps: []Step{failing, noopStep("b", "second", "a")}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)

	events := drain(t, eng.Events(id), 2*time.Second)
	assert.Equal(t, EventWorkflowFailed, events[len(events)-1].Type)

	exec := store.get(id)
	assert.Equal(t, StatusFailed, exec.Status)
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

func TestExecuteRespectsBundleLock(t *testing.T) {
	store := newMemStore()
	locker := newFakeLocker()
	eng := New(Config{}, store, locker, nil)

	unlock, err := locker.TryLock("spec-foo")
	require.NoError(t, err)
	defer unlock()

	graph := Graph{Steps: []Step{noopStep("a", "first")}}
	_, err = eng.Execute(context.Background(), "spec-foo", "demo", nil, graph)
	assert.Error(t, err)
}

func TestExecutePausesForInterruptAndResumesOnApprove(t *testing.T) {
	store := newMemStore()
	eng := New(Config{InterruptTimeout: 2 * time.Second}, store, nil, nil)

	interruptStep := noopStep("a", "checkpoint")
	interruptStep.Interrupt = true
	graph := Graph{Steps: []Step{interruptStep, noopStep("b", "after", "a")}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)

	events := eng.Events(id)
	var pausedID string
	for ev := range events {
		if ev.Type == EventWorkflowPaused {
			pausedID = ev.InterruptID
			break
		}
	}
	require.NotEmpty(t, pausedID)

	require.NoError(t, eng.Respond(pausedID, ActionApprove, nil))

	for ev := range events {
		if ev.IsTerminal() {
			assert.Equal(t, EventWorkflowCompleted, ev.Type)
			break
		}
	}
}

func TestExecutePausesAndTimesOutWithoutResponse(t *testing.T) {
	store := newMemStore()
	eng := New(Config{InterruptTimeout: 50 * time.Millisecond}, store, nil, nil)

	interruptStep := noopStep("a", "checkpoint")
	interruptStep.Interrupt = true
	graph := Graph{Steps: []Step{interruptStep}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)

	events := drain(t, eng.Events(id), 2*time.Second)
	assert.Equal(t, EventWorkflowFailed, events[len(events)-1].Type)
}

func TestCancelStopsExecution(t *testing.T) {
	store := newMemStore()
	eng := New(Config{CancelGracePeriod: 100 * time.Millisecond}, store, nil, nil)

	blocking := Step{ID: "a", Name: "blocking", Run: func(ctx context.Context, s map[string]any, _ func(float64)) (map[string]any, error) {
		<-ctx.Done()
		return s, ctx.Err()
	}}
	graph := Graph{Steps: []Step{blocking}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, eng.Cancel(id))

	events := drain(t, eng.Events(id), 2*time.Second)
	assert.Equal(t, EventWorkflowCancelled, events[len(events)-1].Type)
}

func TestResumeSkipsCompletedSteps(t *testing.T) {
	store := newMemStore()
	eng := New(Config{}, store, nil, nil)

	var ran []string
	var seenAtB map[string]any
	var mu sync.Mutex
	track := func(id, name string, deps ...string) Step {
		return Step{
			ID: id, Name: name, Dependencies: deps,
			Run: func(_ context.Context, state map[string]any, _ func(float64)) (map[string]any, error) {
				mu.Lock()
				ran = append(ran, id)
				if id == "b" {
					seenAtB = map[string]any{}
					for k, v := range state {
						seenAtB[k] = v
					}
				}
				mu.Unlock()
				state[id] = true
				return state, nil
			},
		}
	}
	graph := Graph{Steps: []Step{track("a", "first"), track("b", "second", "a")}}

	id, err := eng.Execute(context.Background(), "", "demo", nil, graph)
	require.NoError(t, err)
	drain(t, eng.Events(id), 2*time.Second)

	exec := store.get(id)
	require.NotEmpty(t, exec.LatestCheckpointID)
	cp, err := store.LoadCheckpoint(context.Background(), exec.LatestCheckpointID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, cp.CompletedStepIDs)

	// Resume from the checkpoint after the first step only.
	var firstCheckpointID string
	store.mu.Lock()
	for _, c := range store.checkpoints {
		if len(c.CompletedStepIDs) == 1 && c.CompletedStepIDs[0] == "a" {
			firstCheckpointID = c.ID
		}
	}
	store.mu.Unlock()
	require.NotEmpty(t, firstCheckpointID)

	mu.Lock()
	ran = nil
	seenAtB = nil
	mu.Unlock()

	resumedID, err := eng.Resume(context.Background(), "", "demo", firstCheckpointID, graph)
	require.NoError(t, err)
	events := drain(t, eng.Events(resumedID), 2*time.Second)
	assert.Equal(t, EventWorkflowCompleted, events[len(events)-1].Type)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"b"}, ran)
	// Step "b" must see step "a"'s real output carried over from the
	// checkpoint, not an empty state map reseeded from scratch.
	assert.Equal(t, map[string]any{"a": true}, seenAtB)
}

func TestRespondWithoutPendingInterruptFails(t *testing.T) {
	store := newMemStore()
	eng := New(Config{}, store, nil, nil)
	err := eng.Respond("no-such-id", ActionApprove, nil)
	assert.Error(t, err)
}
