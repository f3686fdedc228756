package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/smartspec/smartspec/pkg/apperr"
)

// encodeState serializes workflow step state into the opaque bytes a
// Checkpoint carries, so a resumed execution continues from the exact
// state earlier steps returned instead of an empty map.
func encodeState(state map[string]any) []byte {
	if len(state) == 0 {
		return nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil
	}
	return data
}

// decodeState is encodeState's inverse. Missing or empty bytes decode to
// an empty, non-nil map so callers never need a nil check.
func decodeState(data []byte) (map[string]any, error) {
	state := map[string]any{}
	if len(data) == 0 {
		return state, nil
	}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, err
	}
	return state, nil
}

// stepCounter hands out strictly monotonic checkpoint step indices to
// steps running concurrently within the same fan-out wave.
type stepCounter struct {
	mu  sync.Mutex
	idx int
}

func (c *stepCounter) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := c.idx
	c.idx++
	return n
}

// Store persists executions and checkpoints. Implemented by pkg/store;
// declared here so pkg/engine never imports the storage package.
type Store interface {
	SaveExecution(ctx context.Context, e Execution) error
	UpdateExecution(ctx context.Context, e Execution) error
	SaveCheckpoint(ctx context.Context, c Checkpoint) error
	LoadCheckpoint(ctx context.Context, checkpointID string) (Checkpoint, error)
}

// BundleLocker serializes writes to a governed artifact bundle, keyed
// by spec id. Implemented by pkg/bundle.
type BundleLocker interface {
	// TryLock acquires the bundle's write lock, or returns a
	// *apperr.Error with CodeBundleBusy if it is already held.
	TryLock(specID string) (unlock func(), err error)
}

// Config tunes engine-wide defaults; all fields have sane zero values.
type Config struct {
	DefaultFanOut      int
	CancelGracePeriod  time.Duration
	InterruptTimeout   time.Duration
}

func (c Config) withDefaults() Config {
	if c.DefaultFanOut <= 0 {
		c.DefaultFanOut = 4
	}
	if c.CancelGracePeriod <= 0 {
		c.CancelGracePeriod = 30 * time.Second
	}
	if c.InterruptTimeout <= 0 {
		c.InterruptTimeout = defaultInterruptTimeout
	}
	return c
}

// Engine drives workflow step graphs: checkpointing, event streaming,
// cancellation, resume, and human-in-the-loop pauses.
type Engine struct {
	cfg     Config
	store   Store
	locker  BundleLocker
	log     arbor.ILogger
	interrupts *interruptRegistry

	mu       sync.Mutex
	buses    map[string]*eventBus
	cancels  map[string]context.CancelFunc
	running  map[string]*Execution
}

// New constructs an Engine. locker may be nil if bundle-scoped
// serialization is not needed by the caller (e.g. read-only workflows).
func New(cfg Config, store Store, locker BundleLocker, log arbor.ILogger) *Engine {
	return &Engine{
		cfg:        cfg.withDefaults(),
		store:      store,
		locker:     locker,
		log:        log,
		interrupts: newInterruptRegistry(),
		buses:      make(map[string]*eventBus),
		cancels:    make(map[string]context.CancelFunc),
		running:    make(map[string]*Execution),
	}
}

// Execute starts a new execution of the given graph and returns
// immediately with its id. specID may be empty for workflows that
// never touch a governed artifact.
func (e *Engine) Execute(ctx context.Context, specID, workflowName string, args map[string]any, graph Graph) (string, error) {
	var unlock func()
	if specID != "" && e.locker != nil {
		u, err := e.locker.TryLock(specID)
		if err != nil {
			return "", err
		}
		unlock = u
	}

	exec := Execution{
		ID:           uuid.NewString(),
		WorkflowName: workflowName,
		Args:         args,
		Status:       StatusPending,
		StepCount:    len(graph.Steps),
		StartedAt:    time.Now().UTC(),
	}
	if err := e.store.SaveExecution(ctx, exec); err != nil {
		if unlock != nil {
			unlock()
		}
		return "", apperr.IO(err, "persisting execution %q", exec.ID)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.buses[exec.ID] = newEventBus()
	e.cancels[exec.ID] = cancel
	running := exec
	e.running[exec.ID] = &running
	e.mu.Unlock()

	go e.run(runCtx, &running, graph, unlock)

	return exec.ID, nil
}

// Resume starts a new execution of graph that skips every step named
// in the checkpoint's CompletedStepIDs, continuing from the state the
// workflow checkpointed. The new execution gets its own id; the
// original execution record is left untouched.
func (e *Engine) Resume(ctx context.Context, specID, workflowName, checkpointID string, graph Graph) (string, error) {
	cp, err := e.store.LoadCheckpoint(ctx, checkpointID)
	if err != nil {
		return "", apperr.IO(err, "loading checkpoint %q", checkpointID)
	}
	seedState, err := decodeState(cp.State)
	if err != nil {
		return "", apperr.IO(err, "decoding state from checkpoint %q", checkpointID)
	}

	var unlock func()
	if specID != "" && e.locker != nil {
		u, lerr := e.locker.TryLock(specID)
		if lerr != nil {
			return "", lerr
		}
		unlock = u
	}

	exec := Execution{
		ID:                 uuid.NewString(),
		WorkflowName:       workflowName,
		Args:               map[string]any{"resumed_from_checkpoint": cp.ID},
		Status:             StatusPending,
		StepCount:          len(graph.Steps),
		StepIndex:          cp.StepIndex,
		StartedAt:          time.Now().UTC(),
		LatestCheckpointID: cp.ID,
	}
	if err := e.store.SaveExecution(ctx, exec); err != nil {
		if unlock != nil {
			unlock()
		}
		return "", apperr.IO(err, "persisting resumed execution %q", exec.ID)
	}

	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	e.buses[exec.ID] = newEventBus()
	e.cancels[exec.ID] = cancel
	running := exec
	e.running[exec.ID] = &running
	e.mu.Unlock()

	seedDone := make(map[string]bool, len(cp.CompletedStepIDs))
	for _, id := range cp.CompletedStepIDs {
		seedDone[id] = true
	}

	go e.runFrom(runCtx, &running, graph, seedDone, seedState, unlock)

	return exec.ID, nil
}

// Events returns the event stream for execution id.
func (e *Engine) Events(executionID string) <-chan Event {
	e.mu.Lock()
	bus, ok := e.buses[executionID]
	e.mu.Unlock()
	if !ok {
		ch := make(chan Event)
		close(ch)
		return ch
	}
	return bus.subscribe()
}

// Status returns a snapshot of the execution's current state.
func (e *Engine) Status(executionID string) (Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ex, ok := e.running[executionID]
	if !ok {
		return Execution{}, false
	}
	cp := *ex
	return cp, true
}

// Cancel cooperatively cancels a running execution.
func (e *Engine) Cancel(executionID string) error {
	e.mu.Lock()
	cancel, ok := e.cancels[executionID]
	e.mu.Unlock()
	if !ok {
		return apperr.Validation("no running execution %q", executionID)
	}
	cancel()
	return nil
}

// Respond delivers a human-in-the-loop reply keyed by interrupt id.
func (e *Engine) Respond(interruptID string, action InterruptAction, payload map[string]any) error {
	return e.interrupts.respond(interruptID, InterruptResponse{Action: action, Payload: payload})
}

func (e *Engine) publish(executionID string, ev Event) {
	ev.ExecutionID = executionID
	ev.Timestamp = time.Now().UTC()
	e.mu.Lock()
	bus := e.buses[executionID]
	e.mu.Unlock()
	if bus != nil {
		bus.publish(ev)
	}
}

func (e *Engine) setStatus(ctx context.Context, exec *Execution, status Status, errMsg string) {
	e.mu.Lock()
	exec.Status = status
	exec.Error = errMsg
	if status == StatusCompleted || status == StatusFailed || status == StatusStopped || status == StatusCancelled {
		now := time.Now().UTC()
		exec.EndedAt = &now
	}
	snapshot := *exec
	e.mu.Unlock()
	if err := e.store.UpdateExecution(ctx, snapshot); err != nil && e.log != nil {
		e.log.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to persist execution status")
	}
}

// run drives one execution's step graph to completion, failure, or
// cancellation, implementing the checkpoint protocol and cooperative
// cancellation grace period.
func (e *Engine) run(ctx context.Context, exec *Execution, graph Graph, unlock func()) {
	e.runFrom(ctx, exec, graph, make(map[string]bool), map[string]any{}, unlock)
}

// runFrom drives exec's step graph to completion, failure, or
// cancellation starting from a possibly non-empty done set and seeded
// state, so Resume can skip steps a prior execution already completed
// and continue with the real state those steps returned.
func (e *Engine) runFrom(ctx context.Context, exec *Execution, graph Graph, done map[string]bool, seedState map[string]any, unlock func()) {
	defer func() {
		if unlock != nil {
			unlock()
		}
		e.mu.Lock()
		delete(e.cancels, exec.ID)
		e.mu.Unlock()
	}()

	e.setStatus(ctx, exec, StatusRunning, "")
	e.publish(exec.ID, Event{Type: EventWorkflowStarted})

	state := seedState
	if state == nil {
		state = map[string]any{}
	}
	counter := &stepCounter{idx: exec.StepIndex}
	fanOut := graph.FanOut
	if fanOut <= 0 {
		fanOut = e.cfg.DefaultFanOut
	}

	for len(done) < len(graph.Steps) {
		wave := graph.ready(done)
		if len(wave) == 0 {
			e.publish(exec.ID, Event{Type: EventWorkflowFailed, Error: "dependency cycle or unresolved dependency in step graph"})
			e.setStatus(ctx, exec, StatusFailed, "dependency cycle detected")
			return
		}

		doneSoFar := make([]string, 0, len(done))
		for id := range done {
			doneSoFar = append(doneSoFar, id)
		}
		results, failed, failErr := e.runWave(ctx, exec, graph, wave, state, counter, doneSoFar)
		for id, s := range results {
			state = s
			done[id] = true
		}
		if failed != "" && ctx.Err() != nil {
			e.handleCancellation(ctx, exec)
			return
		}
		if failed != "" {
			if !graph.ContinueOnError {
				e.publish(exec.ID, Event{Type: EventWorkflowFailed, Error: failErr.Error()})
				e.setStatus(ctx, exec, StatusFailed, failErr.Error())
				return
			}
			done[failed] = true
		}

		if ctx.Err() != nil {
			e.handleCancellation(ctx, exec)
			return
		}

		for _, s := range wave {
			if s.Interrupt && done[s.ID] {
				if !e.awaitInterrupt(ctx, exec, s, state) {
					return // execution already finalized by awaitInterrupt
				}
			}
		}
	}

	e.publish(exec.ID, Event{Type: EventWorkflowCompleted})
	e.setStatus(ctx, exec, StatusCompleted, "")
}

// runWave executes one set of mutually-independent steps, bounded by
// fanOut, writing the pre/post checkpoint for each.
func (e *Engine) runWave(ctx context.Context, exec *Execution, graph Graph, wave []Step, state map[string]any, counter *stepCounter, doneSoFar []string) (map[string]map[string]any, string, error) {
	type outcome struct {
		id    string
		state map[string]any
		err   error
	}

	sem := make(chan struct{}, maxInt(1, graph.FanOut))
	if graph.FanOut <= 0 {
		sem = make(chan struct{}, e.cfg.DefaultFanOut)
	}
	results := make(map[string]map[string]any)
	outcomes := make(chan outcome, len(wave))
	var wg sync.WaitGroup

	// Unless the graph sets ContinueOnError, the first failing step
	// cancels its siblings in this wave through waveCtx.
	waveCtx, cancelWave := context.WithCancel(ctx)
	defer cancelWave()

	for _, step := range wave {
		step := step
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s, err := e.runStep(waveCtx, exec, step, state, counter, doneSoFar)
			outcomes <- outcome{id: step.ID, state: s, err: err}
			if err != nil && !graph.ContinueOnError {
				cancelWave()
			}
		}()
	}

	wg.Wait()
	close(outcomes)

	var failedID string
	var failErr error
	for o := range outcomes {
		if o.err != nil && failedID == "" {
			failedID = o.id
			failErr = o.err
			continue
		}
		if o.err == nil {
			results[o.id] = o.state
		}
	}
	return results, failedID, failErr
}

func (e *Engine) runStep(ctx context.Context, exec *Execution, step Step, state map[string]any, counter *stepCounter, doneSoFar []string) (map[string]any, error) {
	idx := counter.next()

	cp := Checkpoint{
		ID: uuid.NewString(), ExecutionID: exec.ID, StepIndex: idx - 1,
		StepName: step.Name, State: encodeState(state), Timestamp: time.Now().UTC(),
	}
	_ = e.store.SaveCheckpoint(ctx, cp)

	e.publish(exec.ID, Event{Type: EventStepStarted, StepName: step.Name})

	stepDone := make(chan struct{})
	var newState map[string]any
	var stepErr error

	go func() {
		defer close(stepDone)
		newState, stepErr = step.Run(ctx, state, func(fraction float64) {
			e.publish(exec.ID, Event{Type: EventStepProgress, StepName: step.Name, Fraction: fraction})
		})
	}()

	select {
	case <-stepDone:
	case <-ctx.Done():
		select {
		case <-stepDone:
		case <-time.After(e.cfg.CancelGracePeriod):
			e.setStatus(ctx, exec, StatusStopped, "step did not observe cancellation within grace period")
			return nil, apperr.Internal(nil, "step %q exceeded cancellation grace period", step.Name)
		}
	}

	if stepErr != nil {
		e.publish(exec.ID, Event{Type: EventStepFailed, StepName: step.Name, Error: stepErr.Error()})
		return nil, apperr.StepFailed(step.ID, stepErr)
	}

	e.publish(exec.ID, Event{Type: EventStepCompleted, StepName: step.Name})

	post := Checkpoint{
		ID: uuid.NewString(), ExecutionID: exec.ID, StepIndex: idx,
		StepName: step.Name, State: encodeState(newState), Timestamp: time.Now().UTC(),
		CompletedStepIDs: append(append([]string{}, doneSoFar...), step.ID),
	}
	if err := e.store.SaveCheckpoint(ctx, post); err == nil {
		e.mu.Lock()
		exec.LatestCheckpointID = post.ID
		exec.StepIndex = idx
		e.mu.Unlock()
	}

	return newState, nil
}

// awaitInterrupt pauses the execution at a declared interrupt point and
// blocks until a response arrives, the deadline elapses, or the
// execution is cancelled. It returns false if it finalized the
// execution itself (timeout/reject/cancel), true if the caller should
// continue scheduling.
func (e *Engine) awaitInterrupt(ctx context.Context, exec *Execution, step Step, state map[string]any) bool {
	interruptID := uuid.NewString()
	ch := e.interrupts.register(interruptID)

	e.publish(exec.ID, Event{Type: EventWorkflowPaused, StepName: step.Name, InterruptID: interruptID})
	e.setStatus(ctx, exec, StatusPaused, "")

	select {
	case resp := <-ch:
		switch resp.Action {
		case ActionReject:
			e.publish(exec.ID, Event{Type: EventWorkflowFailed, Error: "interrupt rejected"})
			e.setStatus(ctx, exec, StatusFailed, "interrupt rejected")
			return false
		case ActionModify:
			for k, v := range resp.Payload {
				state[k] = v
			}
			fallthrough
		case ActionApprove:
			e.publish(exec.ID, Event{Type: EventWorkflowResumed})
			e.setStatus(ctx, exec, StatusRunning, "")
			return true
		}
		return true

	case <-time.After(e.cfg.InterruptTimeout):
		e.interrupts.cancel(interruptID)
		err := apperr.InterruptTimeout(interruptID)
		e.publish(exec.ID, Event{Type: EventWorkflowFailed, Error: err.Error()})
		e.setStatus(ctx, exec, StatusFailed, err.Error())
		return false

	case <-ctx.Done():
		e.interrupts.cancel(interruptID)
		e.handleCancellation(ctx, exec)
		return false
	}
}

// handleCancellation records a cancelled execution. An execution that a
// step already escalated to stopped (grace period exceeded) keeps that
// status.
func (e *Engine) handleCancellation(ctx context.Context, exec *Execution) {
	e.publish(exec.ID, Event{Type: EventWorkflowCancelled})
	e.mu.Lock()
	status, errMsg := exec.Status, exec.Error
	e.mu.Unlock()
	if status != StatusStopped {
		status, errMsg = StatusCancelled, ""
	}
	e.setStatus(context.Background(), exec, status, errMsg)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
