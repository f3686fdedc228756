// Package engine implements the checkpointed execution engine: it runs
// a workflow's step graph, persists checkpoints, streams typed events,
// and supports cooperative cancellation, resume, and human-in-the-loop
// pauses.
package engine

import "time"

// Status is the lifecycle state of an Execution.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusStopped   Status = "stopped"
	StatusCancelled Status = "cancelled"
)

// Execution is the runtime instance of one workflow invocation. Its
// identity — id, workflow name, frozen arguments — never changes after
// creation; only Status, StepIndex, and the checkpoint pointer mutate.
type Execution struct {
	ID           string
	WorkflowName string
	Args         map[string]any
	Status       Status
	StepCount    int
	StepIndex    int
	StartedAt    time.Time
	EndedAt      *time.Time
	LatestCheckpointID string
	Error        string
}

// Checkpoint is a durable snapshot written at a step boundary.
type Checkpoint struct {
	ID          string
	ExecutionID string
	StepIndex   int
	StepName    string
	State       []byte // opaque to the engine; each workflow serializes its own state
	// CompletedStepIDs lists every step ID known to have finished as of
	// this checkpoint, letting Resume reconstruct the engine's done set
	// from a single row instead of replaying checkpoint history.
	CompletedStepIDs []string
	Timestamp        time.Time
}

// EventType names one kind of progress event.
type EventType string

const (
	EventWorkflowStarted   EventType = "workflow_started"
	EventStepStarted       EventType = "step_started"
	EventStepProgress      EventType = "step_progress"
	EventStepCompleted     EventType = "step_completed"
	EventStepFailed        EventType = "step_failed"
	EventWorkflowPaused    EventType = "workflow_paused"
	EventWorkflowResumed   EventType = "workflow_resumed"
	EventWorkflowCompleted EventType = "workflow_completed"
	EventWorkflowCancelled EventType = "workflow_cancelled"
	EventWorkflowFailed    EventType = "workflow_failed"
)

// terminalEvents are the event types that end the stream.
var terminalEvents = map[EventType]bool{
	EventWorkflowCompleted: true,
	EventWorkflowCancelled: true,
	EventWorkflowFailed:    true,
}

// Event is one item in an execution's event stream.
type Event struct {
	Type        EventType
	ExecutionID string
	StepName    string
	Fraction    float64
	Error       string
	InterruptID string
	Reason      string
	Timestamp   time.Time
}

// IsTerminal reports whether this event ends the stream.
func (e Event) IsTerminal() bool { return terminalEvents[e.Type] }
