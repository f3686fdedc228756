package engine

import (
	"sync"
	"time"

	"github.com/smartspec/smartspec/pkg/apperr"
)

// InterruptAction is the verb an external actor posts in response to a
// paused execution.
type InterruptAction string

const (
	ActionApprove InterruptAction = "approve"
	ActionReject  InterruptAction = "reject"
	ActionModify  InterruptAction = "modify"
)

// InterruptResponse is what Respond delivers to the waiting step.
type InterruptResponse struct {
	Action  InterruptAction
	Payload map[string]any
}

// defaultInterruptTimeout is the deadline an unanswered interrupt waits
// before failing its execution, absent an overriding config value.
const defaultInterruptTimeout = time.Hour

// interruptWaiter tracks one pending human-in-the-loop pause: a channel
// the engine blocks on and the channel's already-closed state, guarded
// by a mutex so Respond can be called at most once successfully.
type interruptWaiter struct {
	ch     chan InterruptResponse
	closed bool
}

// interruptRegistry keys pending interrupts by id, generalizing the
// session package's keyed external-response idiom from chat turns to
// workflow pause points.
type interruptRegistry struct {
	mu      sync.Mutex
	waiters map[string]*interruptWaiter
}

func newInterruptRegistry() *interruptRegistry {
	return &interruptRegistry{waiters: make(map[string]*interruptWaiter)}
}

func (r *interruptRegistry) register(id string) <-chan InterruptResponse {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := &interruptWaiter{ch: make(chan InterruptResponse, 1)}
	r.waiters[id] = w
	return w.ch
}

func (r *interruptRegistry) respond(id string, resp InterruptResponse) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.waiters[id]
	if !ok || w.closed {
		return apperr.Validation("no pending interrupt with id %q", id)
	}
	w.closed = true
	w.ch <- resp
	delete(r.waiters, id)
	return nil
}

func (r *interruptRegistry) cancel(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.waiters, id)
}
