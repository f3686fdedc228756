package engine

import "sync"

// eventBus fans one execution's events out to every subscriber,
// generalizing the non-blocking subscriber-channel broadcast idiom
// used for live agent monitoring to per-execution event streams.
type eventBus struct {
	mu          sync.Mutex
	subscribers map[chan Event]bool
	history     []Event
	done        bool
}

func newEventBus() *eventBus {
	return &eventBus{subscribers: make(map[chan Event]bool)}
}

func (b *eventBus) publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.history = append(b.history, e)
	for ch := range b.subscribers {
		select {
		case ch <- e:
		default: // slow consumer; it can replay from history via subscribe
		}
	}
	if e.IsTerminal() {
		b.done = true
		for ch := range b.subscribers {
			close(ch)
		}
		b.subscribers = nil
	}
}

// subscribe returns a channel replaying history so far, followed by
// every future event up to and including the terminal one.
func (b *eventBus) subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, len(b.history)+16)
	for _, e := range b.history {
		ch <- e
	}
	if b.done {
		close(ch)
		return ch
	}
	b.subscribers[ch] = true
	return ch
}
