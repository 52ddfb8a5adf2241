// Package progress records the ordered step trace of an in-flight turn and
// broadcasts each step transition to subscribers (terminal spinner, SSE).
package progress

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	InProgress Status = "in_progress"
	Completed  Status = "completed"
)

// Step is one trace entry. Details carry structured context such as the
// variable queried and the number of rows returned.
type Step struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    Status         `json:"status"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventType distinguishes step updates from a trace reset.
type EventType string

const (
	EventStep  EventType = "step"
	EventReset EventType = "reset"
)

type Event struct {
	Type EventType `json:"type"`
	Step *Step     `json:"step,omitempty"`
}

// Tracker accumulates steps for one turn at a time.
type Tracker struct {
	mu        sync.RWMutex
	steps     []Step
	index     map[string]int
	listeners map[chan Event]struct{}
	now       func() time.Time
}

func NewTracker() *Tracker {
	return &Tracker{
		index:     map[string]int{},
		listeners: map[chan Event]struct{}{},
		now:       time.Now,
	}
}

// Start appends an in-progress step and returns its id.
func (t *Tracker) Start(name string, details map[string]any) string {
	t.mu.Lock()
	step := Step{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    InProgress,
		Details:   copyDetails(details),
		Timestamp: t.now().UTC(),
	}
	t.index[step.ID] = len(t.steps)
	t.steps = append(t.steps, step)
	t.mu.Unlock()
	t.broadcast(Event{Type: EventStep, Step: &step})
	return step.ID
}

// Complete marks a step done, merging extra details. Unknown ids (for example
// after a Reset) are ignored.
func (t *Tracker) Complete(id string, details map[string]any) {
	t.mu.Lock()
	i, ok := t.index[id]
	if !ok {
		t.mu.Unlock()
		return
	}
	step := t.steps[i]
	step.Status = Completed
	step.Timestamp = t.now().UTC()
	if len(details) > 0 {
		merged := copyDetails(step.Details)
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range details {
			merged[k] = v
		}
		step.Details = merged
	}
	t.steps[i] = step
	t.mu.Unlock()
	t.broadcast(Event{Type: EventStep, Step: &step})
}

// Steps returns a copy of the current trace.
func (t *Tracker) Steps() []Step {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Step(nil), t.steps...)
}

// Reset clears the trace and tells subscribers to drop what they show.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.steps = nil
	t.index = map[string]int{}
	t.mu.Unlock()
	t.broadcast(Event{Type: EventReset})
}

// Subscribe returns a buffered channel of events and a function that
// unsubscribes and closes it.
func (t *Tracker) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	t.mu.Lock()
	t.listeners[ch] = struct{}{}
	t.mu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.listeners, ch)
			t.mu.Unlock()
			close(ch)
		})
	}
}

// broadcast never blocks; a slow listener misses events rather than
// stalling the turn.
func (t *Tracker) broadcast(ev Event) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for ch := range t.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

func copyDetails(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
