package variable

import (
	"sync"
	"time"
)

// Mode tells the evaluator how a variable's value becomes available.
type Mode int

const (
	// ModeSync variables can always be read without blocking.
	ModeSync Mode = iota
	// ModeAsync variables may be unset until an external event populates them.
	// An evaluation that needs one must subscribe and wait instead of polling.
	ModeAsync
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Base is the untyped identity of a variable, used for bookkeeping.
type Base interface {
	Name() string
	Mode() Mode
}

// Variable is a typed, provider-owned accessor to one piece of state.
// Get never blocks. The boolean is false when the value is unset.
type Variable[T any] interface {
	Base
	Get() (T, bool)
}

// Observable is implemented by variables that can notify about changes.
type Observable interface {
	Base
	// Subscribe arms a one-shot notification for the next change.
	// The returned function releases the subscription and is safe to call more
	// than once, also after the notification fired.
	Subscribe(onChange func()) (unsubscribe func())
	// Generation is incremented on every change of the value.
	Generation() uint64
}

// Poller is implemented by sync variables whose value drifts over time and
// should be re-read after the given interval.
type Poller interface {
	PollInterval() time.Duration
}

// observers keeps one-shot change callbacks.
type observers struct {
	mu         sync.Mutex
	nextID     uint64
	generation uint64
	callbacks  map[uint64]func()
}

func (o *observers) subscribe(onChange func()) func() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.callbacks == nil {
		o.callbacks = make(map[uint64]func())
	}
	id := o.nextID
	o.nextID++
	o.callbacks[id] = onChange

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.callbacks, id)
	}
}

func (o *observers) gen() uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generation
}

// notify bumps the generation and fires every armed callback exactly once.
// Callbacks run outside the lock so they may unsubscribe or resubscribe.
func (o *observers) notify() {
	o.mu.Lock()
	o.generation++
	pending := o.callbacks
	o.callbacks = nil
	o.mu.Unlock()

	for _, cb := range pending {
		cb()
	}
}
