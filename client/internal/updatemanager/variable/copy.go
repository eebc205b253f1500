package variable

import (
	"sync"
	"time"
)

// Copy holds a value set by its owning provider. Readers always receive the
// last value passed to Set. Both sync and async variables use it; the mode only
// changes how the evaluator treats an unset value.
type Copy[T any] struct {
	name string
	mode Mode

	mu    sync.RWMutex
	value T
	isSet bool

	obs observers
}

var _ Variable[int] = (*Copy[int])(nil)
var _ Observable = (*Copy[int])(nil)

// NewCopy creates an unset variable.
func NewCopy[T any](name string, mode Mode) *Copy[T] {
	return &Copy[T]{name: name, mode: mode}
}

// NewCopyWithValue creates a variable holding the given value.
func NewCopyWithValue[T any](name string, mode Mode, value T) *Copy[T] {
	c := NewCopy[T](name, mode)
	c.value = value
	c.isSet = true
	return c
}

func (c *Copy[T]) Name() string {
	return c.name
}

func (c *Copy[T]) Mode() Mode {
	return c.mode
}

func (c *Copy[T]) Get() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value, c.isSet
}

// Set stores a new value and notifies subscribers.
func (c *Copy[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	c.isSet = true
	c.mu.Unlock()

	c.obs.notify()
}

// Unset clears the value and notifies subscribers if it was set.
func (c *Copy[T]) Unset() {
	c.mu.Lock()
	wasSet := c.isSet
	var zero T
	c.value = zero
	c.isSet = false
	c.mu.Unlock()

	if wasSet {
		c.obs.notify()
	}
}

func (c *Copy[T]) Subscribe(onChange func()) func() {
	return c.obs.subscribe(onChange)
}

func (c *Copy[T]) Generation() uint64 {
	return c.obs.gen()
}

// Const is a sync variable with a fixed value.
type Const[T any] struct {
	name  string
	value T
}

// NewConst creates a variable that always returns value.
func NewConst[T any](name string, value T) *Const[T] {
	return &Const[T]{name: name, value: value}
}

func (c *Const[T]) Name() string { return c.name }

func (c *Const[T]) Mode() Mode { return ModeSync }

func (c *Const[T]) Get() (T, bool) { return c.value, true }

// Func is a sync variable computed on every read. A non-zero poll interval
// makes evaluations that consult it re-run after that interval.
type Func[T any] struct {
	name string
	poll time.Duration
	fn   func() (T, bool)
}

var _ Poller = (*Func[int])(nil)

// NewFunc creates a computed variable. fn must not block.
func NewFunc[T any](name string, poll time.Duration, fn func() (T, bool)) *Func[T] {
	return &Func[T]{name: name, poll: poll, fn: fn}
}

func (f *Func[T]) Name() string { return f.name }

func (f *Func[T]) Mode() Mode { return ModeSync }

func (f *Func[T]) Get() (T, bool) { return f.fn() }

func (f *Func[T]) PollInterval() time.Duration { return f.poll }
