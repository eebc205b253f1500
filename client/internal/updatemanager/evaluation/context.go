package evaluation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

type cachedValue struct {
	value any
	ok    bool
}

// Context is the snapshot used by one evaluation pass. The first read of a
// variable is cached and every later read in the same pass returns the cached
// value, so all policies of a chain observe the same state.
//
// A Context is owned by a single pass and is not safe for concurrent use.
type Context struct {
	clock    clockwork.Clock
	deadline time.Time
	now      time.Time

	values map[variable.Base]cachedValue

	// async variables read in this pass, in read order, with the generation
	// observed at the time of the read
	async       []variable.Observable
	generations map[variable.Observable]uint64

	reevaluateAt time.Time
	pollInterval time.Duration
}

// NewContext creates a snapshot with the given absolute deadline.
func NewContext(clock clockwork.Clock, deadline time.Time) *Context {
	return &Context{
		clock:       clock,
		deadline:    deadline,
		now:         clock.Now(),
		values:      make(map[variable.Base]cachedValue),
		generations: make(map[variable.Observable]uint64),
	}
}

// Read returns the value of v as seen by this pass.
func Read[T any](ec *Context, v variable.Variable[T]) (T, bool) {
	if cached, ok := ec.values[v]; ok {
		if !cached.ok {
			var zero T
			return zero, false
		}
		return cached.value.(T), true
	}

	if obs, ok := v.(variable.Observable); ok && v.Mode() == variable.ModeAsync {
		ec.generations[obs] = obs.Generation()
		ec.async = append(ec.async, obs)
	}
	if p, ok := v.(variable.Poller); ok && p.PollInterval() > 0 {
		if ec.pollInterval == 0 || p.PollInterval() < ec.pollInterval {
			ec.pollInterval = p.PollInterval()
		}
	}

	value, ok := v.Get()
	ec.values[v] = cachedValue{value: value, ok: ok}
	return value, ok
}

// Now returns the wall-clock time at which the pass started.
func (ec *Context) Now() time.Time {
	return ec.now
}

// Deadline returns the absolute deadline of the request.
func (ec *Context) Deadline() time.Time {
	return ec.deadline
}

// IsExpired reports whether the deadline has passed.
func (ec *Context) IsExpired() bool {
	return !ec.clock.Now().Before(ec.deadline)
}

// RemainingTime returns the time left until the deadline, never negative.
func (ec *Context) RemainingTime() time.Duration {
	remaining := ec.deadline.Sub(ec.clock.Now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsWallclockTimeGreaterThan reports whether the pass time is after t. When it
// is not, t is remembered as a point at which the chain should run again.
func (ec *Context) IsWallclockTimeGreaterThan(t time.Time) bool {
	if ec.now.After(t) {
		return true
	}
	if ec.reevaluateAt.IsZero() || t.Before(ec.reevaluateAt) {
		ec.reevaluateAt = t
	}
	return false
}

// AsyncVariables returns the async variables read in this pass.
func (ec *Context) AsyncVariables() []variable.Observable {
	return ec.async
}

// ObservedGeneration returns the generation of v seen when it was first read.
func (ec *Context) ObservedGeneration(v variable.Observable) (uint64, bool) {
	gen, ok := ec.generations[v]
	return gen, ok
}

// NextReevaluation returns the earliest time trigger recorded in this pass,
// either from a wall-clock comparison or from a polled variable.
func (ec *Context) NextReevaluation() (time.Time, bool) {
	next := ec.reevaluateAt
	if ec.pollInterval > 0 {
		polled := ec.now.Add(ec.pollInterval)
		if next.IsZero() || polled.Before(next) {
			next = polled
		}
	}
	return next, !next.IsZero()
}

func (ec *Context) String() string {
	entries := make([]string, 0, len(ec.values))
	for v, cached := range ec.values {
		if !cached.ok {
			entries = append(entries, fmt.Sprintf("%s=<unset>", v.Name()))
			continue
		}
		entries = append(entries, fmt.Sprintf("%s=%v", v.Name(), cached.value))
	}
	sort.Strings(entries)

	return fmt.Sprintf("{now: %s, deadline: %s, values: [%s]}",
		ec.now.Format(time.RFC3339), ec.deadline.Format(time.RFC3339), strings.Join(entries, ", "))
}
