package updatemanager

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// trigger is the reason a waiting request runs its chain again.
type trigger int

const (
	triggerVariable trigger = iota
	triggerTimer
)

func (t trigger) String() string {
	if t == triggerVariable {
		return "variable change"
	}
	return "timer"
}

// evaluate runs chain over data until it reaches a final status. The deadline
// is fixed when the request starts and carried over to every later pass.
func (m *UpdateManager) evaluate(ctx context.Context, id string, chain evaluation.Chain, data evaluation.Data) (evaluation.EvalStatus, error) {
	logger := log.WithFields(log.Fields{"kind": chain.Kind(), "flight": id})
	start := m.clock.Now()
	deadline := start.Add(m.config.Timeout(chain.Kind()))

	for passes := 1; ; passes++ {
		ec := evaluation.NewContext(m.clock, deadline)
		status := chain.Evaluate(ec, data)
		logger.Tracef("pass %d returned %s with %s", passes, status, ec)

		if status.IsFinal() {
			logger.Debugf("resolved to %s after %d passes", status, passes)
			m.metrics.CountResolved(chain.Kind(), status, false, passes, m.clock.Since(start))
			return status, nil
		}

		if ec.IsExpired() {
			logger.Warnf("still pending at its deadline %s, giving up", deadline.Format(time.RFC3339))
			m.metrics.CountResolved(chain.Kind(), evaluation.Failed, true, passes, m.clock.Since(start))
			return evaluation.Failed, ErrEvaluationTimedOut
		}

		reason, err := m.waitForTrigger(ctx, ec)
		if err == nil {
			// a trigger may race with cancellation
			err = ctx.Err()
		}
		if err != nil {
			if m.ctx.Err() != nil {
				return evaluation.Failed, ErrManagerStopped
			}
			return evaluation.Failed, err
		}
		logger.Tracef("woken up by %s", reason)
	}
}

// waitForTrigger blocks until one of the async variables read by ec changes,
// the next time trigger or the deadline is reached, or ctx is done. Every
// subscription and the timer are released before it returns.
func (m *UpdateManager) waitForTrigger(ctx context.Context, ec *evaluation.Context) (trigger, error) {
	wake := make(chan struct{}, 1)
	notify := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	async := ec.AsyncVariables()
	unsubscribe := make([]func(), 0, len(async))
	defer func() {
		for _, u := range unsubscribe {
			u()
		}
	}()

	for _, v := range async {
		unsubscribe = append(unsubscribe, v.Subscribe(notify))
		if changedSinceRead(ec, v) {
			notify()
		}
	}

	at := ec.Deadline()
	if next, ok := ec.NextReevaluation(); ok && next.Before(at) {
		at = next
	}
	timer := m.clock.NewTimer(m.clock.Until(at))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-wake:
		return triggerVariable, nil
	case <-timer.Chan():
		return triggerTimer, nil
	}
}

func changedSinceRead(ec *evaluation.Context, v variable.Observable) bool {
	seen, ok := ec.ObservedGeneration(v)
	return ok && v.Generation() != seen
}
