package updatemanager

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mitchellh/hashstructure/v2"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
)

var (
	ErrEvaluationTimedOut = errors.New("evaluation timed out")
	ErrNoPolicyChain      = errors.New("no policy chain for decision kind")
	ErrManagerStopped     = errors.New("update manager stopped")
)

// UpdateManager resolves decision requests by running the policy chain of the
// requested kind until it yields a final answer or the request deadline passes.
// Equivalent requests of one requester share a single evaluation.
type UpdateManager struct {
	clock   clockwork.Clock
	chains  map[evaluation.Kind]evaluation.Chain
	config  Config
	metrics *Metrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	group   singleflight.Group
	mu      sync.Mutex
	flights map[string]*flight
	stopped bool
}

type flight struct {
	id      string
	kind    evaluation.Kind
	cancel  context.CancelFunc
	waiters int
	fn      func() (any, error)
}

type outcome struct {
	status evaluation.EvalStatus
	data   evaluation.Data
}

// NewUpdateManager creates a manager serving the given chains. metrics may be nil.
func NewUpdateManager(clock clockwork.Clock, chains map[evaluation.Kind]evaluation.Chain, config Config, metrics *Metrics) *UpdateManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &UpdateManager{
		clock:   clock,
		chains:  chains,
		config:  config,
		metrics: metrics,
		ctx:     ctx,
		cancel:  cancel,
		flights: make(map[string]*flight),
	}
}

// PolicyRequest blocks until the decision for data is resolved, ctx is
// cancelled or the manager stops. On resolution the outputs of the evaluated
// copy are written back into data.
//
// A request that is still pending when its deadline passes returns Failed with
// ErrEvaluationTimedOut. Any other error comes with Failed as well.
func (m *UpdateManager) PolicyRequest(ctx context.Context, requester string, data evaluation.Data) (evaluation.EvalStatus, error) {
	chain, ok := m.chains[data.Kind()]
	if !ok {
		return evaluation.Failed, fmt.Errorf("%w: %s", ErrNoPolicyChain, data.Kind())
	}

	key, err := requestKey(requester, data)
	if err != nil {
		return evaluation.Failed, fmt.Errorf("fingerprint request: %w", err)
	}

	f, results, err := m.join(key, chain, data)
	if err != nil {
		return evaluation.Failed, err
	}
	defer m.release(key, f)

	select {
	case res := <-results:
		if res.Err != nil {
			return evaluation.Failed, res.Err
		}
		out := res.Val.(outcome)
		data.CopyResult(out.data)
		return out.status, nil
	case <-ctx.Done():
		log.Tracef("request %s cancelled by issuer", key)
		return evaluation.Failed, ctx.Err()
	}
}

// AsyncPolicyRequest runs PolicyRequest in the background and hands the result
// to callback. Calling the returned function cancels the request; callback is
// not invoked for a request cancelled that way.
func (m *UpdateManager) AsyncPolicyRequest(requester string, data evaluation.Data, callback func(evaluation.EvalStatus, error)) (cancel func()) {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		callback(evaluation.Failed, ErrManagerStopped)
		return func() {}
	}
	m.wg.Add(1)
	m.mu.Unlock()

	ctx, cancelCtx := context.WithCancel(m.ctx)
	go func() {
		defer m.wg.Done()
		defer cancelCtx()

		status, err := m.PolicyRequest(ctx, requester, data)
		if errors.Is(err, context.Canceled) {
			if m.ctx.Err() == nil {
				return
			}
			err = ErrManagerStopped
		}
		callback(status, err)
	}()

	return cancelCtx
}

// Stop cancels every outstanding request and waits for them to finish.
func (m *UpdateManager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}

// join attaches the caller to the in-flight evaluation for key, starting a new
// one if none exists.
func (m *UpdateManager) join(key string, chain evaluation.Chain, data evaluation.Data) (*flight, <-chan singleflight.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return nil, nil, ErrManagerStopped
	}

	if f, ok := m.flights[key]; ok {
		f.waiters++
		log.Tracef("request %s joins evaluation %s (%d waiters)", key, f.id, f.waiters)
		m.metrics.CountCoalesced(f.kind)
		return f, m.group.DoChan(key, f.fn), nil
	}

	ctx, cancel := context.WithCancel(m.ctx)
	f := &flight{id: uuid.NewString(), kind: chain.Kind(), cancel: cancel, waiters: 1}
	input := data.Clone()
	f.fn = func() (any, error) {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			if m.flights[key] == f {
				delete(m.flights, key)
			}
			m.mu.Unlock()
		}()

		status, err := m.evaluate(ctx, f.id, chain, input)
		if err != nil {
			return nil, err
		}
		return outcome{status: status, data: input}, nil
	}

	m.flights[key] = f
	m.wg.Add(1)
	m.group.Forget(key)
	return f, m.group.DoChan(key, f.fn), nil
}

// release detaches one waiter. The evaluation is cancelled when nobody waits
// for it anymore.
func (m *UpdateManager) release(key string, f *flight) {
	m.mu.Lock()
	defer m.mu.Unlock()

	f.waiters--
	if f.waiters > 0 {
		return
	}
	if m.flights[key] == f {
		delete(m.flights, key)
		m.group.Forget(key)
	}
	f.cancel()
}

func requestKey(requester string, data evaluation.Data) (string, error) {
	hash, err := hashstructure.Hash(data, hashstructure.FormatV2, nil)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%x", requester, data.Kind(), hash), nil
}
