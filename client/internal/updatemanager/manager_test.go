package updatemanager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

const testKind evaluation.Kind = "TestDecision"

var testStart = time.Date(2024, time.March, 4, 10, 0, 0, 0, time.UTC)

type testData struct {
	Input  string
	Output string `hash:"ignore"`
}

func (d *testData) Kind() evaluation.Kind { return testKind }

func (d *testData) Clone() evaluation.Data {
	c := *d
	return &c
}

func (d *testData) CopyResult(src evaluation.Data) {
	d.Output = src.(*testData).Output
}

type policyFunc struct {
	passes atomic.Int32
	fn     func(ec *evaluation.Context, data *testData) evaluation.EvalStatus
}

func (p *policyFunc) Name() string { return "TestPolicy" }

func (p *policyFunc) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	p.passes.Add(1)
	return p.fn(ec, data.(*testData))
}

// waitForFlag decides once the async flag is set.
func waitForFlag(flag *variable.Copy[bool]) *policyFunc {
	return &policyFunc{fn: func(ec *evaluation.Context, data *testData) evaluation.EvalStatus {
		set, ok := evaluation.Read[bool](ec, flag)
		if !ok || !set {
			return evaluation.AskAgainLater
		}
		data.Output = "done:" + data.Input
		return evaluation.Succeeded
	}}
}

func newTestManager(clock clockwork.Clock, p evaluation.Policy, timeout time.Duration) *UpdateManager {
	chains := map[evaluation.Kind]evaluation.Chain{
		testKind: evaluation.NewChain(testKind, nil, p),
	}
	config := Config{Timeouts: map[evaluation.Kind]time.Duration{testKind: timeout}}
	return NewUpdateManager(clock, chains, config, nil)
}

type result struct {
	status evaluation.EvalStatus
	err    error
}

func request(m *UpdateManager, ctx context.Context, requester string, data *testData) <-chan result {
	done := make(chan result, 1)
	go func() {
		status, err := m.PolicyRequest(ctx, requester, data)
		done <- result{status: status, err: err}
	}()
	return done
}

func waitResult(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("request did not resolve")
		return result{}
	}
}

func blockUntilWaiting(t *testing.T, clock *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n))
}

func (m *UpdateManager) inFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.flights)
}

func (m *UpdateManager) waitersOf(requester string, data evaluation.Data) int {
	key, _ := requestKey(requester, data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.flights[key]; ok {
		return f.waiters
	}
	return 0
}

func TestPolicyRequest_ResolvesFirstPass(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	p := waitForFlag(variable.NewCopyWithValue("flag", variable.ModeAsync, true))
	m := newTestManager(clock, p, time.Minute)
	defer m.Stop()

	data := &testData{Input: "a"}
	status, err := m.PolicyRequest(context.Background(), "test", data)

	require.NoError(t, err)
	assert.Equal(t, evaluation.Succeeded, status)
	assert.Equal(t, "done:a", data.Output)
	assert.EqualValues(t, 1, p.passes.Load())
	assert.Zero(t, m.inFlight())
}

func TestPolicyRequest_UnknownKind(t *testing.T) {
	m := NewUpdateManager(clockwork.NewFakeClock(), nil, DefaultConfig(), nil)
	defer m.Stop()

	status, err := m.PolicyRequest(context.Background(), "test", &testData{})

	assert.ErrorIs(t, err, ErrNoPolicyChain)
	assert.Equal(t, evaluation.Failed, status)
}

func TestPolicyRequest_WakesOnAsyncVariable(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	p := waitForFlag(flag)
	m := newTestManager(clock, p, time.Hour)
	defer m.Stop()

	data := &testData{Input: "a"}
	done := request(m, context.Background(), "test", data)

	blockUntilWaiting(t, clock, 1)
	flag.Set(true)

	r := waitResult(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, evaluation.Succeeded, r.status)
	assert.Equal(t, "done:a", data.Output)
	assert.EqualValues(t, 2, p.passes.Load())
}

func TestPolicyRequest_ChangeBeforeSubscribeIsNotLost(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)

	p := &policyFunc{}
	p.fn = func(ec *evaluation.Context, data *testData) evaluation.EvalStatus {
		set, ok := evaluation.Read[bool](ec, flag)
		if ok && set {
			return evaluation.Succeeded
		}
		// the provider updates right after the read, before any subscription exists
		flag.Set(true)
		return evaluation.AskAgainLater
	}
	m := newTestManager(clock, p, time.Hour)
	defer m.Stop()

	r := waitResult(t, request(m, context.Background(), "test", &testData{}))

	require.NoError(t, r.err)
	assert.Equal(t, evaluation.Succeeded, r.status)
	assert.EqualValues(t, 2, p.passes.Load())
}

func TestPolicyRequest_TimesOutAtDeadline(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	p := &policyFunc{fn: func(*evaluation.Context, *testData) evaluation.EvalStatus {
		return evaluation.AskAgainLater
	}}
	m := newTestManager(clock, p, time.Minute)
	defer m.Stop()

	done := request(m, context.Background(), "test", &testData{})

	blockUntilWaiting(t, clock, 1)
	clock.Advance(59 * time.Second)
	select {
	case r := <-done:
		t.Fatalf("resolved before the deadline: %v", r)
	default:
	}

	clock.Advance(time.Second)
	r := waitResult(t, done)
	assert.ErrorIs(t, r.err, ErrEvaluationTimedOut)
	assert.Equal(t, evaluation.Failed, r.status)
}

func TestPolicyRequest_DeadlineCarriesOverPasses(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	counter := variable.NewCopyWithValue("counter", variable.ModeAsync, 0)
	p := &policyFunc{fn: func(ec *evaluation.Context, _ *testData) evaluation.EvalStatus {
		evaluation.Read[int](ec, counter)
		return evaluation.AskAgainLater
	}}
	m := newTestManager(clock, p, time.Minute)
	defer m.Stop()

	done := request(m, context.Background(), "test", &testData{})

	blockUntilWaiting(t, clock, 1)
	clock.Advance(40 * time.Second)
	counter.Set(1)

	require.Eventually(t, func() bool { return p.passes.Load() == 2 }, 5*time.Second, 10*time.Millisecond)
	blockUntilWaiting(t, clock, 1)
	clock.Advance(20 * time.Second)

	r := waitResult(t, done)
	assert.ErrorIs(t, r.err, ErrEvaluationTimedOut)
}

func TestPolicyRequest_ReevaluatesAtWallclockTrigger(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	p := &policyFunc{fn: func(ec *evaluation.Context, _ *testData) evaluation.EvalStatus {
		if ec.IsWallclockTimeGreaterThan(testStart.Add(10 * time.Minute)) {
			return evaluation.Succeeded
		}
		return evaluation.AskAgainLater
	}}
	m := newTestManager(clock, p, time.Hour)
	defer m.Stop()

	done := request(m, context.Background(), "test", &testData{})

	blockUntilWaiting(t, clock, 1)
	clock.Advance(11 * time.Minute)

	r := waitResult(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, evaluation.Succeeded, r.status)
}

func TestPolicyRequest_CoalescesEquivalentRequests(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	p := waitForFlag(flag)
	m := newTestManager(clock, p, time.Hour)
	defer m.Stop()

	first := &testData{Input: "a"}
	second := &testData{Input: "a", Output: "stale"}

	done1 := request(m, context.Background(), "test", first)
	blockUntilWaiting(t, clock, 1)
	done2 := request(m, context.Background(), "test", second)
	require.Eventually(t, func() bool { return m.waitersOf("test", first) == 2 }, 5*time.Second, 10*time.Millisecond)

	flag.Set(true)

	r1, r2 := waitResult(t, done1), waitResult(t, done2)
	require.NoError(t, r1.err)
	require.NoError(t, r2.err)
	assert.Equal(t, evaluation.Succeeded, r1.status)
	assert.Equal(t, evaluation.Succeeded, r2.status)
	assert.Equal(t, "done:a", first.Output)
	assert.Equal(t, "done:a", second.Output)
	assert.EqualValues(t, 2, p.passes.Load())
}

func TestPolicyRequest_DistinctInputsAreNotCoalesced(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	p := waitForFlag(flag)
	m := newTestManager(clock, p, time.Hour)
	defer m.Stop()

	done1 := request(m, context.Background(), "test", &testData{Input: "a"})
	done2 := request(m, context.Background(), "test", &testData{Input: "b"})
	done3 := request(m, context.Background(), "other", &testData{Input: "a"})

	blockUntilWaiting(t, clock, 3)
	assert.Equal(t, 3, m.inFlight())

	flag.Set(true)
	for _, done := range []<-chan result{done1, done2, done3} {
		r := waitResult(t, done)
		assert.Equal(t, evaluation.Succeeded, r.status)
	}
	assert.EqualValues(t, 6, p.passes.Load())
}

func TestPolicyRequest_CancelledWaiterLeavesOthersRunning(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	m := newTestManager(clock, waitForFlag(flag), time.Hour)
	defer m.Stop()

	data := &testData{Input: "a"}
	ctx, cancel := context.WithCancel(context.Background())
	done1 := request(m, ctx, "test", data)
	blockUntilWaiting(t, clock, 1)
	done2 := request(m, context.Background(), "test", &testData{Input: "a"})
	require.Eventually(t, func() bool { return m.waitersOf("test", data) == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	r1 := waitResult(t, done1)
	assert.ErrorIs(t, r1.err, context.Canceled)
	assert.Equal(t, 1, m.waitersOf("test", data))

	flag.Set(true)
	r2 := waitResult(t, done2)
	require.NoError(t, r2.err)
	assert.Equal(t, evaluation.Succeeded, r2.status)
}

func TestAsyncPolicyRequest_Callback(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	m := newTestManager(clock, waitForFlag(flag), time.Hour)
	defer m.Stop()

	data := &testData{Input: "a"}
	done := make(chan result, 1)
	m.AsyncPolicyRequest("test", data, func(status evaluation.EvalStatus, err error) {
		done <- result{status: status, err: err}
	})

	blockUntilWaiting(t, clock, 1)
	flag.Set(true)

	r := waitResult(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, evaluation.Succeeded, r.status)
	assert.Equal(t, "done:a", data.Output)
}

func TestAsyncPolicyRequest_CancelReleasesTriggers(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	p := waitForFlag(flag)
	m := newTestManager(clock, p, time.Hour)
	defer m.Stop()

	var called atomic.Bool
	cancel := m.AsyncPolicyRequest("test", &testData{}, func(evaluation.EvalStatus, error) {
		called.Store(true)
	})

	blockUntilWaiting(t, clock, 1)
	cancel()
	require.Eventually(t, func() bool { return m.inFlight() == 0 }, 5*time.Second, 10*time.Millisecond)

	flag.Set(true)
	clock.Advance(2 * time.Hour)

	assert.Never(t, func() bool { return p.passes.Load() > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.False(t, called.Load())
}

func TestStop_FailsOutstandingRequests(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	flag := variable.NewCopy[bool]("flag", variable.ModeAsync)
	m := newTestManager(clock, waitForFlag(flag), time.Hour)

	done := request(m, context.Background(), "test", &testData{})
	callback := make(chan result, 1)
	m.AsyncPolicyRequest("test", &testData{Input: "b"}, func(status evaluation.EvalStatus, err error) {
		callback <- result{status: status, err: err}
	})
	blockUntilWaiting(t, clock, 2)

	m.Stop()

	assert.ErrorIs(t, waitResult(t, done).err, ErrManagerStopped)
	assert.ErrorIs(t, waitResult(t, callback).err, ErrManagerStopped)

	_, err := m.PolicyRequest(context.Background(), "test", &testData{})
	assert.ErrorIs(t, err, ErrManagerStopped)

	var late error
	m.AsyncPolicyRequest("test", &testData{}, func(_ evaluation.EvalStatus, err error) { late = err })
	assert.ErrorIs(t, late, ErrManagerStopped)
}

func TestConfig_Timeout(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 12*time.Hour, config.Timeout("UpdateCheckAllowed"))
	assert.Equal(t, time.Minute, config.Timeout("UpdateCanStart"))
	assert.Equal(t, 5*time.Second, config.Timeout("UpdateCanBeApplied"))
	assert.Equal(t, fallbackTimeout, config.Timeout(testKind))
}
