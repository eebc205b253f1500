package attempter

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/netbirdio/updateengine/client/internal/updatemanager"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/policy"
)

const (
	requesterName = "update_attempter"

	retryInterval = time.Minute
	checkTimeout  = time.Minute

	forceUpdateInterval = 10 * time.Second
	forceUpdateBurst    = 3
)

// ErrForceUpdateThrottled is returned when forced checks are requested faster
// than they are served.
var ErrForceUpdateThrottled = errors.New("too many forced update requests")

// PolicyRequester is the decision engine as seen by the attempter.
type PolicyRequester interface {
	PolicyRequest(ctx context.Context, requester string, data evaluation.Data) (evaluation.EvalStatus, error)
	AsyncPolicyRequest(requester string, data evaluation.Data, callback func(evaluation.EvalStatus, error)) (cancel func())
}

// UpdaterRecorder stores the attempter's bookkeeping.
type UpdaterRecorder interface {
	RecordUpdateCheck(succeeded bool, serverPollInterval time.Duration) error
	RequestForcedUpdate(interactive bool)
	ClearForcedUpdate()
}

// Attempter drives update checks. It asks the engine whether a check may run,
// performs it, records the outcome and, when an update is offered, asks
// whether it may be downloaded and applied.
type Attempter struct {
	clock   clockwork.Clock
	engine  PolicyRequester
	checker Checker
	updater UpdaterRecorder

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// offered tracks the update currently offered by the server across checks
	offered      *policy.UpdateState
	offerVersion string

	forceLimiter *rate.Limiter

	onUpdateReady func(plan policy.InstallPlan)
	listenerLock  sync.Mutex
}

func New(clock clockwork.Clock, engine PolicyRequester, checker Checker, updater UpdaterRecorder) *Attempter {
	return &Attempter{
		clock:   clock,
		engine:  engine,
		checker: checker,
		updater: updater,

		forceLimiter: rate.NewLimiter(rate.Every(forceUpdateInterval), forceUpdateBurst),
	}
}

// SetOnUpdateReadyListener registers fn to be called with every install plan
// the engine allowed to be applied.
func (a *Attempter) SetOnUpdateReadyListener(fn func(plan policy.InstallPlan)) {
	a.listenerLock.Lock()
	defer a.listenerLock.Unlock()
	a.onUpdateReady = fn
}

func (a *Attempter) Start(ctx context.Context) {
	if a.cancel != nil {
		log.Errorf("update attempter already started")
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.updateLoop(ctx)
}

func (a *Attempter) Stop() {
	if a.cancel == nil {
		return
	}

	a.cancel()
	a.wg.Wait()
}

// ForceUpdate requests an update check outside the regular schedule. A
// pending check decision picks it up immediately.
func (a *Attempter) ForceUpdate(interactive bool) error {
	if !a.forceLimiter.Allow() {
		return ErrForceUpdateThrottled
	}
	log.Infof("forced update check requested (interactive: %t)", interactive)
	a.updater.RequestForcedUpdate(interactive)
	return nil
}

type decision struct {
	status evaluation.EvalStatus
	err    error
}

func (a *Attempter) updateLoop(ctx context.Context) {
	defer a.wg.Done()

	for {
		params := &policy.UpdateCheckParams{}
		decided := make(chan decision, 1)
		cancelRequest := a.engine.AsyncPolicyRequest(requesterName, params, func(status evaluation.EvalStatus, err error) {
			decided <- decision{status: status, err: err}
		})

		var d decision
		select {
		case <-ctx.Done():
			cancelRequest()
			return
		case d = <-decided:
		}

		switch {
		case errors.Is(d.err, updatemanager.ErrManagerStopped):
			log.Debugf("update manager stopped, leaving the update loop")
			return
		case errors.Is(d.err, updatemanager.ErrEvaluationTimedOut):
			log.Debugf("update check was not allowed within the evaluation window, asking again")
			continue
		case d.err != nil:
			log.Errorf("update check decision failed: %v", d.err)
		case d.status != evaluation.Succeeded:
			log.Infof("update check refused by policy")
		default:
			a.checkForUpdate(ctx, *params)
			continue
		}

		if !a.sleep(ctx, retryInterval) {
			return
		}
	}
}

func (a *Attempter) checkForUpdate(ctx context.Context, params policy.UpdateCheckParams) {
	a.updater.ClearForcedUpdate()

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	offer, err := a.checker.Check(checkCtx, params)
	cancel()
	if ctx.Err() != nil {
		return
	}

	if recErr := a.updater.RecordUpdateCheck(err == nil, offer.PollInterval); recErr != nil {
		log.Errorf("failed to record update check: %v", recErr)
	}

	if err != nil {
		log.Warnf("update check failed: %v", err)
		return
	}

	if !offer.UpdateAvailable {
		log.Debugf("no update available")
		return
	}

	a.handleOffer(ctx, offer, params.Interactive)
}

func (a *Attempter) handleOffer(ctx context.Context, offer Offer, interactive bool) {
	start := &policy.UpdateCanStartData{State: a.offeredState(offer.Version, interactive)}
	if _, err := a.engine.PolicyRequest(ctx, requesterName, start); err != nil {
		log.Warnf("update to %s: can-start decision failed: %v", offer.Version, err)
		return
	}
	a.offered.ScatterWaitPeriod = start.Result.ScatterWaitPeriod

	if !start.Result.UpdateCanStart {
		log.Infof("update to %s cannot start yet: %s", offer.Version, start.Result.CannotStartReason)
		return
	}

	apply := &policy.UpdateCanBeAppliedData{
		Plan: &policy.InstallPlan{Version: offer.Version, Interactive: interactive},
	}
	status, err := a.engine.PolicyRequest(ctx, requesterName, apply)
	if err != nil {
		log.Warnf("update to %s: can-be-applied decision failed: %v", offer.Version, err)
		return
	}
	if status != evaluation.Succeeded || apply.ErrorCode != policy.ErrorCodeSuccess {
		log.Infof("update to %s not applied: %s", offer.Version, apply.ErrorCode)
		return
	}

	log.Infof("update to %s can be applied (powerwash required: %t)", offer.Version, apply.Plan.PowerwashRequired)

	a.listenerLock.Lock()
	defer a.listenerLock.Unlock()
	if a.onUpdateReady != nil {
		a.onUpdateReady(*apply.Plan)
	}
}

// offeredState returns the download state of version, starting a new one when
// the server offers a different version than before.
func (a *Attempter) offeredState(version string, interactive bool) policy.UpdateState {
	if a.offered == nil || a.offerVersion != version {
		a.offerVersion = version
		a.offered = &policy.UpdateState{FirstSeen: a.clock.Now()}
	}
	a.offered.Interactive = interactive
	return *a.offered
}

func (a *Attempter) sleep(ctx context.Context, d time.Duration) bool {
	timer := a.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
