package policy

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
)

const (
	checkInitialInterval    = 7 * time.Minute
	checkPeriodicInterval   = 45 * time.Minute
	checkMaxBackoffInterval = 4 * time.Hour
	checkRegularFuzz        = 10 * time.Minute

	// exponentialSteps bounds the doubling loop; the interval is capped long
	// before that.
	exponentialSteps = 64
)

// exponentialInterval returns initial doubled steps-1 times and capped at limit.
func exponentialInterval(initial, limit time.Duration, steps int) time.Duration {
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(limit),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)

	steps = min(max(steps, 1), exponentialSteps)
	interval := b.NextBackOff()
	for i := 1; i < steps; i++ {
		interval = b.NextBackOff()
	}
	return interval
}

// fuzzedInterval picks a value uniformly from [interval-fuzz/2, interval+fuzz/2],
// never negative.
func fuzzedInterval(prng *rand.Rand, interval, fuzz time.Duration) time.Duration {
	if fuzz <= 0 {
		return interval
	}
	lower := max(interval-fuzz/2, 0)
	upper := interval + fuzz/2
	return lower + time.Duration(prng.Int64N(int64(upper-lower)+1))
}

func newPRNG(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// NextUpdateCheckTime holds periodic update checks until the next check is
// due. The schedule backs off exponentially after failed checks.
type NextUpdateCheckTime struct {
	updater state.UpdaterProvider
	random  state.RandomProvider
}

func NewNextUpdateCheckTime(updater state.UpdaterProvider, random state.RandomProvider) *NextUpdateCheckTime {
	return &NextUpdateCheckTime{updater: updater, random: random}
}

func (p *NextUpdateCheckTime) Name() string {
	return "NextUpdateCheckTimePolicy"
}

func (p *NextUpdateCheckTime) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	next, ok := p.NextCheck(ec)
	if !ok {
		log.Warnf("%s: unable to compute next update check time", p.Name())
		return evaluation.AskAgainLater
	}

	if !ec.IsWallclockTimeGreaterThan(next) {
		log.Infof("%s: periodic check interval not satisfied, blocking until %s",
			p.Name(), next.Format(time.RFC3339))
		return evaluation.AskAgainLater
	}

	if d, ok := data.(*UpdateCheckParams); ok {
		d.UpdatesEnabled = true
	}
	return evaluation.Continue
}

// NextCheck computes when the next periodic check is due.
func (p *NextUpdateCheckTime) NextCheck(ec *evaluation.Context) (time.Time, bool) {
	startedTime, ok := evaluation.Read[time.Time](ec, p.updater.UpdaterStartedTime())
	if !ok {
		return time.Time{}, false
	}
	seed, ok := evaluation.Read[uint64](ec, p.random.Seed())
	if !ok {
		return time.Time{}, false
	}
	prng := newPRNG(seed)

	lastChecked, ok := evaluation.Read[time.Time](ec, p.updater.LastCheckedTime())
	if !ok || lastChecked.Before(startedTime) {
		return startedTime.Add(fuzzedInterval(prng, checkInitialInterval, checkRegularFuzz)), true
	}

	if testInterval, ok := evaluation.Read[time.Duration](ec, p.updater.TestUpdateCheckInterval()); ok && testInterval > 0 {
		return lastChecked.Add(testInterval), true
	}

	interval := checkPeriodicInterval
	fuzz := checkRegularFuzz

	serverInterval, _ := evaluation.Read[time.Duration](ec, p.updater.ServerDictatedPollInterval())
	failures, _ := evaluation.Read[int](ec, p.updater.ConsecutiveFailedUpdateChecks())

	switch {
	case serverInterval > 0:
		interval = min(serverInterval, checkMaxBackoffInterval)
	case failures > 0:
		interval = exponentialInterval(checkPeriodicInterval, checkMaxBackoffInterval, failures+1)
		fuzz = interval
		log.Debugf("%s: %d consecutive failed checks, backing off to %s", p.Name(), failures, interval)
	}

	return lastChecked.Add(fuzzedInterval(prng, interval, fuzz)), true
}

const (
	downloadBackoffInitial = 24 * time.Hour
	downloadBackoffMax     = 16 * 24 * time.Hour
)

// UpdateBackoff stops downloads from starting again too soon after failures.
type UpdateBackoff struct{}

func NewUpdateBackoff() *UpdateBackoff {
	return &UpdateBackoff{}
}

func (p *UpdateBackoff) Name() string {
	return "UpdateBackoffPolicy"
}

func (p *UpdateBackoff) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	d, ok := data.(*UpdateCanStartData)
	if !ok {
		return evaluation.Continue
	}

	st := d.State
	if st.Interactive || st.IsBackoffDisabled || st.NumDownloadFailures == 0 || st.LastDownloadFailure.IsZero() {
		return evaluation.Continue
	}

	expiry := st.LastDownloadFailure.Add(exponentialInterval(downloadBackoffInitial, downloadBackoffMax, st.NumDownloadFailures))
	d.Result.BackoffExpiry = expiry
	if ec.IsWallclockTimeGreaterThan(expiry) {
		return evaluation.Continue
	}

	log.Infof("%s: %d failed downloads, backing off until %s",
		p.Name(), st.NumDownloadFailures, expiry.Format(time.RFC3339))
	d.Result.UpdateCanStart = false
	d.Result.CannotStartReason = CannotStartReasonBackoff
	return evaluation.Succeeded
}

// Scattering spreads non-interactive downloads of one update over the
// administrator's scatter factor.
type Scattering struct {
	devicePolicy state.DevicePolicyProvider
	random       state.RandomProvider
}

func NewScattering(devicePolicy state.DevicePolicyProvider, random state.RandomProvider) *Scattering {
	return &Scattering{devicePolicy: devicePolicy, random: random}
}

func (p *Scattering) Name() string {
	return "ScatteringPolicy"
}

func (p *Scattering) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	d, ok := data.(*UpdateCanStartData)
	if !ok || d.State.Interactive {
		return evaluation.Continue
	}

	factor, ok := evaluation.Read[time.Duration](ec, p.devicePolicy.ScatterFactor())
	if !ok || factor <= 0 {
		return evaluation.Continue
	}

	wait := d.State.ScatterWaitPeriod
	if wait <= 0 || wait > factor {
		seed, ok := evaluation.Read[uint64](ec, p.random.Seed())
		if !ok {
			return evaluation.Continue
		}
		wait = time.Duration(newPRNG(seed).Int64N(int64(factor))) + 1
	}
	d.Result.ScatterWaitPeriod = wait

	if d.State.FirstSeen.IsZero() || ec.IsWallclockTimeGreaterThan(d.State.FirstSeen.Add(wait)) {
		return evaluation.Continue
	}

	log.Infof("%s: scattering update, waiting %s since %s",
		p.Name(), wait, d.State.FirstSeen.Format(time.RFC3339))
	d.Result.UpdateCanStart = false
	d.Result.CannotStartReason = CannotStartReasonScattering
	return evaluation.Succeeded
}

// Connection holds downloads until the device is online over a connection
// the administrator allows.
type Connection struct {
	network      state.NetworkProvider
	devicePolicy state.DevicePolicyProvider
}

func NewConnection(network state.NetworkProvider, devicePolicy state.DevicePolicyProvider) *Connection {
	return &Connection{network: network, devicePolicy: devicePolicy}
}

func (p *Connection) Name() string {
	return "ConnectionPolicy"
}

func (p *Connection) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	d, ok := data.(*UpdateCanStartData)
	if !ok {
		return evaluation.Continue
	}

	connType, ok := evaluation.Read[state.ConnectionType](ec, p.network.ConnectionType())
	if !ok {
		log.Debugf("%s: connection type not known yet, waiting", p.Name())
		return evaluation.AskAgainLater
	}
	if connType == state.ConnectionTypeNone {
		log.Infof("%s: not connected, waiting", p.Name())
		return evaluation.AskAgainLater
	}
	if connType == state.ConnectionTypeUnknown || d.State.Interactive {
		return evaluation.Continue
	}

	if allowed, ok := evaluation.Read[[]state.ConnectionType](ec, p.devicePolicy.AllowedConnectionTypes()); ok {
		for _, c := range allowed {
			if c == connType {
				return evaluation.Continue
			}
		}
		return p.refuse(d, connType)
	}

	if metered, ok := evaluation.Read[bool](ec, p.network.IsMetered()); ok && metered {
		return p.refuse(d, connType)
	}
	return evaluation.Continue
}

func (p *Connection) refuse(d *UpdateCanStartData, connType state.ConnectionType) evaluation.EvalStatus {
	log.Infof("%s: updates over %s are not allowed", p.Name(), connType)
	d.Result.UpdateCanStart = false
	d.Result.CannotStartReason = CannotStartReasonMeteredConnection
	return evaluation.Succeeded
}
