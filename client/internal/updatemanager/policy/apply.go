package policy

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
)

// EnterpriseRollback decides rollback install plans from the administrator's
// rollback setting.
type EnterpriseRollback struct {
	devicePolicy state.DevicePolicyProvider
}

func NewEnterpriseRollback(devicePolicy state.DevicePolicyProvider) *EnterpriseRollback {
	return &EnterpriseRollback{devicePolicy: devicePolicy}
}

func (p *EnterpriseRollback) Name() string {
	return "EnterpriseRollbackPolicy"
}

func (p *EnterpriseRollback) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	d, ok := data.(*UpdateCanBeAppliedData)
	if !ok || d.Plan == nil || !d.Plan.IsRollback {
		return evaluation.Continue
	}

	setting, ok := evaluation.Read[state.RollbackToTargetVersion](ec, p.devicePolicy.RollbackToTargetVersion())
	if !ok {
		return evaluation.Continue
	}

	switch setting {
	case state.RollbackAndPowerwash:
		log.Infof("%s: applying rollback with powerwash", p.Name())
		d.Plan.PowerwashRequired = true
	case state.RollbackAndRestoreIfPossible:
		log.Infof("%s: applying rollback, restoring data if possible", p.Name())
		d.Plan.PowerwashRequired = true
		d.Plan.RollbackDataSaveRequested = true
	case state.RollbackDisabled:
		log.Infof("%s: rollback is disabled by policy, ignoring update", p.Name())
		d.ErrorCode = ErrorCodeOmahaUpdateIgnoredPerPolicy
		return evaluation.Succeeded
	case state.RollbackUnspecified:
		return evaluation.Continue
	default:
		log.Warnf("%s: unexpected rollback setting %q, deferring", p.Name(), setting)
		return evaluation.Continue
	}

	d.ErrorCode = ErrorCodeSuccess
	return evaluation.Succeeded
}

// UpdateTimeRestrictions defers non-interactive updates that fall into one of
// the weekly intervals the administrator blocked.
type UpdateTimeRestrictions struct {
	devicePolicy state.DevicePolicyProvider
	clock        state.TimeProvider
}

func NewUpdateTimeRestrictions(devicePolicy state.DevicePolicyProvider, clock state.TimeProvider) *UpdateTimeRestrictions {
	return &UpdateTimeRestrictions{devicePolicy: devicePolicy, clock: clock}
}

func (p *UpdateTimeRestrictions) Name() string {
	return "UpdateTimeRestrictionsPolicy"
}

func (p *UpdateTimeRestrictions) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	d, ok := data.(*UpdateCanBeAppliedData)
	if !ok {
		return evaluation.Continue
	}

	intervals, ok := evaluation.Read[[]state.WeeklyTimeInterval](ec, p.devicePolicy.DisallowedTimeIntervals())
	if !ok || len(intervals) == 0 {
		return evaluation.Continue
	}

	now, ok := p.weeklyNow(ec)
	if !ok {
		return evaluation.Continue
	}

	for _, interval := range intervals {
		if !interval.InRange(now) {
			continue
		}
		log.Infof("%s: %s falls into disallowed interval %s, deferring for %s",
			p.Name(), now, interval, now.DurationTo(interval.End))
		d.ErrorCode = ErrorCodeOmahaUpdateDeferredPerPolicy
		return evaluation.Succeeded
	}

	return evaluation.Continue
}

func (p *UpdateTimeRestrictions) weeklyNow(ec *evaluation.Context) (state.WeeklyTime, bool) {
	date, ok := evaluation.Read[time.Time](ec, p.clock.CurrDate())
	if !ok {
		return state.WeeklyTime{}, false
	}
	hour, ok := evaluation.Read[int](ec, p.clock.CurrHour())
	if !ok {
		return state.WeeklyTime{}, false
	}
	minute, ok := evaluation.Read[int](ec, p.clock.CurrMinute())
	if !ok {
		return state.WeeklyTime{}, false
	}

	return state.WeeklyTime{
		DayOfWeek: date.Weekday(),
		Time:      time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute,
	}, true
}
