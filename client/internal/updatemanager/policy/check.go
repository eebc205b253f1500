package policy

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
)

// OnlyUpdateOfficialBuilds blocks periodic checks on developer builds unless a
// test check interval was configured.
type OnlyUpdateOfficialBuilds struct {
	system  state.SystemProvider
	updater state.UpdaterProvider
}

func NewOnlyUpdateOfficialBuilds(system state.SystemProvider, updater state.UpdaterProvider) *OnlyUpdateOfficialBuilds {
	return &OnlyUpdateOfficialBuilds{system: system, updater: updater}
}

func (p *OnlyUpdateOfficialBuilds) Name() string {
	return "OnlyUpdateOfficialBuildsPolicy"
}

func (p *OnlyUpdateOfficialBuilds) Evaluate(ec *evaluation.Context, _ evaluation.Data) evaluation.EvalStatus {
	official, ok := evaluation.Read[bool](ec, p.system.IsOfficialBuild())
	if !ok || official {
		return evaluation.Continue
	}

	if interval, ok := evaluation.Read[time.Duration](ec, p.updater.TestUpdateCheckInterval()); ok && interval > 0 {
		return evaluation.Continue
	}

	log.Infof("%s: unofficial build, blocking periodic update checks", p.Name())
	return evaluation.AskAgainLater
}

// InteractiveUpdate lets explicitly requested updates bypass the schedule. It
// serves both check and apply decisions.
type InteractiveUpdate struct {
	updater state.UpdaterProvider
}

func NewInteractiveUpdate(updater state.UpdaterProvider) *InteractiveUpdate {
	return &InteractiveUpdate{updater: updater}
}

func (p *InteractiveUpdate) Name() string {
	return "InteractiveUpdatePolicy"
}

func (p *InteractiveUpdate) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	switch d := data.(type) {
	case *UpdateCheckParams:
		forced, ok := evaluation.Read[state.UpdateRequestStatus](ec, p.updater.ForcedUpdateRequested())
		if !ok || forced == state.UpdateRequestNone {
			return evaluation.Continue
		}
		log.Infof("%s: forced update requested (%s)", p.Name(), forced)
		d.UpdatesEnabled = true
		d.Interactive = forced == state.UpdateRequestInteractive
		return evaluation.Succeeded
	case *UpdateCanBeAppliedData:
		if d.Plan == nil || !d.Plan.Interactive {
			return evaluation.Continue
		}
		log.Infof("%s: interactive update, applying now", p.Name())
		d.ErrorCode = ErrorCodeSuccess
		return evaluation.Succeeded
	default:
		return evaluation.Continue
	}
}

// EnterpriseDevice applies the administrator's device policy to update checks.
type EnterpriseDevice struct {
	devicePolicy state.DevicePolicyProvider
}

func NewEnterpriseDevice(devicePolicy state.DevicePolicyProvider) *EnterpriseDevice {
	return &EnterpriseDevice{devicePolicy: devicePolicy}
}

func (p *EnterpriseDevice) Name() string {
	return "EnterpriseDevicePolicy"
}

func (p *EnterpriseDevice) Evaluate(ec *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	d, ok := data.(*UpdateCheckParams)
	if !ok {
		return evaluation.Continue
	}

	if loaded, ok := evaluation.Read[bool](ec, p.devicePolicy.PolicyIsLoaded()); !ok || !loaded {
		return evaluation.Continue
	}

	if disabled, ok := evaluation.Read[bool](ec, p.devicePolicy.UpdateDisabled()); ok && disabled {
		log.Infof("%s: updates disabled by policy, blocking update checks", p.Name())
		return evaluation.AskAgainLater
	}

	if prefix, ok := evaluation.Read[string](ec, p.devicePolicy.TargetVersionPrefix()); ok {
		d.TargetVersionPrefix = prefix
	}

	if setting, ok := evaluation.Read[state.RollbackToTargetVersion](ec, p.devicePolicy.RollbackToTargetVersion()); ok {
		d.RollbackAllowed = setting.AllowsRollback()
		d.RollbackDataSaveRequested = setting == state.RollbackAndRestoreIfPossible
	}

	if milestones, ok := evaluation.Read[int](ec, p.devicePolicy.RollbackAllowedMilestones()); ok {
		d.RollbackAllowedMilestones = milestones
	}

	delegated, ok := evaluation.Read[bool](ec, p.devicePolicy.ReleaseChannelDelegated())
	if !ok || !delegated {
		if channel, ok := evaluation.Read[string](ec, p.devicePolicy.ReleaseChannel()); ok {
			d.TargetChannel = channel
		}
	}

	return evaluation.Continue
}

// OOBE holds update checks until the out-of-box experience is complete.
type OOBE struct {
	system state.SystemProvider
}

func NewOOBE(system state.SystemProvider) *OOBE {
	return &OOBE{system: system}
}

func (p *OOBE) Name() string {
	return "OOBEPolicy"
}

func (p *OOBE) Evaluate(ec *evaluation.Context, _ evaluation.Data) evaluation.EvalStatus {
	if enabled, ok := evaluation.Read[bool](ec, p.system.IsOOBEEnabled()); !ok || !enabled {
		return evaluation.Continue
	}

	if complete, ok := evaluation.Read[bool](ec, p.system.IsOOBEComplete()); ok && !complete {
		log.Infof("%s: OOBE not completed, blocking update checks", p.Name())
		return evaluation.AskAgainLater
	}
	return evaluation.Continue
}

// bootSettleTime is how long after boot periodic checks are held.
const bootSettleTime = 2 * time.Minute

// RecentBoot holds periodic update checks until the system has been up for
// bootSettleTime. An unknown uptime does not block.
type RecentBoot struct {
	system state.SystemProvider
}

func NewRecentBoot(system state.SystemProvider) *RecentBoot {
	return &RecentBoot{system: system}
}

func (p *RecentBoot) Name() string {
	return "RecentBootPolicy"
}

func (p *RecentBoot) Evaluate(ec *evaluation.Context, _ evaluation.Data) evaluation.EvalStatus {
	uptime, ok := evaluation.Read[time.Duration](ec, p.system.Uptime())
	if !ok {
		return evaluation.Continue
	}

	settled := ec.Now().Add(bootSettleTime - uptime)
	if ec.IsWallclockTimeGreaterThan(settled) {
		return evaluation.Continue
	}

	log.Infof("%s: system booted %s ago, holding update checks until %s", p.Name(), uptime, settled.Format(time.RFC3339))
	return evaluation.AskAgainLater
}
