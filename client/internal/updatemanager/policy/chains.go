package policy

import (
	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
)

// defaultPolicy terminates every chain. It decides in favour of the update.
type defaultPolicy struct{}

func (defaultPolicy) Name() string {
	return "DefaultPolicy"
}

func (defaultPolicy) Evaluate(_ *evaluation.Context, data evaluation.Data) evaluation.EvalStatus {
	switch d := data.(type) {
	case *UpdateCheckParams:
		d.UpdatesEnabled = true
	case *UpdateCanBeAppliedData:
		d.ErrorCode = ErrorCodeSuccess
	case *UpdateCanStartData:
		d.Result.UpdateCanStart = true
		d.Result.CannotStartReason = CannotStartReasonNone
	default:
		return evaluation.Failed
	}
	return evaluation.Succeeded
}

// Chains builds the policy chain of every decision kind over st.
func Chains(st *state.State) map[evaluation.Kind]evaluation.Chain {
	interactive := NewInteractiveUpdate(st.Updater)

	return map[evaluation.Kind]evaluation.Chain{
		KindUpdateCheckAllowed: evaluation.NewChain(KindUpdateCheckAllowed, defaultPolicy{},
			NewOnlyUpdateOfficialBuilds(st.System, st.Updater),
			interactive,
			NewEnterpriseDevice(st.DevicePolicy),
			NewOOBE(st.System),
			NewRecentBoot(st.System),
			NewNextUpdateCheckTime(st.Updater, st.Random),
		),
		KindUpdateCanBeApplied: evaluation.NewChain(KindUpdateCanBeApplied, defaultPolicy{},
			NewEnterpriseRollback(st.DevicePolicy),
			NewMinimumVersion(st.System, st.DevicePolicy),
			interactive,
			NewUpdateTimeRestrictions(st.DevicePolicy, st.Time),
		),
		KindUpdateCanStart: evaluation.NewChain(KindUpdateCanStart, defaultPolicy{},
			NewConnection(st.Network, st.DevicePolicy),
			NewScattering(st.DevicePolicy, st.Random),
			NewUpdateBackoff(),
		),
	}
}
