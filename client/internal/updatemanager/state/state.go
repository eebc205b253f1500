package state

import (
	"time"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// State groups the providers a policy may read from. It is passed explicitly
// to the code that builds policy chains.
type State struct {
	DevicePolicy DevicePolicyProvider
	System       SystemProvider
	Time         TimeProvider
	Network      NetworkProvider
	Updater      UpdaterProvider
	Random       RandomProvider
}

// DevicePolicyProvider exposes administrator-configured device policy.
type DevicePolicyProvider interface {
	PolicyIsLoaded() variable.Variable[bool]
	UpdateDisabled() variable.Variable[bool]
	TargetVersionPrefix() variable.Variable[string]
	MinimumVersion() variable.Variable[string]
	RollbackToTargetVersion() variable.Variable[RollbackToTargetVersion]
	RollbackAllowedMilestones() variable.Variable[int]
	ScatterFactor() variable.Variable[time.Duration]
	AllowedConnectionTypes() variable.Variable[[]ConnectionType]
	DisallowedTimeIntervals() variable.Variable[[]WeeklyTimeInterval]
	ReleaseChannel() variable.Variable[string]
	ReleaseChannelDelegated() variable.Variable[bool]
}

// SystemProvider exposes facts about the running system.
type SystemProvider interface {
	OSVersion() variable.Variable[string]
	IsOfficialBuild() variable.Variable[bool]
	IsOOBEEnabled() variable.Variable[bool]
	IsOOBEComplete() variable.Variable[bool]
	Uptime() variable.Variable[time.Duration]
}

// TimeProvider exposes the local wall-clock split into the parts policies use.
type TimeProvider interface {
	CurrDate() variable.Variable[time.Time]
	CurrHour() variable.Variable[int]
	CurrMinute() variable.Variable[int]
}

// NetworkProvider exposes the current connectivity.
type NetworkProvider interface {
	ConnectionType() variable.Variable[ConnectionType]
	IsMetered() variable.Variable[bool]
}

// UpdaterProvider exposes the updater's own bookkeeping. The engine only reads
// it; counters are written by the update attempter.
type UpdaterProvider interface {
	UpdaterStartedTime() variable.Variable[time.Time]
	LastCheckedTime() variable.Variable[time.Time]
	ConsecutiveFailedUpdateChecks() variable.Variable[int]
	ServerDictatedPollInterval() variable.Variable[time.Duration]
	ForcedUpdateRequested() variable.Variable[UpdateRequestStatus]
	TestUpdateCheckInterval() variable.Variable[time.Duration]
}

// RandomProvider exposes a seed for deterministic per-process randomness.
type RandomProvider interface {
	Seed() variable.Variable[uint64]
}
