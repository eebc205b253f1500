package state

import (
	"time"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// FakeDevicePolicyProvider is a DevicePolicyProvider whose values are set
// directly by tests. All variables start unset.
type FakeDevicePolicyProvider struct {
	PolicyIsLoadedVar            *variable.Copy[bool]
	UpdateDisabledVar            *variable.Copy[bool]
	TargetVersionPrefixVar       *variable.Copy[string]
	MinimumVersionVar            *variable.Copy[string]
	RollbackToTargetVersionVar   *variable.Copy[RollbackToTargetVersion]
	RollbackAllowedMilestonesVar *variable.Copy[int]
	ScatterFactorVar             *variable.Copy[time.Duration]
	AllowedConnectionTypesVar    *variable.Copy[[]ConnectionType]
	DisallowedTimeIntervalsVar   *variable.Copy[[]WeeklyTimeInterval]
	ReleaseChannelVar            *variable.Copy[string]
	ReleaseChannelDelegatedVar   *variable.Copy[bool]
}

func NewFakeDevicePolicyProvider() *FakeDevicePolicyProvider {
	return &FakeDevicePolicyProvider{
		PolicyIsLoadedVar:            variable.NewCopy[bool]("policy_is_loaded", variable.ModeAsync),
		UpdateDisabledVar:            variable.NewCopy[bool]("update_disabled", variable.ModeAsync),
		TargetVersionPrefixVar:       variable.NewCopy[string]("target_version_prefix", variable.ModeAsync),
		MinimumVersionVar:            variable.NewCopy[string]("device_minimum_version", variable.ModeAsync),
		RollbackToTargetVersionVar:   variable.NewCopy[RollbackToTargetVersion]("rollback_to_target_version", variable.ModeAsync),
		RollbackAllowedMilestonesVar: variable.NewCopy[int]("rollback_allowed_milestones", variable.ModeAsync),
		ScatterFactorVar:             variable.NewCopy[time.Duration]("scatter_factor", variable.ModeAsync),
		AllowedConnectionTypesVar:    variable.NewCopy[[]ConnectionType]("allowed_connection_types_for_update", variable.ModeAsync),
		DisallowedTimeIntervalsVar:   variable.NewCopy[[]WeeklyTimeInterval]("disallowed_time_intervals", variable.ModeAsync),
		ReleaseChannelVar:            variable.NewCopy[string]("release_channel", variable.ModeAsync),
		ReleaseChannelDelegatedVar:   variable.NewCopy[bool]("release_channel_delegated", variable.ModeAsync),
	}
}

func (p *FakeDevicePolicyProvider) PolicyIsLoaded() variable.Variable[bool] {
	return p.PolicyIsLoadedVar
}

func (p *FakeDevicePolicyProvider) UpdateDisabled() variable.Variable[bool] {
	return p.UpdateDisabledVar
}

func (p *FakeDevicePolicyProvider) TargetVersionPrefix() variable.Variable[string] {
	return p.TargetVersionPrefixVar
}

func (p *FakeDevicePolicyProvider) MinimumVersion() variable.Variable[string] {
	return p.MinimumVersionVar
}

func (p *FakeDevicePolicyProvider) RollbackToTargetVersion() variable.Variable[RollbackToTargetVersion] {
	return p.RollbackToTargetVersionVar
}

func (p *FakeDevicePolicyProvider) RollbackAllowedMilestones() variable.Variable[int] {
	return p.RollbackAllowedMilestonesVar
}

func (p *FakeDevicePolicyProvider) ScatterFactor() variable.Variable[time.Duration] {
	return p.ScatterFactorVar
}

func (p *FakeDevicePolicyProvider) AllowedConnectionTypes() variable.Variable[[]ConnectionType] {
	return p.AllowedConnectionTypesVar
}

func (p *FakeDevicePolicyProvider) DisallowedTimeIntervals() variable.Variable[[]WeeklyTimeInterval] {
	return p.DisallowedTimeIntervalsVar
}

func (p *FakeDevicePolicyProvider) ReleaseChannel() variable.Variable[string] {
	return p.ReleaseChannelVar
}

func (p *FakeDevicePolicyProvider) ReleaseChannelDelegated() variable.Variable[bool] {
	return p.ReleaseChannelDelegatedVar
}

// FakeSystemProvider is a SystemProvider for tests.
type FakeSystemProvider struct {
	OSVersionVar       *variable.Copy[string]
	IsOfficialBuildVar *variable.Copy[bool]
	IsOOBEEnabledVar   *variable.Copy[bool]
	IsOOBECompleteVar  *variable.Copy[bool]
	UptimeVar          *variable.Copy[time.Duration]
}

func NewFakeSystemProvider() *FakeSystemProvider {
	return &FakeSystemProvider{
		OSVersionVar:       variable.NewCopy[string]("os_version", variable.ModeSync),
		IsOfficialBuildVar: variable.NewCopy[bool]("is_official_build", variable.ModeSync),
		IsOOBEEnabledVar:   variable.NewCopy[bool]("is_oobe_enabled", variable.ModeSync),
		IsOOBECompleteVar:  variable.NewCopy[bool]("is_oobe_complete", variable.ModeSync),
		UptimeVar:          variable.NewCopy[time.Duration]("uptime", variable.ModeSync),
	}
}

func (p *FakeSystemProvider) OSVersion() variable.Variable[string] { return p.OSVersionVar }

func (p *FakeSystemProvider) IsOfficialBuild() variable.Variable[bool] { return p.IsOfficialBuildVar }

func (p *FakeSystemProvider) IsOOBEEnabled() variable.Variable[bool] { return p.IsOOBEEnabledVar }

func (p *FakeSystemProvider) IsOOBEComplete() variable.Variable[bool] { return p.IsOOBECompleteVar }

func (p *FakeSystemProvider) Uptime() variable.Variable[time.Duration] { return p.UptimeVar }

// FakeTimeProvider is a TimeProvider for tests.
type FakeTimeProvider struct {
	CurrDateVar   *variable.Copy[time.Time]
	CurrHourVar   *variable.Copy[int]
	CurrMinuteVar *variable.Copy[int]
}

func NewFakeTimeProvider() *FakeTimeProvider {
	return &FakeTimeProvider{
		CurrDateVar:   variable.NewCopy[time.Time]("curr_date", variable.ModeSync),
		CurrHourVar:   variable.NewCopy[int]("curr_hour", variable.ModeSync),
		CurrMinuteVar: variable.NewCopy[int]("curr_minute", variable.ModeSync),
	}
}

// SetTime sets every variable from t.
func (p *FakeTimeProvider) SetTime(t time.Time) {
	p.CurrDateVar.Set(time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location()))
	p.CurrHourVar.Set(t.Hour())
	p.CurrMinuteVar.Set(t.Minute())
}

func (p *FakeTimeProvider) CurrDate() variable.Variable[time.Time] { return p.CurrDateVar }

func (p *FakeTimeProvider) CurrHour() variable.Variable[int] { return p.CurrHourVar }

func (p *FakeTimeProvider) CurrMinute() variable.Variable[int] { return p.CurrMinuteVar }

// FakeNetworkProvider is a NetworkProvider for tests.
type FakeNetworkProvider struct {
	ConnectionTypeVar *variable.Copy[ConnectionType]
	IsMeteredVar      *variable.Copy[bool]
}

func NewFakeNetworkProvider() *FakeNetworkProvider {
	return &FakeNetworkProvider{
		ConnectionTypeVar: variable.NewCopy[ConnectionType]("connection_type", variable.ModeAsync),
		IsMeteredVar:      variable.NewCopy[bool]("is_metered", variable.ModeAsync),
	}
}

func (p *FakeNetworkProvider) ConnectionType() variable.Variable[ConnectionType] {
	return p.ConnectionTypeVar
}

func (p *FakeNetworkProvider) IsMetered() variable.Variable[bool] { return p.IsMeteredVar }

// FakeUpdaterProvider is an UpdaterProvider for tests.
type FakeUpdaterProvider struct {
	UpdaterStartedTimeVar            *variable.Copy[time.Time]
	LastCheckedTimeVar               *variable.Copy[time.Time]
	ConsecutiveFailedUpdateChecksVar *variable.Copy[int]
	ServerDictatedPollIntervalVar    *variable.Copy[time.Duration]
	ForcedUpdateRequestedVar         *variable.Copy[UpdateRequestStatus]
	TestUpdateCheckIntervalVar       *variable.Copy[time.Duration]
}

func NewFakeUpdaterProvider() *FakeUpdaterProvider {
	return &FakeUpdaterProvider{
		UpdaterStartedTimeVar:            variable.NewCopy[time.Time]("updater_started_time", variable.ModeSync),
		LastCheckedTimeVar:               variable.NewCopy[time.Time]("last_checked_time", variable.ModeSync),
		ConsecutiveFailedUpdateChecksVar: variable.NewCopy[int]("consecutive_failed_update_checks", variable.ModeSync),
		ServerDictatedPollIntervalVar:    variable.NewCopy[time.Duration]("server_dictated_poll_interval", variable.ModeSync),
		ForcedUpdateRequestedVar:         variable.NewCopy[UpdateRequestStatus]("forced_update_requested", variable.ModeAsync),
		TestUpdateCheckIntervalVar:       variable.NewCopy[time.Duration]("test_update_check_interval", variable.ModeSync),
	}
}

func (p *FakeUpdaterProvider) UpdaterStartedTime() variable.Variable[time.Time] {
	return p.UpdaterStartedTimeVar
}

func (p *FakeUpdaterProvider) LastCheckedTime() variable.Variable[time.Time] {
	return p.LastCheckedTimeVar
}

func (p *FakeUpdaterProvider) ConsecutiveFailedUpdateChecks() variable.Variable[int] {
	return p.ConsecutiveFailedUpdateChecksVar
}

func (p *FakeUpdaterProvider) ServerDictatedPollInterval() variable.Variable[time.Duration] {
	return p.ServerDictatedPollIntervalVar
}

func (p *FakeUpdaterProvider) ForcedUpdateRequested() variable.Variable[UpdateRequestStatus] {
	return p.ForcedUpdateRequestedVar
}

func (p *FakeUpdaterProvider) TestUpdateCheckInterval() variable.Variable[time.Duration] {
	return p.TestUpdateCheckIntervalVar
}

// FakeRandomProvider is a RandomProvider for tests.
type FakeRandomProvider struct {
	SeedVar *variable.Copy[uint64]
}

func NewFakeRandomProvider() *FakeRandomProvider {
	return &FakeRandomProvider{
		SeedVar: variable.NewCopy[uint64]("seed", variable.ModeSync),
	}
}

func (p *FakeRandomProvider) Seed() variable.Variable[uint64] { return p.SeedVar }

// FakeState bundles one fake of every provider.
type FakeState struct {
	DevicePolicy *FakeDevicePolicyProvider
	System       *FakeSystemProvider
	Time         *FakeTimeProvider
	Network      *FakeNetworkProvider
	Updater      *FakeUpdaterProvider
	Random       *FakeRandomProvider
}

// NewFakeState returns fakes with every variable unset.
func NewFakeState() *FakeState {
	return &FakeState{
		DevicePolicy: NewFakeDevicePolicyProvider(),
		System:       NewFakeSystemProvider(),
		Time:         NewFakeTimeProvider(),
		Network:      NewFakeNetworkProvider(),
		Updater:      NewFakeUpdaterProvider(),
		Random:       NewFakeRandomProvider(),
	}
}

// State returns the fakes as a State.
func (f *FakeState) State() *State {
	return &State{
		DevicePolicy: f.DevicePolicy,
		System:       f.System,
		Time:         f.Time,
		Network:      f.Network,
		Updater:      f.Updater,
		Random:       f.Random,
	}
}
