package policy

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
)

// newCheckState returns an official build that last checked an hour ago.
func newCheckState() *state.FakeState {
	fake := state.NewFakeState()
	fake.System.IsOfficialBuildVar.Set(true)
	fake.System.IsOOBEEnabledVar.Set(false)
	fake.Updater.UpdaterStartedTimeVar.Set(testStart.Add(-2 * time.Hour))
	fake.Updater.LastCheckedTimeVar.Set(testStart.Add(-time.Hour))
	fake.Updater.ConsecutiveFailedUpdateChecksVar.Set(0)
	fake.Updater.ForcedUpdateRequestedVar.Set(state.UpdateRequestNone)
	fake.Random.SeedVar.Set(42)
	return fake
}

func TestUpdateCheckAllowedChain(t *testing.T) {
	tests := []struct {
		name        string
		setup       func(f *state.FakeState)
		expected    evaluation.EvalStatus
		interactive bool
	}{
		{
			name:     "periodic check due",
			setup:    func(*state.FakeState) {},
			expected: evaluation.Succeeded,
		},
		{
			name: "periodic check not due yet",
			setup: func(f *state.FakeState) {
				f.Updater.LastCheckedTimeVar.Set(testStart.Add(-time.Minute))
			},
			expected: evaluation.AskAgainLater,
		},
		{
			name: "unofficial build blocks periodic checks",
			setup: func(f *state.FakeState) {
				f.System.IsOfficialBuildVar.Set(false)
			},
			expected: evaluation.AskAgainLater,
		},
		{
			name: "unofficial build with test interval",
			setup: func(f *state.FakeState) {
				f.System.IsOfficialBuildVar.Set(false)
				f.Updater.TestUpdateCheckIntervalVar.Set(time.Minute)
			},
			expected: evaluation.Succeeded,
		},
		{
			name: "forced interactive update skips the schedule",
			setup: func(f *state.FakeState) {
				f.Updater.LastCheckedTimeVar.Set(testStart.Add(-time.Minute))
				f.Updater.ForcedUpdateRequestedVar.Set(state.UpdateRequestInteractive)
			},
			expected:    evaluation.Succeeded,
			interactive: true,
		},
		{
			name: "updates disabled by policy",
			setup: func(f *state.FakeState) {
				f.DevicePolicy.PolicyIsLoadedVar.Set(true)
				f.DevicePolicy.UpdateDisabledVar.Set(true)
			},
			expected: evaluation.AskAgainLater,
		},
		{
			name: "OOBE not complete",
			setup: func(f *state.FakeState) {
				f.System.IsOOBEEnabledVar.Set(true)
				f.System.IsOOBECompleteVar.Set(false)
			},
			expected: evaluation.AskAgainLater,
		},
		{
			name: "recent boot holds periodic checks",
			setup: func(f *state.FakeState) {
				f.System.UptimeVar.Set(30 * time.Second)
			},
			expected: evaluation.AskAgainLater,
		},
		{
			name: "recent boot does not hold forced checks",
			setup: func(f *state.FakeState) {
				f.System.UptimeVar.Set(30 * time.Second)
				f.Updater.ForcedUpdateRequestedVar.Set(state.UpdateRequestPeriodic)
			},
			expected: evaluation.Succeeded,
		},
		{
			name: "settled system checks",
			setup: func(f *state.FakeState) {
				f.System.UptimeVar.Set(time.Hour)
			},
			expected: evaluation.Succeeded,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(testStart)
			fake := newCheckState()
			tc.setup(fake)

			chain := Chains(fake.State())[KindUpdateCheckAllowed]
			data := &UpdateCheckParams{}

			status := chain.Evaluate(newTestContext(clock), data)

			assert.Equal(t, tc.expected, status)
			if status == evaluation.Succeeded {
				assert.True(t, data.UpdatesEnabled)
			}
			assert.Equal(t, tc.interactive, data.Interactive)
		})
	}
}

func TestEnterpriseDevice_PopulatesParams(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	fake := newCheckState()
	fake.DevicePolicy.PolicyIsLoadedVar.Set(true)
	fake.DevicePolicy.UpdateDisabledVar.Set(false)
	fake.DevicePolicy.TargetVersionPrefixVar.Set("13315.")
	fake.DevicePolicy.RollbackToTargetVersionVar.Set(state.RollbackAndRestoreIfPossible)
	fake.DevicePolicy.RollbackAllowedMilestonesVar.Set(4)
	fake.DevicePolicy.ReleaseChannelVar.Set("beta-channel")
	fake.DevicePolicy.ReleaseChannelDelegatedVar.Set(false)

	data := &UpdateCheckParams{}
	status := Chains(fake.State())[KindUpdateCheckAllowed].Evaluate(newTestContext(clock), data)

	require.Equal(t, evaluation.Succeeded, status)
	assert.Equal(t, UpdateCheckParams{
		UpdatesEnabled:            true,
		TargetChannel:             "beta-channel",
		TargetVersionPrefix:       "13315.",
		RollbackAllowed:           true,
		RollbackDataSaveRequested: true,
		RollbackAllowedMilestones: 4,
	}, *data)
}

func TestEnterpriseDevice_DelegatedChannel(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	fake := newCheckState()
	fake.DevicePolicy.PolicyIsLoadedVar.Set(true)
	fake.DevicePolicy.ReleaseChannelVar.Set("beta-channel")
	fake.DevicePolicy.ReleaseChannelDelegatedVar.Set(true)

	data := &UpdateCheckParams{}
	status := NewEnterpriseDevice(fake.DevicePolicy).Evaluate(newTestContext(clock), data)

	assert.Equal(t, evaluation.Continue, status)
	assert.Empty(t, data.TargetChannel)
}

func TestUpdateCheckAllowed_WaitsOnAsyncInputs(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	fake := newCheckState()
	fake.DevicePolicy.PolicyIsLoadedVar.Set(true)
	fake.DevicePolicy.UpdateDisabledVar.Set(true)

	ec := newTestContext(clock)
	status := Chains(fake.State())[KindUpdateCheckAllowed].Evaluate(ec, &UpdateCheckParams{})
	require.Equal(t, evaluation.AskAgainLater, status)

	var names []string
	for _, v := range ec.AsyncVariables() {
		names = append(names, v.Name())
	}
	assert.Contains(t, names, "update_disabled")
	assert.Contains(t, names, "forced_update_requested")
}

func TestRecentBoot_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		uptime     *time.Duration
		expected   evaluation.EvalStatus
		reevaluate time.Time
	}{
		{
			name:     "uptime unknown",
			expected: evaluation.Continue,
		},
		{
			name:       "just booted",
			uptime:     durationPtr(30 * time.Second),
			expected:   evaluation.AskAgainLater,
			reevaluate: testStart.Add(90 * time.Second),
		},
		{
			name:     "settled",
			uptime:   durationPtr(bootSettleTime + time.Second),
			expected: evaluation.Continue,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(testStart)
			fake := state.NewFakeState()
			if tc.uptime != nil {
				fake.System.UptimeVar.Set(*tc.uptime)
			}

			ec := newTestContext(clock)
			status := NewRecentBoot(fake.System).Evaluate(ec, &UpdateCheckParams{})

			assert.Equal(t, tc.expected, status)
			next, ok := ec.NextReevaluation()
			if tc.reevaluate.IsZero() {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tc.reevaluate, next)
		})
	}
}

func durationPtr(d time.Duration) *time.Duration {
	return &d
}
