package policy

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/evaluation"
	"github.com/netbirdio/updateengine/client/internal/updatemanager/state"
)

func TestEnterpriseRollback_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		isRollback bool
		setting    *state.RollbackToTargetVersion
		expected   evaluation.EvalStatus
		errorCode  ErrorCode
		powerwash  bool
		dataSave   bool
	}{
		{
			name:      "not a rollback",
			setting:   rollbackPtr(state.RollbackAndPowerwash),
			expected:  evaluation.Continue,
			errorCode: ErrorCodeError,
		},
		{
			name:       "rollback without policy",
			isRollback: true,
			expected:   evaluation.Continue,
			errorCode:  ErrorCodeError,
		},
		{
			name:       "rollback setting unspecified",
			isRollback: true,
			setting:    rollbackPtr(state.RollbackUnspecified),
			expected:   evaluation.Continue,
			errorCode:  ErrorCodeError,
		},
		{
			name:       "rollback disabled",
			isRollback: true,
			setting:    rollbackPtr(state.RollbackDisabled),
			expected:   evaluation.Succeeded,
			errorCode:  ErrorCodeOmahaUpdateIgnoredPerPolicy,
		},
		{
			name:       "rollback with powerwash",
			isRollback: true,
			setting:    rollbackPtr(state.RollbackAndPowerwash),
			expected:   evaluation.Succeeded,
			errorCode:  ErrorCodeSuccess,
			powerwash:  true,
		},
		{
			name:       "rollback restoring data",
			isRollback: true,
			setting:    rollbackPtr(state.RollbackAndRestoreIfPossible),
			expected:   evaluation.Succeeded,
			errorCode:  ErrorCodeSuccess,
			powerwash:  true,
			dataSave:   true,
		},
	}

	clock := clockwork.NewFakeClockAt(testStart)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := state.NewFakeState()
			if tc.setting != nil {
				fake.DevicePolicy.RollbackToTargetVersionVar.Set(*tc.setting)
			}
			data := &UpdateCanBeAppliedData{Plan: &InstallPlan{IsRollback: tc.isRollback}, ErrorCode: ErrorCodeError}

			status := NewEnterpriseRollback(fake.DevicePolicy).Evaluate(newTestContext(clock), data)

			assert.Equal(t, tc.expected, status)
			assert.Equal(t, tc.errorCode, data.ErrorCode)
			assert.Equal(t, tc.powerwash, data.Plan.PowerwashRequired)
			assert.Equal(t, tc.dataSave, data.Plan.RollbackDataSaveRequested)
		})
	}
}

func TestUpdateTimeRestrictions_Evaluate(t *testing.T) {
	// testStart is a Monday
	mondayNoon := testStart
	workHours := []state.WeeklyTimeInterval{{
		Start: state.WeeklyTime{DayOfWeek: time.Monday, Time: 9 * time.Hour},
		End:   state.WeeklyTime{DayOfWeek: time.Monday, Time: 17 * time.Hour},
	}}

	tests := []struct {
		name        string
		now         time.Time
		intervals   []state.WeeklyTimeInterval
		interactive bool
		expected    evaluation.EvalStatus
		errorCode   ErrorCode
	}{
		{
			name:      "no restrictions",
			now:       mondayNoon,
			expected:  evaluation.Succeeded,
			errorCode: ErrorCodeSuccess,
		},
		{
			name:      "inside disallowed interval",
			now:       mondayNoon,
			intervals: workHours,
			expected:  evaluation.Succeeded,
			errorCode: ErrorCodeOmahaUpdateDeferredPerPolicy,
		},
		{
			name:      "outside disallowed interval",
			now:       mondayNoon.Add(6 * time.Hour),
			intervals: workHours,
			expected:  evaluation.Succeeded,
			errorCode: ErrorCodeSuccess,
		},
		{
			name:        "interactive update ignores restrictions",
			now:         mondayNoon,
			intervals:   workHours,
			interactive: true,
			expected:    evaluation.Succeeded,
			errorCode:   ErrorCodeSuccess,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			clock := clockwork.NewFakeClockAt(tc.now)
			fake := state.NewFakeState()
			fake.Time.SetTime(tc.now)
			if tc.intervals != nil {
				fake.DevicePolicy.DisallowedTimeIntervalsVar.Set(tc.intervals)
			}

			chain := Chains(fake.State())[KindUpdateCanBeApplied]
			data := &UpdateCanBeAppliedData{Plan: &InstallPlan{Interactive: tc.interactive}, ErrorCode: ErrorCodeError}

			status := chain.Evaluate(newTestContext(clock), data)

			assert.Equal(t, tc.expected, status)
			assert.Equal(t, tc.errorCode, data.ErrorCode)
		})
	}
}

func TestUpdateCanBeAppliedData_CopyResult(t *testing.T) {
	leader := &UpdateCanBeAppliedData{
		Plan:      &InstallPlan{Version: "13315.60.15", IsRollback: true, PowerwashRequired: true},
		ErrorCode: ErrorCodeOmahaUpdateIgnoredPerPolicy,
	}
	joiner := &UpdateCanBeAppliedData{Plan: &InstallPlan{Version: "13315.60.15", IsRollback: true}}

	joiner.CopyResult(leader)

	assert.Equal(t, ErrorCodeOmahaUpdateIgnoredPerPolicy, joiner.ErrorCode)
	assert.True(t, joiner.Plan.PowerwashRequired)
	assert.NotSame(t, leader.Plan, joiner.Plan)
}

func rollbackPtr(r state.RollbackToTargetVersion) *state.RollbackToTargetVersion {
	return &r
}
