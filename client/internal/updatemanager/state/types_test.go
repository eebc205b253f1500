package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func weekly(day time.Weekday, hour, minute int) WeeklyTime {
	return WeeklyTime{DayOfWeek: day, Time: time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute}
}

func TestWeeklyTimeInterval_InRange(t *testing.T) {
	tests := []struct {
		name     string
		interval WeeklyTimeInterval
		at       WeeklyTime
		expected bool
	}{
		{
			name:     "inside same-day interval",
			interval: WeeklyTimeInterval{Start: weekly(time.Monday, 9, 0), End: weekly(time.Monday, 17, 0)},
			at:       weekly(time.Monday, 12, 0),
			expected: true,
		},
		{
			name:     "start is inclusive",
			interval: WeeklyTimeInterval{Start: weekly(time.Monday, 9, 0), End: weekly(time.Monday, 17, 0)},
			at:       weekly(time.Monday, 9, 0),
			expected: true,
		},
		{
			name:     "end is exclusive",
			interval: WeeklyTimeInterval{Start: weekly(time.Monday, 9, 0), End: weekly(time.Monday, 17, 0)},
			at:       weekly(time.Monday, 17, 0),
			expected: false,
		},
		{
			name:     "wraps over the weekend",
			interval: WeeklyTimeInterval{Start: weekly(time.Saturday, 22, 0), End: weekly(time.Sunday, 6, 0)},
			at:       weekly(time.Sunday, 1, 0),
			expected: true,
		},
		{
			name:     "outside wrapped interval",
			interval: WeeklyTimeInterval{Start: weekly(time.Saturday, 22, 0), End: weekly(time.Sunday, 6, 0)},
			at:       weekly(time.Wednesday, 1, 0),
			expected: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.interval.InRange(tc.at))
		})
	}
}

func TestWeeklyTime_DurationTo(t *testing.T) {
	assert.Equal(t, 5*time.Hour, weekly(time.Monday, 12, 0).DurationTo(weekly(time.Monday, 17, 0)))
	assert.Equal(t, 7*24*time.Hour-time.Hour, weekly(time.Monday, 12, 0).DurationTo(weekly(time.Monday, 11, 0)))
	assert.Equal(t, "Tuesday 08:05", weekly(time.Tuesday, 8, 5).String())
}

func TestWeeklyTimeFromTime(t *testing.T) {
	at := time.Date(2020, time.October, 5, 14, 30, 45, 0, time.UTC)
	assert.Equal(t, weekly(time.Monday, 14, 30), WeeklyTimeFromTime(at))
}

func TestParseRollbackToTargetVersion(t *testing.T) {
	assert.Equal(t, RollbackAndPowerwash, parseRollbackToTargetVersion("Rollback_And_Powerwash"))
	assert.Equal(t, RollbackDisabled, parseRollbackToTargetVersion("disabled"))
	assert.Equal(t, rollbackToTargetVersionInvalid, parseRollbackToTargetVersion("sideways"))
	assert.False(t, RollbackDisabled.AllowsRollback())
	assert.True(t, RollbackAndRestoreIfPossible.AllowsRollback())
}
