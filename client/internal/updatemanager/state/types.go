package state

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConnectionType is the kind of the primary network connection.
type ConnectionType string

const (
	ConnectionTypeNone      ConnectionType = "none"
	ConnectionTypeEthernet  ConnectionType = "ethernet"
	ConnectionTypeWifi      ConnectionType = "wifi"
	ConnectionTypeCellular  ConnectionType = "cellular"
	ConnectionTypeBluetooth ConnectionType = "bluetooth"
	ConnectionTypeVPN       ConnectionType = "vpn"

	// ConnectionTypeUnknown means connected over a link that could not be
	// classified.
	ConnectionTypeUnknown ConnectionType = "unknown"
)

// IsValid reports whether c is one of the known connection types.
func (c ConnectionType) IsValid() bool {
	switch c {
	case ConnectionTypeNone, ConnectionTypeEthernet, ConnectionTypeWifi, ConnectionTypeCellular,
		ConnectionTypeBluetooth, ConnectionTypeVPN, ConnectionTypeUnknown:
		return true
	}
	return false
}

// RollbackToTargetVersion is the administrator's rollback setting.
type RollbackToTargetVersion string

const (
	RollbackUnspecified          RollbackToTargetVersion = ""
	RollbackDisabled             RollbackToTargetVersion = "disabled"
	RollbackAndPowerwash         RollbackToTargetVersion = "rollback_and_powerwash"
	RollbackAndRestoreIfPossible RollbackToTargetVersion = "rollback_and_restore_if_possible"
)

const rollbackToTargetVersionInvalid RollbackToTargetVersion = "invalid"

// AllowsRollback reports whether the setting permits rolling back.
func (r RollbackToTargetVersion) AllowsRollback() bool {
	return r == RollbackAndPowerwash || r == RollbackAndRestoreIfPossible
}

func parseRollbackToTargetVersion(s string) RollbackToTargetVersion {
	switch r := RollbackToTargetVersion(strings.ToLower(s)); r {
	case RollbackUnspecified, RollbackDisabled, RollbackAndPowerwash, RollbackAndRestoreIfPossible:
		return r
	}
	return rollbackToTargetVersionInvalid
}

// UpdateRequestStatus tells whether somebody asked for an update out of band.
type UpdateRequestStatus int

const (
	UpdateRequestNone UpdateRequestStatus = iota
	UpdateRequestInteractive
	UpdateRequestPeriodic
)

func (s UpdateRequestStatus) String() string {
	switch s {
	case UpdateRequestInteractive:
		return "interactive"
	case UpdateRequestPeriodic:
		return "periodic"
	default:
		return "none"
	}
}

const week = 7 * 24 * time.Hour

// WeeklyTime is a point within a week.
type WeeklyTime struct {
	DayOfWeek time.Weekday
	// Time is the offset since midnight.
	Time time.Duration
}

// WeeklyTimeFromTime returns the weekly time of t in t's location.
func WeeklyTimeFromTime(t time.Time) WeeklyTime {
	return WeeklyTime{
		DayOfWeek: t.Weekday(),
		Time:      time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute,
	}
}

func (w WeeklyTime) offset() time.Duration {
	return time.Duration(w.DayOfWeek)*24*time.Hour + w.Time
}

// DurationTo returns how long it takes from w until other comes around again.
func (w WeeklyTime) DurationTo(other WeeklyTime) time.Duration {
	d := other.offset() - w.offset()
	if d < 0 {
		d += week
	}
	return d
}

func (w WeeklyTime) String() string {
	return fmt.Sprintf("%s %02d:%02d", w.DayOfWeek, int(w.Time.Hours()), int(w.Time.Minutes())%60)
}

func (w *WeeklyTime) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Day  string `yaml:"day"`
		Time string `yaml:"time"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	day, err := parseWeekday(raw.Day)
	if err != nil {
		return err
	}

	var hour, minute int
	if _, err := fmt.Sscanf(raw.Time, "%d:%d", &hour, &minute); err != nil {
		return fmt.Errorf("parse time %q: %w", raw.Time, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return fmt.Errorf("time %q out of range", raw.Time)
	}

	w.DayOfWeek = day
	w.Time = time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
	return nil
}

func parseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown day of week %q", s)
}

// WeeklyTimeInterval is a half-open interval [Start, End) that may wrap
// around the end of the week.
type WeeklyTimeInterval struct {
	Start WeeklyTime `yaml:"start"`
	End   WeeklyTime `yaml:"end"`
}

// InRange reports whether t falls into the interval.
func (i WeeklyTimeInterval) InRange(t WeeklyTime) bool {
	start, end, x := i.Start.offset(), i.End.offset(), t.offset()
	if start <= end {
		return start <= x && x < end
	}
	return x >= start || x < end
}

func (i WeeklyTimeInterval) String() string {
	return fmt.Sprintf("[%s, %s)", i.Start, i.End)
}
