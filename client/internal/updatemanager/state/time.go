package state

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/netbirdio/updateengine/client/internal/updatemanager/variable"
)

// WallClock splits the local time into the variables policies compare
// against. Each variable asks to be re-read once it may have changed.
type WallClock struct {
	currDate   variable.Variable[time.Time]
	currHour   variable.Variable[int]
	currMinute variable.Variable[int]
}

var _ TimeProvider = (*WallClock)(nil)

func NewWallClock(clock clockwork.Clock) *WallClock {
	return &WallClock{
		currDate: variable.NewFunc("curr_date", time.Hour, func() (time.Time, bool) {
			now := clock.Now()
			return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
		}),
		currHour: variable.NewFunc("curr_hour", 5*time.Minute, func() (int, bool) {
			return clock.Now().Hour(), true
		}),
		currMinute: variable.NewFunc("curr_minute", 15*time.Second, func() (int, bool) {
			return clock.Now().Minute(), true
		}),
	}
}

func (w *WallClock) CurrDate() variable.Variable[time.Time] { return w.currDate }

func (w *WallClock) CurrHour() variable.Variable[int] { return w.currHour }

func (w *WallClock) CurrMinute() variable.Variable[int] { return w.currMinute }
