// Package slots holds the fixed slot catalog and the pure availability and
// status logic built on top of it.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time expressed in minutes since midnight.
type TimeOfDay int

// At builds a TimeOfDay from hour and minute.
func At(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "HH:MM" (seconds, if present, must be zero).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time format: %q", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec != 0 {
			return 0, fmt.Errorf("invalid seconds in %q", s)
		}
	}

	t := At(hour, minute)
	if t > At(24, 0) {
		return 0, fmt.Errorf("time out of range: %q", s)
	}
	return t, nil
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", int(t)/60, int(t)%60)
}

// MarshalJSON encodes the time as "HH:MM".
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts "HH:MM" or "HH:MM:SS".
func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// On places the time of day on the calendar date of d.
func (t TimeOfDay) On(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day(), int(t)/60, int(t)%60, 0, 0, d.Location())
}

// TimeSlot is an immutable [Start, End) interval within a day.
type TimeSlot struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Duration returns the slot length.
func (s TimeSlot) Duration() time.Duration {
	return time.Duration(s.End-s.Start) * time.Minute
}

func (s TimeSlot) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// catalog is shared by every ground: thirteen contiguous one-hour slots
// covering 06:00-19:00.
var catalog = func() []TimeSlot {
	out := make([]TimeSlot, 0, 13)
	for h := 6; h < 19; h++ {
		out = append(out, TimeSlot{Start: At(h, 0), End: At(h+1, 0)})
	}
	return out
}()

// AllSlots returns the catalog in order. The returned slice is a copy.
func AllSlots() []TimeSlot {
	out := make([]TimeSlot, len(catalog))
	copy(out, catalog)
	return out
}

// IsValidSlot reports whether (start, end) exactly matches a catalog entry.
func IsValidSlot(start, end TimeOfDay) bool {
	for _, s := range catalog {
		if s.Start == start && s.End == end {
			return true
		}
	}
	return false
}
