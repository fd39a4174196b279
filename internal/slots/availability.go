package slots

import (
	"fmt"
	"sort"
	"time"
)

// OpenWhenNoRules is the policy applied to a weekday without any recurring
// rule: the ground is open for every catalog slot.
const OpenWhenNoRules = true

// Window is an availability interval within a day. Rules and blocks are
// both expressed as windows.
type Window struct {
	Start TimeOfDay
	End   TimeOfDay
}

// Contains reports whether the slot lies fully inside the window.
func (w Window) Contains(s TimeSlot) bool {
	return w.Start <= s.Start && s.End <= w.End
}

// Overlaps reports whether the window and the slot share any time.
func (w Window) Overlaps(s TimeSlot) bool {
	return w.Start < s.End && s.Start < w.End
}

func (w Window) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// DayOfWeek returns the weekday of d with Monday=0 ... Sunday=6.
func DayOfWeek(d time.Time) int {
	return (int(d.Weekday()) + 6) % 7
}

// ResolveOpen decides, for every slot of the catalog, whether booking is
// permitted given the weekday rules and the date-specific blocks.
func ResolveOpen(catalog []TimeSlot, rules, blocks []Window) []bool {
	open := make([]bool, len(catalog))
	for i, s := range catalog {
		if len(rules) == 0 {
			open[i] = OpenWhenNoRules
		} else {
			for _, r := range rules {
				if r.Contains(s) {
					open[i] = true
					break
				}
			}
		}

		if !open[i] {
			continue
		}
		for _, b := range blocks {
			if b.Overlaps(s) {
				open[i] = false
				break
			}
		}
	}
	return open
}

// OpenSlots returns only the catalog slots marked open.
func OpenSlots(catalog []TimeSlot, open []bool) []TimeSlot {
	var out []TimeSlot
	for i, s := range catalog {
		if i < len(open) && open[i] {
			out = append(out, s)
		}
	}
	return out
}

// ValidateWindows checks a single day's windows: each must have start < end
// and, once sorted by start, no window may overlap or duplicate its
// predecessor. The input slice is sorted in place.
func ValidateWindows(windows []Window) error {
	for _, w := range windows {
		if w.Start >= w.End {
			return fmt.Errorf("window %s: end must be after start", w)
		}
	}

	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Start == windows[j].Start {
			return windows[i].End < windows[j].End
		}
		return windows[i].Start < windows[j].Start
	})

	for i := 1; i < len(windows); i++ {
		prev, cur := windows[i-1], windows[i]
		if cur.Start < prev.End {
			if cur == prev {
				return fmt.Errorf("duplicate window %s", cur)
			}
			return fmt.Errorf("window %s overlaps %s", cur, prev)
		}
	}
	return nil
}
