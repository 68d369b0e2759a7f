package appointment

import (
	"sort"
	"time"
)

// GenerateSlots tiles [w.StartTime, w.EndTime) with slots of w.SlotDuration minutes.
// A slot ending exactly at the window end is kept; a shorter remainder is dropped.
func GenerateSlots(w AvailabilityWindow) []Slot {
	if w.SlotDuration <= 0 || w.StartTime >= w.EndTime {
		return nil
	}

	slots := make([]Slot, 0, int(w.EndTime-w.StartTime)/w.SlotDuration)
	for cursor := w.StartTime; cursor.Add(w.SlotDuration) <= w.EndTime; cursor = cursor.Add(w.SlotDuration) {
		slots = append(slots, Slot{
			StartTime: cursor,
			EndTime:   cursor.Add(w.SlotDuration),
			Available: true,
		})
	}
	return slots
}

// MatchingWindows keeps the active windows able to host want (empty want keeps all active).
func MatchingWindows(windows []AvailabilityWindow, want ConsultationType) []AvailabilityWindow {
	var out []AvailabilityWindow
	for _, w := range windows {
		if !w.Active || !w.ConsultationType.Accepts(want) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// FindWindowFor returns the first window that can host a booking starting at start, and the
// resulting end time.
func FindWindowFor(windows []AvailabilityWindow, start Clock) (AvailabilityWindow, Clock, bool) {
	for _, w := range windows {
		if start < w.StartTime || start >= w.EndTime {
			continue
		}
		end := start.Add(w.SlotDuration)
		if end > w.EndTime {
			continue
		}
		return w, end, true
	}
	return AvailabilityWindow{}, 0, false
}

// BuildSlots generates slots for every window, ordered by start then end, with exact
// duplicates from overlapping windows collapsed.
func BuildSlots(windows []AvailabilityWindow) []Slot {
	var all []Slot
	for _, w := range windows {
		all = append(all, GenerateSlots(w)...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].StartTime != all[j].StartTime {
			return all[i].StartTime < all[j].StartTime
		}
		return all[i].EndTime < all[j].EndTime
	})

	out := make([]Slot, 0, len(all))
	for _, s := range all {
		if n := len(out); n > 0 && out[n-1].StartTime == s.StartTime && out[n-1].EndTime == s.EndTime {
			continue
		}
		out = append(out, s)
	}
	return out
}

// MarkAvailability flags slots that overlap an active appointment, and slots that have
// already started relative to now (a time in the clinic clock). Past slots stay in the
// result so callers can still render them.
func MarkAvailability(slots []Slot, date Date, existing []Appointment, now time.Time) []Slot {
	today := DateOf(now)
	nowClock := ClockOf(now)

	for i := range slots {
		s := &slots[i]
		available := true
		if _, conflict := FirstConflict(s.StartTime, s.EndTime, existing); conflict {
			available = false
		}
		if date.Before(today) || (date == today && s.StartTime <= nowClock) {
			available = false
		}
		s.Available = available
	}
	return slots
}
