package appointment

// Overlaps is the half-open interval test used for both slot display and booking
// validation. Back-to-back intervals (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd Clock) bool {
	return aStart < bEnd && bStart < aEnd
}

// FirstConflict returns the first active appointment overlapping [start, end).
func FirstConflict(start, end Clock, existing []Appointment) (*Appointment, bool) {
	for i := range existing {
		a := &existing[i]
		if !a.Status.IsActive() {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return a, true
		}
	}
	return nil, false
}
