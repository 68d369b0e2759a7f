package appointment

import "fmt"

// transitions is the only definition of legal status changes. Terminal states have no entry.
var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelledByPatient, StatusCancelledByDoctor},
	StatusConfirmed: {StatusCompleted, StatusCancelledByPatient, StatusCancelledByDoctor},
}

func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(s); st {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelledByPatient, StatusCancelledByDoctor:
		return st, nil
	}
	return "", fmt.Errorf("unknown appointment status %q", s)
}

func (s AppointmentStatus) IsTerminal() bool {
	_, ok := transitions[s]
	return !ok
}

func CanTransition(from, to AppointmentStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, from, to)
	}
	return nil
}
