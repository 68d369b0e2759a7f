package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type CreateAvailabilityInput struct {
	DayOfWeek        int              `validate:"weekday"`
	StartTime        Clock            `validate:"clock"`
	EndTime          Clock            `validate:"clock"`
	SlotDuration     int              `validate:"gte=15,lte=240"`
	ConsultationType ConsultationType `validate:"required,oneof=IN_PERSON REMOTE BOTH"`
}

// CreateAvailability adds a weekly window for the calling doctor.
func (s *Service) CreateAvailability(ctx context.Context, actor Actor, in CreateAvailabilityInput) (*AvailabilityWindow, error) {
	doctor, err := s.callingDoctor(ctx, actor)
	if err != nil {
		return nil, err
	}

	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if in.StartTime >= in.EndTime {
		return nil, ErrInvalidTimeRange
	}
	if in.StartTime.Add(in.SlotDuration) > in.EndTime {
		return nil, newValidationError("slot duration %d exceeds window %s-%s", in.SlotDuration, in.StartTime, in.EndTime)
	}

	w := &AvailabilityWindow{
		DoctorID:         doctor.ID,
		DayOfWeek:        time.Weekday(in.DayOfWeek),
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		SlotDuration:     in.SlotDuration,
		ConsultationType: in.ConsultationType,
		Active:           true,
	}
	if err := s.repo.CreateAvailability(ctx, w); err != nil {
		return nil, fmt.Errorf("create availability: %w", err)
	}

	s.log.Info().
		Str("doctor_id", doctor.ID.String()).
		Str("window_id", w.ID.String()).
		Stringer("day", w.DayOfWeek).
		Msg("availability window created")

	return w, nil
}

// ListAvailability returns every window of a doctor, ordered by day then start.
func (s *Service) ListAvailability(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, wrapLoad(err)
	}

	windows, err := s.repo.ListAvailabilityByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availability: %w", err)
	}
	return windows, nil
}

// SetAvailabilityActive toggles a window owned by the calling doctor.
func (s *Service) SetAvailabilityActive(ctx context.Context, actor Actor, id uuid.UUID, active bool) (*AvailabilityWindow, error) {
	if _, err := s.ownedWindow(ctx, actor, id); err != nil {
		return nil, err
	}

	w, err := s.repo.SetAvailabilityActive(ctx, id, active)
	if err != nil {
		return nil, wrapLoad(err)
	}
	return w, nil
}

// DeleteAvailability removes a window owned by the calling doctor. Existing appointments
// inside the window are kept.
func (s *Service) DeleteAvailability(ctx context.Context, actor Actor, id uuid.UUID) error {
	if _, err := s.ownedWindow(ctx, actor, id); err != nil {
		return err
	}

	if err := s.repo.DeleteAvailability(ctx, id); err != nil {
		return wrapLoad(err)
	}

	s.log.Info().Str("window_id", id.String()).Msg("availability window deleted")
	return nil
}

func (s *Service) ownedWindow(ctx context.Context, actor Actor, id uuid.UUID) (*AvailabilityWindow, error) {
	doctor, err := s.callingDoctor(ctx, actor)
	if err != nil {
		return nil, err
	}

	w, err := s.repo.GetAvailabilityByID(ctx, id)
	if err != nil {
		return nil, wrapLoad(err)
	}
	if w.DoctorID != doctor.ID {
		return nil, ErrNotOwner
	}
	return w, nil
}

func (s *Service) callingDoctor(ctx context.Context, actor Actor) (*Doctor, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}

	doctor, err := s.repo.FindDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	return doctor, nil
}
