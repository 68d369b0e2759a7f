package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/metrics"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentConfirmed = "APPOINTMENT_CONFIRMED"
	EventAppointmentCompleted = "APPOINTMENT_COMPLETED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	validate *validator.Validate
	log      zerolog.Logger
	loc      *time.Location
	now      func() time.Time
}

// NewService wires the booking engine. locker may be nil, in which case the
// Postgres day lock alone serializes bookings.
func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log zerolog.Logger) *Service {
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		repo:     repo,
		locker:   locker,
		validate: NewValidator(),
		log:      log,
		loc:      loc,
		now:      time.Now,
	}
}

// Now returns the current time in the clinic clock.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

type CreateAppointmentInput struct {
	DoctorID         uuid.UUID        `validate:"required"`
	Date             Date             `validate:"-"`
	StartTime        Clock            `validate:"clock"`
	ConsultationType ConsultationType `validate:"required,oneof=IN_PERSON REMOTE"`
	Reason           *string          `validate:"omitempty,max=500"`
}

// RequestAppointment books [start, start+duration) for the calling patient. The schedule
// lookup, conflict check and insert run as one unit under the doctor's day lock.
func (s *Service) RequestAppointment(ctx context.Context, actor Actor, in CreateAppointmentInput) (*Appointment, error) {
	started := time.Now()
	appt, err := s.requestAppointment(ctx, actor, in)
	metrics.ObserveBooking(bookingResult(err), started)
	return appt, err
}

func (s *Service) requestAppointment(ctx context.Context, actor Actor, in CreateAppointmentInput) (*Appointment, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}
	if err := s.validateStruct(in); err != nil {
		return nil, err
	}
	if in.Date.IsZero() {
		return nil, newValidationError("date is required")
	}

	patient, err := s.repo.FindPatientByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if _, err := s.repo.GetDoctorByID(ctx, in.DoctorID); err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	now := s.Now()
	today := DateOf(now)
	if in.Date.Before(today) || (in.Date == today && in.StartTime <= ClockOf(now)) {
		return nil, ErrSlotInPast
	}

	var created *Appointment

	err = s.withDayLock(ctx, in.DoctorID, in.Date, func(ctx context.Context) error {
		windows, err := s.repo.WindowsFor(ctx, in.DoctorID, in.Date.Weekday())
		if err != nil {
			return fmt.Errorf("load availability: %w", err)
		}

		_, end, ok := FindWindowFor(MatchingWindows(windows, in.ConsultationType), in.StartTime)
		if !ok {
			return ErrSlotNotInSchedule
		}

		existing, err := s.repo.ListActiveAppointmentsForDay(ctx, in.DoctorID, in.Date)
		if err != nil {
			return fmt.Errorf("load appointments: %w", err)
		}
		if _, conflict := FirstConflict(in.StartTime, end, existing); conflict {
			return ErrSlotAlreadyBooked
		}

		appt := &Appointment{
			PatientID:        patient.ID,
			DoctorID:         in.DoctorID,
			Date:             in.Date,
			StartTime:        in.StartTime,
			EndTime:          end,
			ConsultationType: in.ConsultationType,
			Status:           StatusPending,
			Reason:           in.Reason,
		}
		if err := s.repo.CreateAppointment(ctx, appt); err != nil {
			if errors.Is(err, ErrSlotAlreadyBooked) {
				return err
			}
			return fmt.Errorf("create appointment: %w", err)
		}

		created = appt

		return s.logEvent(ctx, appt.ID, EventAppointmentCreated, map[string]any{
			"patient_id":        appt.PatientID.String(),
			"doctor_id":         appt.DoctorID.String(),
			"date":              appt.Date.String(),
			"start_time":        appt.StartTime.String(),
			"end_time":          appt.EndTime.String(),
			"consultation_type": string(appt.ConsultationType),
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("doctor_id", created.DoctorID.String()).
		Str("date", created.Date.String()).
		Str("start_time", created.StartTime.String()).
		Msg("appointment requested")

	return created, nil
}

// withDayLock holds the Redis day lock (when configured) and then the database day lock.
func (s *Service) withDayLock(ctx context.Context, doctorID uuid.UUID, date Date, fn func(ctx context.Context) error) error {
	inTx := func(ctx context.Context) error {
		return s.repo.WithinDayTx(ctx, doctorID, date, fn)
	}
	if s.locker == nil {
		return inTx(ctx)
	}

	err := s.locker.WithDayLock(ctx, doctorID, date.String(), inTx)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBeingBooked
	}
	return err
}

// Cancel cancels on behalf of the owning patient, the owning doctor, or an admin. The
// resulting status records which side cancelled.
func (s *Service) Cancel(ctx context.Context, actor Actor, id uuid.UUID, reason string) (*Appointment, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, wrapLoad(err)
	}

	to, err := s.cancelTarget(ctx, actor, appt)
	if err != nil {
		return nil, err
	}

	line := "Cancelled: " + strings.TrimSpace(reason)
	if strings.TrimSpace(reason) == "" {
		if to == StatusCancelledByPatient {
			line = "Cancelled by patient"
		} else {
			line = "Cancelled by doctor"
		}
	}
	notes := line
	if appt.Notes != nil && *appt.Notes != "" {
		notes = *appt.Notes + "\n" + line
	}

	return s.transition(ctx, appt, to, &notes, EventAppointmentCancelled, map[string]any{
		"status": string(to),
		"reason": strings.TrimSpace(reason),
	})
}

func (s *Service) cancelTarget(ctx context.Context, actor Actor, appt *Appointment) (AppointmentStatus, error) {
	patient, err := s.repo.FindPatientByUserID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return "", fmt.Errorf("load patient: %w", err)
	}
	if patient != nil && patient.ID == appt.PatientID {
		return StatusCancelledByPatient, nil
	}

	ok, err := s.actsForDoctor(ctx, actor, appt.DoctorID)
	if err != nil {
		return "", err
	}
	if ok {
		return StatusCancelledByDoctor, nil
	}
	return "", ErrNotOwner
}

// Confirm moves a pending appointment to confirmed. Only the owning doctor or an admin may confirm.
func (s *Service) Confirm(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.loadForDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	return s.transition(ctx, appt, StatusConfirmed, nil, EventAppointmentConfirmed, map[string]any{
		"consultation_type": string(appt.ConsultationType),
	})
}

// Complete marks a confirmed appointment done, replacing notes when notes is non-empty.
func (s *Service) Complete(ctx context.Context, actor Actor, id uuid.UUID, notes string) (*Appointment, error) {
	appt, err := s.loadForDoctor(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	var newNotes *string
	if strings.TrimSpace(notes) != "" {
		newNotes = &notes
	}

	return s.transition(ctx, appt, StatusCompleted, newNotes, EventAppointmentCompleted, map[string]any{})
}

func (s *Service) loadForDoctor(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, wrapLoad(err)
	}

	ok, err := s.actsForDoctor(ctx, actor, appt.DoctorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// actsForDoctor reports whether actor is an admin or the doctor identified by doctorID.
func (s *Service) actsForDoctor(ctx context.Context, actor Actor, doctorID uuid.UUID) (bool, error) {
	if actor.IsAdmin() {
		return true, nil
	}
	doctor, err := s.repo.FindDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("load doctor: %w", err)
	}
	return doctor.ID == doctorID, nil
}

// transition applies from -> to with optimistic concurrency and records the outbox event in
// the same transaction. A concurrent change of status surfaces as ErrInvalidStatusTransition.
func (s *Service) transition(ctx context.Context, appt *Appointment, to AppointmentStatus, notes *string, eventType string, payload map[string]any) (*Appointment, error) {
	if err := checkTransition(appt.Status, to); err != nil {
		return nil, err
	}

	var updated *Appointment

	err := s.repo.WithinDayTx(ctx, appt.DoctorID, appt.Date, func(ctx context.Context) error {
		u, err := s.repo.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to, notes)
		if err != nil {
			if !errors.Is(err, ErrAppointmentNotFound) {
				return fmt.Errorf("update appointment status: %w", err)
			}
			current, getErr := s.repo.GetAppointmentByID(ctx, appt.ID)
			if getErr != nil {
				return wrapLoad(getErr)
			}
			return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
		}

		updated = u
		payload["from"] = string(appt.Status)
		return s.logEvent(ctx, u.ID, eventType, payload)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransition(string(to))
	s.log.Info().
		Str("appointment_id", updated.ID.String()).
		Str("from", string(appt.Status)).
		Str("to", string(to)).
		Msg("appointment status changed")

	return updated, nil
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		return fmt.Errorf("insert event log %s: %w", eventType, err)
	}
	return nil
}

// GetAppointment returns an appointment visible to its patient, its doctor, or an admin.
func (s *Service) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, wrapLoad(err)
	}

	patient, err := s.repo.FindPatientByUserID(ctx, actor.UserID)
	if err != nil && !errors.Is(err, ErrPatientNotFound) {
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if patient != nil && patient.ID == appt.PatientID {
		return appt, nil
	}

	ok, err := s.actsForDoctor(ctx, actor, appt.DoctorID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotOwner
	}
	return appt, nil
}

// ListPatientAppointments lists the caller's own appointments, newest first.
func (s *Service) ListPatientAppointments(ctx context.Context, actor Actor, limit, offset int) ([]Appointment, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}

	patient, err := s.repo.FindPatientByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, wrapLoad(err)
	}

	limit, offset = ClampPage(limit, offset)
	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patient.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListDoctorAppointments lists the calling doctor's appointments, newest first.
func (s *Service) ListDoctorAppointments(ctx context.Context, actor Actor, limit, offset int) ([]Appointment, error) {
	if actor.UserID == uuid.Nil {
		return nil, ErrMissingIdentity
	}

	doctor, err := s.repo.FindDoctorByUserID(ctx, actor.UserID)
	if err != nil {
		return nil, wrapLoad(err)
	}

	limit, offset = ClampPage(limit, offset)
	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctor.ID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}

// AvailableSlots computes the bookable grid for a doctor on date. want may be empty.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date Date, want ConsultationType) ([]Slot, error) {
	if date.IsZero() {
		return nil, newValidationError("date is required")
	}
	switch want {
	case "", ConsultationInPerson, ConsultationRemote:
	default:
		return nil, newValidationError("consultation_type must be IN_PERSON or REMOTE")
	}

	if _, err := s.repo.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, wrapLoad(err)
	}

	windows, err := s.repo.WindowsFor(ctx, doctorID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}

	slots := BuildSlots(MatchingWindows(windows, want))
	if len(slots) == 0 {
		return []Slot{}, nil
	}

	existing, err := s.repo.ListActiveAppointmentsForDay(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	return MarkAvailability(slots, date, existing, s.Now()), nil
}

// ClampPage applies the default and maximum page size and floors offset at zero.
func ClampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// wrapLoad passes business errors through unchanged and wraps everything else.
func wrapLoad(err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return fmt.Errorf("load: %w", err)
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, ErrSlotAlreadyBooked):
		return "already_booked"
	case errors.Is(err, ErrSlotNotInSchedule):
		return "not_in_schedule"
	case errors.Is(err, ErrSlotBeingBooked):
		return "lock_timeout"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	default:
		return "error"
	}
}
