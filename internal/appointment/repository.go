package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AvailabilityStore is the read contract the booking path needs from availability storage.
type AvailabilityStore interface {
	// WindowsFor returns every window (active or not) for the weekday, ordered by start time.
	WindowsFor(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]AvailabilityWindow, error)
}

// Repository contains all DB interactions needed by the service.
type Repository interface {
	AvailabilityStore

	// Directory lookups
	FindPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error)
	FindDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error)
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)

	// Availability management
	CreateAvailability(ctx context.Context, w *AvailabilityWindow) error
	GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error)
	ListAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error)
	SetAvailabilityActive(ctx context.Context, id uuid.UUID, active bool) (*AvailabilityWindow, error)
	DeleteAvailability(ctx context.Context, id uuid.UUID) error

	// For conflict checks
	ListActiveAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date Date) ([]Appointment, error)
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Creation and updates. CreateAppointment returns ErrSlotAlreadyBooked when the
	// (doctor, date, start time) uniqueness constraint fires.
	CreateAppointment(ctx context.Context, a *Appointment) error
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, notes *string) (*Appointment, error)

	// Event logging (outbox)
	InsertEvent(ctx context.Context, ev EventLog) error
	ListUnpublishedEvents(ctx context.Context, limit int) ([]EventLog, error)
	MarkEventPublished(ctx context.Context, id int64, at time.Time) error

	// WithinDayTx runs fn in a transaction that holds the exclusive booking lock for
	// (doctorID, date). Repository calls made with the ctx passed to fn join the transaction.
	WithinDayTx(ctx context.Context, doctorID uuid.UUID, date Date, fn func(ctx context.Context) error) error
}
