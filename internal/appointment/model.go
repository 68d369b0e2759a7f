package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending            AppointmentStatus = "PENDING"
	StatusConfirmed          AppointmentStatus = "CONFIRMED"
	StatusCompleted          AppointmentStatus = "COMPLETED"
	StatusCancelledByPatient AppointmentStatus = "CANCELLED_BY_PATIENT"
	StatusCancelledByDoctor  AppointmentStatus = "CANCELLED_BY_DOCTOR"
)

// IsActive reports whether an appointment in this status occupies its time.
func (s AppointmentStatus) IsActive() bool {
	return s != StatusCancelledByPatient && s != StatusCancelledByDoctor
}

type ConsultationType string

const (
	ConsultationInPerson ConsultationType = "IN_PERSON"
	ConsultationRemote   ConsultationType = "REMOTE"
	ConsultationBoth     ConsultationType = "BOTH"
)

// Accepts reports whether a window offered for t can host a consultation of type want.
// An empty want matches every window.
func (t ConsultationType) Accepts(want ConsultationType) bool {
	return want == "" || t == ConsultationBoth || t == want
}

type Patient struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Doctor struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Name      string
	Specialty *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AvailabilityWindow is a recurring weekly interval in which a doctor accepts bookings.
type AvailabilityWindow struct {
	ID               uuid.UUID
	DoctorID         uuid.UUID
	DayOfWeek        time.Weekday
	StartTime        Clock
	EndTime          Clock
	SlotDuration     int // minutes
	ConsultationType ConsultationType
	Active           bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Slot is derived per query and never stored.
type Slot struct {
	StartTime Clock `json:"start_time"`
	EndTime   Clock `json:"end_time"`
	Available bool  `json:"available"`
}

type Appointment struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	Date             Date
	StartTime        Clock
	EndTime          Clock
	ConsultationType ConsultationType
	Status           AppointmentStatus
	Reason           *string
	Notes            *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
}

// Role is a caller role carried by the identity token.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller of a service operation.
type Actor struct {
	UserID uuid.UUID
	Roles  []Role
}

func (a Actor) Has(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func (a Actor) IsAdmin() bool {
	return a.Has(RoleAdmin)
}
