package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

type CreateAppointmentRequest struct {
	DoctorID         string  `json:"doctor_id"`
	Date             string  `json:"date"`
	StartTime        string  `json:"start_time"`
	ConsultationType string  `json:"consultation_type"`
	Reason           *string `json:"reason,omitempty"`
}

type CancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

type CompleteAppointmentRequest struct {
	Notes string `json:"notes"`
}

type CreateAvailabilityRequest struct {
	DayOfWeek        int    `json:"day_of_week"`
	StartTime        string `json:"start_time"`
	EndTime          string `json:"end_time"`
	SlotDuration     int    `json:"slot_duration"`
	ConsultationType string `json:"consultation_type"`
}

type SetAvailabilityActiveRequest struct {
	Active *bool `json:"active"`
}

type AppointmentResponse struct {
	ID               uuid.UUID         `json:"id"`
	PatientID        uuid.UUID         `json:"patient_id"`
	DoctorID         uuid.UUID         `json:"doctor_id"`
	Date             appointment.Date  `json:"date"`
	StartTime        appointment.Clock `json:"start_time"`
	EndTime          appointment.Clock `json:"end_time"`
	ConsultationType string            `json:"consultation_type"`
	Status           string            `json:"status"`
	Reason           *string           `json:"reason,omitempty"`
	Notes            *string           `json:"notes,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:               a.ID,
		PatientID:        a.PatientID,
		DoctorID:         a.DoctorID,
		Date:             a.Date,
		StartTime:        a.StartTime,
		EndTime:          a.EndTime,
		ConsultationType: string(a.ConsultationType),
		Status:           string(a.Status),
		Reason:           a.Reason,
		Notes:            a.Notes,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
}

type AppointmentListResponse struct {
	Appointments []AppointmentResponse `json:"appointments"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type AvailabilityResponse struct {
	ID               uuid.UUID         `json:"id"`
	DoctorID         uuid.UUID         `json:"doctor_id"`
	DayOfWeek        int               `json:"day_of_week"`
	StartTime        appointment.Clock `json:"start_time"`
	EndTime          appointment.Clock `json:"end_time"`
	SlotDuration     int               `json:"slot_duration"`
	ConsultationType string            `json:"consultation_type"`
	Active           bool              `json:"active"`
}

func toAvailabilityResponse(w *appointment.AvailabilityWindow) AvailabilityResponse {
	return AvailabilityResponse{
		ID:               w.ID,
		DoctorID:         w.DoctorID,
		DayOfWeek:        int(w.DayOfWeek),
		StartTime:        w.StartTime,
		EndTime:          w.EndTime,
		SlotDuration:     w.SlotDuration,
		ConsultationType: string(w.ConsultationType),
		Active:           w.Active,
	}
}

type SlotsResponse struct {
	DoctorID uuid.UUID          `json:"doctor_id"`
	Date     appointment.Date   `json:"date"`
	Slots    []appointment.Slot `json:"slots"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
