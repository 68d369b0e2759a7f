package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// handleServiceError maps engine errors onto HTTP. Specific cases are checked before the
// kind they wrap.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointment.ErrSlotAlreadyBooked):
		writeError(w, http.StatusConflict, "slot_already_booked", err.Error())
	case errors.Is(err, appointment.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	case errors.Is(err, appointment.ErrSlotNotInSchedule):
		writeError(w, http.StatusUnprocessableEntity, "slot_not_in_schedule", err.Error())
	case errors.Is(err, appointment.ErrNotOwner):
		writeError(w, http.StatusUnprocessableEntity, "not_owner", err.Error())
	case errors.Is(err, appointment.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	case errors.Is(err, appointment.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, appointment.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized", err.Error())
	case errors.Is(err, appointment.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
