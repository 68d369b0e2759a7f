package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// pageParams reads limit and offset, clamped to the page the service will serve.
func pageParams(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	return appointment.ClampPage(limit, offset)
}

func availableSlotsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		date, err := appointment.ParseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		want := appointment.ConsultationType(r.URL.Query().Get("consultation_type"))
		slots, err := svc.AvailableSlots(r.Context(), doctorID, date, want)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: date, Slots: slots})
	}
}

func listAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		windows, err := svc.ListAvailability(r.Context(), doctorID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		resp := make([]AvailabilityResponse, 0, len(windows))
		for i := range windows {
			resp = append(resp, toAvailabilityResponse(&windows[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}

		start, err := appointment.ParseClock(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
			return
		}
		end, err := appointment.ParseClock(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
			return
		}

		window, err := svc.CreateAvailability(r.Context(), ActorFromContext(r.Context()), appointment.CreateAvailabilityInput{
			DayOfWeek:        req.DayOfWeek,
			StartTime:        start,
			EndTime:          end,
			SlotDuration:     req.SlotDuration,
			ConsultationType: appointment.ConsultationType(req.ConsultationType),
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAvailabilityResponse(window))
	}
}

func setAvailabilityActiveHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req SetAvailabilityActiveRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Active == nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "active is required")
			return
		}

		window, err := svc.SetAvailabilityActive(r.Context(), ActorFromContext(r.Context()), id, *req.Active)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAvailabilityResponse(window))
	}
}

func deleteAvailabilityHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteAvailability(r.Context(), ActorFromContext(r.Context()), id); err != nil {
			handleServiceError(w, r, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := appointment.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := appointment.ParseClock(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		appt, err := svc.RequestAppointment(r.Context(), ActorFromContext(r.Context()), appointment.CreateAppointmentInput{
			DoctorID:         doctorID,
			Date:             date,
			StartTime:        start,
			ConsultationType: appointment.ConsultationType(req.ConsultationType),
			Reason:           req.Reason,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), ActorFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func listPatientAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pageParams(r)
		appts, err := svc.ListPatientAppointments(r.Context(), ActorFromContext(r.Context()), limit, offset)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toListResponse(appts, limit, offset))
	}
}

func listDoctorAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, offset := pageParams(r)
		appts, err := svc.ListDoctorAppointments(r.Context(), ActorFromContext(r.Context()), limit, offset)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toListResponse(appts, limit, offset))
	}
}

func toListResponse(appts []appointment.Appointment, limit, offset int) AppointmentListResponse {
	resp := AppointmentListResponse{
		Appointments: make([]AppointmentResponse, 0, len(appts)),
		Limit:        limit,
		Offset:       offset,
	}
	for i := range appts {
		resp.Appointments = append(resp.Appointments, toAppointmentResponse(&appts[i]))
	}
	return resp
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CancelAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), ActorFromContext(r.Context()), id, req.Reason)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func confirmAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), ActorFromContext(r.Context()), id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CompleteAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.Complete(r.Context(), ActorFromContext(r.Context()), id, req.Notes)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
