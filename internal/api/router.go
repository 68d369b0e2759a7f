package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service  *appointment.Service
	Postgres Pinger
	Redis    Pinger
	JWT      JWTConfig
	Logger   zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(middleware.Recoverer)

	// Health endpoints
	health := NewHealthHandler(cfg.Postgres, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(Authenticator(cfg.JWT))

		// Schedule
		r.Get("/doctors/{doctorID}/slots", availableSlotsHandler(cfg.Service))
		r.Get("/doctors/{doctorID}/availability", listAvailabilityHandler(cfg.Service))
		r.Post("/availability", createAvailabilityHandler(cfg.Service))
		r.Patch("/availability/{id}", setAvailabilityActiveHandler(cfg.Service))
		r.Delete("/availability/{id}", deleteAvailabilityHandler(cfg.Service))

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Put("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Put("/appointments/{id}/confirm", confirmAppointmentHandler(cfg.Service))
		r.Put("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
		r.Get("/patients/me/appointments", listPatientAppointmentsHandler(cfg.Service))
		r.Get("/doctors/me/appointments", listDoctorAppointmentsHandler(cfg.Service))
	})

	return r
}
