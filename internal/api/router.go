package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/guidance-scheduling/internal/appointment"
	"github.com/hackgods/guidance-scheduling/internal/auth"
)

type RouterConfig struct {
	Service  *appointment.Service
	Verifier *auth.Verifier
	Feed     FeedSource
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/slots", listSlotsHandler())

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Verifier))

		r.Get("/availability", availabilityHandler(cfg.Service))
		r.Get("/schedule/template", getTemplateHandler(cfg.Service))
		r.Get("/schedule/days/{date}", getDayScheduleHandler(cfg.Service))
		r.Get("/feed", feedHandler(cfg.Feed))

		// Appointment endpoints
		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))

		// Counselor endpoints
		r.Group(func(r chi.Router) {
			r.Use(RequirePrivileged)

			r.Put("/schedule/template", saveTemplateHandler(cfg.Service))
			r.Put("/schedule/days/{date}", putDayScheduleHandler(cfg.Service))
			r.Delete("/schedule/days/{date}", deleteDayScheduleHandler(cfg.Service))

			r.Post("/appointments/{id}/accept", acceptAppointmentHandler(cfg.Service))
			r.Post("/appointments/{id}/deny", denyAppointmentHandler(cfg.Service))
			r.Post("/appointments/{id}/complete", completeAppointmentHandler(cfg.Service))
			r.Patch("/appointments/{id}/notes", updateNotesHandler(cfg.Service))
			r.Delete("/appointments/{id}", deleteAppointmentHandler(cfg.Service))
		})
	})

	return r
}
