package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// NewRouter mounts every route behind the global middleware stack.
func NewRouter(h *Handler, log *zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/{id}", h.GetUser)
	})

	r.Route("/conferences", func(r chi.Router) {
		r.Post("/", h.CreateConference)
		r.Get("/{name}", h.GetConference)
	})

	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Post("/{id}/cancel", h.CancelBooking)
		r.Get("/{id}/status", h.GetBookingStatus)
		r.Post("/{id}/confirm", h.ConfirmBooking)
	})

	return r
}
