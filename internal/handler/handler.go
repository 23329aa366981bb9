// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/service"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Error codes carried in the response envelope.
const (
	CodeBadRequest          = "BAD_REQUEST"
	CodeFieldIncorrect      = "FIELD_INCORRECT"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeConfirmationExpired = "CONFIRMATION_EXPIRED"
	CodeInternalServerError = "INTERNAL_SERVER_ERROR"
)

// Handler holds all HTTP handlers for the conference booking API.
type Handler struct {
	bookings *service.BookingService
	registry *service.RegistryService
	validate *validator.Validate
	log      *zerolog.Logger
}

// New constructs a Handler.
func New(bookings *service.BookingService, registry *service.RegistryService, log *zerolog.Logger) *Handler {
	return &Handler{
		bookings: bookings,
		registry: registry,
		validate: newValidator(),
		log:      log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, model.Response{Status: statusSuccess, Data: data})
}

func writeError(w http.ResponseWriter, status int, code, desc string) {
	writeJSON(w, status, model.Response{
		Status: statusError,
		Error:  &model.ErrorResponse{Code: code, Desc: desc},
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// bind decodes and validates a request body, writing the 400 itself on
// failure.
func (h *Handler) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, CodeFieldIncorrect, describeValidation(err))
		return false
	}
	return true
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalid):
		writeError(w, http.StatusBadRequest, CodeFieldIncorrect, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, service.ErrExpired):
		writeError(w, http.StatusConflict, CodeConfirmationExpired, err.Error())
	case errors.Is(err, service.ErrConflict):
		writeError(w, http.StatusConflict, CodeConflict, err.Error())
	default:
		h.log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, CodeInternalServerError, "internal server error")
	}
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if !h.bind(w, r, &req) {
		return
	}

	user, err := h.registry.RegisterUser(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.registry.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, user)
}

// CreateConference handles POST /conferences
func (h *Handler) CreateConference(w http.ResponseWriter, r *http.Request) {
	var req model.CreateConferenceRequest
	if !h.bind(w, r, &req) {
		return
	}

	conf, err := h.registry.RegisterConference(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, conf)
}

// GetConference handles GET /conferences/{name}
func (h *Handler) GetConference(w http.ResponseWriter, r *http.Request) {
	conf, err := h.registry.GetConference(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, conf)
}

// CreateBooking handles POST /bookings
// Books a seat or joins the waitlist.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req model.CreateBookingRequest
	if !h.bind(w, r, &req) {
		return
	}

	res, err := h.bookings.CreateBooking(r.Context(), req.UserID, req.ConferenceName)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, res)
}

// CancelBooking handles POST /bookings/{id}/cancel
func (h *Handler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.bookings.CancelBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, res)
}

// GetBookingStatus handles GET /bookings/{id}/status
func (h *Handler) GetBookingStatus(w http.ResponseWriter, r *http.Request) {
	res, err := h.bookings.GetBookingStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, res)
}

// ConfirmBooking handles POST /bookings/{id}/confirm
// Turns a waitlisted booking holding a live window into a confirmed seat.
func (h *Handler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	res, err := h.bookings.ConfirmWaitlistBooking(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, res)
}

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
