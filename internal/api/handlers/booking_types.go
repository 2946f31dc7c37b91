package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/slotbook/backend/internal/api/middleware"
	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/booking"
)

// ToggleBookingTypeRequest sets the active flag. An empty body flips it.
type ToggleBookingTypeRequest struct {
	Active *bool `json:"active"`
}

// SlugAvailableResponse answers the slug availability check.
type SlugAvailableResponse struct {
	Slug      string `json:"slug"`
	Available bool   `json:"available"`
}

func writeBookingError(w http.ResponseWriter, err error) {
	var fieldErr *booking.FieldError
	switch {
	case errors.As(err, &fieldErr):
		middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, fieldErr.Field, fieldErr.Message)
	case errors.Is(err, booking.ErrSlugTaken):
		middleware.WriteFieldError(w, http.StatusConflict, middleware.ErrConflict, "slug", "This URL is already taken")
	case errors.Is(err, booking.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotFound, "Booking type not found")
	case errors.Is(err, booking.ErrUnauthenticated):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
	default:
		slog.Error("booking type request failed", "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to save booking type")
	}
}

// ListBookingTypes returns the caller's booking types, newest first. An
// anonymous caller gets an empty list.
func ListBookingTypes(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context(), auth.FromContext(r.Context()))
		if err != nil {
			slog.Error("listing booking types", "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load booking types")
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}

// GetBookingType returns a single booking type.
func GetBookingType(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bt, err := svc.Get(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"])
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bt)
	}
}

// CreateBookingType adds a booking type for the caller.
func CreateBookingType(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.Input
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		bt, err := svc.Create(r.Context(), auth.FromContext(r.Context()), req)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, bt)
	}
}

// UpdateBookingType replaces the editable fields of a booking type.
func UpdateBookingType(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req booking.Input
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		bt, err := svc.Update(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], req)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bt)
	}
}

// DeleteBookingType permanently removes a booking type.
func DeleteBookingType(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Delete(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"]); err != nil {
			writeBookingError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ToggleBookingType sets or flips the active flag.
func ToggleBookingType(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ToggleBookingTypeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}

		bt, err := svc.Toggle(r.Context(), auth.FromContext(r.Context()), mux.Vars(r)["id"], req.Active)
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, bt)
	}
}

// SlugAvailable reports whether the caller can use a slug. The answer is
// advisory; create and update still enforce uniqueness.
func SlugAvailable(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		slug := q.Get("slug")
		if slug == "" {
			middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "slug", "URL is required")
			return
		}

		available, err := svc.SlugAvailable(r.Context(), auth.FromContext(r.Context()), slug, q.Get("exclude"))
		if err != nil {
			writeBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, SlugAvailableResponse{Slug: slug, Available: available})
	}
}
