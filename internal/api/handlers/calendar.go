package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/slotbook/backend/internal/api/middleware"
	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/calendar"
	"github.com/slotbook/backend/internal/storage/models"
)

// CalendarStateCookie holds the OAuth state of a calendar connection.
const CalendarStateCookie = "slotbook_calendar_state"

// Notifier sends user-facing notifications over the WebSocket channel.
type Notifier interface {
	Notify(userID, level, title, message string)
}

// CalendarOptions configures the calendar handlers.
type CalendarOptions struct {
	// PageURL is where the OAuth callback sends the browser afterwards.
	PageURL      string
	CookieSecure bool
	Notifier     Notifier
}

// AuthURLResponse carries a provider consent URL.
type AuthURLResponse struct {
	URL string `json:"url"`
}

// CreateEventRequest is the body of an event creation request.
type CreateEventRequest struct {
	CalendarID  string    `json:"calendarId"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
}

func writeCalendarError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
	case errors.Is(err, calendar.ErrNotConnected):
		middleware.WriteError(w, http.StatusNotFound, middleware.ErrNotConnected, "Google Calendar not connected")
	case errors.Is(err, calendar.ErrInvalidEvent):
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrValidation, err.Error())
	default:
		slog.Error(message, "error", err)
		middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, message)
	}
}

// CalendarAuthURL returns the consent URL for connecting a calendar.
func CalendarAuthURL(svc *calendar.Service, opts CalendarOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := issueState(w, CalendarStateCookie, opts.CookieSecure)
		writeJSON(w, http.StatusOK, AuthURLResponse{URL: svc.AuthURL(state)})
	}
}

// CalendarCallback completes the OAuth flow and redirects to the calendar
// page with connected=true or error=<reason>.
func CalendarCallback(svc *calendar.Service, opts CalendarOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := auth.FromContext(r.Context())
		if caller.Anonymous() {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		fail := func(reason string, err error) {
			slog.Warn("calendar connection failed", "user_id", caller.UserID, "reason", reason, "error", err)
			http.Redirect(w, r, pageURL(opts.PageURL, "error", reason), http.StatusFound)
		}

		code := r.URL.Query().Get("code")
		if code == "" {
			fail(calendar.ReasonNoCode, nil)
			return
		}
		if !consumeState(w, r, CalendarStateCookie, opts.CookieSecure) {
			fail(calendar.ReasonCallbackFailed, errors.New("oauth state mismatch"))
			return
		}

		tok, err := svc.Connect(r.Context(), caller, code)
		if err != nil {
			fail(calendar.ConnectReason(err), err)
			return
		}

		if opts.Notifier != nil {
			opts.Notifier.Notify(caller.UserID, "success", "Calendar connected", "Connected "+tok.Email)
		}
		http.Redirect(w, r, pageURL(opts.PageURL, "connected", "true"), http.StatusFound)
	}
}

func pageURL(base, key, value string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}

// ListConnectedCalendars returns the calendars of the caller's connection.
func ListConnectedCalendars(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendars, err := svc.Calendars(r.Context(), auth.FromContext(r.Context()))
		if err != nil {
			writeCalendarError(w, err, "Failed to fetch calendars")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"calendars": calendars})
	}
}

// eventWindow reads and validates calendarId, timeMin and timeMax.
func eventWindow(w http.ResponseWriter, r *http.Request) (string, time.Time, time.Time, bool) {
	q := r.URL.Query()
	calendarID, rawMin, rawMax := q.Get("calendarId"), q.Get("timeMin"), q.Get("timeMax")
	if calendarID == "" || rawMin == "" || rawMax == "" {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Missing required parameters")
		return "", time.Time{}, time.Time{}, false
	}
	timeMin, err1 := time.Parse(time.RFC3339, rawMin)
	timeMax, err2 := time.Parse(time.RFC3339, rawMax)
	if err1 != nil || err2 != nil {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "timeMin and timeMax must be RFC 3339 timestamps")
		return "", time.Time{}, time.Time{}, false
	}
	if timeMax.Before(timeMin) {
		middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "timeMax must not be before timeMin")
		return "", time.Time{}, time.Time{}, false
	}
	return calendarID, timeMin, timeMax, true
}

// ListEvents returns the events of one calendar in a time window.
func ListEvents(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID, timeMin, timeMax, ok := eventWindow(w, r)
		if !ok {
			return
		}
		events, err := svc.Events(r.Context(), auth.FromContext(r.Context()), calendarID, timeMin, timeMax)
		if err != nil {
			writeCalendarError(w, err, "Failed to fetch events")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": events})
	}
}

// ExportEvents returns the events of a window as an iCalendar file.
func ExportEvents(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		calendarID, timeMin, timeMax, ok := eventWindow(w, r)
		if !ok {
			return
		}
		events, err := svc.Events(r.Context(), auth.FromContext(r.Context()), calendarID, timeMin, timeMax)
		if err != nil {
			writeCalendarError(w, err, "Failed to fetch events")
			return
		}

		w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="calendar.ics"`)
		if err := calendar.EncodeICS(w, calendarID, events, time.Now()); err != nil {
			slog.Error("writing calendar export", "error", err)
		}
	}
}

// CreateEvent adds an event to a connected calendar.
func CreateEvent(svc *calendar.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := auth.FromContext(r.Context())
		if caller.Anonymous() {
			writeCalendarError(w, auth.ErrUnauthenticated, "")
			return
		}

		var req CreateEventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		if req.CalendarID == "" {
			middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "calendarId", "Calendar is required")
			return
		}

		created, err := svc.CreateEvent(r.Context(), caller, req.CalendarID, models.CalendarEvent{
			Title:       req.Title,
			Description: req.Description,
			Start:       req.Start,
			End:         req.End,
			Location:    req.Location,
			Attendees:   req.Attendees,
		})
		if err != nil {
			writeCalendarError(w, err, "Failed to create event")
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"event": created})
	}
}

// DisconnectCalendar removes the caller's calendar connection.
func DisconnectCalendar(svc *calendar.Service, opts CalendarOptions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := auth.FromContext(r.Context())
		if err := svc.Disconnect(r.Context(), caller); err != nil {
			writeCalendarError(w, err, "Failed to disconnect calendar")
			return
		}
		if opts.Notifier != nil {
			opts.Notifier.Notify(caller.UserID, "info", "Calendar disconnected", "Your calendar is no longer connected")
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// CalendarView returns the render-ready view for mode and date, optionally
// moved by nav (previous, next or today).
func CalendarView(svc *calendar.Service, cfg calendar.SlotConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		loc := time.UTC
		if tz := q.Get("tz"); tz != "" {
			l, err := time.LoadLocation(tz)
			if err != nil {
				middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "tz", "Unknown time zone")
				return
			}
			loc = l
		}
		mode, err := calendar.ParseViewMode(q.Get("mode"))
		if err != nil {
			middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "mode", "Mode must be day, week or month")
			return
		}
		ref := time.Now().In(loc)
		if d := q.Get("date"); d != "" {
			ref, err = time.ParseInLocation("2006-01-02", d, loc)
			if err != nil {
				middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "date", "Date must be YYYY-MM-DD")
				return
			}
		}
		switch q.Get("nav") {
		case "":
		case "previous":
			ref = calendar.Shift(ref, mode, -1)
		case "next":
			ref = calendar.Shift(ref, mode, 1)
		case "today":
			ref = time.Now().In(loc)
		default:
			middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "nav", "Nav must be previous, next or today")
			return
		}

		calendarID := q.Get("calendarId")
		if calendarID == "" {
			calendarID = "primary"
		}
		state := calendar.ViewState{Ref: ref, Mode: mode, Range: calendar.ComputeRange(ref, mode)}
		view, err := svc.LoadView(r.Context(), auth.FromContext(r.Context()), calendarID, state, cfg)
		if err != nil {
			writeCalendarError(w, err, "Failed to load calendar")
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}
