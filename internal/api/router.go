// Package api provides HTTP routing and handlers for the REST API.
package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/slotbook/backend/internal/api/handlers"
	"github.com/slotbook/backend/internal/api/middleware"
	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/booking"
	"github.com/slotbook/backend/internal/calendar"
	"github.com/slotbook/backend/internal/websocket"
)

// Deps are the services the router dispatches to.
type Deps struct {
	Sessions  *auth.Sessions
	Users     auth.UserStore
	Bookings  *booking.Service
	Calendars *calendar.Service
	Hub       *websocket.Hub
	Scheduler *calendar.Scheduler

	// SignIn is nil when Google sign-in is not configured.
	SignIn   *auth.GoogleSignIn
	DevLogin bool

	DB           handlers.Pinger
	Status       handlers.StatusInfo
	CalendarPage string
	Slots        calendar.SlotConfig
	StaticDir    string
}

// NewRouter creates and configures the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	r := mux.NewRouter()

	// Apply global middleware
	r.Use(middleware.Logging)
	r.Use(middleware.ErrorRecovery)
	r.Use(middleware.Session(d.Sessions))

	api := r.PathPrefix("/api").Subrouter()
	requireAuth := middleware.RequireAuth

	// Health and status endpoints
	api.HandleFunc("/health", handlers.HealthCheck(d.DB)).Methods("GET")
	api.HandleFunc("/status", handlers.Status(d.Status, d.Hub, scheduleOrNil(d.Scheduler))).Methods("GET")

	// WebSocket endpoint
	api.HandleFunc("/ws", handlers.WebSocketUpgrade(d.Hub, d.Calendars, d.Slots)).Methods("GET")

	// Sign-in endpoints
	if d.SignIn != nil {
		api.HandleFunc("/auth/google/login", handlers.GoogleLogin(d.SignIn, d.Sessions)).Methods("GET")
		api.HandleFunc("/auth/google/callback", handlers.GoogleLoginCallback(d.SignIn, d.Users, d.Sessions)).Methods("GET")
	}
	if d.DevLogin {
		api.HandleFunc("/auth/dev-login", handlers.DevLogin(d.Users, d.Sessions)).Methods("POST")
	}
	api.HandleFunc("/auth/me", handlers.Me(d.Users)).Methods("GET")
	api.HandleFunc("/auth/logout", handlers.Logout(d.Sessions)).Methods("POST")

	// Booking type endpoints
	api.HandleFunc("/booking-types", handlers.ListBookingTypes(d.Bookings)).Methods("GET")
	api.HandleFunc("/booking-types", handlers.CreateBookingType(d.Bookings)).Methods("POST")
	api.HandleFunc("/booking-types/slug-available", handlers.SlugAvailable(d.Bookings)).Methods("GET")
	api.HandleFunc("/booking-types/{id}", handlers.GetBookingType(d.Bookings)).Methods("GET")
	api.HandleFunc("/booking-types/{id}", handlers.UpdateBookingType(d.Bookings)).Methods("PUT")
	api.HandleFunc("/booking-types/{id}", handlers.DeleteBookingType(d.Bookings)).Methods("DELETE")
	api.HandleFunc("/booking-types/{id}/active", handlers.ToggleBookingType(d.Bookings)).Methods("PATCH")

	// Calendar connection endpoints
	calOpts := handlers.CalendarOptions{
		PageURL:      d.CalendarPage,
		CookieSecure: d.Sessions.Secure(),
		Notifier:     websocket.NewEventBroadcaster(d.Hub),
	}
	api.HandleFunc("/google/calendar/auth", requireAuth(handlers.CalendarAuthURL(d.Calendars, calOpts))).Methods("GET")
	api.HandleFunc("/auth/callback/google", handlers.CalendarCallback(d.Calendars, calOpts)).Methods("GET")
	api.HandleFunc("/google/calendar/list", handlers.ListConnectedCalendars(d.Calendars)).Methods("GET")
	api.HandleFunc("/google/calendar/events", handlers.ListEvents(d.Calendars)).Methods("GET")
	api.HandleFunc("/google/calendar/events", handlers.CreateEvent(d.Calendars)).Methods("POST")
	api.HandleFunc("/google/calendar/events.ics", handlers.ExportEvents(d.Calendars)).Methods("GET")
	api.HandleFunc("/google/calendar/connection", handlers.DisconnectCalendar(d.Calendars, calOpts)).Methods("DELETE")
	api.HandleFunc("/calendar/view", handlers.CalendarView(d.Calendars, d.Slots)).Methods("GET")

	// Serve static frontend files
	if d.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(d.StaticDir)))
	}

	return r
}

// scheduleOrNil keeps a nil scheduler from becoming a non-nil interface.
func scheduleOrNil(s *calendar.Scheduler) handlers.RefreshSchedule {
	if s == nil {
		return nil
	}
	return s
}
