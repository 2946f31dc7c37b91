// Package models contains the domain models for the application.
package models

import (
	"time"
)

// CalendarToken is the stored credential for a user's connected calendar.
// There is at most one per user; reconnecting overwrites it.
type CalendarToken struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	Expiry       time.Time `json:"expiry"`
	Email        string    `json:"email"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NeedsRefresh reports whether the token expires within window of now and
// can be refreshed. A zero expiry means the provider did not report one.
func (t CalendarToken) NeedsRefresh(now time.Time, window time.Duration) bool {
	if t.RefreshToken == "" || t.Expiry.IsZero() {
		return false
	}
	return !now.Add(window).Before(t.Expiry)
}

// Calendar providers
const (
	ProviderGoogle = "google"
)

// ConnectedCalendar is a calendar visible through the user's connection.
type ConnectedCalendar struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
}

// CalendarEvent is an event read from the external calendar provider.
// Events are never persisted.
type CalendarEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location,omitempty"`
	Attendees   []string  `json:"attendees,omitempty"`
	CalendarID  string    `json:"calendar_id"`
}

// Duration returns the event length. Negative spans from a misbehaving
// provider are reported as zero.
func (e CalendarEvent) Duration() time.Duration {
	if e.End.Before(e.Start) {
		return 0
	}
	return e.End.Sub(e.Start)
}
