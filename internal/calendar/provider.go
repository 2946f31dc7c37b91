package calendar

import (
	"context"
	"errors"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

// ErrNotConnected is returned when the user has no stored calendar token.
var ErrNotConnected = errors.New("calendar not connected")

// Provider is an external calendar service. Implementations receive the
// stored token on every call and never keep per-user state.
type Provider interface {
	// Name identifies the provider in logs and responses.
	Name() string

	// AuthURL returns the consent URL that leads back to the callback with
	// an authorization code and state.
	AuthURL(state string) string

	// Exchange trades an authorization code for a token. The returned token
	// carries the account email.
	Exchange(ctx context.Context, code string) (*models.CalendarToken, error)

	// Refresh obtains a new access token using tok's refresh token.
	Refresh(ctx context.Context, tok models.CalendarToken) (*models.CalendarToken, error)

	// Revoke invalidates tok at the provider.
	Revoke(ctx context.Context, tok models.CalendarToken) error

	ListCalendars(ctx context.Context, tok models.CalendarToken) ([]models.ConnectedCalendar, error)
	ListEvents(ctx context.Context, tok models.CalendarToken, calendarID string, timeMin, timeMax time.Time) ([]models.CalendarEvent, error)
	CreateEvent(ctx context.Context, tok models.CalendarToken, calendarID string, ev models.CalendarEvent) (*models.CalendarEvent, error)
}

// Reasons reported by a failed calendar connection.
const (
	ReasonNoCode         = "no_code"
	ReasonEmailMismatch  = "email_mismatch"
	ReasonTokenStorage   = "token_storage"
	ReasonCallbackFailed = "callback_failed"
)

// ConnectError is a failed calendar connection with a reason code suitable
// for the redirect query string.
type ConnectError struct {
	Reason string
	Err    error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return "calendar connect: " + e.Reason
	}
	return "calendar connect: " + e.Reason + ": " + e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// ConnectReason extracts the reason code from err, defaulting to
// callback_failed.
func ConnectReason(err error) string {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return ReasonCallbackFailed
}
