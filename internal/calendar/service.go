package calendar

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/storage"
	"github.com/slotbook/backend/internal/storage/models"
)

// ErrInvalidEvent is returned when an event to create is malformed.
var ErrInvalidEvent = errors.New("invalid event")

// TokenStore persists one calendar token per user.
type TokenStore interface {
	Get(ctx context.Context, userID string) (*models.CalendarToken, error)
	Upsert(ctx context.Context, tok *models.CalendarToken) error
	Delete(ctx context.Context, userID string) error
	ListExpiring(ctx context.Context, cutoff time.Time) ([]models.CalendarToken, error)
}

// Options tune the calendar service.
type Options struct {
	// RefreshWindow is how close to expiry a token is refreshed before use.
	RefreshWindow time.Duration

	// EnforceEmailMatch rejects connections whose account email differs
	// from the signed-in user's email. When false the mismatch is logged.
	EnforceEmailMatch bool
}

// DefaultRefreshWindow is used when Options.RefreshWindow is zero.
const DefaultRefreshWindow = 5 * time.Minute

// Service connects users to their external calendar and proxies reads and
// writes through the stored token.
type Service struct {
	provider Provider
	tokens   TokenStore
	opts     Options
	now      func() time.Time
	refresh  singleflight.Group
}

// NewService creates a calendar service.
func NewService(provider Provider, tokens TokenStore, opts Options) *Service {
	if opts.RefreshWindow <= 0 {
		opts.RefreshWindow = DefaultRefreshWindow
	}
	return &Service{provider: provider, tokens: tokens, opts: opts, now: time.Now}
}

// AuthURL returns the provider consent URL for state.
func (s *Service) AuthURL(state string) string {
	return s.provider.AuthURL(state)
}

// Connect exchanges code and stores the resulting token for the caller,
// replacing any earlier connection. Failures are *ConnectError values.
func (s *Service) Connect(ctx context.Context, caller auth.Identity, code string) (*models.CalendarToken, error) {
	if caller.Anonymous() {
		return nil, auth.ErrUnauthenticated
	}
	if code == "" {
		return nil, &ConnectError{Reason: ReasonNoCode}
	}

	tok, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, &ConnectError{Reason: ReasonCallbackFailed, Err: err}
	}

	if tok.Email != "" && caller.Email != "" && !strings.EqualFold(tok.Email, caller.Email) {
		if s.opts.EnforceEmailMatch {
			return nil, &ConnectError{
				Reason: ReasonEmailMismatch,
				Err:    fmt.Errorf("calendar account %s does not match %s", tok.Email, caller.Email),
			}
		}
		slog.Warn("calendar account email differs from user email",
			"user_id", caller.UserID, "user_email", caller.Email, "calendar_email", tok.Email)
	}

	tok.UserID = caller.UserID
	if err := s.tokens.Upsert(ctx, tok); err != nil {
		return nil, &ConnectError{Reason: ReasonTokenStorage, Err: err}
	}

	slog.Info("calendar connected", "user_id", caller.UserID, "provider", s.provider.Name())
	return tok, nil
}

// token loads the caller's token, refreshing it first when it is close to
// expiry.
func (s *Service) token(ctx context.Context, caller auth.Identity) (*models.CalendarToken, error) {
	if caller.Anonymous() {
		return nil, auth.ErrUnauthenticated
	}
	tok, err := s.tokens.Get(ctx, caller.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("loading calendar token: %w", err)
	}
	if tok.NeedsRefresh(s.now(), s.opts.RefreshWindow) {
		return s.refreshToken(ctx, *tok)
	}
	return tok, nil
}

// refreshToken refreshes and persists tok. Concurrent refreshes for the same
// user share one provider call.
func (s *Service) refreshToken(ctx context.Context, tok models.CalendarToken) (*models.CalendarToken, error) {
	v, err, _ := s.refresh.Do(tok.UserID, func() (any, error) {
		fresh, err := s.provider.Refresh(ctx, tok)
		if err != nil {
			return nil, err
		}
		fresh.UserID = tok.UserID
		if fresh.Email == "" {
			fresh.Email = tok.Email
		}
		if err := s.tokens.Upsert(ctx, fresh); err != nil {
			return nil, fmt.Errorf("storing refreshed token: %w", err)
		}
		return fresh, nil
	})
	if err != nil {
		return nil, fmt.Errorf("refreshing calendar token: %w", err)
	}
	return v.(*models.CalendarToken), nil
}

// Calendars lists the calendars visible through the caller's connection.
func (s *Service) Calendars(ctx context.Context, caller auth.Identity) ([]models.ConnectedCalendar, error) {
	tok, err := s.token(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.provider.ListCalendars(ctx, *tok)
}

// Events lists events of calendarID between timeMin and timeMax.
func (s *Service) Events(ctx context.Context, caller auth.Identity, calendarID string, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	tok, err := s.token(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.provider.ListEvents(ctx, *tok, calendarID, timeMin, timeMax)
}

// CreateEvent adds an event to calendarID.
func (s *Service) CreateEvent(ctx context.Context, caller auth.Identity, calendarID string, ev models.CalendarEvent) (*models.CalendarEvent, error) {
	ev.Title = strings.TrimSpace(ev.Title)
	switch {
	case ev.Title == "":
		return nil, fmt.Errorf("%w: title is required", ErrInvalidEvent)
	case ev.Start.IsZero() || ev.End.IsZero():
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidEvent)
	case !ev.End.After(ev.Start):
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidEvent)
	}

	tok, err := s.token(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.provider.CreateEvent(ctx, *tok, calendarID, ev)
}

// Disconnect revokes and deletes the caller's token. A failed revoke is
// logged and the local token is removed anyway.
func (s *Service) Disconnect(ctx context.Context, caller auth.Identity) error {
	if caller.Anonymous() {
		return auth.ErrUnauthenticated
	}
	tok, err := s.tokens.Get(ctx, caller.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		return ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("loading calendar token: %w", err)
	}

	if err := s.provider.Revoke(ctx, *tok); err != nil {
		slog.Warn("revoking calendar token failed", "user_id", caller.UserID, "error", err)
	}
	if err := s.tokens.Delete(ctx, caller.UserID); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("deleting calendar token: %w", err)
	}

	slog.Info("calendar disconnected", "user_id", caller.UserID)
	return nil
}

// LoadView fetches the events for state and assembles the view. Only a
// missing identity or connection is an error; fetch failures are logged and
// reported through the view's notice.
func (s *Service) LoadView(ctx context.Context, caller auth.Identity, calendarID string, state ViewState, cfg SlotConfig) (View, error) {
	events, err := s.Events(ctx, caller, calendarID, state.Range.Start, state.Range.End)
	if errors.Is(err, auth.ErrUnauthenticated) || errors.Is(err, ErrNotConnected) {
		return View{}, err
	}
	if err != nil {
		slog.Error("fetching calendar events failed",
			"user_id", caller.UserID, "calendar_id", calendarID, "error", err)
	}
	return BuildView(state, events, err, cfg), nil
}

// RefreshExpiring refreshes every stored token that expires within the
// refresh window and returns how many were refreshed.
func (s *Service) RefreshExpiring(ctx context.Context) (int, error) {
	cutoff := s.now().Add(s.opts.RefreshWindow)
	tokens, err := s.tokens.ListExpiring(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("listing expiring tokens: %w", err)
	}

	refreshed := 0
	for _, tok := range tokens {
		if _, err := s.refreshToken(ctx, tok); err != nil {
			slog.Warn("proactive token refresh failed", "user_id", tok.UserID, "error", err)
			continue
		}
		refreshed++
	}
	return refreshed, nil
}
