package calendar

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/emersion/go-ical"

	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/storage"
	"github.com/slotbook/backend/internal/storage/models"
)

// countingProvider wraps MockProvider and can be told to fail.
type countingProvider struct {
	*MockProvider
	refreshes  atomic.Int32
	failEvents bool
}

func (p *countingProvider) Refresh(ctx context.Context, tok models.CalendarToken) (*models.CalendarToken, error) {
	p.refreshes.Add(1)
	return p.MockProvider.Refresh(ctx, tok)
}

func (p *countingProvider) ListEvents(ctx context.Context, tok models.CalendarToken, calendarID string, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	if p.failEvents {
		return nil, errors.New("upstream unavailable")
	}
	return p.MockProvider.ListEvents(ctx, tok, calendarID, timeMin, timeMax)
}

type failingTokens struct {
	*storage.MemoryCalendarTokens
}

func (failingTokens) Upsert(ctx context.Context, tok *models.CalendarToken) error {
	return errors.New("disk full")
}

var caller = auth.Identity{UserID: "user-1", Email: "owner@example.com"}

func newTestCalendarService(t *testing.T, opts Options) (*Service, *countingProvider, *storage.MemoryCalendarTokens) {
	t.Helper()
	provider := &countingProvider{MockProvider: NewMockProvider("http://localhost/api/auth/callback/google", "owner@example.com")}
	tokens := storage.NewMemoryCalendarTokens()
	return NewService(provider, tokens, opts), provider, tokens
}

func TestConnectStoresToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, tokens := newTestCalendarService(t, Options{})

	if _, err := svc.Connect(ctx, caller, "mock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	tok, err := tokens.Get(ctx, caller.UserID)
	if err != nil {
		t.Fatalf("token not stored: %v", err)
	}
	if tok.Email != "owner@example.com" || tok.AccessToken == "" {
		t.Errorf("stored token = %+v", tok)
	}

	// Reconnecting replaces the token.
	if _, err := svc.Connect(ctx, caller, "again"); err != nil {
		t.Fatalf("second Connect: %v", err)
	}
	again, _ := tokens.Get(ctx, caller.UserID)
	if again.AccessToken == tok.AccessToken {
		t.Error("second connection did not overwrite token")
	}
}

func TestConnectFailureReasons(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	svc, _, _ := newTestCalendarService(t, Options{EnforceEmailMatch: true})
	if _, err := svc.Connect(ctx, caller, ""); ConnectReason(err) != ReasonNoCode {
		t.Errorf("empty code: got %v", err)
	}

	other := auth.Identity{UserID: "user-2", Email: "someone-else@example.com"}
	if _, err := svc.Connect(ctx, other, "mock"); ConnectReason(err) != ReasonEmailMismatch {
		t.Errorf("mismatch: got %v", err)
	}

	lenient, _, _ := newTestCalendarService(t, Options{})
	if _, err := lenient.Connect(ctx, other, "mock"); err != nil {
		t.Errorf("mismatch without enforcement should succeed: %v", err)
	}

	provider := NewMockProvider("http://localhost/cb", "owner@example.com")
	broken := NewService(provider, failingTokens{storage.NewMemoryCalendarTokens()}, Options{})
	if _, err := broken.Connect(ctx, caller, "mock"); ConnectReason(err) != ReasonTokenStorage {
		t.Errorf("storage failure: got %v", err)
	}

	if _, err := svc.Connect(ctx, auth.Identity{}, "mock"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Errorf("anonymous: got %v", err)
	}
}

func TestNotConnected(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestCalendarService(t, Options{})

	if _, err := svc.Calendars(ctx, caller); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Calendars: got %v", err)
	}
	if _, err := svc.Events(ctx, caller, "primary", time.Now(), time.Now().Add(time.Hour)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Events: got %v", err)
	}
	if err := svc.Disconnect(ctx, caller); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Disconnect: got %v", err)
	}
}

func TestRefreshBeforeUse(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, provider, tokens := newTestCalendarService(t, Options{RefreshWindow: 5 * time.Minute})

	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	svc.now = fixedClock(now)

	tokens.Upsert(ctx, &models.CalendarToken{
		UserID:       caller.UserID,
		AccessToken:  "old",
		RefreshToken: "refresh",
		Expiry:       now.Add(time.Hour),
	})
	if _, err := svc.Calendars(ctx, caller); err != nil {
		t.Fatalf("Calendars: %v", err)
	}
	if n := provider.refreshes.Load(); n != 0 {
		t.Errorf("fresh token refreshed %d times", n)
	}

	tokens.Upsert(ctx, &models.CalendarToken{
		UserID:       caller.UserID,
		AccessToken:  "old",
		RefreshToken: "refresh",
		Expiry:       now.Add(2 * time.Minute),
	})
	if _, err := svc.Calendars(ctx, caller); err != nil {
		t.Fatalf("Calendars: %v", err)
	}
	if n := provider.refreshes.Load(); n != 1 {
		t.Errorf("expiring token refreshed %d times, want 1", n)
	}
	stored, _ := tokens.Get(ctx, caller.UserID)
	if stored.AccessToken == "old" {
		t.Error("refreshed token was not persisted")
	}
	if stored.RefreshToken != "refresh" {
		t.Errorf("refresh token lost: %q", stored.RefreshToken)
	}
}

func TestRefreshExpiring(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, provider, tokens := newTestCalendarService(t, Options{RefreshWindow: 10 * time.Minute})
	now := time.Now()

	tokens.Upsert(ctx, &models.CalendarToken{UserID: "a", AccessToken: "x", RefreshToken: "r", Expiry: now.Add(time.Minute)})
	tokens.Upsert(ctx, &models.CalendarToken{UserID: "b", AccessToken: "x", RefreshToken: "r", Expiry: now.Add(time.Hour)})
	tokens.Upsert(ctx, &models.CalendarToken{UserID: "c", AccessToken: "x", Expiry: now.Add(time.Minute)})

	n, err := svc.RefreshExpiring(ctx)
	if err != nil {
		t.Fatalf("RefreshExpiring: %v", err)
	}
	if n != 1 || provider.refreshes.Load() != 1 {
		t.Errorf("refreshed %d tokens (%d provider calls), want 1", n, provider.refreshes.Load())
	}
}

func TestEventsAndCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, _ := newTestCalendarService(t, Options{})
	if _, err := svc.Connect(ctx, caller, "mock"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	day := time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)
	events, err := svc.Events(ctx, caller, MockCalendarID, day, EndOfDay(day))
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) < 1 || len(events) > 3 {
		t.Errorf("mock returned %d events for one day", len(events))
	}
	for _, ev := range events {
		if ev.Start.Hour() < 9 || ev.Start.Hour() > 16 {
			t.Errorf("event %s starts at %v", ev.ID, ev.Start)
		}
	}
	again, _ := svc.Events(ctx, caller, MockCalendarID, day, EndOfDay(day))
	if len(again) != len(events) || again[0].Start != events[0].Start {
		t.Error("mock events are not deterministic")
	}

	if _, err := svc.CreateEvent(ctx, caller, MockCalendarID, models.CalendarEvent{Title: " "}); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("blank title: got %v", err)
	}
	bad := models.CalendarEvent{Title: "x", Start: day.Add(2 * time.Hour), End: day.Add(time.Hour)}
	if _, err := svc.CreateEvent(ctx, caller, MockCalendarID, bad); !errors.Is(err, ErrInvalidEvent) {
		t.Errorf("end before start: got %v", err)
	}

	created, err := svc.CreateEvent(ctx, caller, MockCalendarID, models.CalendarEvent{
		Title: "Intro call",
		Start: day.Add(20 * time.Hour),
		End:   day.Add(21 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateEvent: %v", err)
	}
	if created.ID == "" || created.CalendarID != MockCalendarID {
		t.Errorf("created = %+v", created)
	}
	after, _ := svc.Events(ctx, caller, MockCalendarID, day, EndOfDay(day))
	if len(after) != len(events)+1 {
		t.Errorf("created event not listed: %d events", len(after))
	}

	other := auth.Identity{UserID: "user-2", Email: "owner@example.com"}
	if _, err := svc.Connect(ctx, other, "mock"); err != nil {
		t.Fatalf("Connect other: %v", err)
	}
	theirs, err := svc.Events(ctx, other, MockCalendarID, day, EndOfDay(day))
	if err != nil {
		t.Fatalf("Events other: %v", err)
	}
	for _, ev := range theirs {
		if ev.ID == created.ID {
			t.Error("event created by one user listed for another")
		}
	}
}

func TestDisconnect(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, _, tokens := newTestCalendarService(t, Options{})
	svc.Connect(ctx, caller, "mock")

	if err := svc.Disconnect(ctx, caller); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := tokens.Get(ctx, caller.UserID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("token still stored: %v", err)
	}
}

func TestLoadViewReportsFetchFailure(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	svc, provider, _ := newTestCalendarService(t, Options{})

	ref := date(2024, time.March, 14)
	state := ViewState{Ref: ref, Mode: ModeWeek, Range: ComputeRange(ref, ModeWeek)}

	if _, err := svc.LoadView(ctx, caller, MockCalendarID, state, DefaultSlotConfig); !errors.Is(err, ErrNotConnected) {
		t.Errorf("not connected: got %v", err)
	}

	svc.Connect(ctx, caller, "mock")
	provider.failEvents = true
	v, err := svc.LoadView(ctx, caller, MockCalendarID, state, DefaultSlotConfig)
	if err != nil {
		t.Fatalf("LoadView: %v", err)
	}
	if v.Notice == "" || len(v.Cells) != 7 {
		t.Errorf("view = %+v", v)
	}
}

func TestEncodeICS(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 3, 14, 9, 0, 0, 0, time.UTC)
	events := []models.CalendarEvent{{
		ID:        "evt-1",
		Title:     "Intro call",
		Start:     start,
		End:       start.Add(30 * time.Minute),
		Location:  "Zoom",
		Attendees: []string{"guest@example.com"},
	}}

	var buf bytes.Buffer
	if err := EncodeICS(&buf, "Work", events, start); err != nil {
		t.Fatalf("EncodeICS: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"BEGIN:VCALENDAR", "UID:evt-1", "SUMMARY:Intro call", "DTSTART:20240314T090000Z", "mailto:guest@example.com"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	cal, err := ical.NewDecoder(strings.NewReader(out)).Decode()
	if err != nil {
		t.Fatalf("decoding output: %v", err)
	}
	if n := len(cal.Events()); n != 1 {
		t.Errorf("decoded %d events", n)
	}
}
