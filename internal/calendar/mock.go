package calendar

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slotbook/backend/internal/storage/models"
)

// MockCalendarID is the single calendar exposed by MockProvider.
const MockCalendarID = "primary"

// MockProvider is an offline Provider for development and tests. It
// generates one to three events per day between 09:00 and 17:00, seeded by
// the date, so repeated reads of the same window agree.
type MockProvider struct {
	callbackURL string
	email       string
	now         func() time.Time

	mu      sync.Mutex
	created map[string][]models.CalendarEvent
}

// NewMockProvider creates a mock provider. The consent URL points straight
// back at callbackURL with code=mock. email is reported as the connected
// account.
func NewMockProvider(callbackURL, email string) *MockProvider {
	return &MockProvider{
		callbackURL: callbackURL,
		email:       email,
		now:         time.Now,
		created:     make(map[string][]models.CalendarEvent),
	}
}

// Name implements Provider.
func (m *MockProvider) Name() string {
	return "mock"
}

// AuthURL implements Provider.
func (m *MockProvider) AuthURL(state string) string {
	q := url.Values{"code": {"mock"}, "state": {state}}
	return m.callbackURL + "?" + q.Encode()
}

// Exchange implements Provider.
func (m *MockProvider) Exchange(ctx context.Context, code string) (*models.CalendarToken, error) {
	if code == "" {
		return nil, errors.New("missing code")
	}
	return &models.CalendarToken{
		AccessToken:  "mock-access-" + uuid.NewString(),
		RefreshToken: "mock-refresh-" + code,
		Expiry:       m.now().Add(time.Hour).UTC(),
		Email:        m.email,
	}, nil
}

// Refresh implements Provider.
func (m *MockProvider) Refresh(ctx context.Context, tok models.CalendarToken) (*models.CalendarToken, error) {
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	tok.AccessToken = "mock-access-" + uuid.NewString()
	tok.Expiry = m.now().Add(time.Hour).UTC()
	return &tok, nil
}

// Revoke implements Provider.
func (m *MockProvider) Revoke(ctx context.Context, tok models.CalendarToken) error {
	return nil
}

// ListCalendars implements Provider.
func (m *MockProvider) ListCalendars(ctx context.Context, tok models.CalendarToken) ([]models.ConnectedCalendar, error) {
	return []models.ConnectedCalendar{{
		ID:       MockCalendarID,
		Provider: models.ProviderGoogle,
		Name:     "Work Calendar",
		Email:    tok.Email,
		Primary:  true,
	}}, nil
}

// ListEvents implements Provider.
func (m *MockProvider) ListEvents(ctx context.Context, tok models.CalendarToken, calendarID string, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	if timeMax.Before(timeMin) {
		return nil, fmt.Errorf("timeMax %s before timeMin %s", timeMax, timeMin)
	}

	events := []models.CalendarEvent{}
	for day := StartOfDay(timeMin); !day.After(timeMax); day = day.AddDate(0, 0, 1) {
		for _, ev := range mockEventsFor(day, calendarID) {
			if !ev.Start.Before(timeMin) && !ev.Start.After(timeMax) {
				events = append(events, ev)
			}
		}
	}

	m.mu.Lock()
	for _, ev := range m.created[createdKey(tok, calendarID)] {
		if !ev.Start.Before(timeMin) && !ev.Start.After(timeMax) {
			events = append(events, ev)
		}
	}
	m.mu.Unlock()
	return events, nil
}

// CreateEvent implements Provider. Created events are returned by later
// ListEvents calls for the same user and calendar.
func (m *MockProvider) CreateEvent(ctx context.Context, tok models.CalendarToken, calendarID string, ev models.CalendarEvent) (*models.CalendarEvent, error) {
	ev.ID = "event-" + uuid.NewString()
	ev.CalendarID = calendarID

	key := createdKey(tok, calendarID)
	m.mu.Lock()
	m.created[key] = append(m.created[key], ev)
	m.mu.Unlock()
	return &ev, nil
}

// createdKey scopes created events to the connected user, since every user's
// calendar is "primary".
func createdKey(tok models.CalendarToken, calendarID string) string {
	return tok.UserID + "/" + calendarID
}

func mockEventsFor(day time.Time, calendarID string) []models.CalendarEvent {
	date := day.Format("2006-01-02")
	h := fnv.New64a()
	h.Write([]byte(calendarID + "/" + date))
	r := rand.New(rand.NewSource(int64(h.Sum64())))

	count := r.Intn(3) + 1
	events := make([]models.CalendarEvent, 0, count)
	for i := 0; i < count; i++ {
		startHour := 9 + r.Intn(8)
		hours := r.Intn(2) + 1
		start := day.Add(time.Duration(startHour) * time.Hour)
		events = append(events, models.CalendarEvent{
			ID:          fmt.Sprintf("mock-%s-%d", date, i),
			Title:       fmt.Sprintf("Mock Event %d", i+1),
			Description: "This is a mock calendar event",
			Start:       start,
			End:         start.Add(time.Duration(hours) * time.Hour),
			CalendarID:  calendarID,
			Attendees:   []string{},
		})
	}
	return events
}
