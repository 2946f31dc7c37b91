package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/slotbook/backend/internal/storage/models"
)

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// GoogleProvider talks to the Google Calendar API.
type GoogleProvider struct {
	config     *oauth2.Config
	httpClient *http.Client
}

// NewGoogleProvider creates a provider for the given OAuth client.
// redirectURL must point at the calendar callback endpoint.
func NewGoogleProvider(clientID, clientSecret, redirectURL string) *GoogleProvider {
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				gcal.CalendarScope,
				gcal.CalendarEventsScope,
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
			},
			Endpoint: google.Endpoint,
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Provider.
func (g *GoogleProvider) Name() string {
	return models.ProviderGoogle
}

// AuthURL implements Provider. Consent is forced so Google always returns a
// refresh token.
func (g *GoogleProvider) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange implements Provider.
func (g *GoogleProvider) Exchange(ctx context.Context, code string) (*models.CalendarToken, error) {
	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(oauth2.StaticTokenSource(tok)))
	if err != nil {
		return nil, fmt.Errorf("creating userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching userinfo: %w", err)
	}

	out := fromOAuthToken(tok)
	out.Email = info.Email
	return out, nil
}

// Refresh implements Provider.
func (g *GoogleProvider) Refresh(ctx context.Context, tok models.CalendarToken) (*models.CalendarToken, error) {
	if tok.RefreshToken == "" {
		return nil, errors.New("no refresh token")
	}
	// An expired token forces the source to hit the token endpoint.
	src := g.config.TokenSource(ctx, &oauth2.Token{RefreshToken: tok.RefreshToken, Expiry: time.Unix(1, 0)})
	fresh, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing token: %w", err)
	}

	out := fromOAuthToken(fresh)
	if out.RefreshToken == "" {
		out.RefreshToken = tok.RefreshToken
	}
	out.UserID = tok.UserID
	out.Email = tok.Email
	return out, nil
}

// Revoke implements Provider.
func (g *GoogleProvider) Revoke(ctx context.Context, tok models.CalendarToken) error {
	value := tok.RefreshToken
	if value == "" {
		value = tok.AccessToken
	}
	form := url.Values{"token": {value}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, googleRevokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoking token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke returned status %d", resp.StatusCode)
	}
	return nil
}

func (g *GoogleProvider) service(ctx context.Context, tok models.CalendarToken) (*gcal.Service, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
		TokenType:    "Bearer",
	})
	svc, err := gcal.NewService(ctx, option.WithTokenSource(src))
	if err != nil {
		return nil, fmt.Errorf("creating calendar client: %w", err)
	}
	return svc, nil
}

// ListCalendars implements Provider.
func (g *GoogleProvider) ListCalendars(ctx context.Context, tok models.CalendarToken) ([]models.ConnectedCalendar, error) {
	svc, err := g.service(ctx, tok)
	if err != nil {
		return nil, err
	}

	calendars := []models.ConnectedCalendar{}
	err = svc.CalendarList.List().Context(ctx).Pages(ctx, func(page *gcal.CalendarList) error {
		for _, item := range page.Items {
			email := ""
			if strings.Contains(item.Id, "@") {
				email = item.Id
			}
			calendars = append(calendars, models.ConnectedCalendar{
				ID:       item.Id,
				Provider: models.ProviderGoogle,
				Name:     item.Summary,
				Email:    email,
				Primary:  item.Primary,
			})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing calendars: %w", err)
	}
	return calendars, nil
}

// ListEvents implements Provider. Recurring events are expanded into single
// instances, ordered by start time.
func (g *GoogleProvider) ListEvents(ctx context.Context, tok models.CalendarToken, calendarID string, timeMin, timeMax time.Time) ([]models.CalendarEvent, error) {
	svc, err := g.service(ctx, tok)
	if err != nil {
		return nil, err
	}

	events := []models.CalendarEvent{}
	call := svc.Events.List(calendarID).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		SingleEvents(true).
		OrderBy("startTime").
		Context(ctx)
	err = call.Pages(ctx, func(page *gcal.Events) error {
		loc := loadLocation(page.TimeZone)
		for _, item := range page.Items {
			ev, err := eventFromGoogle(item, calendarID, loc)
			if err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing events: %w", err)
	}
	return events, nil
}

// CreateEvent implements Provider.
func (g *GoogleProvider) CreateEvent(ctx context.Context, tok models.CalendarToken, calendarID string, ev models.CalendarEvent) (*models.CalendarEvent, error) {
	svc, err := g.service(ctx, tok)
	if err != nil {
		return nil, err
	}

	body := &gcal.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		Start:       googleDateTime(ev.Start),
		End:         googleDateTime(ev.End),
	}
	for _, email := range ev.Attendees {
		body.Attendees = append(body.Attendees, &gcal.EventAttendee{Email: email})
	}

	created, err := svc.Events.Insert(calendarID, body).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("creating event: %w", err)
	}
	out, err := eventFromGoogle(created, calendarID, ev.Start.Location())
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func googleDateTime(t time.Time) *gcal.EventDateTime {
	dt := &gcal.EventDateTime{DateTime: t.Format(time.RFC3339)}
	if name := t.Location().String(); name != "Local" {
		dt.TimeZone = name
	}
	return dt
}

func loadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// eventFromGoogle converts an API event. All-day events span 00:00:00 of
// their start date to 23:59:59 of their end date in loc.
func eventFromGoogle(item *gcal.Event, calendarID string, loc *time.Location) (models.CalendarEvent, error) {
	ev := models.CalendarEvent{
		ID:          item.Id,
		Title:       item.Summary,
		Description: item.Description,
		Location:    item.Location,
		CalendarID:  calendarID,
		Attendees:   []string{},
	}
	for _, a := range item.Attendees {
		if a.Email != "" {
			ev.Attendees = append(ev.Attendees, a.Email)
		}
	}

	var err error
	if ev.Start, err = parseEventTime(item.Start, loc, 0, 0, 0); err != nil {
		return ev, fmt.Errorf("event %s start: %w", item.Id, err)
	}
	if ev.End, err = parseEventTime(item.End, loc, 23, 59, 59); err != nil {
		return ev, fmt.Errorf("event %s end: %w", item.Id, err)
	}
	return ev, nil
}

func parseEventTime(dt *gcal.EventDateTime, loc *time.Location, hour, minute, sec int) (time.Time, error) {
	if dt == nil {
		return time.Time{}, errors.New("missing time")
	}
	if dt.DateTime != "" {
		return time.Parse(time.RFC3339, dt.DateTime)
	}
	if dt.TimeZone != "" {
		loc = loadLocation(dt.TimeZone)
	}
	day, err := time.ParseInLocation("2006-01-02", dt.Date, loc)
	if err != nil {
		return time.Time{}, err
	}
	return day.Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute + time.Duration(sec)*time.Second), nil
}

func fromOAuthToken(tok *oauth2.Token) *models.CalendarToken {
	return &models.CalendarToken{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry.UTC(),
	}
}
