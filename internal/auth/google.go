package auth

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"

	"github.com/slotbook/backend/internal/storage/models"
)

// Profile is the account information returned by an identity provider.
type Profile struct {
	ProviderID string
	Email      string
	Name       string
}

// UserStore persists application users.
type UserStore interface {
	Upsert(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// GoogleSignIn authenticates application users with their Google account.
type GoogleSignIn struct {
	config *oauth2.Config
}

// NewGoogleSignIn creates a sign-in flow for the given OAuth client.
func NewGoogleSignIn(clientID, clientSecret, redirectURL string) *GoogleSignIn {
	return &GoogleSignIn{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes: []string{
				oauth2api.UserinfoEmailScope,
				oauth2api.UserinfoProfileScope,
			},
			Endpoint: google.Endpoint,
		},
	}
}

// AuthURL returns the Google consent URL for state.
func (g *GoogleSignIn) AuthURL(state string) string {
	return g.config.AuthCodeURL(state, oauth2.SetAuthURLParam("prompt", "select_account"))
}

// Exchange trades an authorization code for the user's profile.
func (g *GoogleSignIn) Exchange(ctx context.Context, code string) (Profile, error) {
	if code == "" {
		return Profile{}, errors.New("missing authorization code")
	}
	token, err := g.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("exchanging code: %w", err)
	}
	svc, err := oauth2api.NewService(ctx, option.WithTokenSource(g.config.TokenSource(ctx, token)))
	if err != nil {
		return Profile{}, fmt.Errorf("creating userinfo client: %w", err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return Profile{}, fmt.Errorf("fetching userinfo: %w", err)
	}
	if info.Email == "" {
		return Profile{}, errors.New("google account has no email")
	}
	return Profile{ProviderID: info.Id, Email: info.Email, Name: info.Name}, nil
}

// Login records the user described by p and returns its identity.
func Login(ctx context.Context, users UserStore, p Profile) (Identity, error) {
	u := models.User{Email: p.Email, Name: p.Name}
	if p.ProviderID != "" {
		id := p.ProviderID
		u.GoogleID = &id
	}
	if err := users.Upsert(ctx, &u); err != nil {
		return Identity{}, fmt.Errorf("saving user: %w", err)
	}
	return Identity{UserID: u.ID, Email: u.Email, Name: u.Name}, nil
}
