package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultCookieName is the session cookie used when none is configured.
const DefaultCookieName = "slotbook_session"

// SessionConfig configures session token issuance.
type SessionConfig struct {
	Secret     []byte
	TTL        time.Duration
	CookieName string
	Secure     bool
}

// Sessions issues and verifies HMAC-signed session tokens.
type Sessions struct {
	cfg SessionConfig
	now func() time.Time
}

type sessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// NewSessions creates a session manager. The secret must be non-empty.
func NewSessions(cfg SessionConfig) (*Sessions, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("session secret is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 7 * 24 * time.Hour
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	return &Sessions{cfg: cfg, now: time.Now}, nil
}

// Issue returns a signed token for id.
func (s *Sessions) Issue(id Identity) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Email: id.Email,
		Name:  id.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("signing session: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns its identity.
func (s *Sessions) Verify(tokenStr string) (Identity, error) {
	var claims sessionClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.cfg.Secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.Subject == "" {
		return Identity{}, ErrUnauthenticated
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// Authenticate reads the session from the cookie, falling back to an
// "Authorization: Bearer" header.
func (s *Sessions) Authenticate(r *http.Request) (Identity, error) {
	tokenStr := ""
	if c, err := r.Cookie(s.cfg.CookieName); err == nil {
		tokenStr = c.Value
	}
	if tokenStr == "" {
		parts := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}
	if tokenStr == "" {
		return Identity{}, ErrUnauthenticated
	}
	return s.Verify(tokenStr)
}

// SetCookie writes a session cookie for id.
func (s *Sessions) SetCookie(w http.ResponseWriter, id Identity) error {
	token, err := s.Issue(id)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.TTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// ClearCookie expires the session cookie.
func (s *Sessions) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Secure reports whether cookies are marked Secure.
func (s *Sessions) Secure() bool {
	return s.cfg.Secure
}
