package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/slotbook/backend/internal/api/middleware"
	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/storage"
)

// LoginStateCookie holds the OAuth state of a sign-in.
const LoginStateCookie = "slotbook_login_state"

// DevLoginRequest is the body of a development sign-in.
type DevLoginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// GoogleLogin redirects the browser to the Google account chooser.
func GoogleLogin(signIn *auth.GoogleSignIn, sessions *auth.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := issueState(w, LoginStateCookie, sessions.Secure())
		http.Redirect(w, r, signIn.AuthURL(state), http.StatusFound)
	}
}

// GoogleLoginCallback signs the user in and redirects to the dashboard.
func GoogleLoginCallback(signIn *auth.GoogleSignIn, users auth.UserStore, sessions *auth.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fail := func(reason string, err error) {
			slog.Warn("sign-in failed", "reason", reason, "error", err)
			http.Redirect(w, r, pageURL("/login", "error", reason), http.StatusFound)
		}

		if !consumeState(w, r, LoginStateCookie, sessions.Secure()) {
			fail("invalid_state", errors.New("oauth state mismatch"))
			return
		}
		profile, err := signIn.Exchange(r.Context(), r.URL.Query().Get("code"))
		if err != nil {
			fail("callback_failed", err)
			return
		}
		id, err := auth.Login(r.Context(), users, profile)
		if err != nil {
			fail("account_failed", err)
			return
		}
		if err := sessions.SetCookie(w, id); err != nil {
			fail("session_failed", err)
			return
		}

		slog.Info("user signed in", "user_id", id.UserID)
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	}
}

// DevLogin signs in as any email address. It is only routed when enabled
// in configuration.
func DevLogin(users auth.UserStore, sessions *auth.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req DevLoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, middleware.ErrBadRequest, "Invalid request body")
			return
		}
		req.Email = strings.TrimSpace(req.Email)
		if _, err := mail.ParseAddress(req.Email); err != nil {
			middleware.WriteFieldError(w, http.StatusBadRequest, middleware.ErrValidation, "email", "A valid email is required")
			return
		}

		id, err := auth.Login(r.Context(), users, auth.Profile{Email: req.Email, Name: strings.TrimSpace(req.Name)})
		if err != nil {
			slog.Error("dev login", "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to sign in")
			return
		}
		if err := sessions.SetCookie(w, id); err != nil {
			slog.Error("issuing session", "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to sign in")
			return
		}
		writeJSON(w, http.StatusOK, id)
	}
}

// Me returns the signed-in user.
func Me(users auth.UserStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := auth.FromContext(r.Context())
		if caller.Anonymous() {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
			return
		}

		u, err := users.GetByID(r.Context(), caller.UserID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			// Session outlived the account.
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
		case err != nil:
			slog.Error("loading user", "user_id", caller.UserID, "error", err)
			middleware.WriteError(w, http.StatusInternalServerError, middleware.ErrInternalError, "Failed to load user")
		default:
			writeJSON(w, http.StatusOK, u)
		}
	}
}

// Logout clears the session cookie.
func Logout(sessions *auth.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.ClearCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}
