package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

// CalendarTokenRepository stores one calendar credential per user.
type CalendarTokenRepository struct {
	BaseRepository
}

// NewCalendarTokenRepository creates a new calendar token repository.
func NewCalendarTokenRepository(db *DB) *CalendarTokenRepository {
	return &CalendarTokenRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

func scanCalendarToken(s rowScanner) (models.CalendarToken, error) {
	var tok models.CalendarToken
	var expiry sql.NullTime
	err := s.Scan(
		&tok.UserID, &tok.AccessToken, &tok.RefreshToken, &expiry,
		&tok.Email, &tok.CreatedAt, &tok.UpdatedAt,
	)
	if expiry.Valid {
		tok.Expiry = expiry.Time
	}
	return tok, err
}

// Get retrieves the token stored for userID.
func (r *CalendarTokenRepository) Get(ctx context.Context, userID string) (*models.CalendarToken, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, expiry, email, created_at, updated_at
		FROM calendar_tokens WHERE user_id = ?
	`, userID)

	tok, err := scanCalendarToken(row)
	if err != nil {
		if err := translateError(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("querying calendar token: %w", err)
	}
	return &tok, nil
}

// Upsert stores tok, replacing any token the user already has.
func (r *CalendarTokenRepository) Upsert(ctx context.Context, tok *models.CalendarToken) error {
	now := r.Now()
	tok.UpdatedAt = now
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = now
	}

	var expiry sql.NullTime
	if !tok.Expiry.IsZero() {
		expiry = sql.NullTime{Time: tok.Expiry.UTC(), Valid: true}
	}

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO calendar_tokens (user_id, access_token, refresh_token, expiry, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry = excluded.expiry,
			email = excluded.email,
			updated_at = excluded.updated_at
	`, tok.UserID, tok.AccessToken, tok.RefreshToken, expiry, tok.Email, tok.CreatedAt, tok.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upserting calendar token: %w", err)
	}
	return nil
}

// Delete removes the user's token.
func (r *CalendarTokenRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM calendar_tokens WHERE user_id = ?", userID)
	if err != nil {
		return fmt.Errorf("deleting calendar token: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpiring returns refreshable tokens whose expiry is before cutoff.
func (r *CalendarTokenRepository) ListExpiring(ctx context.Context, cutoff time.Time) ([]models.CalendarToken, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT user_id, access_token, refresh_token, expiry, email, created_at, updated_at
		FROM calendar_tokens
		WHERE refresh_token != '' AND expiry IS NOT NULL AND expiry < ?
		ORDER BY expiry ASC
	`, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("querying expiring tokens: %w", err)
	}
	defer rows.Close()

	var tokens []models.CalendarToken
	for rows.Next() {
		tok, err := scanCalendarToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning calendar token: %w", err)
		}
		tokens = append(tokens, tok)
	}
	return tokens, rows.Err()
}
