package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slotbook/backend/internal/storage/models"
)

// UserRepository provides data access for user accounts.
type UserRepository struct {
	BaseRepository
}

// NewUserRepository creates a new user repository.
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

// Upsert creates the user or, when the email is already registered,
// refreshes its name and Google ID. u is updated with the stored record.
func (r *UserRepository) Upsert(ctx context.Context, u *models.User) error {
	now := r.Now()

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO users (id, email, name, google_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(email) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
			google_id = COALESCE(excluded.google_id, users.google_id),
			updated_at = excluded.updated_at
	`, GenerateID(), u.Email, u.Name, nullString(u.GoogleID), now, now)
	if err != nil {
		if err := translateError(err); err == ErrDuplicate {
			return err
		}
		return fmt.Errorf("upserting user: %w", err)
	}

	stored, err := r.getBy(ctx, "email", u.Email)
	if err != nil {
		return err
	}
	*u = *stored
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	var u models.User
	var googleID sql.NullString
	err := r.DB().QueryRowContext(ctx, `
		SELECT id, email, name, google_id, created_at, updated_at FROM users WHERE `+column+` = ?
	`, value).Scan(&u.ID, &u.Email, &u.Name, &googleID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err := translateError(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u.GoogleID = stringPtr(googleID)
	return &u, nil
}
