package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slotbook/backend/internal/storage/models"
)

// BookingTypeRepository provides data access for booking types. Every
// query is scoped by owner.
type BookingTypeRepository struct {
	BaseRepository
}

// NewBookingTypeRepository creates a new booking type repository.
func NewBookingTypeRepository(db *DB) *BookingTypeRepository {
	return &BookingTypeRepository{
		BaseRepository: NewBaseRepository(db),
	}
}

const bookingTypeColumns = `id, owner_id, name, slug, description, duration, location, active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBookingType(s rowScanner) (models.BookingType, error) {
	var bt models.BookingType
	var description, location sql.NullString
	err := s.Scan(
		&bt.ID, &bt.OwnerID, &bt.Name, &bt.Slug, &description,
		&bt.Duration, &location, &bt.Active, &bt.CreatedAt, &bt.UpdatedAt,
	)
	bt.Description = stringPtr(description)
	bt.Location = stringPtr(location)
	return bt, err
}

// ListByOwner returns the owner's booking types, newest first.
func (r *BookingTypeRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.BookingType, error) {
	rows, err := r.DB().QueryContext(ctx, `
		SELECT `+bookingTypeColumns+`
		FROM booking_types
		WHERE owner_id = ?
		ORDER BY created_at DESC, rowid DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying booking types: %w", err)
	}
	defer rows.Close()

	bookingTypes := []models.BookingType{}
	for rows.Next() {
		bt, err := scanBookingType(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning booking type: %w", err)
		}
		bookingTypes = append(bookingTypes, bt)
	}
	return bookingTypes, rows.Err()
}

// GetByID retrieves a booking type owned by ownerID.
func (r *BookingTypeRepository) GetByID(ctx context.Context, ownerID, id string) (*models.BookingType, error) {
	row := r.DB().QueryRowContext(ctx, `
		SELECT `+bookingTypeColumns+`
		FROM booking_types WHERE id = ? AND owner_id = ?
	`, id, ownerID)

	bt, err := scanBookingType(row)
	if err != nil {
		if err := translateError(err); err == ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("querying booking type: %w", err)
	}
	return &bt, nil
}

// Create inserts a new booking type. A slug already used by the same owner
// fails with ErrDuplicate.
func (r *BookingTypeRepository) Create(ctx context.Context, bt *models.BookingType) error {
	bt.ID = GenerateID()
	bt.CreatedAt = r.Now()
	bt.UpdatedAt = bt.CreatedAt

	_, err := r.DB().ExecContext(ctx, `
		INSERT INTO booking_types (`+bookingTypeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		bt.ID, bt.OwnerID, bt.Name, bt.Slug, nullString(bt.Description),
		bt.Duration, nullString(bt.Location), bt.Active, bt.CreatedAt, bt.UpdatedAt,
	)
	if err != nil {
		if err := translateError(err); err == ErrDuplicate {
			return err
		}
		return fmt.Errorf("inserting booking type: %w", err)
	}
	return nil
}

// Update overwrites the editable fields of a booking type. Ownership is
// part of the WHERE clause and never written.
func (r *BookingTypeRepository) Update(ctx context.Context, bt *models.BookingType) error {
	bt.UpdatedAt = r.Now()

	result, err := r.DB().ExecContext(ctx, `
		UPDATE booking_types SET
			name = ?, slug = ?, description = ?, duration = ?, location = ?, active = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?
	`,
		bt.Name, bt.Slug, nullString(bt.Description), bt.Duration,
		nullString(bt.Location), bt.Active, bt.UpdatedAt, bt.ID, bt.OwnerID,
	)
	if err != nil {
		if err := translateError(err); err == ErrDuplicate {
			return err
		}
		return fmt.Errorf("updating booking type: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetActive changes only the active flag.
func (r *BookingTypeRepository) SetActive(ctx context.Context, ownerID, id string, active bool) error {
	result, err := r.DB().ExecContext(ctx, `
		UPDATE booking_types SET active = ? WHERE id = ? AND owner_id = ?
	`, active, id, ownerID)
	if err != nil {
		return fmt.Errorf("updating booking type status: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a booking type permanently.
func (r *BookingTypeRepository) Delete(ctx context.Context, ownerID, id string) error {
	result, err := r.DB().ExecContext(ctx, "DELETE FROM booking_types WHERE id = ? AND owner_id = ?", id, ownerID)
	if err != nil {
		return fmt.Errorf("deleting booking type: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SlugExists reports whether ownerID already uses slug on a record other
// than excludeID.
func (r *BookingTypeRepository) SlugExists(ctx context.Context, ownerID, slug, excludeID string) (bool, error) {
	var count int
	err := r.DB().QueryRowContext(ctx, `
		SELECT COUNT(*) FROM booking_types WHERE owner_id = ? AND slug = ? AND id != ?
	`, ownerID, slug, excludeID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return count > 0, nil
}
