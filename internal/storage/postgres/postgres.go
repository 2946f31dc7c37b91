// Package postgres implements the storage interfaces on PostgreSQL through
// GORM. It mirrors the SQLite repositories in the parent package and
// reports the same sentinel errors.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/slotbook/backend/internal/storage"
	"github.com/slotbook/backend/internal/storage/models"
)

type userRow struct {
	ID        string  `gorm:"primaryKey"`
	Email     string  `gorm:"not null;uniqueIndex"`
	Name      string  `gorm:"not null"`
	GoogleID  *string `gorm:"uniqueIndex"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (userRow) TableName() string { return "users" }

type bookingTypeRow struct {
	ID          string `gorm:"primaryKey"`
	OwnerID     string `gorm:"not null;uniqueIndex:idx_booking_types_owner_slug;index:idx_booking_types_owner_created"`
	Name        string `gorm:"not null"`
	Slug        string `gorm:"not null;uniqueIndex:idx_booking_types_owner_slug"`
	Description *string
	Duration    int `gorm:"not null;check:duration >= 5"`
	Location    *string
	Active      bool      `gorm:"not null"`
	CreatedAt   time.Time `gorm:"index:idx_booking_types_owner_created,sort:desc"`
	UpdatedAt   time.Time
}

func (bookingTypeRow) TableName() string { return "booking_types" }

type calendarTokenRow struct {
	UserID       string `gorm:"primaryKey"`
	AccessToken  string `gorm:"not null"`
	RefreshToken string `gorm:"not null"`
	Expiry       *time.Time
	Email        string `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (calendarTokenRow) TableName() string { return "calendar_tokens" }

// Open connects to PostgreSQL and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := db.AutoMigrate(&userRow{}, &bookingTypeRow{}, &calendarTokenRow{}); err != nil {
		return nil, fmt.Errorf("migrating schema: %w", err)
	}
	return db, nil
}

func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return storage.ErrDuplicate
	}
	return err
}

// BookingTypes stores booking types in PostgreSQL.
type BookingTypes struct {
	db *gorm.DB
}

// NewBookingTypes creates a booking type store.
func NewBookingTypes(db *gorm.DB) *BookingTypes {
	return &BookingTypes{db: db}
}

func toBookingType(row bookingTypeRow) models.BookingType {
	return models.BookingType{
		ID:          row.ID,
		OwnerID:     row.OwnerID,
		Name:        row.Name,
		Slug:        row.Slug,
		Description: row.Description,
		Duration:    row.Duration,
		Location:    row.Location,
		Active:      row.Active,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// ListByOwner returns the owner's booking types, newest first.
func (s *BookingTypes) ListByOwner(ctx context.Context, ownerID string) ([]models.BookingType, error) {
	var rows []bookingTypeRow
	err := s.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying booking types: %w", err)
	}

	out := make([]models.BookingType, 0, len(rows))
	for _, row := range rows {
		out = append(out, toBookingType(row))
	}
	return out, nil
}

// GetByID retrieves a booking type owned by ownerID.
func (s *BookingTypes) GetByID(ctx context.Context, ownerID, id string) (*models.BookingType, error) {
	var row bookingTypeRow
	err := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).First(&row).Error
	if err != nil {
		if err := translate(err); err == storage.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("querying booking type: %w", err)
	}
	bt := toBookingType(row)
	return &bt, nil
}

// Create inserts a new booking type.
func (s *BookingTypes) Create(ctx context.Context, bt *models.BookingType) error {
	now := time.Now().UTC()
	row := bookingTypeRow{
		ID:          storage.GenerateID(),
		OwnerID:     bt.OwnerID,
		Name:        bt.Name,
		Slug:        bt.Slug,
		Description: bt.Description,
		Duration:    bt.Duration,
		Location:    bt.Location,
		Active:      bt.Active,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if err := translate(err); err == storage.ErrDuplicate {
			return err
		}
		return fmt.Errorf("inserting booking type: %w", err)
	}
	*bt = toBookingType(row)
	return nil
}

// Update overwrites the editable fields of a booking type.
func (s *BookingTypes) Update(ctx context.Context, bt *models.BookingType) error {
	bt.UpdatedAt = time.Now().UTC()
	result := s.db.WithContext(ctx).Model(&bookingTypeRow{}).
		Where("id = ? AND owner_id = ?", bt.ID, bt.OwnerID).
		Updates(map[string]any{
			"name":        bt.Name,
			"slug":        bt.Slug,
			"description": bt.Description,
			"duration":    bt.Duration,
			"location":    bt.Location,
			"active":      bt.Active,
			"updated_at":  bt.UpdatedAt,
		})
	if result.Error != nil {
		if err := translate(result.Error); err == storage.ErrDuplicate {
			return err
		}
		return fmt.Errorf("updating booking type: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SetActive changes only the active flag. UpdateColumn leaves updated_at
// untouched.
func (s *BookingTypes) SetActive(ctx context.Context, ownerID, id string, active bool) error {
	result := s.db.WithContext(ctx).Model(&bookingTypeRow{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		UpdateColumn("active", active)
	if result.Error != nil {
		return fmt.Errorf("updating booking type status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a booking type.
func (s *BookingTypes) Delete(ctx context.Context, ownerID, id string) error {
	result := s.db.WithContext(ctx).Where("id = ? AND owner_id = ?", id, ownerID).Delete(&bookingTypeRow{})
	if result.Error != nil {
		return fmt.Errorf("deleting booking type: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// SlugExists reports whether the owner uses slug on another record.
func (s *BookingTypes) SlugExists(ctx context.Context, ownerID, slug, excludeID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&bookingTypeRow{}).
		Where("owner_id = ? AND slug = ? AND id <> ?", ownerID, slug, excludeID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return count > 0, nil
}

// CalendarTokens stores calendar credentials in PostgreSQL.
type CalendarTokens struct {
	db *gorm.DB
}

// NewCalendarTokens creates a token store.
func NewCalendarTokens(db *gorm.DB) *CalendarTokens {
	return &CalendarTokens{db: db}
}

func toCalendarToken(row calendarTokenRow) models.CalendarToken {
	tok := models.CalendarToken{
		UserID:       row.UserID,
		AccessToken:  row.AccessToken,
		RefreshToken: row.RefreshToken,
		Email:        row.Email,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if row.Expiry != nil {
		tok.Expiry = *row.Expiry
	}
	return tok
}

// Get retrieves the token stored for userID.
func (s *CalendarTokens) Get(ctx context.Context, userID string) (*models.CalendarToken, error) {
	var row calendarTokenRow
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&row).Error
	if err != nil {
		if err := translate(err); err == storage.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("querying calendar token: %w", err)
	}
	tok := toCalendarToken(row)
	return &tok, nil
}

// Upsert stores tok, replacing any token the user already has.
func (s *CalendarTokens) Upsert(ctx context.Context, tok *models.CalendarToken) error {
	now := time.Now().UTC()
	tok.UpdatedAt = now
	if tok.CreatedAt.IsZero() {
		tok.CreatedAt = now
	}

	row := calendarTokenRow{
		UserID:       tok.UserID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Email:        tok.Email,
		CreatedAt:    tok.CreatedAt,
		UpdatedAt:    tok.UpdatedAt,
	}
	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		row.Expiry = &expiry
	}

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_token", "refresh_token", "expiry", "email", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("upserting calendar token: %w", err)
	}
	return nil
}

// Delete removes the user's token.
func (s *CalendarTokens) Delete(ctx context.Context, userID string) error {
	result := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&calendarTokenRow{})
	if result.Error != nil {
		return fmt.Errorf("deleting calendar token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListExpiring returns refreshable tokens whose expiry is before cutoff.
func (s *CalendarTokens) ListExpiring(ctx context.Context, cutoff time.Time) ([]models.CalendarToken, error) {
	var rows []calendarTokenRow
	err := s.db.WithContext(ctx).
		Where("refresh_token <> '' AND expiry IS NOT NULL AND expiry < ?", cutoff.UTC()).
		Order("expiry ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying expiring tokens: %w", err)
	}

	out := make([]models.CalendarToken, 0, len(rows))
	for _, row := range rows {
		out = append(out, toCalendarToken(row))
	}
	return out, nil
}

// Users stores user accounts in PostgreSQL.
type Users struct {
	db *gorm.DB
}

// NewUsers creates a user store.
func NewUsers(db *gorm.DB) *Users {
	return &Users{db: db}
}

func toUser(row userRow) models.User {
	return models.User{
		ID:        row.ID,
		Email:     row.Email,
		Name:      row.Name,
		GoogleID:  row.GoogleID,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

// Upsert creates the user or refreshes the record registered under its
// email. Zero-valued name and Google ID leave the stored values alone.
func (s *Users) Upsert(ctx context.Context, u *models.User) error {
	var row userRow
	err := s.db.WithContext(ctx).
		Where(userRow{Email: u.Email}).
		Attrs(userRow{ID: storage.GenerateID()}).
		Assign(userRow{Name: u.Name, GoogleID: u.GoogleID}).
		FirstOrCreate(&row).Error
	if err != nil {
		if err := translate(err); err == storage.ErrDuplicate {
			return err
		}
		return fmt.Errorf("upserting user: %w", err)
	}
	*u = toUser(row)
	return nil
}

// GetByID retrieves a user by ID.
func (s *Users) GetByID(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if err != nil {
		if err := translate(err); err == storage.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("querying user: %w", err)
	}
	u := toUser(row)
	return &u, nil
}
