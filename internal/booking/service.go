package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/storage"
	"github.com/slotbook/backend/internal/storage/models"
)

// Store persists booking types. Implementations enforce (owner, slug)
// uniqueness and report violations as storage.ErrDuplicate.
type Store interface {
	ListByOwner(ctx context.Context, ownerID string) ([]models.BookingType, error)
	GetByID(ctx context.Context, ownerID, id string) (*models.BookingType, error)
	Create(ctx context.Context, bt *models.BookingType) error
	Update(ctx context.Context, bt *models.BookingType) error
	SetActive(ctx context.Context, ownerID, id string, active bool) error
	Delete(ctx context.Context, ownerID, id string) error
	SlugExists(ctx context.Context, ownerID, slug, excludeID string) (bool, error)
}

// Change actions reported to a Notifier.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionToggled = "toggled"
)

// Notifier receives booking type changes after they are committed.
type Notifier interface {
	BookingTypeChanged(userID, action string, bt models.BookingType)
	Notify(userID, level, title, message string)
}

// Service implements owner-scoped booking type management.
type Service struct {
	store    Store
	notifier Notifier
}

// NewService creates a booking type service. notifier may be nil.
func NewService(store Store, notifier Notifier) *Service {
	return &Service{store: store, notifier: notifier}
}

// List returns the caller's booking types, newest first. An anonymous caller
// gets an empty list.
func (s *Service) List(ctx context.Context, caller auth.Identity) ([]models.BookingType, error) {
	if caller.Anonymous() {
		return []models.BookingType{}, nil
	}
	items, err := s.store.ListByOwner(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("listing booking types: %w", err)
	}
	if items == nil {
		items = []models.BookingType{}
	}
	return items, nil
}

// Get returns one of the caller's booking types.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*models.BookingType, error) {
	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	bt, err := s.store.GetByID(ctx, caller.UserID, id)
	if err != nil {
		return nil, translate(err, "getting booking type")
	}
	return bt, nil
}

// Create validates in and stores a new booking type owned by the caller.
func (s *Service) Create(ctx context.Context, caller auth.Identity, in Input) (*models.BookingType, error) {
	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	bt, err := in.Normalize()
	if err != nil {
		return nil, err
	}
	bt.OwnerID = caller.UserID

	if err := s.store.Create(ctx, &bt); err != nil {
		return nil, s.failed(caller, translate(err, "creating booking type"))
	}

	s.changed(caller, ActionCreated, bt, "Booking type created")
	return &bt, nil
}

// Update replaces the editable fields of one of the caller's booking types.
// The owner never changes. Omitting active keeps the stored value.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id string, in Input) (*models.BookingType, error) {
	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	bt, err := in.Normalize()
	if err != nil {
		return nil, err
	}

	existing, err := s.store.GetByID(ctx, caller.UserID, id)
	if err != nil {
		return nil, translate(err, "getting booking type")
	}
	if in.Active == nil {
		bt.Active = existing.Active
	}
	bt.ID = existing.ID
	bt.OwnerID = existing.OwnerID
	bt.CreatedAt = existing.CreatedAt

	if err := s.store.Update(ctx, &bt); err != nil {
		return nil, s.failed(caller, translate(err, "updating booking type"))
	}

	s.changed(caller, ActionUpdated, bt, "Booking type updated")
	return &bt, nil
}

// Delete permanently removes one of the caller's booking types.
func (s *Service) Delete(ctx context.Context, caller auth.Identity, id string) error {
	if caller.Anonymous() {
		return ErrUnauthenticated
	}
	bt, err := s.store.GetByID(ctx, caller.UserID, id)
	if err != nil {
		return translate(err, "getting booking type")
	}
	if err := s.store.Delete(ctx, caller.UserID, id); err != nil {
		return s.failed(caller, translate(err, "deleting booking type"))
	}

	s.changed(caller, ActionDeleted, *bt, "Booking type deleted")
	return nil
}

// Toggle sets the active flag, or flips it when active is nil. No other
// field changes.
func (s *Service) Toggle(ctx context.Context, caller auth.Identity, id string, active *bool) (*models.BookingType, error) {
	if caller.Anonymous() {
		return nil, ErrUnauthenticated
	}
	bt, err := s.store.GetByID(ctx, caller.UserID, id)
	if err != nil {
		return nil, translate(err, "getting booking type")
	}

	next := !bt.Active
	if active != nil {
		next = *active
	}
	if err := s.store.SetActive(ctx, caller.UserID, id, next); err != nil {
		return nil, s.failed(caller, translate(err, "toggling booking type"))
	}
	bt.Active = next

	msg := "Booking type deactivated"
	if next {
		msg = "Booking type activated"
	}
	s.changed(caller, ActionToggled, *bt, msg)
	return bt, nil
}

// SlugAvailable reports whether the caller could use slug. excludeID skips
// the record being edited. The answer is advisory; writes rely on the store
// constraint.
func (s *Service) SlugAvailable(ctx context.Context, caller auth.Identity, slug, excludeID string) (bool, error) {
	if caller.Anonymous() {
		return false, ErrUnauthenticated
	}
	if !ValidSlug(slug) {
		return false, nil
	}
	exists, err := s.store.SlugExists(ctx, caller.UserID, slug, excludeID)
	if err != nil {
		return false, fmt.Errorf("checking slug: %w", err)
	}
	return !exists, nil
}

func (s *Service) changed(caller auth.Identity, action string, bt models.BookingType, msg string) {
	if s.notifier == nil {
		return
	}
	s.notifier.BookingTypeChanged(caller.UserID, action, bt)
	s.notifier.Notify(caller.UserID, "success", "Success", msg)
}

func (s *Service) failed(caller auth.Identity, err error) error {
	if errors.Is(err, ErrSlugTaken) || errors.Is(err, ErrNotFound) {
		return err
	}
	slog.Error("booking type mutation failed", "user_id", caller.UserID, "error", err)
	if s.notifier != nil {
		s.notifier.Notify(caller.UserID, "error", "Error", "Failed to save booking type")
	}
	return err
}

func translate(err error, op string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, storage.ErrDuplicate):
		return ErrSlugTaken
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
