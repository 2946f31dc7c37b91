package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

// MemoryBookingTypes is an in-process booking type store with the same
// semantics as BookingTypeRepository, including the (owner, slug)
// uniqueness constraint. Used for development and tests.
type MemoryBookingTypes struct {
	mu    sync.RWMutex
	items map[string]models.BookingType
	seq   map[string]int64
	next  int64
	now   func() time.Time
}

// NewMemoryBookingTypes creates an empty in-memory booking type store.
func NewMemoryBookingTypes() *MemoryBookingTypes {
	return &MemoryBookingTypes{
		items: make(map[string]models.BookingType),
		seq:   make(map[string]int64),
		now:   time.Now,
	}
}

func (m *MemoryBookingTypes) slugTaken(ownerID, slug, excludeID string) bool {
	for id, bt := range m.items {
		if id != excludeID && bt.OwnerID == ownerID && bt.Slug == slug {
			return true
		}
	}
	return false
}

// ListByOwner returns the owner's booking types, newest first.
func (m *MemoryBookingTypes) ListByOwner(ctx context.Context, ownerID string) ([]models.BookingType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.BookingType{}
	for _, bt := range m.items {
		if bt.OwnerID == ownerID {
			out = append(out, bt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return m.seq[out[i].ID] > m.seq[out[j].ID]
	})
	return out, nil
}

// GetByID retrieves a booking type owned by ownerID.
func (m *MemoryBookingTypes) GetByID(ctx context.Context, ownerID, id string) (*models.BookingType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bt, ok := m.items[id]
	if !ok || bt.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return &bt, nil
}

// Create inserts a new booking type.
func (m *MemoryBookingTypes) Create(ctx context.Context, bt *models.BookingType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.slugTaken(bt.OwnerID, bt.Slug, "") {
		return ErrDuplicate
	}
	bt.ID = GenerateID()
	bt.CreatedAt = m.now().UTC()
	bt.UpdatedAt = bt.CreatedAt

	m.next++
	m.seq[bt.ID] = m.next
	m.items[bt.ID] = *bt
	return nil
}

// Update overwrites the editable fields of a booking type.
func (m *MemoryBookingTypes) Update(ctx context.Context, bt *models.BookingType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.items[bt.ID]
	if !ok || existing.OwnerID != bt.OwnerID {
		return ErrNotFound
	}
	if m.slugTaken(bt.OwnerID, bt.Slug, bt.ID) {
		return ErrDuplicate
	}
	bt.CreatedAt = existing.CreatedAt
	bt.UpdatedAt = m.now().UTC()
	m.items[bt.ID] = *bt
	return nil
}

// SetActive changes only the active flag.
func (m *MemoryBookingTypes) SetActive(ctx context.Context, ownerID, id string, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bt, ok := m.items[id]
	if !ok || bt.OwnerID != ownerID {
		return ErrNotFound
	}
	bt.Active = active
	m.items[id] = bt
	return nil
}

// Delete removes a booking type.
func (m *MemoryBookingTypes) Delete(ctx context.Context, ownerID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bt, ok := m.items[id]
	if !ok || bt.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.items, id)
	delete(m.seq, id)
	return nil
}

// SlugExists reports whether the owner uses slug on another record.
func (m *MemoryBookingTypes) SlugExists(ctx context.Context, ownerID, slug, excludeID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.slugTaken(ownerID, slug, excludeID), nil
}

// MemoryCalendarTokens is an in-process calendar token store.
type MemoryCalendarTokens struct {
	mu     sync.RWMutex
	tokens map[string]models.CalendarToken
	now    func() time.Time
}

// NewMemoryCalendarTokens creates an empty in-memory token store.
func NewMemoryCalendarTokens() *MemoryCalendarTokens {
	return &MemoryCalendarTokens{
		tokens: make(map[string]models.CalendarToken),
		now:    time.Now,
	}
}

// Get retrieves the token stored for userID.
func (m *MemoryCalendarTokens) Get(ctx context.Context, userID string) (*models.CalendarToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok, ok := m.tokens[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &tok, nil
}

// Upsert stores tok, replacing any token the user already has.
func (m *MemoryCalendarTokens) Upsert(ctx context.Context, tok *models.CalendarToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if existing, ok := m.tokens[tok.UserID]; ok {
		tok.CreatedAt = existing.CreatedAt
	} else if tok.CreatedAt.IsZero() {
		tok.CreatedAt = now
	}
	tok.UpdatedAt = now
	m.tokens[tok.UserID] = *tok
	return nil
}

// Delete removes the user's token.
func (m *MemoryCalendarTokens) Delete(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.tokens[userID]; !ok {
		return ErrNotFound
	}
	delete(m.tokens, userID)
	return nil
}

// ListExpiring returns refreshable tokens whose expiry is before cutoff.
func (m *MemoryCalendarTokens) ListExpiring(ctx context.Context, cutoff time.Time) ([]models.CalendarToken, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.CalendarToken
	for _, tok := range m.tokens {
		if tok.RefreshToken != "" && !tok.Expiry.IsZero() && tok.Expiry.Before(cutoff) {
			out = append(out, tok)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Expiry.Before(out[j].Expiry) })
	return out, nil
}

// MemoryUsers is an in-process user store keyed by email.
type MemoryUsers struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
	now     func() time.Time
}

// NewMemoryUsers creates an empty in-memory user store.
func NewMemoryUsers() *MemoryUsers {
	return &MemoryUsers{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// Upsert creates the user or refreshes the record registered under its email.
func (m *MemoryUsers) Upsert(ctx context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now().UTC()
	if id, ok := m.byEmail[u.Email]; ok {
		existing := m.byID[id]
		if u.Name != "" {
			existing.Name = u.Name
		}
		if u.GoogleID != nil {
			existing.GoogleID = u.GoogleID
		}
		existing.UpdatedAt = now
		m.byID[id] = existing
		*u = existing
		return nil
	}

	u.ID = GenerateID()
	u.CreatedAt = now
	u.UpdatedAt = now
	m.byID[u.ID] = *u
	m.byEmail[u.Email] = u.ID
	return nil
}

// GetByID retrieves a user by ID.
func (m *MemoryUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}
