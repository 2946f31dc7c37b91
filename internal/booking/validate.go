// Package booking implements booking type management: validation and
// owner-scoped create/read/update/delete/toggle over a pluggable Store.
package booking

import (
	"errors"
	"regexp"
	"strings"

	"github.com/slotbook/backend/internal/storage/models"
)

var (
	// ErrNotFound is returned when the booking type does not exist or belongs
	// to another user.
	ErrNotFound = errors.New("booking type not found")

	// ErrSlugTaken is returned when the caller already has a booking type with
	// the requested slug.
	ErrSlugTaken = errors.New("slug is already in use")

	// ErrUnauthenticated is returned by mutations without a caller identity.
	ErrUnauthenticated = errors.New("authentication required")
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// FieldError reports an invalid form field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// Input carries the user-editable fields of a booking type.
type Input struct {
	Name        string  `json:"name"`
	Slug        string  `json:"slug"`
	Description *string `json:"description,omitempty"`
	Duration    int     `json:"duration"`
	Location    *string `json:"location,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

// ValidSlug reports whether slug is non-empty and made only of lowercase
// letters, digits and hyphens.
func ValidSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

// Normalize applies defaults and validates the input. The returned booking
// type has no ID, owner or timestamps.
func (in Input) Normalize() (models.BookingType, error) {
	bt := models.BookingType{
		Name:        strings.TrimSpace(in.Name),
		Slug:        in.Slug,
		Description: blankToNil(in.Description),
		Duration:    in.Duration,
		Location:    blankToNil(in.Location),
		Active:      true,
	}
	if in.Active != nil {
		bt.Active = *in.Active
	}
	if bt.Duration == 0 {
		bt.Duration = models.DefaultDuration
	}

	switch {
	case bt.Name == "":
		return bt, &FieldError{Field: "name", Message: "Name is required"}
	case bt.Slug == "":
		return bt, &FieldError{Field: "slug", Message: "URL is required"}
	case !ValidSlug(bt.Slug):
		return bt, &FieldError{Field: "slug", Message: "URL can only contain lowercase letters, numbers, and hyphens"}
	case bt.Duration < models.MinDuration:
		return bt, &FieldError{Field: "duration", Message: "Duration must be at least 5 minutes"}
	}
	return bt, nil
}

func blankToNil(s *string) *string {
	if s == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
