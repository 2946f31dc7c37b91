package models

import (
	"time"
)

// BookingType is a reusable meeting template owned by a single user.
type BookingType struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"-"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description *string   `json:"description,omitempty"`
	Duration    int       `json:"duration"`
	Location    *string   `json:"location,omitempty"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DefaultDuration is used when a booking type is saved without a duration.
const DefaultDuration = 30

// MinDuration is the shortest allowed booking type, in minutes.
const MinDuration = 5
