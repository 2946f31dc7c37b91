package websocket

import (
	"log/slog"

	"github.com/slotbook/backend/internal/storage/models"
)

// EventBroadcaster turns domain changes into WebSocket events for the
// owning user's connections.
type EventBroadcaster struct {
	hub *Hub
}

// NewEventBroadcaster creates a new event broadcaster.
func NewEventBroadcaster(hub *Hub) *EventBroadcaster {
	return &EventBroadcaster{hub: hub}
}

// BookingTypeChanged sends a booking_type.changed event.
func (b *EventBroadcaster) BookingTypeChanged(userID, action string, bt models.BookingType) {
	b.send(userID, NewMessage(TypeBookingTypeChanged, BookingTypeChangedPayload{
		Action:      action,
		BookingType: bt,
	}))
}

// Notify sends a dismissible notification.
func (b *EventBroadcaster) Notify(userID, level, title, message string) {
	b.send(userID, NewMessage(TypeNotification, NotificationPayload{
		Level:       level,
		Title:       title,
		Message:     message,
		Dismissible: true,
	}))
}

func (b *EventBroadcaster) send(userID string, msg Message) {
	data, err := msg.JSON()
	if err != nil {
		slog.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}
	b.hub.BroadcastTo(userID, data)
}
