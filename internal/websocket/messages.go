package websocket

import (
	"encoding/json"
	"time"

	"github.com/slotbook/backend/internal/storage/models"
)

// MessageType identifies the type of WebSocket message.
type MessageType string

const (
	// Server -> Client event types
	TypeBookingTypeChanged MessageType = "booking_type.changed"
	TypeCalendarView       MessageType = "calendar.view"
	TypeNotification       MessageType = "notification"

	// Client -> Server command types
	TypePing             MessageType = "ping"
	TypeCalendarOpen     MessageType = "calendar.open"
	TypeCalendarNavigate MessageType = "calendar.navigate"
	TypeCalendarMode     MessageType = "calendar.mode"

	// Server -> Client response types
	TypePong  MessageType = "pong"
	TypeError MessageType = "error"
)

// Message represents a WebSocket message envelope.
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   any         `json:"payload"`
}

// NewMessage creates a new message with the current timestamp.
func NewMessage(msgType MessageType, payload any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// JSON serializes the message to JSON bytes.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(m)
}

// Command is a message received from a client. Payload is decoded by the
// handler for its type.
type Command struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ParseCommand decodes a client message.
func ParseCommand(data []byte) (Command, error) {
	var cmd Command
	err := json.Unmarshal(data, &cmd)
	return cmd, err
}

// BookingTypeChangedPayload is the payload for booking_type.changed events.
type BookingTypeChangedPayload struct {
	Action      string             `json:"action"` // created, updated, deleted, toggled
	BookingType models.BookingType `json:"booking_type"`
}

// CalendarOpenPayload starts a calendar view session.
type CalendarOpenPayload struct {
	CalendarID string `json:"calendar_id"`
	Mode       string `json:"mode,omitempty"`
	Date       string `json:"date,omitempty"` // YYYY-MM-DD
	TZ         string `json:"tz,omitempty"`
}

// CalendarNavigatePayload moves an open view.
type CalendarNavigatePayload struct {
	Direction string `json:"direction"` // previous, next, today
}

// CalendarModePayload switches the mode of an open view.
type CalendarModePayload struct {
	Mode string `json:"mode"`
}

// NotificationPayload is the payload for notification events.
type NotificationPayload struct {
	Level       string `json:"level"` // info, warning, error, success
	Title       string `json:"title"`
	Message     string `json:"message"`
	Dismissible bool   `json:"dismissible"`
}

// ErrorPayload is the payload for error messages.
type ErrorPayload struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	OriginalType string `json:"original_type,omitempty"`
}
