package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/slotbook/backend/internal/api/middleware"
	"github.com/slotbook/backend/internal/auth"
	"github.com/slotbook/backend/internal/calendar"
	ws "github.com/slotbook/backend/internal/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 65536
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     sameOrigin,
}

// sameOrigin accepts requests without an Origin header (non-browser
// clients) and browser requests from the serving host.
func sameOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == r.Host
}

// WebSocketUpgrade returns a handler that upgrades HTTP connections to
// WebSocket. Each connection receives its owner's events and can drive a
// calendar view.
func WebSocketUpgrade(hub *ws.Hub, calendars *calendar.Service, slots calendar.SlotConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller := auth.FromContext(r.Context())
		if caller.Anonymous() {
			middleware.WriteError(w, http.StatusUnauthorized, middleware.ErrUnauthorized, "Authentication required")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "error", err)
			return
		}

		client := ws.NewClient(hub, caller.UserID)
		hub.Register(client)

		// The request context ends with the handler, so the session gets its own.
		ctx, cancel := context.WithCancel(context.Background())
		session := &viewSession{
			ctx:       ctx,
			client:    client,
			calendars: calendars,
			caller:    caller,
			slots:     slots,
		}

		go writePump(conn, client)
		go readPump(conn, client, hub, session, cancel)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func writePump(conn *websocket.Conn, client *ws.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Outbound():
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client commands until the connection closes.
func readPump(conn *websocket.Conn, client *ws.Client, hub *ws.Hub, session *viewSession, cancel context.CancelFunc) {
	defer func() {
		cancel()
		hub.Unregister(client)
		conn.Close()
	}()

	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Warn("websocket read failed", "user_id", client.UserID(), "error", err)
			}
			return
		}
		session.handle(message)
	}
}

// viewSession is the calendar view driven by one connection. Loads run in
// the background; a result is delivered only if no later load was issued.
type viewSession struct {
	ctx       context.Context
	client    *ws.Client
	calendars *calendar.Service
	caller    auth.Identity
	slots     calendar.SlotConfig

	mu         sync.Mutex
	nav        *calendar.Navigator
	calendarID string
}

func (s *viewSession) handle(data []byte) {
	cmd, err := ws.ParseCommand(data)
	if err != nil {
		s.sendError("", "bad_request", "Malformed message")
		return
	}

	switch cmd.Type {
	case ws.TypePing:
		s.send(ws.NewMessage(ws.TypePong, nil))
	case ws.TypeCalendarOpen:
		s.open(cmd)
	case ws.TypeCalendarNavigate:
		var p ws.CalendarNavigatePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			s.sendError(cmd.Type, "bad_request", "Invalid payload")
			return
		}
		s.navigate(cmd.Type, func(nav *calendar.Navigator) (calendar.Load, bool) {
			switch p.Direction {
			case "previous":
				return nav.Previous(), true
			case "next":
				return nav.Next(), true
			case "today":
				return nav.Today(), true
			}
			return calendar.Load{}, false
		})
	case ws.TypeCalendarMode:
		var p ws.CalendarModePayload
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			s.sendError(cmd.Type, "bad_request", "Invalid payload")
			return
		}
		mode, err := calendar.ParseViewMode(p.Mode)
		if err != nil {
			s.sendError(cmd.Type, middleware.ErrValidation, "Mode must be day, week or month")
			return
		}
		s.navigate(cmd.Type, func(nav *calendar.Navigator) (calendar.Load, bool) {
			return nav.SetMode(mode), true
		})
	default:
		s.sendError(cmd.Type, "unknown_command", "Unknown message type")
	}
}

func (s *viewSession) open(cmd ws.Command) {
	var p ws.CalendarOpenPayload
	if len(cmd.Payload) > 0 {
		if err := json.Unmarshal(cmd.Payload, &p); err != nil {
			s.sendError(cmd.Type, "bad_request", "Invalid payload")
			return
		}
	}
	mode, err := calendar.ParseViewMode(p.Mode)
	if err != nil {
		s.sendError(cmd.Type, middleware.ErrValidation, "Mode must be day, week or month")
		return
	}
	loc := time.UTC
	if p.TZ != "" {
		if loc, err = time.LoadLocation(p.TZ); err != nil {
			s.sendError(cmd.Type, middleware.ErrValidation, "Unknown time zone")
			return
		}
	}

	nav := calendar.NewNavigator(mode, loc, time.Now)
	load := nav.Reload()
	if p.Date != "" {
		ref, err := time.ParseInLocation("2006-01-02", p.Date, loc)
		if err != nil {
			s.sendError(cmd.Type, middleware.ErrValidation, "Date must be YYYY-MM-DD")
			return
		}
		load = nav.SetDate(ref)
	}
	if p.CalendarID == "" {
		p.CalendarID = "primary"
	}

	s.mu.Lock()
	s.nav = nav
	s.calendarID = p.CalendarID
	s.mu.Unlock()

	go s.load(cmd.Type, nav, p.CalendarID, load)
}

func (s *viewSession) navigate(origin ws.MessageType, move func(*calendar.Navigator) (calendar.Load, bool)) {
	s.mu.Lock()
	nav, calendarID := s.nav, s.calendarID
	s.mu.Unlock()
	if nav == nil {
		s.sendError(origin, "calendar_not_open", "Open a calendar first")
		return
	}

	load, ok := move(nav)
	if !ok {
		s.sendError(origin, "bad_request", "Direction must be previous, next or today")
		return
	}
	go s.load(origin, nav, calendarID, load)
}

func (s *viewSession) load(origin ws.MessageType, nav *calendar.Navigator, calendarID string, l calendar.Load) {
	view, err := s.calendars.LoadView(s.ctx, s.caller, calendarID, l.State, s.slots)
	if !nav.Current(l.Seq) || s.superseded(nav) {
		return
	}
	switch {
	case errors.Is(err, calendar.ErrNotConnected):
		s.sendError(origin, middleware.ErrNotConnected, "Google Calendar not connected")
		return
	case errors.Is(err, auth.ErrUnauthenticated):
		s.sendError(origin, middleware.ErrUnauthorized, "Authentication required")
		return
	case err != nil:
		slog.Error("loading calendar view", "user_id", s.caller.UserID, "error", err)
		s.sendError(origin, middleware.ErrUpstream, "Failed to load calendar")
		return
	}
	view.Seq = l.Seq
	s.send(ws.NewMessage(ws.TypeCalendarView, view))
}

// superseded reports whether a later calendar.open replaced nav.
func (s *viewSession) superseded(nav *calendar.Navigator) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nav != nav
}

func (s *viewSession) send(msg ws.Message) {
	data, err := msg.JSON()
	if err != nil {
		slog.Error("encoding websocket message", "type", msg.Type, "error", err)
		return
	}
	s.client.Send(data)
}

func (s *viewSession) sendError(origin ws.MessageType, code, message string) {
	s.send(ws.NewMessage(ws.TypeError, ws.ErrorPayload{
		Code:         code,
		Message:      message,
		OriginalType: string(origin),
	}))
}
