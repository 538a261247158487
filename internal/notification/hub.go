package notification

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/towlink/towlink/internal/auth"
	"github.com/towlink/towlink/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	clientSendSize = 32
)

// Authenticator resolves the caller of a push connection.
type Authenticator interface {
	VerifyAccess(ctx context.Context, token string) (auth.Claims, error)
}

type session struct {
	room string
	conn *websocket.Conn
	send chan []byte
}

// Hub holds push sessions grouped in rooms keyed by role and user id. It is
// served by a plain net/http server next to the API.
type Hub struct {
	auth     Authenticator
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	rooms map[string]map[*session]struct{}
}

// NewHub builds an empty hub.
func NewHub(authn Authenticator, logger zerolog.Logger) *Hub {
	return &Hub{
		auth:   authn,
		logger: logger.With().Str("component", "push_hub").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		rooms: make(map[string]map[*session]struct{}),
	}
}

// ServeHTTP authenticates the token query parameter and joins the caller's room.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	claims, err := h.auth.VerifyAccess(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	s := &session{room: Room(claims.Role, claims.UserID), conn: conn, send: make(chan []byte, clientSendSize)}
	h.add(s)
	go h.writePump(s)
	h.readPump(s)
}

// Send delivers the event to every session in its room. Users without an
// open session simply miss it.
func (h *Hub) Send(_ context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[event.Room()] {
		select {
		case s.send <- payload:
		default:
			h.logger.Warn().Str("room", s.room).Msg("slow push session, event dropped")
		}
	}
	return nil
}

// Connections returns the number of sessions in a room.
func (h *Hub) Connections(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) add(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[s.room] == nil {
		h.rooms[s.room] = make(map[*session]struct{})
	}
	h.rooms[s.room][s] = struct{}{}
	metrics.WSConnections.Inc()
	h.logger.Debug().Str("room", s.room).Msg("push session joined")
}

func (h *Hub) remove(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.rooms[s.room]
	if !ok {
		return
	}
	if _, ok := members[s]; !ok {
		return
	}
	delete(members, s)
	if len(members) == 0 {
		delete(h.rooms, s.room)
	}
	close(s.send)
	metrics.WSConnections.Dec()
}

// readPump only services control frames; clients never send events.
func (h *Hub) readPump(s *session) {
	defer func() {
		h.remove(s)
		s.conn.Close()
	}()
	s.conn.SetReadLimit(512)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(s *session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
