package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/google/uuid"

	"engageai/internal/model"
)

// Message is the envelope on the wire, both directions.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Connection is one live socket. Each connection subscribes to named
// channels; a user may hold several connections (tabs) at once.
type Connection struct {
	ID          string
	UserID      string
	Role        model.Role
	Name        string
	ClassroomID string
	Send        chan []byte

	// Guarded by the hub's mutex.
	channels map[string]bool
}

// Hub fans messages out to channel subscribers. Channels are named strings
// ("session_<id>", "teacher_<id>", "user_<id>"); connections come and go,
// channels exist while they have subscribers. Sends are best-effort: a
// subscriber with a full buffer misses the message.
type Hub struct {
	mu       sync.RWMutex
	conns    map[string]*Connection
	channels map[string]map[string]*Connection
}

func NewHub() *Hub {
	return &Hub{
		conns:    make(map[string]*Connection),
		channels: make(map[string]map[string]*Connection),
	}
}

// Register adds a connection and auto-subscribes it to its personal
// channels.
func (h *Hub) Register(conn *Connection) {
	if conn.ID == "" {
		conn.ID = uuid.NewString()
	}
	conn.channels = make(map[string]bool)

	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()

	h.Join(conn, userChannel(conn.UserID))
	if conn.Role == model.RoleTeacher {
		h.Join(conn, teacherChannel(conn.UserID))
	}
	log.Printf("ws: %s %s connected (%s)", conn.Role, conn.UserID, conn.ID)
}

// Unregister removes a connection from every channel and closes its send
// queue. Safe to call once per connection.
func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return
	}
	delete(h.conns, conn.ID)
	for channel := range conn.channels {
		h.leaveLocked(conn, channel)
	}
	close(conn.Send)
	log.Printf("ws: %s %s disconnected (%s)", conn.Role, conn.UserID, conn.ID)
}

// Join subscribes a connection to a channel.
func (h *Hub) Join(conn *Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[conn.ID]; !ok {
		return
	}
	subs, ok := h.channels[channel]
	if !ok {
		subs = make(map[string]*Connection)
		h.channels[channel] = subs
	}
	subs[conn.ID] = conn
	conn.channels[channel] = true
}

// Leave unsubscribes a connection from a channel.
func (h *Hub) Leave(conn *Connection, channel string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(conn, channel)
}

func (h *Hub) leaveLocked(conn *Connection, channel string) {
	delete(conn.channels, channel)
	if subs, ok := h.channels[channel]; ok {
		delete(subs, conn.ID)
		if len(subs) == 0 {
			delete(h.channels, channel)
		}
	}
}

// SessionSubscribers reports how many connections a session channel has.
func (h *Hub) SessionSubscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[sessionChannel(sessionID)])
}

// Publish sends an event to every subscriber of a channel.
func (h *Hub) Publish(channel, event string, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		log.Printf("ws: encode %s: %v", event, err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conn := range h.channels[channel] {
		select {
		case conn.Send <- data:
		default:
			// Slow subscriber, drop.
		}
	}
}

// ToSession implements service.Broadcaster.
func (h *Hub) ToSession(sessionID, event string, payload interface{}) {
	h.Publish(sessionChannel(sessionID), event, payload)
}

// ToUser implements service.Broadcaster.
func (h *Hub) ToUser(userID, event string, payload interface{}) {
	h.Publish(userChannel(userID), event, payload)
}

// ToTeacher implements service.Broadcaster.
func (h *Hub) ToTeacher(teacherID, event string, payload interface{}) {
	h.Publish(teacherChannel(teacherID), event, payload)
}

// CloseSession drops every subscription to a session channel. Connections
// stay open on their other channels.
func (h *Hub) CloseSession(sessionID string) {
	channel := sessionChannel(sessionID)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, conn := range h.channels[channel] {
		delete(conn.channels, channel)
	}
	delete(h.channels, channel)
}

// SendTo delivers a message to one connection, best-effort.
func (h *Hub) SendTo(conn *Connection, event string, payload interface{}) {
	data, err := encode(event, payload)
	if err != nil {
		log.Printf("ws: encode %s: %v", event, err)
		return
	}
	select {
	case conn.Send <- data:
	default:
	}
}

func encode(event string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Message{Type: event, Payload: raw})
}

func sessionChannel(sessionID string) string { return "session_" + sessionID }
func teacherChannel(teacherID string) string { return "teacher_" + teacherID }
func userChannel(userID string) string       { return "user_" + userID }
