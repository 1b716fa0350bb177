package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"engageai/internal/model"
	"engageai/internal/service"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	clientOpTimeout = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client event names.
const (
	evJoinRoom         = "session:join_room"
	evLeaveRoom        = "session:leave_room"
	evTeacherJoin      = "teacher:join_session"
	evEngagementSubmit = "engagement:submit"
)

// Handler upgrades HTTP requests and dispatches client events to the
// services.
type Handler struct {
	hub         *Hub
	auth        *service.AuthService
	sessions    *service.SessionService
	engagements *service.EngagementService
}

func NewHandler(hub *Hub, auth *service.AuthService, sessions *service.SessionService, engagements *service.EngagementService) *Handler {
	return &Handler{
		hub:         hub,
		auth:        auth,
		sessions:    sessions,
		engagements: engagements,
	}
}

// Serve handles GET /api/ws?token=<jwt>.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := h.auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade: %v", err)
		return
	}

	conn := &Connection{
		UserID:      claims.UserID,
		Role:        claims.Role,
		Name:        claims.Name,
		ClassroomID: claims.ClassroomID,
		Send:        make(chan []byte, 256),
	}
	h.hub.Register(conn)

	go h.writePump(wsConn, conn)
	go h.readPump(wsConn, conn)
}

func (h *Handler) readPump(wsConn *websocket.Conn, conn *Connection) {
	defer func() {
		h.hub.Unregister(conn)
		wsConn.Close()
	}()

	wsConn.SetReadLimit(maxMessageSize)
	wsConn.SetReadDeadline(time.Now().Add(pongWait))
	wsConn.SetPongHandler(func(string) error {
		wsConn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("ws: read: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			h.sendError(conn, "malformed message")
			continue
		}
		h.dispatch(conn, &msg)
	}
}

func (h *Handler) writePump(wsConn *websocket.Conn, conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		wsConn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				wsConn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := wsConn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			wsConn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := wsConn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// dispatch routes one client event. Every handler gets its own bounded
// context; the socket read loop never blocks on a slow store.
func (h *Handler) dispatch(conn *Connection, msg *Message) {
	ctx, cancel := context.WithTimeout(context.Background(), clientOpTimeout)
	defer cancel()

	switch msg.Type {
	case evJoinRoom:
		h.handleJoinRoom(ctx, conn, msg.Payload)
	case evLeaveRoom:
		h.handleLeaveRoom(ctx, conn, msg.Payload)
	case evTeacherJoin:
		h.handleTeacherJoin(ctx, conn, msg.Payload)
	case evEngagementSubmit:
		h.handleEngagementSubmit(ctx, conn, msg.Payload)
	case "flag:no_face", "flag:multiple_faces", "flag:camera_blackout", "flag:long_inactivity":
		h.handleFlag(ctx, conn, msg.Type, msg.Payload)
	default:
		h.sendError(conn, "unknown event: "+msg.Type)
	}
}

type sessionRef struct {
	SessionID string `json:"sessionId"`
}

// handleJoinRoom subscribes a student's connection to a live session
// channel and tells the room.
func (h *Handler) handleJoinRoom(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var ref sessionRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.SessionID == "" {
		h.sendError(conn, "sessionId is required")
		return
	}

	session, err := h.sessions.ValidateActive(ctx, ref.SessionID)
	if err != nil {
		h.sendError(conn, "session is not active")
		return
	}

	h.hub.Join(conn, sessionChannel(session.ID))
	h.hub.Publish(sessionChannel(session.ID), service.EventStudentConnected, map[string]interface{}{
		"sessionId": session.ID,
		"studentId": conn.UserID,
		"name":      conn.Name,
	})
}

// handleLeaveRoom unsubscribes and, for students, marks the roster entry
// inactive.
func (h *Handler) handleLeaveRoom(ctx context.Context, conn *Connection, payload json.RawMessage) {
	var ref sessionRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.SessionID == "" {
		h.sendError(conn, "sessionId is required")
		return
	}

	h.hub.Leave(conn, sessionChannel(ref.SessionID))
	if conn.Role == model.RoleStudent {
		if err := h.sessions.Leave(ctx, ref.SessionID, conn.UserID, conn.Name); err != nil {
			log.Printf("ws: leave session %s: %v", ref.SessionID, err)
		}
	}
}

// handleTeacherJoin subscribes the owning teacher to their session channel.
func (h *Handler) handleTeacherJoin(ctx context.Context, conn *Connection, payload json.RawMessage) {
	if conn.Role != model.RoleTeacher {
		h.sendError(conn, "teachers only")
		return
	}

	var ref sessionRef
	if err := json.Unmarshal(payload, &ref); err != nil || ref.SessionID == "" {
		h.sendError(conn, "sessionId is required")
		return
	}

	session, err := h.sessions.ValidateOwnedActive(ctx, conn.UserID, ref.SessionID)
	if err != nil {
		h.sendError(conn, "session is not active or not yours")
		return
	}

	h.hub.Join(conn, sessionChannel(session.ID))
	h.hub.Publish(sessionChannel(session.ID), service.EventTeacherJoined, map[string]interface{}{
		"sessionId": session.ID,
		"teacherId": conn.UserID,
	})
}

type engagementSubmitPayload struct {
	SessionID       string          `json:"sessionId"`
	EngagementScore float64         `json:"engagementScore"`
	State           string          `json:"state"`
	Confidence      float64         `json:"confidence"`
	Flags           map[string]bool `json:"flags"`
}

// handleEngagementSubmit is the channel-side ingestion path for clients
// that score frames locally.
func (h *Handler) handleEngagementSubmit(ctx context.Context, conn *Connection, payload json.RawMessage) {
	if conn.Role != model.RoleStudent {
		h.sendError(conn, "students only")
		return
	}

	var in engagementSubmitPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		h.sendError(conn, "malformed payload")
		return
	}

	err := h.engagements.SubmitScored(ctx, in.SessionID, conn.UserID, conn.Name, in.EngagementScore, in.State, in.Confidence, in.Flags)
	if err != nil {
		log.Printf("ws: engagement submit for %s: %v", in.SessionID, err)
		h.sendError(conn, "submit failed")
	}
}

type flagPayload struct {
	SessionID string `json:"sessionId"`
	Details   string `json:"details"`
}

var flagDetails = map[model.FlagType]string{
	model.FlagNoFace:         "No face detected in frame.",
	model.FlagMultipleFaces:  "Multiple faces detected in frame.",
	model.FlagCameraBlackout: "Camera feed went dark.",
	model.FlagLongInactivity: "No activity detected for an extended period.",
}

// handleFlag appends a client-reported anti-spoof event and relays it to
// the room.
func (h *Handler) handleFlag(ctx context.Context, conn *Connection, event string, payload json.RawMessage) {
	flagType := model.FlagType(event[len("flag:"):])
	details, ok := flagDetails[flagType]
	if !ok {
		h.sendError(conn, "unknown flag")
		return
	}

	var in flagPayload
	if err := json.Unmarshal(payload, &in); err != nil || in.SessionID == "" {
		h.sendError(conn, "sessionId is required")
		return
	}
	if in.Details != "" {
		details = in.Details
	}

	if err := h.sessions.AppendFlag(ctx, in.SessionID, flagType, conn.UserID, details); err != nil {
		log.Printf("ws: append flag %s: %v", flagType, err)
		h.sendError(conn, "flag failed")
		return
	}

	h.hub.Publish(sessionChannel(in.SessionID), service.EventStudentFlagged, map[string]interface{}{
		"sessionId": in.SessionID,
		"studentId": conn.UserID,
		"name":      conn.Name,
		"flag":      flagType,
		"details":   details,
	})
}

func (h *Handler) sendError(conn *Connection, message string) {
	h.hub.SendTo(conn, service.EventError, map[string]string{"message": message})
}
