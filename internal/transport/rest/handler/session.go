package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"engageai/internal/service"
	"engageai/internal/transport/rest/middleware"
)

// SessionHandler handles the session lifecycle endpoints.
type SessionHandler struct {
	sessions *service.SessionService
}

func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// StartRequest is the body for POST /api/session/start.
type StartRequest struct {
	ClassroomID string `json:"classroomId"`
	Subject     string `json:"subject"`
	ClassName   string `json:"className"`
	Title       string `json:"title"`
}

// Start handles POST /api/session/start (teacher).
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.StartSession(r.Context(), claims.UserID, service.StartSessionInput{
		ClassroomID: req.ClassroomID,
		Subject:     req.Subject,
		ClassName:   req.ClassName,
		Title:       req.Title,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, session)
}

// JoinByCodeRequest is the body for POST /api/session/join-by-code.
type JoinByCodeRequest struct {
	Code string `json:"code"`
}

// JoinByCode handles POST /api/session/join-by-code (student).
func (h *SessionHandler) JoinByCode(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	var req JoinByCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.JoinByCode(r.Context(), claims.UserID, claims.Name, req.Code)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// JoinRequest is the body for POST /api/session/join.
type JoinRequest struct {
	SessionID string `json:"sessionId"`
}

// Join handles POST /api/session/join (student).
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	var req JoinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.JoinByID(r.Context(), claims.UserID, claims.Name, req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// EndRequest is the body for POST /api/session/end.
type EndRequest struct {
	SessionID string `json:"sessionId"`
}

// End handles POST /api/session/end (teacher).
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	var req EndRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, err := h.sessions.EndSession(r.Context(), claims.UserID, req.SessionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Active handles GET /api/session/active (student): the caller's
// classroom's live session, or null.
func (h *SessionHandler) Active(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	session, err := h.sessions.ActiveForClassroom(r.Context(), claims.ClassroomID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"session": session})
}

// Live handles GET /api/session/live (admin): the fleet view.
func (h *SessionHandler) Live(w http.ResponseWriter, r *http.Request) {
	infos, err := h.sessions.LiveSessions(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": infos})
}

// Get handles GET /api/session/{id}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	id := mux.Vars(r)["id"]

	session, err := h.sessions.GetSession(r.Context(), claims, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}
