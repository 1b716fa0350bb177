package handler

import (
	"io"
	"net/http"
	"strings"

	"engageai/internal/service"
	"engageai/internal/transport/rest/middleware"
)

// EngagementHandler handles the frame ingestion endpoint.
type EngagementHandler struct {
	engagements *service.EngagementService
	maxFrame    int64
}

func NewEngagementHandler(engagements *service.EngagementService, maxFrameBytes int64) *EngagementHandler {
	return &EngagementHandler{engagements: engagements, maxFrame: maxFrameBytes}
}

// Update handles POST /api/engagement/update (student): a multipart form
// with a sessionId field and a frame image file.
func (h *EngagementHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, h.maxFrame)
	if err := r.ParseMultipartForm(h.maxFrame); err != nil {
		writeError(w, http.StatusBadRequest, "frame too large or malformed form")
		return
	}

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no frame image uploaded")
		return
	}
	defer file.Close()

	if ct := header.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		writeError(w, http.StatusBadRequest, "frame must be an image")
		return
	}

	frame, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read frame")
		return
	}

	result, err := h.engagements.ProcessFrame(r.Context(), sessionID, claims.UserID, claims.Name, frame)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
