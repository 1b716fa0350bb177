package handler

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"engageai/internal/service"
	"engageai/internal/transport/rest/middleware"
)

// AnalyticsHandler exposes the read-side rollups.
type AnalyticsHandler struct {
	analytics *service.AnalyticsService
}

func NewAnalyticsHandler(analytics *service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// Session handles GET /api/analytics/session/{id}.
func (h *AnalyticsHandler) Session(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	id := mux.Vars(r)["id"]

	report, err := h.analytics.SessionAnalytics(r.Context(), claims, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Student handles GET /api/analytics/student/{id}.
func (h *AnalyticsHandler) Student(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	id := mux.Vars(r)["id"]

	report, err := h.analytics.StudentAnalytics(r.Context(), claims, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Class handles GET /api/analytics/class/{id}.
func (h *AnalyticsHandler) Class(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())
	id := mux.Vars(r)["id"]

	report, err := h.analytics.ClassAnalytics(r.Context(), claims, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// TeacherDashboard handles GET /api/analytics/dashboard/teacher.
func (h *AnalyticsHandler) TeacherDashboard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	dashboard, err := h.analytics.TeacherDashboard(r.Context(), claims)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// StudentDashboard handles GET /api/analytics/dashboard/student.
func (h *AnalyticsHandler) StudentDashboard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	dashboard, err := h.analytics.StudentDashboard(r.Context(), claims)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// AdminDashboard handles GET /api/analytics/dashboard/admin.
func (h *AnalyticsHandler) AdminDashboard(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	dashboard, err := h.analytics.AdminDashboard(r.Context(), claims)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}

// History handles GET /api/analytics/history?page=&limit=.
func (h *AnalyticsHandler) History(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFrom(r.Context())

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	result, err := h.analytics.History(r.Context(), claims, page, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
