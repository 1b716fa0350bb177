package rest

import (
	"net/http"
	"os"

	"github.com/gorilla/mux"

	"engageai/internal/model"
	"engageai/internal/service"
	"engageai/internal/transport/rest/handler"
	"engageai/internal/transport/rest/middleware"
	"engageai/internal/transport/ws"
)

// Container holds all dependencies for the router.
type Container struct {
	AuthService       *service.AuthService
	SessionService    *service.SessionService
	EngagementService *service.EngagementService
	AnalyticsService  *service.AnalyticsService
	WSHub             *ws.Hub
	MaxFrameBytes     int64
}

// NewRouter creates the API router with all endpoints.
func NewRouter(c *Container) http.Handler {
	r := mux.NewRouter()

	sessionHandler := handler.NewSessionHandler(c.SessionService)
	engagementHandler := handler.NewEngagementHandler(c.EngagementService, c.MaxFrameBytes)
	analyticsHandler := handler.NewAnalyticsHandler(c.AnalyticsService)
	wsHandler := ws.NewHandler(c.WSHub, c.AuthService, c.SessionService, c.EngagementService)

	authMW := middleware.NewAuthMiddleware(c.AuthService)

	r.Use(corsMiddleware)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	api := r.PathPrefix("/api").Subrouter()

	// WebSocket endpoint authenticates via token query param itself.
	api.HandleFunc("/ws", wsHandler.Serve).Methods("GET")

	authed := api.NewRoute().Subrouter()
	authed.Use(authMW.RequireAuth)

	// Teacher session lifecycle.
	teacher := authed.NewRoute().Subrouter()
	teacher.Use(authMW.RequireRole(model.RoleTeacher))
	teacher.HandleFunc("/session/start", sessionHandler.Start).Methods("POST", "OPTIONS")
	teacher.HandleFunc("/session/end", sessionHandler.End).Methods("POST", "OPTIONS")
	teacher.HandleFunc("/analytics/dashboard/teacher", analyticsHandler.TeacherDashboard).Methods("GET", "OPTIONS")

	// Student session and ingestion.
	student := authed.NewRoute().Subrouter()
	student.Use(authMW.RequireRole(model.RoleStudent))
	student.HandleFunc("/session/join", sessionHandler.Join).Methods("POST", "OPTIONS")
	student.HandleFunc("/session/join-by-code", sessionHandler.JoinByCode).Methods("POST", "OPTIONS")
	student.HandleFunc("/session/active", sessionHandler.Active).Methods("GET", "OPTIONS")
	student.HandleFunc("/engagement/update", engagementHandler.Update).Methods("POST", "OPTIONS")
	student.HandleFunc("/analytics/dashboard/student", analyticsHandler.StudentDashboard).Methods("GET", "OPTIONS")

	// Admin fleet view and dashboard.
	admin := authed.NewRoute().Subrouter()
	admin.Use(authMW.RequireRole(model.RoleAdmin))
	admin.HandleFunc("/session/live", sessionHandler.Live).Methods("GET", "OPTIONS")
	admin.HandleFunc("/analytics/dashboard/admin", analyticsHandler.AdminDashboard).Methods("GET", "OPTIONS")

	// Shared reads: the services enforce per-role visibility.
	authed.HandleFunc("/session/{id}", sessionHandler.Get).Methods("GET", "OPTIONS")
	authed.HandleFunc("/analytics/session/{id}", analyticsHandler.Session).Methods("GET", "OPTIONS")
	authed.HandleFunc("/analytics/student/{id}", analyticsHandler.Student).Methods("GET", "OPTIONS")
	authed.HandleFunc("/analytics/class/{id}", analyticsHandler.Class).Methods("GET", "OPTIONS")
	authed.HandleFunc("/analytics/history", analyticsHandler.History).Methods("GET", "OPTIONS")

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowedOrigins := os.Getenv("CORS_ALLOWED_ORIGINS")
		if allowedOrigins == "" {
			allowedOrigins = "*"
		}

		w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
