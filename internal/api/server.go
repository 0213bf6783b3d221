// Package api serves the chat REST surface, health and metrics, and mounts the websocket endpoint.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"bankchat/internal/auth"
	"bankchat/internal/metrics"
	"bankchat/internal/session"
	"bankchat/pkg/interfaces"
	"bankchat/pkg/types"
)

// Hub is the slice of the coordinator the HTTP layer reads and notifies
type Hub interface {
	IsOnline(identityID int64) bool
	ConnectedUsers() int
	ActiveRooms() int
	BroadcastSessionUpdate(sessionID int64, payload types.SessionUpdatedPayload) error
}

// ConnectionStats reports transport-level connection counts
type ConnectionStats interface {
	GetStats() map[string]int
}

// Dependencies groups everything the server needs
type Dependencies struct {
	Sessions       *session.Manager
	Hub            Hub
	Connections    ConnectionStats
	Provider       interfaces.IdentityProvider
	WebSocket      http.Handler
	AllowedOrigins []string
}

// Server routes HTTP requests. It holds no chat state of its own.
type Server struct {
	sessions    *session.Manager
	hub         Hub
	connections ConnectionStats
	provider    interfaces.IdentityProvider
	router      chi.Router
}

func NewServer(deps Dependencies) *Server {
	s := &Server{
		sessions:    deps.Sessions,
		hub:         deps.Hub,
		connections: deps.Connections,
		provider:    deps.Provider,
		router:      chi.NewRouter(),
	}
	s.setupRoutes(deps.WebSocket, deps.AllowedOrigins)
	return s
}

func (s *Server) setupRoutes(ws http.Handler, allowedOrigins []string) {
	r := s.router

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(corsOptions(allowedOrigins)))

	r.Get("/health", s.healthCheck)
	r.Handle("/metrics", metrics.Handler())
	if ws != nil {
		r.Handle("/ws", ws)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.provider, unauthorized))

		r.Route("/api/chat", func(r chi.Router) {
			r.Get("/sessions", s.listSessions)
			r.Post("/sessions", s.createSession)
			r.Get("/sessions/{id}", s.getSession)
			r.Get("/sessions/{id}/messages", s.listMessages)
			r.Get("/agents", s.listAgents)
		})
		r.Patch("/api/admin/chat/sessions/{id}", s.updateSession)
		r.Get("/api/presence/{userID}", s.presence)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func corsOptions(allowed []string) cors.Options {
	if len(allowed) == 0 {
		allowed = []string{"https://*", "http://*"}
	}
	return cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// requestID tags each request with X-Request-Id, generating a UUID when the client sent none.
// The id is stored under chi's key so middleware.Logger prints it.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(middleware.RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(middleware.RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	Status      string         `json:"status"`
	Timestamp   time.Time      `json:"timestamp"`
	Database    string         `json:"database"`
	Users       int            `json:"connectedUsers"`
	Rooms       int            `json:"activeRooms"`
	Connections map[string]int `json:"connections"`
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  "healthy",
		Users:     s.hub.ConnectedUsers(),
		Rooms:     s.hub.ActiveRooms(),
	}
	if s.connections != nil {
		resp.Connections = s.connections.GetStats()
	}

	status := http.StatusOK
	if err := s.sessions.HealthCheck(ctx); err != nil {
		resp.Status = "unhealthy"
		resp.Database = "error: " + err.Error()
		status = http.StatusServiceUnavailable
	}
	JSON(w, status, resp)
}
