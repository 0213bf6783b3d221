package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"bankchat/internal/api"
	"bankchat/internal/auth"
	"bankchat/internal/config"
	"bankchat/internal/database"
	"bankchat/internal/hub"
	"bankchat/internal/router"
	"bankchat/internal/session"
	"bankchat/internal/tracker"
	"bankchat/internal/websocket"
	pkgdatabase "bankchat/pkg/database"
)

// Application coordinates all system components
type Application struct {
	config     *config.Config
	dbManager  *database.Manager
	sessions   *session.Manager
	registry   *websocket.Registry
	chatHub    *hub.Hub
	provider   *auth.Provider
	apiServer  *api.Server
	httpServer *http.Server
	listener   net.Listener
}

// NewApplication builds every component in dependency order:
// Database → Session → Trackers → Registry → Router → Hub → Auth → WebSocket → API → HTTP
func NewApplication(cfg *config.Config) (*Application, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.UsesDevelopmentSecret() {
		log.Println("WARNING: using the built-in development JWT secret; set BANKCHAT_JWT_SECRET in production")
	}

	dbConfig := &pkgdatabase.Config{
		DatabasePath:    cfg.Database.Path,
		MaxConnections:  cfg.Database.MaxConnections,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 10 * time.Minute,
	}
	dbManager, err := database.NewManager(dbConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database manager: %w", err)
	}
	if err := dbManager.Migrate(); err != nil {
		_ = dbManager.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}
	log.Println("Database migrations applied successfully")

	sessions := session.NewManager(dbManager, cfg.Chat.MaxMessageLength)
	trackers := tracker.NewSet()
	registry := websocket.NewRegistry()
	messageRouter := router.NewRouter(trackers.Rooms, registry)
	limiter := router.NewRateLimiter(cfg.Chat.MessagesPerMinute, time.Minute)

	chatHub := hub.NewHub(sessions, trackers, messageRouter, limiter)
	chatHub.SetStoreTimeout(cfg.Database.Timeout)

	provider := NewTokenProvider(cfg)

	wsHandler := websocket.NewHandler(registry, provider, chatHub, websocket.Options{
		BufferSize:   cfg.WebSocket.BufferSize,
		WriteTimeout: cfg.WebSocket.WriteTimeout,
		PingInterval: cfg.WebSocket.PingInterval,
		ReadTimeout:  cfg.WebSocket.ReadTimeout,
	}, cfg.HTTP.AllowedOrigins)

	apiServer := api.NewServer(api.Dependencies{
		Sessions:       sessions,
		Hub:            chatHub,
		Connections:    registry,
		Provider:       provider,
		WebSocket:      wsHandler,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      apiServer,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &Application{
		config:     cfg,
		dbManager:  dbManager,
		sessions:   sessions,
		registry:   registry,
		chatHub:    chatHub,
		provider:   provider,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Start runs the hub, then binds the listener and serves HTTP in the background.
// It returns once the listener is bound.
func (app *Application) Start(ctx context.Context) error {
	if err := app.chatHub.Start(ctx); err != nil {
		return fmt.Errorf("failed to start chat hub: %w", err)
	}

	listener, err := net.Listen("tcp", app.httpServer.Addr)
	if err != nil {
		_ = app.chatHub.Stop()
		return fmt.Errorf("failed to listen on %s: %w", app.httpServer.Addr, err)
	}
	app.listener = listener
	log.Printf("Bankchat listening on %s", listener.Addr())

	go func() {
		if err := app.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	return nil
}

// Stop shuts down in reverse dependency order: HTTP → sockets → Hub → Database
func (app *Application) Stop(ctx context.Context) error {
	log.Printf("Shutting down bankchat")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	if n := app.registry.CloseAll(); n > 0 {
		log.Printf("Closed %d websocket connections", n)
	}

	if err := app.chatHub.Stop(); err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		log.Printf("Chat hub shutdown error: %v", err)
	}

	if err := app.dbManager.Close(); err != nil {
		log.Printf("Database shutdown error: %v", err)
	}

	log.Printf("Bankchat shutdown complete")
	return nil
}

// Addr returns the bound listener address, or the configured address before Start
func (app *Application) Addr() string {
	if app.listener != nil {
		return app.listener.Addr().String()
	}
	return app.httpServer.Addr
}

// Provider returns the token provider bound to the configured secret
func (app *Application) Provider() *auth.Provider {
	return app.provider
}

// NewTokenProvider builds the JWT provider described by cfg.Auth
func NewTokenProvider(cfg *config.Config) *auth.Provider {
	return auth.NewProvider(cfg.Auth.JWTSecret, cfg.Auth.CookieName, cfg.Auth.TokenTTL)
}
