// Package dashboard serves the query cache over HTTP and pushes cache
// events to websocket subscribers.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sergeknystautas/githistory/internal/config"
	"github.com/sergeknystautas/githistory/internal/logging"
	"github.com/sergeknystautas/githistory/internal/querycache"
)

const (
	readTimeout     = 15 * time.Second
	writeTimeout    = 15 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Server represents the dashboard HTTP server.
type Server struct {
	config     *config.Config
	cache      *querycache.Coordinator
	hub        *Hub
	logger     *log.Logger
	httpServer *http.Server

	// onRegister runs after a workspace is registered over HTTP.
	onRegister func(ws querycache.Workspace)
}

// NewServer creates a new dashboard server. hub may be nil when no event
// feed is wanted.
func NewServer(cfg *config.Config, cache *querycache.Coordinator, hub *Hub, logger *log.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Server{
		config: cfg,
		cache:  cache,
		hub:    hub,
		logger: logger.WithPrefix("dashboard"),
	}
	s.httpServer = &http.Server{
		Addr:         s.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// OnRegister sets a callback run after each workspace registered through
// the API.
func (s *Server) OnRegister(fn func(ws querycache.Workspace)) {
	s.onRegister = fn
}

// Handler returns the routed handler without starting a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/healthz", s.withCORS(s.handleHealthz))
	mux.HandleFunc("/api/workspaces", s.withCORS(s.handleWorkspaces))
	mux.HandleFunc("/api/log", s.withCORS(s.handleLog))
	mux.HandleFunc("/api/log/", s.withCORS(s.handleLogSubpath))
	mux.HandleFunc("/api/branches", s.withCORS(s.handleBranches))

	mux.HandleFunc("/ws/events", s.handleEventsWebSocket)

	return mux
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.config.GetBindAddress(), strconv.Itoa(s.config.GetPort()))
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("listening", "addr", "http://"+s.Addr())

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop stops the HTTP server.
func (s *Server) Stop() error {
	if s.hub != nil {
		s.hub.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// isAllowedOrigin reports whether a browser origin may call the API.
// Only the dashboard's own localhost origins are accepted, unless the
// server is bound to a non-loopback address.
func (s *Server) isAllowedOrigin(origin string) bool {
	if origin == "" {
		return false
	}
	if bind := s.config.GetBindAddress(); bind == "0.0.0.0" || bind == "::" {
		return true
	}
	port := strconv.Itoa(s.config.GetPort())
	return origin == "http://localhost:"+port || origin == "http://127.0.0.1:"+port
}

// withCORS wraps a handler with CORS headers. Requests without an Origin
// header (the CLI, curl) pass through.
func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.isAllowedOrigin(origin) {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		h(w, r)
	}
}
