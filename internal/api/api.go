// Package api provides HTTP handlers and the main API server logic for FlowState.
//
// It exposes RESTful endpoints for authentication, task management, focus
// sessions, check-ins, and streak tracking. The API delegates all state
// changes to the flow controller and never touches the stores directly.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/flowstate-coach/flowstate/internal/auth"
	"github.com/flowstate-coach/flowstate/internal/catalog"
	"github.com/flowstate-coach/flowstate/internal/flow"
	"github.com/flowstate-coach/flowstate/internal/store"
	"github.com/flowstate-coach/flowstate/internal/util"
)

// Default configuration constants
const (
	// DefaultAddr is the default API server listen address
	DefaultAddr = ":8080"
	// DefaultSecretLength is the length of the generated signing secret when
	// none is configured
	DefaultSecretLength = 48
)

// Opts holds configuration options for the API server.
type Opts struct {
	// Addr is the listen address for the HTTP server.
	Addr string
	// JWTSecret signs bearer tokens. Generated at startup when empty.
	JWTSecret string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithJWTSecret sets the bearer token signing secret.
func WithJWTSecret(secret string) Option {
	return func(o *Opts) {
		o.JWTSecret = secret
	}
}

// Server wires the controller and identity service behind an HTTP mux.
type Server struct {
	ctrl     *flow.Controller
	identity *auth.Service
	mux      *http.ServeMux
}

// NewServer creates a server and registers all routes.
func NewServer(ctrl *flow.Controller, identity *auth.Service) *Server {
	s := &Server{
		ctrl:     ctrl,
		identity: identity,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/auth/register", s.logRequest(s.registerHandler))
	s.mux.HandleFunc("/auth/login", s.logRequest(s.loginHandler))
	s.mux.HandleFunc("/auth/logout", s.logRequest(s.logoutHandler))
	s.mux.HandleFunc("/auth/me", s.logRequest(s.meHandler))
	s.mux.HandleFunc("/tasks", s.logRequest(s.tasksHandler))
	s.mux.HandleFunc("/tasks/today", s.logRequest(s.tasksTodayHandler))
	s.mux.HandleFunc("/tasks/completed", s.logRequest(s.tasksCompletedHandler))
	s.mux.HandleFunc("/tasks/current", s.logRequest(s.currentTaskHandler))
	s.mux.HandleFunc("/tasks/complete", s.logRequest(s.completeTaskHandler))
	s.mux.HandleFunc("/tasks/delete", s.logRequest(s.deleteTaskHandler))
	s.mux.HandleFunc("/checkin", s.logRequest(s.checkinHandler))
	s.mux.HandleFunc("/interventions/suggested", s.logRequest(s.suggestedInterventionsHandler))
	s.mux.HandleFunc("/sessions", s.logRequest(s.sessionsHandler))
	s.mux.HandleFunc("/sessions/start", s.logRequest(s.startSessionHandler))
	s.mux.HandleFunc("/sessions/end", s.logRequest(s.endSessionHandler))
	s.mux.HandleFunc("/streak", s.logRequest(s.streakHandler))
	s.mux.HandleFunc("/health", s.healthHandler)
}

// Handler returns the server's HTTP handler, primarily for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// logRequest attaches a correlation ID and logs each request.
func (s *Server) logRequest(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID := util.GenerateRequestID()
		slog.Debug("Server: request received", "requestID", requestID, "method", r.Method, "path", r.URL.Path)
		next(w, r)
	}
}

// Run builds the store, identity service, controller, and HTTP server from
// the given options and serves until the process receives SIGINT or SIGTERM.
func Run(storeOpts []store.Option, apiOpts []Option) error {
	var cfg Opts
	for _, opt := range apiOpts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.JWTSecret == "" {
		// Tokens stop verifying across restarts with a generated secret;
		// acceptable for local single-user use.
		cfg.JWTSecret = util.GenerateRandomAlphaNumeric(DefaultSecretLength)
		slog.Warn("Run: no JWT secret configured, generated an ephemeral one")
	}

	backing, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to build store: %w", err)
	}
	defer backing.Close()

	identity := auth.NewService(backing, backing, []byte(cfg.JWTSecret))
	ctrl := flow.NewController(backing, backing, backing, identity, catalog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("failed to start controller: %w", err)
	}
	defer ctrl.Close()

	server := NewServer(ctrl, identity)
	httpServer := &http.Server{Addr: cfg.Addr, Handler: server.Handler()}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("FlowState API running", "addr", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		slog.Info("Run: shutting down", "signal", sig.String())
	}
	return httpServer.Shutdown(context.Background())
}

// buildStore selects a backend from the configured DSN: PostgreSQL for
// postgres DSNs, SQLite for file paths, in-memory when no DSN is set.
func buildStore(opts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("buildStore: no DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	switch store.DetectDSNType(cfg.DSN) {
	case "postgres":
		slog.Info("buildStore: using PostgreSQL store")
		return store.NewPostgresStore(opts...)
	default:
		slog.Info("buildStore: using SQLite store", "path", cfg.DSN)
		return store.NewSQLiteStore(opts...)
	}
}
