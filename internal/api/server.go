package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"barscan/internal/logging"
	"barscan/internal/records"
	"barscan/internal/session"
)

const shutdownTimeout = 5 * time.Second

// Session is the session surface the API drives.
type Session interface {
	Snapshot() session.Snapshot
	Start(ctx context.Context) error
	Stop()
	Refresh(ctx context.Context) error
	SelectDevice(deviceID string) error
	Records(ctx context.Context) ([]records.Record, error)
	Remove(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	ExportText(ctx context.Context) (string, error)
}

// Options configures a Server.
type Options struct {
	Bind    string
	Token   string
	Session Session
	Updates *session.UpdateHub
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *slog.Logger
}

// Server is the HTTP control API.
type Server struct {
	bind    string
	session Session
	updates *session.UpdateHub
	logger  *slog.Logger

	router   *mux.Router
	listener net.Listener
	server   *http.Server
}

// New builds a server. It returns nil when no bind address is configured.
func New(opts Options) (*Server, error) {
	bind := strings.TrimSpace(opts.Bind)
	if bind == "" {
		return nil, nil
	}
	if opts.Session == nil {
		return nil, errors.New("api server requires a session")
	}
	s := &Server{
		bind:    bind,
		session: opts.Session,
		updates: opts.Updates,
		logger:  logging.NewComponentLogger(opts.Logger, "api-server"),
	}
	s.router = s.routes(opts.Token, opts.Metrics)
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      maxUpdateWait + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(token string, metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Use(authMiddleware(token))

	r.HandleFunc("/api/session", s.handleSession).Methods(http.MethodGet)
	r.HandleFunc("/api/session/start", s.handleStart).Methods(http.MethodPost)
	r.HandleFunc("/api/session/stop", s.handleStop).Methods(http.MethodPost)
	r.HandleFunc("/api/session/refresh", s.handleRefresh).Methods(http.MethodPost)
	r.HandleFunc("/api/session/device", s.handleSelectDevice).Methods(http.MethodPut)
	r.HandleFunc("/api/devices", s.handleDevices).Methods(http.MethodGet)
	r.HandleFunc("/api/records", s.handleRecords).Methods(http.MethodGet)
	r.HandleFunc("/api/records", s.handleClear).Methods(http.MethodDelete)
	r.HandleFunc("/api/records/{id}", s.handleRemove).Methods(http.MethodDelete)
	r.HandleFunc("/api/export", s.handleExportText).Methods(http.MethodGet)
	r.HandleFunc("/api/export.xlsx", s.handleExportXLSX).Methods(http.MethodGet)
	r.HandleFunc("/api/updates", s.handleUpdates).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics).Methods(http.MethodGet)
	}

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
	})
	return r
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens and serves until ctx ends or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}
