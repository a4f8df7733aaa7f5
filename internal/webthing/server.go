package webthing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/pidisplay/internal/compositor"
	"github.com/jmylchreest/pidisplay/internal/properties"
)

// Config configures the WebThing server.
type Config struct {
	// Addr is the listen address, e.g. ":8070".
	Addr            string
	Name            string
	Description     string
	ShutdownTimeout time.Duration
}

// Server is the WebThing HTTP and WebSocket endpoint for one display.
type Server struct {
	registry *properties.Registry
	hub      *properties.Hub
	logger   *slog.Logger

	mu          sync.RWMutex
	name        string
	description string

	addr            string
	shutdownTimeout time.Duration
	httpServer      *http.Server
	baseCtx         context.Context
	cancelBase      context.CancelFunc
}

// New creates a server. The hub must be the Observer of the registry's
// display so WebSocket clients see every change.
func New(cfg Config, registry *properties.Registry, hub *properties.Hub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	baseCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		registry:        registry,
		hub:             hub,
		logger:          logger,
		name:            cfg.Name,
		description:     cfg.Description,
		addr:            cfg.Addr,
		shutdownTimeout: cfg.ShutdownTimeout,
		baseCtx:         baseCtx,
		cancelBase:      cancel,
	}
	s.httpServer = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	// Hijacked WebSocket connections are not tracked by Shutdown.
	s.httpServer.RegisterOnShutdown(cancel)
	return s
}

// SetDescription replaces the thing description served to new requests.
func (s *Server) SetDescription(description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.description = description
}

// Handler returns the HTTP handler serving the thing.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /properties", s.handleGetProperties)
	mux.HandleFunc("GET /properties/{name}", s.handleGetProperty)
	mux.HandleFunc("PUT /properties/{name}", s.handlePutProperty)
	return s.logRequests(mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	serveErr := make(chan error, 1)
	s.logger.Info("webthing server listening", "addr", ln.Addr().String())
	go func() {
		serveErr <- s.httpServer.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		s.cancelBase()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down http server: %w", err)
		}
		s.logger.Info("webthing server stopped")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("failed to serve http: %w", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if isWebSocketUpgrade(r) {
		s.serveWebSocket(w, r)
		return
	}

	s.mu.RLock()
	td := describe(s.name, s.description, r.Host, s.registry.Descriptors())
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, td)
}

func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Values())
}

func (s *Server) handleGetProperty(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	value, err := s.registry.Get(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: value})
}

func (s *Server) handlePutProperty(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, err := s.registry.Describe(name); err != nil {
		s.writeError(w, err)
		return
	}

	var body map[string]any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		s.writeError(w, fmt.Errorf("%w: malformed body: %w", properties.ErrInvalidValue, err))
		return
	}
	value, ok := body[name]
	if !ok {
		s.writeError(w, fmt.Errorf("%w: body must contain %q", properties.ErrInvalidValue, name))
		return
	}

	if err := s.registry.Set(name, value); err != nil {
		s.writeError(w, err)
		return
	}

	current, err := s.registry.Get(name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{name: current})
}

// statusFor maps property and display errors onto HTTP status codes.
func statusFor(err error) int {
	var writeErr *compositor.DisplayWriteError
	switch {
	case errors.Is(err, properties.ErrUnknownProperty):
		return http.StatusNotFound
	case errors.Is(err, properties.ErrReadOnly):
		return http.StatusForbidden
	case errors.Is(err, properties.ErrInvalidValue):
		return http.StatusBadRequest
	case errors.As(err, &writeErr):
		return http.StatusBadGateway
	case errors.Is(err, compositor.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("property request failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func isWebSocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"duration", time.Since(start))
	})
}
