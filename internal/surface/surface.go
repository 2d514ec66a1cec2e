// ABOUTME: HTTP registration surface server wiring and shared handler plumbing
// ABOUTME: Owns the route table; handlers live in api.go

package surface

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/cobrachicken/scope-relay/internal/store"
)

// Server is the registration surface: the HTTP JSON API where
// communities, members, connectors and bindings are managed. Relay
// traffic never passes through here.
type Server struct {
	store       store.Store
	logger      *slog.Logger
	metrics     http.Handler // optional; mounted at metricsPath when set
	metricsPath string
}

// Option configures a Server.
type Option func(*Server)

// WithMetricsHandler mounts a metrics handler (promhttp) at the given
// path. An empty path mounts it at /metrics.
func WithMetricsHandler(path string, h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
		s.metricsPath = path
	}
}

// NewServer creates a registration surface over the given store.
func NewServer(st store.Store, opts ...Option) *Server {
	s := &Server{
		store:  st,
		logger: slog.Default().With("component", "surface"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes returns the surface route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /communities", s.handleCreateCommunity)
	mux.HandleFunc("GET /communities/{slug}", s.handleGetCommunity)
	mux.HandleFunc("GET /communities/{slug}/provenance", s.handleListProvenance)
	mux.HandleFunc("POST /members", s.handleRegisterMember)
	mux.HandleFunc("POST /members/verify", s.handleVerifyMember)
	mux.HandleFunc("POST /bindings", s.handleRegisterBinding)
	mux.HandleFunc("POST /connectors", s.handleRegisterConnector)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	if s.metrics != nil {
		path := s.metricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, s.metrics)
	}

	return mux
}

// handleHealth returns 200 OK unconditionally once the process is serving.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
