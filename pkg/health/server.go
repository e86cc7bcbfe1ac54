package health

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/speedrun-hq/shield/pkg/circuitbreaker"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/speedrun-hq/shield/pkg/trader"
)

const shutdownTimeout = 5 * time.Second

// SessionSource exposes the local session of a trader
type SessionSource interface {
	LocalSessionState() trader.Snapshot
	IsActive() bool
}

// StatusResponse is the body of /status. Session data is local bookkeeping, never remote channel state.
type StatusResponse struct {
	Session trader.Snapshot       `json:"session"`
	Broker  *circuitbreaker.State `json:"brokerCircuit,omitempty"`
}

// Server represents a health check HTTP server
type Server struct {
	port          string
	source        SessionSource
	breaker       *circuitbreaker.CircuitBreaker
	metricsAPIKey string
	logger        logger.Logger
}

// NewServer creates a new health check server. breaker may be nil when no broker is configured.
func NewServer(port string, source SessionSource, breaker *circuitbreaker.CircuitBreaker, metricsAPIKey string, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		source:        source,
		breaker:       breaker,
		metricsAPIKey: metricsAPIKey,
		logger:        log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler returns the routes served by the status server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Ready only while intents can be signed
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if !s.source.IsActive() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("Session " + s.source.LocalSessionState().Status.String()))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := StatusResponse{Session: s.source.LocalSessionState()}
		if s.breaker != nil {
			state := s.breaker.State()
			status.Broker = &state
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status); err != nil {
			s.logger.Error("Error encoding status JSON: %v", err)
		}
	})

	// Broker circuit breaker admin control
	mux.HandleFunc("/circuit/reset", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if s.breaker == nil {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte("No broker circuit breaker configured"))
			return
		}

		s.breaker.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Broker circuit breaker reset"))
	})

	// Expose Prometheus metrics with API key authentication
	mux.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return s.routeAdmin(mux)
}

// routeAdmin puts admin paths behind the API key
func (s *Server) routeAdmin(mux *http.ServeMux) http.Handler {
	guarded := s.metricsAuthMiddleware(mux)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/circuit/reset" {
			guarded.ServeHTTP(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting status and metrics server on port %s", s.port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return errors.Wrap(err, "status server stopped")
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "status server shutdown")
		}
		s.logger.Info("Status server stopped")
		return nil
	}
}
