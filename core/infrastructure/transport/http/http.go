package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/geoflow/geoflow/core/infrastructure/logging"
	"github.com/geoflow/geoflow/core/infrastructure/transport/http/middleware"
)

const shutdownTimeout = 15 * time.Second

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	port     string
	shutdown context.CancelFunc
}

// RateLimitOptions enables per-IP request limiting
type RateLimitOptions struct {
	Limiter  middleware.RateLimiter
	Prefix   string
	Requests int
	Window   time.Duration
}

// ServerOption configures a Server
type ServerOption func(r *chi.Mux)

// WithRateLimit installs the per-IP limiter on every route
func WithRateLimit(opts RateLimitOptions) ServerOption {
	return func(r *chi.Mux) {
		r.Use(middleware.RateLimitByIP(opts.Limiter, opts.Prefix, opts.Requests, opts.Window))
	}
}

// NewServer creates a new HTTP server
func NewServer(port string, opts ...ServerOption) *Server {
	if port == "" {
		port = "8080"
	}

	r := chi.NewRouter()

	// Add core middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)

	// The dashboard is served from a different origin during development
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Last-Event-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Use(middleware.Metrics)
	r.Use(middleware.OTelMetrics)
	r.Use(middleware.Tracing)

	for _, opt := range opts {
		opt(r)
	}

	return &Server{
		router: r,
		port:   port,
	}
}

// requestLogger logs each request through the tagged logger
func requestLogger(next http.Handler) http.Handler {
	log := logging.New("http")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		log.Debugf("%s %s -> %d (%s)", r.Method, r.URL.Path, ww.Status(), time.Since(start).Round(time.Microsecond))
	})
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Port returns the configured port
func (s *Server) Port() string {
	return s.port
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.StartAsync()
}

// StartAsync binds the port and serves in the background.
// A bind failure is returned to the caller.
func (s *Server) StartAsync() error {
	log := logging.New("http")
	log.Infof("Starting HTTP server on port %s", s.port)

	listener, err := net.Listen("tcp", ":"+s.port)
	if err != nil {
		return fmt.Errorf("listen on port %s: %w", s.port, err)
	}

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disable write timeout for SSE connections
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Successf("HTTP server listening on http://127.0.0.1:%s", s.port)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.PrintError("HTTP server error", err)
		}
	}()

	return nil
}

// Stop stops the HTTP server gracefully
func (s *Server) Stop() error {
	log := logging.New("http")
	log.Infof("Shutting down HTTP server")

	// Ends open event streams so Shutdown does not wait on them
	if s.shutdown != nil {
		s.shutdown()
	}

	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		log.PrintError("Error shutting down HTTP server", err)
		if closeErr := s.server.Close(); closeErr != nil {
			log.Errorf("Error force closing HTTP server: %v", closeErr)
		}
		return err
	}

	log.Infof("HTTP server stopped")
	return nil
}

// SetShutdownFunc sets the shutdown function to be called on stop
func (s *Server) SetShutdownFunc(fn context.CancelFunc) {
	s.shutdown = fn
}
