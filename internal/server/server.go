// Package server exposes the game directory over a small JSON HTTP API that
// browser clients poll.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/lox/blindbid/internal/archive"
	"github.com/lox/blindbid/internal/auction"
	"github.com/lox/blindbid/internal/directory"
)

// ResultStore serves archived results of games no longer in memory.
type ResultStore interface {
	Get(ctx context.Context, gameID string) (auction.Results, error)
	List(ctx context.Context, limit int) ([]archive.Summary, error)
}

// Server is the HTTP front end for a game directory
type Server struct {
	logger      zerolog.Logger
	games       *directory.Directory
	results     ResultStore
	publicURL   string
	corsOrigins []string
	mux         *http.ServeMux

	mu         sync.Mutex
	httpServer *http.Server
	closed     bool
}

// Option configures a Server
type Option func(*Server)

// WithResultStore enables the archived results endpoints.
func WithResultStore(store ResultStore) Option {
	return func(s *Server) { s.results = store }
}

// WithPublicURL sets the base URL players use to reach the web client. It
// is encoded into join QR codes.
func WithPublicURL(url string) Option {
	return func(s *Server) { s.publicURL = url }
}

// WithCORSOrigins restricts which browser origins may call the API.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer creates a new HTTP server for games
func NewServer(logger zerolog.Logger, games *directory.Directory, opts ...Option) *Server {
	s := &Server{
		logger:      logger.With().Str("component", "server").Logger(),
		games:       games,
		corsOrigins: []string{"*"},
		mux:         http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)

	s.mux.HandleFunc("GET /api/templates", s.handleTemplates)
	s.mux.HandleFunc("POST /api/games", s.handleCreateGame)
	s.mux.HandleFunc("GET /api/games/{id}", s.handleGameState)
	s.mux.HandleFunc("POST /api/games/{id}/join", s.handleJoin)
	s.mux.HandleFunc("POST /api/games/{id}/start", s.handleStart)
	s.mux.HandleFunc("POST /api/games/{id}/bid", s.handleBid)
	s.mux.HandleFunc("POST /api/games/{id}/next", s.handleNext)
	s.mux.HandleFunc("GET /api/games/{id}/qr.png", s.handleQRCode)

	s.mux.HandleFunc("GET /api/results", s.handleListResults)
	s.mux.HandleFunc("GET /api/results/{id}", s.handleResults)
}

// Handler returns the API wrapped with CORS and request logging.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type"},
	})
	return c.Handler(s.logRequests(s.mux))
}

// Start listens on addr and serves until Shutdown is called
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on an existing listener
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return http.ErrServerClosed
	}
	s.httpServer = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("HTTP server listening")
	return srv.Serve(ln)
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.closed = true
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info().Msg("HTTP server stopped")
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		// Clients poll game state continuously.
		ev := s.logger.Debug()
		if rec.status >= http.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request")
	})
}
