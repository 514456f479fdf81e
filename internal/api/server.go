package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"volley-duel/internal/match"
	"volley-duel/internal/render"
)

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	RateLimit   RateLimitConfig
	CORSOrigins []string
	AdminToken  string
	FeedRate    int
	Renderer    *render.Renderer

	// Journal, when set, is mirrored into the journal metrics.
	Journal *match.EventLog
}

// Server is the HTTP API server with the websocket feed.
type Server struct {
	matches     MatchRegistry
	router      *chi.Mux
	wsHub       *WebSocketHub
	rateLimiter *IPRateLimiter
	journal     *match.EventLog
	httpServer  *http.Server
	stopStats   chan struct{}
}

// NewServer creates the API server. Nothing listens until Start.
//
// For testing HTTP endpoints without the websocket feed, NewRouter can be
// used directly.
func NewServer(matches MatchRegistry, cfg ServerConfig) *Server {
	s := &Server{
		matches:   matches,
		journal:   cfg.Journal,
		stopStats: make(chan struct{}),
	}
	s.rateLimiter = NewIPRateLimiter(cfg.RateLimit)
	s.wsHub = NewWebSocketHub(matches, HubConfig{
		FeedRate:    cfg.FeedRate,
		CORSOrigins: cfg.CORSOrigins,
		TrustProxy:  cfg.RateLimit.TrustProxy,
	})

	s.router = NewRouter(RouterConfig{
		Matches:     matches,
		Renderer:    cfg.Renderer,
		RateLimiter: s.rateLimiter,
		CORSOrigins: cfg.CORSOrigins,
		AdminToken:  cfg.AdminToken,
	})
	s.setupWebSocketRoutes()

	return s
}

// setupWebSocketRoutes adds the routes that need the hub.
func (s *Server) setupWebSocketRoutes() {
	s.router.Get("/ws/matches/{id}", s.wsHub.HandleMatch)
}

// Start serves HTTP on addr until Shutdown. It returns nil after a clean
// shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if s.journal != nil {
		go s.statsLoop()
	}

	log.Printf("🌐 API server starting on %s", addr)
	log.Printf("🏐 Matches: http://localhost%s/api/matches", addr)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// statsLoop mirrors journal counters into metrics.
func (s *Server) statsLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopStats:
			return
		case <-ticker.C:
			st := s.journal.Stats()
			UpdateJournalStats(st.Written, st.Dropped)
		}
	}
}

// Router returns the HTTP handler for use with httptest.
func (s *Server) Router() http.Handler {
	return s.router
}

// Hub returns the websocket hub.
func (s *Server) Hub() *WebSocketHub {
	return s.wsHub
}

// Shutdown stops accepting requests, disconnects websocket clients and
// stops background workers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.wsHub.Close()
	s.rateLimiter.Stop()
	select {
	case <-s.stopStats:
	default:
		close(s.stopStats)
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
