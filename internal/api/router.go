// Package api exposes live matches over HTTP and websocket: a chi router for
// match management and snapshots, a msgpack spectator feed, and the
// prometheus/pprof debug server.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"volley-duel/internal/match"
	"volley-duel/internal/render"
)

// MatchRegistry is the part of match.Manager the API uses.
type MatchRegistry interface {
	Create(opts match.CreateOptions) (match.Handle, error)
	Get(id string) (*match.Worker, error)
	Handle(id string) match.Handle
	List() []match.Info
	Count() int
	Remove(id string) error
}

// RouterConfig contains all dependencies needed to construct the HTTP router.
//
// Example usage in tests:
//
//	cfg := api.RouterConfig{
//	    Matches: match.NewManager(match.ManagerConfig{}, nil, match.Hooks{}),
//	    RateLimitConfig: &api.RateLimitConfig{
//	        RequestsPerSecond: 1000, // High limit for tests
//	        Burst:             1000,
//	    },
//	}
//	router := api.NewRouter(cfg)
//	ts := httptest.NewServer(router)
type RouterConfig struct {
	// Matches is the match registry (required)
	Matches MatchRegistry

	// Renderer draws frame.png. If nil, one with the default size is used.
	Renderer *render.Renderer

	// RateLimiter is an optional pre-configured rate limiter.
	// If nil, a new one will be created using RateLimitConfig.
	RateLimiter *IPRateLimiter

	// RateLimitConfig is only used if RateLimiter is nil. If both are nil,
	// DefaultRateLimitConfig applies.
	RateLimitConfig *RateLimitConfig

	// CORSOrigins lists the allowed browser origins; nil means DefaultOrigins.
	CORSOrigins []string

	// AdminToken guards match creation and deletion when set.
	AdminToken string

	// DisableLogging disables the request logger middleware (useful for benchmarks).
	DisableLogging bool
}

type routerHandlers struct {
	matches  MatchRegistry
	renderer *render.Renderer
}

// NewRouter constructs the HTTP router with all middleware and routes.
//
// It has no side effects beyond the rate limiter's cleanup goroutine when
// none is passed in: no listeners are opened and no matches are started.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	// Rate limiting (BEFORE CORS to reject early and save CPU)
	rateLimiter := cfg.RateLimiter
	if rateLimiter == nil {
		rateLimitCfg := DefaultRateLimitConfig
		if cfg.RateLimitConfig != nil {
			rateLimitCfg = *cfg.RateLimitConfig
		}
		rateLimiter = NewIPRateLimiter(rateLimitCfg)
	}
	r.Use(rateLimiter.Middleware)

	origins := NewOriginPolicy(cfg.CORSOrigins)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins.Patterns(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Match-Step", "X-Match-Sequence"},
		MaxAge:         300,
	}))

	renderer := cfg.Renderer
	if renderer == nil {
		renderer = render.New(render.DefaultConfig())
	}
	h := &routerHandlers{
		matches:  cfg.Matches,
		renderer: renderer,
	}
	admin := NewAdminAuth(cfg.AdminToken, rateLimiter.config.TrustProxy)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.handleHealth)

		r.Route("/matches", func(r chi.Router) {
			r.Get("/", h.handleListMatches)
			r.With(admin.Middleware).Post("/", h.handleCreateMatch)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.handleGetMatch)
				r.With(admin.Middleware).Delete("/", h.handleDeleteMatch)

				// Snapshots
				r.Get("/state", h.handleGetState)
				r.Get("/wire", h.handleGetWire)
				r.Get("/events", h.handleGetEvents)
				r.Get("/frame.png", h.handleGetFrame)
				r.Get("/replay", h.handleGetReplay)

				// Control
				r.Post("/input", h.handleSubmitInput)
				r.Post("/pause", h.handlePause)
				r.Post("/resume", h.handleResume)
			})
		})
	})

	return r
}

// metricsMiddleware records latency per route pattern.
func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		endpoint := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordRequest(r.Method, endpoint, status, time.Since(start))
	})
}
