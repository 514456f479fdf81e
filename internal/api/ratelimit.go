package api

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the IP-based rate limiter
type RateLimitConfig struct {
	RequestsPerSecond float64       // Requests allowed per second per IP
	Burst             int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up stale limiters

	// TrustProxy makes GetClientIP honour X-Forwarded-For and X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// DefaultRateLimitConfig leaves room for a player polling state and posting
// input at the tick rate.
var DefaultRateLimitConfig = RateLimitConfig{
	RequestsPerSecond: 200,
	Burst:             400,
	CleanupInterval:   5 * time.Minute,
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter gives every client address its own token bucket. Buckets
// idle for two cleanup intervals are forgotten.
type IPRateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	config   RateLimitConfig
	done     chan struct{}
	stopOnce sync.Once

	allowed  atomic.Uint64
	rejected atomic.Uint64
}

// NewIPRateLimiter creates a rate limiter; zero fields take their defaults.
// Its cleanup goroutine runs until Stop.
func NewIPRateLimiter(cfg RateLimitConfig) *IPRateLimiter {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRateLimitConfig.RequestsPerSecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimitConfig.Burst
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = DefaultRateLimitConfig.CleanupInterval
	}
	rl := &IPRateLimiter{
		visitors: make(map[string]*visitor),
		config:   cfg,
		done:     make(chan struct{}),
	}
	go rl.janitor()
	return rl
}

// Stop ends the cleanup goroutine. The limiter keeps working afterwards.
func (rl *IPRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Allow spends one token from ip's bucket.
func (rl *IPRateLimiter) Allow(ip string) bool {
	now := time.Now()

	rl.mu.Lock()
	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = now
	allowed := v.limiter.AllowN(now, 1)
	rl.mu.Unlock()

	if allowed {
		rl.allowed.Add(1)
	} else {
		rl.rejected.Add(1)
	}
	return allowed
}

func (rl *IPRateLimiter) janitor() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.done:
			return
		case now := <-ticker.C:
			rl.forgetIdle(now.Add(-2 * rl.config.CleanupInterval))
		}
	}
}

func (rl *IPRateLimiter) forgetIdle(cutoff time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(rl.visitors, ip)
		}
	}
}

// Middleware answers 429 once the caller's bucket is empty.
func (rl *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(GetClientIP(r, rl.config.TrustProxy)) {
			RecordRejected("rate_limit")
			w.Header().Set("Retry-After", "1")
			writeError(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetStats returns the allowed and rejected totals.
func (rl *IPRateLimiter) GetStats() map[string]uint64 {
	return map[string]uint64{
		"allowed":  rl.allowed.Load(),
		"rejected": rl.rejected.Load(),
	}
}

// GetClientIP returns the caller's address. X-Forwarded-For (first hop) and
// X-Real-IP are read only with trustProxy; anyone can send them otherwise.
func GetClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// wsSlots caps concurrent feed connections per client address.
type wsSlots struct {
	mu       sync.Mutex
	open     map[string]int
	maxPerIP int
}

func newWSSlots(maxPerIP int) *wsSlots {
	return &wsSlots{open: make(map[string]int), maxPerIP: maxPerIP}
}

// Acquire takes a slot for ip; pair every successful call with Release.
func (s *wsSlots) Acquire(ip string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open[ip] >= s.maxPerIP {
		return false
	}
	s.open[ip]++
	return true
}

func (s *wsSlots) Release(ip string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open[ip] <= 1 {
		delete(s.open, ip)
		return
	}
	s.open[ip]--
}

// DefaultOrigins are the browser origins accepted when none are configured.
var DefaultOrigins = []string{
	"http://localhost:*",
	"http://127.0.0.1:*",
}

// OriginPolicy decides which browser origins may use the API and the
// websocket feed. Patterns are exact origins, optionally ending in ":*" for
// any port, or starting with "*." after the scheme for any subdomain.
type OriginPolicy struct {
	patterns []string
}

// NewOriginPolicy builds a policy; nil patterns mean DefaultOrigins.
func NewOriginPolicy(patterns []string) *OriginPolicy {
	if patterns == nil {
		patterns = DefaultOrigins
	}
	return &OriginPolicy{patterns: patterns}
}

// Patterns returns the configured patterns, in the form go-chi/cors expects.
func (p *OriginPolicy) Patterns() []string { return p.patterns }

// Allowed checks an Origin header. Requests without one come from non-browser
// clients and are allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	for _, pattern := range p.patterns {
		if matchOrigin(pattern, origin) {
			return true
		}
	}
	return false
}

func matchOrigin(pattern, origin string) bool {
	if pattern == "*" || pattern == origin {
		return true
	}
	if prefix, ok := strings.CutSuffix(pattern, ":*"); ok {
		if origin == prefix {
			return true
		}
		rest, found := strings.CutPrefix(origin, prefix+":")
		return found && rest != "" && strings.Trim(rest, "0123456789") == ""
	}
	if scheme, host, ok := strings.Cut(pattern, "://*."); ok {
		rest, found := strings.CutPrefix(origin, scheme+"://")
		return found && strings.HasSuffix(rest, "."+host)
	}
	return false
}
