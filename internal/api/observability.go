package api

import (
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"volley-duel/internal/game"
	"volley-duel/internal/match"
)

// Label values stay bounded: no match ids, no client addresses.
var (
	// ----- Simulation -----

	tickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "volley_tick_duration_seconds",
		Help: "Time spent in one match tick",
		// The last bucket is one tick at 75 TPS.
		Buckets: []float64{0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.0133},
	})

	activeMatches = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "volley_active_matches",
		Help: "Matches currently running",
	})

	matchEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volley_match_events_total",
		Help: "Match events produced by all workers",
	})

	matchesFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volley_matches_finished_total",
		Help: "Matches that reached a winner",
	}, []string{"winner"})

	replaysSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "volley_replays_saved_total",
		Help: "Replays written to disk",
	})

	journalEvents = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "volley_journal_events",
		Help: "Journal entries so far, by outcome",
	}, []string{"outcome"}) // "written", "dropped"

	// ----- Surfaces -----

	frameRenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "volley_frame_render_seconds",
		Help:    "Time spent rendering a PNG frame",
		Buckets: []float64{0.001, 0.005, 0.01, 0.02, 0.05, 0.1},
	})

	rejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volley_rejected_total",
		Help: "Requests and connections turned away",
	}, []string{"reason"}) // "rate_limit", "origin", "ws_total_limit", "ws_ip_limit", "auth"

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "volley_http_request_duration_seconds",
		Help:    "HTTP latency by route pattern",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "code"})

	feedClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "volley_feed_clients",
		Help: "Websocket clients watching a match",
	})

	feedFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "volley_feed_frames_total",
		Help: "Websocket feed frames, sent or skipped as unchanged",
	}, []string{"result"}) // "sent", "skipped"
)

// ObservabilityConfig configures the debug server
type ObservabilityConfig struct {
	Enabled       bool
	ListenAddr    string
	BasicAuthUser string // basic auth is off when empty
	BasicAuthPass string
}

// StartDebugServer serves DebugHandler in the background. Non-loopback
// addresses are refused unless ALLOW_DEBUG_EXTERNAL=true.
func StartDebugServer(cfg ObservabilityConfig) error {
	if !cfg.Enabled {
		log.Println("📊 Debug server disabled")
		return nil
	}
	if !isLoopback(cfg.ListenAddr) && os.Getenv("ALLOW_DEBUG_EXTERNAL") != "true" {
		_, port, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			port = "6060"
		}
		log.Printf("⚠️ Debug server moved from %s to loopback", cfg.ListenAddr)
		cfg.ListenAddr = net.JoinHostPort("127.0.0.1", port)
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: DebugHandler(cfg), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("📊 Debug server on http://%s (/metrics, /debug/pprof/)", ln.Addr())
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			log.Printf("⚠️ Debug server error: %v", err)
		}
	}()
	return nil
}

// DebugHandler serves pprof, Prometheus metrics and a health probe.
func DebugHandler(cfg ObservabilityConfig) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	if cfg.BasicAuthUser == "" {
		return mux
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !tokensEqual(u, cfg.BasicAuthUser) || !tokensEqual(p, cfg.BasicAuthPass) {
			w.Header().Set("WWW-Authenticate", `Basic realm="volley-duel debug"`)
			RecordRejected("auth")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		mux.ServeHTTP(w, r)
	})
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// MetricsHooks returns worker hooks that feed the match metrics.
func MetricsHooks() match.Hooks {
	return match.Hooks{
		OnTick: RecordTick,
		OnEvents: func(n int) {
			matchEvents.Add(float64(n))
		},
		OnReplaySaved: func(string) { replaysSaved.Inc() },
		OnFinished: func(_ string, winner game.PlayerSide) {
			matchesFinished.WithLabelValues(winner.String()).Inc()
		},
	}
}

// RecordTick observes one worker tick.
func RecordTick(d time.Duration) { tickDuration.Observe(d.Seconds()) }

// UpdateActiveMatches is meant for Manager.OnCountChange.
func UpdateActiveMatches(count int) { activeMatches.Set(float64(count)) }

// UpdateJournalStats mirrors the journal's cumulative counters.
func UpdateJournalStats(written, dropped uint64) {
	journalEvents.WithLabelValues("written").Set(float64(written))
	journalEvents.WithLabelValues("dropped").Set(float64(dropped))
}

// RecordRender observes one PNG frame render.
func RecordRender(d time.Duration) { frameRenderDuration.Observe(d.Seconds()) }

// RecordRejected counts a request or connection turned away for reason.
func RecordRejected(reason string) { rejected.WithLabelValues(reason).Inc() }

// RecordRequest observes one HTTP request under its route pattern.
func RecordRequest(method, route string, status int, d time.Duration) {
	httpDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// UpdateFeedClients sets the websocket client gauge.
func UpdateFeedClients(count int) { feedClients.Set(float64(count)) }

// RecordFeedFrame counts a feed frame; skipped frames repeated the last one.
func RecordFeedFrame(skipped bool) {
	if skipped {
		feedFrames.WithLabelValues("skipped").Inc()
		return
	}
	feedFrames.WithLabelValues("sent").Inc()
}
