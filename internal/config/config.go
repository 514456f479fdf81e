// Package config provides centralized configuration management.
// This is the SINGLE SOURCE OF TRUTH for match, server and replay settings.
//
// Every value has a default here and an environment override; there is no
// configuration file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// MATCH CONFIGURATION
// =============================================================================

// MatchConfig holds the settings every new match inherits.
type MatchConfig struct {
	TickRate    int     // Simulation steps per second
	InputRate   float64 // Input submissions per side and second; 0 means 4x tick rate
	ScoreToWin  int     // Overrides the ruleset when > 0
	RulesetPath string  // TOML ruleset; empty means classic rules
	RulesKind   string  // "scripted", "fallback" or "dummy"
	Scoring     string  // "rally" or "side_out"; empty keeps the ruleset's mode
}

// DefaultMatch returns the default match configuration.
func DefaultMatch() MatchConfig {
	return MatchConfig{
		TickRate:   75, // the classic game speed
		ScoreToWin: 15,
		RulesKind:  "scripted",
	}
}

// MatchFromEnv returns match configuration with environment variable overrides.
func MatchFromEnv() MatchConfig {
	cfg := DefaultMatch()

	if tr := getEnvInt("TICK_RATE", 0); tr > 0 {
		cfg.TickRate = tr
	}
	if ir := getEnvFloat("INPUT_RATE", 0); ir > 0 {
		cfg.InputRate = ir
	}
	if s := getEnvInt("SCORE_TO_WIN", 0); s > 0 {
		cfg.ScoreToWin = s
	}
	cfg.RulesetPath = getEnvString("RULESET_PATH", cfg.RulesetPath)
	cfg.RulesKind = getEnvString("RULES_KIND", cfg.RulesKind)
	cfg.Scoring = getEnvString("SCORING_MODE", cfg.Scoring)

	return cfg
}

// =============================================================================
// REPLAY CONFIGURATION
// =============================================================================

// ReplayConfig controls where finished matches are recorded.
type ReplayConfig struct {
	Dir             string
	SavePointPeriod int // Steps between save points; 0 means the replay default
	Autosave        bool
}

// DefaultReplay returns the default replay configuration.
func DefaultReplay() ReplayConfig {
	return ReplayConfig{
		Dir:      "replays",
		Autosave: true,
	}
}

// ReplayFromEnv returns replay configuration with environment variable overrides.
func ReplayFromEnv() ReplayConfig {
	cfg := DefaultReplay()

	cfg.Dir = getEnvString("REPLAY_DIR", cfg.Dir)
	if p := getEnvInt("SAVEPOINT_PERIOD", 0); p > 0 {
		cfg.SavePointPeriod = p
	}
	if os.Getenv("REPLAY_AUTOSAVE") == "false" {
		cfg.Autosave = false
	}

	return cfg
}

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server and socket settings.
type ServerConfig struct {
	Port        int
	MaxMatches  int
	SocketPath  string // ipc socket; empty disables the socket server
	FeedRate    int    // websocket frames per second
	AdminToken  string // guards match creation and deletion
	CORSOrigins []string
	TrustProxy  bool

	RequestsPerSecond float64
	Burst             int
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:              3000,
		MaxMatches:        64,
		SocketPath:        "/tmp/volley-duel.sock",
		FeedRate:          30,
		RequestsPerSecond: 200,
		Burst:             400,
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()

	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	if mm := getEnvInt("MAX_MATCHES", 0); mm > 0 {
		cfg.MaxMatches = mm
	}
	if v, ok := os.LookupEnv("IPC_SOCKET_PATH"); ok {
		cfg.SocketPath = v
	}
	if fr := getEnvInt("FEED_RATE", 0); fr > 0 {
		cfg.FeedRate = fr
	}
	cfg.AdminToken = getEnvString("ADMIN_TOKEN", cfg.AdminToken)
	if origins := getEnvString("CORS_ORIGINS", ""); origins != "" {
		cfg.CORSOrigins = splitList(origins)
	}
	cfg.TrustProxy = os.Getenv("TRUST_PROXY") == "true"
	if rps := getEnvFloat("RATE_LIMIT_RPS", 0); rps > 0 {
		cfg.RequestsPerSecond = rps
	}
	if b := getEnvInt("RATE_LIMIT_BURST", 0); b > 0 {
		cfg.Burst = b
	}

	return cfg
}

// Addr is the listen address of the HTTP server.
func (c ServerConfig) Addr() string {
	return ":" + strconv.Itoa(c.Port)
}

// =============================================================================
// OBSERVABILITY CONFIGURATION
// =============================================================================

// ObservabilityConfig holds debug server and journal settings.
type ObservabilityConfig struct {
	DebugEnabled  bool
	DebugAddr     string // MUST stay on localhost in production
	DebugUser     string
	DebugPass     string
	EventLogPath  string // JSONL match event journal; empty keeps it in memory
	StatsInterval time.Duration
}

// DefaultObservability returns the default observability configuration.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		DebugEnabled:  true,
		DebugAddr:     "127.0.0.1:6060",
		EventLogPath:  "events.jsonl",
		StatsInterval: 30 * time.Second,
	}
}

// ObservabilityFromEnv returns observability configuration with environment
// variable overrides.
func ObservabilityFromEnv() ObservabilityConfig {
	cfg := DefaultObservability()

	if os.Getenv("DISABLE_DEBUG_SERVER") == "true" {
		cfg.DebugEnabled = false
	}
	if port := getEnvInt("DEBUG_PORT", 0); port > 0 {
		cfg.DebugAddr = "127.0.0.1:" + strconv.Itoa(port)
	}
	cfg.DebugUser = getEnvString("DEBUG_USER", cfg.DebugUser)
	cfg.DebugPass = getEnvString("DEBUG_PASS", cfg.DebugPass)
	if v, ok := os.LookupEnv("EVENT_LOG_PATH"); ok {
		cfg.EventLogPath = v
	}
	if s := getEnvInt("STATS_INTERVAL_SECONDS", 0); s > 0 {
		cfg.StatsInterval = time.Duration(s) * time.Second
	}

	return cfg
}

// =============================================================================
// RENDER CONFIGURATION
// =============================================================================

// RenderConfig holds frame rendering settings.
type RenderConfig struct {
	Width    int
	Height   int
	FontPath string // TTF for the HUD; empty searches system fonts
}

// DefaultRender returns the default render configuration.
func DefaultRender() RenderConfig {
	return RenderConfig{
		Width:  800, // one pixel per field unit
		Height: 600,
	}
}

// RenderFromEnv returns render configuration with environment variable overrides.
func RenderFromEnv() RenderConfig {
	cfg := DefaultRender()

	if w := getEnvInt("FRAME_WIDTH", 0); w > 0 {
		cfg.Width = w
	}
	if h := getEnvInt("FRAME_HEIGHT", 0); h > 0 {
		cfg.Height = h
	}
	cfg.FontPath = getEnvString("FONT_PATH", cfg.FontPath)

	return cfg
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Match         MatchConfig
	Replay        ReplayConfig
	Server        ServerConfig
	Observability ObservabilityConfig
	Render        RenderConfig
}

// Load returns the complete configuration with environment overrides.
func Load() AppConfig {
	return AppConfig{
		Match:         MatchFromEnv(),
		Replay:        ReplayFromEnv(),
		Server:        ServerFromEnv(),
		Observability: ObservabilityFromEnv(),
		Render:        RenderFromEnv(),
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
