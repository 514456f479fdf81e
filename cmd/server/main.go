package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"volley-duel/internal/api"
	"volley-duel/internal/config"
	"volley-duel/internal/game"
	"volley-duel/internal/ipc"
	"volley-duel/internal/match"
	"volley-duel/internal/render"
	"volley-duel/internal/replay"
	"volley-duel/internal/rules"

	"github.com/joho/godotenv"
)

func main() {
	// Load .env file from parent directory
	if err := godotenv.Load("../.env"); err != nil {
		// Try current directory as fallback
		if err := godotenv.Load(".env"); err != nil {
			log.Println("💡 No .env file found, using environment variables only")
		}
	} else {
		log.Println("✅ Loaded environment from ../.env")
	}

	log.Println("🏐 ================================")
	log.Println("🏐  VOLLEY DUEL - MATCH SERVER")
	log.Println("🏐 ================================")

	// Load centralized configuration (SSOT - Single Source of Truth)
	appConfig := config.Load()
	matchCfg := appConfig.Match
	replayCfg := appConfig.Replay
	serverCfg := appConfig.Server
	obsCfg := appConfig.Observability

	ruleset, err := buildRuleset(matchCfg)
	if err != nil {
		log.Fatalf("Invalid match configuration: %v", err)
	}
	log.Printf("📜 Rules: %s", rules.Describe(ruleset))
	log.Printf("🎮 Config: %d TPS, up to %d matches, feed %d FPS", matchCfg.TickRate, serverCfg.MaxMatches, serverCfg.FeedRate)

	if replayCfg.Autosave {
		if err := os.MkdirAll(replayCfg.Dir, 0o755); err != nil {
			log.Printf("⚠️ Replay autosave disabled: %v", err)
			replayCfg.Autosave = false
		} else {
			log.Printf("💾 Replays: %s", replayCfg.Dir)
		}
	}

	// Start event journal
	journal := match.NewEventLog()
	if err := journal.Start(obsCfg.EventLogPath); err != nil {
		log.Printf("⚠️ Event log disabled: %v", err)
	} else if obsCfg.EventLogPath != "" {
		log.Printf("📝 Event log: %s", obsCfg.EventLogPath)
	}

	// Start debug server
	if err := api.StartDebugServer(api.ObservabilityConfig{
		Enabled:       obsCfg.DebugEnabled,
		ListenAddr:    obsCfg.DebugAddr,
		BasicAuthUser: obsCfg.DebugUser,
		BasicAuthPass: obsCfg.DebugPass,
	}); err != nil {
		log.Printf("⚠️ Debug server disabled: %v", err)
	}

	hooks := api.MetricsHooks()
	onSaved := hooks.OnReplaySaved
	hooks.OnReplaySaved = func(path string) {
		onSaved(path)
		if err := verifySaved(path); err != nil {
			log.Printf("⚠️ Saved replay %s does not verify: %v", path, err)
		}
	}

	manager := match.NewManager(match.ManagerConfig{
		MaxMatches:      serverCfg.MaxMatches,
		TickRate:        matchCfg.TickRate,
		InputRate:       matchCfg.InputRate,
		Ruleset:         ruleset,
		RulesKind:       matchCfg.RulesKind,
		ReplayDir:       replayCfg.Dir,
		Autosave:        replayCfg.Autosave,
		SavePointPeriod: replayCfg.SavePointPeriod,
	}, journal, hooks)
	manager.OnCountChange(api.UpdateActiveMatches)

	// Socket server for remote clients
	var publisher *ipc.Publisher
	if serverCfg.SocketPath != "" {
		publisher = ipc.NewPublisher(serverCfg.SocketPath, matchCfg.TickRate, func(id string) (ipc.Match, error) {
			if _, err := manager.Get(id); err != nil {
				return nil, err
			}
			return manager.Handle(id), nil
		})
		if err := publisher.Start(); err != nil {
			log.Printf("⚠️ IPC socket disabled: %v", err)
			publisher = nil
		}
	}

	server := api.NewServer(manager, api.ServerConfig{
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: serverCfg.RequestsPerSecond,
			Burst:             serverCfg.Burst,
			CleanupInterval:   5 * time.Minute,
			TrustProxy:        serverCfg.TrustProxy,
		},
		CORSOrigins: serverCfg.CORSOrigins,
		AdminToken:  serverCfg.AdminToken,
		FeedRate:    serverCfg.FeedRate,
		Renderer:    render.New(render.Config{Width: appConfig.Render.Width, Height: appConfig.Render.Height, FontPath: appConfig.Render.FontPath}),
		Journal:     journal,
	})

	// Start API server in goroutine
	go func() {
		if err := server.Start(serverCfg.Addr()); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Stats logging goroutine
	stopStats := make(chan struct{})
	go func() {
		ticker := time.NewTicker(obsCfg.StatsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stopStats:
				return
			case <-ticker.C:
				js := journal.Stats()
				log.Printf("📊 Matches: %d, ws clients: %d, journal: %d written / %d dropped / %d pending",
					manager.Count(), server.Hub().ClientCount(), js.Written, js.Dropped, js.Pending)
				if publisher != nil {
					peers, sent, inputs := publisher.GetStats()
					log.Printf("📊 IPC: peers=%d, states=%d, inputs=%d", peers, sent, inputs)
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	log.Println("✅ Server ready! Press Ctrl+C to stop.")
	<-quit

	log.Println("🛑 Shutting down...")
	close(stopStats)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("⚠️ HTTP shutdown: %v", err)
	}
	if publisher != nil {
		publisher.Stop()
	}
	manager.Close()
	journal.Stop()
	log.Println("👋 Goodbye!")
}

// buildRuleset loads the configured ruleset and applies the server-side
// overrides.
func buildRuleset(cfg config.MatchConfig) (*rules.Ruleset, error) {
	rs := rules.Resolve(cfg.RulesetPath)
	if cfg.Scoring != "" {
		mode, err := game.ParseScoringMode(cfg.Scoring)
		if err != nil {
			return nil, err
		}
		rs = rs.WithScoring(mode)
	}
	if cfg.ScoreToWin > 0 {
		rs = rs.WithScoreToWin(cfg.ScoreToWin)
	}
	return rs, nil
}

// verifySaved reloads an autosaved replay and re-simulates it with the
// rules it records.
func verifySaved(path string) error {
	rep, err := replay.LoadFile(path)
	if err != nil {
		return err
	}
	return replay.Verify(rep, nil)
}
