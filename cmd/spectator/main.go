// =============================================================================
// VOLLEY DUEL - SPECTATOR
// =============================================================================
// This standalone process watches one match over the IPC socket:
// - Joins the match as a spectator (or as a player view with SPECTATOR_SIDE)
// - Renders received states to numbered PNG frames
//
// USAGE:
//   1. Start the match server first: go run ./cmd/server
//   2. Create a match via POST /api/matches and note its id
//   3. MATCH_ID=<id> go run ./cmd/spectator
// =============================================================================
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"volley-duel/internal/config"
	"volley-duel/internal/game"
	"volley-duel/internal/ipc"
	"volley-duel/internal/render"

	"github.com/joho/godotenv"
)

func main() {
	// Load environment
	if err := godotenv.Load("../.env"); err != nil {
		if err := godotenv.Load(".env"); err != nil {
			log.Println("No .env file found, using environment variables")
		}
	}

	log.Println("================================")
	log.Println("  VOLLEY DUEL - SPECTATOR")
	log.Println("================================")

	appConfig := config.Load()

	matchID := os.Getenv("MATCH_ID")
	if matchID == "" {
		log.Println("ERROR: MATCH_ID not set!")
		log.Println("Create a match with POST /api/matches and set MATCH_ID")
		os.Exit(1)
	}

	socketPath := getEnvWithDefault("IPC_SOCKET_PATH", appConfig.Server.SocketPath)
	outDir := getEnvWithDefault("FRAME_DIR", "frames")
	frameRate := getEnvInt("FRAME_RATE", 10)
	maxFrames := getEnvInt("MAX_FRAMES", 0)

	hello := ipc.HelloMessage{MatchID: matchID, Name: "spectator", Side: game.NoPlayer, Spectator: true}
	if raw := os.Getenv("SPECTATOR_SIDE"); raw != "" {
		side, ok := game.ParseSide(raw)
		if !ok || side == game.NoPlayer {
			log.Fatalf("Invalid SPECTATOR_SIDE %q", raw)
		}
		hello.Side = side
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		log.Fatalf("Failed to create frame directory: %v", err)
	}

	log.Printf("IPC Socket: %s", socketPath)
	log.Printf("Match: %s", matchID)
	log.Printf("Frames: %s @ %d FPS (%dx%d)", outDir, frameRate, appConfig.Render.Width, appConfig.Render.Height)

	renderer := render.New(render.Config{
		Width:    appConfig.Render.Width,
		Height:   appConfig.Render.Height,
		FontPath: appConfig.Render.FontPath,
	})

	subscriber := ipc.NewSubscriber(socketPath, hello)
	var connected atomic.Bool
	subscriber.OnConnect(func() {
		log.Println("Connected to match server")
		connected.Store(true)
	})
	subscriber.OnDisconnect(func() {
		log.Println("Disconnected from match server")
		connected.Store(false)
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	stop := func() {
		select {
		case quit <- syscall.SIGTERM:
		default:
		}
	}
	subscriber.OnRejected(func(reason string) {
		log.Printf("ERROR: server rejected spectator: %s", reason)
		stop()
	})

	if err := subscriber.Start(); err != nil {
		log.Fatalf("Failed to start IPC subscriber: %v", err)
	}

	names := [2]string{
		getEnvWithDefault("LEFT_NAME", game.LeftPlayer.String()),
		getEnvWithDefault("RIGHT_NAME", game.RightPlayer.String()),
	}

	ticker := time.NewTicker(time.Second / time.Duration(max(frameRate, 1)))
	defer ticker.Stop()

	written := 0
	var lastSeq uint32
	for {
		select {
		case <-quit:
			subscriber.Stop()
			received, reconnects, errs := subscriber.GetStats()
			log.Printf("IPC: states=%d, reconnects=%d, errors=%d, frames=%d", received, reconnects, errs, written)
			log.Println("Spectator stopped!")
			return

		case <-ticker.C:
			latest := subscriber.Latest()
			if latest == nil || latest.Sequence == lastSeq {
				continue
			}
			lastSeq = latest.Sequence

			path := filepath.Join(outDir, fmt.Sprintf("frame_%06d.png", written))
			frame := render.Frame{State: latest.State, Names: names, Paused: latest.Paused}
			// Spectator states arrive unmirrored; draw the right player's view here.
			if hello.Side == game.RightPlayer {
				frame.State = frame.State.SwapSides()
				frame.Names[0], frame.Names[1] = frame.Names[1], frame.Names[0]
			}
			if err := renderer.SavePNG(path, frame); err != nil {
				log.Printf("WARNING: frame %d: %v", written, err)
				continue
			}
			written++

			if written%100 == 0 {
				log.Printf("Frames written: %d (step %d, connected=%v)", written, latest.Step, connected.Load())
			}
			if maxFrames > 0 && written >= maxFrames {
				log.Printf("Reached MAX_FRAMES=%d", maxFrames)
				stop()
			}
		}
	}
}

func getEnvWithDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
