package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"volley-duel/internal/game"
	"volley-duel/internal/match"
	"volley-duel/internal/render"
	"volley-duel/internal/replay"
)

// DefaultEventCount is how many journal entries /events returns without ?n=.
const DefaultEventCount = 50

// MaxEventCount caps ?n= on /events.
const MaxEventCount = 1000

// StateResponse is the JSON snapshot of one match.
type StateResponse struct {
	ID       string              `json:"id"`
	Sequence uint64              `json:"seq"`
	Step     uint64              `json:"step"`
	Paused   bool                `json:"paused"`
	Winner   game.PlayerSide     `json:"winner"`
	State    game.DuelMatchState `json:"state"`
	Events   []game.MatchEvent   `json:"events"`
}

// InputRequest is the body of POST /input.
type InputRequest struct {
	Side  *game.PlayerSide `json:"side"`
	Left  bool             `json:"left"`
	Right bool             `json:"right"`
	Up    bool             `json:"up"`
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]interface{}{
		"status":  "ok",
		"matches": h.matches.Count(),
	})
}

func (h *routerHandlers) handleListMatches(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.matches.List())
}

func (h *routerHandlers) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	var opts match.CreateOptions
	if err := json.NewDecoder(r.Body).Decode(&opts); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if opts.Server != game.LeftPlayer && opts.Server != game.RightPlayer {
		writeError(w, "server must be left or right", http.StatusBadRequest)
		return
	}

	handle, err := h.matches.Create(opts)
	if err != nil {
		if errors.Is(err, match.ErrTooManyMatches) {
			writeError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	worker, err := handle.Worker()
	if err != nil {
		writeMatchError(w, err)
		return
	}

	log.Printf("🆕 Match %s created via API (%s vs %s)", handle.ID, opts.Names[0], opts.Names[1])
	w.Header().Set("Location", "/api/matches/"+handle.ID)
	writeJSONStatus(w, worker.Info(), http.StatusCreated)
}

// worker resolves {id} or writes the error response.
func (h *routerHandlers) worker(w http.ResponseWriter, r *http.Request) (*match.Worker, bool) {
	worker, err := h.matches.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeMatchError(w, err)
		return nil, false
	}
	return worker, true
}

func (h *routerHandlers) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	worker, ok := h.worker(w, r)
	if !ok {
		return
	}
	writeJSON(w, worker.Info())
}

func (h *routerHandlers) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.matches.Remove(id); err != nil {
		writeMatchError(w, err)
		return
	}
	log.Printf("🗑️ Match %s removed via API", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *routerHandlers) handleGetState(w http.ResponseWriter, r *http.Request) {
	worker, ok := h.worker(w, r)
	if !ok {
		return
	}
	snap := worker.Snapshot()
	events := snap.Events
	if events == nil {
		events = []game.MatchEvent{}
	}
	writeJSON(w, StateResponse{
		ID:       worker.ID(),
		Sequence: snap.Sequence,
		Step:     snap.Step,
		Paused:   snap.Paused,
		Winner:   snap.Winner,
		State:    snap.State,
		Events:   events,
	})
}

// viewerSwap reads ?side=; the right player sees a mirrored field.
func viewerSwap(r *http.Request) (bool, error) {
	raw := r.URL.Query().Get("side")
	if raw == "" || raw == "spectator" {
		return false, nil
	}
	side, ok := game.ParseSide(raw)
	if !ok {
		return false, fmt.Errorf("invalid side %q", raw)
	}
	return side == game.RightPlayer, nil
}

func (h *routerHandlers) handleGetWire(w http.ResponseWriter, r *http.Request) {
	swap, err := viewerSwap(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	worker, ok := h.worker(w, r)
	if !ok {
		return
	}
	snap := worker.Snapshot()
	data := game.EncodeWire(snap.State, swap)

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("X-Match-Step", strconv.FormatUint(snap.Step, 10))
	w.Header().Set("X-Match-Sequence", strconv.FormatUint(snap.Sequence, 10))
	w.Write(data)
}

func (h *routerHandlers) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	n := DefaultEventCount
	if raw := r.URL.Query().Get("n"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = min(parsed, MaxEventCount)
	}
	worker, ok := h.worker(w, r)
	if !ok {
		return
	}
	entries := worker.RecentEvents(n)
	if entries == nil {
		entries = []match.JournalEntry{}
	}
	writeJSON(w, entries)
}

func (h *routerHandlers) handleGetFrame(w http.ResponseWriter, r *http.Request) {
	swap, err := viewerSwap(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	worker, ok := h.worker(w, r)
	if !ok {
		return
	}
	snap := worker.Snapshot()
	frame := render.Frame{
		State:  snap.State,
		Names:  worker.Names(),
		Colors: worker.Colors(),
		Paused: snap.Paused,
	}
	if swap {
		frame.State = frame.State.SwapSides()
		frame.Names[0], frame.Names[1] = frame.Names[1], frame.Names[0]
		frame.Colors[0], frame.Colors[1] = frame.Colors[1], frame.Colors[0]
	}

	start := time.Now()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	if err := h.renderer.EncodePNG(w, frame); err != nil {
		log.Printf("⚠️ Frame render for %s failed: %v", worker.ID(), err)
		return
	}
	RecordRender(time.Since(start))
}

func (h *routerHandlers) handleGetReplay(w http.ResponseWriter, r *http.Request) {
	worker, ok := h.worker(w, r)
	if !ok {
		return
	}
	rep := worker.Replay()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s%s"`, worker.ID(), replay.FileExtension))
	if err := rep.Save(w); err != nil {
		log.Printf("⚠️ Replay download for %s failed: %v", worker.ID(), err)
	}
}

func (h *routerHandlers) handleSubmitInput(w http.ResponseWriter, r *http.Request) {
	var req InputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}
	if req.Side == nil {
		writeError(w, "side is required", http.StatusBadRequest)
		return
	}

	handle := h.matches.Handle(chi.URLParam(r, "id"))
	in := game.PlayerInput{Left: req.Left, Right: req.Right, Up: req.Up}
	if err := handle.SubmitInput(*req.Side, in); err != nil {
		writeMatchError(w, err)
		return
	}
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handlePause(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.matches.Handle(id).Pause(); err != nil {
		writeMatchError(w, err)
		return
	}
	log.Printf("⏸️ Match %s pause requested via API", id)
	writeJSON(w, map[string]bool{"success": true})
}

func (h *routerHandlers) handleResume(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.matches.Handle(id).Resume(); err != nil {
		writeMatchError(w, err)
		return
	}
	log.Printf("▶️ Match %s resume requested via API", id)
	writeJSON(w, map[string]bool{"success": true})
}

// writeMatchError maps match errors to status codes.
func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, match.ErrMatchNotFound):
		writeError(w, "match not found", http.StatusNotFound)
	case errors.Is(err, match.ErrInvalidSide):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, match.ErrInputRateLimited):
		w.Header().Set("Retry-After", "1")
		writeError(w, err.Error(), http.StatusTooManyRequests)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	writeJSONStatus(w, data, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, data interface{}, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
