// Package match runs live duels: one goroutine per match stepping a
// game.DuelMatch at a fixed tick rate, with inputs queued from any goroutine
// and read-only snapshots published back.
package match

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"volley-duel/internal/game"
	"volley-duel/internal/replay"
	"volley-duel/internal/rules"
)

const (
	DefaultTickRate = 75
	// DefaultInputRate bounds input submissions per side and second.
	DefaultInputRate = 4 * DefaultTickRate
)

var (
	ErrInvalidSide      = errors.New("match: invalid side")
	ErrInputRateLimited = errors.New("match: input rate limited")
)

// Hooks receive worker measurements. Any field may be nil.
type Hooks struct {
	OnTick        func(d time.Duration)
	OnEvents      func(n int)
	OnReplaySaved func(path string)
	OnFinished    func(id string, winner game.PlayerSide)
}

// WorkerOptions configure a Worker.
type WorkerOptions struct {
	ID      string
	Ruleset *rules.Ruleset // nil means rules.Classic()
	Kind    string         // rules.Kind*; recorded in the replay
	Server  game.PlayerSide

	TickRate  int
	InputRate float64
	Names     [2]string
	Colors    [2]string

	SavePointPeriod int
	ReplayDir       string
	Autosave        bool

	Journal *EventLog
	Hooks   Hooks
}

type commandKind uint8

const (
	cmdInput commandKind = iota
	cmdPause
	cmdResume
)

type command struct {
	kind  commandKind
	side  game.PlayerSide
	input game.PlayerInput
}

// Worker exclusively owns one DuelMatch. Other goroutines talk to it through
// SubmitInput, Pause and Resume, and read it through Snapshot.
type Worker struct {
	id       string
	opts     WorkerOptions
	ruleset  *rules.Ruleset
	created  time.Time
	tickRate int

	// owned by the tick goroutine
	match    *game.DuelMatch
	held     [2]game.PlayerInput
	finished bool

	// guarded by mu
	mu       sync.Mutex
	queue    []command
	limiters [2]*rate.Limiter
	running  bool
	closed   bool
	ticker   *time.Ticker
	stopChan chan struct{}
	done     chan struct{}

	recMu     sync.Mutex
	recorder  *replay.Recorder
	savedPath string

	snapshots *SnapshotPool
}

// NewWorker builds a match in its initial state and publishes the first
// snapshot. The tick loop starts with Start.
func NewWorker(opts WorkerOptions) *Worker {
	rs := opts.Ruleset
	if rs == nil {
		rs = rules.Classic()
	}
	if opts.TickRate <= 0 {
		opts.TickRate = DefaultTickRate
	}
	if opts.InputRate <= 0 {
		opts.InputRate = DefaultInputRate
	}
	if opts.Server != game.RightPlayer {
		opts.Server = game.LeftPlayer
	}
	for i, name := range opts.Names {
		if name == "" {
			opts.Names[i] = game.PlayerSide(i).String()
		}
	}

	w := &Worker{
		id:        opts.ID,
		opts:      opts,
		ruleset:   rs,
		created:   time.Now(),
		tickRate:  opts.TickRate,
		match:     game.NewDuelMatch(rules.New(opts.Kind, rs), game.MatchOptions{Logic: rs.LogicConfig(), Server: opts.Server}),
		snapshots: NewSnapshotPool(),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
	burst := int(opts.InputRate / 4)
	if burst < 1 {
		burst = 1
	}
	for i := range w.limiters {
		w.limiters[i] = rate.NewLimiter(rate.Limit(opts.InputRate), burst)
	}
	w.recorder = replay.NewRecorder(replay.Attributes{
		GameSpeed: opts.TickRate,
		Names:     opts.Names,
		Colors:    opts.Colors,
		RulesKind: opts.Kind,
	}, rs.Text, opts.SavePointPeriod)

	w.publish(nil)
	return w
}

func (w *Worker) mustOpen() {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		panic(fmt.Sprintf("match: worker %s used after Close", w.id))
	}
}

// ID returns the match id.
func (w *Worker) ID() string { return w.id }

// Created returns when the worker was built.
func (w *Worker) Created() time.Time { return w.created }

// Ruleset returns the ruleset the match runs with.
func (w *Worker) Ruleset() *rules.Ruleset { return w.ruleset }

// Names returns the player names, left first.
func (w *Worker) Names() [2]string { return w.opts.Names }

// Colors returns the blob colors, left first. Empty entries mean defaults.
func (w *Worker) Colors() [2]string { return w.opts.Colors }

// Start begins the tick loop
func (w *Worker) Start() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.mustOpen()
	}
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.ticker = time.NewTicker(time.Second / time.Duration(w.tickRate))
	w.mu.Unlock()

	go func() {
		defer close(w.done)
		for {
			select {
			case <-w.ticker.C:
				w.tick()
			case <-w.stopChan:
				return
			}
		}
	}()

	log.Printf("🎮 Match %s started at %d TPS (%s vs %s)", w.id, w.tickRate, w.opts.Names[0], w.opts.Names[1])
}

// Close stops the tick loop and waits for it. Snapshot and Replay keep
// working afterwards; everything else panics.
func (w *Worker) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	running := w.running
	w.running = false
	if w.ticker != nil {
		w.ticker.Stop()
	}
	close(w.stopChan)
	w.mu.Unlock()

	if running {
		<-w.done
	}
	log.Printf("🛑 Match %s stopped", w.id)
}

// SubmitInput queues the held input of one side. It takes effect at the
// start of the next tick and stays held until replaced.
func (w *Worker) SubmitInput(side game.PlayerSide, in game.PlayerInput) error {
	err := w.push(command{kind: cmdInput, side: side, input: in})
	if errors.Is(err, errClosed) {
		w.mustOpen()
	}
	return err
}

// Pause stops the simulation from the next tick on.
func (w *Worker) Pause() {
	if w.push(command{kind: cmdPause}) != nil {
		w.mustOpen()
	}
}

// Resume undoes Pause.
func (w *Worker) Resume() {
	if w.push(command{kind: cmdResume}) != nil {
		w.mustOpen()
	}
}

var errClosed = errors.New("match: worker closed")

// push queues c unless the worker is closed.
func (w *Worker) push(c command) error {
	if c.kind == cmdInput && c.side != game.LeftPlayer && c.side != game.RightPlayer {
		return fmt.Errorf("%w: %v", ErrInvalidSide, c.side)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errClosed
	}
	if c.kind == cmdInput && !w.limiters[c.side].Allow() {
		return ErrInputRateLimited
	}
	w.queue = append(w.queue, c)
	return nil
}

// drain applies queued commands in submission order. Called on the tick
// goroutine only.
func (w *Worker) drain() {
	w.mu.Lock()
	queue := w.queue
	w.queue = nil
	w.mu.Unlock()

	for _, c := range queue {
		switch c.kind {
		case cmdInput:
			w.held[c.side] = c.input
		case cmdPause:
			if !w.match.Paused() {
				w.match.Pause()
				log.Printf("⏸️ Match %s paused", w.id)
			}
		case cmdResume:
			if w.match.Paused() {
				w.match.Unpause()
				log.Printf("▶️ Match %s resumed", w.id)
			}
		}
	}
}

// tick is called at tickRate times per second
func (w *Worker) tick() {
	start := time.Now()
	w.drain()

	var events []game.MatchEvent
	if !w.match.Paused() && !w.finished {
		before := w.match.State()
		w.recMu.Lock()
		w.recorder.Record(before, w.held[game.LeftPlayer], w.held[game.RightPlayer])
		w.recMu.Unlock()

		w.match.Step(w.held[game.LeftPlayer], w.held[game.RightPlayer])
		events = w.match.FetchEvents()

		if w.opts.Journal != nil && len(events) > 0 {
			n := w.opts.Journal.EmitEvents(w.id, w.match.Steps(), w.match.State().Logic.Scores, events)
			if w.opts.Hooks.OnEvents != nil {
				w.opts.Hooks.OnEvents(n)
			}
		}
		if w.match.Winner() != game.NoPlayer {
			w.finish(time.Since(w.created))
		}
	}

	w.publish(events)
	if w.opts.Hooks.OnTick != nil {
		w.opts.Hooks.OnTick(time.Since(start))
	}
}

func (w *Worker) finish(elapsed time.Duration) {
	w.finished = true
	final := w.match.State()
	winner := w.match.Winner()

	w.recMu.Lock()
	w.recorder.Finalize(final, elapsed)
	rp := w.recorder.Replay()
	w.recMu.Unlock()

	log.Printf("🏆 Match %s won by %s (%d:%d) after %d steps",
		w.id, w.opts.Names[winner], final.Logic.Scores[0], final.Logic.Scores[1], w.match.Steps())

	if w.opts.Autosave && w.opts.ReplayDir != "" {
		path := filepath.Join(w.opts.ReplayDir, w.id+replay.FileExtension)
		if err := rp.SaveFile(path); err != nil {
			log.Printf("⚠️ Failed to save replay of match %s: %v", w.id, err)
		} else {
			w.recMu.Lock()
			w.savedPath = path
			w.recMu.Unlock()
			log.Printf("💾 Replay saved to %s", path)
			if w.opts.Hooks.OnReplaySaved != nil {
				w.opts.Hooks.OnReplaySaved(path)
			}
		}
	}
	if w.opts.Hooks.OnFinished != nil {
		w.opts.Hooks.OnFinished(w.id, winner)
	}
}

func (w *Worker) publish(events []game.MatchEvent) {
	snap := w.snapshots.AcquireWrite()
	snap.Step = w.match.Steps()
	snap.State = w.match.State()
	if len(events) > MaxSnapshotEvents {
		events = events[len(events)-MaxSnapshotEvents:]
	}
	snap.Events = append(snap.Events, events...)
	snap.Paused = w.match.Paused()
	snap.Winner = w.match.Winner()
	w.snapshots.PublishWrite()
}

// Snapshot returns the latest published state.
func (w *Worker) Snapshot() MatchSnapshot {
	snap, _ := w.snapshots.AcquireRead()
	return snap
}

// RecentEvents returns up to n journaled events of this match, oldest first.
func (w *Worker) RecentEvents(n int) []JournalEntry {
	if w.opts.Journal == nil {
		return nil
	}
	return w.opts.Journal.Recent(w.id, n)
}

// Replay returns a copy of the recording so far. Once the match is won the
// copy is final.
func (w *Worker) Replay() *replay.Replay {
	w.recMu.Lock()
	defer w.recMu.Unlock()
	return w.recorder.Replay()
}

// SavedReplay returns the path of the autosaved replay, if any.
func (w *Worker) SavedReplay() string {
	w.recMu.Lock()
	defer w.recMu.Unlock()
	return w.savedPath
}

// Info summarizes the match for listings.
type Info struct {
	ID      string          `json:"id"`
	Names   [2]string       `json:"names"`
	Scores  [2]uint32       `json:"scores"`
	Winner  game.PlayerSide `json:"winner"`
	Step    uint64          `json:"step"`
	Paused  bool            `json:"paused"`
	Ruleset string          `json:"ruleset"`
	Created time.Time       `json:"created"`
}

// Info returns the listing summary from the latest snapshot.
func (w *Worker) Info() Info {
	snap := w.Snapshot()
	return Info{
		ID:      w.id,
		Names:   w.opts.Names,
		Scores:  snap.State.Logic.Scores,
		Winner:  snap.Winner,
		Step:    snap.Step,
		Paused:  snap.Paused,
		Ruleset: w.ruleset.Name,
		Created: w.created,
	}
}
