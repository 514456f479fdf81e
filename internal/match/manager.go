package match

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"volley-duel/internal/game"
	"volley-duel/internal/rules"
)

var (
	ErrMatchNotFound  = errors.New("match: not found")
	ErrTooManyMatches = errors.New("match: too many matches")
)

// ManagerConfig holds what every new match inherits.
type ManagerConfig struct {
	MaxMatches int
	TickRate   int
	InputRate  float64
	Ruleset    *rules.Ruleset // nil means rules.Classic()
	RulesKind  string

	ReplayDir       string
	Autosave        bool
	SavePointPeriod int
}

// CreateOptions are the per-match choices of a client.
type CreateOptions struct {
	Names      [2]string       `json:"names"`
	Colors     [2]string       `json:"colors"`
	Server     game.PlayerSide `json:"server"`
	ScoreToWin int             `json:"scoreToWin,omitempty"`
	Scoring    string          `json:"scoring,omitempty"`
}

// Manager is the registry of running matches.
type Manager struct {
	mu      sync.RWMutex
	cfg     ManagerConfig
	workers map[string]*Worker
	journal *EventLog
	hooks   Hooks
	onCount func(n int)
}

// NewManager creates an empty registry. journal may be nil.
func NewManager(cfg ManagerConfig, journal *EventLog, hooks Hooks) *Manager {
	if cfg.MaxMatches <= 0 {
		cfg.MaxMatches = 64
	}
	if cfg.Ruleset == nil {
		cfg.Ruleset = rules.Classic()
	}
	return &Manager{
		cfg:     cfg,
		workers: make(map[string]*Worker),
		journal: journal,
		hooks:   hooks,
	}
}

// OnCountChange registers a callback receiving the number of matches after
// every create and remove.
func (m *Manager) OnCountChange(fn func(n int)) {
	m.mu.Lock()
	m.onCount = fn
	m.mu.Unlock()
}

// Create builds and starts a new match.
func (m *Manager) Create(opts CreateOptions) (Handle, error) {
	rs := m.cfg.Ruleset
	if opts.Scoring != "" {
		mode, err := game.ParseScoringMode(opts.Scoring)
		if err != nil {
			return Handle{}, err
		}
		rs = rs.WithScoring(mode)
	}
	if opts.ScoreToWin < 0 {
		return Handle{}, fmt.Errorf("score to win must be positive, got %d", opts.ScoreToWin)
	}
	rs = rs.WithScoreToWin(opts.ScoreToWin)

	m.mu.Lock()
	if len(m.workers) >= m.cfg.MaxMatches {
		m.mu.Unlock()
		return Handle{}, fmt.Errorf("%w (limit %d)", ErrTooManyMatches, m.cfg.MaxMatches)
	}
	id := uuid.NewString()
	w := NewWorker(WorkerOptions{
		ID:              id,
		Ruleset:         rs,
		Kind:            m.cfg.RulesKind,
		Server:          opts.Server,
		TickRate:        m.cfg.TickRate,
		InputRate:       m.cfg.InputRate,
		Names:           opts.Names,
		Colors:          opts.Colors,
		SavePointPeriod: m.cfg.SavePointPeriod,
		ReplayDir:       m.cfg.ReplayDir,
		Autosave:        m.cfg.Autosave,
		Journal:         m.journal,
		Hooks:           m.hooks,
	})
	m.workers[id] = w
	count, onCount := len(m.workers), m.onCount
	m.mu.Unlock()

	w.Start()
	if onCount != nil {
		onCount(count)
	}
	return Handle{ID: id, Manager: m}, nil
}

// Get returns the worker of a running match.
func (m *Manager) Get(id string) (*Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workers[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	return w, nil
}

// Handle returns a weak reference to a match; it does not check that the
// match exists.
func (m *Manager) Handle(id string) Handle {
	return Handle{ID: id, Manager: m}
}

// List returns a summary of every match, oldest first.
func (m *Manager) List() []Info {
	m.mu.RLock()
	workers := make([]*Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.RUnlock()

	sort.Slice(workers, func(i, j int) bool {
		if workers[i].Created().Equal(workers[j].Created()) {
			return workers[i].ID() < workers[j].ID()
		}
		return workers[i].Created().Before(workers[j].Created())
	})
	out := make([]Info, len(workers))
	for i, w := range workers {
		out[i] = w.Info()
	}
	return out
}

// Count returns the number of matches.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.workers)
}

// Remove stops a match and forgets it. Handles to it fail from now on.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	w, ok := m.workers[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	delete(m.workers, id)
	count, onCount := len(m.workers), m.onCount
	m.mu.Unlock()

	w.Close()
	if m.journal != nil {
		m.journal.Forget(id)
	}
	if onCount != nil {
		onCount(count)
	}
	return nil
}

// Close stops every match.
func (m *Manager) Close() {
	m.mu.Lock()
	workers := m.workers
	m.workers = make(map[string]*Worker)
	m.mu.Unlock()

	for _, w := range workers {
		w.Close()
	}
	if len(workers) > 0 {
		log.Printf("🛑 Stopped %d matches", len(workers))
	}
}

// Handle is a non-owning reference to a match. It outlives the match; once
// the match is removed every call returns ErrMatchNotFound.
type Handle struct {
	ID      string
	Manager *Manager
}

// Worker resolves the handle.
func (h Handle) Worker() (*Worker, error) {
	if h.Manager == nil {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, h.ID)
	}
	return h.Manager.Get(h.ID)
}

// Snapshot returns the latest state of the referenced match.
func (h Handle) Snapshot() (MatchSnapshot, error) {
	w, err := h.Worker()
	if err != nil {
		return MatchSnapshot{Winner: game.NoPlayer}, err
	}
	return w.Snapshot(), nil
}

// SubmitInput forwards to the referenced match.
func (h Handle) SubmitInput(side game.PlayerSide, in game.PlayerInput) error {
	return h.push(command{kind: cmdInput, side: side, input: in})
}

// Pause pauses the referenced match.
func (h Handle) Pause() error { return h.push(command{kind: cmdPause}) }

// Resume resumes the referenced match.
func (h Handle) Resume() error { return h.push(command{kind: cmdResume}) }

func (h Handle) push(c command) error {
	w, err := h.Worker()
	if err != nil {
		return err
	}
	if err := w.push(c); err != nil {
		if errors.Is(err, errClosed) {
			return fmt.Errorf("%w: %s", ErrMatchNotFound, h.ID)
		}
		return err
	}
	return nil
}
