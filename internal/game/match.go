package game

// MatchOptions configure a new DuelMatch.
type MatchOptions struct {
	Logic  LogicConfig
	Server PlayerSide // who serves first
}

// DefaultMatchOptions returns classic rules with the left side serving.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{Logic: DefaultLogicConfig(), Server: LeftPlayer}
}

// DuelMatch wires the physics World to the rule engine. It is single
// threaded: whoever owns a DuelMatch must be the only caller.
type DuelMatch struct {
	world  *World
	logic  *Logic
	input  [2]PlayerInput
	events []MatchEvent
	paused bool
	steps  uint64
}

// NewDuelMatch creates a match in its initial state.
func NewDuelMatch(rules Rules, opts MatchOptions) *DuelMatch {
	server := opts.Server
	if server != RightPlayer {
		server = LeftPlayer
	}
	return &DuelMatch{
		world: NewWorld(server),
		logic: NewLogic(rules, opts.Logic, server),
	}
}

func (m *DuelMatch) mustInit() {
	if m == nil || m.world == nil || m.logic == nil {
		panic("game: DuelMatch used before NewDuelMatch")
	}
}

// Step simulates one tick. A paused match ignores the call entirely.
//
// Order within a tick: rules transform the inputs, the World integrates and
// reports collisions, each collision passes the rules in order, then the
// per-tick logic runs. Logic events follow the physics events in Events.
func (m *DuelMatch) Step(left, right PlayerInput) {
	m.mustInit()
	if m.paused {
		return
	}
	m.events = m.events[:0]
	m.input = [2]PlayerInput{left, right}

	applied := [2]PlayerInput{
		m.logic.HandleInput(LeftPlayer, left),
		m.logic.HandleInput(RightPlayer, right),
	}
	ls := m.logic.State()
	physics := m.world.Step(applied[LeftPlayer], applied[RightPlayer], ls.IsBallValid, ls.IsGameRunning)

	m.logic.Observe(m.world.State())
	for _, e := range physics {
		m.events = append(m.events, e)
		m.logic.OnEvent(e)
	}
	m.logic.Tick(m.world)
	m.events = append(m.events, m.logic.DrainEvents()...)
	m.steps++
}

// StepFrom pulls one input from each source and steps.
func (m *DuelMatch) StepFrom(left, right InputSource) {
	m.Step(left.Input(), right.Input())
}

// Events returns a copy of the last tick's events; the buffer is kept.
func (m *DuelMatch) Events() []MatchEvent {
	m.mustInit()
	out := make([]MatchEvent, len(m.events))
	copy(out, m.events)
	return out
}

// FetchEvents moves the last tick's events out, leaving the buffer empty.
func (m *DuelMatch) FetchEvents() []MatchEvent {
	m.mustInit()
	out := m.events
	m.events = nil
	return out
}

func (m *DuelMatch) Pause() {
	m.mustInit()
	m.paused = true
}

func (m *DuelMatch) Unpause() {
	m.mustInit()
	m.paused = false
}

func (m *DuelMatch) Paused() bool {
	m.mustInit()
	return m.paused
}

// State returns the full snapshot.
func (m *DuelMatch) State() DuelMatchState {
	m.mustInit()
	return DuelMatchState{
		World:     m.world.State(),
		Logic:     m.logic.State(),
		Input:     m.input,
		ErrorSide: m.logic.ErrorSide(),
	}
}

// SetState replaces the whole match state. The event buffer is cleared; the
// pause flag and the rules are kept.
func (m *DuelMatch) SetState(s DuelMatchState) {
	m.mustInit()
	m.world.SetState(s.World)
	m.logic.SetState(s.Logic, s.ErrorSide)
	m.logic.Observe(s.World)
	m.input = s.Input
	m.events = m.events[:0]
}

// Winner returns the winning side or NoPlayer.
func (m *DuelMatch) Winner() PlayerSide {
	m.mustInit()
	return m.logic.State().WinningPlayer
}

// Rules returns the rules the match was created with.
func (m *DuelMatch) Rules() Rules {
	m.mustInit()
	return m.logic.Rules()
}

// Steps returns how many ticks this instance has simulated.
func (m *DuelMatch) Steps() uint64 {
	m.mustInit()
	return m.steps
}
