package replay

import (
	"errors"
	"fmt"

	"volley-duel/internal/game"
)

// ErrDesync is matched by a DesyncError.
var ErrDesync = errors.New("replay: simulation diverged from recording")

// DesyncError reports the first save point re-simulation did not reproduce.
type DesyncError struct {
	Step uint32
	Want uint64
	Got  uint64
}

func (e *DesyncError) Error() string {
	return fmt.Sprintf("replay: desync at step %d: fingerprint %016x, want %016x", e.Step, e.Got, e.Want)
}

func (e *DesyncError) Is(target error) bool { return target == ErrDesync }

// Player re-simulates a Replay. It is single threaded and never shared with
// a live match.
type Player struct {
	replay *Replay
	match  *game.DuelMatch
	pos    int
	events []game.MatchEvent
}

// NewPlayer prepares playback from step 0. A nil rules value rebuilds the
// rule engine recorded in the replay.
func NewPlayer(r *Replay, rl game.Rules) *Player {
	rs := r.Ruleset()
	if rl == nil {
		rl = r.NewRules()
	}
	p := &Player{
		replay: r,
		match:  game.NewDuelMatch(rl, game.MatchOptions{Logic: rs.LogicConfig()}),
	}
	p.rewind()
	return p
}

func (p *Player) rewind() {
	p.pos = 0
	p.events = nil
	if len(p.replay.SavePoints) > 0 {
		p.match.SetState(p.replay.SavePoints[0].State)
	}
}

// Step plays one recorded step. It returns false at the end of the replay.
func (p *Player) Step() bool {
	if p.pos >= p.replay.Steps() {
		return false
	}
	left, right := p.replay.Input(p.pos)
	p.match.Step(left, right)
	p.events = p.match.FetchEvents()
	p.pos++
	return true
}

// Seek moves playback to step t: the closest save point at or before t is
// restored and the remaining inputs are re-simulated. t is clamped to the
// replay.
func (p *Player) Seek(t int) {
	if t < 0 {
		t = 0
	}
	if t > p.replay.Steps() {
		t = p.replay.Steps()
	}
	sps := p.replay.SavePoints
	if len(sps) == 0 {
		p.rewind()
	} else {
		period := int(p.replay.Period)
		if period <= 0 {
			period = SavePointPeriod
		}
		idx := t / period
		if idx >= len(sps) {
			idx = len(sps) - 1
		}
		for idx > 0 && int(sps[idx].Step) > t {
			idx--
		}
		for idx+1 < len(sps) && int(sps[idx+1].Step) <= t {
			idx++
		}
		p.match.SetState(sps[idx].State)
		p.pos = int(sps[idx].Step)
		p.events = nil
	}
	for p.pos < t {
		p.Step()
	}
}

// Position is the number of steps played.
func (p *Player) Position() int { return p.pos }

// Length is the number of recorded steps.
func (p *Player) Length() int { return p.replay.Steps() }

// Done reports whether every step has been played.
func (p *Player) Done() bool { return p.pos >= p.replay.Steps() }

// State returns the current match state.
func (p *Player) State() game.DuelMatchState { return p.match.State() }

// Events returns the events of the last played step.
func (p *Player) Events() []game.MatchEvent { return p.events }

// Replay returns the replay being played.
func (p *Player) Replay() *Replay { return p.replay }

// Verify re-simulates the whole replay from its first save point and checks
// that every later save point is reproduced bit for bit.
func Verify(r *Replay, rl game.Rules) error {
	if len(r.SavePoints) == 0 {
		if r.Steps() == 0 {
			return nil
		}
		return fmt.Errorf("%w: no save points", ErrCorrupt)
	}
	p := NewPlayer(r, rl)
	for _, sp := range r.SavePoints[1:] {
		for p.pos < int(sp.Step) {
			p.Step()
		}
		want := sp.State.Fingerprint()
		if got := p.State().Fingerprint(); got != want {
			return &DesyncError{Step: sp.Step, Want: want, Got: got}
		}
	}
	return nil
}
