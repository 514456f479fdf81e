package game

import (
	"fmt"
	"strings"
)

// Rules decide what gated collisions mean. Each hook receives the Logic it
// runs in and acts through Logic's methods; rules keep no state of their own
// that would escape a DuelMatchState snapshot.
type Rules interface {
	Name() string
	HandleInput(l *Logic, side PlayerSide, in PlayerInput) PlayerInput
	OnBallHitsPlayer(l *Logic, side PlayerSide)
	OnBallHitsWall(l *Logic, side PlayerSide)
	OnBallHitsNet(l *Logic, side PlayerSide)
	OnBallHitsGround(l *Logic, side PlayerSide)
	OnGame(l *Logic)
	CheckWin(l *Logic) PlayerSide
}

// DummyRules never score, never end a rally and never declare a winner.
type DummyRules struct{}

func (DummyRules) Name() string { return "dummy" }

func (DummyRules) HandleInput(_ *Logic, _ PlayerSide, in PlayerInput) PlayerInput { return in }

func (DummyRules) OnBallHitsPlayer(*Logic, PlayerSide) {}
func (DummyRules) OnBallHitsWall(*Logic, PlayerSide)   {}
func (DummyRules) OnBallHitsNet(*Logic, PlayerSide)    {}
func (DummyRules) OnBallHitsGround(*Logic, PlayerSide) {}
func (DummyRules) OnGame(*Logic)                       {}
func (DummyRules) CheckWin(*Logic) PlayerSide          { return NoPlayer }

// ScoringMode selects who scores when a side errs.
type ScoringMode uint8

const (
	// RallyPoint awards a point to the opponent of every error.
	RallyPoint ScoringMode = iota
	// SideOut awards a point only when the serving side wins the rally.
	SideOut
)

func (m ScoringMode) String() string {
	if m == SideOut {
		return "side_out"
	}
	return "rally_point"
}

// ParseScoringMode accepts the String forms and a few spellings of them.
func ParseScoringMode(s string) (ScoringMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rally", "rally_point", "rallypoint", "new":
		return RallyPoint, nil
	case "side_out", "sideout", "serve", "old":
		return SideOut, nil
	}
	return RallyPoint, fmt.Errorf("unknown scoring mode %q", s)
}

// FallbackRules are the built-in classic rules: a side errs on its fourth
// consecutive touch or when the ball grounds on its half, the opponent of the
// erring side serves next, and a win needs the target score with a two point
// lead.
type FallbackRules struct {
	Scoring    ScoringMode
	MaxTouches int // 0 means MaxTouches
}

func (r FallbackRules) Name() string { return "fallback" }

func (r FallbackRules) HandleInput(_ *Logic, _ PlayerSide, in PlayerInput) PlayerInput { return in }

func (r FallbackRules) OnBallHitsPlayer(l *Logic, side PlayerSide) {
	limit := r.MaxTouches
	if limit <= 0 {
		limit = MaxTouches
	}
	if l.AddTouch(side) > limit {
		r.Fault(l, side)
	}
}

func (r FallbackRules) OnBallHitsWall(*Logic, PlayerSide) {}

func (r FallbackRules) OnBallHitsNet(*Logic, PlayerSide) {}

func (r FallbackRules) OnBallHitsGround(l *Logic, side PlayerSide) {
	r.Fault(l, side)
}

func (r FallbackRules) OnGame(*Logic) {}

func (r FallbackRules) CheckWin(l *Logic) PlayerSide {
	for _, side := range [2]PlayerSide{LeftPlayer, RightPlayer} {
		if l.IsWinningScore(side) {
			return side
		}
	}
	return NoPlayer
}

// Fault scores the rally against side according to the scoring mode and ends
// it.
func (r FallbackRules) Fault(l *Logic, side PlayerSide) {
	if !l.BallValid() {
		return
	}
	opp := side.Opponent()
	if r.Scoring == RallyPoint || l.ServingPlayer() == opp {
		l.ScorePoint(opp, 1)
	}
	l.Mistake(side)
}
