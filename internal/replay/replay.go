// Package replay records matches as input streams with periodic state
// snapshots, stores them in a checksummed container and plays them back
// deterministically.
package replay

import (
	"time"

	"volley-duel/internal/archive"
	"volley-duel/internal/game"
	"volley-duel/internal/rules"
)

// Container version written by this package. Load rejects other majors.
const (
	VersionMajor = 2
	VersionMinor = 1
)

// SavePointPeriod is the default number of steps between periodic snapshots.
const SavePointPeriod = 750

const inputMarker = 0x80

// EncodeInput packs one step as 0x80 | left<<3 | right.
func EncodeInput(left, right game.PlayerInput) byte {
	return inputMarker | left.Bits()<<3 | right.Bits()
}

// DecodeInput is the inverse of EncodeInput.
func DecodeInput(b byte) (left, right game.PlayerInput) {
	return game.InputFromBits(b >> 3 & 7), game.InputFromBits(b & 7)
}

// SavePoint is the full match state before the input at Step is applied.
type SavePoint struct {
	Step  uint32
	State game.DuelMatchState
}

func (sp *SavePoint) Serialize(a archive.Archive) {
	a.Uint32(&sp.Step)
	sp.State.Serialize(a)
}

// Attributes describe a recorded match.
type Attributes struct {
	GameSpeed int       // steps per second
	Length    uint32    // steps
	Duration  uint32    // seconds of wall time
	Date      time.Time // start of the match
	Score     [2]uint32 // final score
	Names     [2]string
	Colors    [2]string // "#rrggbb"
	RulesKind string    // rule engine of the match, see rules.New; empty means scripted
}

// Replay is an immutable recorded match.
type Replay struct {
	Attributes
	Period     uint32 // steps between periodic save points
	Rules      string // ruleset text
	Inputs     []byte
	SavePoints []SavePoint
}

// Steps is the number of recorded steps.
func (r *Replay) Steps() int { return len(r.Inputs) }

// Input returns the inputs of step i.
func (r *Replay) Input(i int) (left, right game.PlayerInput) {
	return DecodeInput(r.Inputs[i])
}

// Ruleset rebuilds the ruleset the match was played with.
func (r *Replay) Ruleset() *rules.Ruleset {
	return rules.FromText(r.Rules)
}

// NewRules rebuilds the rule engine the match was played with.
func (r *Replay) NewRules() game.Rules {
	return rules.New(r.RulesKind, r.Ruleset())
}

// Winner returns the side that won by final score, NoPlayer on a tie.
func (r *Replay) Winner() game.PlayerSide {
	switch {
	case r.Score[game.LeftPlayer] > r.Score[game.RightPlayer]:
		return game.LeftPlayer
	case r.Score[game.RightPlayer] > r.Score[game.LeftPlayer]:
		return game.RightPlayer
	}
	return game.NoPlayer
}

// Serialize transfers a whole replay through an archive, e.g. to send it to
// a peer.
func (r *Replay) Serialize(a archive.Archive) {
	speed := uint32(r.GameSpeed)
	a.Uint32(&speed)
	a.Uint32(&r.Length)
	a.Uint32(&r.Duration)

	date := ""
	if !r.Date.IsZero() {
		date = r.Date.UTC().Format(time.RFC3339)
	}
	a.String(&date)

	for i := range r.Score {
		a.Uint32(&r.Score[i])
		a.String(&r.Names[i])
		a.String(&r.Colors[i])
	}
	a.Uint32(&r.Period)
	a.String(&r.Rules)
	a.String(&r.RulesKind)
	archive.Blob(a, &r.Inputs)
	archive.Sequence(a, &r.SavePoints)

	if a.Reading() && a.Err() == nil {
		r.GameSpeed = int(speed)
		r.Date = time.Time{}
		if date != "" {
			t, err := time.Parse(time.RFC3339, date)
			if err != nil {
				a.Fail(err)
				return
			}
			r.Date = t
		}
	}
}
