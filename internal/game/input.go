package game

import (
	"errors"
	"fmt"

	"volley-duel/internal/archive"
)

// PlayerSide identifies one half of the field.
type PlayerSide int8

const (
	NoPlayer    PlayerSide = -1
	LeftPlayer  PlayerSide = 0
	RightPlayer PlayerSide = 1
)

// ErrInvalidSide is reported when decoded data names a side that does not
// exist.
var ErrInvalidSide = errors.New("game: invalid player side")

// IsPlayer reports whether s is LeftPlayer or RightPlayer.
func (s PlayerSide) IsPlayer() bool { return s == LeftPlayer || s == RightPlayer }

// Opponent returns the other side. NoPlayer stays NoPlayer.
func (s PlayerSide) Opponent() PlayerSide {
	switch s {
	case LeftPlayer:
		return RightPlayer
	case RightPlayer:
		return LeftPlayer
	default:
		return NoPlayer
	}
}

func (s PlayerSide) String() string {
	switch s {
	case LeftPlayer:
		return "left"
	case RightPlayer:
		return "right"
	default:
		return "none"
	}
}

func (s PlayerSide) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *PlayerSide) UnmarshalText(text []byte) error {
	if string(text) == "none" {
		*s = NoPlayer
		return nil
	}
	side, ok := ParseSide(string(text))
	if !ok {
		return fmt.Errorf("unknown side %q", text)
	}
	*s = side
	return nil
}

// ParseSide accepts "left"/"right" (and "l"/"r").
func ParseSide(s string) (PlayerSide, bool) {
	switch s {
	case "left", "l", "0":
		return LeftPlayer, true
	case "right", "r", "1":
		return RightPlayer, true
	}
	return NoPlayer, false
}

// sideOf reports which half x lies on.
func sideOf(x float32) PlayerSide {
	if x < NetPositionX {
		return LeftPlayer
	}
	return RightPlayer
}

// PlayerInput is the per-step control state of one blob.
type PlayerInput struct {
	Left  bool `json:"left"`
	Right bool `json:"right"`
	Up    bool `json:"up"`
}

// Bits packs the input as left<<2 | right<<1 | up.
func (in PlayerInput) Bits() uint8 {
	var b uint8
	if in.Left {
		b |= 4
	}
	if in.Right {
		b |= 2
	}
	if in.Up {
		b |= 1
	}
	return b
}

// InputFromBits is the inverse of Bits; bits above the low three are ignored.
func InputFromBits(b uint8) PlayerInput {
	return PlayerInput{Left: b&4 != 0, Right: b&2 != 0, Up: b&1 != 0}
}

// SwapSides exchanges the horizontal directions.
func (in PlayerInput) SwapSides() PlayerInput {
	in.Left, in.Right = in.Right, in.Left
	return in
}

func (in *PlayerInput) Serialize(a archive.Archive) {
	a.Bool(&in.Left)
	a.Bool(&in.Right)
	a.Bool(&in.Up)
}

// InputSource produces one input per step for a side. Keyboards, bots and
// network peers all reduce to this.
type InputSource interface {
	Input() PlayerInput
}

// InputFunc adapts a function to InputSource.
type InputFunc func() PlayerInput

func (f InputFunc) Input() PlayerInput { return f() }
