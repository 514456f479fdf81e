package game

import (
	"fmt"

	"volley-duel/internal/archive"
)

// GameLogicState is the score and rally bookkeeping owned by Logic.
type GameLogicState struct {
	Scores  [2]uint32 `json:"scores"`
	Touches [2]uint32 `json:"touches"`

	// Cooldowns ("squish") per collision category.
	SquishBlob   [2]int32 `json:"squishBlob"`
	SquishWall   int32    `json:"squishWall"`
	SquishGround int32    `json:"squishGround"`
	SquishNet    int32    `json:"squishNet"`

	ServingPlayer PlayerSide `json:"servingPlayer"`
	WinningPlayer PlayerSide `json:"winningPlayer"`
	IsBallValid   bool       `json:"isBallValid"`   // ball may still be played
	IsGameRunning bool       `json:"isGameRunning"` // rally in progress, ball integrates

	GameTime uint32 `json:"gameTime"` // ticks the clock has run
}

// InitialLogicState returns a fresh match waiting for server.
func InitialLogicState(server PlayerSide) GameLogicState {
	return GameLogicState{
		ServingPlayer: server,
		WinningPlayer: NoPlayer,
		IsBallValid:   true,
	}
}

// SwapSides exchanges everything that belongs to a side.
func (s GameLogicState) SwapSides() GameLogicState {
	s.Scores[0], s.Scores[1] = s.Scores[1], s.Scores[0]
	s.Touches[0], s.Touches[1] = s.Touches[1], s.Touches[0]
	s.SquishBlob[0], s.SquishBlob[1] = s.SquishBlob[1], s.SquishBlob[0]
	s.ServingPlayer = s.ServingPlayer.Opponent()
	s.WinningPlayer = s.WinningPlayer.Opponent()
	return s
}

// serializeSide stores a side as side+1. Reading anything but NoPlayer or a
// player fails the archive.
func serializeSide(a archive.Archive, s *PlayerSide) {
	b := uint8(*s + 1)
	a.Byte(&b)
	if !a.Reading() || a.Err() != nil {
		return
	}
	side := PlayerSide(int8(b) - 1)
	if side != NoPlayer && !side.IsPlayer() {
		a.Fail(fmt.Errorf("%w: byte %d", ErrInvalidSide, b))
		return
	}
	*s = side
}

// serializeCounters covers everything except the running flag, which the
// wire form re-derives instead of sending.
func (s *GameLogicState) serializeCounters(a archive.Archive) {
	for i := range s.Scores {
		a.Uint32(&s.Scores[i])
	}
	for i := range s.Touches {
		a.Uint32(&s.Touches[i])
	}
	for i := range s.SquishBlob {
		archive.Int32(a, &s.SquishBlob[i])
	}
	archive.Int32(a, &s.SquishWall)
	archive.Int32(a, &s.SquishGround)
	archive.Int32(a, &s.SquishNet)
	serializeSide(a, &s.ServingPlayer)
	if a.Reading() && a.Err() == nil && !s.ServingPlayer.IsPlayer() {
		a.Fail(fmt.Errorf("%w: nobody serves", ErrInvalidSide))
	}
	serializeSide(a, &s.WinningPlayer)
	a.Bool(&s.IsBallValid)
	a.Uint32(&s.GameTime)
}

func (s *GameLogicState) Serialize(a archive.Archive) {
	s.serializeCounters(a)
	a.Bool(&s.IsGameRunning)
}
