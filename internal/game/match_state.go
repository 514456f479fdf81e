package game

import (
	"github.com/cespare/xxhash/v2"

	"volley-duel/internal/archive"
)

// DuelMatchState is the complete snapshot of a match: enough to resume the
// simulation bit-identically. It is the only unit ever persisted,
// transmitted or checkpointed.
type DuelMatchState struct {
	World     PhysicState    `json:"world"`
	Logic     GameLogicState `json:"logic"`
	Input     [2]PlayerInput `json:"input"` // raw, as received
	ErrorSide PlayerSide     `json:"errorSide"`
}

// InitialMatchState returns the state of a match that has not started.
func InitialMatchState(server PlayerSide) DuelMatchState {
	return DuelMatchState{
		World:     InitialPhysicState(server),
		Logic:     InitialLogicState(server),
		ErrorSide: NoPlayer,
	}
}

func (s *DuelMatchState) Serialize(a archive.Archive) {
	s.World.Serialize(a)
	s.Logic.Serialize(a)
	for i := range s.Input {
		s.Input[i].Serialize(a)
	}
	serializeSide(a, &s.ErrorSide)
}

// SwapSides mirrors the whole match; it is its own inverse.
func (s DuelMatchState) SwapSides() DuelMatchState {
	s.World = s.World.SwapSides()
	s.Logic = s.Logic.SwapSides()
	s.Input[LeftPlayer], s.Input[RightPlayer] = s.Input[RightPlayer].SwapSides(), s.Input[LeftPlayer].SwapSides()
	s.ErrorSide = s.ErrorSide.Opponent()
	return s
}

// Fingerprint hashes the full-precision encoding. Equal fingerprints mean
// bit-identical states for all practical purposes.
func (s DuelMatchState) Fingerprint() uint64 {
	w := archive.NewBitWriter()
	s.Serialize(w)
	return xxhash.Sum64(w.Data())
}
