package match

import (
	"sync"
	"sync/atomic"
	"time"

	"volley-duel/internal/game"
)

// MaxSnapshotEvents caps the events carried by one snapshot.
const MaxSnapshotEvents = 32

// MatchSnapshot is an immutable copy of a match for observers.
// Uses value types so readers never alias the worker's state.
type MatchSnapshot struct {
	Sequence  uint64    // Monotonic sequence for ordering
	Timestamp time.Time // When snapshot was created
	Step      uint64    // Ticks simulated so far

	State  game.DuelMatchState
	Events []game.MatchEvent // events of the last simulated tick
	Paused bool
	Winner game.PlayerSide
}

// SnapshotPool pre-allocates snapshots to avoid GC pressure.
// Uses triple buffering: the worker fills one slot while observers copy the
// last published one.
type SnapshotPool struct {
	snapshots [3]MatchSnapshot
	slotMu    [3]sync.RWMutex
	writeIdx  uint32 // atomic - producer index
	readIdx   uint32 // atomic - consumer index
	sequence  uint64 // atomic - monotonic sequence
	pending   int    // slot held between AcquireWrite and PublishWrite
}

// NewSnapshotPool creates a pool with pre-allocated event slices
func NewSnapshotPool() *SnapshotPool {
	pool := &SnapshotPool{pending: -1}
	for i := 0; i < 3; i++ {
		pool.snapshots[i] = MatchSnapshot{
			Events: make([]game.MatchEvent, 0, MaxSnapshotEvents),
			Winner: game.NoPlayer,
		}
	}
	return pool
}

// AcquireWrite gets the next write slot (producer only, called from the
// match tick). The slot stays locked until PublishWrite.
func (p *SnapshotPool) AcquireWrite() *MatchSnapshot {
	if p.pending >= 0 {
		panic("match: AcquireWrite called twice without PublishWrite")
	}
	idx := int(atomic.AddUint32(&p.writeIdx, 1) % 3)
	p.slotMu[idx].Lock()
	p.pending = idx

	snap := &p.snapshots[idx]
	snap.Events = snap.Events[:0]
	snap.Sequence = atomic.AddUint64(&p.sequence, 1)
	snap.Timestamp = time.Now()
	return snap
}

// PublishWrite marks the write complete and makes it the latest snapshot.
func (p *SnapshotPool) PublishWrite() {
	idx := p.pending
	if idx < 0 {
		panic("match: PublishWrite without AcquireWrite")
	}
	p.pending = -1
	p.slotMu[idx].Unlock()
	atomic.StoreUint32(&p.readIdx, uint32(idx))
}

// AcquireRead returns a copy of the latest published snapshot. ok is false
// until the first publish.
func (p *SnapshotPool) AcquireRead() (snap MatchSnapshot, ok bool) {
	if atomic.LoadUint64(&p.sequence) == 0 {
		return MatchSnapshot{Winner: game.NoPlayer}, false
	}
	idx := atomic.LoadUint32(&p.readIdx) % 3
	p.slotMu[idx].RLock()
	snap = p.snapshots[idx]
	snap.Events = append([]game.MatchEvent(nil), snap.Events...)
	p.slotMu[idx].RUnlock()
	return snap, snap.Sequence != 0
}

// Sequence returns the sequence of the last acquired write slot.
func (p *SnapshotPool) Sequence() uint64 {
	return atomic.LoadUint64(&p.sequence)
}
