package replay

import (
	"time"

	"volley-duel/internal/game"
)

// Recorder builds a Replay while a match runs. It is owned by the goroutine
// stepping the match.
type Recorder struct {
	replay    Replay
	lastScore [2]uint32
	finalized bool
}

// NewRecorder starts a recording. attrs supplies names, colors, speed and
// date; period <= 0 means SavePointPeriod.
func NewRecorder(attrs Attributes, rulesText string, period int) *Recorder {
	if period <= 0 {
		period = SavePointPeriod
	}
	if attrs.Date.IsZero() {
		attrs.Date = time.Now()
	}
	attrs.Length, attrs.Duration, attrs.Score = 0, 0, [2]uint32{}
	return &Recorder{
		replay: Replay{
			Attributes: attrs,
			Period:     uint32(period),
			Rules:      rulesText,
			Inputs:     make([]byte, 0, 4096),
		},
	}
}

// Record notes the inputs of the next step. before is the match state the
// step starts from; it becomes a save point every Period steps and whenever
// the score changed since the last save point.
func (r *Recorder) Record(before game.DuelMatchState, left, right game.PlayerInput) {
	if r.finalized {
		panic("replay: Record after Finalize")
	}
	step := uint32(len(r.replay.Inputs))
	score := before.Logic.Scores
	if step%r.replay.Period == 0 || score != r.lastScore {
		r.replay.SavePoints = append(r.replay.SavePoints, SavePoint{Step: step, State: before})
		r.lastScore = score
	}
	r.replay.Inputs = append(r.replay.Inputs, EncodeInput(left, right))
}

// Steps returns the number of recorded steps.
func (r *Recorder) Steps() int { return len(r.replay.Inputs) }

// SavePoints returns the number of save points taken so far.
func (r *Recorder) SavePoints() int { return len(r.replay.SavePoints) }

// Finalize closes the recording with the final state. elapsed is the wall
// time the match took; zero derives it from the step count.
func (r *Recorder) Finalize(final game.DuelMatchState, elapsed time.Duration) {
	r.finalized = true
	r.replay.Length = uint32(len(r.replay.Inputs))
	r.replay.Score = final.Logic.Scores
	switch {
	case elapsed > 0:
		r.replay.Duration = uint32(elapsed / time.Second)
	case r.replay.GameSpeed > 0:
		r.replay.Duration = r.replay.Length / uint32(r.replay.GameSpeed)
	}
}

// Finalized reports whether Finalize was called.
func (r *Recorder) Finalized() bool { return r.finalized }

// Replay returns an independent copy of the recording. Before Finalize the
// score and length reflect what has been recorded so far.
func (r *Recorder) Replay() *Replay {
	out := r.replay
	if !r.finalized {
		out.Length = uint32(len(r.replay.Inputs))
		out.Score = r.lastScore
	}
	out.Inputs = append([]byte(nil), r.replay.Inputs...)
	out.SavePoints = append([]SavePoint(nil), r.replay.SavePoints...)
	return &out
}
