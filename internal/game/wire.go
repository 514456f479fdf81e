package game

import (
	"fmt"
	"math"

	"volley-duel/internal/archive"
)

// WireRestEpsilon is the tolerance used to decide from a decoded state whether
// the ball still rests on its serve position.
const WireRestEpsilon float32 = 0.1

// Range is a closed interval a float is quantized against.
type Range struct {
	Min, Max float32
}

// Quantization ranges of the wire form.
var (
	WireRangeLeftBlobX  = Range{LeftPlane, NetPositionX}
	WireRangeRightBlobX = Range{NetPositionX, RightPlane}
	WireRangeBlobY      = Range{0, GroundPlaneHeight}
	WireRangeVelocity   = Range{-30, 30}
	WireRangeBallX      = Range{LeftPlane, RightPlane}
	WireRangeBallY      = Range{-500, 500}
	WireRangeRotation   = Range{0, twoPi}
	WireRangeSpin       = Range{-math.Pi, math.Pi}
	WireRangeAnimation  = Range{0, BlobbyAnimationCycle}
)

// Step is the largest error Quantize/Dequantize introduce inside the range.
func (r Range) Step() float32 { return (r.Max - r.Min) / 65535 }

// Quantize maps v onto 0..65535: q = round((v-min)/(max-min)*65535). Values
// outside the range are clamped.
func Quantize(v float32, r Range) uint16 {
	f := (float64(v) - float64(r.Min)) / (float64(r.Max) - float64(r.Min)) * 65535
	switch {
	case math.IsNaN(f) || f < 0:
		return 0
	case f > 65535:
		return 65535
	}
	return uint16(math.Round(f))
}

// Dequantize is the inverse of Quantize: v = q/65535*(max-min)+min.
func Dequantize(q uint16, r Range) float32 {
	return float32(float64(q)/65535*(float64(r.Max)-float64(r.Min)) + float64(r.Min))
}

func blobXRange(side PlayerSide) Range {
	if side == LeftPlayer {
		return WireRangeLeftBlobX
	}
	return WireRangeRightBlobX
}

// EncodeWire packs a state for a network peer. Physics floats are quantized
// to 16 bits and grounded blobs send no vertical data; logic state travels at
// full precision except the running flag, which the receiver re-derives.
// With swap set the state is mirrored first so the receiver sees itself on
// the left.
func EncodeWire(s DuelMatchState, swap bool) []byte {
	if swap {
		s = s.SwapSides()
	}
	w := archive.NewBitWriter()
	encodePhysicWire(w, &s.World)
	s.Logic.serializeCounters(w)
	for i := range s.Input {
		s.Input[i].Serialize(w)
	}
	serializeSide(w, &s.ErrorSide)
	return w.Data()
}

// DecodeWire reverses EncodeWire. The decoded floats differ from the sent
// ones by at most one quantization step.
func DecodeWire(data []byte, swap bool) (DuelMatchState, error) {
	var s DuelMatchState
	r := archive.NewBitReader(data)
	decodePhysicWire(r, &s.World)
	s.Logic.serializeCounters(r)
	for i := range s.Input {
		s.Input[i].Serialize(r)
	}
	serializeSide(r, &s.ErrorSide)
	if err := r.Err(); err != nil {
		return DuelMatchState{}, fmt.Errorf("decode wire state: %w", err)
	}
	s.Logic.IsGameRunning = !ballAtRest(&s.World, s.Logic.ServingPlayer)
	if swap {
		s = s.SwapSides()
	}
	return s, nil
}

// ballAtRest is a heuristic, not an exact inverse: a rally is considered
// running once the ball is off its serve spot or moving.
func ballAtRest(p *PhysicState, server PlayerSide) bool {
	serve := ServePosition(server)
	return abs32(p.BallPosition.X-serve.X) <= WireRestEpsilon &&
		abs32(p.BallPosition.Y-serve.Y) <= WireRestEpsilon &&
		abs32(p.BallVelocity.X) <= WireRestEpsilon &&
		abs32(p.BallVelocity.Y) <= WireRestEpsilon
}

func encodePhysicWire(w *archive.BitWriter, p *PhysicState) {
	var grounded [2]bool
	for i := range grounded {
		grounded[i] = p.BlobGrounded(PlayerSide(i))
		w.Bool(&grounded[i])
	}
	for i := range p.Blobs {
		b := &p.Blobs[i]
		w.Uint16(Quantize(b.Position.X, blobXRange(PlayerSide(i))))
		w.Uint16(Quantize(b.Velocity.X, WireRangeVelocity))
		if !grounded[i] {
			w.Uint16(Quantize(b.Position.Y, WireRangeBlobY))
			w.Uint16(Quantize(b.Velocity.Y, WireRangeVelocity))
		}
		w.Uint16(Quantize(b.AnimationPhase, WireRangeAnimation))
	}
	w.Uint16(Quantize(p.BallPosition.X, WireRangeBallX))
	w.Uint16(Quantize(p.BallPosition.Y, WireRangeBallY))
	w.Uint16(Quantize(p.BallVelocity.X, WireRangeVelocity))
	w.Uint16(Quantize(p.BallVelocity.Y, WireRangeVelocity))
	w.Uint16(Quantize(p.BallRotation, WireRangeRotation))
	w.Uint16(Quantize(p.BallAngularVelocity, WireRangeSpin))
	for i := range p.Input {
		p.Input[i].Serialize(w)
	}
}

func decodePhysicWire(r *archive.BitReader, p *PhysicState) {
	var grounded [2]bool
	for i := range grounded {
		r.Bool(&grounded[i])
	}
	for i := range p.Blobs {
		b := &p.Blobs[i]
		b.Position.X = Dequantize(r.Uint16(), blobXRange(PlayerSide(i)))
		b.Velocity.X = Dequantize(r.Uint16(), WireRangeVelocity)
		if grounded[i] {
			b.Position.Y = GroundPlaneHeight
			b.Velocity.Y = 0
		} else {
			b.Position.Y = Dequantize(r.Uint16(), WireRangeBlobY)
			b.Velocity.Y = Dequantize(r.Uint16(), WireRangeVelocity)
		}
		b.AnimationPhase = Dequantize(r.Uint16(), WireRangeAnimation)
	}
	p.BallPosition.X = Dequantize(r.Uint16(), WireRangeBallX)
	p.BallPosition.Y = Dequantize(r.Uint16(), WireRangeBallY)
	p.BallVelocity.X = Dequantize(r.Uint16(), WireRangeVelocity)
	p.BallVelocity.Y = Dequantize(r.Uint16(), WireRangeVelocity)
	p.BallRotation = Dequantize(r.Uint16(), WireRangeRotation)
	p.BallAngularVelocity = Dequantize(r.Uint16(), WireRangeSpin)
	for i := range p.Input {
		p.Input[i].Serialize(r)
	}
}
