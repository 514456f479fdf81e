package game

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"volley-duel/internal/archive"
)

var wireRanges = map[string]Range{
	"left blob x":  WireRangeLeftBlobX,
	"right blob x": WireRangeRightBlobX,
	"blob y":       WireRangeBlobY,
	"velocity":     WireRangeVelocity,
	"ball x":       WireRangeBallX,
	"ball y":       WireRangeBallY,
	"rotation":     WireRangeRotation,
	"spin":         WireRangeSpin,
	"animation":    WireRangeAnimation,
}

func TestQuantizeBound(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for name, r := range wireRanges {
		t.Run(name, func(t *testing.T) {
			samples := []float32{r.Min, r.Max, (r.Min + r.Max) / 2}
			for i := 0; i < 1000; i++ {
				samples = append(samples, r.Min+rng.Float32()*(r.Max-r.Min))
			}
			for _, v := range samples {
				got := Dequantize(Quantize(v, r), r)
				if diff := math.Abs(float64(got - v)); diff > float64(r.Step()) {
					t.Fatalf("value %v came back as %v, error %v exceeds step %v", v, got, diff, r.Step())
				}
			}
		})
	}
}

func TestQuantizeClamps(t *testing.T) {
	r := WireRangeVelocity
	tests := []struct {
		in   float32
		want uint16
	}{
		{r.Min, 0},
		{r.Max, 65535},
		{r.Min - 100, 0},
		{r.Max + 100, 65535},
		{float32(math.NaN()), 0},
	}
	for _, tt := range tests {
		if got := Quantize(tt.in, r); got != tt.want {
			t.Errorf("Quantize(%v): expected %d, got %d", tt.in, tt.want, got)
		}
	}
}

func randomMatchState(rng *rand.Rand) DuelMatchState {
	f := func(lo, hi float32) float32 { return lo + rng.Float32()*(hi-lo) }
	side := func() PlayerSide { return PlayerSide(rng.Intn(3) - 1) }
	input := func() PlayerInput { return InputFromBits(uint8(rng.Intn(8))) }

	var s DuelMatchState
	for i := range s.World.Blobs {
		b := &s.World.Blobs[i]
		b.Position = Vector2{f(-400, 400), f(150, GroundPlaneHeight)}
		b.Velocity = Vector2{f(-5, 5), f(-16, 16)}
		b.AnimationPhase = f(0, BlobbyAnimationCycle)
	}
	s.World.BallPosition = Vector2{f(-400, 400), f(0, 470)}
	s.World.BallVelocity = Vector2{f(-15, 15), f(-15, 15)}
	s.World.BallRotation = f(0, twoPi)
	s.World.BallAngularVelocity = f(-0.5, 0.5)
	s.World.Input = [2]PlayerInput{input(), input()}

	s.Logic = GameLogicState{
		Scores:        [2]uint32{uint32(rng.Intn(20)), uint32(rng.Intn(20))},
		Touches:       [2]uint32{uint32(rng.Intn(4)), uint32(rng.Intn(4))},
		SquishBlob:    [2]int32{int32(rng.Intn(11)), int32(rng.Intn(11))},
		SquishWall:    int32(rng.Intn(11)),
		SquishGround:  int32(rng.Intn(11)),
		SquishNet:     int32(rng.Intn(11)),
		ServingPlayer: PlayerSide(rng.Intn(2)),
		WinningPlayer: side(),
		IsBallValid:   rng.Intn(2) == 0,
		IsGameRunning: rng.Intn(2) == 0,
		GameTime:      rng.Uint32(),
	}
	s.Input = [2]PlayerInput{input(), input()}
	s.ErrorSide = side()
	return s
}

func TestSwapSidesIsAnInvolution(t *testing.T) {
	for b := uint8(0); b < 8; b++ {
		in := InputFromBits(b)
		if got := in.SwapSides().SwapSides(); got != in {
			t.Errorf("input %+v: expected involution, got %+v", in, got)
		}
	}

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		s := randomMatchState(rng)
		if got := s.World.SwapSides().SwapSides(); got != s.World {
			t.Fatalf("physic state not restored:\n%+v\n%+v", s.World, got)
		}
		if got := s.Logic.SwapSides().SwapSides(); got != s.Logic {
			t.Fatalf("logic state not restored:\n%+v\n%+v", s.Logic, got)
		}
		twice := s.SwapSides().SwapSides()
		if twice != s || twice.Fingerprint() != s.Fingerprint() {
			t.Fatalf("match state not restored bit for bit")
		}
	}
}

func TestSwapSidesMirrors(t *testing.T) {
	s := InitialMatchState(LeftPlayer)
	s.Logic.Scores = [2]uint32{3, 5}
	s.Input[LeftPlayer] = PlayerInput{Left: true}
	m := s.SwapSides()

	if m.World.BallPosition != ServePosition(RightPlayer) {
		t.Errorf("Expected ball at right serve %v, got %v", ServePosition(RightPlayer), m.World.BallPosition)
	}
	if m.Logic.ServingPlayer != RightPlayer {
		t.Errorf("Expected right to serve, got %v", m.Logic.ServingPlayer)
	}
	if m.Logic.Scores != [2]uint32{5, 3} {
		t.Errorf("Expected scores swapped to 5:3, got %v", m.Logic.Scores)
	}
	if m.Input[RightPlayer] != (PlayerInput{Right: true}) {
		t.Errorf("Expected mirrored input on the right, got %+v", m.Input[RightPlayer])
	}
	if m.Logic.WinningPlayer != NoPlayer || m.ErrorSide != NoPlayer {
		t.Errorf("Expected NoPlayer to stay NoPlayer, got %v/%v", m.Logic.WinningPlayer, m.ErrorSide)
	}
}

func assertWireClose(t *testing.T, want, got DuelMatchState) {
	t.Helper()
	near := func(name string, a, b float32, r Range) {
		if math.Abs(float64(a-b)) > float64(r.Step()) {
			t.Errorf("%s: expected %v within %v, got %v", name, a, r.Step(), b)
		}
	}
	for i := range want.World.Blobs {
		w, g := want.World.Blobs[i], got.World.Blobs[i]
		near("blob x", w.Position.X, g.Position.X, blobXRange(PlayerSide(i)))
		near("blob y", w.Position.Y, g.Position.Y, WireRangeBlobY)
		near("blob vx", w.Velocity.X, g.Velocity.X, WireRangeVelocity)
		near("blob vy", w.Velocity.Y, g.Velocity.Y, WireRangeVelocity)
		near("animation", w.AnimationPhase, g.AnimationPhase, WireRangeAnimation)
	}
	near("ball x", want.World.BallPosition.X, got.World.BallPosition.X, WireRangeBallX)
	near("ball y", want.World.BallPosition.Y, got.World.BallPosition.Y, WireRangeBallY)
	near("ball vx", want.World.BallVelocity.X, got.World.BallVelocity.X, WireRangeVelocity)
	near("ball vy", want.World.BallVelocity.Y, got.World.BallVelocity.Y, WireRangeVelocity)
	near("rotation", want.World.BallRotation, got.World.BallRotation, WireRangeRotation)
	near("spin", want.World.BallAngularVelocity, got.World.BallAngularVelocity, WireRangeSpin)

	wl, gl := want.Logic, got.Logic
	wl.IsGameRunning, gl.IsGameRunning = false, false
	if wl != gl {
		t.Errorf("logic counters differ:\n%+v\n%+v", wl, gl)
	}
	if want.Input != got.Input || want.World.Input != got.World.Input {
		t.Errorf("inputs differ: %v/%v vs %v/%v", want.Input, want.World.Input, got.Input, got.World.Input)
	}
	if want.ErrorSide != got.ErrorSide {
		t.Errorf("Expected error side %v, got %v", want.ErrorSide, got.ErrorSide)
	}
}

func TestWireRoundTrip(t *testing.T) {
	m := NewDuelMatch(FallbackRules{}, DefaultMatchOptions())
	rng := rand.New(rand.NewSource(3))
	var left, right PlayerInput

	for tick := 0; tick < 1500; tick++ {
		if tick%12 == 0 {
			left = InputFromBits(uint8(rng.Intn(8)))
			right = InputFromBits(uint8(rng.Intn(8)))
		}
		m.Step(left, right)
		if tick%50 != 0 {
			continue
		}
		s := m.State()
		for _, swap := range []bool{false, true} {
			got, err := DecodeWire(EncodeWire(s, swap), swap)
			if err != nil {
				t.Fatalf("tick %d: decode failed: %v", tick, err)
			}
			assertWireClose(t, s, got)
		}
	}
}

func TestWireSwapMirrorsForReceiver(t *testing.T) {
	s := InitialMatchState(LeftPlayer)
	s.World.Blobs[LeftPlayer].Position.X = -150
	s.Logic.Scores = [2]uint32{4, 1}

	got, err := DecodeWire(EncodeWire(s, true), false)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	assertWireClose(t, s.SwapSides(), got)
	if got.Logic.Scores != [2]uint32{1, 4} {
		t.Errorf("Expected receiver to see 1:4, got %v", got.Logic.Scores)
	}
}

func TestWireOmitsGroundedBlobs(t *testing.T) {
	s := InitialMatchState(LeftPlayer)
	grounded := EncodeWire(s, false)

	s.World.Blobs[LeftPlayer].Position.Y = 300
	s.World.Blobs[LeftPlayer].Velocity.Y = -4
	airborne := EncodeWire(s, false)

	if len(airborne)-len(grounded) != 4 {
		t.Errorf("Expected an airborne blob to add 4 bytes, got %d vs %d", len(airborne), len(grounded))
	}

	got, err := DecodeWire(grounded, false)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	for i, b := range got.World.Blobs {
		if b.Position.Y != GroundPlaneHeight || b.Velocity.Y != 0 {
			t.Errorf("blob %d: expected exact ground pose, got y=%v vy=%v", i, b.Position.Y, b.Velocity.Y)
		}
	}
}

func TestWireRunningHeuristic(t *testing.T) {
	s := InitialMatchState(RightPlayer)
	got, _ := DecodeWire(EncodeWire(s, false), false)
	if got.Logic.IsGameRunning {
		t.Error("Expected a ball on its serve spot to decode as not running")
	}

	s.World.BallPosition.Y -= 20
	s.World.BallVelocity = Vector2{3, -6}
	s.Logic.IsGameRunning = true
	got, _ = DecodeWire(EncodeWire(s, false), false)
	if !got.Logic.IsGameRunning {
		t.Error("Expected a moving ball to decode as running")
	}
}

func TestDecodeWireTruncated(t *testing.T) {
	data := EncodeWire(InitialMatchState(LeftPlayer), false)
	_, err := DecodeWire(data[:len(data)/2], false)
	if !errors.Is(err, archive.ErrEndOfStream) {
		t.Errorf("Expected ErrEndOfStream, got %v", err)
	}
}

func TestDecodeRejectsBogusSides(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DuelMatchState)
	}{
		{"winner past right", func(s *DuelMatchState) { s.Logic.WinningPlayer = 6 }},
		{"negative winner", func(s *DuelMatchState) { s.Logic.WinningPlayer = -57 }},
		{"error side", func(s *DuelMatchState) { s.ErrorSide = 2 }},
		{"nobody serves", func(s *DuelMatchState) { s.Logic.ServingPlayer = NoPlayer }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := InitialMatchState(LeftPlayer)
			tt.mutate(&s)

			if _, err := DecodeWire(EncodeWire(s, false), false); !errors.Is(err, ErrInvalidSide) {
				t.Errorf("wire: expected ErrInvalidSide, got %v", err)
			}

			w := archive.NewBitWriter()
			s.Serialize(w)
			var got DuelMatchState
			if err := archive.Decode(archive.NewBitReader(w.Data()), &got); !errors.Is(err, ErrInvalidSide) {
				t.Errorf("archive: expected ErrInvalidSide, got %v", err)
			}
		})
	}
}

func TestDecodeAcceptsEverySide(t *testing.T) {
	for _, winner := range []PlayerSide{NoPlayer, LeftPlayer, RightPlayer} {
		s := InitialMatchState(RightPlayer)
		s.Logic.WinningPlayer = winner
		s.ErrorSide = winner
		got, err := DecodeWire(EncodeWire(s, false), false)
		if err != nil {
			t.Fatalf("winner %v: decode failed: %v", winner, err)
		}
		if got.Logic.WinningPlayer != winner || got.ErrorSide != winner {
			t.Errorf("Expected %v, got winner %v error side %v", winner, got.Logic.WinningPlayer, got.ErrorSide)
		}
	}
}
