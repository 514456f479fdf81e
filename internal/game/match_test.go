package game

import (
	"math/rand"
	"reflect"
	"testing"
)

// scriptedInputs returns a reproducible input sequence that changes every few
// ticks, roughly like a human would.
func scriptedInputs(seed int64, n int) [][2]PlayerInput {
	rng := rand.New(rand.NewSource(seed))
	out := make([][2]PlayerInput, n)
	var cur [2]PlayerInput
	for i := range out {
		if rng.Intn(8) == 0 {
			cur[rng.Intn(2)] = InputFromBits(uint8(rng.Intn(8)))
		}
		out[i] = cur
	}
	return out
}

func matchWith(rules Rules, mutate func(s *DuelMatchState)) *DuelMatch {
	m := NewDuelMatch(rules, DefaultMatchOptions())
	s := m.State()
	mutate(&s)
	m.SetState(s)
	return m
}

func TestDuelMatchDeterminism(t *testing.T) {
	inputs := scriptedInputs(11, 4000)
	a := NewDuelMatch(FallbackRules{}, DefaultMatchOptions())
	b := NewDuelMatch(FallbackRules{}, DefaultMatchOptions())

	var restored *DuelMatch
	for i, in := range inputs {
		a.Step(in[0], in[1])
		b.Step(in[0], in[1])
		if a.State().Fingerprint() != b.State().Fingerprint() {
			t.Fatalf("tick %d: states diverged", i)
		}
		if !reflect.DeepEqual(a.Events(), b.Events()) {
			t.Fatalf("tick %d: events diverged: %v vs %v", i, a.Events(), b.Events())
		}
		if i == 1999 {
			restored = NewDuelMatch(FallbackRules{}, DefaultMatchOptions())
			restored.SetState(a.State())
			continue
		}
		if restored != nil {
			restored.Step(in[0], in[1])
		}
	}

	if restored.State().Fingerprint() != a.State().Fingerprint() {
		t.Error("Expected a match resumed from a snapshot to end in the same state")
	}
	if a.State().Logic.GameTime != uint32(len(inputs)) {
		t.Errorf("Expected game time %d, got %d", len(inputs), a.State().Logic.GameTime)
	}
}

func TestServeHitStartsRally(t *testing.T) {
	m := matchWith(FallbackRules{}, func(s *DuelMatchState) {
		s.World.BallPosition = Vector2{-190, GroundPlaneHeight - BlobbyUpperSphere - 50}
	})
	m.Step(noInput, noInput)

	if !hasEvent(m.Events(), EventBallHitBlob, LeftPlayer) {
		t.Fatalf("Expected the serve to touch the left blob, got %v", m.Events())
	}
	s := m.State()
	if !s.Logic.IsGameRunning {
		t.Error("Expected the rally to be running")
	}
	if s.Logic.Touches[LeftPlayer] != 1 {
		t.Errorf("Expected one touch, got %d", s.Logic.Touches[LeftPlayer])
	}
}

func TestPhysicsEventsPrecedeLogicEvents(t *testing.T) {
	m := matchWith(FallbackRules{}, func(s *DuelMatchState) {
		s.World.BallPosition = Vector2{-100, 466}
		s.World.BallVelocity = Vector2{0, 5}
		s.Logic.IsGameRunning = true
	})
	m.Step(noInput, noInput)

	got := eventTypes(m.Events())
	want := []EventType{EventBallHitGround, EventPlayerError}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}
	if m.Events()[1].Side != LeftPlayer {
		t.Errorf("Expected the error on the left, got %v", m.Events()[1].Side)
	}
}

func TestDroppedBallScoresAndResets(t *testing.T) {
	m := matchWith(FallbackRules{}, func(s *DuelMatchState) {
		s.World.BallPosition = Vector2{100, 300}
		s.Logic.IsGameRunning = true
	})

	var seen []MatchEvent
	for i := 0; i < 1000; i++ {
		m.Step(noInput, noInput)
		for _, e := range m.FetchEvents() {
			if !e.Type.IsPhysics() {
				seen = append(seen, e)
			}
		}
		if len(seen) == 2 {
			break
		}
	}

	want := []MatchEvent{{Type: EventPlayerError, Side: RightPlayer}, {Type: EventBallReset, Side: LeftPlayer}}
	if !reflect.DeepEqual(seen, want) {
		t.Fatalf("Expected %v, got %v", want, seen)
	}
	s := m.State()
	if s.Logic.Scores != [2]uint32{1, 0} {
		t.Errorf("Expected 1:0, got %v", s.Logic.Scores)
	}
	if s.World.BallPosition != ServePosition(LeftPlayer) || s.Logic.IsGameRunning {
		t.Errorf("Expected ball waiting at the left serve, got %v running=%v", s.World.BallPosition, s.Logic.IsGameRunning)
	}
	if s.ErrorSide != NoPlayer {
		t.Errorf("Expected error side cleared, got %v", s.ErrorSide)
	}
}

func TestWinnerFreezesMatch(t *testing.T) {
	m := matchWith(FallbackRules{}, func(s *DuelMatchState) {
		s.World.BallPosition = Vector2{100, 466}
		s.World.BallVelocity = Vector2{0, 5}
		s.Logic.Scores = [2]uint32{14, 2}
		s.Logic.IsGameRunning = true
	})
	m.Step(noInput, noInput)
	if m.Winner() != LeftPlayer {
		t.Fatalf("Expected left to win, got %v", m.Winner())
	}

	for i := 0; i < 500; i++ {
		m.Step(noInput, noInput)
		for _, e := range m.FetchEvents() {
			if e.Type == EventBallReset {
				t.Fatal("Expected no new serve after the match is won")
			}
		}
	}
	if m.State().Logic.Scores != [2]uint32{15, 2} {
		t.Errorf("Expected final 15:2, got %v", m.State().Logic.Scores)
	}
}

func TestEventsPeekAndFetch(t *testing.T) {
	m := matchWith(FallbackRules{}, func(s *DuelMatchState) {
		s.World.BallPosition = Vector2{-100, 466}
		s.World.BallVelocity = Vector2{0, 5}
		s.Logic.IsGameRunning = true
	})
	m.Step(noInput, noInput)

	first := m.Events()
	if len(first) == 0 || !reflect.DeepEqual(first, m.Events()) {
		t.Fatalf("Expected Events to be repeatable, got %v then %v", first, m.Events())
	}
	fetched := m.FetchEvents()
	if !reflect.DeepEqual(first, fetched) {
		t.Errorf("Expected fetch to return %v, got %v", first, fetched)
	}
	if len(m.Events()) != 0 || len(m.FetchEvents()) != 0 {
		t.Error("Expected the buffer to be empty after a fetch")
	}
}

func TestPauseSkipsSteps(t *testing.T) {
	inputs := scriptedInputs(5, 300)
	paused := NewDuelMatch(FallbackRules{}, DefaultMatchOptions())
	plain := NewDuelMatch(FallbackRules{}, DefaultMatchOptions())

	for i, in := range inputs {
		if i == 100 {
			paused.Pause()
			before := paused.State()
			for k := 0; k < 50; k++ {
				paused.Step(PlayerInput{Up: true}, PlayerInput{Left: true})
			}
			if paused.State() != before {
				t.Fatal("Expected a paused match not to change")
			}
			if !paused.Paused() {
				t.Fatal("Expected Paused to report true")
			}
			paused.Unpause()
		}
		paused.Step(in[0], in[1])
		plain.Step(in[0], in[1])
	}

	if paused.State().Fingerprint() != plain.State().Fingerprint() {
		t.Error("Expected pausing to leave the simulation unaffected")
	}
	if paused.Steps() != uint64(len(inputs)) {
		t.Errorf("Expected %d steps, got %d", len(inputs), paused.Steps())
	}
}

func TestStepFromSources(t *testing.T) {
	m := NewDuelMatch(DummyRules{}, DefaultMatchOptions())
	left := InputFunc(func() PlayerInput { return PlayerInput{Right: true} })
	right := InputFunc(func() PlayerInput { return PlayerInput{} })
	m.StepFrom(left, right)

	s := m.State()
	if s.Input[LeftPlayer] != (PlayerInput{Right: true}) {
		t.Errorf("Expected recorded input, got %+v", s.Input[LeftPlayer])
	}
	if s.World.Blobs[LeftPlayer].Position.X != -200+BlobbySpeed {
		t.Errorf("Expected blob to move right, got %v", s.World.Blobs[LeftPlayer].Position.X)
	}
}

func TestRightServerOption(t *testing.T) {
	m := NewDuelMatch(FallbackRules{}, MatchOptions{Server: RightPlayer})
	s := m.State()
	if s.Logic.ServingPlayer != RightPlayer || s.World.BallPosition != ServePosition(RightPlayer) {
		t.Errorf("Expected right serve, got %v at %v", s.Logic.ServingPlayer, s.World.BallPosition)
	}
	if m.Rules().Name() != "fallback" {
		t.Errorf("Expected fallback rules, got %q", m.Rules().Name())
	}
}

func TestZeroValueMatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected a zero DuelMatch to panic")
		}
	}()
	var m DuelMatch
	m.Step(noInput, noInput)
}
