package game

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func hit(side PlayerSide) MatchEvent { return MatchEvent{Type: EventBallHitBlob, Side: side} }

func ground(side PlayerSide) MatchEvent { return MatchEvent{Type: EventBallHitGround, Side: side} }

// settle runs enough ticks for every cooldown to expire.
func settle(l *Logic, w *World) {
	for i := 0; i < l.Config().SquishTolerance; i++ {
		l.Tick(w)
	}
}

func eventTypes(events []MatchEvent) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

func TestFourthTouchIsAFault(t *testing.T) {
	w := NewWorld(LeftPlayer)
	l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)

	for i := 1; i <= 3; i++ {
		l.OnEvent(hit(LeftPlayer))
		if got := l.Touches(LeftPlayer); got != i {
			t.Fatalf("Expected %d touches, got %d", i, got)
		}
		settle(l, w)
		if events := l.DrainEvents(); len(events) != 0 {
			t.Fatalf("Expected no logic events after touch %d, got %v", i, events)
		}
	}

	l.OnEvent(hit(LeftPlayer))
	events := l.DrainEvents()
	if len(events) != 1 || events[0].Type != EventPlayerError || events[0].Side != LeftPlayer {
		t.Fatalf("Expected player_error for left, got %v", events)
	}
	s := l.State()
	if s.Touches != [2]uint32{} {
		t.Errorf("Expected touches cleared, got %v", s.Touches)
	}
	if s.ServingPlayer != RightPlayer {
		t.Errorf("Expected right to serve, got %v", s.ServingPlayer)
	}
	if s.Scores != [2]uint32{0, 1} {
		t.Errorf("Expected score 0:1, got %v", s.Scores)
	}
	if s.IsBallValid {
		t.Error("Expected ball invalid after the fault")
	}
	if l.ErrorSide() != LeftPlayer {
		t.Errorf("Expected error side left, got %v", l.ErrorSide())
	}
}

func TestCooldownSuppressesRepeatedHits(t *testing.T) {
	w := NewWorld(LeftPlayer)
	l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)

	l.OnEvent(hit(LeftPlayer))
	for i := 0; i < SquishTolerance-1; i++ {
		l.Tick(w)
		l.OnEvent(hit(LeftPlayer))
	}
	if got := l.Touches(LeftPlayer); got != 1 {
		t.Errorf("Expected hits within the cooldown to count once, got %d", got)
	}

	l.Tick(w)
	l.OnEvent(hit(LeftPlayer))
	if got := l.Touches(LeftPlayer); got != 2 {
		t.Errorf("Expected second touch after cooldown, got %d", got)
	}
}

func TestOpponentTouchResetsCount(t *testing.T) {
	w := NewWorld(LeftPlayer)
	l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)

	for _, side := range []PlayerSide{LeftPlayer, LeftPlayer, LeftPlayer, RightPlayer, LeftPlayer, LeftPlayer} {
		l.OnEvent(hit(side))
		settle(l, w)
	}
	if events := l.DrainEvents(); len(events) != 0 {
		t.Fatalf("Expected no fault, got %v", events)
	}
	if l.Touches(LeftPlayer) != 2 || l.Touches(RightPlayer) != 0 {
		t.Errorf("Expected touches 2:0, got %d:%d", l.Touches(LeftPlayer), l.Touches(RightPlayer))
	}
}

func TestBlobHitStartsRally(t *testing.T) {
	l := NewLogic(DummyRules{}, DefaultLogicConfig(), LeftPlayer)
	if l.GameRunning() {
		t.Fatal("Expected a fresh match not to be running")
	}
	l.OnEvent(hit(RightPlayer))
	if !l.GameRunning() {
		t.Error("Expected a blob hit to start the rally")
	}
}

func TestGroundErrorScoring(t *testing.T) {
	tests := []struct {
		name        string
		scoring     ScoringMode
		server      PlayerSide
		errSide     PlayerSide
		wantScores  [2]uint32
		wantServing PlayerSide
	}{
		{"rally point, server errs", RallyPoint, LeftPlayer, LeftPlayer, [2]uint32{0, 1}, RightPlayer},
		{"rally point, receiver errs", RallyPoint, LeftPlayer, RightPlayer, [2]uint32{1, 0}, LeftPlayer},
		{"side out, server errs", SideOut, LeftPlayer, LeftPlayer, [2]uint32{0, 0}, RightPlayer},
		{"side out, receiver errs", SideOut, LeftPlayer, RightPlayer, [2]uint32{1, 0}, LeftPlayer},
		{"side out, right serving", SideOut, RightPlayer, LeftPlayer, [2]uint32{0, 1}, RightPlayer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLogic(FallbackRules{Scoring: tt.scoring}, DefaultLogicConfig(), tt.server)
			l.OnEvent(ground(tt.errSide))

			s := l.State()
			if s.Scores != tt.wantScores {
				t.Errorf("Expected scores %v, got %v", tt.wantScores, s.Scores)
			}
			if s.ServingPlayer != tt.wantServing {
				t.Errorf("Expected %v to serve, got %v", tt.wantServing, s.ServingPlayer)
			}
		})
	}
}

func TestRepeatedMistakeIgnored(t *testing.T) {
	l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)
	l.Mistake(LeftPlayer)
	l.Mistake(RightPlayer)

	if l.State().ServingPlayer != RightPlayer {
		t.Errorf("Expected first mistake to decide the serve, got %v", l.State().ServingPlayer)
	}
	if events := l.DrainEvents(); len(events) != 1 {
		t.Errorf("Expected one player_error, got %v", events)
	}
}

func TestWinNeedsTwoPointLead(t *testing.T) {
	tests := []struct {
		scores [2]uint32
		want   PlayerSide
	}{
		{[2]uint32{14, 0}, NoPlayer},
		{[2]uint32{15, 14}, NoPlayer},
		{[2]uint32{15, 13}, LeftPlayer},
		{[2]uint32{16, 14}, LeftPlayer},
		{[2]uint32{20, 21}, NoPlayer},
		{[2]uint32{20, 22}, RightPlayer},
	}

	for _, tt := range tests {
		w := NewWorld(LeftPlayer)
		l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)
		s := l.State()
		s.Scores = tt.scores
		l.SetState(s, NoPlayer)
		l.Tick(w)

		if got := l.State().WinningPlayer; got != tt.want {
			t.Errorf("scores %v: expected winner %v, got %v", tt.scores, tt.want, got)
		}
	}
}

func TestNoReactionAfterWin(t *testing.T) {
	w := NewWorld(LeftPlayer)
	l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)
	s := l.State()
	s.Scores = [2]uint32{15, 3}
	l.SetState(s, NoPlayer)
	l.Tick(w)

	l.OnEvent(ground(LeftPlayer))
	if l.State().Scores != s.Scores {
		t.Errorf("Expected scores frozen at %v, got %v", s.Scores, l.State().Scores)
	}
	before := l.State().GameTime
	l.Tick(w)
	if l.State().GameTime != before+1 {
		t.Errorf("Expected the clock to keep running, got %d", l.State().GameTime)
	}
}

func TestResetWaitsForCanStartRound(t *testing.T) {
	w := worldWith(func(s *PhysicState) {
		s.Blobs[LeftPlayer].Position.Y = 400
		s.BallPosition = Vector2{100, 460}
		s.BallVelocity = Vector2{0, 0.5}
	})
	l := NewLogic(FallbackRules{}, DefaultLogicConfig(), LeftPlayer)
	l.Mistake(LeftPlayer)
	l.DrainEvents()

	l.Tick(w)
	if events := l.DrainEvents(); len(events) != 0 {
		t.Fatalf("Expected no reset while a blob is airborne, got %v", events)
	}

	s := w.State()
	s.Blobs[LeftPlayer].Position.Y = GroundPlaneHeight
	w.SetState(s)
	l.Tick(w)

	events := l.DrainEvents()
	if len(events) != 1 || events[0].Type != EventBallReset || events[0].Side != RightPlayer {
		t.Fatalf("Expected ball_reset for right, got %v", events)
	}
	ls := l.State()
	if !ls.IsBallValid || ls.IsGameRunning {
		t.Errorf("Expected valid, idle ball after reset, got valid=%v running=%v", ls.IsBallValid, ls.IsGameRunning)
	}
	if got := w.State().BallPosition; got != ServePosition(RightPlayer) {
		t.Errorf("Expected ball at %v, got %v", ServePosition(RightPlayer), got)
	}
	if l.ErrorSide() != NoPlayer {
		t.Errorf("Expected error side cleared, got %v", l.ErrorSide())
	}
}

func TestCanStartRound(t *testing.T) {
	base := InitialPhysicState(LeftPlayer)
	base.BallPosition = Vector2{100, 460}

	tests := []struct {
		name   string
		mutate func(s *PhysicState)
		want   bool
	}{
		{"resting low", func(s *PhysicState) {}, true},
		{"blob airborne", func(s *PhysicState) { s.Blobs[RightPlayer].Position.Y = 300 }, false},
		{"ball bouncing", func(s *PhysicState) { s.BallVelocity.Y = -2 }, false},
		{"ball high", func(s *PhysicState) { s.BallPosition.Y = 400 }, false},
		{"ball rolling", func(s *PhysicState) { s.BallVelocity.X = 8 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			if got := CanStartRound(s); got != tt.want {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDummyRulesNeverScore(t *testing.T) {
	w := NewWorld(LeftPlayer)
	l := NewLogic(DummyRules{}, DefaultLogicConfig(), LeftPlayer)
	for i := 0; i < 10; i++ {
		l.OnEvent(hit(LeftPlayer))
		l.OnEvent(ground(RightPlayer))
		settle(l, w)
	}
	s := l.State()
	if s.Scores != [2]uint32{} || !s.IsBallValid {
		t.Errorf("Expected no score and a valid ball, got %v valid=%v", s.Scores, s.IsBallValid)
	}
}

func TestNewLogicPanicsOnNilRules(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil rules")
		}
	}()
	NewLogic(nil, DefaultLogicConfig(), LeftPlayer)
}

func TestParseScoringMode(t *testing.T) {
	tests := []struct {
		in      string
		want    ScoringMode
		wantErr bool
	}{
		{"", RallyPoint, false},
		{"rally_point", RallyPoint, false},
		{"Side_Out", SideOut, false},
		{"sideout", SideOut, false},
		{"volleyball", RallyPoint, true},
	}
	for _, tt := range tests {
		got, err := ParseScoringMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: expected error=%v, got %v", tt.in, tt.wantErr, err)
		}
		if got != tt.want {
			t.Errorf("%q: expected %v, got %v", tt.in, tt.want, got)
		}
	}
}

// =============================================================================
// SCRIPTED RULES
// =============================================================================

type hookFunc func(l *Logic, args ...any) (any, error)

type fakeHost struct {
	hooks map[string]hookFunc
	calls []string
}

func (h *fakeHost) Call(hook string, l *Logic, args ...any) (any, error) {
	h.calls = append(h.calls, hook)
	f, ok := h.hooks[hook]
	if !ok {
		return nil, ErrHookMissing
	}
	return f(l, args...)
}

func scripted(hooks map[string]hookFunc) (*ScriptedRules, *[]string) {
	var logs []string
	r := NewScriptedRules("test", &fakeHost{hooks: hooks}, FallbackRules{})
	r.Logf = func(format string, args ...any) {
		logs = append(logs, format)
	}
	return r, &logs
}

func TestScriptedRulesFallBack(t *testing.T) {
	tests := []struct {
		name  string
		hook  hookFunc
		score bool
	}{
		{"missing", nil, true},
		{"error", func(*Logic, ...any) (any, error) { return nil, errors.New("boom") }, true},
		{"panic", func(*Logic, ...any) (any, error) { panic("script crashed") }, true},
		{"defined", func(*Logic, ...any) (any, error) { return nil, nil }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hooks := map[string]hookFunc{}
			if tt.hook != nil {
				hooks[HookOnBallHitsGround] = tt.hook
			}
			r, logs := scripted(hooks)
			l := NewLogic(r, DefaultLogicConfig(), LeftPlayer)
			l.OnEvent(ground(LeftPlayer))

			scored := l.Score(RightPlayer) == 1
			if scored != tt.score {
				t.Errorf("Expected fallback scoring=%v, got %v", tt.score, scored)
			}
			if tt.score && r.Failures()[HookOnBallHitsGround] != 1 {
				t.Errorf("Expected one recorded failure, got %v", r.Failures())
			}
			if tt.score && len(*logs) == 0 {
				t.Error("Expected the failure to be logged")
			}
		})
	}
}

func TestScriptedRulesLogOncePerHook(t *testing.T) {
	r, logs := scripted(nil)
	l := NewLogic(r, DefaultLogicConfig(), LeftPlayer)
	for i := 0; i < 5; i++ {
		l.HandleInput(LeftPlayer, PlayerInput{Up: true})
	}
	n := 0
	for _, msg := range *logs {
		if strings.Contains(msg, "not defined") {
			n++
		}
	}
	if n != 1 {
		t.Errorf("Expected one log line, got %d (%v)", n, *logs)
	}
	if r.Failures()[HookHandleInput] != 5 {
		t.Errorf("Expected 5 counted failures, got %d", r.Failures()[HookHandleInput])
	}
}

func TestScriptedHandleInput(t *testing.T) {
	noJump := func(_ *Logic, args ...any) (any, error) {
		in := args[1].(PlayerInput)
		in.Up = false
		return in, nil
	}
	r, _ := scripted(map[string]hookFunc{HookHandleInput: noJump})
	l := NewLogic(r, DefaultLogicConfig(), LeftPlayer)

	got := l.HandleInput(LeftPlayer, PlayerInput{Left: true, Up: true})
	if got != (PlayerInput{Left: true}) {
		t.Errorf("Expected jump removed, got %+v", got)
	}

	wrongType := func(*Logic, ...any) (any, error) { return "up", nil }
	r, _ = scripted(map[string]hookFunc{HookHandleInput: wrongType})
	l = NewLogic(r, DefaultLogicConfig(), LeftPlayer)
	in := PlayerInput{Right: true}
	if got := l.HandleInput(LeftPlayer, in); got != in {
		t.Errorf("Expected input passed through on a bad result, got %+v", got)
	}
}

func TestFailedHookChangesAreRolledBack(t *testing.T) {
	t.Run("touch then error", func(t *testing.T) {
		hook := func(l *Logic, args ...any) (any, error) {
			l.AddTouch(args[0].(PlayerSide))
			return nil, errors.New("boom")
		}
		r, _ := scripted(map[string]hookFunc{HookOnBallHitsPlayer: hook})
		l := NewLogic(r, DefaultLogicConfig(), LeftPlayer)
		l.OnEvent(hit(LeftPlayer))

		if got := l.Touches(LeftPlayer); got != 1 {
			t.Errorf("Expected the hit counted once, got %d touches", got)
		}
	})

	t.Run("mistake then panic", func(t *testing.T) {
		hook := func(l *Logic, args ...any) (any, error) {
			l.Mistake(args[0].(PlayerSide))
			panic("script crashed")
		}
		r, _ := scripted(map[string]hookFunc{HookOnBallHitsGround: hook})
		l := NewLogic(r, DefaultLogicConfig(), LeftPlayer)
		l.OnEvent(ground(LeftPlayer))

		if got := l.Score(RightPlayer); got != 1 {
			t.Errorf("Expected the fallback to score for right, got %d", got)
		}
		errorsSeen := 0
		for _, e := range l.DrainEvents() {
			if e.Type == EventPlayerError {
				errorsSeen++
			}
		}
		if errorsSeen != 1 {
			t.Errorf("Expected one player error event, got %d", errorsSeen)
		}
	})
}

func TestScriptedIsWinning(t *testing.T) {
	var gotArgs []any
	isWinning := func(_ *Logic, args ...any) (any, error) {
		gotArgs = args
		if args[0].(int) >= 3 {
			return LeftPlayer, nil
		}
		return NoPlayer, nil
	}
	r, _ := scripted(map[string]hookFunc{HookIsWinning: isWinning})
	w := NewWorld(LeftPlayer)
	l := NewLogic(r, LogicConfig{ScoreToWin: 3}, LeftPlayer)

	s := l.State()
	s.Scores = [2]uint32{3, 1}
	l.SetState(s, NoPlayer)
	l.Tick(w)

	if len(gotArgs) != 2 || gotArgs[0] != 3 || gotArgs[1] != 1 {
		t.Errorf("Expected (3, 1) passed to the hook, got %v", gotArgs)
	}
	if l.State().WinningPlayer != LeftPlayer {
		t.Errorf("Expected left to win, got %v", l.State().WinningPlayer)
	}
}

func TestScriptedWinStillNeedsLead(t *testing.T) {
	always := func(*Logic, ...any) (any, error) { return RightPlayer, nil }
	r, _ := scripted(map[string]hookFunc{HookIsWinning: always})
	w := NewWorld(LeftPlayer)
	l := NewLogic(r, DefaultLogicConfig(), LeftPlayer)
	l.Tick(w)
	if l.State().WinningPlayer != NoPlayer {
		t.Errorf("Expected no winner at 0:0, got %v", l.State().WinningPlayer)
	}
}

func TestScriptedIsWinningOutOfRange(t *testing.T) {
	for _, bogus := range []PlayerSide{2, 6, -57} {
		t.Run(fmt.Sprintf("side %d", bogus), func(t *testing.T) {
			hook := func(*Logic, ...any) (any, error) { return bogus, nil }
			r, _ := scripted(map[string]hookFunc{HookIsWinning: hook})

			m := NewDuelMatch(r, DefaultMatchOptions())
			m.Step(PlayerInput{}, PlayerInput{})
			if r.Failures()[HookIsWinning] != 1 {
				t.Errorf("Expected one IsWinning failure, got %v", r.Failures())
			}
			if m.Winner() != NoPlayer {
				t.Errorf("Expected no winner at 0:0, got %v", m.Winner())
			}

			w := NewWorld(LeftPlayer)
			l := NewLogic(r, LogicConfig{ScoreToWin: 3}, LeftPlayer)
			s := l.State()
			s.Scores = [2]uint32{3, 1}
			l.SetState(s, NoPlayer)
			l.Tick(w)
			if l.State().WinningPlayer != LeftPlayer {
				t.Errorf("Expected the fallback to declare left the winner, got %v", l.State().WinningPlayer)
			}
		})
	}
}

func TestScriptConstants(t *testing.T) {
	c := ScriptConstants()
	if c["CONST_BALL_RADIUS"] != 31.5 {
		t.Errorf("Expected ball radius 31.5, got %v", c["CONST_BALL_RADIUS"])
	}
	if c["CONST_FIELD_WIDTH"] != 800 {
		t.Errorf("Expected field width 800, got %v", c["CONST_FIELD_WIDTH"])
	}
	if c["CONST_BALL_GRAVITY"] >= 0 {
		t.Errorf("Expected upward-positive gravity sign, got %v", c["CONST_BALL_GRAVITY"])
	}
}
