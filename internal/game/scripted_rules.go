package game

import (
	"errors"
	"fmt"
	"log"
)

// Hook names a ScriptHost may define.
const (
	HookHandleInput      = "HandleInput"
	HookOnBallHitsPlayer = "OnBallHitsPlayer"
	HookOnBallHitsWall   = "OnBallHitsWall"
	HookOnBallHitsNet    = "OnBallHitsNet"
	HookOnBallHitsGround = "OnBallHitsGround"
	HookOnGame           = "OnGame"
	HookIsWinning        = "IsWinning"
)

// ErrHookMissing is returned by a ScriptHost that does not define a hook.
var ErrHookMissing = errors.New("game: rule hook not defined")

// ScriptHost is the rule-script collaborator. Call runs the named hook with
// the Logic it may act on.
//
// Result contract: HandleInput returns a PlayerInput, IsWinning returns a
// PlayerSide, every other hook's result is ignored.
type ScriptHost interface {
	Call(hook string, l *Logic, args ...any) (any, error)
}

// ScriptConstants are the numeric constants exposed to rule scripts.
func ScriptConstants() map[string]float64 {
	return map[string]float64{
		"CONST_FIELD_WIDTH":        float64(FieldWidth),
		"CONST_GROUND_HEIGHT":      float64(GroundPlaneHeightMax),
		"CONST_BALL_GRAVITY":       float64(-BallGravity), // y points down
		"CONST_BALL_RADIUS":        float64(BallRadius),
		"CONST_BLOBBY_JUMP":        float64(BlobbyJumpAcceleration),
		"CONST_BLOBBY_BODY_RADIUS": float64(BlobbyLowerRadius),
		"CONST_BLOBBY_HEAD_RADIUS": float64(BlobbyUpperRadius),
		"CONST_NET_HEIGHT":         float64(GroundPlaneHeightMax - NetSphereTop),
		"CONST_NET_RADIUS":         float64(NetRadius),
	}
}

// ScriptedRules delegate every hook to Host. A hook that is missing, returns
// an error, panics or returns a result of the wrong type is replaced by the
// Fallback behaviour for that call. Failures are logged once per hook.
type ScriptedRules struct {
	Host       ScriptHost
	Fallback   FallbackRules
	ScriptName string

	// Logf receives failure reports; nil means log.Printf.
	Logf func(format string, args ...any)

	reported map[string]bool
	failures map[string]int
}

// NewScriptedRules wraps host. A nil host is a programming error.
func NewScriptedRules(name string, host ScriptHost, fallback FallbackRules) *ScriptedRules {
	if host == nil {
		panic("game: NewScriptedRules called with nil host")
	}
	return &ScriptedRules{Host: host, Fallback: fallback, ScriptName: name}
}

func (r *ScriptedRules) Name() string { return r.ScriptName }

// Failures returns how often each hook fell back.
func (r *ScriptedRules) Failures() map[string]int {
	out := make(map[string]int, len(r.failures))
	for k, v := range r.failures {
		out[k] = v
	}
	return out
}

// call runs one hook. When it errors or panics, whatever it changed on l is
// rolled back so the fallback starts from the state the hook saw.
func (r *ScriptedRules) call(hook string, l *Logic, args ...any) (res any, ok bool) {
	before := l.mark()
	defer func() {
		if p := recover(); p != nil {
			l.restore(before)
			r.fail(hook, fmt.Errorf("panic: %v", p))
			res, ok = nil, false
		}
	}()
	res, err := r.Host.Call(hook, l, args...)
	if err != nil {
		l.restore(before)
		r.fail(hook, err)
		return nil, false
	}
	return res, true
}

func (r *ScriptedRules) fail(hook string, err error) {
	if r.failures == nil {
		r.failures = make(map[string]int)
		r.reported = make(map[string]bool)
	}
	r.failures[hook]++
	if r.reported[hook] {
		return
	}
	r.reported[hook] = true
	logf := r.Logf
	if logf == nil {
		logf = log.Printf
	}
	if errors.Is(err, ErrHookMissing) {
		logf("💡 Rules %q: %s not defined, using fallback", r.ScriptName, hook)
		return
	}
	logf("⚠️ Rules %q: %s failed, using fallback: %v", r.ScriptName, hook, err)
}

func (r *ScriptedRules) HandleInput(l *Logic, side PlayerSide, in PlayerInput) PlayerInput {
	res, ok := r.call(HookHandleInput, l, side, in)
	if ok {
		if out, typed := res.(PlayerInput); typed {
			return out
		}
		r.fail(HookHandleInput, fmt.Errorf("result %T is not a PlayerInput", res))
	}
	return r.Fallback.HandleInput(l, side, in)
}

func (r *ScriptedRules) OnBallHitsPlayer(l *Logic, side PlayerSide) {
	if _, ok := r.call(HookOnBallHitsPlayer, l, side); !ok {
		r.Fallback.OnBallHitsPlayer(l, side)
	}
}

func (r *ScriptedRules) OnBallHitsWall(l *Logic, side PlayerSide) {
	if _, ok := r.call(HookOnBallHitsWall, l, side); !ok {
		r.Fallback.OnBallHitsWall(l, side)
	}
}

func (r *ScriptedRules) OnBallHitsNet(l *Logic, side PlayerSide) {
	if _, ok := r.call(HookOnBallHitsNet, l, side); !ok {
		r.Fallback.OnBallHitsNet(l, side)
	}
}

func (r *ScriptedRules) OnBallHitsGround(l *Logic, side PlayerSide) {
	if _, ok := r.call(HookOnBallHitsGround, l, side); !ok {
		r.Fallback.OnBallHitsGround(l, side)
	}
}

func (r *ScriptedRules) OnGame(l *Logic) {
	if _, ok := r.call(HookOnGame, l); !ok {
		r.Fallback.OnGame(l)
	}
}

func (r *ScriptedRules) CheckWin(l *Logic) PlayerSide {
	res, ok := r.call(HookIsWinning, l, l.Score(LeftPlayer), l.Score(RightPlayer))
	if ok {
		switch side, typed := res.(PlayerSide); {
		case !typed:
			r.fail(HookIsWinning, fmt.Errorf("result %T is not a PlayerSide", res))
		case side != NoPlayer && !side.IsPlayer():
			r.fail(HookIsWinning, fmt.Errorf("%w: %d", ErrInvalidSide, side))
		default:
			return side
		}
	}
	return r.Fallback.CheckWin(l)
}
