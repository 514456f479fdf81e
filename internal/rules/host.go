package rules

import (
	"fmt"

	"volley-duel/internal/game"
)

// Hook is one rule callback. args follow the ScriptHost contract.
type Hook func(l *game.Logic, args ...any) (any, error)

// TableHost is a ScriptHost backed by a table of Go hooks derived from a
// Ruleset. Hooks can be replaced or removed; a removed hook reports
// game.ErrHookMissing and the scripted rules fall back for it.
type TableHost struct {
	rs    *Ruleset
	hooks map[string]Hook
}

// NewTableHost builds the hook table for rs.
func NewTableHost(rs *Ruleset) *TableHost {
	h := &TableHost{rs: rs, hooks: make(map[string]Hook)}
	h.hooks[game.HookHandleInput] = h.handleInput
	h.hooks[game.HookOnBallHitsPlayer] = h.onBallHitsPlayer
	h.hooks[game.HookOnBallHitsWall] = h.onBallHitsWall
	h.hooks[game.HookOnBallHitsNet] = noop
	h.hooks[game.HookOnBallHitsGround] = h.onBallHitsGround
	h.hooks[game.HookOnGame] = noop
	h.hooks[game.HookIsWinning] = h.isWinning
	return h
}

// Define installs or replaces a hook.
func (h *TableHost) Define(name string, hook Hook) { h.hooks[name] = hook }

// Undefine removes a hook.
func (h *TableHost) Undefine(name string) { delete(h.hooks, name) }

func (h *TableHost) Call(hook string, l *game.Logic, args ...any) (any, error) {
	fn, ok := h.hooks[hook]
	if !ok {
		return nil, game.ErrHookMissing
	}
	return fn(l, args...)
}

func noop(*game.Logic, ...any) (any, error) { return nil, nil }

func sideArg(hook string, args []any) (game.PlayerSide, error) {
	if len(args) < 1 {
		return game.NoPlayer, fmt.Errorf("%s: missing side argument", hook)
	}
	side, ok := args[0].(game.PlayerSide)
	if !ok {
		return game.NoPlayer, fmt.Errorf("%s: side argument is %T", hook, args[0])
	}
	return side, nil
}

func (h *TableHost) handleInput(_ *game.Logic, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s: expected side and input", game.HookHandleInput)
	}
	in, ok := args[1].(game.PlayerInput)
	if !ok {
		return nil, fmt.Errorf("%s: input argument is %T", game.HookHandleInput, args[1])
	}
	return in, nil
}

func (h *TableHost) onBallHitsPlayer(l *game.Logic, args ...any) (any, error) {
	side, err := sideArg(game.HookOnBallHitsPlayer, args)
	if err != nil {
		return nil, err
	}
	if l.AddTouch(side) > h.rs.MaxTouches {
		h.fault(l, side)
	}
	return nil, nil
}

func (h *TableHost) onBallHitsWall(l *game.Logic, args ...any) (any, error) {
	side, err := sideArg(game.HookOnBallHitsWall, args)
	if err != nil {
		return nil, err
	}
	if h.rs.WallError {
		h.fault(l, side)
	}
	return nil, nil
}

func (h *TableHost) onBallHitsGround(l *game.Logic, args ...any) (any, error) {
	side, err := sideArg(game.HookOnBallHitsGround, args)
	if err != nil {
		return nil, err
	}
	if h.rs.GroundError == GroundErrorLastTouch {
		side = lastToucher(l, side)
	}
	h.fault(l, side)
	return nil, nil
}

func (h *TableHost) isWinning(l *game.Logic, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, fmt.Errorf("%s: expected two scores", game.HookIsWinning)
	}
	left, lok := args[0].(int)
	right, rok := args[1].(int)
	if !lok || !rok {
		return nil, fmt.Errorf("%s: scores are %T/%T", game.HookIsWinning, args[0], args[1])
	}
	switch {
	case left >= h.rs.ScoreToWin && left >= right+2:
		return game.LeftPlayer, nil
	case right >= h.rs.ScoreToWin && right >= left+2:
		return game.RightPlayer, nil
	}
	return game.NoPlayer, nil
}

func (h *TableHost) fault(l *game.Logic, side game.PlayerSide) {
	h.rs.Fallback().Fault(l, side)
}

// lastToucher is the side holding the current touch run; AddTouch clears the
// opponent's count, so at most one side is non-zero.
func lastToucher(l *game.Logic, fallback game.PlayerSide) game.PlayerSide {
	switch {
	case l.Touches(game.LeftPlayer) > 0:
		return game.LeftPlayer
	case l.Touches(game.RightPlayer) > 0:
		return game.RightPlayer
	}
	return fallback
}
