// Package rules loads TOML rulesets and turns them into game.Rules.
package rules

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"volley-duel/internal/game"
)

//go:embed classic.toml
var classicText string

// Ground error attribution.
const (
	GroundErrorOwn       = "own"
	GroundErrorLastTouch = "last_touch"
)

// ErrInvalidRuleset is wrapped by every validation failure.
var ErrInvalidRuleset = errors.New("invalid ruleset")

// Ruleset is the file form of a rule configuration.
type Ruleset struct {
	Name        string `toml:"name"`
	Author      string `toml:"author"`
	Description string `toml:"description"`

	ScoreToWin      int    `toml:"score_to_win"`
	MaxTouches      int    `toml:"max_touches"`
	Scoring         string `toml:"scoring"`
	SquishTolerance int    `toml:"squish_tolerance"`
	GroundError     string `toml:"ground_error"`
	WallError       bool   `toml:"wall_error"`

	// Text is the source the ruleset was parsed from. Replays store it
	// verbatim so playback rebuilds the same rules.
	Text string `toml:"-"`

	mode game.ScoringMode
}

// Classic returns the built-in ruleset.
func Classic() *Ruleset {
	rs, err := Parse(classicText)
	if err != nil {
		panic(fmt.Sprintf("rules: embedded classic ruleset: %v", err))
	}
	return rs
}

// Parse decodes and validates ruleset text. Unknown keys are rejected.
func Parse(text string) (*Ruleset, error) {
	rs := &Ruleset{
		Name:            "unnamed",
		ScoreToWin:      game.DefaultScoreToWin,
		MaxTouches:      game.MaxTouches,
		SquishTolerance: game.SquishTolerance,
		GroundError:     GroundErrorOwn,
	}
	md, err := toml.Decode(text, rs)
	if err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalidRuleset, strings.Join(keys, ", "))
	}
	if err := rs.validate(); err != nil {
		return nil, err
	}
	rs.Text = text
	return rs, nil
}

// LoadFile reads and parses a ruleset file.
func LoadFile(path string) (*Ruleset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read ruleset: %w", err)
	}
	rs, err := Parse(string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

func (rs *Ruleset) validate() error {
	if rs.ScoreToWin < 1 {
		return fmt.Errorf("%w: score_to_win must be positive, got %d", ErrInvalidRuleset, rs.ScoreToWin)
	}
	if rs.MaxTouches < 1 {
		return fmt.Errorf("%w: max_touches must be positive, got %d", ErrInvalidRuleset, rs.MaxTouches)
	}
	if rs.SquishTolerance < 1 {
		return fmt.Errorf("%w: squish_tolerance must be positive, got %d", ErrInvalidRuleset, rs.SquishTolerance)
	}
	mode, err := game.ParseScoringMode(rs.Scoring)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRuleset, err)
	}
	rs.mode = mode
	switch rs.GroundError {
	case GroundErrorOwn, GroundErrorLastTouch:
	default:
		return fmt.Errorf("%w: ground_error must be %q or %q, got %q",
			ErrInvalidRuleset, GroundErrorOwn, GroundErrorLastTouch, rs.GroundError)
	}
	return nil
}

// ScoringMode returns the parsed scoring mode.
func (rs *Ruleset) ScoringMode() game.ScoringMode { return rs.mode }

// LogicConfig returns the engine settings the ruleset implies.
func (rs *Ruleset) LogicConfig() game.LogicConfig {
	return game.LogicConfig{
		ScoreToWin:      rs.ScoreToWin,
		SquishTolerance: rs.SquishTolerance,
	}
}

// Fallback returns the built-in rules configured like this ruleset.
func (rs *Ruleset) Fallback() game.FallbackRules {
	return game.FallbackRules{Scoring: rs.mode, MaxTouches: rs.MaxTouches}
}

// WithScoring returns a copy using mode, re-encoding Text so a replay of the
// match carries the override.
func (rs *Ruleset) WithScoring(mode game.ScoringMode) *Ruleset {
	out := *rs
	out.Scoring = mode.String()
	out.mode = mode
	out.Text = out.encode()
	return &out
}

// WithScoreToWin returns a copy with a different target score. Values below
// one keep the ruleset's own target.
func (rs *Ruleset) WithScoreToWin(n int) *Ruleset {
	if n < 1 || n == rs.ScoreToWin {
		return rs
	}
	out := *rs
	out.ScoreToWin = n
	out.Text = out.encode()
	return &out
}

func (rs *Ruleset) encode() string {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(rs); err != nil {
		return rs.Text
	}
	return buf.String()
}
