package rules

import (
	"fmt"
	"log"
	"strings"

	"volley-duel/internal/game"
)

// Rule engine kinds accepted by New.
const (
	KindDummy    = "dummy"
	KindFallback = "fallback"
	KindScripted = "scripted"
)

// New builds the rules of the given kind for rs. Unknown kinds build scripted
// rules; a nil ruleset means Classic.
func New(kind string, rs *Ruleset) game.Rules {
	if rs == nil {
		rs = Classic()
	}
	switch strings.ToLower(kind) {
	case KindDummy:
		return game.DummyRules{}
	case KindFallback:
		return rs.Fallback()
	}
	return game.NewScriptedRules(rs.Name, NewTableHost(rs), rs.Fallback())
}

// Resolve loads the ruleset at path. An empty path, a missing file or an
// invalid ruleset yields Classic; failures are logged, never fatal.
func Resolve(path string) *Ruleset {
	if path == "" {
		return Classic()
	}
	rs, err := LoadFile(path)
	if err != nil {
		log.Printf("⚠️ Ruleset %s unusable, using classic rules: %v", path, err)
		return Classic()
	}
	log.Printf("📜 Loaded ruleset %q by %s", rs.Name, authorOrUnknown(rs.Author))
	return rs
}

// FromText parses ruleset text stored elsewhere, e.g. in a replay. Empty or
// invalid text yields Classic.
func FromText(text string) *Ruleset {
	if strings.TrimSpace(text) == "" {
		return Classic()
	}
	rs, err := Parse(text)
	if err != nil {
		log.Printf("⚠️ Stored ruleset unusable, using classic rules: %v", err)
		return Classic()
	}
	return rs
}

// Describe is a one-line summary for logs and CLI output.
func Describe(rs *Ruleset) string {
	return fmt.Sprintf("%s: %s to %d, %d touches, squish %d, ground error %s",
		rs.Name, rs.mode, rs.ScoreToWin, rs.MaxTouches, rs.SquishTolerance, rs.GroundError)
}

func authorOrUnknown(a string) string {
	if a == "" {
		return "unknown"
	}
	return a
}
