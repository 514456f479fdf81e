package game

import "fmt"

// EventType enum for match event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventBallHitBlob
	EventBallHitWall
	EventBallHitGround
	EventBallHitNet
	EventBallHitNetTop
	EventPlayerError // logic event
	EventBallReset   // logic event
)

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventBallHitBlob:
		return "ball_hit_blob"
	case EventBallHitWall:
		return "ball_hit_wall"
	case EventBallHitGround:
		return "ball_hit_ground"
	case EventBallHitNet:
		return "ball_hit_net"
	case EventBallHitNetTop:
		return "ball_hit_net_top"
	case EventPlayerError:
		return "player_error"
	case EventBallReset:
		return "ball_reset"
	default:
		return "unknown"
	}
}

// MarshalText lets events print by name in JSON.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses the names MarshalText produces.
func (t *EventType) UnmarshalText(text []byte) error {
	for c := EventTypeUnknown; c <= EventBallReset; c++ {
		if c.String() == string(text) {
			*t = c
			return nil
		}
	}
	return fmt.Errorf("unknown event type %q", text)
}

// IsPhysics reports whether the physics World produces this event type.
func (t EventType) IsPhysics() bool {
	return t >= EventBallHitBlob && t <= EventBallHitNetTop
}

// MatchEvent is produced and consumed within one step. Only its effects on
// state are ever persisted.
type MatchEvent struct {
	Type      EventType  `json:"type"`
	Side      PlayerSide `json:"side"`
	Intensity float32    `json:"intensity,omitempty"` // 0..1, collisions only
}
