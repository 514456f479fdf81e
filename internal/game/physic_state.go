package game

import "volley-duel/internal/archive"

// BlobState is the kinematic state of one avatar.
type BlobState struct {
	Position       Vector2 `json:"position"`
	Velocity       Vector2 `json:"velocity"`
	AnimationPhase float32 `json:"animationPhase"`
}

// PhysicState is everything the physics World integrates.
type PhysicState struct {
	Blobs               [2]BlobState   `json:"blobs"`
	BallPosition        Vector2        `json:"ballPosition"`
	BallVelocity        Vector2        `json:"ballVelocity"`
	BallRotation        float32        `json:"ballRotation"`
	BallAngularVelocity float32        `json:"ballAngularVelocity"`
	Input               [2]PlayerInput `json:"input"` // applied, after rule transforms
}

// BlobGrounded reports whether the blob of side stands on the ground.
func (s *PhysicState) BlobGrounded(side PlayerSide) bool {
	return s.Blobs[side].Position.Y >= GroundPlaneHeight
}

// ServePosition returns where the ball waits for a serve by side.
func ServePosition(side PlayerSide) Vector2 {
	if side == RightPlayer {
		return Vector2{NetPositionX + ServeOffset, StandardBallHeight}
	}
	return Vector2{NetPositionX - ServeOffset, StandardBallHeight}
}

// InitialPhysicState returns blobs standing mid-half and the ball waiting for
// a serve by server.
func InitialPhysicState(server PlayerSide) PhysicState {
	var s PhysicState
	s.Blobs[LeftPlayer].Position = Vector2{NetPositionX - ServeOffset, GroundPlaneHeight}
	s.Blobs[RightPlayer].Position = Vector2{NetPositionX + ServeOffset, GroundPlaneHeight}
	s.BallPosition = ServePosition(server)
	return s
}

// SwapSides mirrors the state across the net. Applying it twice yields the
// original bit pattern.
func (s PhysicState) SwapSides() PhysicState {
	mirror := func(b BlobState) BlobState {
		b.Position.X = -b.Position.X
		b.Velocity.X = -b.Velocity.X
		return b
	}
	s.Blobs[LeftPlayer], s.Blobs[RightPlayer] = mirror(s.Blobs[RightPlayer]), mirror(s.Blobs[LeftPlayer])
	s.BallPosition.X = -s.BallPosition.X
	s.BallVelocity.X = -s.BallVelocity.X
	s.BallAngularVelocity = -s.BallAngularVelocity
	s.Input[LeftPlayer], s.Input[RightPlayer] = s.Input[RightPlayer].SwapSides(), s.Input[LeftPlayer].SwapSides()
	return s
}

func serializeVector(a archive.Archive, v *Vector2) {
	a.Float32(&v.X)
	a.Float32(&v.Y)
}

func (b *BlobState) Serialize(a archive.Archive) {
	serializeVector(a, &b.Position)
	serializeVector(a, &b.Velocity)
	a.Float32(&b.AnimationPhase)
}

// Serialize writes or reads the full-precision form.
func (s *PhysicState) Serialize(a archive.Archive) {
	for i := range s.Blobs {
		s.Blobs[i].Serialize(a)
	}
	serializeVector(a, &s.BallPosition)
	serializeVector(a, &s.BallVelocity)
	a.Float32(&s.BallRotation)
	a.Float32(&s.BallAngularVelocity)
	for i := range s.Input {
		s.Input[i].Serialize(a)
	}
}
