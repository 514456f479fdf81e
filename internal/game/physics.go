package game

// World integrates the blobs and the ball. It holds no references to anything
// outside its own PhysicState, so identical state and inputs always produce
// identical results.
type World struct {
	state  PhysicState
	events []MatchEvent
}

// NewWorld returns a world with the ball waiting for server.
func NewWorld(server PlayerSide) *World {
	return &World{state: InitialPhysicState(server)}
}

func (w *World) State() PhysicState { return w.state }

func (w *World) SetState(s PhysicState) { w.state = s }

// ResetBall places the ball at rest on the serve position of side.
func (w *World) ResetBall(side PlayerSide) {
	w.state.BallPosition = ServePosition(side)
	w.state.BallVelocity = Vector2{}
	w.state.BallAngularVelocity = 0
}

// Step advances the world by one tick and returns the collisions it saw, in
// the order they were detected. The returned slice is reused by the next call.
func (w *World) Step(left, right PlayerInput, ballValid, gameRunning bool) []MatchEvent {
	w.events = w.events[:0]
	w.state.Input[LeftPlayer] = left
	w.state.Input[RightPlayer] = right

	w.stepBlob(LeftPlayer, left)
	w.stepBlob(RightPlayer, right)

	if gameRunning {
		w.stepBall()
	}
	w.bounceGround()

	if ballValid {
		w.collideBlob(LeftPlayer)
		w.collideBlob(RightPlayer)
	}

	w.collideWalls()
	w.collideNet()
	w.clampBlob(LeftPlayer)
	w.clampBlob(RightPlayer)
	w.rotateBall(gameRunning)

	return w.events
}

func (w *World) emit(t EventType, side PlayerSide, intensity float32) {
	w.events = append(w.events, MatchEvent{Type: t, Side: side, Intensity: intensity})
}

func (w *World) stepBlob(side PlayerSide, in PlayerInput) {
	b := &w.state.Blobs[side]
	grounded := b.Position.Y >= GroundPlaneHeight

	b.Velocity.X = 0
	if in.Left {
		b.Velocity.X -= BlobbySpeed
	}
	if in.Right {
		b.Velocity.X += BlobbySpeed
	}

	if grounded && in.Up {
		b.Velocity.Y = -BlobbyJumpAcceleration
		grounded = false
	}

	b.Position.X += b.Velocity.X
	if !grounded {
		g := BlobbyGravity
		if in.Up {
			g -= BlobbyJumpBuffer
		}
		b.Position.Y += b.Velocity.Y + float32(0.5*g)
		b.Velocity.Y += g
	}

	if b.Position.Y >= GroundPlaneHeight {
		b.Position.Y = GroundPlaneHeight
		b.Velocity.Y = 0
	}

	w.animateBlob(b, in)
}

func (w *World) animateBlob(b *BlobState, in PlayerInput) {
	airborne := b.Position.Y < GroundPlaneHeight
	moving := in.Left != in.Right
	if !airborne && !moving {
		b.AnimationPhase = 0
		return
	}
	b.AnimationPhase += BlobbyAnimationSpeed
	if b.AnimationPhase >= BlobbyAnimationCycle {
		b.AnimationPhase -= BlobbyAnimationCycle
	}
}

func (w *World) stepBall() {
	s := &w.state
	s.BallPosition.X += s.BallVelocity.X
	s.BallPosition.Y += s.BallVelocity.Y + float32(0.5*BallGravity)
	s.BallVelocity.Y += BallGravity
}

// bounceGround keeps the ball above the ground line. The vertical component is
// reflected and damped, the horizontal one damped.
func (w *World) bounceGround() {
	s := &w.state
	floor := GroundPlaneHeightMax - BallRadius
	if s.BallPosition.Y <= floor {
		return
	}
	s.BallPosition.Y = floor
	impact := s.BallVelocity.Y
	if s.BallVelocity.Y > 0 {
		s.BallVelocity.Y = -float32(s.BallVelocity.Y * GroundBounceNormal)
	}
	s.BallVelocity.X = float32(s.BallVelocity.X * GroundBounceTangential)
	w.emit(EventBallHitGround, sideOf(s.BallPosition.X), intensity(impact))
}

type blobSphere struct {
	offset float32
	radius float32
}

var blobSpheres = [2]blobSphere{
	{offset: -BlobbyUpperSphere, radius: BlobbyUpperRadius},
	{offset: BlobbyLowerSphere, radius: BlobbyLowerRadius},
}

// collideBlob tests the head, then the body. A hit replaces the ball velocity
// with a fixed-speed kick away from the sphere centre.
func (w *World) collideBlob(side PlayerSide) {
	s := &w.state
	blob := s.Blobs[side]
	for _, sp := range blobSpheres {
		centre := Vector2{blob.Position.X, blob.Position.Y + sp.offset}
		d := s.BallPosition.Sub(centre)
		reach := sp.radius + BallRadius
		if d.LengthSq() >= float32(reach*reach) {
			continue
		}

		dir := d.Normalise()
		if dir == (Vector2{}) {
			dir = Vector2{0, -1}
		}
		relative := s.BallVelocity.Sub(blob.Velocity).Length()
		s.BallVelocity = dir.Scale(BallCollisionVelocity)
		s.BallPosition = centre.Add(dir.Scale(reach))
		w.emit(EventBallHitBlob, side, intensity(relative))
		return
	}
}

func (w *World) collideWalls() {
	s := &w.state
	switch {
	case s.BallPosition.X-BallRadius < LeftPlane:
		s.BallPosition.X = LeftPlane + BallRadius
		if s.BallVelocity.X < 0 {
			s.BallVelocity.X = -s.BallVelocity.X
		}
		w.emit(EventBallHitWall, LeftPlayer, intensity(s.BallVelocity.X))
	case s.BallPosition.X+BallRadius > RightPlane:
		s.BallPosition.X = RightPlane - BallRadius
		if s.BallVelocity.X > 0 {
			s.BallVelocity.X = -s.BallVelocity.X
		}
		w.emit(EventBallHitWall, RightPlayer, intensity(s.BallVelocity.X))
	}
}

// collideNet handles the vertical post and its rounded top. The velocity is
// split along the contact normal; the normal part is reflected and damped by
// NetNormalDamping, the parallel part damped by NetParallelDamping.
func (w *World) collideNet() {
	s := &w.state
	reach := BallRadius + NetRadius
	dx := s.BallPosition.X - NetPositionX

	var normal Vector2
	var kind EventType
	top := Vector2{NetPositionX, NetSphereTop}

	switch {
	case s.BallPosition.Y > NetSphereTop && abs32(dx) < reach:
		normal = Vector2{1, 0}
		if dx < 0 || (dx == 0 && s.BallVelocity.X > 0) {
			normal.X = -1
		}
		s.BallPosition.X = NetPositionX + float32(normal.X*reach)
		kind = EventBallHitNet
	case s.BallPosition.Sub(top).LengthSq() < float32(reach*reach):
		normal = s.BallPosition.Sub(top).Normalise()
		if normal == (Vector2{}) {
			normal = Vector2{0, -1}
		}
		s.BallPosition = top.Add(normal.Scale(reach))
		kind = EventBallHitNetTop
	default:
		return
	}

	along := s.BallVelocity.Dot(normal)
	if along < 0 {
		vn := normal.Scale(along)
		vp := s.BallVelocity.Sub(vn)
		s.BallVelocity = vp.Scale(NetParallelDamping).Sub(vn.Scale(NetNormalDamping))
	}
	w.emit(kind, sideOf(s.BallPosition.X), intensity(along))
}

func (w *World) clampBlob(side PlayerSide) {
	b := &w.state.Blobs[side]
	var lo, hi float32
	if side == LeftPlayer {
		lo = LeftPlane + BlobbyLowerRadius
		hi = NetPositionX - NetRadius - BlobbyLowerRadius
	} else {
		lo = NetPositionX + NetRadius + BlobbyLowerRadius
		hi = RightPlane - BlobbyLowerRadius
	}
	if b.Position.X < lo {
		b.Position.X = lo
	}
	if b.Position.X > hi {
		b.Position.X = hi
	}
}

func (w *World) rotateBall(gameRunning bool) {
	s := &w.state
	if gameRunning {
		spin := float32(s.BallVelocity.Length() * BallRotationFactor)
		if s.BallVelocity.X < 0 {
			spin = -spin
		}
		s.BallAngularVelocity = spin
	} else {
		s.BallAngularVelocity = StandardBallAngularVelocity
	}
	s.BallRotation = wrapAngle(s.BallRotation + s.BallAngularVelocity)
}

func wrapAngle(a float32) float32 {
	for a >= twoPi {
		a -= twoPi
	}
	for a < 0 {
		a += twoPi
	}
	return a
}

// intensity maps a speed to 0..1 relative to the collision kick.
func intensity(speed float32) float32 {
	v := abs32(speed) / (2 * BallCollisionVelocity)
	if v > 1 {
		return 1
	}
	return v
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
