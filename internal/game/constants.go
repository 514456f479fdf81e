package game

// =============================================================================
// FIELD GEOMETRY
// =============================================================================

// The field is net-centred: x runs from LeftPlane to RightPlane with the net
// at 0, y grows downwards with the ground at GroundPlaneHeight. Mirroring a
// position is therefore an exact sign flip.
const (
	LeftPlane  float32 = -400
	RightPlane float32 = 400
	FieldWidth         = RightPlane - LeftPlane

	GroundPlaneHeightMax float32 = 500
	GroundPlaneHeight            = GroundPlaneHeightMax - BlobbyHeight/2 // blob centre when standing
)

// =============================================================================
// BLOB GEOMETRY & MOTION
// =============================================================================

const (
	BlobbyHeight      float32 = 89
	BlobbyUpperSphere float32 = 19 // head centre offset above blob centre
	BlobbyUpperRadius float32 = 25
	BlobbyLowerSphere float32 = 13 // body centre offset below blob centre
	BlobbyLowerRadius float32 = 33

	BlobbySpeed            float32 = 4.5
	BlobbyGravity          float32 = 0.88
	BlobbyJumpAcceleration float32 = 15.1
	BlobbyJumpBuffer       float32 = 0.44 // gravity reduction while jump is held

	// The animation phase runs 0 -> BlobbyAnimationTurn -> 0 as a sawtooth
	// over [0, BlobbyAnimationCycle); renderers fold it into a triangle wave.
	BlobbyAnimationSpeed float32 = 0.5
	BlobbyAnimationTurn  float32 = 4.5
	BlobbyAnimationCycle         = 2 * BlobbyAnimationTurn
)

// =============================================================================
// BALL
// =============================================================================

const (
	BallRadius                  float32 = 31.5
	BallGravity                 float32 = 0.28
	BallCollisionVelocity       float32 = 13.125
	StandardBallHeight          float32 = 269 + BallRadius
	StandardBallAngularVelocity float32 = 0.1
	BallRotationFactor          float32 = 1 / BallRadius // rolling without slip

	GroundBounceNormal     float32 = 0.5
	GroundBounceTangential float32 = 0.55
)

// =============================================================================
// NET
// =============================================================================

const (
	NetPositionX float32 = 0
	NetPositionY float32 = 438
	NetRadius    float32 = 7
	NetSphereTop float32 = 284 // y of the post's rounded top

	NetNormalDamping   float32 = 0.7
	NetParallelDamping float32 = 0.9
)

// =============================================================================
// RULES
// =============================================================================

const (
	// SquishTolerance is the cooldown armed after a credited collision.
	SquishTolerance = 10
	// DefaultScoreToWin is the target score of the classic rules.
	DefaultScoreToWin = 15
	// MaxTouches is the number of consecutive touches a side may make.
	MaxTouches = 3

	// Reset band: the ball must be nearly still and low before a new serve.
	ResetVelocityBand float32 = 1.5
	ResetHeightBand   float32 = 430

	// ServeOffset is the distance of the serve position from the net.
	ServeOffset float32 = 200
)

const twoPi float32 = 6.2831855
