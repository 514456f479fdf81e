package game

// LogicConfig tunes the rule engine.
type LogicConfig struct {
	ScoreToWin      int
	SquishTolerance int
}

// DefaultLogicConfig returns the classic settings.
func DefaultLogicConfig() LogicConfig {
	return LogicConfig{
		ScoreToWin:      DefaultScoreToWin,
		SquishTolerance: SquishTolerance,
	}
}

// Logic runs the rally state machine: Serving -> Rallying -> (Error | Reset).
// It gates every physics event through the collision cooldowns and hands the
// survivors to the Rules. Rules act back through Logic's methods.
type Logic struct {
	state     GameLogicState
	rules     Rules
	cfg       LogicConfig
	world     PhysicState
	errorSide PlayerSide
	events    []MatchEvent
}

// NewLogic returns a Logic with server to serve first. A nil Rules is a
// programming error.
func NewLogic(rules Rules, cfg LogicConfig, server PlayerSide) *Logic {
	if rules == nil {
		panic("game: NewLogic called with nil Rules")
	}
	if cfg.ScoreToWin <= 0 {
		cfg.ScoreToWin = DefaultScoreToWin
	}
	if cfg.SquishTolerance <= 0 {
		cfg.SquishTolerance = SquishTolerance
	}
	return &Logic{
		state:     InitialLogicState(server),
		rules:     rules,
		cfg:       cfg,
		errorSide: NoPlayer,
	}
}

func (l *Logic) State() GameLogicState { return l.state }

func (l *Logic) SetState(s GameLogicState, errorSide PlayerSide) {
	l.state = s
	l.errorSide = errorSide
	l.events = l.events[:0]
}

func (l *Logic) Rules() Rules { return l.rules }

func (l *Logic) Config() LogicConfig { return l.cfg }

// ErrorSide is the side of the last error, NoPlayer after a reset.
func (l *Logic) ErrorSide() PlayerSide { return l.errorSide }

// =============================================================================
// QUERIES FOR RULES
// =============================================================================

func (l *Logic) Score(side PlayerSide) int         { return int(l.state.Scores[side]) }
func (l *Logic) Touches(side PlayerSide) int       { return int(l.state.Touches[side]) }
func (l *Logic) ServingPlayer() PlayerSide         { return l.state.ServingPlayer }
func (l *Logic) ScoreToWin() int                   { return l.cfg.ScoreToWin }
func (l *Logic) BallValid() bool                   { return l.state.IsBallValid }
func (l *Logic) GameRunning() bool                 { return l.state.IsGameRunning }
func (l *Logic) BallPosition() Vector2             { return l.world.BallPosition }
func (l *Logic) BallVelocity() Vector2             { return l.world.BallVelocity }
func (l *Logic) Blob(side PlayerSide) BlobState    { return l.world.Blobs[side] }
func (l *Logic) BlobGrounded(side PlayerSide) bool { return l.world.BlobGrounded(side) }

// IsWinningScore reports whether side has reached the target with a lead of
// at least two.
func (l *Logic) IsWinningScore(side PlayerSide) bool {
	mine := l.Score(side)
	theirs := l.Score(side.Opponent())
	return mine >= l.cfg.ScoreToWin && mine >= theirs+2
}

// =============================================================================
// ACTIONS FOR RULES
// =============================================================================

// AddTouch credits a touch to side, clears the opponent's run and returns the
// number of consecutive touches of side.
func (l *Logic) AddTouch(side PlayerSide) int {
	l.state.Touches[side.Opponent()] = 0
	l.state.Touches[side]++
	return int(l.state.Touches[side])
}

// ScorePoint adds amount points to side.
func (l *Logic) ScorePoint(side PlayerSide, amount int) {
	if amount <= 0 {
		return
	}
	l.state.Scores[side] += uint32(amount)
}

// SetServingPlayer overrides who serves next.
func (l *Logic) SetServingPlayer(side PlayerSide) {
	if side == LeftPlayer || side == RightPlayer {
		l.state.ServingPlayer = side
	}
}

// Mistake ends the rally with an error by side. Touches and cooldowns are
// cleared and the opponent serves next. A second mistake in the same rally
// is ignored.
func (l *Logic) Mistake(side PlayerSide) {
	if !l.state.IsBallValid {
		return
	}
	l.state.Touches = [2]uint32{}
	l.clearCooldowns()
	l.state.ServingPlayer = side.Opponent()
	l.state.IsBallValid = false
	l.errorSide = side
	l.emit(EventPlayerError, side)
}

// =============================================================================
// STEPPING
// =============================================================================

// HandleInput lets the rules transform a side's input.
func (l *Logic) HandleInput(side PlayerSide, in PlayerInput) PlayerInput {
	if l.state.WinningPlayer != NoPlayer {
		return in
	}
	return l.rules.HandleInput(l, side, in)
}

// Observe records the physics state the following callbacks see.
func (l *Logic) Observe(s PhysicState) { l.world = s }

// OnEvent gates a physics event by its cooldown and forwards it to the rules.
func (l *Logic) OnEvent(e MatchEvent) {
	switch e.Type {
	case EventBallHitBlob:
		if !l.gate(&l.state.SquishBlob[e.Side]) {
			return
		}
		l.state.IsGameRunning = true
		if l.accepting() {
			l.rules.OnBallHitsPlayer(l, e.Side)
		}
	case EventBallHitWall:
		if l.gate(&l.state.SquishWall) && l.accepting() {
			l.rules.OnBallHitsWall(l, e.Side)
		}
	case EventBallHitGround:
		if l.gate(&l.state.SquishGround) && l.accepting() {
			l.rules.OnBallHitsGround(l, e.Side)
		}
	case EventBallHitNet, EventBallHitNetTop:
		if l.gate(&l.state.SquishNet) && l.accepting() {
			l.rules.OnBallHitsNet(l, e.Side)
		}
	}
}

// Tick runs once per step after all events: the clock advances, cooldowns
// decay, the per-tick hook and the win check run, and a finished rally is
// re-armed for serve once CanStartRound allows it.
func (l *Logic) Tick(w *World) {
	l.world = w.State()
	l.state.GameTime++
	l.decayCooldowns()

	if l.state.WinningPlayer != NoPlayer {
		return
	}
	l.rules.OnGame(l)

	if winner := l.rules.CheckWin(l); winner.IsPlayer() && l.IsWinningScore(winner) {
		l.state.WinningPlayer = winner
		return
	}

	if !l.state.IsBallValid && CanStartRound(l.world) {
		w.ResetBall(l.state.ServingPlayer)
		l.world = w.State()
		l.state.IsGameRunning = false
		l.state.IsBallValid = true
		l.errorSide = NoPlayer
		l.emit(EventBallReset, l.state.ServingPlayer)
	}
}

// CanStartRound reports whether a new serve may start: both blobs stand on
// the ground and the ball has nearly come to rest low in the field.
func CanStartRound(s PhysicState) bool {
	return s.BlobGrounded(LeftPlayer) &&
		s.BlobGrounded(RightPlayer) &&
		abs32(s.BallVelocity.Y) < ResetVelocityBand &&
		s.BallPosition.Y > ResetHeightBand
}

// DrainEvents returns the logic events since the last drain.
func (l *Logic) DrainEvents() []MatchEvent {
	out := l.events
	l.events = nil
	return out
}

func (l *Logic) accepting() bool {
	return l.state.IsBallValid && l.state.WinningPlayer == NoPlayer
}

// gate passes when the cooldown has expired and re-arms it.
func (l *Logic) gate(cooldown *int32) bool {
	if *cooldown > 0 {
		return false
	}
	*cooldown = int32(l.cfg.SquishTolerance)
	return true
}

func (l *Logic) decayCooldowns() {
	for _, c := range []*int32{&l.state.SquishBlob[0], &l.state.SquishBlob[1], &l.state.SquishWall, &l.state.SquishGround, &l.state.SquishNet} {
		if *c > 0 {
			*c--
		}
	}
}

func (l *Logic) clearCooldowns() {
	l.state.SquishBlob = [2]int32{}
	l.state.SquishWall = 0
	l.state.SquishGround = 0
	l.state.SquishNet = 0
}

// logicMark captures what a rule hook may change, so a failed hook can be
// undone before its fallback runs.
type logicMark struct {
	state     GameLogicState
	errorSide PlayerSide
	events    int
}

func (l *Logic) mark() logicMark {
	return logicMark{state: l.state, errorSide: l.errorSide, events: len(l.events)}
}

func (l *Logic) restore(m logicMark) {
	l.state = m.state
	l.errorSide = m.errorSide
	l.events = l.events[:m.events]
}

func (l *Logic) emit(t EventType, side PlayerSide) {
	l.events = append(l.events, MatchEvent{Type: t, Side: side})
}
