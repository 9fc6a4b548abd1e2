// Package round runs one player's scavenger-hunt round: it picks objectives,
// checks what the player is facing and rates each resolved objective.
package round

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/internal/rating"
	"github.com/landmarkhunt/hunt/pkg/core"
)

var (
	// ErrNoObjective is returned when an answer arrives with no current objective.
	ErrNoObjective = errors.New("objective not found")
	// ErrRoundNotStarted is returned for operations before StartRound.
	ErrRoundNotStarted = errors.New("round not started")
	// ErrRoundFinished is returned for operations on a finished round.
	ErrRoundFinished = errors.New("round finished")
)

// DefaultPuzzle is used when the puzzle provider cannot produce text.
const DefaultPuzzle = "Default Riddle"

// State is the round lifecycle state.
type State int

const (
	Idle State = iota
	Active
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Active:
		return "active"
	case Finished:
		return "finished"
	default:
		return "unknown"
	}
}

// Config holds the round rules.
type Config struct {
	AttemptBudget int
	MaxDuration   time.Duration
	Language      string
	Style         string
}

// Dependencies holds all collaborators of an Engine.
// Meta and Recorder are optional.
type Dependencies struct {
	Catalog  Catalog
	Subjects SubjectStore
	Puzzles  PuzzleProvider
	Meta     MetaEnsurer
	Rating   *rating.Engine
	Detector geo.Detector
	Recorder Recorder
	Logger   *slog.Logger
	Now      func() time.Time
}

// StartParams are the inputs of StartRound.
type StartParams struct {
	Pose     core.Pose
	Radius   float64
	City     string
	Language string // overrides Config.Language when set
	Style    string // overrides Config.Style when set
}

// Outcome is the result of one answer submission.
type Outcome struct {
	Correct      bool
	Resolved     bool
	TimedOut     bool
	AttemptsLeft int
	Rating       *rating.Result
	Snapshot     Snapshot
}

// Engine is the round state machine of a single player.
// All methods are safe for concurrent use; calls are serialized.
type Engine struct {
	mu   sync.Mutex
	deps Dependencies
	cfg  Config

	playerID string
	roundID  string
	state    State
	// live mirrors state for readers that must not wait on mu
	live atomic.Int32
	language string
	style    string

	pose       core.Pose
	cone       core.Ring
	candidates []core.Landmark
	byID       map[string]int
	pool       Pool

	objective string
	puzzle    string
	detected  string

	lastResolved    core.LatLng
	hasLastResolved bool
	resolved        int

	bg sync.WaitGroup
}

// New creates an idle Engine for playerID.
func New(playerID string, cfg Config, deps Dependencies) *Engine {
	if cfg.AttemptBudget < 1 {
		cfg.AttemptBudget = 3
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = 30 * time.Minute
	}
	if deps.Rating == nil {
		deps.Rating = rating.New(cfg.MaxDuration)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Engine{
		deps:     deps,
		cfg:      cfg,
		playerID: playerID,
		pool:     Pool{},
		byID:     map[string]int{},
	}
}

// PlayerID returns the player that owns the engine.
func (e *Engine) PlayerID() string {
	return e.playerID
}

// StartRound discards any previous round and starts a new one around the pose.
// A failed or empty candidate lookup finishes the round immediately.
func (e *Engine) StartRound(ctx context.Context, p StartParams) Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.reset()
	e.roundID = uuid.NewString()
	e.language = firstNonEmpty(p.Language, e.cfg.Language)
	e.style = firstNonEmpty(p.Style, e.cfg.Style)
	e.setPose(p.Pose)

	log := e.deps.Logger.With("player", e.playerID, "round", e.roundID)

	var candidates []core.Landmark
	if e.deps.Catalog != nil {
		found, err := e.deps.Catalog.FindWithinRadius(ctx, p.Pose.Lat, p.Pose.Lng, p.Radius, p.City)
		if err != nil {
			log.Warn("candidate lookup failed, starting empty round", "error", err)
		} else {
			candidates = found
		}
	}

	e.candidates = candidates
	ids := make([]string, 0, len(candidates))
	for i, c := range candidates {
		if _, dup := e.byID[c.ID]; dup {
			continue
		}
		e.byID[c.ID] = i
		ids = append(ids, c.ID)
	}
	e.pool = newPool(ids, e.cfg.AttemptBudget)

	if len(ids) == 0 {
		e.setState(Finished)
		log.Info("no landmarks in range, round finished", "radius", p.Radius, "city", p.City)
		return e.snapshot()
	}

	if e.deps.Meta != nil {
		e.goAsync(ctx, func(ctx context.Context) {
			if err := e.deps.Meta.EnsureMeta(ctx, ids); err != nil {
				log.Warn("landmark metadata enrichment failed", "error", err)
			}
		})
	}

	e.setState(Active)
	e.detect()
	e.selectObjective(ctx, p.Pose.Point())
	log.Info("round started", "objectives", len(ids), "objective", e.objective)
	return e.snapshot()
}

// UpdatePosition stores a new pose and recomputes which landmark is in view.
func (e *Engine) UpdatePosition(ctx context.Context, pose core.Pose) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return Snapshot{}, err
	}
	e.setPose(pose)
	e.detect()
	return e.snapshot(), nil
}

// SubmitAnswer checks whether the player is facing the current objective.
func (e *Engine) SubmitAnswer(ctx context.Context, elapsedSeconds float64) (Outcome, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkActive(); err != nil {
		return Outcome{}, err
	}
	if e.objective == "" || !e.pool.Has(e.objective) {
		return Outcome{}, ErrNoObjective
	}

	target := e.objective

	if elapsedSeconds > e.cfg.MaxDuration.Seconds() {
		e.deps.Logger.Info("objective timed out",
			"player", e.playerID, "objective", target, "elapsed", elapsedSeconds)
		res := e.resolve(ctx, target, false, true, elapsedSeconds)
		return Outcome{
			TimedOut: true,
			Resolved: true,
			Rating:   &res,
			Snapshot: e.snapshot(),
		}, nil
	}

	e.detect()
	if e.detected != "" && e.pool.Has(e.detected) && e.detected == target {
		res := e.resolve(ctx, target, true, false, elapsedSeconds)
		return Outcome{
			Correct:  true,
			Resolved: true,
			Rating:   &res,
			Snapshot: e.snapshot(),
		}, nil
	}

	left := e.pool.decrement(target)
	if left > 0 {
		return Outcome{AttemptsLeft: left, Snapshot: e.snapshot()}, nil
	}
	res := e.resolve(ctx, target, false, false, elapsedSeconds)
	return Outcome{
		Resolved: true,
		Rating:   &res,
		Snapshot: e.snapshot(),
	}, nil
}

// FinishRound ends the round early. Finishing a finished round is a no-op.
func (e *Engine) FinishRound(ctx context.Context) (Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case Idle:
		return Snapshot{}, ErrRoundNotStarted
	case Finished:
		return e.snapshot(), nil
	}

	e.finish()
	if r, ok := e.deps.Puzzles.(PuzzleResetter); ok {
		log := e.deps.Logger
		player := e.playerID
		e.goAsync(ctx, func(ctx context.Context) {
			if err := r.Reset(ctx, player); err != nil {
				log.Warn("puzzle session reset failed", "player", player, "error", err)
			}
		})
	}
	e.deps.Logger.Info("round finished early", "player", e.playerID, "round", e.roundID, "resolved", e.resolved)
	return e.snapshot(), nil
}

// IsFinished reports whether the round has ended. It never blocks.
func (e *Engine) IsFinished() bool {
	return State(e.live.Load()) == Finished
}

// Active reports whether a round is in progress. It never blocks, so log
// context providers may call it while the engine is logging.
func (e *Engine) Active() bool {
	return State(e.live.Load()) == Active
}

// Snapshot returns the current round view.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// Wait blocks until background enrichment and reset calls have returned.
func (e *Engine) Wait() {
	e.bg.Wait()
}

func (e *Engine) checkActive() error {
	switch e.state {
	case Idle:
		return ErrRoundNotStarted
	case Finished:
		return ErrRoundFinished
	}
	return nil
}

func (e *Engine) reset() {
	e.setState(Idle)
	e.roundID = ""
	e.candidates = nil
	e.byID = map[string]int{}
	e.pool = Pool{}
	e.objective = ""
	e.puzzle = ""
	e.detected = ""
	e.hasLastResolved = false
	e.resolved = 0
}

func (e *Engine) setState(s State) {
	e.state = s
	e.live.Store(int32(s))
}

func (e *Engine) finish() {
	e.setState(Finished)
	e.pool = Pool{}
	e.objective = ""
	e.puzzle = ""
}

func (e *Engine) setPose(p core.Pose) {
	e.pose = p
	e.cone = geo.BuildViewCone(p)
}

func (e *Engine) detect() {
	e.detected = ""
	if l, ok := e.deps.Detector.Detect(e.pose, e.candidates); ok {
		e.detected = l.ID
	}
}

func (e *Engine) landmark(id string) (core.Landmark, bool) {
	i, ok := e.byID[id]
	if !ok {
		return core.Landmark{}, false
	}
	return e.candidates[i], true
}

// resolve removes target from the pool, rates it and moves on.
func (e *Engine) resolve(ctx context.Context, target string, correct, timedOut bool, elapsed float64) rating.Result {
	attemptsUsed := e.cfg.AttemptBudget - e.pool.Remaining(target)
	if correct || timedOut {
		attemptsUsed++
	}
	e.pool.evict(target)
	e.resolved++

	cached, _ := e.landmark(target)
	res := e.rate(ctx, cached, elapsed, correct, timedOut, attemptsUsed)

	if i, ok := e.byID[target]; ok {
		e.candidates[i].Rating = res.LandmarkRating
		e.candidates[i].Uncertainty = res.LandmarkUncertainty
		e.candidates[i].LastResolved = e.deps.Now()
	}

	e.lastResolved = cached.Centroid
	e.hasLastResolved = true
	e.advance(ctx)
	return res
}

// rate runs the rating update and persists it. Store failures are logged only.
func (e *Engine) rate(ctx context.Context, cached core.Landmark, elapsed float64, correct, timedOut bool, attemptsUsed int) rating.Result {
	log := e.deps.Logger.With("player", e.playerID, "landmark", cached.ID)

	lm := cached
	if e.deps.Catalog != nil {
		fresh, found, err := e.deps.Catalog.FindByID(ctx, cached.ID)
		switch {
		case err != nil:
			log.Warn("landmark reload failed, using cached copy", "error", err)
		case found:
			lm = fresh
		}
	}

	user := core.NewUser(e.playerID)
	if e.deps.Subjects != nil {
		u, err := e.deps.Subjects.GetUser(ctx, e.playerID)
		if err != nil {
			log.Warn("user lookup failed, rating from defaults", "error", err)
		} else {
			user = u
		}
	}

	res := e.deps.Rating.Update(user, lm, elapsed, correct)
	now := e.deps.Now()

	if s := e.deps.Subjects; s != nil {
		if err := s.PersistUserRating(ctx, e.playerID, res.UserRating); err != nil {
			log.Error("persist user rating failed", "error", err)
		}
		if err := s.PersistLandmarkRating(ctx, lm.ID, res.LandmarkRating); err != nil {
			log.Error("persist landmark rating failed", "error", err)
		}
		if err := s.PersistUserLastActivity(ctx, e.playerID, now); err != nil {
			log.Error("persist user activity failed", "error", err)
		}
		if err := s.PersistLandmarkLastActivity(ctx, lm.ID, now); err != nil {
			log.Error("persist landmark activity failed", "error", err)
		}
	}

	log.Debug("objective rated",
		"correct", correct,
		"timedOut", timedOut,
		"elapsed", elapsed,
		"userRating", res.UserRating,
		"landmarkRating", res.LandmarkRating)

	if e.deps.Recorder != nil {
		e.deps.Recorder(core.Resolution{
			ID:                  uuid.NewString(),
			RoundID:             e.roundID,
			PlayerID:            e.playerID,
			LandmarkID:          lm.ID,
			LandmarkName:        lm.Name,
			Correct:             correct,
			TimedOut:            timedOut,
			AttemptsUsed:        attemptsUsed,
			ElapsedSeconds:      elapsed,
			UserRatingBefore:    user.Rating,
			UserRatingAfter:     res.UserRating,
			LandmarkRatingAfter: res.LandmarkRating,
			ResolvedAt:          now,
		})
	}
	return res
}

// advance moves to the nearest unresolved objective or finishes the round.
func (e *Engine) advance(ctx context.Context) {
	e.objective = ""
	e.puzzle = ""
	if len(e.pool) == 0 {
		e.setState(Finished)
		e.deps.Logger.Info("round complete", "player", e.playerID, "round", e.roundID, "resolved", e.resolved)
		return
	}
	from := e.pose.Point()
	if e.hasLastResolved {
		from = e.lastResolved
	}
	e.selectObjective(ctx, from)
}

// selectObjective picks the pooled landmark nearest to from.
// Ties go to the earlier candidate.
func (e *Engine) selectObjective(ctx context.Context, from core.LatLng) {
	best := -1
	bestDist := math.Inf(1)
	for i, c := range e.candidates {
		if !e.pool.Has(c.ID) || e.byID[c.ID] != i {
			continue
		}
		if d := geo.Distance(from, c.Centroid); best < 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return
	}
	target := e.candidates[best]
	e.objective = target.ID
	e.puzzle = e.fetchPuzzle(ctx, target)
}

func (e *Engine) fetchPuzzle(ctx context.Context, target core.Landmark) string {
	if e.deps.Puzzles == nil {
		return DefaultPuzzle
	}
	text, err := e.deps.Puzzles.Generate(ctx, PuzzleRequest{
		LandmarkID: target.ID,
		Difficulty: rating.DifficultyPercentile(target.Rating),
		Language:   e.language,
		Style:      e.style,
		PoolIDs:    e.poolIDs(),
		SessionID:  e.playerID,
	})
	if err != nil || text == "" {
		e.deps.Logger.Warn("puzzle generation failed, using placeholder",
			"player", e.playerID, "landmark", target.ID, "error", err)
		return DefaultPuzzle
	}
	return text
}

// poolIDs lists unresolved ids in candidate order.
func (e *Engine) poolIDs() []string {
	ids := make([]string, 0, len(e.pool))
	for i, c := range e.candidates {
		if e.pool.Has(c.ID) && e.byID[c.ID] == i {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

func (e *Engine) goAsync(ctx context.Context, fn func(context.Context)) {
	bgCtx := context.WithoutCancel(ctx)
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		fn(bgCtx)
	}()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
