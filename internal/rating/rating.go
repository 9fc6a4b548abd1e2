// Package rating updates player and landmark ratings after an objective is resolved.
package rating

import (
	"math"
	"time"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// Tuned constants. Changing any of them changes every stored rating trajectory.
const (
	baseK          = 0.0075
	kMax           = 4.0
	kMin           = 0.5
	discrimination = 1.0 / 10
	decayPerGame   = 1.0 / 40
	growthPerDay   = 1.0 / 30
	neverActiveDay = 30

	minDelta     = 1e-6
	maxExponent  = 700
	minDiffClamp = -3
	maxDiffClamp = 3
)

// Result holds the outcome of one rating update.
type Result struct {
	UserRating          float64
	LandmarkRating      float64
	UserUncertainty     float64
	LandmarkUncertainty float64
	UserK               float64
	LandmarkK           float64
	Score               float64
	Expectation         float64
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now for uncertainty decay.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine computes rating updates for a fixed time limit.
type Engine struct {
	timeLimit float64
	now       func() time.Time
}

// New creates an Engine. maxDuration is the longest an objective may take.
func New(maxDuration time.Duration, opts ...Option) *Engine {
	e := &Engine{
		timeLimit: maxDuration.Seconds(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TimeLimit returns the time limit in seconds.
func (e *Engine) TimeLimit() float64 {
	return e.timeLimit
}

// Update returns new ratings for a user and a landmark after the user resolved
// the landmark in elapsedSeconds.
func (e *Engine) Update(user, landmark core.RatingSubject, elapsedSeconds float64, correct bool) Result {
	us := sanitize(user.RatingState())
	ls := sanitize(landmark.RatingState())

	now := e.now()
	uUser := e.decay(us, now)
	uLandmark := e.decay(ls, now)

	userK := baseK * (1 + kMax*uUser - kMin*uLandmark)
	landmarkK := baseK * (1 + kMax*uLandmark - kMin*uUser)

	score := discrimination * (e.timeLimit - elapsedSeconds)
	if !correct {
		score = -score
	}
	expectation := e.expectation(us.Rating, ls.Rating)
	surprise := score - expectation

	return Result{
		UserRating:          orDefault(us.Rating + userK*surprise),
		LandmarkRating:      orDefault(ls.Rating - landmarkK*surprise),
		UserUncertainty:     uUser,
		LandmarkUncertainty: uLandmark,
		UserK:               userK,
		LandmarkK:           landmarkK,
		Score:               score,
		Expectation:         expectation,
	}
}

// decay grows uncertainty with whole days since the last activity.
func (e *Engine) decay(s core.RatingState, now time.Time) float64 {
	dayDiff := neverActiveDay
	if !s.LastActivity.IsZero() {
		dayDiff = int(now.Sub(s.LastActivity) / (24 * time.Hour))
	}
	return clamp(s.Uncertainty-decayPerGame+growthPerDay*float64(dayDiff), 0, 1)
}

func (e *Engine) expectation(userRating, landmarkRating float64) float64 {
	delta := userRating - landmarkRating
	if math.Abs(delta) < minDelta {
		delta = minDelta
	}
	weighted := clamp(2*discrimination*e.timeLimit*delta, -maxExponent, maxExponent)
	expTerm := math.Exp(weighted)
	return discrimination*e.timeLimit*((expTerm+1)/(expTerm-1)) - 1/delta
}

// DifficultyPercentile maps a landmark rating to 0..100 with a logistic curve.
func DifficultyPercentile(rating float64) float64 {
	if math.IsNaN(rating) {
		return 50
	}
	return 100 / (1 + math.Exp(-clamp(rating, minDiffClamp, maxDiffClamp)))
}

func sanitize(s core.RatingState) core.RatingState {
	s.Rating = orDefault(s.Rating)
	s.Uncertainty = orDefault(s.Uncertainty)
	return s
}

func orDefault(v float64) float64 {
	if math.IsNaN(v) {
		return core.DefaultRating
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
