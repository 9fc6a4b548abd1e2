package round

import (
	"context"
	"time"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// Catalog looks up landmark reference data.
type Catalog interface {
	FindWithinRadius(ctx context.Context, lat, lng, radiusMeters float64, city string) ([]core.Landmark, error)
	FindByID(ctx context.Context, id string) (core.Landmark, bool, error)
}

// SubjectStore loads users and persists rating changes.
type SubjectStore interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	PersistUserRating(ctx context.Context, id string, rating float64) error
	PersistLandmarkRating(ctx context.Context, id string, rating float64) error
	PersistUserLastActivity(ctx context.Context, id string, at time.Time) error
	PersistLandmarkLastActivity(ctx context.Context, id string, at time.Time) error
}

// PuzzleRequest describes the puzzle wanted for one objective.
type PuzzleRequest struct {
	LandmarkID string
	Difficulty float64 // percentile 0..100
	Language   string
	Style      string
	PoolIDs    []string
	SessionID  string
}

// PuzzleProvider produces puzzle text for a landmark.
type PuzzleProvider interface {
	Generate(ctx context.Context, req PuzzleRequest) (string, error)
}

// PuzzleResetter is implemented by providers that keep per-session state.
type PuzzleResetter interface {
	Reset(ctx context.Context, sessionID string) error
}

// MetaEnsurer makes sure descriptive metadata exists for landmarks.
type MetaEnsurer interface {
	EnsureMeta(ctx context.Context, ids []string) error
}

// Recorder receives one record per resolved objective.
type Recorder func(core.Resolution)
