// internal/storage/storage.go
package storage

import (
	"context"
	"time"

	"github.com/landmarkhunt/hunt/pkg/core"
)

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Landmark catalog
	FindWithinRadius(ctx context.Context, lat, lng, radiusMeters float64, city string) ([]core.Landmark, error)
	FindByID(ctx context.Context, id string) (core.Landmark, bool, error)
	ListByCity(ctx context.Context, city string) ([]core.Landmark, error)
	UpsertLandmark(ctx context.Context, l core.Landmark) error

	// Users and ratings. GetUser creates unknown users with the default rating.
	GetUser(ctx context.Context, id string) (core.User, error)
	UpdateUserPreferences(ctx context.Context, id, language, style string) error
	PersistUserRating(ctx context.Context, id string, rating float64) error
	PersistLandmarkRating(ctx context.Context, id string, rating float64) error
	PersistUserLastActivity(ctx context.Context, id string, at time.Time) error
	PersistLandmarkLastActivity(ctx context.Context, id string, at time.Time) error

	// History
	RecordResolution(r core.Resolution) error
	ListResolutions(ctx context.Context, playerID string, limit int) ([]core.Resolution, error)
}

// Pending is an optional interface for backends that write records asynchronously.
type Pending interface {
	PendingRecords() int
	GetLastDBWriteDuration() time.Duration
}
