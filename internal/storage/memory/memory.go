// internal/storage/memory/memory.go
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/landmarkhunt/hunt/internal/config"
	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/pkg/core"
)

// Backend keeps the catalog, users and records in memory and exports the
// records to JSON on Close.
type Backend struct {
	cfg config.MemoryConfig
	log *slog.Logger

	landmarks map[string]core.Landmark
	users     map[string]core.User
	records   []core.Resolution

	lastExportPath string
	startedAt      time.Time
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg:       cfg,
		log:       logger,
		landmarks: make(map[string]core.Landmark),
		users:     make(map[string]core.User),
	}
}

// Init loads the seed file if one is configured.
func (b *Backend) Init() error {
	b.startedAt = time.Now()
	if b.cfg.SeedFile == "" {
		return nil
	}
	seed, err := readSeed(b.cfg.SeedFile)
	if err != nil {
		return err
	}
	for _, l := range seed {
		if err := b.UpsertLandmark(context.Background(), l); err != nil {
			return err
		}
	}
	b.log.Info("Loaded seed landmarks", "count", len(seed), "file", b.cfg.SeedFile)
	return nil
}

// Close exports the records when an output directory is set.
func (b *Backend) Close() error {
	b.mu.RLock()
	n := len(b.records)
	b.mu.RUnlock()

	if b.cfg.OutputDir == "" || n == 0 {
		return nil
	}
	if err := b.exportJSON(); err != nil {
		return fmt.Errorf("failed to export records: %w", err)
	}
	b.log.Info("Exported round records", "count", n, "path", b.GetExportedFilePath())
	return nil
}

// FindWithinRadius returns landmarks within radiusMeters ordered by id.
func (b *Backend) FindWithinRadius(_ context.Context, lat, lng, radiusMeters float64, city string) ([]core.Landmark, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Landmark
	for _, l := range b.landmarks {
		if city != "" && l.City != city {
			continue
		}
		if geo.DistanceMeters(lat, lng, l.Centroid.Lat, l.Centroid.Lng) <= radiusMeters {
			out = append(out, cloneLandmark(l))
		}
	}
	sortByID(out)
	return out, nil
}

// FindByID returns one landmark.
func (b *Backend) FindByID(_ context.Context, id string) (core.Landmark, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.landmarks[id]
	if !ok {
		return core.Landmark{}, false, nil
	}
	return cloneLandmark(l), true, nil
}

// ListByCity returns the landmarks of a city ordered by id.
func (b *Backend) ListByCity(_ context.Context, city string) ([]core.Landmark, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Landmark
	for _, l := range b.landmarks {
		if l.City == city {
			out = append(out, cloneLandmark(l))
		}
	}
	sortByID(out)
	return out, nil
}

// UpsertLandmark stores a landmark. An existing rating is kept.
func (b *Backend) UpsertLandmark(_ context.Context, l core.Landmark) error {
	if l.ID == "" {
		return fmt.Errorf("landmark without id")
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	l = cloneLandmark(l)
	if old, ok := b.landmarks[l.ID]; ok {
		l.Rating = old.Rating
		l.Uncertainty = old.Uncertainty
		l.LastResolved = old.LastResolved
	} else {
		if math.IsNaN(l.Rating) || l.Rating == 0 {
			l.Rating = core.DefaultRating
		}
		l.Uncertainty = core.DefaultRating
	}
	b.landmarks[l.ID] = l
	return nil
}

// GetUser returns the user, creating it with the default rating if unknown.
func (b *Backend) GetUser(_ context.Context, id string) (core.User, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userLocked(id), nil
}

func (b *Backend) userLocked(id string) core.User {
	u, ok := b.users[id]
	if !ok {
		u = core.NewUser(id)
		b.users[id] = u
	}
	return u
}

// UpdateUserPreferences stores the preferred puzzle language and style.
func (b *Backend) UpdateUserPreferences(_ context.Context, id, language, style string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u := b.userLocked(id)
	if language != "" {
		u.PreferredLanguage = language
	}
	if style != "" {
		u.PreferredStyle = style
	}
	b.users[id] = u
	return nil
}

// PersistUserRating stores a new user rating.
func (b *Backend) PersistUserRating(_ context.Context, id string, rating float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	u.Rating = rating
	b.users[id] = u
	return nil
}

// PersistLandmarkRating stores a new landmark rating.
func (b *Backend) PersistLandmarkRating(_ context.Context, id string, rating float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.landmarks[id]
	if !ok {
		return fmt.Errorf("landmark %s not found", id)
	}
	l.Rating = rating
	b.landmarks[id] = l
	return nil
}

// PersistUserLastActivity stores when the user last played.
func (b *Backend) PersistUserLastActivity(_ context.Context, id string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		return fmt.Errorf("user %s not found", id)
	}
	u.LastGameAt = at
	b.users[id] = u
	return nil
}

// PersistLandmarkLastActivity stores when the landmark was last resolved.
func (b *Backend) PersistLandmarkLastActivity(_ context.Context, id string, at time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.landmarks[id]
	if !ok {
		return fmt.Errorf("landmark %s not found", id)
	}
	l.LastResolved = at
	b.landmarks[id] = l
	return nil
}

// RecordResolution appends a resolution record.
func (b *Backend) RecordResolution(r core.Resolution) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, r)
	return nil
}

// ListResolutions returns the player's records, newest first.
func (b *Backend) ListResolutions(_ context.Context, playerID string, limit int) ([]core.Resolution, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.Resolution
	for i := len(b.records) - 1; i >= 0; i-- {
		if b.records[i].PlayerID != playerID {
			continue
		}
		out = append(out, b.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetExportedFilePath returns the path of the last export, if any.
func (b *Backend) GetExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

func cloneLandmark(l core.Landmark) core.Landmark {
	l.Footprint = append(core.Ring(nil), l.Footprint...)
	return l
}

func sortByID(ls []core.Landmark) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
}
