// Package gormstorage implements the storage.Backend interface on top of GORM.
// Catalog and rating writes are synchronous; resolution records are queued and
// written in batches by a background goroutine.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/landmarkhunt/hunt/internal/database"
	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/internal/model"
	"github.com/landmarkhunt/hunt/internal/model/convert"
	"github.com/landmarkhunt/hunt/internal/queue"
	"github.com/landmarkhunt/hunt/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultFlushInterval is how often queued records are written.
	DefaultFlushInterval = 2 * time.Second
	// DefaultBatchSize caps the records written per transaction.
	DefaultBatchSize = 500
	// DefaultMaxPending caps queued records while the database is unavailable.
	DefaultMaxPending = 100_000
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Logger        *slog.Logger
	FlushInterval time.Duration
	BatchSize     int
	MaxPending    int
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps     Dependencies
	records  *queue.Queue[model.RoundRecord]
	stopChan chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	lastWrite atomic.Int64 // nanoseconds
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.BatchSize <= 0 {
		deps.BatchSize = DefaultBatchSize
	}
	if deps.MaxPending <= 0 {
		deps.MaxPending = DefaultMaxPending
	}
	return &Backend{
		deps:    deps,
		records: queue.NewBounded[model.RoundRecord](deps.MaxPending),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("no database configured")
	}
	b.deps.Logger.Info("Migrating schema")
	if err := database.Migrate(b.deps.DB); err != nil {
		return err
	}
	b.deps.Logger.Info("Database setup complete")

	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writerLoop()
	return nil
}

// Close stops the DB writer goroutine and writes what is still queued.
func (b *Backend) Close() error {
	if b.stopChan == nil {
		return nil
	}
	b.stopOnce.Do(func() {
		close(b.stopChan)
		<-b.done
	})
	if err := b.Flush(); err != nil {
		return fmt.Errorf("final record flush: %w", err)
	}
	return nil
}

// FindWithinRadius returns landmarks whose centroid lies within radiusMeters,
// optionally restricted to one city. A bounding box narrows the query and
// the haversine distance decides.
func (b *Backend) FindWithinRadius(ctx context.Context, lat, lng, radiusMeters float64, city string) ([]core.Landmark, error) {
	minLat, minLng, maxLat, maxLng := geo.BoundingBox(lat, lng, radiusMeters)

	q := b.deps.DB.WithContext(ctx).
		Where("latitude BETWEEN ? AND ?", minLat, maxLat).
		Where("longitude BETWEEN ? AND ?", minLng, maxLng)
	if city != "" {
		q = q.Where("city = ?", city)
	}

	var rows []model.Landmark
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query landmarks: %w", err)
	}

	out := make([]core.Landmark, 0, len(rows))
	for _, row := range rows {
		if geo.DistanceMeters(lat, lng, row.Latitude, row.Longitude) > radiusMeters {
			continue
		}
		l, err := convert.LandmarkToCore(row)
		if err != nil {
			b.deps.Logger.Warn("skipping landmark with unreadable footprint", "landmark", row.ID, "error", err)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// FindByID loads one landmark.
func (b *Backend) FindByID(ctx context.Context, id string) (core.Landmark, bool, error) {
	var row model.Landmark
	err := b.deps.DB.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Landmark{}, false, nil
	}
	if err != nil {
		return core.Landmark{}, false, fmt.Errorf("failed to load landmark %s: %w", id, err)
	}
	l, err := convert.LandmarkToCore(row)
	if err != nil {
		return core.Landmark{}, false, err
	}
	return l, true, nil
}

// ListByCity returns all landmarks of a city ordered by id.
func (b *Backend) ListByCity(ctx context.Context, city string) ([]core.Landmark, error) {
	var rows []model.Landmark
	if err := b.deps.DB.WithContext(ctx).Where("city = ?", city).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list landmarks of %s: %w", city, err)
	}
	out := make([]core.Landmark, 0, len(rows))
	for _, row := range rows {
		l, err := convert.LandmarkToCore(row)
		if err != nil {
			b.deps.Logger.Warn("skipping landmark with unreadable footprint", "landmark", row.ID, "error", err)
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

// UpsertLandmark inserts a landmark or refreshes its reference data.
// An existing rating is kept.
func (b *Backend) UpsertLandmark(ctx context.Context, l core.Landmark) error {
	row, err := convert.CoreToLandmark(l)
	if err != nil {
		return err
	}
	err = b.deps.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "city", "latitude", "longitude", "footprint", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to upsert landmark %s: %w", l.ID, err)
	}
	return nil
}

// GetUser returns the user, creating it with the default rating if unknown.
func (b *Backend) GetUser(ctx context.Context, id string) (core.User, error) {
	var row model.User
	err := b.deps.DB.WithContext(ctx).
		Where(model.User{ID: id}).
		Attrs(model.User{Username: id, Rating: core.DefaultRating}).
		FirstOrCreate(&row).Error
	if err != nil {
		return core.User{}, fmt.Errorf("failed to get or create user %s: %w", id, err)
	}
	return convert.UserToCore(row), nil
}

// UpdateUserPreferences stores the preferred puzzle language and style.
// Empty values leave the stored preference unchanged.
func (b *Backend) UpdateUserPreferences(ctx context.Context, id, language, style string) error {
	if _, err := b.GetUser(ctx, id); err != nil {
		return err
	}
	updates := map[string]any{}
	if language != "" {
		updates["preferred_language"] = language
	}
	if style != "" {
		updates["preferred_style"] = style
	}
	if len(updates) == 0 {
		return nil
	}
	return b.update(ctx, &model.User{}, id, updates)
}

// PersistUserRating stores a new user rating.
func (b *Backend) PersistUserRating(ctx context.Context, id string, rating float64) error {
	return b.update(ctx, &model.User{}, id, map[string]any{"rating": rating})
}

// PersistLandmarkRating stores a new landmark rating.
func (b *Backend) PersistLandmarkRating(ctx context.Context, id string, rating float64) error {
	return b.update(ctx, &model.Landmark{}, id, map[string]any{"rating": convert.NullFloat(rating)})
}

// PersistUserLastActivity stores when the user last played.
func (b *Backend) PersistUserLastActivity(ctx context.Context, id string, at time.Time) error {
	return b.update(ctx, &model.User{}, id, map[string]any{"last_game_at": at})
}

// PersistLandmarkLastActivity stores when the landmark was last resolved.
func (b *Backend) PersistLandmarkLastActivity(ctx context.Context, id string, at time.Time) error {
	return b.update(ctx, &model.Landmark{}, id, map[string]any{"last_resolved": at})
}

func (b *Backend) update(ctx context.Context, table any, id string, values map[string]any) error {
	res := b.deps.DB.WithContext(ctx).Model(table).Where("id = ?", id).Updates(values)
	if res.Error != nil {
		return fmt.Errorf("failed to update %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update %s: %w", id, gorm.ErrRecordNotFound)
	}
	return nil
}

// RecordResolution queues a resolution record for the writer.
func (b *Backend) RecordResolution(r core.Resolution) error {
	b.records.Push(convert.CoreToRoundRecord(r))
	return nil
}

// ListResolutions returns the player's written records, newest first.
func (b *Backend) ListResolutions(ctx context.Context, playerID string, limit int) ([]core.Resolution, error) {
	q := b.deps.DB.WithContext(ctx).Where("player_id = ?", playerID).Order("resolved_at DESC").Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.RoundRecord
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list records of %s: %w", playerID, err)
	}
	out := make([]core.Resolution, len(rows))
	for i, row := range rows {
		out[i] = convert.RoundRecordToCore(row)
	}
	return out, nil
}

// PendingRecords returns the number of queued records.
func (b *Backend) PendingRecords() int {
	return b.records.Len()
}

// GetLastDBWriteDuration returns how long the last batch write took.
func (b *Backend) GetLastDBWriteDuration() time.Duration {
	return time.Duration(b.lastWrite.Load())
}

// DroppedRecords returns how many records were evicted while the queue was full.
func (b *Backend) DroppedRecords() uint64 {
	return b.records.Dropped()
}

// Flush writes all queued records now, one batch per transaction.
// A failed batch goes back to the front of the queue.
func (b *Backend) Flush() error {
	start := time.Now()
	defer func() { b.lastWrite.Store(int64(time.Since(start))) }()

	for !b.records.Empty() {
		batch := b.records.Drain(b.deps.BatchSize)
		if err := writeBatch(b.deps.DB, batch); err != nil {
			b.records.Requeue(batch...)
			b.deps.Logger.Error("Error writing round records", "error", err, "count", len(batch))
			return err
		}
		b.deps.Logger.Debug("Wrote round records", "count", len(batch))
	}
	return nil
}

func writeBatch[T any](db *gorm.DB, items []T) error {
	if len(items) == 0 {
		return nil
	}
	return db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&items).Error
	})
}

// writerLoop periodically drains the record queue into the DB.
func (b *Backend) writerLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			_ = b.Flush()
		}
	}
}
