package gormstorage

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/landmarkhunt/hunt/internal/database"
	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/internal/model"
	"github.com/landmarkhunt/hunt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend creates a Backend on a private in-memory SQLite database.
// The writer runs on a long interval so tests flush explicitly.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	db, err := database.GetSqliteDBStandalone("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func landmark(id, city string, lat, lng float64) core.Landmark {
	c := core.LatLng{Lat: lat, Lng: lng}
	return core.Landmark{
		ID:        id,
		Name:      "Landmark " + id,
		City:      city,
		Centroid:  c,
		Footprint: geo.SquareFootprint(c, 10),
		Rating:    math.NaN(),
	}
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestUpsertAndFindByID(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpsertLandmark(ctx, landmark("spire", "Dublin", 53.3498, -6.2603)))

	l, found, err := b.FindByID(ctx, "spire")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "Landmark spire", l.Name)
	assert.Equal(t, core.DefaultRating, l.Rating, "unrated landmark reads as default")
	assert.Len(t, l.Footprint, 5)

	_, found, err = b.FindByID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestUpsertLandmark_KeepsRating(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpsertLandmark(ctx, landmark("gpo", "Dublin", 53.3494, -6.2601)))
	require.NoError(t, b.PersistLandmarkRating(ctx, "gpo", 0.8))

	renamed := landmark("gpo", "Dublin", 53.3494, -6.2601)
	renamed.Name = "General Post Office"
	require.NoError(t, b.UpsertLandmark(ctx, renamed))

	l, _, err := b.FindByID(ctx, "gpo")
	require.NoError(t, err)
	assert.Equal(t, "General Post Office", l.Name)
	assert.Equal(t, 0.8, l.Rating)
}

func TestFindWithinRadius(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	origin := core.LatLng{Lat: 53.3498, Lng: -6.2603}
	near := landmark("near", "Dublin", origin.Lat+200/geo.MetersPerDegree, origin.Lng)
	// inside the bounding box corner but beyond the radius
	corner := landmark("corner", "Dublin", origin.Lat+450/geo.MetersPerDegree, origin.Lng+450/(geo.MetersPerDegree*math.Cos(origin.Lat*math.Pi/180)))
	far := landmark("far", "Dublin", origin.Lat+0.05, origin.Lng)
	elsewhere := landmark("cork", "Cork", origin.Lat+100/geo.MetersPerDegree, origin.Lng)

	for _, l := range []core.Landmark{near, corner, far, elsewhere} {
		require.NoError(t, b.UpsertLandmark(ctx, l))
	}

	all, err := b.FindWithinRadius(ctx, origin.Lat, origin.Lng, 500, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"cork", "near"}, ids(all))

	dublin, err := b.FindWithinRadius(ctx, origin.Lat, origin.Lng, 500, "Dublin")
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, ids(dublin))
}

func TestListByCity(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpsertLandmark(ctx, landmark("b", "Dublin", 53.1, -6.1)))
	require.NoError(t, b.UpsertLandmark(ctx, landmark("a", "Dublin", 53.2, -6.2)))
	require.NoError(t, b.UpsertLandmark(ctx, landmark("c", "Cork", 51.9, -8.4)))

	ls, err := b.ListByCity(ctx, "Dublin")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids(ls))
}

func TestGetUser_CreatesWithDefaultRating(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	u, err := b.GetUser(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, "player-1", u.ID)
	assert.Equal(t, core.DefaultRating, u.Rating)
	assert.True(t, u.LastGameAt.IsZero())

	require.NoError(t, b.PersistUserRating(ctx, "player-1", 0.62))
	at := time.Date(2024, 7, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, b.PersistUserLastActivity(ctx, "player-1", at))

	u, err = b.GetUser(ctx, "player-1")
	require.NoError(t, err)
	assert.Equal(t, 0.62, u.Rating)
	assert.True(t, at.Equal(u.LastGameAt))

	var count int64
	require.NoError(t, b.DB().Model(&model.User{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUpdateUserPreferences(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpdateUserPreferences(ctx, "p", "Irish", "Noir"))
	require.NoError(t, b.UpdateUserPreferences(ctx, "p", "", "Modern"))

	u, err := b.GetUser(ctx, "p")
	require.NoError(t, err)
	assert.Equal(t, "Irish", u.PreferredLanguage)
	assert.Equal(t, "Modern", u.PreferredStyle)
}

func TestPersist_UnknownIDs(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	assert.Error(t, b.PersistUserRating(ctx, "ghost", 0.5))
	assert.Error(t, b.PersistLandmarkRating(ctx, "ghost", 0.5))
	assert.Error(t, b.PersistLandmarkLastActivity(ctx, "ghost", time.Now()))
}

func TestPersistLandmarkActivity(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	require.NoError(t, b.UpsertLandmark(ctx, landmark("x", "Dublin", 53, -6)))
	at := time.Date(2024, 2, 2, 2, 2, 2, 0, time.UTC)
	require.NoError(t, b.PersistLandmarkLastActivity(ctx, "x", at))

	l, _, err := b.FindByID(ctx, "x")
	require.NoError(t, err)
	assert.True(t, at.Equal(l.LastResolved))
}

func TestRecordResolution_QueuedUntilFlush(t *testing.T) {
	b := newTestBackend(t)
	ctx := context.Background()

	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, b.RecordResolution(core.Resolution{
			ID:         id,
			PlayerID:   "p1",
			LandmarkID: "spire",
			Correct:    i%2 == 0,
			ResolvedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, b.RecordResolution(core.Resolution{ID: "other", PlayerID: "p2", ResolvedAt: base}))
	assert.Equal(t, 4, b.PendingRecords())

	got, err := b.ListResolutions(ctx, "p1", 0)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.PendingRecords())

	got, err = b.ListResolutions(ctx, "p1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r3", got[0].ID)
	assert.Equal(t, "r2", got[1].ID)
}

func TestFlush_DuplicateIsRequeued(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.RecordResolution(core.Resolution{ID: "dup", PlayerID: "p"}))
	require.NoError(t, b.Flush())

	require.NoError(t, b.RecordResolution(core.Resolution{ID: "dup", PlayerID: "p"}))
	assert.Error(t, b.Flush())
	assert.Equal(t, 1, b.PendingRecords())
}

func TestFlush_WritesInBatches(t *testing.T) {
	db, err := database.GetSqliteDBStandalone("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour, BatchSize: 2})
	require.NoError(t, b.Init())
	defer b.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, b.RecordResolution(core.Resolution{ID: fmt.Sprintf("r%d", i), PlayerID: "p"}))
	}
	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.PendingRecords())

	var count int64
	require.NoError(t, db.Model(&model.RoundRecord{}).Count(&count).Error)
	assert.Equal(t, int64(5), count)
}

func TestRecordResolution_DropsOldestWhenFull(t *testing.T) {
	db, err := database.GetSqliteDBStandalone("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour, MaxPending: 2})
	require.NoError(t, b.Init())
	defer b.Close()

	for i := 0; i < 3; i++ {
		require.NoError(t, b.RecordResolution(core.Resolution{ID: fmt.Sprintf("r%d", i), PlayerID: "p"}))
	}
	assert.Equal(t, 2, b.PendingRecords())
	assert.Equal(t, uint64(1), b.DroppedRecords())
}

func TestClose_FlushesQueue(t *testing.T) {
	db, err := database.GetSqliteDBStandalone("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: time.Hour})
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordResolution(core.Resolution{ID: "last", PlayerID: "p"}))
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.RoundRecord{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWriterLoop_FlushesPeriodically(t *testing.T) {
	db, err := database.GetSqliteDBStandalone("")
	require.NoError(t, err)
	b := New(Dependencies{DB: db, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordResolution(core.Resolution{ID: "tick", PlayerID: "p"}))
	assert.Eventually(t, func() bool { return b.PendingRecords() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func ids(ls []core.Landmark) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}
