package session

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/internal/logging"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memCatalog struct {
	landmarks []core.Landmark
}

func (c *memCatalog) FindWithinRadius(_ context.Context, lat, lng, radius float64, _ string) ([]core.Landmark, error) {
	var out []core.Landmark
	for _, l := range c.landmarks {
		if geo.DistanceMeters(lat, lng, l.Centroid.Lat, l.Centroid.Lng) <= radius {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *memCatalog) FindByID(_ context.Context, id string) (core.Landmark, bool, error) {
	for _, l := range c.landmarks {
		if l.ID == id {
			return l, true, nil
		}
	}
	return core.Landmark{}, false, nil
}

type nopSubjects struct{}

func (nopSubjects) GetUser(_ context.Context, id string) (core.User, error) {
	return core.NewUser(id), nil
}
func (nopSubjects) PersistUserRating(context.Context, string, float64) error           { return nil }
func (nopSubjects) PersistLandmarkRating(context.Context, string, float64) error       { return nil }
func (nopSubjects) PersistUserLastActivity(context.Context, string, time.Time) error     { return nil }
func (nopSubjects) PersistLandmarkLastActivity(context.Context, string, time.Time) error { return nil }

type staticPuzzles struct{}

func (staticPuzzles) Generate(_ context.Context, req round.PuzzleRequest) (string, error) {
	return "riddle for " + req.LandmarkID, nil
}

func landmarkAt(id string, northM, eastM float64) core.Landmark {
	c := core.LatLng{Lat: northM / geo.MetersPerDegree, Lng: eastM / geo.MetersPerDegree}
	return core.Landmark{
		ID:        id,
		Name:      id,
		Centroid:  c,
		Footprint: geo.SquareFootprint(c, 5),
		Rating:    core.DefaultRating,
	}
}

type harness struct {
	m        *Manager
	mu       sync.Mutex
	records  []core.Resolution
	finished []round.Snapshot
}

func newHarness(t *testing.T, landmarks ...core.Landmark) *harness {
	t.Helper()
	h := &harness{}
	m, err := NewManager(Config{
		Round:         round.Config{AttemptBudget: 3, MaxDuration: 30 * time.Minute},
		DefaultRadius: 500,
		Cone:          core.Pose{HalfSpanDeg: 15, RadiusMeters: 100, Resolution: 20},
	}, Dependencies{
		Catalog:  &memCatalog{landmarks: landmarks},
		Subjects: nopSubjects{},
		Puzzles:  staticPuzzles{},
		Recorder: func(r core.Resolution) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.records = append(h.records, r)
		},
		OnRoundEnd: func(s round.Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.finished = append(h.finished, s)
		},
	})
	require.NoError(t, err)
	h.m = m
	return h
}

func TestManager_OperationsWithoutRound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.m.UpdatePosition(ctx, "p1", core.Pose{})
	assert.ErrorIs(t, err, ErrRoundNotFound)

	_, err = h.m.SubmitAnswer(ctx, "p1", 10)
	assert.ErrorIs(t, err, ErrRoundNotFound)

	_, err = h.m.FinishRound(ctx, "p1")
	assert.ErrorIs(t, err, ErrRoundNotFound)

	_, err = h.m.Snapshot("p1")
	assert.ErrorIs(t, err, ErrRoundNotFound)
}

func TestManager_StartAppliesDefaults(t *testing.T) {
	h := newHarness(t, landmarkAt("near", 50, 0), landmarkAt("far", 800, 0))
	ctx := context.Background()

	snap := h.m.StartRound(ctx, "p1", round.StartParams{Pose: core.Pose{Heading: 0}})
	h.m.Wait()

	assert.Equal(t, 1, snap.TotalTargets, "default radius should exclude the far landmark")
	assert.Equal(t, 15.0, snap.Pose.HalfSpanDeg)
	assert.Equal(t, 100.0, snap.Pose.RadiusMeters)
	assert.Equal(t, 20, snap.Pose.Resolution)
	require.NotNil(t, snap.Objective)
	assert.Equal(t, "near", snap.Objective.ID)
	assert.Equal(t, 1, h.m.ActiveRounds())
}

func TestManager_FinishedRoundMapsToNotFound(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0))
	ctx := context.Background()

	h.m.StartRound(ctx, "p1", round.StartParams{})
	out, err := h.m.SubmitAnswer(ctx, "p1", 30)
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.True(t, out.Snapshot.Finished)

	_, err = h.m.SubmitAnswer(ctx, "p1", 30)
	assert.ErrorIs(t, err, ErrRoundNotFound)
	_, err = h.m.UpdatePosition(ctx, "p1", core.Pose{})
	assert.ErrorIs(t, err, ErrRoundNotFound)

	h.m.Wait()
	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Len(t, h.records, 1)
	require.Len(t, h.finished, 1)
	assert.Equal(t, "p1", h.finished[0].PlayerID)
	assert.Equal(t, 0, h.m.ActiveRounds())
}

func TestManager_FinishRoundForgetsEngine(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0))
	ctx := context.Background()

	h.m.StartRound(ctx, "p1", round.StartParams{})
	snap, err := h.m.FinishRound(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, snap.Finished)

	_, err = h.m.Snapshot("p1")
	assert.ErrorIs(t, err, ErrRoundNotFound)

	h.mu.Lock()
	assert.Len(t, h.finished, 1)
	h.mu.Unlock()
}

func TestManager_PlayersAreIndependent(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0), landmarkAt("L2", 150, 0))
	ctx := context.Background()

	h.m.StartRound(ctx, "p1", round.StartParams{})
	h.m.StartRound(ctx, "p2", round.StartParams{})

	_, err := h.m.SubmitAnswer(ctx, "p1", 10)
	require.NoError(t, err)

	s1, err := h.m.Snapshot("p1")
	require.NoError(t, err)
	s2, err := h.m.Snapshot("p2")
	require.NoError(t, err)

	assert.Equal(t, 1, s1.Resolved)
	assert.Equal(t, 0, s2.Resolved)
	assert.Equal(t, 2, h.m.ActiveRounds())
}

func TestManager_SubscribeReceivesSnapshots(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0))
	ctx := context.Background()

	ch, cancel := h.m.Subscribe("p1")
	defer cancel()

	h.m.StartRound(ctx, "p1", round.StartParams{})
	_, err := h.m.UpdatePosition(ctx, "p1", core.Pose{Heading: 180})
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, round.Active.String(), first.State)
	second := <-ch
	assert.Equal(t, 180.0, second.Pose.Heading)
}

func TestManager_CancelClosesSubscription(t *testing.T) {
	h := newHarness(t)

	ch, cancel := h.m.Subscribe("p1")
	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestManager_ConcurrentPlayers(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0), landmarkAt("L2", 150, 0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			h.m.StartRound(ctx, id, round.StartParams{})
			for j := 0; j < 4; j++ {
				_, _ = h.m.SubmitAnswer(ctx, id, 5)
				_, _ = h.m.Snapshot(id)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()
	h.m.Wait()

	assert.Equal(t, 0, h.m.ActiveRounds())
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func within(t *testing.T, d time.Duration, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("%s still blocked after %s", what, d)
	}
}

// The server logs with the active round count attached to every record, and
// engines log while they hold their own lock.
func TestManager_LogContextReadsActiveRounds(t *testing.T) {
	var out lockedBuffer
	var m *Manager
	slogManager := logging.NewSlogManager()
	slogManager.Setup(&out, "debug", nil, logging.WithContext(func() []slog.Attr {
		if m == nil {
			return nil
		}
		return []slog.Attr{slog.Int("activeRounds", m.ActiveRounds())}
	}))

	var err error
	m, err = NewManager(Config{
		Round:         round.Config{AttemptBudget: 3, MaxDuration: time.Minute},
		DefaultRadius: 500,
		Cone:          core.Pose{HalfSpanDeg: 15, RadiusMeters: 100, Resolution: 20},
	}, Dependencies{
		Catalog:  &memCatalog{landmarks: []core.Landmark{landmarkAt("L1", 50, 0), landmarkAt("L2", 150, 0)}},
		Subjects: nopSubjects{},
		Puzzles:  staticPuzzles{},
		Logger:   slogManager.Logger(),
	})
	require.NoError(t, err)
	ctx := context.Background()

	within(t, 3*time.Second, "StartRound", func() {
		m.StartRound(ctx, "p1", round.StartParams{})
	})
	within(t, 3*time.Second, "SubmitAnswer", func() {
		out, err := m.SubmitAnswer(ctx, "p1", 120)
		assert.NoError(t, err)
		assert.True(t, out.TimedOut)
	})
	within(t, 3*time.Second, "FinishRound", func() {
		_, err := m.FinishRound(ctx, "p1")
		assert.NoError(t, err)
	})
	m.Wait()

	logs := out.String()
	assert.Contains(t, logs, "round started")
	assert.Contains(t, logs, "activeRounds=1")
	assert.Equal(t, 0, m.ActiveRounds())
}

func TestManager_StartAndFinishDoNotInterleave(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0), landmarkAt("L2", 150, 0))
	ctx := context.Background()

	for i := 0; i < 200; i++ {
		h.m.StartRound(ctx, "p1", round.StartParams{})

		var (
			wg        sync.WaitGroup
			started   round.Snapshot
			ended     round.Snapshot
			finishErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			started = h.m.StartRound(ctx, "p1", round.StartParams{})
		}()
		go func() {
			defer wg.Done()
			ended, finishErr = h.m.FinishRound(ctx, "p1")
		}()
		wg.Wait()

		// either the finish ended the new round, or the new round is still reachable
		live, err := h.m.Snapshot("p1")
		if finishErr == nil && ended.RoundID == started.RoundID {
			assert.ErrorIs(t, err, ErrRoundNotFound)
			continue
		}
		require.NoError(t, err, "iteration %d: started round was orphaned", i)
		assert.Equal(t, started.RoundID, live.RoundID)
		assert.False(t, live.Finished)
	}
	h.m.Wait()
}

func TestManager_SubmitAnswerAtJudgesGivenPose(t *testing.T) {
	h := newHarness(t, landmarkAt("L1", 50, 0))
	ctx := context.Background()

	snap := h.m.StartRound(ctx, "p1", round.StartParams{Pose: core.Pose{Heading: 180, HalfSpanDeg: 40}})
	require.Equal(t, 40.0, snap.Pose.HalfSpanDeg)

	out, err := h.m.SubmitAnswerAt(ctx, "p1", core.Pose{Heading: 0}, 10)
	require.NoError(t, err)
	assert.True(t, out.Correct)
	assert.Equal(t, 0.0, out.Snapshot.Pose.Heading)
	assert.Equal(t, 40.0, out.Snapshot.Pose.HalfSpanDeg, "cone shape of the round is kept")

	_, err = h.m.SubmitAnswerAt(ctx, "nobody", core.Pose{}, 10)
	assert.ErrorIs(t, err, ErrRoundNotFound)
}
