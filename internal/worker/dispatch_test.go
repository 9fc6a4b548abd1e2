package worker

import (
	"compress/gzip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/landmarkhunt/hunt/internal/config"
	"github.com/landmarkhunt/hunt/internal/dispatcher"
	"github.com/landmarkhunt/hunt/internal/influx"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/internal/storage"
	"github.com/landmarkhunt/hunt/internal/storage/memory"
	"github.com/landmarkhunt/hunt/pkg/core"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Info(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

func (l *mockLogger) Error(msg string, keysAndValues ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// failingBackend rejects every record.
type failingBackend struct {
	storage.Backend
}

func (failingBackend) RecordResolution(core.Resolution) error {
	return errors.New("disk full")
}

// pendingBackend reports fixed queue stats.
type pendingBackend struct {
	storage.Backend
}

func (pendingBackend) PendingRecords() int                    { return 4 }
func (pendingBackend) GetLastDBWriteDuration() time.Duration { return 25 * time.Millisecond }

func newDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	return d
}

func closeDispatcher(t *testing.T, d *dispatcher.Dispatcher) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
}

func newMemoryBackend(t *testing.T) *memory.Backend {
	t.Helper()
	b := memory.New(config.MemoryConfig{}, nil)
	require.NoError(t, b.Init())
	return b
}

func TestRegisterHandlers(t *testing.T) {
	d := newDispatcher(t)
	m := NewManager(Dependencies{})
	m.RegisterHandlers(d)

	assert.True(t, d.HasHandler(CmdResolution))
	assert.True(t, d.HasHandler(CmdRoundEnd))
}

func TestRecorder_PersistsResolution(t *testing.T) {
	backend := newMemoryBackend(t)
	d := newDispatcher(t)
	m := NewManager(Dependencies{Backend: backend})
	m.RegisterHandlers(d)

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := m.Recorder(d)
	rec(core.Resolution{PlayerID: "p1", LandmarkID: "L1", Correct: true, ResolvedAt: at})
	rec(core.Resolution{ID: "fixed", PlayerID: "p1", LandmarkID: "L2", TimedOut: true, ResolvedAt: at.Add(time.Minute)})

	closeDispatcher(t, d)

	got, err := backend.ListResolutions(context.Background(), "p1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byLandmark := map[string]core.Resolution{}
	for _, r := range got {
		byLandmark[r.LandmarkID] = r
	}
	assert.NotEmpty(t, byLandmark["L1"].ID, "missing id is generated")
	assert.Equal(t, "fixed", byLandmark["L2"].ID)
	assert.True(t, byLandmark["L2"].TimedOut)
}

func TestHandleResolution_WrongPayload(t *testing.T) {
	m := NewManager(Dependencies{})

	_, err := m.handleResolution(dispatcher.Event{Command: CmdResolution, Payload: "nope"})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)

	_, err = m.handleRoundEnd(dispatcher.Event{Command: CmdRoundEnd, Payload: 42})
	assert.ErrorIs(t, err, ErrUnexpectedPayload)
}

func TestHandleResolution_BackendError(t *testing.T) {
	m := NewManager(Dependencies{Backend: failingBackend{}})

	_, err := m.handleResolution(dispatcher.Event{
		Command: CmdResolution,
		Payload: core.Resolution{ID: "r1"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestHandleResolution_UsesEventTimestamp(t *testing.T) {
	backend := newMemoryBackend(t)
	m := NewManager(Dependencies{Backend: backend})

	ts := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	_, err := m.handleResolution(dispatcher.Event{
		Command:   CmdResolution,
		Payload:   core.Resolution{PlayerID: "p1", LandmarkID: "L1"},
		Timestamp: ts,
	})
	require.NoError(t, err)

	got, err := backend.ListResolutions(context.Background(), "p1", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.True(t, ts.Equal(got[0].ResolvedAt))
}

func TestOnRoundEnd_WritesInfluxBackup(t *testing.T) {
	viper.Reset()
	defer viper.Reset()
	viper.Set("influx.enabled", true)
	viper.Set("influx.protocol", "http")
	viper.Set("influx.host", "127.0.0.1")
	viper.Set("influx.port", "1")

	path := filepath.Join(t.TempDir(), "metrics.lp.gz")
	im := influx.NewManager(zerolog.Nop(), path)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, im.Connect(ctx))

	d := newDispatcher(t)
	m := NewManager(Dependencies{Backend: newMemoryBackend(t), Influx: im})
	m.RegisterHandlers(d)

	m.Recorder(d)(core.Resolution{PlayerID: "p1", LandmarkID: "L1", Correct: true, ResolvedAt: time.Now()})
	m.OnRoundEnd(d)(round.Snapshot{PlayerID: "p1", RoundID: "r1", Resolved: 1, TotalTargets: 1})

	closeDispatcher(t, d)
	require.NoError(t, im.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)

	assert.Contains(t, string(data), "objective_resolved")
	assert.Contains(t, string(data), "round_finished")
}

func TestDispatchAfterCloseIsLogged(t *testing.T) {
	d := newDispatcher(t)
	m := NewManager(Dependencies{Backend: newMemoryBackend(t)})
	m.RegisterHandlers(d)
	closeDispatcher(t, d)

	// must not panic on a closed buffer
	m.Recorder(d)(core.Resolution{PlayerID: "p1"})
	m.OnRoundEnd(d)(round.Snapshot{PlayerID: "p1"})
}

func TestQueueStats(t *testing.T) {
	m := NewManager(Dependencies{Backend: pendingBackend{}})
	assert.Equal(t, 4, m.PendingRecords())
	assert.Equal(t, 25*time.Millisecond, m.GetLastDBWriteDuration())

	plain := NewManager(Dependencies{Backend: newMemoryBackend(t)})
	assert.Equal(t, 0, plain.PendingRecords())
	assert.Equal(t, time.Duration(0), plain.GetLastDBWriteDuration())
}
