package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// compile-time checks against the engine collaborators
var (
	_ round.PuzzleProvider = (*PuzzleClient)(nil)
	_ round.PuzzleResetter = (*PuzzleClient)(nil)
	_ round.MetaEnsurer    = (*LandmarkMetaClient)(nil)
)

func TestNewPuzzleClient_TrimsTrailingSlash(t *testing.T) {
	c := NewPuzzleClient("http://localhost:5001/", 0)
	assert.Equal(t, "http://localhost:5001", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestGenerate_Success(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-riddle", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"riddle":"I stand where rivers meet"}`))
	}))
	defer server.Close()

	c := NewPuzzleClient(server.URL, time.Second)
	riddle, err := c.Generate(context.Background(), round.PuzzleRequest{
		LandmarkID: "L1",
		Difficulty: 73.1,
		Language:   "English",
		Style:      "Medieval",
		PoolIDs:    []string{"L1", "L2"},
		SessionID:  "round-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "I stand where rivers meet", riddle)

	assert.Equal(t, "L1", got["landmarkId"])
	assert.InDelta(t, 73.1, got["difficulty"], 1e-9)
	assert.Equal(t, "English", got["language"])
	assert.Equal(t, "Medieval", got["style"])
	assert.Equal(t, "round-1", got["sessionId"])
	assert.Equal(t, []any{"L1", "L2"}, got["puzzlePool"])
}

func TestGenerate_MissingRiddle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"other":"x"}`))
	}))
	defer server.Close()

	_, err := NewPuzzleClient(server.URL, time.Second).Generate(context.Background(), round.PuzzleRequest{LandmarkID: "L1"})
	assert.ErrorIs(t, err, ErrNoRiddle)
}

func TestGenerate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := NewPuzzleClient(server.URL, time.Second).Generate(context.Background(), round.PuzzleRequest{LandmarkID: "L1"})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadGateway, se.Code)
}

func TestGenerate_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	_, err := NewPuzzleClient(server.URL, time.Second).Generate(context.Background(), round.PuzzleRequest{LandmarkID: "L1"})
	assert.Error(t, err)
}

func TestGenerate_ServerDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	_, err := NewPuzzleClient(url, time.Second).Generate(context.Background(), round.PuzzleRequest{LandmarkID: "L1"})
	assert.Error(t, err)
}

func TestGenerate_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPuzzleClient(server.URL, 5*time.Second).Generate(ctx, round.PuzzleRequest{LandmarkID: "L1"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReset(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reset-session", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	err := NewPuzzleClient(server.URL, time.Second).Reset(context.Background(), "round-9")
	require.NoError(t, err)
	assert.Equal(t, "round-9", got["session_id"])
}

func TestMetaGenerate(t *testing.T) {
	var got map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/generate-landmark-meta", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"status":"ok","generated":1,"skipped":1,"failed":0}`))
	}))
	defer server.Close()

	c := NewLandmarkMetaClient(server.URL, time.Second, nil)
	res, err := c.Generate(context.Background(), []string{"L1", "", "L2", "L1"})
	require.NoError(t, err)

	assert.Equal(t, []string{"L1", "L2"}, got["landmarkIds"])
	assert.Equal(t, MetaResult{Status: "ok", Generated: 1, Skipped: 1}, res)
}

func TestMetaGenerate_EmptyBatchSkipsRequest(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	c := NewLandmarkMetaClient(server.URL, time.Second, nil)
	res, err := c.Generate(context.Background(), []string{"", ""})
	require.NoError(t, err)
	assert.Equal(t, "empty", res.Status)
	assert.False(t, called)

	require.NoError(t, c.EnsureMeta(context.Background(), nil))
	assert.False(t, called)
}

func TestEnsureMeta_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	err := NewLandmarkMetaClient(server.URL, time.Second, nil).EnsureMeta(context.Background(), []string{"L1"})
	assert.Error(t, err)
}
