package worker

import (
	"errors"
	"log/slog"
	"time"

	"github.com/landmarkhunt/hunt/internal/influx"
	"github.com/landmarkhunt/hunt/internal/storage"
)

// ErrUnexpectedPayload is returned when an event carries the wrong payload type.
var ErrUnexpectedPayload = errors.New("unexpected event payload")

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Backend storage.Backend
	// Influx is optional; points are skipped when it has no sink.
	Influx *influx.Manager
	Logger *slog.Logger
}

// Manager persists round records raised by sessions.
type Manager struct {
	deps Dependencies
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Manager{
		deps: deps,
	}
}

// GetLastDBWriteDuration returns the duration of the last DB write cycle.
// Returns 0 if the backend doesn't support this metric.
func (m *Manager) GetLastDBWriteDuration() time.Duration {
	if p, ok := m.deps.Backend.(storage.Pending); ok {
		return p.GetLastDBWriteDuration()
	}
	return 0
}

// PendingRecords returns the number of records waiting for the writer.
func (m *Manager) PendingRecords() int {
	if p, ok := m.deps.Backend.(storage.Pending); ok {
		return p.PendingRecords()
	}
	return 0
}
