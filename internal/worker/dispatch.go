package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/landmarkhunt/hunt/internal/dispatcher"
	"github.com/landmarkhunt/hunt/internal/influx"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/pkg/core"
)

// Commands raised by the session layer.
const (
	CmdResolution = ":RESOLUTION:"
	CmdRoundEnd   = ":ROUND:END:"
)

// RegisterHandlers registers the record handlers with the dispatcher.
// Both are buffered so engine calls never wait on storage.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(CmdResolution, m.handleResolution, dispatcher.Buffered(1000), dispatcher.Logged())
	d.Register(CmdRoundEnd, m.handleRoundEnd, dispatcher.Buffered(100), dispatcher.Logged())
}

// Recorder returns a round.Recorder that raises CmdResolution on d.
func (m *Manager) Recorder(d *dispatcher.Dispatcher) round.Recorder {
	return func(r core.Resolution) {
		_, err := d.Dispatch(dispatcher.Event{
			Command:   CmdResolution,
			PlayerID:  r.PlayerID,
			Payload:   r,
			Timestamp: r.ResolvedAt,
		})
		if err != nil {
			m.deps.Logger.Error("failed to dispatch resolution",
				"player", r.PlayerID, "landmark", r.LandmarkID, "error", err)
		}
	}
}

// OnRoundEnd returns a callback that raises CmdRoundEnd on d.
func (m *Manager) OnRoundEnd(d *dispatcher.Dispatcher) func(round.Snapshot) {
	return func(s round.Snapshot) {
		_, err := d.Dispatch(dispatcher.Event{
			Command:  CmdRoundEnd,
			PlayerID: s.PlayerID,
			Payload:  s,
		})
		if err != nil {
			m.deps.Logger.Error("failed to dispatch round end", "player", s.PlayerID, "error", err)
		}
	}
}

func (m *Manager) handleResolution(e dispatcher.Event) (any, error) {
	r, ok := e.Payload.(core.Resolution)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants core.Resolution, got %T", ErrUnexpectedPayload, e.Command, e.Payload)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.ResolvedAt.IsZero() {
		r.ResolvedAt = e.Timestamp
	}

	if m.deps.Backend != nil {
		if err := m.deps.Backend.RecordResolution(r); err != nil {
			return nil, fmt.Errorf("failed to record resolution %s: %w", r.ID, err)
		}
	}

	if m.deps.Influx.Enabled() {
		if err := m.deps.Influx.WritePoint(context.Background(), influx.BucketRoundMetrics, influx.ResolutionPoint(r)); err != nil {
			m.deps.Logger.Warn("failed to write resolution point", "id", r.ID, "error", err)
		}
	}

	return nil, nil
}

func (m *Manager) handleRoundEnd(e dispatcher.Event) (any, error) {
	s, ok := e.Payload.(round.Snapshot)
	if !ok {
		return nil, fmt.Errorf("%w: %s wants round.Snapshot, got %T", ErrUnexpectedPayload, e.Command, e.Payload)
	}

	m.deps.Logger.Info("round finished",
		"player", s.PlayerID,
		"round", s.RoundID,
		"resolved", s.Resolved,
		"targets", s.TotalTargets,
	)

	if m.deps.Influx.Enabled() {
		p := influx.RoundEndPoint(s.PlayerID, s.RoundID, s.Resolved, s.TotalTargets, e.Timestamp)
		if err := m.deps.Influx.WritePoint(context.Background(), influx.BucketRoundMetrics, p); err != nil {
			m.deps.Logger.Warn("failed to write round point", "round", s.RoundID, "error", err)
		}
	}

	return nil, nil
}
