// Package session maps player ids to their round engines.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/pkg/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// ErrRoundNotFound is returned when a player has no live round.
var ErrRoundNotFound = errors.New("round not found")

// Config holds round defaults applied to every player.
type Config struct {
	Round         round.Config
	DefaultRadius float64
	// Cone fills in view cone fields a client leaves at zero.
	Cone core.Pose
}

// Dependencies holds the collaborators handed to every engine.
type Dependencies struct {
	Catalog    round.Catalog
	Subjects   round.SubjectStore
	Puzzles    round.PuzzleProvider
	Meta       round.MetaEnsurer
	Recorder   round.Recorder
	OnRoundEnd func(round.Snapshot)
	Logger     *slog.Logger
}

// Manager owns one round engine per player.
// Operations of one player are serialized by that player's lock. The map
// lock only guards lookups and is never held while an engine runs.
type Manager struct {
	cfg  Config
	deps Dependencies

	mu      sync.Mutex
	players map[string]*player
	retired sync.WaitGroup

	subMu sync.Mutex
	subs  map[string]map[chan round.Snapshot]struct{}

	started  metric.Int64Counter
	resolved metric.Int64Counter
	finished metric.Int64Counter
	active   metric.Int64ObservableGauge
}

// player holds the engine of one player. A retired player has been removed
// from the map; whoever locks it afterwards must look the player up again.
type player struct {
	mu      sync.Mutex
	engine  atomic.Pointer[round.Engine]
	retired bool
}

// NewManager creates a Manager. Metrics use the global OTel meter.
func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	m := &Manager{
		cfg:     cfg,
		deps:    deps,
		players: make(map[string]*player),
		subs:    make(map[string]map[chan round.Snapshot]struct{}),
	}

	mt := meter()
	var err error

	m.started, err = mt.Int64Counter("session.rounds.started",
		metric.WithDescription("Total rounds started"))
	if err != nil {
		return nil, fmt.Errorf("creating started counter: %w", err)
	}
	m.resolved, err = mt.Int64Counter("session.objectives.resolved",
		metric.WithDescription("Total objectives resolved"))
	if err != nil {
		return nil, fmt.Errorf("creating resolved counter: %w", err)
	}
	m.finished, err = mt.Int64Counter("session.rounds.finished",
		metric.WithDescription("Total rounds finished"))
	if err != nil {
		return nil, fmt.Errorf("creating finished counter: %w", err)
	}
	m.active, err = mt.Int64ObservableGauge("session.rounds.active",
		metric.WithDescription("Rounds currently in progress"))
	if err != nil {
		return nil, fmt.Errorf("creating active gauge: %w", err)
	}
	_, err = mt.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(m.active, int64(m.ActiveRounds()))
		return nil
	}, m.active)
	if err != nil {
		return nil, fmt.Errorf("registering active callback: %w", err)
	}

	return m, nil
}

// StartRound starts a fresh round for the player, replacing any previous one.
func (m *Manager) StartRound(ctx context.Context, playerID string, p round.StartParams) round.Snapshot {
	if p.Radius <= 0 {
		p.Radius = m.cfg.DefaultRadius
	}
	p.Pose = m.applyCone(p.Pose)

	pl, _ := m.acquire(playerID, true)
	e := pl.engine.Load()
	if e == nil {
		e = m.newEngine(playerID)
		pl.engine.Store(e)
	}
	snap := e.StartRound(ctx, p)
	m.publish(snap)
	pl.mu.Unlock()

	m.started.Add(ctx, 1)
	if snap.Finished {
		m.roundEnded(ctx, snap)
	}
	return snap
}

// UpdatePosition forwards a pose to the player's round.
func (m *Manager) UpdatePosition(ctx context.Context, playerID string, pose core.Pose) (round.Snapshot, error) {
	pl, e, err := m.lookup(playerID)
	if err != nil {
		return round.Snapshot{}, err
	}
	defer pl.mu.Unlock()

	snap, err := e.UpdatePosition(ctx, m.applyCone(pose))
	if err != nil {
		return round.Snapshot{}, translate(err)
	}
	m.publish(snap)
	return snap, nil
}

// SubmitAnswer forwards an answer to the player's round.
func (m *Manager) SubmitAnswer(ctx context.Context, playerID string, elapsedSeconds float64) (round.Outcome, error) {
	return m.submit(ctx, playerID, nil, elapsedSeconds)
}

// SubmitAnswerAt moves the player to pose and judges the answer there, with
// no other operation of the player in between. Cone fields left at zero keep
// the round's current cone shape.
func (m *Manager) SubmitAnswerAt(ctx context.Context, playerID string, pose core.Pose, elapsedSeconds float64) (round.Outcome, error) {
	return m.submit(ctx, playerID, &pose, elapsedSeconds)
}

func (m *Manager) submit(ctx context.Context, playerID string, pose *core.Pose, elapsedSeconds float64) (round.Outcome, error) {
	pl, e, err := m.lookup(playerID)
	if err != nil {
		return round.Outcome{}, err
	}

	if pose != nil {
		cur := e.Snapshot().Pose
		p := *pose
		if p.HalfSpanDeg <= 0 {
			p.HalfSpanDeg = cur.HalfSpanDeg
		}
		if p.RadiusMeters <= 0 {
			p.RadiusMeters = cur.RadiusMeters
		}
		if p.Resolution <= 0 {
			p.Resolution = cur.Resolution
		}
		if _, err := e.UpdatePosition(ctx, m.applyCone(p)); err != nil {
			pl.mu.Unlock()
			return round.Outcome{}, translate(err)
		}
	}

	out, err := e.SubmitAnswer(ctx, elapsedSeconds)
	if err != nil {
		pl.mu.Unlock()
		return round.Outcome{}, translate(err)
	}
	m.publish(out.Snapshot)
	pl.mu.Unlock()

	if out.Resolved {
		attrs := metric.WithAttributes(
			attribute.Bool("correct", out.Correct),
			attribute.Bool("timed_out", out.TimedOut),
		)
		m.resolved.Add(ctx, 1, attrs)
	}
	if out.Snapshot.Finished {
		m.roundEnded(ctx, out.Snapshot)
	}
	return out, nil
}

// FinishRound ends the player's round and forgets the engine.
func (m *Manager) FinishRound(ctx context.Context, playerID string) (round.Snapshot, error) {
	pl, e, err := m.lookup(playerID)
	if err != nil {
		return round.Snapshot{}, err
	}
	wasFinished := e.IsFinished()
	snap, err := e.FinishRound(ctx)
	if err != nil {
		pl.mu.Unlock()
		return round.Snapshot{}, translate(err)
	}
	m.retire(playerID, pl, e)
	m.publish(snap)
	pl.mu.Unlock()

	if !wasFinished {
		m.roundEnded(ctx, snap)
	}
	return snap, nil
}

// Snapshot returns the player's round view.
func (m *Manager) Snapshot(playerID string) (round.Snapshot, error) {
	pl, e, err := m.lookup(playerID)
	if err != nil {
		return round.Snapshot{}, err
	}
	defer pl.mu.Unlock()
	return e.Snapshot(), nil
}

// ActiveRounds returns the number of rounds in progress. It takes no engine
// or player lock, so it is safe to call from a log handler.
func (m *Manager) ActiveRounds() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, pl := range m.players {
		if e := pl.engine.Load(); e != nil && e.Active() {
			n++
		}
	}
	return n
}

// Wait blocks until background work of all engines, retired ones included, is done.
func (m *Manager) Wait() {
	m.mu.Lock()
	engines := make([]*round.Engine, 0, len(m.players))
	for _, pl := range m.players {
		if e := pl.engine.Load(); e != nil {
			engines = append(engines, e)
		}
	}
	m.mu.Unlock()

	for _, e := range engines {
		e.Wait()
	}
	m.retired.Wait()
}

// acquire returns the player locked. With create, a missing player is added.
func (m *Manager) acquire(playerID string, create bool) (*player, error) {
	for {
		m.mu.Lock()
		pl, ok := m.players[playerID]
		if !ok {
			if !create {
				m.mu.Unlock()
				return nil, ErrRoundNotFound
			}
			pl = &player{}
			m.players[playerID] = pl
		}
		m.mu.Unlock()

		pl.mu.Lock()
		if !pl.retired {
			return pl, nil
		}
		pl.mu.Unlock()
	}
}

// lookup returns the locked player and its engine.
func (m *Manager) lookup(playerID string) (*player, *round.Engine, error) {
	pl, err := m.acquire(playerID, false)
	if err != nil {
		return nil, nil, err
	}
	e := pl.engine.Load()
	if e == nil {
		pl.mu.Unlock()
		return nil, nil, ErrRoundNotFound
	}
	return pl, e, nil
}

// retire removes a locked player from the map. Its engine's background calls
// still count for Wait.
func (m *Manager) retire(playerID string, pl *player, e *round.Engine) {
	m.mu.Lock()
	if m.players[playerID] == pl {
		delete(m.players, playerID)
	}
	m.mu.Unlock()
	pl.retired = true

	m.retired.Add(1)
	go func() {
		defer m.retired.Done()
		e.Wait()
	}()
}

func (m *Manager) newEngine(playerID string) *round.Engine {
	return round.New(playerID, m.cfg.Round, round.Dependencies{
		Catalog:  m.deps.Catalog,
		Subjects: m.deps.Subjects,
		Puzzles:  m.deps.Puzzles,
		Meta:     m.deps.Meta,
		Recorder: m.deps.Recorder,
		Logger:   m.deps.Logger,
	})
}

func (m *Manager) applyCone(p core.Pose) core.Pose {
	if p.HalfSpanDeg <= 0 {
		p.HalfSpanDeg = m.cfg.Cone.HalfSpanDeg
	}
	if p.RadiusMeters <= 0 {
		p.RadiusMeters = m.cfg.Cone.RadiusMeters
	}
	if p.Resolution <= 0 {
		p.Resolution = m.cfg.Cone.Resolution
	}
	return p
}

func (m *Manager) roundEnded(ctx context.Context, snap round.Snapshot) {
	m.finished.Add(ctx, 1)
	if m.deps.OnRoundEnd != nil {
		m.deps.OnRoundEnd(snap)
	}
}

// translate maps engine lifecycle errors to ErrRoundNotFound.
func translate(err error) error {
	if errors.Is(err, round.ErrRoundFinished) || errors.Is(err, round.ErrRoundNotStarted) {
		return fmt.Errorf("%w: %v", ErrRoundNotFound, err)
	}
	return err
}
