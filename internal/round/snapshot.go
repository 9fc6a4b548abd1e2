package round

import "github.com/landmarkhunt/hunt/pkg/core"

// LandmarkView is the part of a landmark shown to the player.
type LandmarkView struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	Centroid core.LatLng `json:"centroid"`
}

// Snapshot is a transport neutral view of a round.
type Snapshot struct {
	PlayerID      string        `json:"playerId"`
	RoundID       string        `json:"roundId"`
	State         string        `json:"state"`
	Finished      bool          `json:"finished"`
	Objective     *LandmarkView `json:"objective,omitempty"`
	AttemptsLeft  int           `json:"attemptsLeft"`
	Puzzle        string        `json:"puzzle,omitempty"`
	PoolSize      int           `json:"poolSize"`
	TotalTargets  int           `json:"totalTargets"`
	Resolved      int           `json:"resolved"`
	Detected      *LandmarkView `json:"detected,omitempty"`
	Pose          core.Pose     `json:"pose"`
	Cone          core.Ring     `json:"cone,omitempty"`
	TargetPoolIDs []string      `json:"targetPoolIds,omitempty"`
}

func (e *Engine) snapshot() Snapshot {
	s := Snapshot{
		PlayerID:      e.playerID,
		RoundID:       e.roundID,
		State:         e.state.String(),
		Finished:      e.state == Finished,
		PoolSize:      len(e.pool),
		TotalTargets:  len(e.byID),
		Resolved:      e.resolved,
		Pose:          e.pose,
		Cone:          append(core.Ring(nil), e.cone...),
		TargetPoolIDs: e.poolIDs(),
	}
	if l, ok := e.landmark(e.objective); ok && e.objective != "" {
		s.Objective = view(l)
		s.AttemptsLeft = e.pool.Remaining(e.objective)
		s.Puzzle = e.puzzle
	}
	if l, ok := e.landmark(e.detected); ok && e.detected != "" {
		s.Detected = view(l)
	}
	return s
}

func view(l core.Landmark) *LandmarkView {
	return &LandmarkView{ID: l.ID, Name: l.Name, Centroid: l.Centroid}
}
