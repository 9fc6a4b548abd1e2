package server

import (
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/pkg/core"
)

// positionRequest is shared by init-game and update-position.
type positionRequest struct {
	UserID           string  `json:"userId"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	Angle            float64 `json:"angle"`
	SpanDeg          float64 `json:"spanDeg"`
	ConeRadiusMeters float64 `json:"coneRadiusMeters"`
	City             string  `json:"city"`
	Language         string  `json:"language"`
	Style            string  `json:"style"`
}

func (r positionRequest) pose() core.Pose {
	return core.Pose{
		Lat:          r.Latitude,
		Lng:          r.Longitude,
		Heading:      r.Angle,
		HalfSpanDeg:  r.SpanDeg,
		RadiusMeters: r.ConeRadiusMeters,
	}
}

type startRoundRequest struct {
	positionRequest
	RadiusMeters float64 `json:"radiusMeters"`
}

type submitAnswerRequest struct {
	UserID       string   `json:"userId"`
	SecondsUsed  float64  `json:"secondsUsed"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	CurrentAngle *float64 `json:"currentAngle"`
}

type finishRoundRequest struct {
	UserID string `json:"userId"`
}

// landmarkDTO is a landmark as drawn by the client. Coordinates are [lat, lng] pairs.
type landmarkDTO struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Centroid    core.LatLng  `json:"centroid"`
	Coordinates [][2]float64 `json:"coordinates"`
}

func toLandmarkDTO(l core.Landmark) landmarkDTO {
	coords := make([][2]float64, 0, len(l.Footprint))
	for _, p := range l.Footprint {
		coords = append(coords, [2]float64{p.Lat, p.Lng})
	}
	return landmarkDTO{
		ID:          l.ID,
		Name:        l.Name,
		Centroid:    l.Centroid,
		Coordinates: coords,
	}
}

// targetDTO is the current objective.
type targetDTO struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Centroid     core.LatLng `json:"centroid"`
	Riddle       string      `json:"riddle"`
	AttemptsLeft int         `json:"attemptsLeft"`
}

func targetOf(s round.Snapshot) *targetDTO {
	if s.Objective == nil {
		return nil
	}
	return &targetDTO{
		ID:           s.Objective.ID,
		Name:         s.Objective.Name,
		Centroid:     s.Objective.Centroid,
		Riddle:       s.Puzzle,
		AttemptsLeft: s.AttemptsLeft,
	}
}

type roundResponse struct {
	RoundID      string     `json:"roundId"`
	Target       *targetDTO `json:"target,omitempty"`
	PoolSize     int        `json:"poolSize"`
	TotalTargets int        `json:"totalTargets"`
	Resolved     int        `json:"resolved"`
	Finished     bool       `json:"finished"`
}

func toRoundResponse(s round.Snapshot) roundResponse {
	return roundResponse{
		RoundID:      s.RoundID,
		Target:       targetOf(s),
		PoolSize:     s.PoolSize,
		TotalTargets: s.TotalTargets,
		Resolved:     s.Resolved,
		Finished:     s.Finished,
	}
}

type ratingDTO struct {
	UserRating     float64 `json:"userRating"`
	LandmarkRating float64 `json:"landmarkRating"`
	Score          float64 `json:"score"`
}

type submitAnswerResponse struct {
	IsCorrect    bool       `json:"isCorrect"`
	TimedOut     bool       `json:"timedOut"`
	GameFinished bool       `json:"gameFinished"`
	Message      string     `json:"message"`
	AttemptsLeft int        `json:"attemptsLeft"`
	Target       *targetDTO `json:"target,omitempty"`
	Rating       *ratingDTO `json:"rating,omitempty"`
}

// Submission messages shown to the player.
const (
	msgCompleted = "Congratulations! You've completed all targets in this round."
	msgGameOver  = "Game over. You've exhausted all attempts for the available targets."
	msgCorrect   = "Correct! Next target selected."
	msgTimedOut  = "Time is up. Next target selected."
	msgIncorrect = "Incorrect. Try again or check your position."
)

func submitMessage(out round.Outcome) string {
	finished := out.Snapshot.Finished
	switch {
	case finished && out.Correct:
		return msgCompleted
	case finished:
		return msgGameOver
	case out.Correct:
		return msgCorrect
	case out.TimedOut:
		return msgTimedOut
	default:
		return msgIncorrect
	}
}

func toSubmitResponse(out round.Outcome) submitAnswerResponse {
	resp := submitAnswerResponse{
		IsCorrect:    out.Correct,
		TimedOut:     out.TimedOut,
		GameFinished: out.Snapshot.Finished,
		Message:      submitMessage(out),
		AttemptsLeft: out.AttemptsLeft,
	}
	if !resp.GameFinished {
		resp.Target = targetOf(out.Snapshot)
		if resp.Target != nil && out.Resolved {
			resp.AttemptsLeft = resp.Target.AttemptsLeft
		}
	}
	if out.Rating != nil {
		resp.Rating = &ratingDTO{
			UserRating:     out.Rating.UserRating,
			LandmarkRating: out.Rating.LandmarkRating,
			Score:          out.Rating.Score,
		}
	}
	return resp
}

// errorResponse is the body of every non-2xx answer.
type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Error types
const (
	errTypeValidation = "VALIDATION_ERROR"
	errTypeForbidden  = "FORBIDDEN"
	errTypeNotFound   = "NOT_FOUND"
	errTypeInternal   = "SERVER_ERROR"
)
