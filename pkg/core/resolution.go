// pkg/core/resolution.go
package core

import "time"

// Resolution records how one objective of a round was resolved.
type Resolution struct {
	ID                  string    `json:"id"`
	RoundID             string    `json:"roundId"`
	PlayerID            string    `json:"playerId"`
	LandmarkID          string    `json:"landmarkId"`
	LandmarkName        string    `json:"landmarkName"`
	Correct             bool      `json:"correct"`
	TimedOut            bool      `json:"timedOut"`
	AttemptsUsed        int       `json:"attemptsUsed"`
	ElapsedSeconds      float64   `json:"elapsedSeconds"`
	UserRatingBefore    float64   `json:"userRatingBefore"`
	UserRatingAfter     float64   `json:"userRatingAfter"`
	LandmarkRatingAfter float64   `json:"landmarkRatingAfter"`
	ResolvedAt          time.Time `json:"resolvedAt"`
}
