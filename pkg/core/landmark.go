// pkg/core/landmark.go
package core

import "time"

// DefaultRating is the neutral rating and uncertainty for subjects without history.
const DefaultRating = 0.5

// RatingState is the part of a user or landmark the rating update reads.
type RatingState struct {
	Rating       float64
	Uncertainty  float64
	LastActivity time.Time // zero if never active
}

// RatingSubject is implemented by anything that carries a rating.
type RatingSubject interface {
	RatingState() RatingState
}

// Landmark is a catalog entry the player can be asked to find.
type Landmark struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	City         string    `json:"city"`
	Centroid     LatLng    `json:"centroid"`
	Footprint    Ring      `json:"footprint"`
	Rating       float64   `json:"rating"`
	Uncertainty  float64   `json:"uncertainty"`
	LastResolved time.Time `json:"lastResolved"`
}

// RatingState implements RatingSubject.
func (l Landmark) RatingState() RatingState {
	return RatingState{
		Rating:       l.Rating,
		Uncertainty:  l.Uncertainty,
		LastActivity: l.LastResolved,
	}
}

// User is a player account.
type User struct {
	ID                string    `json:"id"`
	Username          string    `json:"username"`
	Rating            float64   `json:"rating"`
	Uncertainty       float64   `json:"uncertainty"`
	LastGameAt        time.Time `json:"lastGameAt"`
	PreferredLanguage string    `json:"preferredLanguage,omitempty"`
	PreferredStyle    string    `json:"preferredStyle,omitempty"`
}

// RatingState implements RatingSubject.
func (u User) RatingState() RatingState {
	return RatingState{
		Rating:       u.Rating,
		Uncertainty:  u.Uncertainty,
		LastActivity: u.LastGameAt,
	}
}

// NewUser returns a user with neutral rating.
func NewUser(id string) User {
	return User{
		ID:          id,
		Username:    id,
		Rating:      DefaultRating,
		Uncertainty: DefaultRating,
	}
}
