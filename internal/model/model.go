package model

import (
	"database/sql"
	"time"

	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Landmark{},
	&User{},
	&RoundRecord{},
}

////////////////////////
// CATALOG
////////////////////////

// Landmark is a catalog entry. The footprint is stored as a GeoJSON Polygon
// so the same schema works on SQLite and Postgres.
type Landmark struct {
	ID           string          `json:"id" gorm:"primaryKey;size:64"`
	Name         string          `json:"name" gorm:"size:255"`
	City         string          `json:"city" gorm:"size:127;index:idx_landmark_city"`
	Latitude     float64         `json:"latitude" gorm:"index:idx_landmark_lat_lng"`
	Longitude    float64         `json:"longitude" gorm:"index:idx_landmark_lat_lng"`
	Footprint    datatypes.JSON  `json:"footprint"`
	Rating       sql.NullFloat64 `json:"rating"` // null until first resolved
	LastResolved sql.NullTime    `json:"lastResolved"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func (*Landmark) TableName() string {
	return "landmarks"
}

////////////////////////
// PLAYERS
////////////////////////

// User is a player account with its rating.
type User struct {
	ID                string       `json:"id" gorm:"primaryKey;size:64"`
	Username          string       `json:"username" gorm:"size:127"`
	Rating            float64      `json:"rating" gorm:"default:0.5"`
	LastGameAt        sql.NullTime `json:"lastGameAt"`
	PreferredLanguage string       `json:"preferredLanguage" gorm:"size:64"`
	PreferredStyle    string       `json:"preferredStyle" gorm:"size:64"`
	CreatedAt         time.Time    `json:"createdAt"`
	UpdatedAt         time.Time    `json:"updatedAt"`
}

func (*User) TableName() string {
	return "users"
}

////////////////////////
// HISTORY
////////////////////////

// RoundRecord is one resolved objective.
type RoundRecord struct {
	ID                  uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ResolutionID        string    `json:"resolutionId" gorm:"size:36;uniqueIndex"`
	RoundID             string    `json:"roundId" gorm:"size:36;index:idx_round_record_round"`
	PlayerID            string    `json:"playerId" gorm:"size:64;index:idx_round_record_player"`
	LandmarkID          string    `json:"landmarkId" gorm:"size:64;index:idx_round_record_landmark"`
	LandmarkName        string    `json:"landmarkName" gorm:"size:255"`
	Correct             bool      `json:"correct"`
	TimedOut            bool      `json:"timedOut"`
	AttemptsUsed        int       `json:"attemptsUsed"`
	ElapsedSeconds      float64   `json:"elapsedSeconds"`
	UserRatingBefore    float64   `json:"userRatingBefore"`
	UserRatingAfter     float64   `json:"userRatingAfter"`
	LandmarkRatingAfter float64   `json:"landmarkRatingAfter"`
	ResolvedAt          time.Time `json:"resolvedAt" gorm:"index:idx_round_record_time"`
}

func (*RoundRecord) TableName() string {
	return "round_records"
}
