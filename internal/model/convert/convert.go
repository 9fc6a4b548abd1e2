// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"fmt"
	"math"

	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/internal/model"
	"github.com/landmarkhunt/hunt/pkg/core"
	"gorm.io/datatypes"
)

// LandmarkToCore converts a GORM model.Landmark to a core.Landmark.
// A landmark that was never rated gets the default rating.
func LandmarkToCore(m model.Landmark) (core.Landmark, error) {
	l := core.Landmark{
		ID:          m.ID,
		Name:        m.Name,
		City:        m.City,
		Centroid:    core.LatLng{Lat: m.Latitude, Lng: m.Longitude},
		Rating:      core.DefaultRating,
		Uncertainty: core.DefaultRating,
	}
	if m.Rating.Valid {
		l.Rating = m.Rating.Float64
	}
	if m.LastResolved.Valid {
		l.LastResolved = m.LastResolved.Time
	}
	if len(m.Footprint) > 0 {
		ring, err := geo.RingFromGeoJSON(m.Footprint)
		if err != nil {
			return l, fmt.Errorf("landmark %s: %w", m.ID, err)
		}
		l.Footprint = ring
	}
	return l, nil
}

// CoreToLandmark converts a core.Landmark to a GORM model.Landmark.
// A NaN rating is stored as null.
func CoreToLandmark(l core.Landmark) (model.Landmark, error) {
	m := model.Landmark{
		ID:        l.ID,
		Name:      l.Name,
		City:      l.City,
		Latitude:  l.Centroid.Lat,
		Longitude: l.Centroid.Lng,
		Rating:    NullFloat(l.Rating),
		LastResolved: sql.NullTime{
			Time:  l.LastResolved,
			Valid: !l.LastResolved.IsZero(),
		},
	}
	if len(l.Footprint) > 0 {
		data, err := geo.RingToGeoJSON(l.Footprint)
		if err != nil {
			return m, fmt.Errorf("landmark %s: %w", l.ID, err)
		}
		m.Footprint = datatypes.JSON(data)
	}
	return m, nil
}

// UserToCore converts a GORM model.User to a core.User.
func UserToCore(m model.User) core.User {
	u := core.User{
		ID:                m.ID,
		Username:          m.Username,
		Rating:            m.Rating,
		Uncertainty:       core.DefaultRating,
		PreferredLanguage: m.PreferredLanguage,
		PreferredStyle:    m.PreferredStyle,
	}
	if m.LastGameAt.Valid {
		u.LastGameAt = m.LastGameAt.Time
	}
	return u
}

// CoreToUser converts a core.User to a GORM model.User.
func CoreToUser(u core.User) model.User {
	rating := u.Rating
	if math.IsNaN(rating) {
		rating = core.DefaultRating
	}
	return model.User{
		ID:                u.ID,
		Username:          u.Username,
		Rating:            rating,
		LastGameAt:        sql.NullTime{Time: u.LastGameAt, Valid: !u.LastGameAt.IsZero()},
		PreferredLanguage: u.PreferredLanguage,
		PreferredStyle:    u.PreferredStyle,
	}
}

// CoreToRoundRecord converts a core.Resolution to a GORM model.RoundRecord.
// core.Resolution.ID maps to RoundRecord.ResolutionID.
func CoreToRoundRecord(r core.Resolution) model.RoundRecord {
	return model.RoundRecord{
		ResolutionID:        r.ID,
		RoundID:             r.RoundID,
		PlayerID:            r.PlayerID,
		LandmarkID:          r.LandmarkID,
		LandmarkName:        r.LandmarkName,
		Correct:             r.Correct,
		TimedOut:            r.TimedOut,
		AttemptsUsed:        r.AttemptsUsed,
		ElapsedSeconds:      r.ElapsedSeconds,
		UserRatingBefore:    r.UserRatingBefore,
		UserRatingAfter:     r.UserRatingAfter,
		LandmarkRatingAfter: r.LandmarkRatingAfter,
		ResolvedAt:          r.ResolvedAt,
	}
}

// RoundRecordToCore converts a GORM model.RoundRecord to a core.Resolution.
func RoundRecordToCore(m model.RoundRecord) core.Resolution {
	return core.Resolution{
		ID:                  m.ResolutionID,
		RoundID:             m.RoundID,
		PlayerID:            m.PlayerID,
		LandmarkID:          m.LandmarkID,
		LandmarkName:        m.LandmarkName,
		Correct:             m.Correct,
		TimedOut:            m.TimedOut,
		AttemptsUsed:        m.AttemptsUsed,
		ElapsedSeconds:      m.ElapsedSeconds,
		UserRatingBefore:    m.UserRatingBefore,
		UserRatingAfter:     m.UserRatingAfter,
		LandmarkRatingAfter: m.LandmarkRatingAfter,
		ResolvedAt:          m.ResolvedAt,
	}
}

// NullFloat maps a rating to a nullable column value. NaN and infinities become null.
func NullFloat(f float64) sql.NullFloat64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: f, Valid: true}
}
