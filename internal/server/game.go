package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/internal/session"
	"github.com/landmarkhunt/hunt/pkg/core"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

func isGuest(userID string) bool {
	return strings.HasPrefix(userID, "guest-")
}

// POST /api/game/init-game
func (s *Server) handleInitGame(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeValidation, "invalid JSON", "")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errTypeValidation, "userId is required", "userId")
		return
	}
	if req.City == "" {
		writeError(w, http.StatusBadRequest, errTypeValidation, "city is required", "city")
		return
	}
	ctx := r.Context()

	if !isGuest(req.UserID) && (req.Language != "" || req.Style != "") && s.deps.Profiles != nil {
		if err := s.deps.Profiles.UpdateUserPreferences(ctx, req.UserID, req.Language, req.Style); err != nil {
			s.deps.Logger.WarnContext(ctx, "failed to store preferences", "player", req.UserID, "error", err)
		}
	}

	// an active round keeps running; only the pose moves
	if _, err := s.deps.Sessions.UpdatePosition(ctx, req.UserID, req.pose()); err == nil {
		s.deps.Logger.DebugContext(ctx, "init-game with active round, pose updated", "player", req.UserID)
	}

	landmarks, err := s.deps.Landmarks.Get(ctx, req.City)
	if err != nil {
		s.deps.Logger.ErrorContext(ctx, "failed to list landmarks", "city", req.City, "error", err)
		writeError(w, http.StatusInternalServerError, errTypeInternal, "failed to list landmarks", "")
		return
	}

	out := make([]landmarkDTO, 0, len(landmarks))
	for _, l := range landmarks {
		out = append(out, toLandmarkDTO(l))
	}
	writeJSON(w, http.StatusOK, map[string]any{"landmarks": out})
}

// POST /api/game/start-round
func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	var req startRoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeValidation, "invalid JSON", "")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errTypeValidation, "userId is required", "userId")
		return
	}
	if isGuest(req.UserID) {
		writeError(w, http.StatusForbidden, errTypeForbidden, "must be logged in to start a round", "userId")
		return
	}
	if req.RadiusMeters < 0 {
		writeError(w, http.StatusBadRequest, errTypeValidation, "radiusMeters must not be negative", "radiusMeters")
		return
	}
	ctx := r.Context()

	language, style := req.Language, req.Style
	if (language == "" || style == "") && s.deps.Profiles != nil {
		if u, err := s.deps.Profiles.GetUser(ctx, req.UserID); err == nil {
			if language == "" {
				language = u.PreferredLanguage
			}
			if style == "" {
				style = u.PreferredStyle
			}
		}
	}

	snap := s.deps.Sessions.StartRound(ctx, req.UserID, round.StartParams{
		Pose:     req.pose(),
		Radius:   req.RadiusMeters,
		City:     req.City,
		Language: language,
		Style:    style,
	})
	if snap.Objective == nil {
		writeError(w, http.StatusNotFound, errTypeNotFound, "no target available", "")
		return
	}
	writeJSON(w, http.StatusOK, toRoundResponse(snap))
}

// POST /api/game/update-position
func (s *Server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeValidation, "invalid JSON", "")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errTypeValidation, "userId is required", "userId")
		return
	}
	if isGuest(req.UserID) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Guest position ignored."})
		return
	}

	snap, err := s.deps.Sessions.UpdatePosition(r.Context(), req.UserID, req.pose())
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Player position updated.",
		"detected": snap.Detected,
		"cone":     snap.Cone,
	})
}

// POST /api/game/submit-answer
func (s *Server) handleSubmitAnswer(w http.ResponseWriter, r *http.Request) {
	var req submitAnswerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeValidation, "invalid JSON", "")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errTypeValidation, "userId is required", "userId")
		return
	}
	if req.SecondsUsed < 0 {
		writeError(w, http.StatusBadRequest, errTypeValidation, "secondsUsed must not be negative", "secondsUsed")
		return
	}
	ctx := r.Context()

	var (
		out round.Outcome
		err error
	)
	if req.Latitude != nil && req.Longitude != nil && req.CurrentAngle != nil {
		// cone shape stays that of the round
		pose := core.Pose{Lat: *req.Latitude, Lng: *req.Longitude, Heading: *req.CurrentAngle}
		out, err = s.deps.Sessions.SubmitAnswerAt(ctx, req.UserID, pose, req.SecondsUsed)
	} else {
		out, err = s.deps.Sessions.SubmitAnswer(ctx, req.UserID, req.SecondsUsed)
	}
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSubmitResponse(out))
}

// POST /api/game/finish-round
func (s *Server) handleFinishRound(w http.ResponseWriter, r *http.Request) {
	var req finishRoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, errTypeValidation, "invalid JSON", "")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, errTypeValidation, "userId is required", "userId")
		return
	}

	resp := map[string]any{"message": "Game session ended."}
	snap, err := s.deps.Sessions.FinishRound(r.Context(), req.UserID)
	switch {
	case err == nil:
		resp["resolved"] = snap.Resolved
		resp["totalTargets"] = snap.TotalTargets
	case errors.Is(err, session.ErrRoundNotFound):
	default:
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /api/game/status/{playerId}
func (s *Server) handleRoundStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := s.deps.Sessions.Snapshot(chi.URLParam(r, "playerId"))
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GET /api/game/history/{playerId}?limit=N
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Profiles == nil {
		writeError(w, http.StatusServiceUnavailable, errTypeInternal, "history not available", "")
		return
	}
	playerID := chi.URLParam(r, "playerId")
	limit := clampInt(qInt(r, "limit", defaultHistoryLimit), 1, maxHistoryLimit)

	records, err := s.deps.Profiles.ListResolutions(r.Context(), playerID, limit)
	if err != nil {
		s.deps.Logger.ErrorContext(r.Context(), "failed to list resolutions", "player", playerID, "error", err)
		writeError(w, http.StatusInternalServerError, errTypeInternal, "failed to list history", "")
		return
	}
	if records == nil {
		records = []core.Resolution{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrRoundNotFound):
		writeError(w, http.StatusNotFound, errTypeNotFound, "no active round", "")
	case errors.Is(err, round.ErrNoObjective):
		writeError(w, http.StatusNotFound, errTypeNotFound, "objective not found", "")
	default:
		s.deps.Logger.ErrorContext(r.Context(), "session operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, errTypeInternal, "internal error", "")
	}
}
