// Package server exposes the round lifecycle over HTTP and WebSocket.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/landmarkhunt/hunt/internal/config"
	"github.com/landmarkhunt/hunt/internal/logging"
	"github.com/landmarkhunt/hunt/internal/monitor"
	"github.com/landmarkhunt/hunt/internal/round"
	"github.com/landmarkhunt/hunt/pkg/core"
)

// Sessions is the round lifecycle the server drives.
type Sessions interface {
	StartRound(ctx context.Context, playerID string, p round.StartParams) round.Snapshot
	UpdatePosition(ctx context.Context, playerID string, pose core.Pose) (round.Snapshot, error)
	SubmitAnswer(ctx context.Context, playerID string, elapsedSeconds float64) (round.Outcome, error)
	SubmitAnswerAt(ctx context.Context, playerID string, pose core.Pose, elapsedSeconds float64) (round.Outcome, error)
	FinishRound(ctx context.Context, playerID string) (round.Snapshot, error)
	Snapshot(playerID string) (round.Snapshot, error)
	Subscribe(playerID string) (<-chan round.Snapshot, func())
}

// Profiles reads and updates player data.
type Profiles interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	UpdateUserPreferences(ctx context.Context, id, language, style string) error
	ListResolutions(ctx context.Context, playerID string, limit int) ([]core.Resolution, error)
}

// CityLandmarks lists the landmarks of a city.
type CityLandmarks interface {
	Get(ctx context.Context, city string) ([]core.Landmark, error)
}

// StatusReporter reports server health.
type StatusReporter interface {
	GetStatus() monitor.Status
}

// Dependencies holds all dependencies of the server
type Dependencies struct {
	Sessions  Sessions
	Profiles  Profiles
	Landmarks CityLandmarks
	Monitor   StatusReporter
	Logger    *slog.Logger
}

// Server runs the game API.
type Server struct {
	deps       Dependencies
	cfg        config.ServerConfig
	httpServer *http.Server
	startTime  time.Time
}

// New creates a server. Call Start to listen.
func New(cfg config.ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Server{
		deps:      deps,
		cfg:       cfg,
		startTime: time.Now(),
	}
}

// Routes sets up the HTTP routes with their middleware.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequest)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)

	r.Route("/api/game", func(r chi.Router) {
		r.Post("/init-game", s.handleInitGame)
		r.Post("/start-round", s.handleStartRound)
		r.Post("/update-position", s.handleUpdatePosition)
		r.Post("/submit-answer", s.handleSubmitAnswer)
		r.Post("/finish-round", s.handleFinishRound)
		r.Get("/status/{playerId}", s.handleRoundStatus)
		r.Get("/history/{playerId}", s.handleHistory)
		r.Get("/stream/{playerId}", s.handleStream)
	})

	return r
}

// Start begins listening in a goroutine. It returns when the socket is bound.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	s.deps.Logger.Info("HTTP server listening", "address", ln.Addr().String())
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.deps.Logger.Error("HTTP server stopped", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.startTime).Truncate(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeError(w, http.StatusServiceUnavailable, errTypeInternal, "monitor not configured", "")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Monitor.GetStatus())
}

func (s *Server) logRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ctx := logging.WithAttrs(r.Context(), slog.String("requestId", middleware.GetReqID(r.Context())))
		r = r.WithContext(ctx)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.deps.Logger.DebugContext(ctx, "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// writeJSON writes a JSON response with proper headers
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, errType, message, field string) {
	writeJSON(w, status, errorResponse{Type: errType, Message: message, Field: field})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	return dec.Decode(v)
}

func qInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
