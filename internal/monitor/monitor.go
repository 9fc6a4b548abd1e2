package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultInterval is how often the status file is rewritten.
const DefaultInterval = time.Second

// RoundCounter reports live rounds.
type RoundCounter interface {
	ActiveRounds() int
}

// WriteStats reports the record writer state.
type WriteStats interface {
	PendingRecords() int
	GetLastDBWriteDuration() time.Duration
}

// EventQueue reports events waiting in the dispatcher.
type EventQueue interface {
	Pending() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Sessions RoundCounter
	Writer   WriteStats
	Events   EventQueue
	Logger   *slog.Logger
	// StatusDir receives status.json; empty disables the file.
	StatusDir string
	Interval  time.Duration
}

// Status is a point-in-time view of the server.
type Status struct {
	Time                time.Time `json:"time"`
	Uptime              string    `json:"uptime"`
	ActiveRounds        int       `json:"activeRounds"`
	PendingRecords      int       `json:"pendingRecords"`
	PendingEvents       int       `json:"pendingEvents"`
	LastWriteDurationMs float32   `json:"lastWriteDurationMs"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	startedAt time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps:      deps,
		startedAt: time.Now(),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus collects the current status.
func (s *Service) GetStatus() Status {
	st := Status{
		Time:   time.Now().UTC(),
		Uptime: time.Since(s.startedAt).Truncate(time.Second).String(),
	}
	if s.deps.Sessions != nil {
		st.ActiveRounds = s.deps.Sessions.ActiveRounds()
	}
	if s.deps.Events != nil {
		st.PendingEvents = s.deps.Events.Pending()
	}
	if s.deps.Writer != nil {
		st.PendingRecords = s.deps.Writer.PendingRecords()
		st.LastWriteDurationMs = float32(s.deps.Writer.GetLastDBWriteDuration().Microseconds()) / 1000
	}
	return st
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		logger := s.deps.Logger
		logger.Debug("Starting status monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := s.writeStatusFile(s.GetStatus()); err != nil {
					logger.Error("Error writing status file", "error", err)
				}
			}
		}
	}()

	return nil
}

func (s *Service) writeStatusFile(st Status) error {
	if s.deps.StatusDir == "" {
		return nil
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(s.deps.StatusDir, "status.json")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stop stops the status monitor and waits for its goroutine.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.isRunning = false
	done := s.done
	s.mu.Unlock()
	<-done
}
