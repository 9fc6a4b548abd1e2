// Package postgres implements the storage.Backend interface on PostgreSQL.
// It wraps the GORM backend and owns the connection setup.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/landmarkhunt/hunt/internal/database"
	gormstorage "github.com/landmarkhunt/hunt/internal/storage/gorm"

	"gorm.io/gorm"
)

// MaxOpenConns caps the connection pool.
const MaxOpenConns = 10

// Opener returns a database connection.
type Opener func() (*gorm.DB, error)

// Backend wraps the GORM backend for PostgreSQL.
type Backend struct {
	*gormstorage.Backend
	open Opener
	log  *slog.Logger
}

// New creates a PostgreSQL backend that connects with the db.* config keys on Init.
func New(logger *slog.Logger) *Backend {
	return NewWithOpener(database.GetPostgresDBStandalone, logger)
}

// NewWithOpener creates a backend that obtains its connection from open.
func NewWithOpener(open Opener, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{open: open, log: logger}
}

// Init connects, validates the connection and initializes the embedded GORM backend.
func (b *Backend) Init() error {
	db, err := b.open()
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err = sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to validate connection: %w", err)
	}
	sqlDB.SetMaxOpenConns(MaxOpenConns)

	b.log.Info("Connected to database", "dialect", db.Dialector.Name())
	b.Backend = gormstorage.New(gormstorage.Dependencies{DB: db, Logger: b.log})
	return b.Backend.Init()
}

// Close closes the embedded GORM backend and the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	err := b.Backend.Close()
	if sqlDB, dbErr := b.DB().DB(); dbErr == nil {
		if closeErr := sqlDB.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}
	return err
}
