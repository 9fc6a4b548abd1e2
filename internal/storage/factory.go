// internal/storage/factory.go
package storage

import (
	"fmt"
	"log/slog"

	"github.com/landmarkhunt/hunt/internal/config"
	"github.com/landmarkhunt/hunt/internal/storage/memory"
	"github.com/landmarkhunt/hunt/internal/storage/postgres"
	sqlitestorage "github.com/landmarkhunt/hunt/internal/storage/sqlite"
)

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgres.New(logger), nil
	case "sqlite":
		b, err := sqlitestorage.New(sqlitestorage.Config{
			DumpPath:     cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
		}, logger)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "memory", "":
		return memory.New(cfg.Memory, logger), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

var (
	_ Backend = (*memory.Backend)(nil)
	_ Backend = (*sqlitestorage.Backend)(nil)
	_ Backend = (*postgres.Backend)(nil)
	_ Pending = (*sqlitestorage.Backend)(nil)
	_ Pending = (*postgres.Backend)(nil)
)
