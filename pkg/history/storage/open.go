package storage

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"incipit-hq/incipit/pkg/history"
)

// DriverMemory selects the in-memory backend.
const DriverMemory = "memory"

// Open returns the backend for driver. SQLite drivers create the parent
// directory of path if it does not exist.
func Open(driver, path string, logger *slog.Logger) (history.Storage, error) {
	switch driver {
	case DriverMemory:
		return NewMemoryStorage(), nil

	case DriverSQLite, DriverSQLite3:
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, history.NewStorageError(driver, "open", err)
			}
		}
		cfg := DefaultSQLiteConfig(path)
		cfg.Driver = driver
		cfg.Logger = logger
		return NewSQLiteStorage(cfg)

	default:
		return nil, history.NewStorageError(driver, "open", fmt.Errorf("unknown driver %q", driver))
	}
}
