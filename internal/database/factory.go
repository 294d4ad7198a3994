package database

import (
	"fmt"
	"os"
	"path/filepath"

	"camlapse/internal/config"
)

// HistoryFileName is the SQLite file created under data_dir.
const HistoryFileName = "camlapse.db"

// NewHistoryFromConfig creates the job history based on the database config type.
func NewHistoryFromConfig(cfg config.DatabaseConfig) (*SQLiteHistory, error) {
	switch cfg.Type {
	case "sqlite":
		if cfg.DataDir == "" {
			return nil, fmt.Errorf("data_dir required for sqlite database")
		}
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, fmt.Errorf("failed to create data_dir: %w", err)
		}
		return NewSQLiteHistory(filepath.Join(cfg.DataDir, HistoryFileName))
	case "memory":
		return NewSQLiteHistory(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}
