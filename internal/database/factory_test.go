package database

import (
	"os"
	"path/filepath"
	"testing"

	"camlapse/internal/config"
)

func TestNewHistoryFromConfig(t *testing.T) {
	t.Run("memory database", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.DatabaseConfig{Type: "memory"})
		if err != nil {
			t.Fatalf("NewHistoryFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if got.Path() != ":memory:" {
			t.Errorf("Path() = %q, want :memory:", got.Path())
		}
	})

	t.Run("sqlite database creates data_dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "db")
		got, err := NewHistoryFromConfig(config.DatabaseConfig{Type: "sqlite", DataDir: dir})
		if err != nil {
			t.Fatalf("NewHistoryFromConfig() unexpected error: %v", err)
		}
		defer got.Close()

		if err := got.CheckMigrations(); err != nil {
			t.Errorf("CheckMigrations() error = %v", err)
		}
		if _, err := os.Stat(filepath.Join(dir, HistoryFileName)); err != nil {
			t.Errorf("database file not created: %v", err)
		}
	})

	t.Run("sqlite database without data_dir", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.DatabaseConfig{Type: "sqlite"})
		if err == nil {
			t.Error("NewHistoryFromConfig() expected error for missing data_dir, got nil")
		}
		if got != nil {
			t.Error("NewHistoryFromConfig() should return nil on error")
			got.Close()
		}
	})

	t.Run("unknown database type", func(t *testing.T) {
		got, err := NewHistoryFromConfig(config.DatabaseConfig{Type: "unknown"})
		if err == nil {
			t.Error("NewHistoryFromConfig() expected error for unknown type, got nil")
		}
		if got != nil {
			t.Error("NewHistoryFromConfig() should return nil on error")
			got.Close()
		}
	})
}
