package testutil

import (
	"testing"

	"camlapse/internal/database"
)

// NewTestHistory creates an in-memory job history that is closed when the test ends.
func NewTestHistory(t *testing.T) *database.SQLiteHistory {
	t.Helper()

	h, err := database.NewSQLiteHistory(":memory:")
	if err != nil {
		t.Fatalf("failed to create test history: %v", err)
	}
	t.Cleanup(func() {
		h.Close()
	})
	return h
}
