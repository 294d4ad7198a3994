package testutil

import (
	"testing"

	"camlapse/internal/archive"
	"camlapse/internal/encryption"
	"camlapse/internal/lapse"
)

// NewTestArchive creates a new in-memory archive for testing.
func NewTestArchive() *archive.MemoryArchive {
	return archive.NewMemoryArchive()
}

// NewTestDiskArchive creates a filesystem archive in a per-test temp dir.
func NewTestDiskArchive(t *testing.T) *archive.FileSystemArchive {
	t.Helper()

	a, err := archive.NewFileSystemArchive(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create archive: %v", err)
	}
	return a
}

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() lapse.Encryptor {
	return encryption.NewTestEncryptor()
}
