package archive

import (
	"fmt"

	"camlapse/internal/config"
	"camlapse/internal/lapse"
)

// NewArchiveFromConfig creates an ArchiveStore implementation based on the archive config type.
func NewArchiveFromConfig(cfg config.ArchiveConfig) (lapse.ArchiveStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryArchive(), nil
	case "filesystem", "":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem archive requires root to be set")
		}
		return NewFileSystemArchive(cfg.Root)
	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
