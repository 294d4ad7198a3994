package delivery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"camlapse/internal/lapse"
)

// MemoryChannel keeps delivered videos in memory, keyed by base name.
// This implementation is safe for concurrent use.
type MemoryChannel struct {
	mu     sync.RWMutex
	videos map[string][]byte
}

var _ lapse.DeliveryChannel = (*MemoryChannel)(nil)

func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{videos: make(map[string][]byte)}
}

func (m *MemoryChannel) Name() string { return "memory" }

func (m *MemoryChannel) Deliver(ctx context.Context, videoPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(videoPath)
	if err != nil {
		return fmt.Errorf("reading video: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[filepath.Base(videoPath)] = data
	return nil
}

// Get returns a delivered video by base name.
func (m *MemoryChannel) Get(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.videos[name]
	return data, ok
}

// Names lists delivered videos in sorted order.
func (m *MemoryChannel) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.videos))
	for n := range m.videos {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
