package archive

import (
	"fmt"
	"path"
	"sort"
	"sync"

	"camlapse/internal/lapse"
)

// MemoryArchive is an in-memory implementation of lapse.ArchiveStore.
// Paths are virtual and rooted at "/memory"; frames are added with PutFrame.
// This implementation is safe for concurrent use.
type MemoryArchive struct {
	root    string
	mu      sync.RWMutex
	buckets map[string]map[string][]byte // bucketID -> frame path -> data
	videos  map[string][]byte
}

var _ lapse.ArchiveStore = (*MemoryArchive)(nil)

// NewMemoryArchive creates an empty in-memory archive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		root:    "/memory",
		buckets: make(map[string]map[string][]byte),
		videos:  make(map[string][]byte),
	}
}

func (m *MemoryArchive) EnsureBucket(bucketID string) (bool, error) {
	if err := validateBucketID(bucketID); err != nil {
		return false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.buckets[bucketID]; ok {
		return false, nil
	}
	m.buckets[bucketID] = make(map[string][]byte)
	return true, nil
}

func (m *MemoryArchive) Exists(bucketID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucketID]
	return ok
}

func (m *MemoryArchive) ListMembers(bucketID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	frames := m.buckets[bucketID]
	members := make([]string, 0, len(frames))
	for p := range frames {
		members = append(members, p)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MemoryArchive) ListBuckets() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buckets := make([]string, 0, len(m.buckets))
	for id := range m.buckets {
		buckets = append(buckets, id)
	}
	sort.Strings(buckets)
	return buckets, nil
}

func (m *MemoryArchive) FramePath(bucketID, frameName string) string {
	return path.Join(m.root, photosDirName, bucketID, frameName)
}

func (m *MemoryArchive) VideoPath(bucketID, ext string) string {
	return path.Join(m.root, videosDirName, bucketID+"."+ext)
}

// PutFrame stores a frame at a path previously returned by FramePath.
// Like writing into a missing directory, it fails if the bucket was never created.
func (m *MemoryArchive) PutFrame(framePath string, data []byte) error {
	bucketID := path.Base(path.Dir(framePath))

	m.mu.Lock()
	defer m.mu.Unlock()

	frames, ok := m.buckets[bucketID]
	if !ok {
		return fmt.Errorf("bucket not found: %s", bucketID)
	}
	frames[framePath] = append([]byte(nil), data...)
	return nil
}

// HasFrame reports whether a frame is stored at framePath.
func (m *MemoryArchive) HasFrame(framePath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[path.Base(path.Dir(framePath))][framePath]
	return ok
}

// PutVideo stores an assembled video at a path previously returned by VideoPath.
func (m *MemoryArchive) PutVideo(videoPath string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[videoPath] = append([]byte(nil), data...)
}

// HasVideo reports whether a video is stored at videoPath.
func (m *MemoryArchive) HasVideo(videoPath string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.videos[videoPath]
	return ok
}
