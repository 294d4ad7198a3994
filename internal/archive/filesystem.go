package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"camlapse/internal/lapse"
)

const (
	photosDirName = "photos"
	videosDirName = "videos"
)

// FileSystemArchive stores buckets as directories:
//
//	<root>/
//	  photos/
//	    <bucketID>/frame-<timestamp>.<ext>
//	  videos/
//	    <bucketID>.<ext>
type FileSystemArchive struct {
	root      string
	photosDir string
	videosDir string
}

var _ lapse.ArchiveStore = (*FileSystemArchive)(nil)

// NewFileSystemArchive creates the photos/ and videos/ roots if needed.
func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	photosDir := filepath.Join(root, photosDirName)
	videosDir := filepath.Join(root, videosDirName)

	if err := os.MkdirAll(photosDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create photos directory: %w", err)
	}
	if err := os.MkdirAll(videosDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create videos directory: %w", err)
	}

	return &FileSystemArchive{
		root:      root,
		photosDir: photosDir,
		videosDir: videosDir,
	}, nil
}

// Root returns the archive root directory.
func (a *FileSystemArchive) Root() string { return a.root }

// EnsureBucket creates the bucket directory with a single mkdir so that two
// racing callers cannot both observe creation.
func (a *FileSystemArchive) EnsureBucket(bucketID string) (bool, error) {
	dir, err := a.bucketDir(bucketID)
	if err != nil {
		return false, err
	}

	err = os.Mkdir(dir, 0755)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return false, fmt.Errorf("creating bucket directory: %w", err)
	}

	info, statErr := os.Stat(dir)
	if statErr != nil {
		return false, fmt.Errorf("checking bucket directory: %w", statErr)
	}
	if !info.IsDir() {
		return false, fmt.Errorf("bucket path is not a directory: %s", dir)
	}
	return false, nil
}

func (a *FileSystemArchive) Exists(bucketID string) bool {
	dir, err := a.bucketDir(bucketID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// ListMembers returns frame paths sorted by file name, which embeds the
// capture timestamp.
func (a *FileSystemArchive) ListMembers(bucketID string) ([]string, error) {
	dir, err := a.bucketDir(bucketID)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("reading bucket directory: %w", err)
	}

	// os.ReadDir returns entries sorted by name.
	members := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), lapse.FramePrefix) {
			continue
		}
		members = append(members, filepath.Join(dir, e.Name()))
	}
	return members, nil
}

func (a *FileSystemArchive) ListBuckets() ([]string, error) {
	entries, err := os.ReadDir(a.photosDir)
	if err != nil {
		return nil, fmt.Errorf("reading photos directory: %w", err)
	}

	buckets := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			buckets = append(buckets, e.Name())
		}
	}
	return buckets, nil
}

func (a *FileSystemArchive) FramePath(bucketID, frameName string) string {
	return filepath.Join(a.photosDir, bucketID, frameName)
}

func (a *FileSystemArchive) VideoPath(bucketID, ext string) string {
	return filepath.Join(a.videosDir, bucketID+"."+ext)
}

// ValidateSetup verifies that the archive directories are accessible.
func (a *FileSystemArchive) ValidateSetup() error {
	for _, dir := range []string{a.root, a.photosDir, a.videosDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("archive directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("archive path is not a directory: %s", dir)
		}
	}
	return nil
}

func (a *FileSystemArchive) bucketDir(bucketID string) (string, error) {
	if err := validateBucketID(bucketID); err != nil {
		return "", err
	}
	return filepath.Join(a.photosDir, bucketID), nil
}

func validateBucketID(bucketID string) error {
	if bucketID == "" || bucketID == "." || bucketID == ".." || strings.ContainsAny(bucketID, `/\`) {
		return fmt.Errorf("invalid bucket id: %q", bucketID)
	}
	return nil
}
