package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"camlapse/internal/lapse"
)

// FileSystemChannel delivers videos by copying them into a directory, e.g. a
// mounted network share.
type FileSystemChannel struct {
	root string
}

var _ lapse.DeliveryChannel = (*FileSystemChannel)(nil)

// NewFileSystemChannel creates root if needed.
func NewFileSystemChannel(root string) (*FileSystemChannel, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create delivery directory: %w", err)
	}
	return &FileSystemChannel{root: root}, nil
}

func (c *FileSystemChannel) Name() string { return "filesystem" }

// Deliver copies the video under its base name. An existing copy is replaced.
func (c *FileSystemChannel) Deliver(ctx context.Context, videoPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	src, err := os.Open(videoPath)
	if err != nil {
		return fmt.Errorf("opening video: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return fmt.Errorf("stat video: %w", err)
	}

	return c.writeFile(filepath.Join(c.root, filepath.Base(videoPath)), src, info.Size())
}

// writeFile writes r to destPath via a temp file and rename so readers of the
// share never see a partial video.
func (c *FileSystemChannel) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	tmpFile, err := os.CreateTemp(c.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}
