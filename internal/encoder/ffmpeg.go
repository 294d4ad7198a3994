package encoder

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xfrr/goffmpeg/transcoder"

	"camlapse/internal/lapse"
)

// sequencePattern is the printf pattern ffmpeg's image2 demuxer reads.
const sequencePattern = "frame_%06d"

// stopGrace is how long ffmpeg gets to exit after a quit request before it
// is killed.
const stopGrace = 5 * time.Second

// transcode is the part of *transcoder.Transcoder that drives the ffmpeg process.
type transcode interface {
	Run(progress bool) <-chan error
	Stop() error
}

// FFmpegEncoder turns an ordered list of still frames into a video by running
// ffmpeg over a numbered copy of the sequence.
type FFmpegEncoder struct {
	codec   string
	tempDir string
}

var _ lapse.Encoder = (*FFmpegEncoder)(nil)

// NewFFmpegEncoder returns an encoder using codec (e.g. "libx264"). Staging
// directories are created under tempDir, or os.TempDir() when empty.
func NewFFmpegEncoder(codec, tempDir string) *FFmpegEncoder {
	return &FFmpegEncoder{codec: codec, tempDir: tempDir}
}

func (e *FFmpegEncoder) Encode(ctx context.Context, framePaths []string, frameRate int, outputPath string) error {
	if len(framePaths) == 0 {
		return fmt.Errorf("no frames to encode")
	}
	if frameRate <= 0 {
		return fmt.Errorf("invalid frame rate %d", frameRate)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stageDir, err := os.MkdirTemp(e.tempDir, "camlapse-encode-*")
	if err != nil {
		return fmt.Errorf("creating staging dir: %w", err)
	}
	defer os.RemoveAll(stageDir)

	pattern, err := stageSequence(stageDir, framePaths)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("creating video directory: %w", err)
	}
	// Encode next to the destination so the final rename stays on one filesystem.
	tmpOut := filepath.Join(filepath.Dir(outputPath), ".tmp-"+filepath.Base(outputPath))
	defer os.Remove(tmpOut)

	trans := new(transcoder.Transcoder)
	if err := trans.Initialize(pattern, tmpOut); err != nil {
		return fmt.Errorf("failed to initialize transcoder: %w", err)
	}

	// image2 reads the sequence at 25fps; retime every frame to 1/frameRate.
	trans.MediaFile().SetVideoFilter(fmt.Sprintf("setpts=N/(%d*TB)", frameRate))
	trans.MediaFile().SetFrameRate(frameRate)
	trans.MediaFile().SetSkipAudio(true)
	if e.codec != "" {
		trans.MediaFile().SetVideoCodec(e.codec)
	}

	kill := func() {
		if p := trans.Process(); p != nil && p.Process != nil {
			p.Process.Kill()
		}
	}
	if err := runTranscode(ctx, trans, stopGrace, kill); err != nil {
		return err
	}

	if err := os.Rename(tmpOut, outputPath); err != nil {
		return fmt.Errorf("moving video into place: %w", err)
	}
	return nil
}

// runTranscode runs t until it finishes or ctx ends. On cancellation it asks
// ffmpeg to quit, kills it after grace, and returns only once the process
// has exited so callers can clean up its output.
func runTranscode(ctx context.Context, t transcode, grace time.Duration, kill func()) error {
	done := t.Run(false)
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("ffmpeg: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	t.Stop()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		kill()
		<-done
	}
	return ctx.Err()
}

// stageSequence links (or copies) framePaths into dir as a contiguous numbered
// sequence, preserving order, and returns the ffmpeg input pattern.
func stageSequence(dir string, framePaths []string) (string, error) {
	ext := strings.ToLower(filepath.Ext(framePaths[0]))
	for i, src := range framePaths {
		if got := strings.ToLower(filepath.Ext(src)); got != ext {
			return "", fmt.Errorf("mixed frame formats: %s and %s", ext, got)
		}
		dst := filepath.Join(dir, fmt.Sprintf(sequencePattern, i)+ext)
		abs, err := filepath.Abs(src)
		if err != nil {
			return "", err
		}
		if err := os.Symlink(abs, dst); err != nil {
			if err := copyFile(src, dst); err != nil {
				return "", fmt.Errorf("staging frame %s: %w", src, err)
			}
		}
	}
	return filepath.Join(dir, sequencePattern+ext), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
