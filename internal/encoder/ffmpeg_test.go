package encoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"camlapse/internal/config"
)

func writeFrames(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(n), 0644); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

func TestStageSequence(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	frames := writeFrames(t, src,
		"frame-2024-03-10_09.00.00.jpg",
		"frame-2024-03-10_09.05.00.jpg",
		"frame-2024-03-10_09.10.00.jpg",
	)

	stage := t.TempDir()
	pattern, err := stageSequence(stage, frames)
	if err != nil {
		t.Fatalf("stageSequence() error = %v", err)
	}
	if want := filepath.Join(stage, "frame_%06d.jpg"); pattern != want {
		t.Errorf("pattern = %q, want %q", pattern, want)
	}

	for i, f := range frames {
		staged := filepath.Join(stage, fmt.Sprintf("frame_%06d.jpg", i))
		got, err := os.ReadFile(staged)
		if err != nil {
			t.Fatalf("ReadFile(%s) error = %v", staged, err)
		}
		if string(got) != filepath.Base(f) {
			t.Errorf("staged[%d] = %q, want contents of %s", i, got, filepath.Base(f))
		}
	}
}

func TestStageSequence_MixedFormats(t *testing.T) {
	t.Parallel()

	frames := writeFrames(t, t.TempDir(), "frame-a.jpg", "frame-b.png")
	if _, err := stageSequence(t.TempDir(), frames); err == nil {
		t.Error("stageSequence() expected error for mixed extensions")
	}
}

func TestFFmpegEncoder_Validation(t *testing.T) {
	t.Parallel()

	e := NewFFmpegEncoder("libx264", t.TempDir())
	out := filepath.Join(t.TempDir(), "out.mp4")

	tests := []struct {
		name   string
		frames []string
		fps    int
	}{
		{name: "no frames", frames: nil, fps: 4},
		{name: "zero fps", frames: []string{"a.jpg"}, fps: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := e.Encode(context.Background(), tt.frames, tt.fps, out); err == nil {
				t.Error("Encode() expected error")
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.Encode(ctx, []string{"a.jpg"}, 4, out); err != context.Canceled {
		t.Errorf("Encode() with canceled ctx error = %v, want context.Canceled", err)
	}
}

func TestNewEncoderFromConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewEncoderFromConfig(config.VideoConfig{FrameRate: 4, Codec: "libx264"}, ""); err != nil {
		t.Errorf("NewEncoderFromConfig() error = %v", err)
	}
	if _, err := NewEncoderFromConfig(config.VideoConfig{FrameRate: 0}, ""); err == nil {
		t.Error("NewEncoderFromConfig() expected error for zero frame rate")
	}
}

// fakeTranscode stands in for a running ffmpeg. It exits when Stop is called
// unless ignoreStop is set, in which case only kill ends it.
type fakeTranscode struct {
	ignoreStop bool

	mu      sync.Mutex
	done    chan error
	exited  bool
	stopped bool
	killed  bool
}

func newFakeTranscode() *fakeTranscode {
	return &fakeTranscode{done: make(chan error, 1)}
}

func (f *fakeTranscode) Run(bool) <-chan error { return f.done }

func (f *fakeTranscode) Stop() error {
	f.mu.Lock()
	f.stopped = true
	ignore := f.ignoreStop
	f.mu.Unlock()
	if !ignore {
		f.exit(errors.New("exit status 255"))
	}
	return nil
}

func (f *fakeTranscode) kill() {
	f.mu.Lock()
	f.killed = true
	f.mu.Unlock()
	f.exit(errors.New("signal: killed"))
}

func (f *fakeTranscode) exit(err error) {
	f.mu.Lock()
	f.exited = true
	f.mu.Unlock()
	f.done <- err
}

func TestRunTranscode(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		f := newFakeTranscode()
		f.exit(nil)
		if err := runTranscode(context.Background(), f, time.Second, f.kill); err != nil {
			t.Fatalf("runTranscode() error = %v", err)
		}
	})

	t.Run("ffmpeg failure", func(t *testing.T) {
		f := newFakeTranscode()
		f.exit(errors.New("exit status 1"))
		err := runTranscode(context.Background(), f, time.Second, f.kill)
		if err == nil || !strings.Contains(err.Error(), "exit status 1") {
			t.Fatalf("runTranscode() error = %v, want the ffmpeg failure", err)
		}
	})

	t.Run("cancel stops ffmpeg and waits for it", func(t *testing.T) {
		f := newFakeTranscode()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runTranscode(ctx, f, time.Second, f.kill)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("runTranscode() error = %v, want context.Canceled", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.stopped || !f.exited {
			t.Errorf("stopped=%v exited=%v, want both true before returning", f.stopped, f.exited)
		}
		if f.killed {
			t.Error("ffmpeg killed although it honoured the quit request")
		}
	})

	t.Run("cancel kills ffmpeg that ignores quit", func(t *testing.T) {
		f := newFakeTranscode()
		f.ignoreStop = true
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := runTranscode(ctx, f, 10*time.Millisecond, f.kill)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("runTranscode() error = %v, want context.Canceled", err)
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if !f.killed || !f.exited {
			t.Errorf("killed=%v exited=%v, want both true before returning", f.killed, f.exited)
		}
	})
}
