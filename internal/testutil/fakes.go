package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"camlapse/internal/archive"
)

// FakeDevice records every capture. With Archive set, frames land in the
// memory archive; otherwise a small file is written at the destination path.
type FakeDevice struct {
	Archive *archive.MemoryArchive

	mu    sync.Mutex
	err   error
	paths []string
}

func NewFakeDevice(a *archive.MemoryArchive) *FakeDevice {
	return &FakeDevice{Archive: a}
}

// SetErr makes subsequent captures fail with err. nil restores success.
func (d *FakeDevice) SetErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.err = err
}

func (d *FakeDevice) Capture(_ context.Context, destPath string) error {
	d.mu.Lock()
	d.paths = append(d.paths, destPath)
	err := d.err
	d.mu.Unlock()

	if err != nil {
		return err
	}
	if d.Archive != nil {
		return d.Archive.PutFrame(destPath, []byte("jpeg"))
	}
	return os.WriteFile(destPath, []byte("jpeg"), 0644)
}

// Captured returns the destination paths of all capture attempts.
func (d *FakeDevice) Captured() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.paths...)
}

// EncodeCall captures the arguments of one Encode invocation.
type EncodeCall struct {
	Frames    []string
	FrameRate int
	Output    string
}

// FakeEncoder records calls and writes a placeholder video on success.
// With Block set, Encode waits for the channel to close or ctx to end.
type FakeEncoder struct {
	Archive *archive.MemoryArchive
	Block   chan struct{}

	mu    sync.Mutex
	err   error
	calls []EncodeCall
}

func NewFakeEncoder(a *archive.MemoryArchive) *FakeEncoder {
	return &FakeEncoder{Archive: a}
}

func (e *FakeEncoder) SetErr(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func (e *FakeEncoder) Encode(ctx context.Context, frames []string, frameRate int, output string) error {
	e.mu.Lock()
	e.calls = append(e.calls, EncodeCall{Frames: append([]string(nil), frames...), FrameRate: frameRate, Output: output})
	err := e.err
	block := e.Block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	if e.Archive != nil {
		e.Archive.PutVideo(output, []byte("video"))
		return nil
	}
	return os.WriteFile(output, []byte("video"), 0644)
}

func (e *FakeEncoder) Calls() []EncodeCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]EncodeCall(nil), e.calls...)
}

// RecordingChannel is a DeliveryChannel that remembers delivered paths.
type RecordingChannel struct {
	mu        sync.Mutex
	err       error
	delivered []string
}

func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{}
}

func (c *RecordingChannel) SetErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *RecordingChannel) Deliver(_ context.Context, videoPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.delivered = append(c.delivered, videoPath)
	if c.err != nil {
		return fmt.Errorf("recording channel: %w", c.err)
	}
	return nil
}

func (c *RecordingChannel) Name() string { return "recording" }

func (c *RecordingChannel) Delivered() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.delivered...)
}

// RecordingSubmitter accepts every bucket and remembers the order.
type RecordingSubmitter struct {
	mu      sync.Mutex
	buckets []string
}

func NewRecordingSubmitter() *RecordingSubmitter {
	return &RecordingSubmitter{}
}

func (s *RecordingSubmitter) Submit(bucketID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buckets = append(s.buckets, bucketID)
	return true
}

func (s *RecordingSubmitter) Submitted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.buckets...)
}
