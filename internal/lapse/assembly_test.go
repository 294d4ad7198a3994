package lapse_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"camlapse/internal/archive"
	"camlapse/internal/lapse"
	"camlapse/internal/testutil"
)

// recordingHistory keeps every transition passed to RecordJob.
type recordingHistory struct {
	mu       sync.Mutex
	statuses map[string][]lapse.JobStatus
}

func newRecordingHistory() *recordingHistory {
	return &recordingHistory{statuses: make(map[string][]lapse.JobStatus)}
}

func (h *recordingHistory) RecordJob(job *lapse.AssemblyJob) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[job.BucketID] = append(h.statuses[job.BucketID], job.Status)
	return nil
}

func (h *recordingHistory) transitions(bucketID string) []lapse.JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]lapse.JobStatus(nil), h.statuses[bucketID]...)
}

type assemblyFixture struct {
	archive *archive.MemoryArchive
	encoder *testutil.FakeEncoder
	channel *testutil.RecordingChannel
	history *recordingHistory
	coord   *lapse.AssemblyCoordinator
}

func newAssemblyFixture(t *testing.T) *assemblyFixture {
	t.Helper()
	a := testutil.NewTestArchive()
	f := &assemblyFixture{
		archive: a,
		encoder: testutil.NewFakeEncoder(a),
		channel: testutil.NewRecordingChannel(),
		history: newRecordingHistory(),
	}
	f.coord = lapse.NewAssemblyCoordinator(
		f.archive, f.encoder, f.channel, f.history, lapse.NewNopLogger(),
		testutil.FixedClock(), testutil.NewStubIDGenerator(),
		lapse.AssemblyOptions{FrameRate: 4, VideoExt: "mp4"},
	)
	return f
}

func (f *assemblyFixture) seed(t *testing.T, bucketID string, frames ...string) []string {
	t.Helper()
	if _, err := f.archive.EnsureBucket(bucketID); err != nil {
		t.Fatalf("EnsureBucket() error = %v", err)
	}
	var paths []string
	for _, name := range frames {
		p := f.archive.FramePath(bucketID, name)
		if err := f.archive.PutFrame(p, []byte("jpeg")); err != nil {
			t.Fatalf("PutFrame() error = %v", err)
		}
		paths = append(paths, p)
	}
	return paths
}

func equalStatuses(a, b []lapse.JobStatus) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAssemblyCoordinator_Assemble(t *testing.T) {
	t.Run("encodes in capture order and delivers", func(t *testing.T) {
		f := newAssemblyFixture(t)
		frames := f.seed(t, "2024-03-10",
			"frame-2024-03-10_10.00.00.jpg",
			"frame-2024-03-09_22.00.00.jpg",
			"frame-2024-03-10_21.55.00.jpg",
		)

		job := f.coord.Assemble(context.Background(), "2024-03-10")

		if job.Status != lapse.JobDone {
			t.Fatalf("Status = %q, want %q (err=%v)", job.Status, lapse.JobDone, job.Err)
		}
		calls := f.encoder.Calls()
		if len(calls) != 1 {
			t.Fatalf("encoder called %d times, want 1", len(calls))
		}
		want := []string{frames[1], frames[0], frames[2]}
		for i := range want {
			if calls[0].Frames[i] != want[i] {
				t.Errorf("Frames[%d] = %q, want %q", i, calls[0].Frames[i], want[i])
			}
		}
		if calls[0].FrameRate != 4 {
			t.Errorf("FrameRate = %d, want 4", calls[0].FrameRate)
		}
		if calls[0].Output != "/memory/videos/2024-03-10.mp4" {
			t.Errorf("Output = %q, want %q", calls[0].Output, "/memory/videos/2024-03-10.mp4")
		}
		if got := f.channel.Delivered(); len(got) != 1 || got[0] != job.VideoPath {
			t.Errorf("Delivered() = %v, want [%s]", got, job.VideoPath)
		}

		wantTransitions := []lapse.JobStatus{lapse.JobPending, lapse.JobEncoding, lapse.JobDelivering, lapse.JobDone}
		if got := f.history.transitions("2024-03-10"); !equalStatuses(got, wantTransitions) {
			t.Errorf("recorded transitions = %v, want %v", got, wantTransitions)
		}
	})

	t.Run("empty bucket is skipped without encode or delivery", func(t *testing.T) {
		f := newAssemblyFixture(t)
		f.seed(t, "2024-03-10")

		job := f.coord.Assemble(context.Background(), "2024-03-10")

		if job.Status != lapse.JobSkipped {
			t.Errorf("Status = %q, want %q", job.Status, lapse.JobSkipped)
		}
		if job.Err != nil {
			t.Errorf("Err = %v, want nil", job.Err)
		}
		if len(f.encoder.Calls()) != 0 {
			t.Error("encoder was called for an empty bucket")
		}
		if len(f.channel.Delivered()) != 0 {
			t.Error("delivery was called for an empty bucket")
		}
	})

	t.Run("encoder failure keeps frames and skips delivery", func(t *testing.T) {
		f := newAssemblyFixture(t)
		frames := f.seed(t, "2024-03-10", "frame-2024-03-10_10.00.00.jpg", "frame-2024-03-10_10.05.00.jpg")
		f.encoder.SetErr(errors.New("ffmpeg exited with status 1"))

		job := f.coord.Assemble(context.Background(), "2024-03-10")

		if job.Status != lapse.JobFailed {
			t.Fatalf("Status = %q, want %q", job.Status, lapse.JobFailed)
		}
		var encErr *lapse.EncodeError
		if !errors.As(job.Err, &encErr) || encErr.BucketID != "2024-03-10" {
			t.Errorf("Err = %v, want EncodeError for 2024-03-10", job.Err)
		}
		if len(f.channel.Delivered()) != 0 {
			t.Error("delivery was called after encoder failure")
		}
		for _, p := range frames {
			if !f.archive.HasFrame(p) {
				t.Errorf("frame %s missing after encoder failure", p)
			}
		}
	})

	t.Run("delivery failure keeps the video", func(t *testing.T) {
		f := newAssemblyFixture(t)
		f.seed(t, "2024-03-10", "frame-2024-03-10_10.00.00.jpg")
		f.channel.SetErr(errors.New("HTTP 401"))

		job := f.coord.Assemble(context.Background(), "2024-03-10")

		var delErr *lapse.DeliveryError
		if job.Status != lapse.JobFailed || !errors.As(job.Err, &delErr) {
			t.Fatalf("job = %q/%v, want failed with DeliveryError", job.Status, job.Err)
		}
		if delErr.VideoPath != job.VideoPath {
			t.Errorf("DeliveryError.VideoPath = %q, want %q", delErr.VideoPath, job.VideoPath)
		}
		if !f.archive.HasVideo(job.VideoPath) {
			t.Error("video missing after delivery failure")
		}
	})
}

func TestAssemblyCoordinator_Submit(t *testing.T) {
	f := newAssemblyFixture(t)
	f.seed(t, "2024-03-10", "frame-2024-03-10_10.00.00.jpg")

	if !f.coord.Submit("2024-03-10") {
		t.Fatal("first Submit() = false, want true")
	}
	if f.coord.Submit("2024-03-10") {
		t.Error("second Submit() = true, want false for duplicate bucket")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.coord.Start(ctx)
	defer f.coord.Stop(time.Second)

	waitFor(t, func() bool { return len(f.channel.Delivered()) == 1 })

	jobs := f.coord.Jobs()
	if len(jobs) != 1 || jobs[0].BucketID != "2024-03-10" {
		t.Fatalf("Jobs() = %+v, want one job for 2024-03-10", jobs)
	}
	waitFor(t, func() bool { return f.coord.Jobs()[0].Status == lapse.JobDone })
}

func TestAssemblyCoordinator_SubmitDoesNotBlock(t *testing.T) {
	a := testutil.NewTestArchive()
	enc := testutil.NewFakeEncoder(a)
	enc.Block = make(chan struct{})
	coord := lapse.NewAssemblyCoordinator(
		a, enc, testutil.NewRecordingChannel(), nil, lapse.NewNopLogger(),
		testutil.FixedClock(), testutil.NewStubIDGenerator(),
		lapse.AssemblyOptions{QueueSize: 1},
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop(time.Second)
	defer close(enc.Block)

	for _, id := range []string{"2024-03-10", "2024-03-11", "2024-03-12"} {
		if _, err := a.EnsureBucket(id); err != nil {
			t.Fatalf("EnsureBucket() error = %v", err)
		}
		if err := a.PutFrame(a.FramePath(id, "frame-x.jpg"), nil); err != nil {
			t.Fatalf("PutFrame() error = %v", err)
		}
	}

	coord.Submit("2024-03-10")
	waitFor(t, func() bool { return len(enc.Calls()) == 1 })

	done := make(chan struct{})
	go func() {
		coord.Submit("2024-03-11") // fills the queue
		coord.Submit("2024-03-12") // dropped, must not block
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Submit() blocked while the worker was busy")
	}
}

func TestEndToEnd_RolloverAssemblesClosedBucket(t *testing.T) {
	a := testutil.NewTestArchive()
	clock := testutil.NewStubClock(time.Date(2024, 3, 10, 21, 0, 0, 0, time.UTC))
	device := testutil.NewFakeDevice(a)
	enc := testutil.NewFakeEncoder(a)
	channel := testutil.NewRecordingChannel()

	coord := lapse.NewAssemblyCoordinator(a, enc, channel, nil, lapse.NewNopLogger(), clock, testutil.NewStubIDGenerator(), lapse.AssemblyOptions{})
	sched := lapse.NewCaptureScheduler(mustPolicy(t, lapse.GranularityDay, 22, time.UTC), a, device, coord, clock, lapse.NewNopLogger(), lapse.SchedulerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop(time.Second)

	for i := 0; i < 24; i++ { // 21:00 through 22:55
		sched.Tick(ctx)
		clock.Advance(5 * time.Minute)
	}

	waitFor(t, func() bool { return len(channel.Delivered()) == 1 })

	calls := enc.Calls()
	if len(calls) != 1 {
		t.Fatalf("encoder called %d times, want 1", len(calls))
	}
	if len(calls[0].Frames) != 12 {
		t.Errorf("encoded %d frames, want 12 (21:00-21:55)", len(calls[0].Frames))
	}
	if got := channel.Delivered()[0]; got != "/memory/videos/2024-03-10.mp4" {
		t.Errorf("delivered %q, want %q", got, "/memory/videos/2024-03-10.mp4")
	}
}

func TestEndToEnd_EmptyBucketAtRollover(t *testing.T) {
	a := testutil.NewTestArchive()
	clock := testutil.NewStubClock(time.Date(2024, 3, 10, 21, 59, 0, 0, time.UTC))
	device := testutil.NewFakeDevice(a)
	enc := testutil.NewFakeEncoder(a)
	channel := testutil.NewRecordingChannel()

	coord := lapse.NewAssemblyCoordinator(a, enc, channel, nil, lapse.NewNopLogger(), clock, testutil.NewStubIDGenerator(), lapse.AssemblyOptions{})
	sched := lapse.NewCaptureScheduler(mustPolicy(t, lapse.GranularityDay, 22, time.UTC), a, device, coord, clock, lapse.NewNopLogger(), lapse.SchedulerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	coord.Start(ctx)
	defer coord.Stop(time.Second)

	// Started at 21:59; the camera was not ready so the bucket stayed empty.
	device.SetErr(errors.New("no such device"))
	sched.Tick(ctx)
	device.SetErr(nil)

	clock.Advance(5 * time.Minute)
	res := sched.Tick(ctx)
	if !res.Dispatched {
		t.Fatalf("22:04 tick Dispatched = false, want true")
	}

	waitFor(t, func() bool {
		jobs := coord.Jobs()
		return len(jobs) == 1 && jobs[0].Status.Terminal()
	})

	if got := coord.Jobs()[0].Status; got != lapse.JobSkipped {
		t.Errorf("job status = %q, want %q", got, lapse.JobSkipped)
	}
	if len(enc.Calls()) != 0 || len(channel.Delivered()) != 0 {
		t.Errorf("encoder calls = %d, deliveries = %d, want none", len(enc.Calls()), len(channel.Delivered()))
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(2 * time.Millisecond)
	}
}
