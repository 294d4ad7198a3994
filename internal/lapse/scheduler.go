package lapse

import (
	"context"
	"sync"
	"time"
)

// BucketSubmitter accepts closed buckets for asynchronous assembly.
// Submit must not block.
type BucketSubmitter interface {
	Submit(bucketID string) bool
}

// SchedulerState is Idle between ticks and Capturing while a device call is in flight.
type SchedulerState string

const (
	StateIdle      SchedulerState = "idle"
	StateCapturing SchedulerState = "capturing"
)

// SchedulerOptions tunes the capture loop.
type SchedulerOptions struct {
	Interval       time.Duration
	FrameExt       string
	CaptureTimeout time.Duration // zero means no per-capture deadline
}

const (
	DefaultInterval = 5 * time.Minute
	DefaultFrameExt = "jpg"
)

// TickResult describes what one tick did.
type TickResult struct {
	At         time.Time
	Assignment Assignment
	Created    bool
	Dispatched bool
	FramePath  string
	Err        error
}

// SchedulerStatus is a point-in-time snapshot for status reporting.
type SchedulerStatus struct {
	State           SchedulerState
	CurrentBucket   string
	LastTick        time.Time
	LastFrame       string
	LastError       string
	Ticks           int
	Captures        int
	CaptureFailures int
	Rollovers       int
}

// CaptureScheduler drives the fixed-cadence capture loop. Ticks run one at a
// time on the Run goroutine; a slow device call defers the next tick.
type CaptureScheduler struct {
	policy    *BucketPolicy
	archive   ArchiveStore
	device    CaptureDevice
	assembler BucketSubmitter
	clock     Clock
	logger    Logger
	opts      SchedulerOptions

	mu     sync.Mutex
	status SchedulerStatus
}

func NewCaptureScheduler(policy *BucketPolicy, archive ArchiveStore, device CaptureDevice, assembler BucketSubmitter, clock Clock, logger Logger, opts SchedulerOptions) *CaptureScheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.FrameExt == "" {
		opts.FrameExt = DefaultFrameExt
	}
	return &CaptureScheduler{
		policy:    policy,
		archive:   archive,
		device:    device,
		assembler: assembler,
		clock:     clock,
		logger:    logger,
		opts:      opts,
		status:    SchedulerStatus{State: StateIdle},
	}
}

// Run ticks once immediately and then every Interval until ctx is done.
func (s *CaptureScheduler) Run(ctx context.Context) error {
	s.logger.Info("capture scheduler started",
		"interval", s.opts.Interval,
		"granularity", string(s.policy.Granularity()),
		"boundary_hour", s.policy.BoundaryHour())

	s.Tick(ctx)

	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("capture scheduler stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one capture cycle:
//
//  1. read the clock
//  2. assign the instant to a bucket
//  3. materialize the bucket
//  4. on the first tick of a rollover window, dispatch the closing bucket
//  5. capture a frame into the current bucket
//
// A rollover is dispatched only when the window is open and this tick created
// the new bucket, so restarts and later ticks inside the window never fire twice.
func (s *CaptureScheduler) Tick(ctx context.Context) TickResult {
	now := s.clock.Now()
	a := s.policy.BucketFor(now)
	res := TickResult{At: now, Assignment: a}

	s.mu.Lock()
	s.status.Ticks++
	s.status.LastTick = now
	s.status.CurrentBucket = a.BucketID
	s.mu.Unlock()

	created, err := s.archive.EnsureBucket(a.BucketID)
	if err != nil {
		res.Err = &StorageError{BucketID: a.BucketID, Op: "creating", Err: err}
		s.logger.Error("skipping tick", "bucket", a.BucketID, "stage", "storage", "error", res.Err)
		s.setError(res.Err)
		return res
	}
	res.Created = created

	switch {
	case a.Rollover && created:
		res.Dispatched = s.dispatch(a.ClosingBucketID)
	case created:
		s.openedOutsideWindow(a.BucketID)
	case a.Rollover:
		s.logger.Debug("rollover window already handled", "bucket", a.BucketID, "closing", a.ClosingBucketID)
	}

	res.FramePath = s.archive.FramePath(a.BucketID, s.policy.FrameName(now, s.opts.FrameExt))
	if err := s.capture(ctx, res.FramePath); err != nil {
		res.Err = &CaptureError{BucketID: a.BucketID, Path: res.FramePath, Err: err}
		s.logger.Error("capture failed", "bucket", a.BucketID, "path", res.FramePath, "stage", "capture", "error", err)
		s.mu.Lock()
		s.status.CaptureFailures++
		s.mu.Unlock()
		s.setError(res.Err)
		return res
	}

	s.mu.Lock()
	s.status.Captures++
	s.status.LastFrame = res.FramePath
	s.mu.Unlock()
	s.logger.Debug("frame captured", "bucket", a.BucketID, "path", res.FramePath)
	return res
}

// Status returns a snapshot of the scheduler's counters.
func (s *CaptureScheduler) Status() SchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// openedOutsideWindow handles a bucket created without a rollover, which
// happens on first start or after the daemon missed the window. The most
// recent earlier bucket then has no rollover left to assemble it.
func (s *CaptureScheduler) openedOutsideWindow(bucketID string) {
	ids, err := s.archive.ListBuckets()
	if err != nil {
		s.logger.Warn("opened bucket outside rollover window", "bucket", bucketID, "error", err)
		return
	}
	var prev string
	for _, id := range ids {
		if id < bucketID {
			prev = id
		}
	}
	if prev == "" {
		s.logger.Info("opened bucket outside rollover window", "bucket", bucketID)
		return
	}
	s.logger.Warn("rollover window missed, previous bucket will not be assembled automatically",
		"bucket", bucketID, "abandoned", prev, "recover", "camlapse assemble "+prev)
}

func (s *CaptureScheduler) dispatch(closing string) bool {
	if !s.archive.Exists(closing) {
		s.logger.Info("closing bucket does not exist, nothing to assemble", "bucket", closing)
		return false
	}
	s.mu.Lock()
	s.status.Rollovers++
	s.mu.Unlock()
	return s.assembler.Submit(closing)
}

func (s *CaptureScheduler) capture(ctx context.Context, path string) error {
	s.setState(StateCapturing)
	defer s.setState(StateIdle)

	if s.opts.CaptureTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.CaptureTimeout)
		defer cancel()
	}
	return s.device.Capture(ctx, path)
}

func (s *CaptureScheduler) setState(state SchedulerState) {
	s.mu.Lock()
	s.status.State = state
	s.mu.Unlock()
}

func (s *CaptureScheduler) setError(err error) {
	s.mu.Lock()
	s.status.LastError = err.Error()
	s.mu.Unlock()
}
