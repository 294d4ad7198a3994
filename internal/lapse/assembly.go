package lapse

import (
	"context"
	"sync"
	"time"
)

// JobStatus is the lifecycle state of an AssemblyJob.
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobEncoding   JobStatus = "encoding"
	JobDelivering JobStatus = "delivering"
	JobDone       JobStatus = "done"
	JobFailed     JobStatus = "failed"
	// JobSkipped marks a bucket that closed without any frames.
	JobSkipped JobStatus = "skipped"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobSkipped
}

// AssemblyJob turns one closed bucket into a video and hands it to delivery.
type AssemblyJob struct {
	ID         string
	BucketID   string
	Frames     []string
	VideoPath  string
	Status     JobStatus
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobRecorder persists job transitions for later inspection. It is an audit
// trail only; nothing is resumed from it.
type JobRecorder interface {
	RecordJob(job *AssemblyJob) error
}

// AssemblyOptions tunes the coordinator.
type AssemblyOptions struct {
	FrameRate int
	VideoExt  string
	Workers   int
	QueueSize int
}

const (
	DefaultFrameRate = 4
	DefaultVideoExt  = "mp4"
	defaultQueueSize = 16
	maxRecentJobs    = 64
)

// AssemblyCoordinator consumes bucket-closed events on its own goroutines so a
// slow encode or upload never delays the capture schedule.
type AssemblyCoordinator struct {
	archive  ArchiveStore
	encoder  Encoder
	delivery DeliveryChannel
	recorder JobRecorder
	logger   Logger
	clock    Clock
	ids      IDGenerator
	opts     AssemblyOptions

	queue  chan string
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	submitted map[string]struct{}
	recent    []*AssemblyJob
}

// NewAssemblyCoordinator wires a coordinator. recorder may be nil.
func NewAssemblyCoordinator(archive ArchiveStore, encoder Encoder, delivery DeliveryChannel, recorder JobRecorder, logger Logger, clock Clock, ids IDGenerator, opts AssemblyOptions) *AssemblyCoordinator {
	if opts.FrameRate <= 0 {
		opts.FrameRate = DefaultFrameRate
	}
	if opts.VideoExt == "" {
		opts.VideoExt = DefaultVideoExt
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	return &AssemblyCoordinator{
		archive:   archive,
		encoder:   encoder,
		delivery:  delivery,
		recorder:  recorder,
		logger:    logger,
		clock:     clock,
		ids:       ids,
		opts:      opts,
		queue:     make(chan string, opts.QueueSize),
		submitted: make(map[string]struct{}),
	}
}

// Start launches the worker goroutines. Workers exit when ctx is done or
// Stop is called.
func (c *AssemblyCoordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	for i := 0; i < c.opts.Workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i)
	}
}

// Stop cancels the workers and waits up to timeout for them to exit.
// In-flight jobs are abandoned; their frames stay on disk.
func (c *AssemblyCoordinator) Stop(timeout time.Duration) {
	if c.cancel != nil {
		c.cancel()
	}
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		c.logger.Warn("assembly workers did not stop in time", "timeout", timeout)
	}
}

// Submit enqueues a closed bucket without blocking. It returns false when the
// bucket was already submitted or the queue is full.
func (c *AssemblyCoordinator) Submit(bucketID string) bool {
	c.mu.Lock()
	if _, dup := c.submitted[bucketID]; dup {
		c.mu.Unlock()
		c.logger.Warn("bucket already submitted for assembly", "bucket", bucketID)
		return false
	}
	c.submitted[bucketID] = struct{}{}
	c.mu.Unlock()

	select {
	case c.queue <- bucketID:
		c.logger.Info("bucket queued for assembly", "bucket", bucketID)
		return true
	default:
		c.mu.Lock()
		delete(c.submitted, bucketID)
		c.mu.Unlock()
		c.logger.Error("assembly queue full, dropping bucket", "bucket", bucketID)
		return false
	}
}

func (c *AssemblyCoordinator) worker(ctx context.Context, n int) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case bucketID := <-c.queue:
			job := c.Assemble(ctx, bucketID)
			c.logger.Debug("assembly worker finished job", "worker", n, "bucket", bucketID, "status", string(job.Status))
		}
	}
}

// Assemble runs one job synchronously: list the bucket, encode, deliver.
// Failures are reported on the returned job, never retried.
func (c *AssemblyCoordinator) Assemble(ctx context.Context, bucketID string) *AssemblyJob {
	job := &AssemblyJob{
		ID:        c.ids.New(),
		BucketID:  bucketID,
		VideoPath: c.archive.VideoPath(bucketID, c.opts.VideoExt),
		Status:    JobPending,
		StartedAt: c.clock.Now(),
	}
	c.track(job)
	c.record(job)

	frames, err := c.archive.ListMembers(bucketID)
	if err != nil {
		c.fail(job, &StorageError{BucketID: bucketID, Op: "listing", Err: err})
		return job
	}
	if len(frames) == 0 {
		c.logger.Info("bucket has no frames, skipping assembly", "bucket", bucketID)
		c.finish(job, JobSkipped)
		return job
	}
	c.mu.Lock()
	job.Frames = frames
	c.mu.Unlock()

	c.transition(job, JobEncoding)
	c.logger.Info("encoding video", "bucket", bucketID, "frames", len(frames), "path", job.VideoPath)
	if err := c.encoder.Encode(ctx, frames, c.opts.FrameRate, job.VideoPath); err != nil {
		c.fail(job, &EncodeError{BucketID: bucketID, Err: err})
		return job
	}

	c.transition(job, JobDelivering)
	c.logger.Info("delivering video", "bucket", bucketID, "path", job.VideoPath, "channel", c.delivery.Name())
	if err := c.delivery.Deliver(ctx, job.VideoPath); err != nil {
		c.fail(job, &DeliveryError{BucketID: bucketID, VideoPath: job.VideoPath, Err: err})
		return job
	}

	c.finish(job, JobDone)
	c.logger.Info("video delivered", "bucket", bucketID, "path", job.VideoPath)
	return job
}

// Jobs returns copies of the most recent jobs, newest first.
func (c *AssemblyCoordinator) Jobs() []AssemblyJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]AssemblyJob, 0, len(c.recent))
	for i := len(c.recent) - 1; i >= 0; i-- {
		out = append(out, *c.recent[i])
	}
	return out
}

func (c *AssemblyCoordinator) track(job *AssemblyJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recent = append(c.recent, job)
	if len(c.recent) > maxRecentJobs {
		c.recent = c.recent[len(c.recent)-maxRecentJobs:]
	}
}

func (c *AssemblyCoordinator) transition(job *AssemblyJob, status JobStatus) {
	c.mu.Lock()
	job.Status = status
	c.mu.Unlock()
	c.record(job)
}

func (c *AssemblyCoordinator) finish(job *AssemblyJob, status JobStatus) {
	c.mu.Lock()
	job.Status = status
	job.FinishedAt = c.clock.Now()
	c.mu.Unlock()
	c.record(job)
}

func (c *AssemblyCoordinator) fail(job *AssemblyJob, err error) {
	c.mu.Lock()
	job.Err = err
	c.mu.Unlock()
	c.finish(job, JobFailed)
	c.logger.Error("assembly failed", "bucket", job.BucketID, "stage", stageOf(err), "error", err)
}

func (c *AssemblyCoordinator) record(job *AssemblyJob) {
	if c.recorder == nil {
		return
	}
	c.mu.Lock()
	snapshot := *job
	c.mu.Unlock()
	if err := c.recorder.RecordJob(&snapshot); err != nil {
		c.logger.Warn("recording assembly job", "bucket", job.BucketID, "job", job.ID, "error", err)
	}
}

func stageOf(err error) string {
	switch err.(type) {
	case *EncodeError:
		return "encode"
	case *DeliveryError:
		return "deliver"
	case *StorageError:
		return "storage"
	default:
		return "unknown"
	}
}
