package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"camlapse/internal/archive"
	"camlapse/internal/camera"
	"camlapse/internal/config"
	"camlapse/internal/database"
	"camlapse/internal/delivery"
	"camlapse/internal/encoder"
	"camlapse/internal/encryption"
	"camlapse/internal/lapse"
	"camlapse/internal/server"
)

// stopTimeout bounds how long shutdown waits for in-flight assembly jobs.
const stopTimeout = 30 * time.Second

// Options tune how an App is built for a single CLI invocation.
type Options struct {
	Verbose bool
}

// CamlapseApp is the application layer between the CLI and the lapse core.
// It constructs all dependencies from config and owns their lifecycle.
// The capture device is opened lazily by Run so that offline commands
// (buckets, history, assemble) work on machines without a camera.
type CamlapseApp struct {
	cfg         *config.Config
	policy      *lapse.BucketPolicy
	clock       lapse.Clock
	archive     lapse.ArchiveStore
	encoder     lapse.Encoder
	delivery    lapse.DeliveryChannel
	encryptor   lapse.Encryptor
	history     *database.SQLiteHistory
	coordinator *lapse.AssemblyCoordinator
	logger      lapse.Logger
	logFile     *os.File

	mu        sync.Mutex
	scheduler *lapse.CaptureScheduler
}

// NewCamlapseApp creates a fully wired app from the given config.
// The caller must call Close when done.
func NewCamlapseApp(ctx context.Context, cfg *config.Config, opts Options) (*CamlapseApp, error) {
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	loc, err := cfg.Schedule.LoadLocation()
	if err != nil {
		return nil, err
	}
	policy, err := lapse.NewBucketPolicy(lapse.Granularity(cfg.Schedule.Granularity), cfg.Schedule.BoundaryHour, loc)
	if err != nil {
		return nil, err
	}

	store, err := archive.NewArchiveFromConfig(cfg.Archive)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	enc, err := encoder.NewEncoderFromConfig(cfg.Video, "")
	if err != nil {
		return nil, fmt.Errorf("creating encoder: %w", err)
	}

	encryptor, err := encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	channel, err := delivery.NewChannelFromConfig(ctx, cfg.Delivery, encryptor)
	if err != nil {
		return nil, fmt.Errorf("creating delivery channel: %w", err)
	}

	history, err := database.NewHistoryFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("creating job history: %w", err)
	}
	if err := history.CheckMigrations(); err != nil {
		history.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}
	history.SetChannel(channel.Name())

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	runID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(cfg.LogDir, runID, level)
	if err != nil {
		history.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	clock := lapse.RealClock{Location: loc}
	coordinator := lapse.NewAssemblyCoordinator(store, enc, channel, history, logger, clock, lapse.UUIDGenerator{},
		lapse.AssemblyOptions{
			FrameRate: cfg.Video.FrameRate,
			VideoExt:  cfg.Video.Extension,
			Workers:   cfg.Video.Workers,
		})

	return &CamlapseApp{
		cfg:         cfg,
		policy:      policy,
		clock:       clock,
		archive:     store,
		encoder:     enc,
		delivery:    channel,
		encryptor:   encryptor,
		history:     history,
		coordinator: coordinator,
		logger:      logger,
		logFile:     logFile,
	}, nil
}

// Run captures until ctx is cancelled. Assembly workers and, when enabled,
// the status server run alongside the capture loop and are stopped with it.
func (a *CamlapseApp) Run(ctx context.Context) error {
	device, err := camera.NewDeviceFromConfig(a.cfg.Capture)
	if err != nil {
		return fmt.Errorf("creating capture device: %w", err)
	}
	interval, err := a.cfg.Capture.IntervalDuration()
	if err != nil {
		return err
	}
	timeout, err := a.cfg.Capture.TimeoutDuration()
	if err != nil {
		return err
	}

	sched := lapse.NewCaptureScheduler(a.policy, a.archive, device, a.coordinator, a.clock, a.logger,
		lapse.SchedulerOptions{
			Interval:       interval,
			FrameExt:       a.cfg.Capture.Extension,
			CaptureTimeout: timeout,
		})
	a.mu.Lock()
	a.scheduler = sched
	a.mu.Unlock()

	a.logger.Info("starting capture daemon",
		"capture", a.cfg.Capture.Type,
		"interval", interval,
		"granularity", string(a.policy.Granularity()),
		"boundary_hour", a.policy.BoundaryHour(),
		"timezone", a.policy.Location().String(),
		"delivery", a.delivery.Name(),
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.coordinator.Start(ctx)
	defer a.coordinator.Stop(stopTimeout)

	var (
		wg        sync.WaitGroup
		serverErr error
	)
	if a.cfg.Server.Enabled {
		srv := server.New(a.cfg.Server.Addr, server.Deps{
			Scheduler: sched,
			Archive:   a.archive,
			Assembler: a.coordinator,
			History:   a.history,
			Policy:    a.policy,
			Clock:     a.clock,
		}, a.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Run(ctx); err != nil {
				a.logger.Error("status server failed", "error", err)
				serverErr = err
				cancel()
			}
		}()
	}

	err = sched.Run(ctx)
	cancel()
	wg.Wait()

	a.logger.Info("capture daemon stopped")
	if err != nil {
		return err
	}
	return serverErr
}

// Status returns the capture loop status, or false before Run has started.
func (a *CamlapseApp) Status() (lapse.SchedulerStatus, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.scheduler == nil {
		return lapse.SchedulerStatus{}, false
	}
	return a.scheduler.Status(), true
}

// BucketInfo summarizes one archived bucket.
type BucketInfo struct {
	ID       string
	Frames   int
	HasVideo bool
}

// Buckets lists archived buckets in chronological order.
func (a *CamlapseApp) Buckets() ([]BucketInfo, error) {
	ids, err := a.archive.ListBuckets()
	if err != nil {
		return nil, fmt.Errorf("listing buckets: %w", err)
	}

	infos := make([]BucketInfo, 0, len(ids))
	for _, id := range ids {
		members, err := a.archive.ListMembers(id)
		if err != nil {
			return nil, fmt.Errorf("listing bucket %s: %w", id, err)
		}
		_, statErr := os.Stat(a.archive.VideoPath(id, a.cfg.Video.Extension))
		infos = append(infos, BucketInfo{ID: id, Frames: len(members), HasVideo: statErr == nil})
	}
	return infos, nil
}

// CurrentBucket returns the bucket a capture taken now would land in.
func (a *CamlapseApp) CurrentBucket() lapse.Assignment {
	return a.policy.BucketFor(a.clock.Now())
}

// Assemble encodes and delivers one bucket synchronously. It is the manual
// recovery path for a bucket whose rollover job failed or never ran.
func (a *CamlapseApp) Assemble(ctx context.Context, bucketID string) (*lapse.AssemblyJob, error) {
	if !a.archive.Exists(bucketID) {
		return nil, fmt.Errorf("bucket %s does not exist", bucketID)
	}
	if open := a.CurrentBucket().BucketID; bucketID >= open {
		return nil, fmt.Errorf("bucket %s is still open (current bucket is %s)", bucketID, open)
	}
	job := a.coordinator.Assemble(ctx, bucketID)
	if job.Err != nil {
		return job, job.Err
	}
	return job, nil
}

// Deliver re-sends an already encoded video through the configured channel.
func (a *CamlapseApp) Deliver(ctx context.Context, videoPath string) error {
	if _, err := os.Stat(videoPath); err != nil {
		return fmt.Errorf("video not found: %w", err)
	}
	a.logger.Info("delivering video", "path", videoPath, "channel", a.delivery.Name())
	if err := a.delivery.Deliver(ctx, videoPath); err != nil {
		return &lapse.DeliveryError{VideoPath: videoPath, Err: err}
	}
	return nil
}

// History returns the most recent assembly jobs.
func (a *CamlapseApp) History(limit int) ([]*database.JobRecord, error) {
	return a.history.ListJobs(limit)
}

// BucketHistory returns every recorded assembly attempt for one bucket.
func (a *CamlapseApp) BucketHistory(bucketID string) ([]*database.JobRecord, error) {
	return a.history.JobsForBucket(bucketID)
}

// BackupHistory writes a copy of the job database to destPath.
func (a *CamlapseApp) BackupHistory(destPath string) error {
	return a.history.BackupTo(destPath)
}

// Encryptor exposes the configured encryptor for key management commands.
func (a *CamlapseApp) Encryptor() lapse.Encryptor {
	return a.encryptor
}

// Close releases the database and log file.
func (a *CamlapseApp) Close() error {
	var firstErr error
	if err := a.history.Close(); err != nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
