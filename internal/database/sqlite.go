package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"camlapse/internal/database/migrations"
	"camlapse/internal/lapse"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// JobRecord is one row of the assembly job history.
type JobRecord struct {
	ID         string
	BucketID   string
	Status     lapse.JobStatus
	FrameCount int
	VideoPath  string
	Channel    string
	Error      string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	UpdatedAt  time.Time
}

// SQLiteHistory stores assembly job transitions in SQLite. Each job is a
// single row that is overwritten as the job advances.
type SQLiteHistory struct {
	db      *sql.DB
	path    string
	channel string
	now     func() time.Time
}

var _ lapse.JobRecorder = (*SQLiteHistory)(nil)

// NewSQLiteHistory opens the database at path (a file or ":memory:") and
// migrates it to the latest schema.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteHistory{db: db, path: path, now: time.Now}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases from splitting across the pool.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// SetChannel sets the delivery channel name stored with subsequent records.
func (s *SQLiteHistory) SetChannel(name string) {
	s.channel = name
}

// RecordJob upserts the job's current state.
func (s *SQLiteHistory) RecordJob(job *lapse.AssemblyJob) error {
	var errMsg string
	if job.Err != nil {
		errMsg = job.Err.Error()
	}
	var finished sql.NullTime
	if !job.FinishedAt.IsZero() {
		finished = sql.NullTime{Time: job.FinishedAt.UTC(), Valid: true}
	}

	_, err := s.db.ExecContext(context.Background(), `
		INSERT INTO assembly_jobs
			(id, bucket_id, status, frame_count, video_path, channel, error, started_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status      = excluded.status,
			frame_count = excluded.frame_count,
			video_path  = excluded.video_path,
			channel     = excluded.channel,
			error       = excluded.error,
			finished_at = excluded.finished_at,
			updated_at  = excluded.updated_at`,
		job.ID, job.BucketID, string(job.Status), len(job.Frames), job.VideoPath, s.channel,
		errMsg, job.StartedAt.UTC(), finished, s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording job %s: %w", job.ID, err)
	}
	return nil
}

const selectJobs = `
	SELECT id, bucket_id, status, frame_count, video_path, channel, error, started_at, finished_at, updated_at
	FROM assembly_jobs`

// ListJobs returns up to limit jobs, most recently started first. A
// non-positive limit returns all jobs.
func (s *SQLiteHistory) ListJobs(limit int) ([]*JobRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(context.Background(),
		selectJobs+` ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing jobs: %w", err)
	}
	return scanJobs(rows)
}

// JobsForBucket returns every attempt recorded for bucketID, oldest first.
func (s *SQLiteHistory) JobsForBucket(bucketID string) ([]*JobRecord, error) {
	rows, err := s.db.QueryContext(context.Background(),
		selectJobs+` WHERE bucket_id = ? ORDER BY started_at, rowid`, bucketID)
	if err != nil {
		return nil, fmt.Errorf("listing jobs for bucket %s: %w", bucketID, err)
	}
	return scanJobs(rows)
}

// FindJob returns nil when no job has the id.
func (s *SQLiteHistory) FindJob(id string) (*JobRecord, error) {
	rows, err := s.db.QueryContext(context.Background(), selectJobs+` WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("finding job %s: %w", id, err)
	}
	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return jobs[0], nil
}

func scanJobs(rows *sql.Rows) ([]*JobRecord, error) {
	defer rows.Close()

	var jobs []*JobRecord
	for rows.Next() {
		var (
			j      JobRecord
			status string
		)
		if err := rows.Scan(&j.ID, &j.BucketID, &status, &j.FrameCount, &j.VideoPath,
			&j.Channel, &j.Error, &j.StartedAt, &j.FinishedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning job: %w", err)
		}
		j.Status = lapse.JobStatus(status)
		jobs = append(jobs, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating jobs: %w", err)
	}
	return jobs, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteHistory) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteHistory) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteHistory) BackupTo(destPath string) error {
	if s.path == ":memory:" {
		return errors.New("cannot back up an in-memory database")
	}
	if _, err := s.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteHistory) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
