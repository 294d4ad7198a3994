package server

import (
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"camlapse/internal/lapse"
)

type statusView struct {
	State           string    `json:"state"`
	CurrentBucket   string    `json:"current_bucket"`
	LastTick        time.Time `json:"last_tick"`
	LastFrame       string    `json:"last_frame,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
	Ticks           int       `json:"ticks"`
	Captures        int       `json:"captures"`
	CaptureFailures int       `json:"capture_failures"`
	Rollovers       int       `json:"rollovers"`

	Granularity  string `json:"granularity,omitempty"`
	BoundaryHour int    `json:"boundary_hour"`
	Timezone     string `json:"timezone,omitempty"`
	NowBucket    string `json:"now_bucket,omitempty"`
}

func (s *Server) status(c *gin.Context) {
	st := s.deps.Scheduler.Status()
	view := statusView{
		State:           string(st.State),
		CurrentBucket:   st.CurrentBucket,
		LastTick:        st.LastTick,
		LastFrame:       st.LastFrame,
		LastError:       st.LastError,
		Ticks:           st.Ticks,
		Captures:        st.Captures,
		CaptureFailures: st.CaptureFailures,
		Rollovers:       st.Rollovers,
	}
	if p := s.deps.Policy; p != nil {
		view.Granularity = string(p.Granularity())
		view.BoundaryHour = p.BoundaryHour()
		view.Timezone = p.Location().String()
		if s.deps.Clock != nil {
			view.NowBucket = p.BucketFor(s.deps.Clock.Now()).BucketID
		}
	}
	ok(c, view)
}

type bucketView struct {
	ID     string   `json:"id"`
	Frames int      `json:"frames"`
	Names  []string `json:"names,omitempty"`
}

func (s *Server) listBuckets(c *gin.Context) {
	ids, err := s.deps.Archive.ListBuckets()
	if err != nil {
		s.logger.Error("listing buckets", "error", err)
		fail(c, http.StatusInternalServerError, "failed to list buckets")
		return
	}

	views := make([]bucketView, 0, len(ids))
	for _, id := range ids {
		members, err := s.deps.Archive.ListMembers(id)
		if err != nil {
			s.logger.Error("listing bucket members", "bucket", id, "error", err)
			fail(c, http.StatusInternalServerError, "failed to list buckets")
			return
		}
		views = append(views, bucketView{ID: id, Frames: len(members)})
	}
	ok(c, views)
}

func (s *Server) getBucket(c *gin.Context) {
	id := c.Param("id")
	if !s.deps.Archive.Exists(id) {
		fail(c, http.StatusNotFound, "bucket not found")
		return
	}
	members, err := s.deps.Archive.ListMembers(id)
	if err != nil {
		s.logger.Error("listing bucket members", "bucket", id, "error", err)
		fail(c, http.StatusInternalServerError, "failed to list bucket")
		return
	}
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = filepath.Base(m)
	}
	ok(c, bucketView{ID: id, Frames: len(members), Names: names})
}

// assembleBucket queues a bucket by hand, e.g. one whose rollover was missed
// while the daemon was down.
func (s *Server) assembleBucket(c *gin.Context) {
	id := c.Param("id")
	if !s.deps.Archive.Exists(id) {
		fail(c, http.StatusNotFound, "bucket not found")
		return
	}
	// The open bucket still receives frames; submitting it now would also
	// block its real rollover as a duplicate.
	if open := s.deps.Policy.BucketFor(s.deps.Clock.Now()).BucketID; id >= open {
		fail(c, http.StatusConflict, "bucket "+id+" is still open")
		return
	}
	if !s.deps.Assembler.Submit(id) {
		fail(c, http.StatusConflict, "bucket already submitted or queue full")
		return
	}
	accepted(c, gin.H{"bucket": id})
}

type jobView struct {
	ID         string     `json:"id"`
	BucketID   string     `json:"bucket_id"`
	Status     string     `json:"status"`
	Frames     int        `json:"frames"`
	VideoPath  string     `json:"video_path,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

const defaultJobLimit = 20

func (s *Server) listJobs(c *gin.Context) {
	limit := defaultJobLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			fail(c, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	if s.deps.History != nil {
		records, err := s.deps.History.ListJobs(limit)
		if err != nil {
			s.logger.Error("listing job history", "error", err)
			fail(c, http.StatusInternalServerError, "failed to list jobs")
			return
		}
		views := make([]jobView, 0, len(records))
		for _, r := range records {
			v := jobView{
				ID:        r.ID,
				BucketID:  r.BucketID,
				Status:    string(r.Status),
				Frames:    r.FrameCount,
				VideoPath: r.VideoPath,
				Error:     r.Error,
				StartedAt: r.StartedAt,
			}
			if r.FinishedAt.Valid {
				t := r.FinishedAt.Time
				v.FinishedAt = &t
			}
			views = append(views, v)
		}
		ok(c, views)
		return
	}

	jobs := s.deps.Assembler.Jobs()
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	views := make([]jobView, 0, len(jobs))
	for _, j := range jobs {
		views = append(views, jobFromAssembly(j))
	}
	ok(c, views)
}

func jobFromAssembly(j lapse.AssemblyJob) jobView {
	v := jobView{
		ID:        j.ID,
		BucketID:  j.BucketID,
		Status:    string(j.Status),
		Frames:    len(j.Frames),
		VideoPath: j.VideoPath,
		StartedAt: j.StartedAt,
	}
	if j.Err != nil {
		v.Error = j.Err.Error()
	}
	if !j.FinishedAt.IsZero() {
		t := j.FinishedAt
		v.FinishedAt = &t
	}
	return v
}
