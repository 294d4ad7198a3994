package main

import (
	"fmt"
	"time"

	"camlapse/internal/database"
)

type jobRow struct {
	rec *database.JobRecord
}

func toRows(records []*database.JobRecord) []*jobRow {
	rows := make([]*jobRow, len(records))
	for i, r := range records {
		rows[i] = &jobRow{rec: r}
	}
	return rows
}

func (j *jobRow) String() string {
	r := j.rec
	duration := ""
	if r.FinishedAt.Valid {
		duration = r.FinishedAt.Time.Sub(r.StartedAt).Truncate(time.Millisecond).String()
	}
	line := fmt.Sprintf("%s  %-12s  %s  %-10s  %4d frame(s)  %s",
		shortID(r.ID),
		r.BucketID,
		r.StartedAt.Local().Format("2006-01-02 15:04:05"),
		r.Status,
		r.FrameCount,
		duration,
	)
	if r.Error != "" {
		line += "  " + r.Error
	}
	return line
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
