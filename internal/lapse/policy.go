package lapse

import (
	"fmt"
	"time"
)

// Granularity selects how long one archival period lasts.
type Granularity string

const (
	GranularityDay  Granularity = "day"
	GranularityHour Granularity = "hour"
)

// Layouts used to derive bucket identifiers and frame names. All of them sort
// lexicographically in chronological order. Frame names are formatted in UTC
// so a repeated local hour cannot produce the same name twice.
const (
	DayLayout   = "2006-01-02"
	HourLayout  = "2006-01-02_15"
	FrameLayout = "2006-01-02_15.04.05.000Z"
)

// FramePrefix starts every frame file name written into a bucket.
const FramePrefix = "frame-"

// Assignment is the result of mapping one instant through a BucketPolicy.
type Assignment struct {
	// BucketID is the bucket the capture taken at the instant belongs to.
	BucketID string
	// Rollover is true when the instant lies inside the rollover window,
	// the only window in which the previous period may be closed.
	Rollover bool
	// ClosingBucketID names the period that ends at this rollover window.
	// Empty when Rollover is false.
	ClosingBucketID string
}

// BucketPolicy maps instants to archive buckets. It is a pure value: the same
// instant always yields the same Assignment.
//
// With day granularity the archival day runs from BoundaryHour on one date to
// BoundaryHour on the next. Captures taken at or after the boundary hour are
// labelled with the following calendar date, so the bucket labelled D holds
// the frames from D-1 H:00 up to D H:00.
type BucketPolicy struct {
	granularity  Granularity
	boundaryHour int
	location     *time.Location
}

// NewBucketPolicy validates its inputs and returns a policy.
// A nil location means instants are interpreted in their own zone.
func NewBucketPolicy(g Granularity, boundaryHour int, loc *time.Location) (*BucketPolicy, error) {
	switch g {
	case GranularityDay, GranularityHour:
	default:
		return nil, fmt.Errorf("unknown granularity: %q", g)
	}
	if boundaryHour < 0 || boundaryHour > 23 {
		return nil, fmt.Errorf("boundary hour must be between 0 and 23, got %d", boundaryHour)
	}
	return &BucketPolicy{granularity: g, boundaryHour: boundaryHour, location: loc}, nil
}

func (p *BucketPolicy) Granularity() Granularity { return p.granularity }
func (p *BucketPolicy) BoundaryHour() int        { return p.boundaryHour }

// Location returns the zone used for date arithmetic, or nil.
func (p *BucketPolicy) Location() *time.Location { return p.location }

// BucketFor assigns t to a bucket and reports whether t opens a rollover window.
func (p *BucketPolicy) BucketFor(t time.Time) Assignment {
	local := p.local(t)

	if p.granularity == GranularityHour {
		return Assignment{
			BucketID:        local.Format(HourLayout),
			Rollover:        true,
			ClosingBucketID: local.Add(-time.Hour).Format(HourLayout),
		}
	}

	a := Assignment{BucketID: local.Format(DayLayout)}
	if local.Hour() >= p.boundaryHour {
		y, m, d := local.Date()
		// Calendar arithmetic instead of adding (24-H) hours keeps the label
		// stable on 23h and 25h days.
		a.BucketID = time.Date(y, m, d+1, 0, 0, 0, 0, local.Location()).Format(DayLayout)
	}
	if local.Hour() == p.rolloverHour(local) {
		a.Rollover = true
		a.ClosingBucketID = local.Format(DayLayout)
	}
	return a
}

// FrameName returns the file name for a frame captured at t, e.g.
// frame-2024-10-27_01.00.00.000Z.jpg.
func (p *BucketPolicy) FrameName(t time.Time, ext string) string {
	return FramePrefix + t.UTC().Format(FrameLayout) + "." + ext
}

func (p *BucketPolicy) local(t time.Time) time.Time {
	if p.location == nil {
		return t
	}
	return t.In(p.location)
}

// rolloverHour returns the local hour that opens the rollover window on the
// date of local. When the boundary hour is skipped by a DST transition the
// window moves to the first hour after the gap.
func (p *BucketPolicy) rolloverHour(local time.Time) int {
	y, m, d := local.Date()
	candidate := time.Date(y, m, d, p.boundaryHour, 30, 0, 0, local.Location())
	if candidate.Hour() != p.boundaryHour && candidate.Day() == d {
		return candidate.Hour()
	}
	return p.boundaryHour
}
