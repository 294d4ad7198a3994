package lapse

import (
	"time"

	"github.com/google/uuid"
)

// Clock abstracts time retrieval so scheduling logic is deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock returns the actual current time in Location.
// A nil Location means time.Local.
type RealClock struct {
	Location *time.Location
}

func (c RealClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// IDGenerator abstracts unique ID generation so tests are deterministic.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }
