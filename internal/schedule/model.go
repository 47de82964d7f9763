package schedule

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

type BlockType string

const (
	BlockAvailable  BlockType = "available"
	BlockNewPatient BlockType = "new_patient"
	BlockFollowUp   BlockType = "follow_up"
)

var (
	ErrValidation        = errors.New("invalid input")
	ErrOverlap           = errors.New("availability block overlaps an existing block")
	ErrBlockNotFound     = errors.New("availability block not found")
	ErrExceptionNotFound = errors.New("availability exception not found")
)

// AvailabilityBlock is one recurring weekly open-hours interval. StartMinute
// and EndMinute are minutes after local midnight; the interval is half-open
// [StartMinute, EndMinute). Blocks for one (practice, weekday) are kept
// pairwise non-overlapping by the carve algorithm.
type AvailabilityBlock struct {
	ID          uuid.UUID
	PracticeID  uuid.UUID
	DayOfWeek   time.Weekday
	StartMinute int
	EndMinute   int
	Type        BlockType
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Valid reports whether the block has a positive extent inside one day.
// Blocks that fail this are dropped (and deleted) by the read-path repair.
func (b AvailabilityBlock) Valid() bool {
	return b.StartMinute >= 0 && b.EndMinute <= timeslot.MinutesPerDay && b.StartMinute < b.EndMinute
}

// Overlaps reports whether the half-open extents of b and other intersect.
func (b AvailabilityBlock) Overlaps(startMinute, endMinute int) bool {
	return b.StartMinute < endMinute && startMinute < b.EndMinute
}

// Covers reports whether [startMinute, endMinute) lies within the block using
// the strict end-exclusive rule applied at booking time: the range start may
// touch the block start but the range end must stay strictly inside.
func (b AvailabilityBlock) Covers(startMinute, endMinute int) bool {
	return startMinute >= b.StartMinute && endMinute < b.EndMinute
}

func ValidateBlockType(t BlockType) error {
	switch t {
	case BlockAvailable, BlockNewPatient, BlockFollowUp:
		return nil
	}
	return fmt.Errorf("%w: unknown block type %q", ErrValidation, t)
}

// AvailabilityException is a one-time closure for a specific date. A nil
// StartMinute/EndMinute pair means the whole day is closed. Exceptions only
// remove availability; an exception can never open hours the weekly schedule
// does not already have.
type AvailabilityException struct {
	ID          uuid.UUID
	PracticeID  uuid.UUID
	Date        timeslot.Date
	StartMinute *int
	EndMinute   *int
	Reason      *string
	CreatedAt   time.Time
}

// WholeDay reports whether the exception closes the entire date.
func (e AvailabilityException) WholeDay() bool {
	return e.StartMinute == nil || e.EndMinute == nil
}

// Excludes reports whether the exception removes any part of
// [startMinute, endMinute) on its date.
func (e AvailabilityException) Excludes(startMinute, endMinute int) bool {
	if e.WholeDay() {
		return true
	}
	return *e.StartMinute < endMinute && startMinute < *e.EndMinute
}
