package schedule

import (
	"time"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

type SlotStatus string

const (
	SlotAvailable   SlotStatus = "available"
	SlotUnavailable SlotStatus = "unavailable"
	SlotBooked      SlotStatus = "booked"
)

// GridConfig bounds the daily grid: slots run from WindowStartMinute to
// WindowEndMinute in StepMinutes increments.
type GridConfig struct {
	WindowStartMinute int
	WindowEndMinute   int
	StepMinutes       int
}

// DefaultGridConfig is the 07:00-19:00 window at 15-minute steps.
var DefaultGridConfig = GridConfig{
	WindowStartMinute: 7 * 60,
	WindowEndMinute:   19 * 60,
	StepMinutes:       15,
}

// Slot is one cell of the daily booking grid.
type Slot struct {
	StartMinute int
	EndMinute   int
	Start       time.Time
	End         time.Time
	Status      SlotStatus
	BlockType   BlockType // set when the slot falls inside a weekly block
}

// BookedRange is an absolute time range that blocks slots, produced from
// non-canceled appointments whose hold (if any) has not expired. The grid
// never inspects appointment rows directly; callers apply the hold-expiry
// rule before handing ranges in.
type BookedRange struct {
	Start time.Time
	End   time.Time
}

// BuildDayGrid classifies every slot of one local date. It is a pure function
// of its inputs: identical blocks, exceptions, booked ranges, date, and
// timezone always produce the identical grid.
//
// A slot is booked when any booked range touches it, snapped outward to whole
// slots (floor the range start, ceil the range end) so a partial-slot
// appointment still occupies the full cells it intrudes on. A slot is
// available when it is not booked, sits inside a weekly block under the
// strict end-exclusive containment rule, and is not excluded by a closure for
// the date. Everything else is unavailable.
func BuildDayGrid(cfg GridConfig, date timeslot.Date, loc *time.Location, blocks []AvailabilityBlock, exceptions []AvailabilityException, booked []BookedRange) []Slot {
	weekday := date.Weekday()
	blocks, _ = Repair(blocks)

	dayStart := timeslot.ToInstant(date, 0, loc)
	dayEnd := timeslot.ToInstant(date.AddDays(1), 0, loc)

	// Snap booked ranges to grid minutes once, up front.
	type span struct{ start, end int }
	var bookedSpans []span
	for _, r := range booked {
		if !r.End.After(dayStart) || !r.Start.Before(dayEnd) {
			continue
		}
		startMin := 0
		if r.Start.After(dayStart) {
			_, startMin, _ = timeslot.ToLocalParts(r.Start, loc)
		}
		endMin := timeslot.MinutesPerDay
		if r.End.Before(dayEnd) {
			_, endMin, _ = timeslot.ToLocalParts(r.End, loc)
		}
		floored := startMin - startMin%cfg.StepMinutes
		ceiled := endMin
		if rem := endMin % cfg.StepMinutes; rem != 0 {
			ceiled += cfg.StepMinutes - rem
		}
		bookedSpans = append(bookedSpans, span{floored, ceiled})
	}

	var grid []Slot
	for start := cfg.WindowStartMinute; start+cfg.StepMinutes <= cfg.WindowEndMinute; start += cfg.StepMinutes {
		end := start + cfg.StepMinutes
		slot := Slot{
			StartMinute: start,
			EndMinute:   end,
			Start:       timeslot.ToInstant(date, start, loc),
			End:         timeslot.ToInstant(date, end, loc),
			Status:      SlotUnavailable,
		}

		for _, b := range blocks {
			if b.DayOfWeek == weekday && b.Covers(start, end) {
				slot.Status = SlotAvailable
				slot.BlockType = b.Type
				break
			}
		}

		if slot.Status == SlotAvailable {
			for _, e := range exceptions {
				if e.Date == date && e.Excludes(start, end) {
					slot.Status = SlotUnavailable
					break
				}
			}
		}

		for _, s := range bookedSpans {
			if s.start < end && start < s.end {
				slot.Status = SlotBooked
				break
			}
		}

		grid = append(grid, slot)
	}
	return grid
}
