package schedule

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// CarvePlan is the set of storage mutations a toggle resolves to. At most one
// of each field is populated except the split case, which updates the carved
// block and inserts the remainder.
type CarvePlan struct {
	Delete []uuid.UUID
	Update []AvailabilityBlock
	Insert []AvailabilityBlock
	Carved bool // toggle removed covered time
	Added  bool // toggle opened a new interval
}

// Repair drops any stored block whose extent is inverted or empty, returning
// the usable set and the ids that should be deleted from storage. Corrupt rows
// must never reach the carve or grid logic.
func Repair(blocks []AvailabilityBlock) (valid []AvailabilityBlock, dropped []uuid.UUID) {
	for _, b := range blocks {
		if b.Valid() {
			valid = append(valid, b)
			continue
		}
		dropped = append(dropped, b.ID)
	}
	return valid, dropped
}

// CheckManualAdd validates a manual block insert against the existing set for
// the same weekday, rejecting with ErrOverlap on any intersection.
func CheckManualAdd(existing []AvailabilityBlock, day time.Weekday, startMinute, endMinute int) error {
	if err := validateExtent(startMinute, endMinute); err != nil {
		return err
	}
	for _, b := range existing {
		if b.DayOfWeek != day {
			continue
		}
		if b.Overlaps(startMinute, endMinute) {
			return fmt.Errorf("%w: %s-%s collides with block %s",
				ErrOverlap, timeslot.FormatMinute(startMinute), timeslot.FormatMinute(endMinute), b.ID)
		}
	}
	return nil
}

// PlanToggle computes the mutations for toggling a fixed-duration window on
// one weekday. Toggling uncovered time opens a new block of newType; toggling
// covered time carves it back out, splitting or truncating the covered block
// as needed. The plan preserves the pairwise non-overlap invariant.
func PlanToggle(existing []AvailabilityBlock, practiceID uuid.UUID, day time.Weekday, toggleStart, durationMinutes int, newType BlockType) (CarvePlan, error) {
	if durationMinutes <= 0 {
		return CarvePlan{}, fmt.Errorf("%w: toggle duration must be positive", ErrValidation)
	}
	toggleEnd := toggleStart + durationMinutes
	if err := validateExtent(toggleStart, toggleEnd); err != nil {
		return CarvePlan{}, err
	}
	if err := ValidateBlockType(newType); err != nil {
		return CarvePlan{}, err
	}

	var target *AvailabilityBlock
	for i := range existing {
		b := existing[i]
		if b.DayOfWeek != day {
			continue
		}
		if b.Overlaps(toggleStart, toggleEnd) {
			target = &existing[i]
			break
		}
	}

	if target == nil {
		// Nothing covered: open the window as a fresh block.
		return CarvePlan{
			Insert: []AvailabilityBlock{{
				ID:          uuid.New(),
				PracticeID:  practiceID,
				DayOfWeek:   day,
				StartMinute: toggleStart,
				EndMinute:   toggleEnd,
				Type:        newType,
			}},
			Added: true,
		}, nil
	}

	// Clamp the toggle window to the portion actually covered by the block.
	actualStart := max(toggleStart, target.StartMinute)
	actualEnd := min(toggleEnd, target.EndMinute)

	switch {
	case actualStart == target.StartMinute && actualEnd == target.EndMinute:
		// Whole block carved away.
		return CarvePlan{Delete: []uuid.UUID{target.ID}, Carved: true}, nil

	case actualStart == target.StartMinute:
		// Truncate front.
		upd := *target
		upd.StartMinute = actualEnd
		return CarvePlan{Update: []AvailabilityBlock{upd}, Carved: true}, nil

	case actualEnd == target.EndMinute:
		// Truncate back.
		upd := *target
		upd.EndMinute = actualStart
		return CarvePlan{Update: []AvailabilityBlock{upd}, Carved: true}, nil

	default:
		// Interior window: split into two blocks of the original type.
		left := *target
		left.EndMinute = actualStart
		right := AvailabilityBlock{
			ID:          uuid.New(),
			PracticeID:  practiceID,
			DayOfWeek:   day,
			StartMinute: actualEnd,
			EndMinute:   target.EndMinute,
			Type:        target.Type,
		}
		return CarvePlan{
			Update: []AvailabilityBlock{left},
			Insert: []AvailabilityBlock{right},
			Carved: true,
		}, nil
	}
}

func validateExtent(startMinute, endMinute int) error {
	if startMinute < 0 || endMinute > timeslot.MinutesPerDay {
		return fmt.Errorf("%w: interval %d-%d outside the day", ErrValidation, startMinute, endMinute)
	}
	if startMinute >= endMinute {
		return fmt.Errorf("%w: interval start %s is not before end %s",
			ErrValidation, timeslot.FormatMinute(startMinute), timeslot.FormatMinute(endMinute))
	}
	return nil
}
