package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

var nyLoc = func() *time.Location {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

func slotAt(t *testing.T, grid []Slot, minute int) Slot {
	t.Helper()
	for _, s := range grid {
		if s.StartMinute == minute {
			return s
		}
	}
	t.Fatalf("no slot starting at %s", timeslot.FormatMinute(minute))
	return Slot{}
}

func TestBuildDayGridClassifiesBookedWithSnapping(t *testing.T) {
	// 2024-06-03 is a Monday. Appointment 09:00-09:30 local marks the 09:00
	// and 09:15 slots booked; 08:45 stays untouched.
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 8*60, 12*60, BlockAvailable)}
	booked := []BookedRange{{
		Start: timeslot.ToInstant(date, 9*60, nyLoc),
		End:   timeslot.ToInstant(date, 9*60+30, nyLoc),
	}}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, nil, booked)

	assert.Equal(t, SlotBooked, slotAt(t, grid, 9*60).Status)
	assert.Equal(t, SlotBooked, slotAt(t, grid, 9*60+15).Status)
	assert.Equal(t, SlotAvailable, slotAt(t, grid, 8*60+45).Status)
	assert.Equal(t, SlotAvailable, slotAt(t, grid, 9*60+30).Status)
}

func TestBuildDayGridSnapsPartialSlotAppointments(t *testing.T) {
	// 09:05-09:20 floors to 09:00 and ceils to 09:30, occupying both cells.
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 8*60, 12*60, BlockAvailable)}
	booked := []BookedRange{{
		Start: timeslot.ToInstant(date, 9*60+5, nyLoc),
		End:   timeslot.ToInstant(date, 9*60+20, nyLoc),
	}}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, nil, booked)

	assert.Equal(t, SlotBooked, slotAt(t, grid, 9*60).Status)
	assert.Equal(t, SlotBooked, slotAt(t, grid, 9*60+15).Status)
	assert.Equal(t, SlotAvailable, slotAt(t, grid, 8*60+45).Status)
}

func TestBuildDayGridStrictEndContainment(t *testing.T) {
	// Block 09:00-12:00: the 11:45 slot's end touches the block end, which
	// fails the strict slotEnd < blockEnd rule used at booking time.
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 9*60, 12*60, BlockAvailable)}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, nil, nil)

	assert.Equal(t, SlotAvailable, slotAt(t, grid, 11*60+30).Status)
	assert.Equal(t, SlotUnavailable, slotAt(t, grid, 11*60+45).Status)
	assert.Equal(t, SlotUnavailable, slotAt(t, grid, 8*60+45).Status)
}

func TestBuildDayGridAdjacentBlocksRenderContinuous(t *testing.T) {
	// Two stored blocks 14:00-15:00 and 15:00-16:00 classify as one
	// continuous available region except the strict final slot.
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 6} // Thursday
	blocks := []AvailabilityBlock{
		block(time.Thursday, 14*60, 15*60, BlockAvailable),
		block(time.Thursday, 15*60, 16*60, BlockAvailable),
	}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, nil, nil)

	for m := 14 * 60; m < 15*60+45; m += 15 {
		assert.Equal(t, SlotAvailable, slotAt(t, grid, m).Status, "slot %s", timeslot.FormatMinute(m))
	}
}

func TestBuildDayGridWholeDayException(t *testing.T) {
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 9*60, 12*60, BlockAvailable)}
	exceptions := []AvailabilityException{{PracticeID: blocks[0].PracticeID, Date: date}}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, exceptions, nil)

	for _, s := range grid {
		assert.NotEqual(t, SlotAvailable, s.Status)
	}
}

func TestBuildDayGridPartialException(t *testing.T) {
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 9*60, 12*60, BlockAvailable)}
	start, end := 10*60, 11*60
	exceptions := []AvailabilityException{{Date: date, StartMinute: &start, EndMinute: &end}}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, exceptions, nil)

	assert.Equal(t, SlotAvailable, slotAt(t, grid, 9*60).Status)
	assert.Equal(t, SlotUnavailable, slotAt(t, grid, 10*60).Status)
	assert.Equal(t, SlotUnavailable, slotAt(t, grid, 10*60+45).Status)
	assert.Equal(t, SlotAvailable, slotAt(t, grid, 11*60).Status)
}

func TestBuildDayGridExceptionOnOtherDateIgnored(t *testing.T) {
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 9*60, 12*60, BlockAvailable)}
	exceptions := []AvailabilityException{{Date: date.AddDays(7)}}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, exceptions, nil)
	assert.Equal(t, SlotAvailable, slotAt(t, grid, 9*60).Status)
}

func TestBuildDayGridBookedWinsOverException(t *testing.T) {
	// A booked range always renders booked, even over closed time, so staff
	// can see the conflict instead of it disappearing.
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	booked := []BookedRange{{
		Start: timeslot.ToInstant(date, 9*60, nyLoc),
		End:   timeslot.ToInstant(date, 10*60, nyLoc),
	}}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, nil, []AvailabilityException{{Date: date}}, booked)
	assert.Equal(t, SlotBooked, slotAt(t, grid, 9*60).Status)
}

func TestBuildDayGridPure(t *testing.T) {
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{block(time.Monday, 9*60, 12*60, BlockAvailable)}
	start, end := 10*60, 11*60
	exceptions := []AvailabilityException{{Date: date, StartMinute: &start, EndMinute: &end}}
	booked := []BookedRange{{
		Start: timeslot.ToInstant(date, 11*60, nyLoc),
		End:   timeslot.ToInstant(date, 11*60+30, nyLoc),
	}}

	first := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, exceptions, booked)
	second := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, exceptions, booked)
	assert.Equal(t, first, second)
}

func TestBuildDayGridRepairsCorruptBlocks(t *testing.T) {
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	blocks := []AvailabilityBlock{
		block(time.Monday, 9*60, 12*60, BlockAvailable),
		block(time.Monday, 15*60, 14*60, BlockAvailable), // inverted
	}

	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, blocks, nil, nil)
	assert.Equal(t, SlotUnavailable, slotAt(t, grid, 14*60+15).Status)
}

func TestBuildDayGridWindowBounds(t *testing.T) {
	date := timeslot.Date{Year: 2024, Month: time.June, Day: 3}
	grid := BuildDayGrid(DefaultGridConfig, date, nyLoc, nil, nil, nil)

	require.NotEmpty(t, grid)
	assert.Equal(t, 7*60, grid[0].StartMinute)
	assert.Equal(t, 19*60, grid[len(grid)-1].EndMinute)
	assert.Len(t, grid, (19-7)*4)
}
