package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/observability/metrics"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// AppointmentSource yields the absolute time ranges that block slots. The
// implementation applies the hold-expiry rule, so a hold past its expires_at
// never comes back from here.
type AppointmentSource interface {
	BlockingRanges(ctx context.Context, practiceID uuid.UUID, from, to time.Time) ([]BookedRange, error)
}

// PracticeDirectory resolves the timezone a practice's wall-clock schedule is
// expressed in.
type PracticeDirectory interface {
	Timezone(ctx context.Context, practiceID uuid.UUID) (*time.Location, error)
}

type Service struct {
	repo      Repository
	appts     AppointmentSource
	practices PracticeDirectory
	grid      GridConfig
	carveMins int
	log       *zap.Logger
	sched     *metrics.SchedulingMetrics
}

func NewService(repo Repository, appts AppointmentSource, practices PracticeDirectory, grid GridConfig, carveMinutes int, log *zap.Logger, m *metrics.SchedulingMetrics) *Service {
	if carveMinutes <= 0 {
		carveMinutes = 60
	}
	return &Service{
		repo:      repo,
		appts:     appts,
		practices: practices,
		grid:      grid,
		carveMins: carveMinutes,
		log:       log,
		sched:     m,
	}
}

// ListBlocks returns the weekly schedule after the read-path repair: blocks
// with an inverted extent are deleted from storage and never surfaced.
func (s *Service) ListBlocks(ctx context.Context, practiceID uuid.UUID) ([]AvailabilityBlock, error) {
	blocks, err := s.repo.ListBlocks(ctx, practiceID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}

	valid, dropped := Repair(blocks)
	if len(dropped) > 0 {
		s.log.Warn("repairing corrupt availability blocks",
			zap.Stringer("practice_id", practiceID),
			zap.Int("dropped", len(dropped)))
		if err := s.repo.DeleteBlocks(ctx, dropped); err != nil {
			// Reads stay correct either way; the rows get another chance
			// on the next pass.
			s.log.Error("failed to delete corrupt blocks", zap.Error(err))
		}
	}
	return valid, nil
}

// ManualAdd inserts a block after rejecting any collision with the existing
// weekday set. The storage exclusion constraint backs this up under races.
func (s *Service) ManualAdd(ctx context.Context, practiceID uuid.UUID, day time.Weekday, startMinute, endMinute int, blockType BlockType) (*AvailabilityBlock, error) {
	if err := ValidateBlockType(blockType); err != nil {
		return nil, err
	}
	existing, err := s.ListBlocks(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	if err := CheckManualAdd(existing, day, startMinute, endMinute); err != nil {
		return nil, err
	}

	created, err := s.repo.InsertBlock(ctx, AvailabilityBlock{
		PracticeID:  practiceID,
		DayOfWeek:   day,
		StartMinute: startMinute,
		EndMinute:   endMinute,
		Type:        blockType,
	})
	if err != nil {
		return nil, fmt.Errorf("insert block: %w", err)
	}

	s.sched.ObserveCarve("manual_add")
	return created, nil
}

// Toggle carves the configured fixed-duration window in or out of the weekly
// schedule and returns the resulting block set for the practice.
func (s *Service) Toggle(ctx context.Context, practiceID uuid.UUID, day time.Weekday, toggleStartMinute int, blockType BlockType) ([]AvailabilityBlock, error) {
	existing, err := s.ListBlocks(ctx, practiceID)
	if err != nil {
		return nil, err
	}

	plan, err := PlanToggle(existing, practiceID, day, toggleStartMinute, s.carveMins, blockType)
	if err != nil {
		return nil, err
	}

	if err := s.repo.ApplyCarvePlan(ctx, plan); err != nil {
		return nil, fmt.Errorf("apply carve: %w", err)
	}

	action := "carve"
	if plan.Added {
		action = "open"
	}
	s.sched.ObserveCarve(action)
	s.log.Debug("toggled availability window",
		zap.Stringer("practice_id", practiceID),
		zap.Int("weekday", int(day)),
		zap.String("start", timeslot.FormatMinute(toggleStartMinute)),
		zap.String("action", action))

	return s.ListBlocks(ctx, practiceID)
}

// RemoveBlock deletes one block outright.
func (s *Service) RemoveBlock(ctx context.Context, practiceID, blockID uuid.UUID) error {
	if err := s.repo.DeleteBlock(ctx, practiceID, blockID); err != nil {
		return err
	}
	s.sched.ObserveCarve("delete")
	return nil
}

// ListExceptions returns closures in [from, to]. Past exceptions fall out of
// relevance by never being queried, so nothing deletes them automatically.
func (s *Service) ListExceptions(ctx context.Context, practiceID uuid.UUID, from, to timeslot.Date) ([]AvailabilityException, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: exception range end before start", ErrValidation)
	}
	exceptions, err := s.repo.ListExceptions(ctx, practiceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}
	return exceptions, nil
}

// AddException records a one-time closure. Either both minutes are present or
// both are absent (whole-day closure).
func (s *Service) AddException(ctx context.Context, e AvailabilityException) (*AvailabilityException, error) {
	if e.Date.IsZero() {
		return nil, fmt.Errorf("%w: exception date is required", ErrValidation)
	}
	if (e.StartMinute == nil) != (e.EndMinute == nil) {
		return nil, fmt.Errorf("%w: exception needs both start and end, or neither", ErrValidation)
	}
	if !e.WholeDay() {
		if err := validateExtent(*e.StartMinute, *e.EndMinute); err != nil {
			return nil, err
		}
	}

	created, err := s.repo.InsertException(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("insert exception: %w", err)
	}
	return created, nil
}

// RemoveException deletes a closure explicitly.
func (s *Service) RemoveException(ctx context.Context, practiceID, exceptionID uuid.UUID) error {
	return s.repo.DeleteException(ctx, practiceID, exceptionID)
}

// DayGrid derives the classified slot grid for one local date. A zero date
// means today as observed in the practice's timezone. The grid is recomputed
// from storage on every call; nothing here caches or mutates.
func (s *Service) DayGrid(ctx context.Context, practiceID uuid.UUID, date timeslot.Date) ([]Slot, error) {
	loc, err := s.practices.Timezone(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	if date.IsZero() {
		date = timeslot.TodayIn(loc)
	}

	blocks, err := s.ListBlocks(ctx, practiceID)
	if err != nil {
		return nil, err
	}

	exceptions, err := s.repo.ListExceptions(ctx, practiceID, date, date)
	if err != nil {
		return nil, fmt.Errorf("list exceptions: %w", err)
	}

	dayStart := timeslot.ToInstant(date, 0, loc)
	dayEnd := timeslot.ToInstant(date.AddDays(1), 0, loc)
	booked, err := s.appts.BlockingRanges(ctx, practiceID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("load blocking ranges: %w", err)
	}

	return BuildDayGrid(s.grid, date, loc, blocks, exceptions, booked), nil
}
