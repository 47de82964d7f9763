package schedule

import (
	"context"

	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// Repository contains the storage interactions the schedule service needs.
type Repository interface {
	ListBlocks(ctx context.Context, practiceID uuid.UUID) ([]AvailabilityBlock, error)
	InsertBlock(ctx context.Context, b AvailabilityBlock) (*AvailabilityBlock, error)
	DeleteBlock(ctx context.Context, practiceID, id uuid.UUID) error
	DeleteBlocks(ctx context.Context, ids []uuid.UUID) error

	// ApplyCarvePlan runs every mutation of one toggle in a single
	// transaction so a concurrent editor sees either the old or the new
	// interval set, never a half-carved one.
	ApplyCarvePlan(ctx context.Context, plan CarvePlan) error

	ListExceptions(ctx context.Context, practiceID uuid.UUID, from, to timeslot.Date) ([]AvailabilityException, error)
	InsertException(ctx context.Context, e AvailabilityException) (*AvailabilityException, error)
	DeleteException(ctx context.Context, practiceID, id uuid.UUID) error
}
