package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// CreateParams carries everything the atomic create needs. Weekday and the
// local minute extents are precomputed from the practice timezone so the
// transaction can re-validate availability coverage without another
// conversion round trip.
type CreateParams struct {
	PracticeID  uuid.UUID
	LeadID      uuid.UUID
	StartTime   time.Time
	EndTime     time.Time
	Status      AppointmentStatus
	ExpiresAt   *time.Time
	Source      string
	CreatedBy   string
	Notes       *string
	LocalDate   timeslot.Date
	DayOfWeek   time.Weekday
	StartMinute int
	EndMinute   int
}

// Repository contains the storage interactions the booking service needs.
type Repository interface {
	GetLeadByID(ctx context.Context, id uuid.UUID) (*Lead, error)

	// InsertLead returns *LeadConflictError when the contact details
	// already belong to another lead of the same practice.
	InsertLead(ctx context.Context, l Lead) (*Lead, error)

	ListEligibleLeads(ctx context.Context, practiceID uuid.UUID, now time.Time) ([]Lead, error)
	LeadHasActiveAppointment(ctx context.Context, leadID uuid.UUID, now time.Time) (bool, error)

	// CreateAppointment runs the whole validation inside one transaction:
	// weekly-block coverage, exception overlay, overlap against blocking
	// appointments, then the insert. It returns ErrOutsideAvailability or
	// ErrOverlap with nothing written when a check fails.
	CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointments(ctx context.Context, practiceID uuid.UUID, from, to time.Time) ([]AppointmentWithLead, error)
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)
	CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CancelExpiredHolds flips holds past their expiry to canceled and
	// reports how many rows changed. Row hygiene only; reads already treat
	// expired holds as vacant.
	CancelExpiredHolds(ctx context.Context, now time.Time) (int, error)
}
