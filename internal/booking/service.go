package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/observability/metrics"
	redisclient "github.com/careloop/practice-scheduling/internal/redisclient"
	"github.com/careloop/practice-scheduling/internal/schedule"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// PracticeDirectory resolves the timezone a practice's schedule lives in.
type PracticeDirectory interface {
	Timezone(ctx context.Context, practiceID uuid.UUID) (*time.Location, error)
}

// NewLeadFields are the contact fields supplied when booking for a patient
// who does not exist yet.
type NewLeadFields struct {
	FirstName string
	LastName  string
	Email     *string
	Phone     *string
}

// BookingRequest describes one staff-selected slot to turn into an
// appointment. Exactly one of LeadID and NewLead must be set.
type BookingRequest struct {
	PracticeID      uuid.UUID
	LeadID          *uuid.UUID
	NewLead         *NewLeadFields
	Date            timeslot.Date
	StartMinute     int
	DurationMinutes int
	Hold            bool
	Source          string
	CreatedBy       string
	Notes           *string
}

type Service struct {
	repo      Repository
	practices PracticeDirectory
	locker    redisclient.Locker
	holdTTL   time.Duration
	now       func() time.Time
	log       *zap.Logger
	sched     *metrics.SchedulingMetrics
}

func NewService(repo Repository, practices PracticeDirectory, locker redisclient.Locker, holdTTL time.Duration, log *zap.Logger, m *metrics.SchedulingMetrics) *Service {
	return &Service{
		repo:      repo,
		practices: practices,
		locker:    locker,
		holdTTL:   holdTTL,
		now:       time.Now,
		log:       log,
		sched:     m,
	}
}

// Book turns a slot selection into a persisted appointment. Lead conflicts
// are absorbed by redirecting to the existing lead; availability and overlap
// violations come back as distinguishable errors so the caller can tell
// "slot just got taken" from "schedule changed underneath you".
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Appointment, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	leadID, err := s.resolveLead(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.now()
	active, err := s.repo.LeadHasActiveAppointment(ctx, leadID, now)
	if err != nil {
		return nil, fmt.Errorf("check lead bookings: %w", err)
	}
	if active {
		return nil, ErrLeadHasActiveBooking
	}

	loc, err := s.practices.Timezone(ctx, req.PracticeID)
	if err != nil {
		return nil, err
	}

	endMinute := req.StartMinute + req.DurationMinutes
	params := CreateParams{
		PracticeID:  req.PracticeID,
		LeadID:      leadID,
		StartTime:   timeslot.ToInstant(req.Date, req.StartMinute, loc),
		EndTime:     timeslot.ToInstant(req.Date, endMinute, loc),
		Status:      StatusScheduled,
		Source:      req.Source,
		CreatedBy:   req.CreatedBy,
		Notes:       req.Notes,
		LocalDate:   req.Date,
		DayOfWeek:   req.Date.Weekday(),
		StartMinute: req.StartMinute,
		EndMinute:   endMinute,
	}
	if req.Hold {
		expiresAt := now.Add(s.holdTTL)
		params.Status = StatusHold
		params.ExpiresAt = &expiresAt
	}

	var created *Appointment
	err = s.locker.WithPracticeLock(ctx, req.PracticeID, func(lockCtx context.Context) error {
		appt, err := s.repo.CreateAppointment(lockCtx, params)
		if err != nil {
			return err
		}
		created = appt
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			s.sched.ObserveBooking("busy")
			return nil, ErrPracticeBusy
		case errors.Is(err, ErrOutsideAvailability):
			s.sched.ObserveBooking("outside_availability")
			return nil, err
		case errors.Is(err, ErrOverlap):
			s.sched.ObserveBooking("overlap")
			return nil, err
		}
		s.sched.ObserveBooking("error")
		return nil, err
	}

	s.sched.ObserveBooking("created")
	s.log.Info("appointment created",
		zap.Stringer("appointment_id", created.ID),
		zap.Stringer("practice_id", created.PracticeID),
		zap.Stringer("lead_id", created.LeadID),
		zap.Time("start", created.StartTime),
		zap.String("status", string(created.Status)))
	return created, nil
}

func validateRequest(req BookingRequest) error {
	if (req.LeadID == nil) == (req.NewLead == nil) {
		return fmt.Errorf("%w: exactly one of lead_id and new lead fields is required", ErrValidation)
	}
	if req.Date.IsZero() {
		return fmt.Errorf("%w: date is required", ErrValidation)
	}
	if req.DurationMinutes <= 0 {
		return fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	if req.StartMinute < 0 || req.StartMinute+req.DurationMinutes > timeslot.MinutesPerDay {
		return fmt.Errorf("%w: appointment must fit within the day", ErrValidation)
	}
	if req.NewLead != nil && req.NewLead.FirstName == "" {
		return fmt.Errorf("%w: lead first name is required", ErrValidation)
	}
	return nil
}

// resolveLead returns the id to book against. A duplicate-contact conflict
// from the insert is success-with-redirect: the existing lead id is used and
// the conflict never propagates.
func (s *Service) resolveLead(ctx context.Context, req BookingRequest) (uuid.UUID, error) {
	if req.LeadID != nil {
		if _, err := s.repo.GetLeadByID(ctx, *req.LeadID); err != nil {
			return uuid.Nil, err
		}
		return *req.LeadID, nil
	}

	created, err := s.repo.InsertLead(ctx, Lead{
		PracticeID: req.PracticeID,
		FirstName:  req.NewLead.FirstName,
		LastName:   req.NewLead.LastName,
		Email:      req.NewLead.Email,
		Phone:      req.NewLead.Phone,
	})
	if err == nil {
		return created.ID, nil
	}

	var conflict *LeadConflictError
	if errors.As(err, &conflict) {
		s.log.Debug("redirecting booking to existing lead",
			zap.Stringer("lead_id", conflict.ExistingLeadID))
		return conflict.ExistingLeadID, nil
	}
	return uuid.Nil, fmt.Errorf("create lead: %w", err)
}

// CreateLead inserts a standalone lead. Duplicate contacts return the
// existing record instead of an error.
func (s *Service) CreateLead(ctx context.Context, l Lead) (*Lead, error) {
	if l.FirstName == "" {
		return nil, fmt.Errorf("%w: lead first name is required", ErrValidation)
	}

	created, err := s.repo.InsertLead(ctx, l)
	if err == nil {
		return created, nil
	}

	var conflict *LeadConflictError
	if errors.As(err, &conflict) {
		return s.repo.GetLeadByID(ctx, conflict.ExistingLeadID)
	}
	return nil, fmt.Errorf("create lead: %w", err)
}

// EligibleLeads lists leads selectable for a new booking: anyone without an
// active (non-canceled, non-expired-hold) appointment.
func (s *Service) EligibleLeads(ctx context.Context, practiceID uuid.UUID) ([]Lead, error) {
	return s.repo.ListEligibleLeads(ctx, practiceID, s.now())
}

// Confirm promotes a hold to scheduled before its expiry.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusHold {
		return nil, ErrInvalidStatusTransition
	}
	if appt.ExpiresAt != nil && s.now().After(*appt.ExpiresAt) {
		if _, err := s.repo.UpdateAppointmentStatus(ctx, id, StatusHold, StatusCanceled); err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			s.log.Warn("failed to cancel expired hold during confirm", zap.Stringer("appointment_id", id), zap.Error(err))
		}
		return nil, ErrHoldExpired
	}

	return s.repo.UpdateAppointmentStatus(ctx, id, StatusHold, StatusScheduled)
}

// Cancel marks an appointment canceled, freeing its range immediately.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.CancelAppointment(ctx, id)
}

// RecordOutcome tracks whether a scheduled patient showed.
func (s *Service) RecordOutcome(ctx context.Context, id uuid.UUID, outcome AppointmentStatus) (*Appointment, error) {
	if outcome != StatusShow && outcome != StatusNoShow {
		return nil, fmt.Errorf("%w: outcome must be show or no_show", ErrValidation)
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusScheduled {
		return nil, ErrInvalidStatusTransition
	}

	return s.repo.UpdateAppointmentStatus(ctx, id, StatusScheduled, outcome)
}

// ListAppointments returns the practice calendar for a range, with lead
// display fields joined in.
func (s *Service) ListAppointments(ctx context.Context, practiceID uuid.UUID, from, to time.Time) ([]AppointmentWithLead, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: range end must be after start", ErrValidation)
	}
	return s.repo.ListAppointments(ctx, practiceID, from, to)
}

// BlockingRanges implements schedule.AppointmentSource. The hold-expiry rule
// is applied here so the grid never sees a logically vacant hold.
func (s *Service) BlockingRanges(ctx context.Context, practiceID uuid.UUID, from, to time.Time) ([]schedule.BookedRange, error) {
	appts, err := s.repo.ListAppointments(ctx, practiceID, from, to)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var ranges []schedule.BookedRange
	for _, a := range appts {
		if !a.Blocking(now) {
			continue
		}
		ranges = append(ranges, schedule.BookedRange{Start: a.StartTime, End: a.EndTime})
	}
	return ranges, nil
}

// ExpireHolds is the sweeper entry point.
func (s *Service) ExpireHolds(ctx context.Context) (int, error) {
	n, err := s.repo.CancelExpiredHolds(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cancel expired holds: %w", err)
	}
	if n > 0 {
		s.sched.AddHoldsExpired(n)
		s.log.Info("canceled expired holds", zap.Int("count", n))
	}
	return n, nil
}
