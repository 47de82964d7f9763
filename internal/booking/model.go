package booking

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusHold      AppointmentStatus = "hold"
	StatusScheduled AppointmentStatus = "scheduled"
	StatusShow      AppointmentStatus = "show"
	StatusNoShow    AppointmentStatus = "no_show"
	StatusCanceled  AppointmentStatus = "canceled"
)

var (
	ErrLeadNotFound            = errors.New("lead not found")
	ErrAppointmentNotFound     = errors.New("appointment not found")
	ErrOverlap                 = errors.New("appointment overlaps an existing booking")
	ErrOutsideAvailability     = errors.New("requested range is outside the practice's availability")
	ErrLeadHasActiveBooking    = errors.New("lead already has an active appointment")
	ErrPracticeBusy            = errors.New("practice is currently being booked, please retry")
	ErrHoldExpired             = errors.New("hold has already expired")
	ErrInvalidStatusTransition = errors.New("invalid appointment status transition")
	ErrValidation              = errors.New("invalid input")
)

// LeadConflictError signals that the contact details of a new lead already
// belong to ExistingLeadID. The booking transaction recovers by redirecting
// to that lead; the conflict never surfaces to the caller as a failure.
type LeadConflictError struct {
	ExistingLeadID uuid.UUID
}

func (e *LeadConflictError) Error() string {
	return fmt.Sprintf("lead contact already exists as %s", e.ExistingLeadID)
}

// Lead is a patient contact record scoped to one practice.
type Lead struct {
	ID         uuid.UUID
	PracticeID uuid.UUID
	FirstName  string
	LastName   string
	Email      *string
	Phone      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Appointment is a persisted booking. StartTime/EndTime are absolute
// instants; the half-open range [StartTime, EndTime) must not overlap any
// other blocking appointment for the same practice.
type Appointment struct {
	ID         uuid.UUID
	PracticeID uuid.UUID
	LeadID     uuid.UUID
	StartTime  time.Time
	EndTime    time.Time
	Status     AppointmentStatus
	ExpiresAt  *time.Time
	Source     string
	CreatedBy  string
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Blocking reports whether the appointment occupies its range at the given
// instant. A hold past its expiry is logically vacant even while the row
// still exists; every read path that classifies slots applies this rule.
func (a Appointment) Blocking(now time.Time) bool {
	if a.Status == StatusCanceled {
		return false
	}
	if a.Status == StatusHold && a.ExpiresAt != nil && now.After(*a.ExpiresAt) {
		return false
	}
	return true
}

// AppointmentWithLead joins the lead's display fields onto an appointment
// for calendar listings.
type AppointmentWithLead struct {
	Appointment
	LeadFirstName string
	LeadLastName  string
}
