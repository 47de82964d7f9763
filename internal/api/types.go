package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/booking"
	"github.com/careloop/practice-scheduling/internal/coverage"
	"github.com/careloop/practice-scheduling/internal/practice"
	"github.com/careloop/practice-scheduling/internal/schedule"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

type CreateBlockRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"` // HH:MM
	EndTime   string `json:"end_time"`   // HH:MM
	Type      string `json:"type"`
}

type ToggleBlockRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	StartTime string `json:"start_time"` // HH:MM
	Type      string `json:"type,omitempty"`
}

type BlockResponse struct {
	ID        uuid.UUID `json:"id"`
	DayOfWeek int       `json:"day_of_week"`
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Type      string    `json:"type"`
}

func toBlockResponse(b schedule.AvailabilityBlock) BlockResponse {
	return BlockResponse{
		ID:        b.ID,
		DayOfWeek: int(b.DayOfWeek),
		StartTime: timeslot.FormatMinute(b.StartMinute),
		EndTime:   timeslot.FormatMinute(b.EndMinute),
		Type:      string(b.Type),
	}
}

func toBlockResponses(blocks []schedule.AvailabilityBlock) []BlockResponse {
	out := make([]BlockResponse, 0, len(blocks))
	for _, b := range blocks {
		out = append(out, toBlockResponse(b))
	}
	return out
}

type CreateExceptionRequest struct {
	Date      string  `json:"date"` // YYYY-MM-DD
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Reason    *string `json:"reason,omitempty"`
}

type ExceptionResponse struct {
	ID        uuid.UUID `json:"id"`
	Date      string    `json:"date"`
	StartTime *string   `json:"start_time,omitempty"`
	EndTime   *string   `json:"end_time,omitempty"`
	WholeDay  bool      `json:"whole_day"`
	Reason    *string   `json:"reason,omitempty"`
}

func toExceptionResponse(e schedule.AvailabilityException) ExceptionResponse {
	resp := ExceptionResponse{
		ID:       e.ID,
		Date:     e.Date.String(),
		WholeDay: e.WholeDay(),
		Reason:   e.Reason,
	}
	if !e.WholeDay() {
		start := timeslot.FormatMinute(*e.StartMinute)
		end := timeslot.FormatMinute(*e.EndMinute)
		resp.StartTime = &start
		resp.EndTime = &end
	}
	return resp
}

type SlotResponse struct {
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Status    string    `json:"status"`
	BlockType string    `json:"block_type,omitempty"`
}

func toSlotResponses(slots []schedule.Slot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, SlotResponse{
			StartTime: timeslot.FormatMinute(s.StartMinute),
			EndTime:   timeslot.FormatMinute(s.EndMinute),
			Start:     s.Start,
			End:       s.End,
			Status:    string(s.Status),
			BlockType: string(s.BlockType),
		})
	}
	return out
}

type NewLeadRequest struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     *string `json:"email,omitempty"`
	Phone     *string `json:"phone,omitempty"`
}

type LeadResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     *string   `json:"email,omitempty"`
	Phone     *string   `json:"phone,omitempty"`
}

func toLeadResponse(l booking.Lead) LeadResponse {
	return LeadResponse{
		ID:        l.ID,
		FirstName: l.FirstName,
		LastName:  l.LastName,
		Email:     l.Email,
		Phone:     l.Phone,
	}
}

type BookAppointmentRequest struct {
	LeadID          *uuid.UUID      `json:"lead_id,omitempty"`
	NewLead         *NewLeadRequest `json:"new_lead,omitempty"`
	Date            string          `json:"date"`       // YYYY-MM-DD
	StartTime       string          `json:"start_time"` // HH:MM
	DurationMinutes int             `json:"duration_minutes"`
	Hold            bool            `json:"hold,omitempty"`
	Source          string          `json:"source,omitempty"`
	CreatedBy       string          `json:"created_by,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
}

type OutcomeRequest struct {
	Outcome string `json:"outcome"` // show | no_show
}

type AppointmentResponse struct {
	ID        uuid.UUID  `json:"id"`
	LeadID    uuid.UUID  `json:"lead_id"`
	StartTime time.Time  `json:"start_time"`
	EndTime   time.Time  `json:"end_time"`
	Status    string     `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Source    string     `json:"source"`
	Notes     *string    `json:"notes,omitempty"`
	LeadName  string     `json:"lead_name,omitempty"`
}

func toAppointmentResponse(a booking.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		LeadID:    a.LeadID,
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		Status:    string(a.Status),
		ExpiresAt: a.ExpiresAt,
		Source:    a.Source,
		Notes:     a.Notes,
	}
}

type OverlapResponse struct {
	PracticeID    uuid.UUID `json:"practice_id"`
	Name          string    `json:"name"`
	DistanceMiles float64   `json:"distance_miles"`
}

func toOverlapResponses(overlaps []practice.Overlap) []OverlapResponse {
	out := make([]OverlapResponse, 0, len(overlaps))
	for _, o := range overlaps {
		out = append(out, OverlapResponse{
			PracticeID:    o.PracticeID,
			Name:          o.Name,
			DistanceMiles: o.DistanceMiles,
		})
	}
	return out
}

type CoveragePolygonResponse struct {
	Points []coverage.Point `json:"points"`
}
