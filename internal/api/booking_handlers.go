package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/booking"
	"github.com/careloop/practice-scheduling/internal/practice"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

func bookAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := timeslot.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		start, err := timeslot.ParseMinute(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		bookingReq := booking.BookingRequest{
			PracticeID:      practiceID,
			LeadID:          req.LeadID,
			Date:            date,
			StartMinute:     start,
			DurationMinutes: req.DurationMinutes,
			Hold:            req.Hold,
			Source:          sourceOrDefault(req.Source),
			CreatedBy:       req.CreatedBy,
			Notes:           req.Notes,
		}
		if req.NewLead != nil {
			bookingReq.NewLead = &booking.NewLeadFields{
				FirstName: req.NewLead.FirstName,
				LastName:  req.NewLead.LastName,
				Email:     req.NewLead.Email,
				Phone:     req.NewLead.Phone,
			}
		}

		appt, err := svc.Book(r.Context(), bookingReq)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func listAppointmentsHandler(svc *booking.Service, practices *practice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}
		from, to, ok := parseDateRange(w, r)
		if !ok {
			return
		}

		loc, err := practices.Timezone(r.Context(), practiceID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		appts, err := svc.ListAppointments(r.Context(), practiceID,
			timeslot.ToInstant(from, 0, loc),
			timeslot.ToInstant(to.AddDays(1), 0, loc))
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]AppointmentResponse, 0, len(appts))
		for _, a := range appts {
			resp := toAppointmentResponse(a.Appointment)
			resp.LeadName = a.LeadFirstName + " " + a.LeadLastName
			out = append(out, resp)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func confirmAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Confirm(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func appointmentOutcomeHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req OutcomeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		appt, err := svc.RecordOutcome(r.Context(), id, booking.AppointmentStatus(req.Outcome))
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func createLeadHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		var req NewLeadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		lead, err := svc.CreateLead(r.Context(), booking.Lead{
			PracticeID: practiceID,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Email:      req.Email,
			Phone:      req.Phone,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toLeadResponse(*lead))
	}
}

func listEligibleLeadsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		leads, err := svc.EligibleLeads(r.Context(), practiceID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		out := make([]LeadResponse, 0, len(leads))
		for _, l := range leads {
			out = append(out, toLeadResponse(l))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func parseAppointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func sourceOrDefault(s string) string {
	if s == "" {
		return "staff"
	}
	return s
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, booking.ErrLeadNotFound):
		writeError(w, http.StatusNotFound, "lead_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, practice.ErrPracticeNotFound):
		writeError(w, http.StatusNotFound, "practice_not_found", err.Error())
	case errors.Is(err, booking.ErrOutsideAvailability):
		writeError(w, http.StatusConflict, "outside_availability", err.Error())
	case errors.Is(err, booking.ErrOverlap):
		writeError(w, http.StatusConflict, "overlap", err.Error())
	case errors.Is(err, booking.ErrLeadHasActiveBooking):
		writeError(w, http.StatusConflict, "lead_has_active_booking", err.Error())
	case errors.Is(err, booking.ErrHoldExpired):
		writeError(w, http.StatusConflict, "hold_expired", err.Error())
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrPracticeBusy):
		writeError(w, http.StatusConflict, "practice_being_booked", "practice calendar is being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
