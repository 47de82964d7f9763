package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/practice"
	"github.com/careloop/practice-scheduling/internal/schedule"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

func listBlocksHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		blocks, err := svc.ListBlocks(r.Context(), practiceID)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBlockResponses(blocks))
	}
}

func createBlockHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		var req CreateBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		day, ok := parseWeekday(w, req.DayOfWeek)
		if !ok {
			return
		}
		start, err := timeslot.ParseMinute(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}
		end, err := timeslot.ParseMinute(req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
			return
		}

		created, err := svc.ManualAdd(r.Context(), practiceID, day, start, end, blockTypeOrDefault(req.Type))
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toBlockResponse(*created))
	}
}

func toggleBlockHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		var req ToggleBlockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		day, ok := parseWeekday(w, req.DayOfWeek)
		if !ok {
			return
		}
		start, err := timeslot.ParseMinute(req.StartTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
			return
		}

		blocks, err := svc.Toggle(r.Context(), practiceID, day, start, blockTypeOrDefault(req.Type))
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBlockResponses(blocks))
	}
}

func deleteBlockHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}
		blockID, err := uuid.Parse(chi.URLParam(r, "blockID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_block_id", "block id must be a valid UUID")
			return
		}

		if err := svc.RemoveBlock(r.Context(), practiceID, blockID); err != nil {
			handleScheduleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listExceptionsHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		from, to, ok := parseDateRange(w, r)
		if !ok {
			return
		}

		exceptions, err := svc.ListExceptions(r.Context(), practiceID, from, to)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		out := make([]ExceptionResponse, 0, len(exceptions))
		for _, e := range exceptions {
			out = append(out, toExceptionResponse(e))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func createExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		var req CreateExceptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := timeslot.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		e := schedule.AvailabilityException{
			PracticeID: practiceID,
			Date:       date,
			Reason:     req.Reason,
		}
		if req.StartTime != nil {
			start, err := timeslot.ParseMinute(*req.StartTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", "start_time must be HH:MM")
				return
			}
			e.StartMinute = &start
		}
		if req.EndTime != nil {
			end, err := timeslot.ParseMinute(*req.EndTime)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_time", "end_time must be HH:MM")
				return
			}
			e.EndMinute = &end
		}

		created, err := svc.AddException(r.Context(), e)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toExceptionResponse(*created))
	}
}

func deleteExceptionHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}
		exceptionID, err := uuid.Parse(chi.URLParam(r, "exceptionID"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_exception_id", "exception id must be a valid UUID")
			return
		}

		if err := svc.RemoveException(r.Context(), practiceID, exceptionID); err != nil {
			handleScheduleError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func dayGridHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		// No date means today in the practice's timezone.
		var date timeslot.Date
		if raw := r.URL.Query().Get("date"); raw != "" {
			var err error
			date, err = timeslot.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date query parameter must be YYYY-MM-DD")
				return
			}
		}

		slots, err := svc.DayGrid(r.Context(), practiceID, date)
		if err != nil {
			handleScheduleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func parsePracticeID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "practiceID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_practice_id", "practice id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseWeekday(w http.ResponseWriter, day int) (time.Weekday, bool) {
	if day < 0 || day > 6 {
		writeError(w, http.StatusBadRequest, "invalid_day_of_week", "day_of_week must be 0 (Sunday) through 6 (Saturday)")
		return 0, false
	}
	return time.Weekday(day), true
}

func parseDateRange(w http.ResponseWriter, r *http.Request) (timeslot.Date, timeslot.Date, bool) {
	fromStr := r.URL.Query().Get("from")
	toStr := r.URL.Query().Get("to")

	from, err := timeslot.ParseDate(fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from query parameter must be YYYY-MM-DD")
		return timeslot.Date{}, timeslot.Date{}, false
	}
	to, err := timeslot.ParseDate(toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to query parameter must be YYYY-MM-DD")
		return timeslot.Date{}, timeslot.Date{}, false
	}
	return from, to, true
}

func blockTypeOrDefault(t string) schedule.BlockType {
	if t == "" {
		return schedule.BlockAvailable
	}
	return schedule.BlockType(t)
}

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, schedule.ErrOverlap):
		writeError(w, http.StatusConflict, "block_overlap", err.Error())
	case errors.Is(err, schedule.ErrBlockNotFound):
		writeError(w, http.StatusNotFound, "block_not_found", err.Error())
	case errors.Is(err, schedule.ErrExceptionNotFound):
		writeError(w, http.StatusNotFound, "exception_not_found", err.Error())
	case errors.Is(err, practice.ErrPracticeNotFound):
		writeError(w, http.StatusNotFound, "practice_not_found", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
