package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/careloop/practice-scheduling/internal/coverage"
	"github.com/careloop/practice-scheduling/internal/practice"
)

func listOverlapsHandler(svc *practice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		lat, err := strconv.ParseFloat(q.Get("lat"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_lat", "lat query parameter must be a number")
			return
		}
		lng, err := strconv.ParseFloat(q.Get("lng"), 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_lng", "lng query parameter must be a number")
			return
		}
		radius, err := strconv.ParseFloat(q.Get("radius_miles"), 64)
		if err != nil || radius <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_radius", "radius_miles must be a positive number")
			return
		}

		excluding := uuid.Nil
		if raw := q.Get("exclude"); raw != "" {
			excluding, err = uuid.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_exclude", "exclude must be a valid UUID")
				return
			}
		}

		candidate := coverage.Circle{
			Center:      coverage.Point{Lat: lat, Lng: lng},
			RadiusMiles: radius,
		}
		overlaps, err := svc.ListOverlaps(r.Context(), candidate, excluding)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toOverlapResponses(overlaps))
	}
}

func coveragePolygonHandler(svc *practice.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practiceID, ok := parsePracticeID(w, r)
		if !ok {
			return
		}

		ring, err := svc.CoveragePolygon(r.Context(), practiceID)
		if err != nil {
			if errors.Is(err, practice.ErrPracticeNotFound) {
				writeError(w, http.StatusNotFound, "practice_not_found", err.Error())
				return
			}
			writeError(w, http.StatusUnprocessableEntity, "no_coverage_area", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, CoveragePolygonResponse{Points: ring})
	}
}
