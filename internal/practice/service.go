package practice

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/coverage"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// Overlap is one practice whose service circle intersects the candidate's.
type Overlap struct {
	PracticeID    uuid.UUID
	Name          string
	DistanceMiles float64
}

type Service struct {
	repo Repository
	log  *zap.Logger
}

func NewService(repo Repository, log *zap.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// Get returns one practice by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Practice, error) {
	return s.repo.GetByID(ctx, id)
}

// Timezone resolves the practice's IANA timezone. Implements the
// PracticeDirectory interfaces of the schedule and booking services.
func (s *Service) Timezone(ctx context.Context, practiceID uuid.UUID) (*time.Location, error) {
	p, err := s.repo.GetByID(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	loc, err := timeslot.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("practice %s: %w", practiceID, err)
	}
	return loc, nil
}

// CoveragePolygon returns the practice's service circle as a render-ready
// ring of points.
func (s *Service) CoveragePolygon(ctx context.Context, practiceID uuid.UUID) ([]coverage.Point, error) {
	p, err := s.repo.GetByID(ctx, practiceID)
	if err != nil {
		return nil, err
	}
	if !p.HasCoords() {
		return nil, fmt.Errorf("practice %s has no coordinates", practiceID)
	}
	c := coverage.Circle{Center: coverage.Point{Lat: *p.Lat, Lng: *p.Lng}, RadiusMiles: p.RadiusMiles}
	return c.Polygon(coverage.DefaultPolygonPoints), nil
}

// ListOverlaps reports every active or pending practice whose service circle
// intersects the candidate circle, with the center-to-center distance.
// Excluding lets a practice editing its own area skip itself.
func (s *Service) ListOverlaps(ctx context.Context, candidate coverage.Circle, excluding uuid.UUID) ([]Overlap, error) {
	others, err := s.repo.ListWithCoords(ctx, []Status{StatusActive, StatusPending})
	if err != nil {
		return nil, fmt.Errorf("list practices: %w", err)
	}

	var overlaps []Overlap
	for _, p := range others {
		if p.ID == excluding {
			continue
		}
		circle := coverage.Circle{Center: coverage.Point{Lat: *p.Lat, Lng: *p.Lng}, RadiusMiles: p.RadiusMiles}
		if !candidate.Intersects(circle) {
			continue
		}
		overlaps = append(overlaps, Overlap{
			PracticeID:    p.ID,
			Name:          p.Name,
			DistanceMiles: coverage.DistanceMiles(candidate.Center, circle.Center),
		})
	}

	s.log.Debug("coverage overlap check",
		zap.Float64("lat", candidate.Center.Lat),
		zap.Float64("lng", candidate.Center.Lng),
		zap.Float64("radius_miles", candidate.RadiusMiles),
		zap.Int("overlaps", len(overlaps)))
	return overlaps, nil
}
