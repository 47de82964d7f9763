package practice

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
)

var ErrPracticeNotFound = errors.New("practice not found")

// Practice is a clinic location. Lat/Lng may be absent until onboarding
// completes; practices without coordinates stay out of coverage checks.
type Practice struct {
	ID          uuid.UUID
	Name        string
	Lat         *float64
	Lng         *float64
	RadiusMiles float64
	Status      Status
	Timezone    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasCoords reports whether the practice can participate in coverage
// overlap checks.
func (p Practice) HasCoords() bool {
	return p.Lat != nil && p.Lng != nil
}
