package practice

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Repository contains the storage interactions the practice service needs.
type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Practice, error)
	ListWithCoords(ctx context.Context, statuses []Status) ([]Practice, error)
}

// Querier is the slice of pgxpool.Pool the repository uses. pgxmock
// satisfies it too.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool Querier
}

func NewPgRepository(pool Querier) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanPractice(row pgx.Row) (*Practice, error) {
	var p Practice

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Lat,
		&p.Lng,
		&p.RadiusMiles,
		&p.Status,
		&p.Timezone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPracticeNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Practice, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, lat, lng, radius_miles, status, timezone, created_at, updated_at
		FROM practices
		WHERE id = $1
	`, id)
	return scanPractice(row)
}

func (r *PgRepository) ListWithCoords(ctx context.Context, statuses []Status) ([]Practice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, lat, lng, radius_miles, status, timezone, created_at, updated_at
		FROM practices
		WHERE lat IS NOT NULL
		  AND lng IS NOT NULL
		  AND status = ANY($1)
		ORDER BY name
	`, statuses)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Practice
	for rows.Next() {
		p, err := scanPractice(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	return result, rows.Err()
}
