package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// exclusionViolation is raised by the btree_gist constraints when a racing
// writer lands an overlapping interval first.
const exclusionViolation = "23P01"

// Querier is the slice of pgxpool.Pool the repository uses. pgxmock
// satisfies it too.
type Querier interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool Querier
}

func NewPgRepository(pool Querier) *PgRepository {
	return &PgRepository{pool: pool}
}

func scanBlock(row pgx.Row) (*AvailabilityBlock, error) {
	var b AvailabilityBlock
	var day int16

	err := row.Scan(
		&b.ID,
		&b.PracticeID,
		&day,
		&b.StartMinute,
		&b.EndMinute,
		&b.Type,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, err
	}

	b.DayOfWeek = time.Weekday(day)
	return &b, nil
}

func scanException(row pgx.Row) (*AvailabilityException, error) {
	var e AvailabilityException
	var date time.Time

	err := row.Scan(
		&e.ID,
		&e.PracticeID,
		&date,
		&e.StartMinute,
		&e.EndMinute,
		&e.Reason,
		&e.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExceptionNotFound
		}
		return nil, err
	}

	e.Date = timeslot.Date{Year: date.Year(), Month: date.Month(), Day: date.Day()}
	return &e, nil
}

func mapOverlapErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
		return fmt.Errorf("%w: %s", ErrOverlap, pgErr.ConstraintName)
	}
	return err
}

func (r *PgRepository) ListBlocks(ctx context.Context, practiceID uuid.UUID) ([]AvailabilityBlock, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practice_id, day_of_week, start_minute, end_minute, block_type, created_at, updated_at
		FROM availability_blocks
		WHERE practice_id = $1
		ORDER BY day_of_week, start_minute
	`, practiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityBlock
	for rows.Next() {
		b, err := scanBlock(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertBlock(ctx context.Context, b AvailabilityBlock) (*AvailabilityBlock, error) {
	id := b.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_blocks (id, practice_id, day_of_week, start_minute, end_minute, block_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, practice_id, day_of_week, start_minute, end_minute, block_type, created_at, updated_at
	`, id, b.PracticeID, int16(b.DayOfWeek), b.StartMinute, b.EndMinute, b.Type)

	created, err := scanBlock(row)
	if err != nil {
		return nil, mapOverlapErr(err)
	}
	return created, nil
}

func (r *PgRepository) DeleteBlock(ctx context.Context, practiceID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_blocks
		WHERE id = $1 AND practice_id = $2
	`, id, practiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (r *PgRepository) DeleteBlocks(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx, `
		DELETE FROM availability_blocks
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *PgRepository) ApplyCarvePlan(ctx context.Context, plan CarvePlan) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin carve tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, id := range plan.Delete {
		if _, err := tx.Exec(ctx, `DELETE FROM availability_blocks WHERE id = $1`, id); err != nil {
			return fmt.Errorf("carve delete: %w", err)
		}
	}
	for _, b := range plan.Update {
		tag, err := tx.Exec(ctx, `
			UPDATE availability_blocks
			SET start_minute = $2, end_minute = $3, updated_at = now()
			WHERE id = $1
		`, b.ID, b.StartMinute, b.EndMinute)
		if err != nil {
			return fmt.Errorf("carve update: %w", mapOverlapErr(err))
		}
		if tag.RowsAffected() == 0 {
			return ErrBlockNotFound
		}
	}
	for _, b := range plan.Insert {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_blocks (id, practice_id, day_of_week, start_minute, end_minute, block_type, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, b.ID, b.PracticeID, int16(b.DayOfWeek), b.StartMinute, b.EndMinute, b.Type)
		if err != nil {
			return fmt.Errorf("carve insert: %w", mapOverlapErr(err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit carve tx: %w", mapOverlapErr(err))
	}
	return nil
}

func (r *PgRepository) ListExceptions(ctx context.Context, practiceID uuid.UUID, from, to timeslot.Date) ([]AvailabilityException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practice_id, exception_date, start_minute, end_minute, reason, created_at
		FROM availability_exceptions
		WHERE practice_id = $1
		  AND exception_date >= $2
		  AND exception_date <= $3
		ORDER BY exception_date, start_minute NULLS FIRST
	`, practiceID, from.String(), to.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AvailabilityException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	return result, rows.Err()
}

func (r *PgRepository) InsertException(ctx context.Context, e AvailabilityException) (*AvailabilityException, error) {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability_exceptions (id, practice_id, exception_date, start_minute, end_minute, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id, practice_id, exception_date, start_minute, end_minute, reason, created_at
	`, id, e.PracticeID, e.Date.String(), e.StartMinute, e.EndMinute, e.Reason)

	return scanException(row)
}

func (r *PgRepository) DeleteException(ctx context.Context, practiceID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_exceptions
		WHERE id = $1 AND practice_id = $2
	`, id, practiceID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExceptionNotFound
	}
	return nil
}
