package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	uniqueViolation    = "23505"
	exclusionViolation = "23P01"
)

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

func scanLead(row pgx.Row) (*Lead, error) {
	var l Lead

	err := row.Scan(
		&l.ID,
		&l.PracticeID,
		&l.FirstName,
		&l.LastName,
		&l.Email,
		&l.Phone,
		&l.CreatedAt,
		&l.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, err
	}
	return &l, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PracticeID,
		&a.LeadID,
		&a.StartTime,
		&a.EndTime,
		&a.Status,
		&a.ExpiresAt,
		&a.Source,
		&a.CreatedBy,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

const appointmentColumns = `id, practice_id, lead_id, start_time, end_time, status, expires_at, source, created_by, notes, created_at, updated_at`

// blockingPredicate matches appointments that occupy their range at $NOW.
// Non-canceled rows block, except holds whose expiry has passed.
const blockingPredicate = `
	status <> 'canceled'
	AND NOT (status = 'hold' AND expires_at IS NOT NULL AND expires_at < %s)
`

func (r *PgRepository) GetLeadByID(ctx context.Context, id uuid.UUID) (*Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practice_id, first_name, last_name, email, phone, created_at, updated_at
		FROM leads
		WHERE id = $1
	`, id)
	return scanLead(row)
}

func (r *PgRepository) InsertLead(ctx context.Context, l Lead) (*Lead, error) {
	id := l.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO leads (id, practice_id, first_name, last_name, email, phone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING id, practice_id, first_name, last_name, email, phone, created_at, updated_at
	`, id, l.PracticeID, l.FirstName, l.LastName, l.Email, l.Phone)

	created, err := scanLead(row)
	if err == nil {
		return created, nil
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil, err
	}

	// Duplicate contact: dig out the existing lead so the caller can
	// redirect the booking to it.
	existing, lookupErr := r.findLeadByContact(ctx, l.PracticeID, l.Email, l.Phone)
	if lookupErr != nil {
		return nil, fmt.Errorf("resolve duplicate lead: %w", lookupErr)
	}
	return nil, &LeadConflictError{ExistingLeadID: existing.ID}
}

func (r *PgRepository) findLeadByContact(ctx context.Context, practiceID uuid.UUID, email, phone *string) (*Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practice_id, first_name, last_name, email, phone, created_at, updated_at
		FROM leads
		WHERE practice_id = $1
		  AND (($2::text IS NOT NULL AND lower(email) = lower($2))
		    OR ($3::text IS NOT NULL AND phone = $3))
		LIMIT 1
	`, practiceID, email, phone)
	return scanLead(row)
}

func (r *PgRepository) ListEligibleLeads(ctx context.Context, practiceID uuid.UUID, now time.Time) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.practice_id, l.first_name, l.last_name, l.email, l.phone, l.created_at, l.updated_at
		FROM leads l
		WHERE l.practice_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM appointments a
			WHERE a.lead_id = l.id
			  AND `+fmt.Sprintf(blockingPredicate, "$2")+`
		  )
		ORDER BY l.last_name, l.first_name
	`, practiceID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *l)
	}
	return result, rows.Err()
}

func (r *PgRepository) LeadHasActiveAppointment(ctx context.Context, leadID uuid.UUID, now time.Time) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE lead_id = $1
			  AND `+fmt.Sprintf(blockingPredicate, "$2")+`
		)
	`, leadID, now).Scan(&exists)
	return exists, err
}

func (r *PgRepository) CreateAppointment(ctx context.Context, p CreateParams) (*Appointment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// (a) The range must sit inside a single weekly block under the strict
	// end-exclusive rule, and no closure may touch it on that date.
	var covered bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_blocks
			WHERE practice_id = $1
			  AND day_of_week = $2
			  AND start_minute <= $3
			  AND end_minute > $4
			  AND start_minute < end_minute
		)
	`, p.PracticeID, int16(p.DayOfWeek), p.StartMinute, p.EndMinute).Scan(&covered)
	if err != nil {
		return nil, fmt.Errorf("check block coverage: %w", err)
	}
	if !covered {
		return nil, ErrOutsideAvailability
	}

	var excluded bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM availability_exceptions
			WHERE practice_id = $1
			  AND exception_date = $2
			  AND (start_minute IS NULL
			    OR (start_minute < $4 AND $3 < end_minute))
		)
	`, p.PracticeID, p.LocalDate.String(), p.StartMinute, p.EndMinute).Scan(&excluded)
	if err != nil {
		return nil, fmt.Errorf("check exceptions: %w", err)
	}
	if excluded {
		return nil, ErrOutsideAvailability
	}

	// Expired holds in the way are reaped here instead of by a background
	// sweep, so the exclusion constraint sees only rows that truly block.
	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'canceled', updated_at = now()
		WHERE practice_id = $1
		  AND status = 'hold'
		  AND expires_at IS NOT NULL
		  AND expires_at < now()
		  AND start_time < $3 AND $2 < end_time
	`, p.PracticeID, p.StartTime, p.EndTime)
	if err != nil {
		return nil, fmt.Errorf("reap expired holds: %w", err)
	}

	// (b) No blocking appointment may overlap the range.
	var conflict bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE practice_id = $1
			  AND start_time < $3 AND $2 < end_time
			  AND `+fmt.Sprintf(blockingPredicate, "now()")+`
		)
	`, p.PracticeID, p.StartTime, p.EndTime).Scan(&conflict)
	if err != nil {
		return nil, fmt.Errorf("check appointment overlap: %w", err)
	}
	if conflict {
		return nil, ErrOverlap
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO appointments (id, practice_id, lead_id, start_time, end_time, status, expires_at, source, created_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentColumns+`
	`, uuid.New(), p.PracticeID, p.LeadID, p.StartTime, p.EndTime, p.Status, p.ExpiresAt, p.Source, p.CreatedBy, p.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			// A racing writer landed first; same answer as the check above.
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == exclusionViolation {
			return nil, ErrOverlap
		}
		return nil, fmt.Errorf("commit booking tx: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, practiceID uuid.UUID, from, to time.Time) ([]AppointmentWithLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.practice_id, a.lead_id, a.start_time, a.end_time, a.status, a.expires_at,
		       a.source, a.created_by, a.notes, a.created_at, a.updated_at,
		       l.first_name, l.last_name
		FROM appointments a
		JOIN leads l ON l.id = a.lead_id
		WHERE a.practice_id = $1
		  AND a.start_time < $3
		  AND a.end_time > $2
		ORDER BY a.start_time
	`, practiceID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AppointmentWithLead
	for rows.Next() {
		var a AppointmentWithLead
		err := rows.Scan(
			&a.ID,
			&a.PracticeID,
			&a.LeadID,
			&a.StartTime,
			&a.EndTime,
			&a.Status,
			&a.ExpiresAt,
			&a.Source,
			&a.CreatedBy,
			&a.Notes,
			&a.CreatedAt,
			&a.UpdatedAt,
			&a.LeadFirstName,
			&a.LeadLastName,
		)
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)
	return scanAppointment(row)
}

func (r *PgRepository) CancelAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'canceled',
		    updated_at = now()
		WHERE id = $1
		  AND status <> 'canceled'
		RETURNING `+appointmentColumns+`
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CancelExpiredHolds(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'canceled',
		    updated_at = now()
		WHERE status = 'hold'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
