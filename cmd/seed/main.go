package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/practice-scheduling/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practiceIDs, err := seedPractices(context.Background(), pool, 25)
	if err != nil {
		log.Fatalf("seed practices: %v", err)
	}
	if err := seedWeeklyBlocks(context.Background(), pool, practiceIDs); err != nil {
		log.Fatalf("seed availability blocks: %v", err)
	}
	if err := seedLeads(context.Background(), pool, practiceIDs, 2000); err != nil {
		log.Fatalf("seed leads: %v", err)
	}

	log.Println("seed complete")
}

func seedPractices(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practices", count)

	timezones := []string{
		"America/New_York",
		"America/Chicago",
		"America/Denver",
		"America/Los_Angeles",
		"America/Phoenix",
	}
	statuses := []string{"active", "active", "active", "pending", "paused"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Company() + " Dental"
		// Cluster around the US northeast so coverage overlaps actually occur.
		lat := gofakeit.Float64Range(39.0, 42.0)
		lng := gofakeit.Float64Range(-77.0, -73.0)
		radius := float64(gofakeit.Number(5, 25))
		tz := timezones[gofakeit.Number(0, len(timezones)-1)]
		status := statuses[gofakeit.Number(0, len(statuses)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practices (id, name, lat, lng, radius_miles, status, timezone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		`, id, name, lat, lng, radius, status, tz)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practices seeded")
	return ids, nil
}

func seedWeeklyBlocks(ctx context.Context, pool *pgxpool.Pool, practiceIDs []uuid.UUID) error {
	log.Printf("seeding weekly blocks for %d practices", len(practiceIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, practiceID := range practiceIDs {
		// Monday through Friday, morning and afternoon with a lunch gap.
		for day := 1; day <= 5; day++ {
			spans := [][2]int{{9 * 60, 12 * 60}, {13 * 60, 17 * 60}}
			for _, span := range spans {
				_, err := tx.Exec(ctx, `
					INSERT INTO availability_blocks (id, practice_id, day_of_week, start_minute, end_minute, block_type, created_at, updated_at)
					VALUES ($1, $2, $3, $4, $5, 'available', now(), now())
				`, uuid.New(), practiceID, day, span[0], span[1])
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("weekly blocks seeded")
	return nil
}

func seedLeads(ctx context.Context, pool *pgxpool.Pool, practiceIDs []uuid.UUID, count int) error {
	log.Printf("seeding %d leads", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			practiceID := practiceIDs[gofakeit.Number(0, len(practiceIDs)-1)]
			email := gofakeit.Email()
			phone := gofakeit.Phone()

			_, err := tx.Exec(ctx, `
				INSERT INTO leads (id, practice_id, first_name, last_name, email, phone, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, now(), now())
				ON CONFLICT DO NOTHING
			`, uuid.New(), practiceID, gofakeit.FirstName(), gofakeit.LastName(), email, phone)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("leads seeded: %d/%d", end, count)
	}

	log.Println("leads seeded")
	return nil
}
