// The simulator drives the booking API with mixed read/write traffic from
// seeded data and reports per-operation outcome and latency figures.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careloop/practice-scheduling/internal/config"
	"github.com/careloop/practice-scheduling/internal/db"
)

type options struct {
	baseURL      string
	duration     time.Duration
	workers      int
	bookShare    float64
	confirmShare float64
	readShare    float64
	postgresDSN  string
}

func loadOptions() (options, error) {
	base, err := config.Load()
	if err != nil {
		return options{}, fmt.Errorf("load base config: %w", err)
	}

	opts := options{
		baseURL:      envOr("SIM_API_BASE_URL", "http://localhost:8080", func(s string) (string, error) { return s, nil }),
		duration:     envOr("SIM_DURATION", 30*time.Second, time.ParseDuration),
		workers:      envOr("SIM_WORKERS", 10, strconv.Atoi),
		bookShare:    envOr("SIM_BOOKING_RATIO", 0.5, parseFloat),
		confirmShare: envOr("SIM_CONFIRM_RATIO", 0.2, parseFloat),
		readShare:    envOr("SIM_READ_RATIO", 0.3, parseFloat),
		postgresDSN:  base.PostgresDSN,
	}

	if opts.workers <= 0 {
		return options{}, fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if opts.duration <= 0 {
		return options{}, fmt.Errorf("SIM_DURATION must be > 0")
	}

	total := opts.bookShare + opts.confirmShare + opts.readShare
	if total <= 0 {
		return options{}, fmt.Errorf("operation ratios sum to zero")
	}
	opts.bookShare /= total
	opts.confirmShare /= total
	opts.readShare /= total

	return opts, nil
}

func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := parse(raw)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, raw, err)
		return def
	}
	return v
}

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

type outcome int

const (
	outcomeOK outcome = iota
	outcomeConflict
	outcomeFailed
)

// opStats accumulates one operation's results across all workers.
type opStats struct {
	mu        sync.Mutex
	counts    [3]int64
	latencies []time.Duration
}

func (s *opStats) record(d time.Duration, o outcome) {
	s.mu.Lock()
	s.counts[o]++
	s.latencies = append(s.latencies, d)
	s.mu.Unlock()
}

type opSummary struct {
	total, ok, conflict, failed int64
	avg, p50, p95, max          time.Duration
}

func (s *opStats) summarize() opSummary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := opSummary{
		ok:       s.counts[outcomeOK],
		conflict: s.counts[outcomeConflict],
		failed:   s.counts[outcomeFailed],
	}
	sum.total = sum.ok + sum.conflict + sum.failed
	if len(s.latencies) == 0 {
		return sum
	}

	sorted := make([]time.Duration, len(s.latencies))
	copy(sorted, s.latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	sum.avg = total / time.Duration(len(sorted))
	sum.p50 = percentile(sorted, 50)
	sum.p95 = percentile(sorted, 95)
	sum.max = sorted[len(sorted)-1]
	return sum
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// simPool holds the ids the workers draw targets from. Appointments created
// during the run feed the confirm traffic.
type simPool struct {
	practices []uuid.UUID
	leads     map[uuid.UUID][]uuid.UUID

	mu    sync.RWMutex
	appts []uuid.UUID
}

func (p *simPool) addAppointment(id uuid.UUID) {
	p.mu.Lock()
	p.appts = append(p.appts, id)
	p.mu.Unlock()
}

func (p *simPool) randomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if len(p.appts) == 0 {
		return uuid.Nil, false
	}
	return p.appts[rng.Intn(len(p.appts))], true
}

func loadPool(ctx context.Context, pg *pgxpool.Pool) (*simPool, error) {
	pool := &simPool{leads: make(map[uuid.UUID][]uuid.UUID)}

	rows, err := pg.Query(ctx, `SELECT id FROM practices WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("load practices: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		pool.practices = append(pool.practices, id)
	}

	rows, err = pg.Query(ctx, `SELECT id, practice_id FROM leads`)
	if err != nil {
		return nil, fmt.Errorf("load leads: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, practiceID uuid.UUID
		if err := rows.Scan(&id, &practiceID); err != nil {
			return nil, err
		}
		pool.leads[practiceID] = append(pool.leads[practiceID], id)
	}

	if len(pool.practices) == 0 || len(pool.leads) == 0 {
		return nil, fmt.Errorf("no seeded practices or leads found (run seed first)")
	}
	return pool, nil
}

type simulator struct {
	opts   options
	pool   *simPool
	client *http.Client

	booking  opStats
	confirm  opStats
	dayGrid  opStats
	listAppt opStats
	overlaps opStats
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	opts, err := loadOptions()
	if err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	log.Printf("simulator: duration=%s workers=%d book=%.2f confirm=%.2f read=%.2f",
		opts.duration, opts.workers, opts.bookShare, opts.confirmShare, opts.readShare)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pg, err := db.ConnectPostgres(ctx, opts.postgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pg.Close()

	pool, err := loadPool(ctx, pg)
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}

	leadCount := 0
	for _, ids := range pool.leads {
		leadCount += len(ids)
	}
	log.Printf("loaded %d practices, %d leads", len(pool.practices), leadCount)

	sim := &simulator{
		opts:   opts,
		pool:   pool,
		client: &http.Client{Timeout: 10 * time.Second},
	}
	sim.run()
	sim.report(os.Stdout)
}

func (s *simulator) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.duration)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < s.opts.workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			s.worker(ctx, rand.New(rand.NewSource(time.Now().UnixNano()+seed)))
		}(int64(i))
	}
	wg.Wait()
	log.Println("simulation complete")
}

func (s *simulator) worker(ctx context.Context, rng *rand.Rand) {
	for ctx.Err() == nil {
		switch r := rng.Float64(); {
		case r < s.opts.bookShare:
			s.doBooking(ctx, rng)
		case r < s.opts.bookShare+s.opts.confirmShare:
			s.doConfirm(ctx, rng)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doDayGrid(ctx, rng)
			case 1:
				s.doListAppointments(ctx, rng)
			default:
				s.doOverlaps(ctx, rng)
			}
		}
	}
}

// randomPracticeLead picks a practice that has at least one lead.
func (s *simulator) randomPracticeLead(rng *rand.Rand) (uuid.UUID, uuid.UUID, bool) {
	for attempt := 0; attempt < 5; attempt++ {
		practiceID := s.pool.practices[rng.Intn(len(s.pool.practices))]
		leads := s.pool.leads[practiceID]
		if len(leads) == 0 {
			continue
		}
		return practiceID, leads[rng.Intn(len(leads))], true
	}
	return uuid.Nil, uuid.Nil, false
}

// randomSlotDate lands on a weekday one to three weeks out, so the seeded
// Monday-Friday blocks cover most booking attempts.
func randomSlotDate(rng *rand.Rand) string {
	d := time.Now().AddDate(0, 0, 7+rng.Intn(14))
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d.Format("2006-01-02")
}

func randomSlotStart(rng *rand.Rand) string {
	// Quarter-hour aligned starts between 09:00 and 16:30.
	minute := 9*60 + 15*rng.Intn(31)
	return fmt.Sprintf("%02d:%02d", minute/60, minute%60)
}

func (s *simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	practiceID, leadID, ok := s.randomPracticeLead(rng)
	if !ok {
		return
	}

	body, _ := json.Marshal(map[string]any{
		"lead_id":          leadID.String(),
		"date":             randomSlotDate(rng),
		"start_time":       randomSlotStart(rng),
		"duration_minutes": 30,
		"hold":             rng.Float64() < 0.5,
		"source":           "simulator",
	})

	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/practices/%s/appointments", s.opts.baseURL, practiceID), bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		s.booking.record(elapsed, outcomeFailed)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusCreated:
		var created struct {
			ID uuid.UUID `json:"id"`
		}
		if data, _ := io.ReadAll(resp.Body); len(data) > 0 {
			_ = json.Unmarshal(data, &created)
		}
		if created.ID != uuid.Nil {
			s.pool.addAppointment(created.ID)
		}
		s.booking.record(elapsed, outcomeOK)
	case http.StatusConflict:
		// Overlap or outside availability. Both are expected outcomes
		// under contention, not simulator errors.
		s.booking.record(elapsed, outcomeConflict)
	default:
		s.booking.record(elapsed, outcomeFailed)
	}
}

func (s *simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	apptID, ok := s.pool.randomAppointment(rng)
	if !ok {
		return
	}

	url := fmt.Sprintf("%s/appointments/%s/confirm", s.opts.baseURL, apptID)
	s.doPost(ctx, &s.confirm, url)
}

func (s *simulator) doPost(ctx context.Context, stats *opStats, url string) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		stats.record(elapsed, outcomeFailed)
		return
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		stats.record(elapsed, outcomeOK)
	case http.StatusConflict:
		stats.record(elapsed, outcomeConflict)
	default:
		stats.record(elapsed, outcomeFailed)
	}
}

func (s *simulator) doGet(ctx context.Context, stats *opStats, url string) {
	start := time.Now()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := s.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		stats.record(elapsed, outcomeFailed)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		stats.record(elapsed, outcomeOK)
	} else {
		stats.record(elapsed, outcomeFailed)
	}
}

func (s *simulator) doDayGrid(ctx context.Context, rng *rand.Rand) {
	practiceID := s.pool.practices[rng.Intn(len(s.pool.practices))]
	s.doGet(ctx, &s.dayGrid,
		fmt.Sprintf("%s/practices/%s/slots?date=%s", s.opts.baseURL, practiceID, randomSlotDate(rng)))
}

func (s *simulator) doListAppointments(ctx context.Context, rng *rand.Rand) {
	practiceID := s.pool.practices[rng.Intn(len(s.pool.practices))]
	s.doGet(ctx, &s.listAppt,
		fmt.Sprintf("%s/practices/%s/appointments", s.opts.baseURL, practiceID))
}

func (s *simulator) doOverlaps(ctx context.Context, rng *rand.Rand) {
	// Probe the same region the seed clusters practices in.
	lat := 39.0 + rng.Float64()*3.0
	lng := -77.0 + rng.Float64()*4.0
	radius := 5 + rng.Intn(20)
	s.doGet(ctx, &s.overlaps,
		fmt.Sprintf("%s/coverage/overlaps?lat=%.4f&lng=%.4f&radius_miles=%d", s.opts.baseURL, lat, lng, radius))
}

func (s *simulator) report(w io.Writer) {
	fmt.Fprintf(w, "\nsimulation report (%s, %d workers)\n\n", s.opts.duration, s.opts.workers)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "operation\ttotal\tok\tconflict\tfailed\tavg\tp50\tp95\tmax")
	for _, row := range []struct {
		name  string
		stats *opStats
	}{
		{"booking", &s.booking},
		{"confirm", &s.confirm},
		{"day grid", &s.dayGrid},
		{"list appointments", &s.listAppt},
		{"coverage overlaps", &s.overlaps},
	} {
		sum := row.stats.summarize()
		if sum.total == 0 {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
			row.name, sum.total, sum.ok, sum.conflict, sum.failed,
			sum.avg.Round(time.Millisecond), sum.p50.Round(time.Millisecond),
			sum.p95.Round(time.Millisecond), sum.max.Round(time.Millisecond))
	}
	tw.Flush()
}
