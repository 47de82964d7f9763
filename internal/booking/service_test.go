package booking

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careloop/practice-scheduling/internal/observability/metrics"
	"github.com/careloop/practice-scheduling/internal/redisclient"
	"github.com/careloop/practice-scheduling/internal/timeslot"
)

// fakeRepo mirrors the transactional semantics of the Postgres repository in
// memory: coverage check first, then overlap against blocking appointments.
type fakeRepo struct {
	now time.Time

	leads map[uuid.UUID]Lead
	appts map[uuid.UUID]*Appointment

	// weekly availability, per weekday, in local minutes
	coverage map[time.Weekday][][2]int
	// dates fully closed by an exception
	closedDates map[timeslot.Date]bool
}

func newFakeRepo(now time.Time) *fakeRepo {
	return &fakeRepo{
		now:         now,
		leads:       make(map[uuid.UUID]Lead),
		appts:       make(map[uuid.UUID]*Appointment),
		coverage:    make(map[time.Weekday][][2]int),
		closedDates: make(map[timeslot.Date]bool),
	}
}

func (f *fakeRepo) addLead(l Lead) Lead {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	f.leads[l.ID] = l
	return l
}

func (f *fakeRepo) GetLeadByID(_ context.Context, id uuid.UUID) (*Lead, error) {
	l, ok := f.leads[id]
	if !ok {
		return nil, ErrLeadNotFound
	}
	return &l, nil
}

func sameContact(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}

func (f *fakeRepo) InsertLead(_ context.Context, l Lead) (*Lead, error) {
	for _, existing := range f.leads {
		if existing.PracticeID != l.PracticeID {
			continue
		}
		if sameContact(existing.Email, l.Email) || sameContact(existing.Phone, l.Phone) {
			return nil, &LeadConflictError{ExistingLeadID: existing.ID}
		}
	}
	l.ID = uuid.New()
	f.leads[l.ID] = l
	return &l, nil
}

func (f *fakeRepo) ListEligibleLeads(_ context.Context, practiceID uuid.UUID, now time.Time) ([]Lead, error) {
	var out []Lead
	for _, l := range f.leads {
		if l.PracticeID != practiceID {
			continue
		}
		if f.leadBlocking(l.ID, now) {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}

func (f *fakeRepo) leadBlocking(leadID uuid.UUID, now time.Time) bool {
	for _, a := range f.appts {
		if a.LeadID == leadID && a.Blocking(now) {
			return true
		}
	}
	return false
}

func (f *fakeRepo) LeadHasActiveAppointment(_ context.Context, leadID uuid.UUID, now time.Time) (bool, error) {
	return f.leadBlocking(leadID, now), nil
}

func (f *fakeRepo) CreateAppointment(_ context.Context, p CreateParams) (*Appointment, error) {
	covered := false
	for _, span := range f.coverage[p.DayOfWeek] {
		if p.StartMinute >= span[0] && p.EndMinute < span[1] {
			covered = true
			break
		}
	}
	if !covered || f.closedDates[p.LocalDate] {
		return nil, ErrOutsideAvailability
	}

	for _, a := range f.appts {
		if a.PracticeID != p.PracticeID || !a.Blocking(f.now) {
			continue
		}
		if p.StartTime.Before(a.EndTime) && a.StartTime.Before(p.EndTime) {
			return nil, ErrOverlap
		}
	}

	appt := &Appointment{
		ID:         uuid.New(),
		PracticeID: p.PracticeID,
		LeadID:     p.LeadID,
		StartTime:  p.StartTime,
		EndTime:    p.EndTime,
		Status:     p.Status,
		ExpiresAt:  p.ExpiresAt,
		Source:     p.Source,
		CreatedBy:  p.CreatedBy,
		Notes:      p.Notes,
		CreatedAt:  f.now,
		UpdatedAt:  f.now,
	}
	f.appts[appt.ID] = appt
	return appt, nil
}

func (f *fakeRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) ListAppointments(_ context.Context, practiceID uuid.UUID, from, to time.Time) ([]AppointmentWithLead, error) {
	var out []AppointmentWithLead
	for _, a := range f.appts {
		if a.PracticeID != practiceID {
			continue
		}
		if !a.StartTime.Before(to) || !from.Before(a.EndTime) {
			continue
		}
		l := f.leads[a.LeadID]
		out = append(out, AppointmentWithLead{
			Appointment:   *a,
			LeadFirstName: l.FirstName,
			LeadLastName:  l.LastName,
		})
	}
	return out, nil
}

func (f *fakeRepo) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) CancelAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := f.appts[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	a.Status = StatusCanceled
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) CancelExpiredHolds(_ context.Context, now time.Time) (int, error) {
	count := 0
	for _, a := range f.appts {
		if a.Status == StatusHold && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			a.Status = StatusCanceled
			count++
		}
	}
	return count, nil
}

// passLocker runs the callback inline.
type passLocker struct{ calls int }

func (l *passLocker) WithPracticeLock(ctx context.Context, _ uuid.UUID, fn func(ctx context.Context) error) error {
	l.calls++
	return fn(ctx)
}

// busyLocker always loses the lock race.
type busyLocker struct{}

func (busyLocker) WithPracticeLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

// fixedTimezone resolves every practice to one location.
type fixedTimezone struct{ loc *time.Location }

func (f fixedTimezone) Timezone(context.Context, uuid.UUID) (*time.Location, error) {
	return f.loc, nil
}

var testNY = func() *time.Location {
	loc, err := timeslot.LoadLocation("America/New_York")
	if err != nil {
		panic(err)
	}
	return loc
}()

type bookingFixture struct {
	svc  *Service
	repo *fakeRepo
	lock *passLocker
	now  time.Time
}

func newBookingFixture(t *testing.T) *bookingFixture {
	t.Helper()

	// A Monday morning, well inside standard time.
	now := time.Date(2024, 11, 4, 8, 0, 0, 0, testNY)
	repo := newFakeRepo(now)
	// Monday 09:00-17:00 open.
	repo.coverage[time.Monday] = [][2]int{{9 * 60, 17 * 60}}

	lock := &passLocker{}
	svc := NewService(repo, fixedTimezone{loc: testNY}, lock, 30*time.Minute, zap.NewNop(), metrics.NewSchedulingMetrics(prometheus.NewRegistry()))
	svc.now = func() time.Time { return now }

	return &bookingFixture{svc: svc, repo: repo, lock: lock, now: now}
}

func (fx *bookingFixture) request(lead Lead, startMinute int) BookingRequest {
	id := lead.ID
	return BookingRequest{
		PracticeID:      lead.PracticeID,
		LeadID:          &id,
		Date:            timeslot.Date{Year: 2024, Month: 11, Day: 4},
		StartMinute:     startMinute,
		DurationMinutes: 30,
		Source:          "staff",
	}
}

func TestBookCreatesScheduledAppointment(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	appt, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	require.NoError(t, err)

	assert.Equal(t, StatusScheduled, appt.Status)
	assert.Equal(t, lead.ID, appt.LeadID)
	assert.Nil(t, appt.ExpiresAt)
	assert.Equal(t, 1, fx.lock.calls)

	// 10:00 local on a November Monday is EST (UTC-5).
	assert.Equal(t, time.Date(2024, 11, 4, 10, 0, 0, 0, testNY), appt.StartTime)
	assert.Equal(t, 30*time.Minute, appt.EndTime.Sub(appt.StartTime))
}

func TestBookHoldSetsExpiry(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	req := fx.request(lead, 10*60)
	req.Hold = true

	appt, err := fx.svc.Book(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, StatusHold, appt.Status)
	require.NotNil(t, appt.ExpiresAt)
	assert.Equal(t, fx.now.Add(30*time.Minute), *appt.ExpiresAt)
}

func TestBookDistinguishesAvailabilityFromOverlap(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()
	first := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Ada"})
	second := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Grace"})

	// Outside the Monday 09:00-17:00 window entirely.
	_, err := fx.svc.Book(context.Background(), fx.request(first, 18*60))
	assert.ErrorIs(t, err, ErrOutsideAvailability)

	// Inside the window: succeeds.
	_, err = fx.svc.Book(context.Background(), fx.request(first, 10*60))
	require.NoError(t, err)

	// Same slot for another lead: the slot is taken, not unavailable.
	_, err = fx.svc.Book(context.Background(), fx.request(second, 10*60))
	assert.ErrorIs(t, err, ErrOverlap)
	assert.NotErrorIs(t, err, ErrOutsideAvailability)
}

func TestBookClosedDateIsOutsideAvailability(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})
	fx.repo.closedDates[timeslot.Date{Year: 2024, Month: 11, Day: 4}] = true

	_, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	assert.ErrorIs(t, err, ErrOutsideAvailability)
}

func TestBookNewLeadConflictRedirectsToExisting(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()
	email := "ada@example.com"
	existing := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Ada", Email: &email})

	req := BookingRequest{
		PracticeID:      practiceID,
		NewLead:         &NewLeadFields{FirstName: "Ada", Email: &email},
		Date:            timeslot.Date{Year: 2024, Month: 11, Day: 4},
		StartMinute:     10 * 60,
		DurationMinutes: 30,
	}

	appt, err := fx.svc.Book(context.Background(), req)
	require.NoError(t, err)

	// Booked against the pre-existing lead, no duplicate created.
	assert.Equal(t, existing.ID, appt.LeadID)
	assert.Len(t, fx.repo.leads, 1)
}

func TestBookRejectsLeadWithActiveAppointment(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	_, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	require.NoError(t, err)

	_, err = fx.svc.Book(context.Background(), fx.request(lead, 14*60))
	assert.ErrorIs(t, err, ErrLeadHasActiveBooking)
}

func TestBookLeadWithExpiredHoldCanRebook(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	expired := fx.now.Add(-time.Minute)
	fx.repo.appts[uuid.New()] = &Appointment{
		ID:         uuid.New(),
		PracticeID: lead.PracticeID,
		LeadID:     lead.ID,
		StartTime:  time.Date(2024, 11, 4, 10, 0, 0, 0, testNY),
		EndTime:    time.Date(2024, 11, 4, 10, 30, 0, 0, testNY),
		Status:     StatusHold,
		ExpiresAt:  &expired,
	}

	// The expired hold neither blocks the lead nor the slot.
	appt, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, appt.Status)
}

func TestBookLockContention(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	fx.svc.locker = busyLocker{}

	_, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	assert.ErrorIs(t, err, ErrPracticeBusy)
	assert.Empty(t, fx.repo.appts)
}

func TestBookValidation(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	cases := []struct {
		name   string
		mutate func(*BookingRequest)
	}{
		{"both lead and new lead", func(r *BookingRequest) {
			r.NewLead = &NewLeadFields{FirstName: "Dup"}
		}},
		{"neither lead nor new lead", func(r *BookingRequest) {
			r.LeadID = nil
		}},
		{"zero date", func(r *BookingRequest) {
			r.Date = timeslot.Date{}
		}},
		{"non-positive duration", func(r *BookingRequest) {
			r.DurationMinutes = 0
		}},
		{"runs past midnight", func(r *BookingRequest) {
			r.StartMinute = 23*60 + 45
			r.DurationMinutes = 30
		}},
		{"new lead without first name", func(r *BookingRequest) {
			r.LeadID = nil
			r.NewLead = &NewLeadFields{}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := fx.request(lead, 10*60)
			tc.mutate(&req)
			_, err := fx.svc.Book(context.Background(), req)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestBookUnknownLead(t *testing.T) {
	fx := newBookingFixture(t)

	req := fx.request(Lead{ID: uuid.New(), PracticeID: uuid.New()}, 10*60)
	_, err := fx.svc.Book(context.Background(), req)
	assert.ErrorIs(t, err, ErrLeadNotFound)
}

func TestConfirmPromotesHold(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	req := fx.request(lead, 10*60)
	req.Hold = true
	held, err := fx.svc.Book(context.Background(), req)
	require.NoError(t, err)

	confirmed, err := fx.svc.Confirm(context.Background(), held.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusScheduled, confirmed.Status)
	// The stale expiry stamp is ignored once the status leaves hold.
	assert.True(t, confirmed.Blocking(fx.now.Add(2*time.Hour)))
}

func TestConfirmExpiredHoldCancels(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	req := fx.request(lead, 10*60)
	req.Hold = true
	held, err := fx.svc.Book(context.Background(), req)
	require.NoError(t, err)

	// Clock moves past the hold TTL.
	later := fx.now.Add(time.Hour)
	fx.svc.now = func() time.Time { return later }

	_, err = fx.svc.Confirm(context.Background(), held.ID)
	assert.ErrorIs(t, err, ErrHoldExpired)

	appt, err := fx.repo.GetAppointmentByID(context.Background(), held.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, appt.Status)
}

func TestConfirmNonHold(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	appt, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	require.NoError(t, err)

	_, err = fx.svc.Confirm(context.Background(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestCancelFreesSlotForRebooking(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()
	first := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Ada"})
	second := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Grace"})

	appt, err := fx.svc.Book(context.Background(), fx.request(first, 10*60))
	require.NoError(t, err)

	canceled, err := fx.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)

	_, err = fx.svc.Book(context.Background(), fx.request(second, 10*60))
	assert.NoError(t, err)
}

func TestRecordOutcome(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	appt, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	require.NoError(t, err)

	updated, err := fx.svc.RecordOutcome(context.Background(), appt.ID, StatusNoShow)
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, updated.Status)

	// Outcome only applies once; the appointment left scheduled state.
	_, err = fx.svc.RecordOutcome(context.Background(), appt.ID, StatusShow)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)

	_, err = fx.svc.RecordOutcome(context.Background(), appt.ID, StatusCanceled)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRecordOutcomeErrorDistinctions(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	_, err := fx.svc.RecordOutcome(context.Background(), uuid.New(), StatusShow)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	appt, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	require.NoError(t, err)
	_, err = fx.svc.Cancel(context.Background(), appt.ID)
	require.NoError(t, err)

	// A canceled appointment is a bad transition, not a missing row.
	_, err = fx.svc.RecordOutcome(context.Background(), appt.ID, StatusShow)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestEligibleLeadsExcludesActivelyBooked(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()
	booked := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Ada"})
	free := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Grace"})
	fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Elsewhere"})

	_, err := fx.svc.Book(context.Background(), fx.request(booked, 10*60))
	require.NoError(t, err)

	leads, err := fx.svc.EligibleLeads(context.Background(), practiceID)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, free.ID, leads[0].ID)
}

func TestCreateLeadDuplicateReturnsExisting(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()
	phone := "+15551230000"
	existing := fx.repo.addLead(Lead{PracticeID: practiceID, FirstName: "Ada", Phone: &phone})

	lead, err := fx.svc.CreateLead(context.Background(), Lead{
		PracticeID: practiceID,
		FirstName:  "Ada B",
		Phone:      &phone,
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, lead.ID)
}

func TestBlockingRangesSkipsCanceledAndExpired(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()

	expired := fx.now.Add(-time.Minute)
	live := fx.now.Add(20 * time.Minute)
	mk := func(startHour int, status AppointmentStatus, expiresAt *time.Time) {
		id := uuid.New()
		fx.repo.appts[id] = &Appointment{
			ID:         id,
			PracticeID: practiceID,
			LeadID:     uuid.New(),
			StartTime:  time.Date(2024, 11, 4, startHour, 0, 0, 0, testNY),
			EndTime:    time.Date(2024, 11, 4, startHour, 30, 0, 0, testNY),
			Status:     status,
			ExpiresAt:  expiresAt,
		}
	}
	mk(9, StatusScheduled, nil)
	mk(10, StatusCanceled, nil)
	mk(11, StatusHold, &expired)
	mk(12, StatusHold, &live)

	from := time.Date(2024, 11, 4, 0, 0, 0, 0, testNY)
	to := from.AddDate(0, 0, 1)
	ranges, err := fx.svc.BlockingRanges(context.Background(), practiceID, from, to)
	require.NoError(t, err)

	require.Len(t, ranges, 2)
	hours := map[int]bool{}
	for _, r := range ranges {
		hours[r.Start.In(testNY).Hour()] = true
	}
	assert.True(t, hours[9])
	assert.True(t, hours[12])
}

func TestExpireHolds(t *testing.T) {
	fx := newBookingFixture(t)
	practiceID := uuid.New()

	expired := fx.now.Add(-time.Minute)
	live := fx.now.Add(20 * time.Minute)
	for i, exp := range []*time.Time{&expired, &expired, &live} {
		id := uuid.New()
		fx.repo.appts[id] = &Appointment{
			ID:         id,
			PracticeID: practiceID,
			LeadID:     uuid.New(),
			StartTime:  time.Date(2024, 11, 4, 9+i, 0, 0, 0, testNY),
			EndTime:    time.Date(2024, 11, 4, 9+i, 30, 0, 0, testNY),
			Status:     StatusHold,
			ExpiresAt:  exp,
		}
	}

	n, err := fx.svc.ExpireHolds(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = fx.svc.ExpireHolds(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestBookRepoErrorPassesThrough(t *testing.T) {
	fx := newBookingFixture(t)
	lead := fx.repo.addLead(Lead{PracticeID: uuid.New(), FirstName: "Ada"})

	boom := errors.New("connection reset")
	fx.svc.locker = failLocker{err: fmt.Errorf("create appointment: %w", boom)}

	_, err := fx.svc.Book(context.Background(), fx.request(lead, 10*60))
	assert.ErrorIs(t, err, boom)
}

type failLocker struct{ err error }

func (l failLocker) WithPracticeLock(context.Context, uuid.UUID, func(ctx context.Context) error) error {
	return l.err
}
