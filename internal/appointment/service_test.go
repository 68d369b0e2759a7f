package appointment

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	redisclient "github.com/hackgods/doctor-appointment-scheduling/internal/redis"
)

// fixedNow is a Wednesday noon in the clinic clock.
var fixedNow = time.Date(2030, time.January, 9, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	repo    *MemoryRepository
	patient Patient
	other   Patient
	doctor  Doctor
	date    Date
}

func (f fixture) patientActor() Actor { return Actor{UserID: f.patient.UserID, Roles: []Role{RolePatient}} }
func (f fixture) otherActor() Actor   { return Actor{UserID: f.other.UserID, Roles: []Role{RolePatient}} }
func (f fixture) doctorActor() Actor  { return Actor{UserID: f.doctor.UserID, Roles: []Role{RoleDoctor}} }

// nextWeekday returns the first date strictly after from that falls on wd.
func nextWeekday(from Date, wd time.Weekday) Date {
	d := from.Time().AddDate(0, 0, 1)
	for d.Weekday() != wd {
		d = d.AddDate(0, 0, 1)
	}
	return DateOf(d)
}

func newFixture(t *testing.T, locker redisclient.Locker) fixture {
	t.Helper()

	repo := NewMemoryRepository()
	svc := NewService(repo, locker, config.Config{Location: time.UTC}, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }

	f := fixture{
		svc:     svc,
		repo:    repo,
		patient: repo.AddPatient(Patient{Name: "Ada Patient"}),
		other:   repo.AddPatient(Patient{Name: "Bo Other"}),
		doctor:  repo.AddDoctor(Doctor{Name: "Dr. Grey"}),
		date:    nextWeekday(DateOf(fixedNow), time.Monday),
	}

	w := window(time.Monday, "09:00", "17:00", 30, ConsultationBoth)
	w.DoctorID = f.doctor.ID
	require.NoError(t, repo.CreateAvailability(context.Background(), &w))

	return f
}

func (f fixture) book(t *testing.T, start string) *Appointment {
	t.Helper()
	appt, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), f.input(start))
	require.NoError(t, err)
	return appt
}

func (f fixture) input(start string) CreateAppointmentInput {
	c, err := ParseClock(start)
	if err != nil {
		panic(err)
	}
	return CreateAppointmentInput{
		DoctorID:         f.doctor.ID,
		Date:             f.date,
		StartTime:        c,
		ConsultationType: ConsultationInPerson,
	}
}

func TestAvailableSlotsMondayWindow(t *testing.T) {
	f := newFixture(t, nil)

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, "")
	require.NoError(t, err)

	require.Len(t, slots, 16)
	assert.Equal(t, "09:00", slots[0].StartTime.String())
	assert.Equal(t, "09:30", slots[0].EndTime.String())
	assert.Equal(t, "16:30", slots[15].StartTime.String())
	assert.Equal(t, "17:00", slots[15].EndTime.String())
	for _, s := range slots {
		assert.True(t, s.Available)
	}
}

func TestAvailableSlotsMarksBookedSlot(t *testing.T) {
	f := newFixture(t, nil)
	f.book(t, "09:00")

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, ConsultationInPerson)
	require.NoError(t, err)
	require.Len(t, slots, 16)

	assert.False(t, slots[0].Available, "09:00 is booked")
	assert.True(t, slots[1].Available, "09:30 is free")
}

func TestAvailableSlotsIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.book(t, "10:00")

	first, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, "")
	require.NoError(t, err)
	second, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, "")
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestAvailableSlotsOtherWeekdayIsEmpty(t *testing.T) {
	f := newFixture(t, nil)

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, nextWeekday(f.date, time.Tuesday), "")
	require.NoError(t, err)
	assert.Empty(t, slots)
	assert.NotNil(t, slots)
}

func TestAvailableSlotsUnknownDoctor(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.AvailableSlots(context.Background(), uuid.New(), f.date, "")
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAvailableSlotsRejectsBothAsFilter(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, ConsultationBoth)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestAppointmentCreatesPending(t *testing.T) {
	f := newFixture(t, nil)
	reason := "annual checkup"
	in := f.input("11:30")
	in.Reason = &reason

	appt, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, f.patient.ID, appt.PatientID)
	assert.Equal(t, NewClock(12, 0), appt.EndTime)
	require.NotNil(t, appt.Reason)
	assert.Equal(t, reason, *appt.Reason)

	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventAppointmentCreated, events[0].EventType)
	require.NotNil(t, events[0].AppointmentID)
	assert.Equal(t, appt.ID, *events[0].AppointmentID)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "11:30", payload["start_time"])
}

func TestRequestAppointmentNotInSchedule(t *testing.T) {
	f := newFixture(t, nil)
	in := f.input("10:00")
	in.Date = nextWeekday(f.date, time.Thursday)

	_, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrSlotNotInSchedule)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.RequestAppointment(context.Background(), f.patientActor(), f.input("16:45"))
	assert.ErrorIs(t, err, ErrSlotNotInSchedule, "16:45 + 30 overruns the window")
}

func TestRequestAppointmentConsultationTypeMustMatch(t *testing.T) {
	f := newFixture(t, nil)

	w := window(time.Tuesday, "09:00", "12:00", 30, ConsultationRemote)
	w.DoctorID = f.doctor.ID
	require.NoError(t, f.repo.CreateAvailability(context.Background(), &w))

	in := f.input("09:00")
	in.Date = nextWeekday(f.date, time.Tuesday)

	_, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrSlotNotInSchedule)

	in.ConsultationType = ConsultationRemote
	appt, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	require.NoError(t, err)
	assert.Equal(t, ConsultationRemote, appt.ConsultationType)
}

func TestRequestAppointmentOverlapIsRejected(t *testing.T) {
	f := newFixture(t, nil)

	w := window(time.Monday, "09:00", "12:00", 45, ConsultationBoth)
	w.DoctorID = f.doctor.ID
	require.NoError(t, f.repo.CreateAvailability(context.Background(), &w))

	f.book(t, "09:30")

	// windows sort by start then end, so the 45 minute window is tried first
	_, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), f.input("09:00"))
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)

	appt := f.book(t, "10:30")
	assert.Equal(t, NewClock(11, 15), appt.EndTime)
}

func TestRequestAppointmentBackToBack(t *testing.T) {
	f := newFixture(t, nil)

	f.book(t, "09:00")
	appt := f.book(t, "09:30")
	assert.Equal(t, NewClock(9, 30), appt.StartTime)
}

func TestRequestAppointmentInPast(t *testing.T) {
	f := newFixture(t, nil)

	in := f.input("09:00")
	in.Date = DateOf(fixedNow.AddDate(0, 0, -2))
	_, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrSlotInPast)
}

func TestRequestAppointmentValidation(t *testing.T) {
	f := newFixture(t, nil)

	in := f.input("09:00")
	in.ConsultationType = ConsultationBoth
	_, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrValidation)

	in = f.input("09:00")
	in.Date = Date{}
	_, err = f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrValidation)

	in = f.input("09:00")
	long := string(make([]byte, 501))
	in.Reason = &long
	_, err = f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrValidation)

	in = f.input("09:00")
	in.DoctorID = uuid.Nil
	_, err = f.svc.RequestAppointment(context.Background(), f.patientActor(), in)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequestAppointmentIdentity(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.RequestAppointment(context.Background(), Actor{}, f.input("09:00"))
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.RequestAppointment(context.Background(), f.doctorActor(), f.input("09:00"))
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestRequestAppointmentCancelledStartStaysTaken(t *testing.T) {
	f := newFixture(t, nil)

	appt := f.book(t, "09:00")
	_, err := f.svc.Cancel(context.Background(), f.patientActor(), appt.ID, "")
	require.NoError(t, err)

	// overlap check passes, the (doctor, date, start) uniqueness still holds
	_, err = f.svc.RequestAppointment(context.Background(), f.otherActor(), f.input("09:00"))
	assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"database lock only": nil,
		"redis and database": redisclient.NewRedisDayLocker(client, redisclient.LockOptions{
			TTL:   5 * time.Second,
			Wait:  5 * time.Second,
			Retry: 5 * time.Millisecond,
		}),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, locker)
			actors := []Actor{f.patientActor(), f.otherActor()}

			const rounds = 20
			for round := 0; round < rounds; round++ {
				start := Clock(int(NewClock(9, 0)) + round*15)
				if start.Add(30) > NewClock(17, 0) {
					break
				}

				var (
					wg      sync.WaitGroup
					results = make([]error, len(actors))
				)
				for i, actor := range actors {
					wg.Add(1)
					go func(i int, actor Actor) {
						defer wg.Done()
						in := f.input("09:00")
						in.StartTime = start
						_, results[i] = f.svc.RequestAppointment(context.Background(), actor, in)
					}(i, actor)
				}
				wg.Wait()

				if round%2 == 0 {
					// 15 minute steps: odd rounds overlap the previous booking and must both fail
					wins := 0
					for _, err := range results {
						if err == nil {
							wins++
							continue
						}
						assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
					}
					assert.Equal(t, 1, wins, "round %d", round)
				} else {
					for _, err := range results {
						assert.ErrorIs(t, err, ErrSlotAlreadyBooked, "round %d", round)
					}
				}
			}

			active, err := f.repo.ListActiveAppointmentsForDay(context.Background(), f.doctor.ID, f.date)
			require.NoError(t, err)
			for i := range active {
				for j := i + 1; j < len(active); j++ {
					assert.False(t, Overlaps(active[i].StartTime, active[i].EndTime, active[j].StartTime, active[j].EndTime),
						"%s overlaps %s", active[i].StartTime, active[j].StartTime)
				}
			}
		})
	}
}

func TestBookingLockTimeout(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	locker := redisclient.NewRedisDayLocker(client, redisclient.LockOptions{
		TTL:   time.Second,
		Wait:  30 * time.Millisecond,
		Retry: 10 * time.Millisecond,
	})
	f := newFixture(t, locker)

	require.NoError(t, mr.Set(redisclient.DayLockKey(f.doctor.ID, f.date.String()), "someone-else"))

	_, err := f.svc.RequestAppointment(context.Background(), f.patientActor(), f.input("09:00"))
	assert.ErrorIs(t, err, ErrSlotBeingBooked)
}

func TestCancelByOwningPatient(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "09:00")

	got, err := f.svc.Cancel(context.Background(), f.patientActor(), appt.ID, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByPatient, got.Status)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "Cancelled: feeling better", *got.Notes)

	slots, err := f.svc.AvailableSlots(context.Background(), f.doctor.ID, f.date, "")
	require.NoError(t, err)
	assert.True(t, slots[0].Available, "cancelled appointment no longer blocks the slot")

	events := f.repo.Events()
	require.Len(t, events, 2)
	assert.Equal(t, EventAppointmentCancelled, events[1].EventType)
}

func TestCancelByNonOwnerLeavesStatus(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "09:00")

	_, err := f.svc.Cancel(context.Background(), f.otherActor(), appt.ID, "not mine")
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, ErrNotOwner)

	stored, err := f.repo.GetAppointmentByID(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Len(t, f.repo.Events(), 1)
}

func TestCancelByDoctorAndAdmin(t *testing.T) {
	f := newFixture(t, nil)

	first := f.book(t, "09:00")
	got, err := f.svc.Cancel(context.Background(), f.doctorActor(), first.ID, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByDoctor, got.Status)
	require.NotNil(t, got.Notes)
	assert.Equal(t, "Cancelled by doctor", *got.Notes)

	second := f.book(t, "10:00")
	admin := Actor{UserID: uuid.New(), Roles: []Role{RoleAdmin}}
	got, err = f.svc.Cancel(context.Background(), admin, second.ID, "clinic closed")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelledByDoctor, got.Status)
}

func TestCancelMissingAppointment(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Cancel(context.Background(), f.patientActor(), uuid.New(), "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestLifecycleConfirmComplete(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "14:00")

	confirmed, err := f.svc.Confirm(context.Background(), f.doctorActor(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, confirmed.Status)

	completed, err := f.svc.Complete(context.Background(), f.doctorActor(), appt.ID, "prescribed rest")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	require.NotNil(t, completed.Notes)
	assert.Equal(t, "prescribed rest", *completed.Notes)

	var types []string
	for _, ev := range f.repo.Events() {
		types = append(types, ev.EventType)
	}
	assert.Equal(t, []string{EventAppointmentCreated, EventAppointmentConfirmed, EventAppointmentCompleted}, types)
}

func TestTransitionsOutOfTerminalStatesFail(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "09:00")

	_, err := f.svc.Cancel(context.Background(), f.patientActor(), appt.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Confirm(context.Background(), f.doctorActor(), appt.ID)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Cancel(context.Background(), f.patientActor(), appt.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = f.svc.Complete(context.Background(), f.doctorActor(), appt.ID, "")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestCompleteRequiresConfirmed(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "09:00")

	_, err := f.svc.Complete(context.Background(), f.doctorActor(), appt.ID, "")
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestConfirmRequiresOwningDoctor(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "09:00")

	_, err := f.svc.Confirm(context.Background(), f.patientActor(), appt.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	otherDoctor := f.repo.AddDoctor(Doctor{Name: "Dr. House"})
	_, err = f.svc.Confirm(context.Background(), Actor{UserID: otherDoctor.UserID, Roles: []Role{RoleDoctor}}, appt.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	admin := Actor{UserID: uuid.New(), Roles: []Role{RoleAdmin}}
	got, err := f.svc.Confirm(context.Background(), admin, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, got.Status)
}

func TestGetAppointmentVisibility(t *testing.T) {
	f := newFixture(t, nil)
	appt := f.book(t, "09:00")

	_, err := f.svc.GetAppointment(context.Background(), f.patientActor(), appt.ID)
	require.NoError(t, err)
	_, err = f.svc.GetAppointment(context.Background(), f.doctorActor(), appt.ID)
	require.NoError(t, err)

	_, err = f.svc.GetAppointment(context.Background(), f.otherActor(), appt.ID)
	assert.ErrorIs(t, err, ErrNotOwner)

	_, err = f.svc.GetAppointment(context.Background(), f.patientActor(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAppointments(t *testing.T) {
	f := newFixture(t, nil)
	f.book(t, "09:00")
	f.book(t, "10:00")

	mine, err := f.svc.ListPatientAppointments(context.Background(), f.patientActor(), 0, 0)
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, NewClock(10, 0), mine[0].StartTime, "newest first")

	theirs, err := f.svc.ListPatientAppointments(context.Background(), f.otherActor(), 10, 0)
	require.NoError(t, err)
	assert.Empty(t, theirs)

	doctors, err := f.svc.ListDoctorAppointments(context.Background(), f.doctorActor(), 1, 1)
	require.NoError(t, err)
	require.Len(t, doctors, 1)
	assert.Equal(t, NewClock(9, 0), doctors[0].StartTime)

	_, err = f.svc.ListDoctorAppointments(context.Background(), f.patientActor(), 10, 0)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

// readBarrier holds each caller after it has read the day's appointments until want
// callers have read, or until wait elapses.
type readBarrier struct {
	mu      sync.Mutex
	arrived int
	want    int
	all     chan struct{}
	wait    time.Duration
}

func newReadBarrier(want int, wait time.Duration) *readBarrier {
	return &readBarrier{want: want, all: make(chan struct{}), wait: wait}
}

func (b *readBarrier) arrive() {
	b.mu.Lock()
	b.arrived++
	if b.arrived == b.want {
		close(b.all)
	}
	b.mu.Unlock()

	select {
	case <-b.all:
	case <-time.After(b.wait):
	}
}

// stalledRepository widens the gap between the conflict read and the insert so that
// racing bookings interleave there unless the day lock keeps them apart.
type stalledRepository struct {
	Repository
	barrier  *readBarrier
	skipLock bool
}

func (r *stalledRepository) ListActiveAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date Date) ([]Appointment, error) {
	appts, err := r.Repository.ListActiveAppointmentsForDay(ctx, doctorID, date)
	r.barrier.arrive()
	return appts, err
}

func (r *stalledRepository) WithinDayTx(ctx context.Context, doctorID uuid.UUID, date Date, fn func(ctx context.Context) error) error {
	if r.skipLock {
		return fn(ctx)
	}
	return r.Repository.WithinDayTx(ctx, doctorID, date, fn)
}

// raceOverlappingStarts books 09:00 and 09:15 (both 30 minutes) concurrently, one per actor.
func raceOverlappingStarts(t *testing.T, repo Repository, locker redisclient.Locker, actors [2]Actor, input func(start string) CreateAppointmentInput) []error {
	t.Helper()

	svc := NewService(repo, locker, config.Config{Location: time.UTC}, zerolog.Nop())
	svc.now = func() time.Time { return fixedNow }

	starts := [2]string{"09:00", "09:15"}

	var wg sync.WaitGroup
	results := make([]error, len(actors))
	for i := range actors {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.RequestAppointment(context.Background(), actors[i], input(starts[i]))
		}(i)
	}
	wg.Wait()
	return results
}

func assertNoOverlaps(t *testing.T, repo Repository, doctorID uuid.UUID, date Date) []Appointment {
	t.Helper()

	active, err := repo.ListActiveAppointmentsForDay(context.Background(), doctorID, date)
	require.NoError(t, err)
	for i := range active {
		for j := i + 1; j < len(active); j++ {
			assert.False(t, Overlaps(active[i].StartTime, active[i].EndTime, active[j].StartTime, active[j].EndTime),
				"%s overlaps %s", active[i].StartTime, active[j].StartTime)
		}
	}
	return active
}

func TestConcurrentOverlappingStartsExactlyOneWins(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lockers := map[string]redisclient.Locker{
		"database lock only": nil,
		"redis and database": redisclient.NewRedisDayLocker(client, redisclient.LockOptions{
			TTL:   5 * time.Second,
			Wait:  5 * time.Second,
			Retry: 5 * time.Millisecond,
		}),
	}

	for name, locker := range lockers {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, nil)
			// the second reader can only arrive after the first has committed, so the
			// barrier releases the first on its timeout
			repo := &stalledRepository{Repository: f.repo, barrier: newReadBarrier(2, 50*time.Millisecond)}

			results := raceOverlappingStarts(t, repo, locker, [2]Actor{f.patientActor(), f.otherActor()}, f.input)

			wins := 0
			for _, err := range results {
				if err == nil {
					wins++
					continue
				}
				assert.ErrorIs(t, err, ErrSlotAlreadyBooked)
			}
			assert.Equal(t, 1, wins)
			assert.Len(t, assertNoOverlaps(t, f.repo, f.doctor.ID, f.date), 1)
		})
	}
}

func TestOverlappingStartsDoubleBookWithoutDayLock(t *testing.T) {
	f := newFixture(t, nil)
	// both readers see an empty day before either inserts
	repo := &stalledRepository{Repository: f.repo, barrier: newReadBarrier(2, 5*time.Second), skipLock: true}

	results := raceOverlappingStarts(t, repo, nil, [2]Actor{f.patientActor(), f.otherActor()}, f.input)

	for _, err := range results {
		assert.NoError(t, err)
	}
	active, err := f.repo.ListActiveAppointmentsForDay(context.Background(), f.doctor.ID, f.date)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.True(t, Overlaps(active[0].StartTime, active[0].EndTime, active[1].StartTime, active[1].EndTime),
		"uniqueness on start time alone does not stop overlapping starts")
}
