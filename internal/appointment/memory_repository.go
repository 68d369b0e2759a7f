package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memDayKey struct {
	doctorID uuid.UUID
	date     Date
}

type memTxKey struct{}

// MemoryRepository is an in-process Repository used by tests and the simulator dry run.
// Writes inside WithinDayTx are applied immediately; there is no rollback.
type MemoryRepository struct {
	mu           sync.Mutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]Doctor
	windows      map[uuid.UUID]AvailabilityWindow
	appointments map[uuid.UUID]Appointment
	events       []EventLog
	nextEventID  int64

	dayMu    sync.Mutex
	dayLocks map[memDayKey]*sync.Mutex

	now func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]Doctor),
		windows:      make(map[uuid.UUID]AvailabilityWindow),
		appointments: make(map[uuid.UUID]Appointment),
		dayLocks:     make(map[memDayKey]*sync.Mutex),
		now:          time.Now,
	}
}

// AddPatient stores p, assigning ids when empty.
func (r *MemoryRepository) AddPatient(p Patient) Patient {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.UserID == uuid.Nil {
		p.UserID = uuid.New()
	}
	p.CreatedAt, p.UpdatedAt = r.now(), r.now()
	r.patients[p.ID] = p
	return p
}

// AddDoctor stores d, assigning ids when empty.
func (r *MemoryRepository) AddDoctor(d Doctor) Doctor {
	r.mu.Lock()
	defer r.mu.Unlock()

	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.UserID == uuid.Nil {
		d.UserID = uuid.New()
	}
	d.CreatedAt, d.UpdatedAt = r.now(), r.now()
	r.doctors[d.ID] = d
	return d
}

// Events returns a copy of every logged event in insertion order.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func (r *MemoryRepository) FindPatientByUserID(_ context.Context, userID uuid.UUID) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, p := range r.patients {
		if p.UserID == userID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

func (r *MemoryRepository) FindDoctorByUserID(_ context.Context, userID uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, d := range r.doctors {
		if d.UserID == userID {
			d := d
			return &d, nil
		}
	}
	return nil, ErrDoctorNotFound
}

func (r *MemoryRepository) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &d, nil
}

func (r *MemoryRepository) WindowsFor(_ context.Context, doctorID uuid.UUID, day time.Weekday) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AvailabilityWindow
	for _, w := range r.windows {
		if w.DoctorID == doctorID && w.DayOfWeek == day {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (r *MemoryRepository) CreateAvailability(_ context.Context, w *AvailabilityWindow) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.CreatedAt, w.UpdatedAt = r.now(), r.now()
	r.windows[w.ID] = *w
	return nil
}

func (r *MemoryRepository) GetAvailabilityByID(_ context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	return &w, nil
}

func (r *MemoryRepository) ListAvailabilityByDoctor(_ context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []AvailabilityWindow
	for _, w := range r.windows {
		if w.DoctorID == doctorID {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out, nil
}

func (r *MemoryRepository) SetAvailabilityActive(_ context.Context, id uuid.UUID, active bool) (*AvailabilityWindow, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[id]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	w.Active = active
	w.UpdatedAt = r.now()
	r.windows[id] = w
	return &w, nil
}

func (r *MemoryRepository) DeleteAvailability(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.windows[id]; !ok {
		return ErrAvailabilityNotFound
	}
	delete(r.windows, id)
	return nil
}

func (r *MemoryRepository) ListActiveAppointmentsForDay(_ context.Context, doctorID uuid.UUID, date Date) ([]Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status.IsActive() {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime < out[j].StartTime })
	return out, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.listAppointments(func(a Appointment) bool { return a.PatientID == patientID }, limit, offset), nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.listAppointments(func(a Appointment) bool { return a.DoctorID == doctorID }, limit, offset), nil
}

func (r *MemoryRepository) listAppointments(keep func(Appointment) bool, limit, offset int) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []Appointment
	for _, a := range r.appointments {
		if keep(a) {
			all = append(all, a)
		}
	}
	// newest first, same as the Postgres ordering
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[j].Date.Before(all[i].Date)
		}
		return all[i].StartTime > all[j].StartTime
	})

	if offset >= len(all) {
		return nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.appointments {
		if existing.DoctorID == a.DoctorID && existing.Date == a.Date && existing.StartTime == a.StartTime {
			return ErrSlotAlreadyBooked
		}
	}

	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt, a.UpdatedAt = r.now(), r.now()
	r.appointments[a.ID] = *a
	return nil
}

func (r *MemoryRepository) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, notes *string) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if notes != nil {
		n := *notes
		a.Notes = &n
	}
	a.UpdatedAt = r.now()
	r.appointments[id] = a
	return &a, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEventID++
	ev.ID = r.nextEventID
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.now()
	}
	r.events = append(r.events, ev)
	return nil
}

func (r *MemoryRepository) ListUnpublishedEvents(_ context.Context, limit int) ([]EventLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []EventLog
	for _, ev := range r.events {
		if ev.PublishedAt != nil {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkEventPublished(_ context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.events {
		if r.events[i].ID == id && r.events[i].PublishedAt == nil {
			t := at
			r.events[i].PublishedAt = &t
		}
	}
	return nil
}

func (r *MemoryRepository) WithinDayTx(ctx context.Context, doctorID uuid.UUID, date Date, fn func(ctx context.Context) error) error {
	key := memDayKey{doctorID: doctorID, date: date}
	if held, ok := ctx.Value(memTxKey{}).(memDayKey); ok && held == key {
		return fn(ctx)
	}

	r.dayMu.Lock()
	l, ok := r.dayLocks[key]
	if !ok {
		l = &sync.Mutex{}
		r.dayLocks[key] = l
	}
	r.dayMu.Unlock()

	l.Lock()
	defer l.Unlock()

	return fn(context.WithValue(ctx, memTxKey{}, key))
}

func sortWindows(ws []AvailabilityWindow) {
	sort.Slice(ws, func(i, j int) bool {
		if ws[i].DayOfWeek != ws[j].DayOfWeek {
			return ws[i].DayOfWeek < ws[j].DayOfWeek
		}
		if ws[i].StartTime != ws[j].StartTime {
			return ws[i].StartTime < ws[j].StartTime
		}
		return ws[i].EndTime < ws[j].EndTime
	})
}
