package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type txKey struct{}

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// conn returns the transaction bound to ctx by WithinDayTx, or the pool.
func (r *PgRepository) conn(ctx context.Context) queryable {
	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return tx
	}
	return r.pool
}

// Helpers

func pgClock(c Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}

func clockFromPg(t pgtype.Time) Clock {
	return Clock(t.Microseconds / int64(time.Minute/time.Microsecond))
}

func dayLockKey(doctorID uuid.UUID, date Date) string {
	return doctorID.String() + "|" + date.String()
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.UserID, &d.Name, &d.Specialty, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, err
	}
	return &d, nil
}

const windowCols = `id, doctor_id, day_of_week, start_time, end_time, slot_duration, consultation_type, is_active, created_at, updated_at`

func scanWindow(row pgx.Row) (*AvailabilityWindow, error) {
	var (
		w          AvailabilityWindow
		day        int
		start, end pgtype.Time
	)
	err := row.Scan(
		&w.ID,
		&w.DoctorID,
		&day,
		&start,
		&end,
		&w.SlotDuration,
		&w.ConsultationType,
		&w.Active,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}

	w.DayOfWeek = time.Weekday(day)
	w.StartTime = clockFromPg(start)
	w.EndTime = clockFromPg(end)
	return &w, nil
}

const appointmentCols = `id, patient_id, doctor_id, appointment_date, start_time, end_time, consultation_type, status, reason, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		date       time.Time
		start, end pgtype.Time
	)
	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&date,
		&start,
		&end,
		&a.ConsultationType,
		&a.Status,
		&a.Reason,
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

	a.Date = DateOf(date)
	a.StartTime = clockFromPg(start)
	a.EndTime = clockFromPg(end)
	return &a, nil
}

func collectWindows(rows pgx.Rows) ([]AvailabilityWindow, error) {
	defer rows.Close()

	var result []AvailabilityWindow
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) FindPatientByUserID(ctx context.Context, userID uuid.UUID) (*Patient, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, name, created_at, updated_at
		FROM patients
		WHERE user_id = $1
	`, userID)
	return scanPatient(row)
}

func (r *PgRepository) FindDoctorByUserID(ctx context.Context, userID uuid.UUID) (*Doctor, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE user_id = $1
	`, userID)
	return scanDoctor(row)
}

func (r *PgRepository) GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT id, user_id, name, specialty, created_at, updated_at
		FROM doctors
		WHERE id = $1
	`, id)
	return scanDoctor(row)
}

func (r *PgRepository) WindowsFor(ctx context.Context, doctorID uuid.UUID, day time.Weekday) ([]AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE doctor_id = $1 AND day_of_week = $2
		ORDER BY start_time, end_time
	`, doctorID, int(day))
	if err != nil {
		return nil, fmt.Errorf("query availability windows: %w", err)
	}
	return collectWindows(rows)
}

func (r *PgRepository) CreateAvailability(ctx context.Context, w *AvailabilityWindow) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO availability_windows (id, doctor_id, day_of_week, start_time, end_time, slot_duration, consultation_type, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+windowCols+`
	`, w.ID, w.DoctorID, int(w.DayOfWeek), pgClock(w.StartTime), pgClock(w.EndTime), w.SlotDuration, w.ConsultationType, w.Active)

	created, err := scanWindow(row)
	if err != nil {
		return fmt.Errorf("insert availability window: %w", err)
	}
	*w = *created
	return nil
}

func (r *PgRepository) GetAvailabilityByID(ctx context.Context, id uuid.UUID) (*AvailabilityWindow, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE id = $1
	`, id)
	return scanWindow(row)
}

func (r *PgRepository) ListAvailabilityByDoctor(ctx context.Context, doctorID uuid.UUID) ([]AvailabilityWindow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+windowCols+`
		FROM availability_windows
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_time, end_time
	`, doctorID)
	if err != nil {
		return nil, fmt.Errorf("query availability windows: %w", err)
	}
	return collectWindows(rows)
}

func (r *PgRepository) SetAvailabilityActive(ctx context.Context, id uuid.UUID, active bool) (*AvailabilityWindow, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE availability_windows
		SET is_active = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+windowCols+`
	`, id, active)
	return scanWindow(row)
}

func (r *PgRepository) DeleteAvailability(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM availability_windows WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability window: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAvailabilityNotFound
	}
	return nil
}

func (r *PgRepository) ListActiveAppointmentsForDay(ctx context.Context, doctorID uuid.UUID, date Date) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND appointment_date = $2
		  AND status NOT IN ('CANCELLED_BY_PATIENT', 'CANCELLED_BY_DOCTOR')
		ORDER BY start_time
	`, doctorID, date.Time())
	if err != nil {
		return nil, fmt.Errorf("query active appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY appointment_date DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query patient appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		ORDER BY appointment_date DESC, start_time DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query doctor appointments: %w", err)
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, appointment_date, start_time, end_time, consultation_type, status, reason, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentCols+`
	`, a.ID, a.PatientID, a.DoctorID, a.Date.Time(), pgClock(a.StartTime), pgClock(a.EndTime),
		a.ConsultationType, a.Status, a.Reason, a.Notes)

	created, err := scanAppointment(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotAlreadyBooked
		}
		return fmt.Errorf("insert appointment: %w", err)
	}

	*a = *created
	return nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, notes *string) (*Appointment, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    notes = COALESCE($4, notes),
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols+`
	`, id, to, from, notes)

	return scanAppointment(row)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func (r *PgRepository) ListUnpublishedEvents(ctx context.Context, limit int) ([]EventLog, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, event_type, appointment_id, payload, created_at, published_at
		FROM event_logs
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query unpublished events: %w", err)
	}
	defer rows.Close()

	var result []EventLog
	for rows.Next() {
		var ev EventLog
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.AppointmentID, &ev.Payload, &ev.CreatedAt, &ev.PublishedAt); err != nil {
			return nil, err
		}
		result = append(result, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) MarkEventPublished(ctx context.Context, id int64, at time.Time) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE event_logs SET published_at = $2 WHERE id = $1 AND published_at IS NULL
	`, id, at)
	if err != nil {
		return fmt.Errorf("mark event published: %w", err)
	}
	return nil
}

// WithinDayTx serializes writers for one doctor/date with a transaction-scoped advisory lock.
// Nested calls reuse the outer transaction.
func (r *PgRepository) WithinDayTx(ctx context.Context, doctorID uuid.UUID, date Date, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, dayLockKey(doctorID, date)); err != nil {
		return fmt.Errorf("acquire day lock: %w", err)
	}

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrSlotAlreadyBooked
		}
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
