package main

import (
	"context"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logger"
)

const (
	doctorCount  = 100
	patientCount = 9000
	batchSize    = 500
)

var specialties = []string{
	"Dermatology",
	"Cardiology",
	"General Practice",
	"Orthopedics",
	"Endocrinology",
	"Neurology",
	"Pediatrics",
	"Psychiatry",
	"Ophthalmology",
	"ENT",
}

// shift is one recurring block of a doctor's working week.
type shift struct {
	start, end appointment.Clock
}

var shifts = []shift{
	{start: 9 * 60, end: 12 * 60},
	{start: 13 * 60, end: 17 * 60},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("prod")
		log.Fatal().Err(err).Msg("config load error")
	}
	log := logger.New(cfg.Env).With().Str("component", "seed").Logger()
	log.Info().Msg("seed starting")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, "seed")
	if err != nil {
		log.Fatal().Err(err).Msg("connect postgres")
	}
	defer pool.Close()

	if _, err := db.Migrate(context.Background(), pool); err != nil {
		log.Fatal().Err(err).Msg("migrate")
	}

	faker := gofakeit.New(uint64(time.Now().UnixNano()))

	doctorIDs, err := seedDoctors(context.Background(), pool, faker, log, doctorCount)
	if err != nil {
		log.Fatal().Err(err).Msg("seed doctors")
	}
	if err := seedAvailability(context.Background(), pool, faker, log, doctorIDs); err != nil {
		log.Fatal().Err(err).Msg("seed availability")
	}
	if err := seedPatients(context.Background(), pool, faker, log, patientCount); err != nil {
		log.Fatal().Err(err).Msg("seed patients")
	}

	log.Info().Msg("seed complete")
}

func seedDoctors(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log zerolog.Logger, count int) ([]uuid.UUID, error) {
	log.Info().Int("count", count).Msg("seeding doctors")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		spec := specialties[faker.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO doctors (id, user_id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, uuid.New(), "Dr. "+faker.Name(), spec)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Info().Msg("doctors seeded")
	return ids, nil
}

// seedAvailability gives every doctor a Monday to Friday schedule built from shifts.
func seedAvailability(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log zerolog.Logger, doctorIDs []uuid.UUID) error {
	log.Info().Int("doctors", len(doctorIDs)).Msg("seeding availability windows")

	durations := []int{15, 20, 30}
	types := []appointment.ConsultationType{
		appointment.ConsultationBoth,
		appointment.ConsultationInPerson,
		appointment.ConsultationRemote,
	}

	batch := &pgx.Batch{}
	for _, doctorID := range doctorIDs {
		duration := durations[faker.Number(0, len(durations)-1)]
		for day := time.Monday; day <= time.Friday; day++ {
			for _, sh := range shifts {
				batch.Queue(`
					INSERT INTO availability_windows
						(id, doctor_id, day_of_week, start_time, end_time, slot_duration, consultation_type, is_active)
					VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
				`, uuid.New(), doctorID, int16(day), timeOfDay(sh.start), timeOfDay(sh.end), duration,
					string(types[faker.Number(0, len(types)-1)]))
			}
		}
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}

	log.Info().Int("windows", batch.Len()).Msg("availability seeded")
	return nil
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, faker *gofakeit.Faker, log zerolog.Logger, count int) error {
	log.Info().Int("count", count).Msg("seeding patients")

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
			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, user_id, name, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, uuid.New(), uuid.New(), faker.Name())
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Info().Int("seeded", end).Int("total", count).Msg("patients progress")
	}

	log.Info().Msg("patients seeded")
	return nil
}

func timeOfDay(c appointment.Clock) pgtype.Time {
	return pgtype.Time{Microseconds: int64(c) * int64(time.Minute/time.Microsecond), Valid: true}
}
