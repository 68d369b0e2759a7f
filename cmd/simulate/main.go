package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/doctor-appointment-scheduling/internal/api"
	"github.com/hackgods/doctor-appointment-scheduling/internal/appointment"
	"github.com/hackgods/doctor-appointment-scheduling/internal/config"
	"github.com/hackgods/doctor-appointment-scheduling/internal/db"
	"github.com/hackgods/doctor-appointment-scheduling/internal/logger"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	PatientLimit int
	DoctorLimit  int // few doctors means many workers racing for the same days
	DaysAhead    int
	PostgresDSN  string
	JWT          api.JWTConfig
	Location     *time.Location
}

// caller is a seeded patient or doctor plus the bearer token minted for them.
type caller struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Token  string
}

type booked struct {
	AppointmentID uuid.UUID
	PatientToken  string
	DoctorToken   string
}

type DataPool struct {
	Patients     []caller
	Doctors      []caller
	mu           sync.RWMutex
	appointments []booked
}

func (dp *DataPool) AddAppointment(b booked) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, b)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (booked, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return booked{}, false
	}
	return dp.appointments[rng.Intn(len(dp.appointments))], true
}

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, success bool, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	if success {
		atomic.AddInt64(&om.Success, 1)
	} else if conflict {
		atomic.AddInt64(&om.Conflict, 1)
	} else {
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, min, max, p50, p95 time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0, 0
	}

	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	avg = sum / time.Duration(len(latencies))
	min = latencies[0]
	max = latencies[len(latencies)-1]
	p50 = latencies[percentileIndex(len(latencies), 50)]
	p95 = latencies[percentileIndex(len(latencies), 95)]
	return avg, min, max, p50, p95
}

func percentileIndex(n, p int) int {
	idx := n * p / 100
	if idx >= n {
		idx = n - 1
	}
	return idx
}

type Metrics struct {
	Booking       OperationMetrics
	Confirm       OperationMetrics
	ReadByID      OperationMetrics
	ListByPatient OperationMetrics
	Slots         OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	log     zerolog.Logger
	metrics Metrics
}

func main() {
	cfg, base := loadConfig()
	log := logger.New(base.Env).With().Str("component", "simulate").Logger()

	if err := validateConfig(cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	log.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("simulation failed")
		os.Exit(1)
	}
	log.Info().Msg("no overlapping active appointments")
}

func run(cfg SimConfig, log zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN, "simulate")
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		return fmt.Errorf("load data pool: %w", err)
	}
	log.Info().Int("patients", len(dataPool.Patients)).Int("doctors", len(dataPool.Doctors)).Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log,
	}

	if err := sim.Run(context.Background()); err != nil {
		log.Error().Err(err).Msg("simulation aborted")
	}
	sim.PrintReport()

	overlaps, err := countOverlaps(context.Background(), pgPool)
	if err != nil {
		return fmt.Errorf("verify overlaps: %w", err)
	}
	if overlaps > 0 {
		return fmt.Errorf("%d overlapping active appointment pairs", overlaps)
	}
	return nil
}

func loadConfig() (SimConfig, config.Config) {
	baseCfg, err := config.Load()
	if err != nil {
		log := logger.New("prod")
		log.Fatal().Err(err).Msg("failed to load base config")
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.5),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.3),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		DoctorLimit:  getInt("SIM_DOCTOR_LIMIT", 5),
		DaysAhead:    getInt("SIM_DAYS_AHEAD", 14),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWT: api.JWTConfig{
			SigningKey: []byte(baseCfg.JWTSecret),
			Issuer:     baseCfg.JWTIssuer,
			Audience:   baseCfg.JWTAudience,
		},
		Location: baseCfg.Location,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, baseCfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required (set in .env or environment)")
	}
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.DoctorLimit <= 0 {
		return fmt.Errorf("SIM_DOCTOR_LIMIT must be > 0")
	}
	if cfg.DaysAhead <= 0 {
		return fmt.Errorf("SIM_DAYS_AHEAD must be > 0")
	}
	return nil
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	dataPool := &DataPool{}
	var err error

	dataPool.Patients, err = loadCallers(ctx, pool, cfg, `SELECT id, user_id FROM patients LIMIT $1`,
		cfg.PatientLimit, appointment.RolePatient)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	// Only doctors with an active schedule are useful booking targets.
	dataPool.Doctors, err = loadCallers(ctx, pool, cfg, `
		SELECT d.id, d.user_id FROM doctors d
		WHERE EXISTS (SELECT 1 FROM availability_windows w WHERE w.doctor_id = d.id AND w.is_active)
		ORDER BY d.created_at
		LIMIT $1
	`, cfg.DoctorLimit, appointment.RoleDoctor)
	if err != nil {
		return nil, fmt.Errorf("load doctors: %w", err)
	}

	if len(dataPool.Patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(dataPool.Doctors) == 0 {
		return nil, fmt.Errorf("no doctors with availability loaded")
	}

	return dataPool, nil
}

// loadCallers reads (id, user_id) rows and mints a token for each user.
func loadCallers(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig, query string, limit int, role appointment.Role) ([]caller, error) {
	rows, err := pool.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []caller
	for rows.Next() {
		var c caller
		if err := rows.Scan(&c.ID, &c.UserID); err != nil {
			return nil, err
		}
		c.Token, err = api.IssueToken(cfg.JWT, c.UserID, []appointment.Role{role}, cfg.Duration+time.Hour)
		if err != nil {
			return nil, fmt.Errorf("issue token: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.log.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(gctx, workerID)
			return nil
		})
	}

	err := g.Wait()
	s.log.Info().Msg("simulation complete")
	return err
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			if r < s.config.BookingRatio {
				s.doBooking(ctx, rng)
			} else if r < s.config.BookingRatio+s.config.ConfirmRatio {
				s.doConfirm(ctx, rng)
			} else {
				switch rng.Intn(3) {
				case 0:
					s.doReadByID(ctx, rng)
				case 1:
					s.doListByPatient(ctx, rng)
				case 2:
					s.doSlots(ctx, rng)
				}
			}
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) appointment.Date {
	today := time.Now().In(s.config.Location)
	return appointment.DateOf(today.AddDate(0, 0, 1+rng.Intn(s.config.DaysAhead)))
}

// doBooking reads the day's free slots and then races other workers for one of them.
func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	date := s.randomDate(rng)

	slots, err := s.fetchSlots(ctx, patient.Token, doctor.ID, date, appointment.ConsultationInPerson)
	if err != nil || len(slots) == 0 {
		return
	}
	free := slots[:0]
	for _, sl := range slots {
		if sl.Available {
			free = append(free, sl)
		}
	}
	if len(free) == 0 {
		return
	}
	// Prefer the earliest free slots so workers collide often.
	pick := free[rng.Intn(min(len(free), 3))]

	body, _ := json.Marshal(api.CreateAppointmentRequest{
		DoctorID:         doctor.ID.String(),
		Date:             date.String(),
		StartTime:        pick.StartTime.String(),
		ConsultationType: string(appointment.ConsultationInPerson),
	})

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPost, "/appointments", patient.Token, body)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusCreated:
			success = true
			var appt api.AppointmentResponse
			if json.NewDecoder(resp.Body).Decode(&appt) == nil && appt.ID != uuid.Nil {
				s.pool.AddAppointment(booked{
					AppointmentID: appt.ID,
					PatientToken:  patient.Token,
					DoctorToken:   doctor.Token,
				})
			}
		case http.StatusConflict, http.StatusUnprocessableEntity:
			conflict = true
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodPut, "/appointments/"+appt.AppointmentID.String()+"/confirm", appt.DoctorToken, nil)
	latency := time.Since(start)

	success, conflict := false, false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
		conflict = resp.StatusCode == http.StatusConflict
	}

	s.metrics.Confirm.Record(latency, success, conflict)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	appt, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/appointments/"+appt.AppointmentID.String(), appt.PatientToken, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ReadByID.Record(latency, success, false)
}

func (s *Simulator) doListByPatient(ctx context.Context, rng *rand.Rand) {
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	resp, err := s.do(ctx, http.MethodGet, "/patients/me/appointments?limit=20&offset=0", patient.Token, nil)
	latency := time.Since(start)

	success := false
	if err == nil {
		defer resp.Body.Close()
		success = resp.StatusCode == http.StatusOK
	}

	s.metrics.ListByPatient.Record(latency, success, false)
}

func (s *Simulator) doSlots(ctx context.Context, rng *rand.Rand) {
	doctor := s.pool.Doctors[rng.Intn(len(s.pool.Doctors))]
	patient := s.pool.Patients[rng.Intn(len(s.pool.Patients))]

	start := time.Now()
	_, err := s.fetchSlots(ctx, patient.Token, doctor.ID, s.randomDate(rng), "")
	s.metrics.Slots.Record(time.Since(start), err == nil, false)
}

func (s *Simulator) fetchSlots(ctx context.Context, token string, doctorID uuid.UUID, date appointment.Date, want appointment.ConsultationType) ([]appointment.Slot, error) {
	path := fmt.Sprintf("/doctors/%s/slots?date=%s", doctorID, date)
	if want != "" {
		path += "&consultation_type=" + string(want)
	}
	resp, err := s.do(ctx, http.MethodGet, path, token, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("slots: status %d", resp.StatusCode)
	}
	var out api.SlotsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return s.client.Do(req)
}

// countOverlaps returns the number of active appointment pairs that share time
// on the same doctor and day. Anything above zero is a double booking.
func countOverlaps(ctx context.Context, pool *pgxpool.Pool) (int, error) {
	var n int
	err := pool.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments a
		JOIN appointments b
		  ON a.doctor_id = b.doctor_id
		 AND a.appointment_date = b.appointment_date
		 AND a.id < b.id
		 AND a.start_time < b.end_time
		 AND b.start_time < a.end_time
		WHERE a.status IN ('PENDING', 'CONFIRMED')
		  AND b.status IN ('PENDING', 'CONFIRMED')
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Doctors: %d\n", len(s.pool.Doctors))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
	printOperationReport("List by Patient", &s.metrics.ListByPatient)
	printOperationReport("Available Slots", &s.metrics.Slots)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, min, max, p50, p95 := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s\n",
		avg.Round(time.Millisecond), min.Round(time.Millisecond), max.Round(time.Millisecond),
		p50.Round(time.Millisecond), p95.Round(time.Millisecond))
	fmt.Println()
}

// Helper functions

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func repeat(s string, n int) string {
	return strings.Repeat(s, n)
}
