package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/db"
	"github.com/hackgods/clinic-scheduling/internal/logging"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	BookingRatio float64
	ConfirmRatio float64
	ReadRatio    float64
	PatientLimit int
	SlotCount    int
	Pool         db.PoolConfig
	Location     *time.Location
}

type slot struct {
	PractitionerID int64
	At             time.Time
}

type DataPool struct {
	Patients     []int64
	Services     []int64
	Slots        []slot
	mu           sync.RWMutex
	appointments []int64
}

func (dp *DataPool) AddAppointment(id int64) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) RandomAppointment(rng *rand.Rand) (int64, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return 0, false
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

func (om *OperationMetrics) Record(latency time.Duration, success, conflict bool) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case success:
		atomic.AddInt64(&om.Success, 1)
	case conflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
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
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

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
	Booking  OperationMetrics
	Confirm  OperationMetrics
	ReadByID OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
	logger  zerolog.Logger
}

func main() {
	cfg, logger := loadConfig()
	if err := validateConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	logger.Info().
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Int("slots", cfg.SlotCount).
		Float64("booking", cfg.BookingRatio).
		Float64("confirm", cfg.ConfirmRatio).
		Float64("read", cfg.ReadRatio).
		Msg("simulator starting")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.Pool)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer pgPool.Close()

	dataPool, err := loadDataPool(ctx, pgPool, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("load data pool")
	}

	logger.Info().
		Int("patients", len(dataPool.Patients)).
		Int("services", len(dataPool.Services)).
		Int("slots", len(dataPool.Slots)).
		Msg("data pool loaded")

	sim := &Simulator{
		config: cfg,
		pool:   dataPool,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}

	sim.Run()
	sim.PrintReport()

	checkCtx, cancelCheck := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCheck()
	doubles, err := countDoubleBookedSlots(checkCtx, pgPool)
	if err != nil {
		logger.Fatal().Err(err).Msg("exclusivity check")
	}
	fmt.Printf("Double-booked slots: %d\n", doubles)
	if doubles > 0 {
		os.Exit(1)
	}
}

func loadConfig() (SimConfig, zerolog.Logger) {
	baseCfg, err := config.Load()
	if err != nil {
		logging.Bootstrap(os.Stderr).Fatal().Err(err).Msg("failed to load base config")
	}
	logger := logging.New(baseCfg.Env, baseCfg.LogLevel).With().Str("component", "simulate").Logger()

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.6),
		ConfirmRatio: getFloat("SIM_CONFIRM_RATIO", 0.2),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.2),
		PatientLimit: getInt("SIM_PATIENT_LIMIT", 4000),
		SlotCount:    getInt("SIM_SLOT_COUNT", 40),
		Pool:         baseCfg.PoolConfig(),
		Location:     baseCfg.Location,
	}

	total := cfg.BookingRatio + cfg.ConfirmRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.ConfirmRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg, logger
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.SlotCount <= 0 {
		return fmt.Errorf("SIM_SLOT_COUNT must be > 0")
	}
	return nil
}

func loadIDs(ctx context.Context, pool *pgxpool.Pool, query string, args ...any) ([]int64, error) {
	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func loadDataPool(ctx context.Context, pool *pgxpool.Pool, cfg SimConfig) (*DataPool, error) {
	patients, err := loadIDs(ctx, pool, `SELECT id FROM pacientes WHERE NOT temporal LIMIT $1`, cfg.PatientLimit)
	if err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}
	practitioners, err := loadIDs(ctx, pool, `SELECT id FROM empleados WHERE activo ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load practitioners: %w", err)
	}
	services, err := loadIDs(ctx, pool, `SELECT id FROM servicios WHERE NOT es_tratamiento ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load services: %w", err)
	}

	if len(patients) == 0 {
		return nil, fmt.Errorf("no patients loaded")
	}
	if len(practitioners) == 0 {
		return nil, fmt.Errorf("no practitioners loaded")
	}
	if len(services) == 0 {
		return nil, fmt.Errorf("no single-visit services loaded")
	}

	return &DataPool{
		Patients: patients,
		Services: services,
		Slots:    buildSlots(practitioners, cfg.SlotCount, time.Now().In(cfg.Location)),
	}, nil
}

// buildSlots spreads count half-hour slots over the working hours of the
// coming days, round-robin across practitioners.
func buildSlots(practitioners []int64, count int, now time.Time) []slot {
	day := time.Date(now.Year(), now.Month(), now.Day()+1, 9, 0, 0, 0, now.Location())
	at := day
	slots := make([]slot, 0, count)
	for len(slots) < count {
		for _, p := range practitioners {
			if len(slots) == count {
				break
			}
			slots = append(slots, slot{PractitionerID: p, At: at})
		}
		at = at.Add(30 * time.Minute)
		if at.Hour() >= 17 {
			day = day.AddDate(0, 0, 1)
			at = day
		}
	}
	return slots
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	s.logger.Info().Dur("duration", s.config.Duration).Int("workers", s.config.Workers).Msg("starting simulation")

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	s.logger.Info().Msg("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for {
		select {
		case <-ctx.Done():
			return
		default:
			r := rng.Float64()
			switch {
			case r < s.config.BookingRatio:
				s.doBooking(ctx, rng)
			case r < s.config.BookingRatio+s.config.ConfirmRatio:
				s.doConfirm(ctx, rng)
			default:
				s.doReadByID(ctx, rng)
			}
		}
	}
}

func (s *Simulator) send(ctx context.Context, method, path string, body any) (*http.Response, time.Duration, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	return resp, time.Since(start), err
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	patientID := s.pool.Patients[rng.Intn(len(s.pool.Patients))]
	serviceID := s.pool.Services[rng.Intn(len(s.pool.Services))]

	resp, latency, err := s.send(ctx, http.MethodPost, "/citas/nueva", map[string]any{
		"paciente_id":   patientID,
		"servicio_id":   serviceID,
		"odontologo_id": sl.PractitionerID,
		"fecha_hora":    sl.At.Format(time.RFC3339),
	})
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Booking.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()

	success := resp.StatusCode == http.StatusCreated
	conflict := resp.StatusCode == http.StatusConflict
	if success {
		var booked struct {
			AppointmentID *int64 `json:"cita_id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&booked); err == nil && booked.AppointmentID != nil {
			s.pool.AddAppointment(*booked.AppointmentID)
		}
	}

	s.metrics.Booking.Record(latency, success, conflict)
}

func (s *Simulator) doConfirm(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	resp, latency, err := s.send(ctx, http.MethodPut, "/citas/"+strconv.FormatInt(id, 10)+"/estado",
		map[string]string{"estado": "Confirmada"})
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.Confirm.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()

	// A repeated confirmation is rejected as a no-op; count it with conflicts.
	s.metrics.Confirm.Record(latency, resp.StatusCode == http.StatusOK,
		resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusBadRequest)
}

func (s *Simulator) doReadByID(ctx context.Context, rng *rand.Rand) {
	id, ok := s.pool.RandomAppointment(rng)
	if !ok {
		return
	}

	resp, latency, err := s.send(ctx, http.MethodGet, "/citas/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		if ctx.Err() == nil {
			s.metrics.ReadByID.Record(latency, false, false)
		}
		return
	}
	defer resp.Body.Close()

	s.metrics.ReadByID.Record(latency, resp.StatusCode == http.StatusOK, false)
}

func countDoubleBookedSlots(ctx context.Context, pool *pgxpool.Pool) (int64, error) {
	var n int64
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT odontologo_id, fecha_consulta
			FROM citas
			WHERE estado IN ('Pendiente','Confirmada') AND NOT archivado
			GROUP BY odontologo_id, fecha_consulta
			HAVING COUNT(*) > 1
		) d
	`).Scan(&n)
	return n, err
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slots: %d\n", len(s.pool.Slots))
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Confirm", &s.metrics.Confirm)
	printOperationReport("Read by ID", &s.metrics.ReadByID)
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
