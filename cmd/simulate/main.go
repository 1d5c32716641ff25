package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
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

	"github.com/hackgods/guidance-scheduling/internal/auth"
	"github.com/hackgods/guidance-scheduling/internal/config"
	"github.com/hackgods/guidance-scheduling/internal/db"
)

type SimConfig struct {
	APIBaseURL   string
	Duration     time.Duration
	Workers      int
	Students     int
	HotSlots     int
	BookingRatio float64
	AcceptRatio  float64
	DenyRatio    float64
	ReadRatio    float64
	PostgresDSN  string
	JWTSecret    string
}

type slot struct {
	Date string
	Time string
}

// DataPool holds the identities and slots the workers draw from.
type DataPool struct {
	StudentTokens  []string
	CounselorToken string
	Slots          []slot
	mu             sync.RWMutex
	appointments   []uuid.UUID // Thread-safe list of created appointment IDs
}

func (dp *DataPool) AddAppointment(id uuid.UUID) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.appointments = append(dp.appointments, id)
}

func (dp *DataPool) GetRandomAppointment(rng *rand.Rand) (uuid.UUID, bool) {
	dp.mu.RLock()
	defer dp.mu.RUnlock()
	if len(dp.appointments) == 0 {
		return uuid.Nil, false
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

func (om *OperationMetrics) Record(latency time.Duration, status int) {
	atomic.AddInt64(&om.Total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&om.Success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&om.Conflict, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

func (om *OperationMetrics) Stats() (avg, p50, p95, max time.Duration) {
	om.mu.Lock()
	defer om.mu.Unlock()

	if len(om.Latencies) == 0 {
		return 0, 0, 0, 0
	}

	latencies := append([]time.Duration{}, om.Latencies...)
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	n := len(latencies)
	return sum / time.Duration(n), latencies[n*50/100], latencies[min(n*95/100, n-1)], latencies[n-1]
}

type Metrics struct {
	Booking OperationMetrics
	Accept  OperationMetrics
	Deny    OperationMetrics
	Read    OperationMetrics
}

type Simulator struct {
	config  SimConfig
	pool    *DataPool
	client  *http.Client
	metrics Metrics
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("simulator starting")

	cfg := loadConfig()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	log.Printf("config: duration=%s workers=%d hot_slots=%d booking=%.2f accept=%.2f deny=%.2f read=%.2f",
		cfg.Duration, cfg.Workers, cfg.HotSlots, cfg.BookingRatio, cfg.AcceptRatio, cfg.DenyRatio, cfg.ReadRatio)

	sim := &Simulator{
		config: cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	dataPool, err := sim.loadDataPool(context.Background())
	if err != nil {
		log.Fatalf("load data pool: %v", err)
	}
	sim.pool = dataPool
	log.Printf("loaded: %d students, %d slots", len(dataPool.StudentTokens), len(dataPool.Slots))

	sim.Run()
	sim.PrintReport()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pgPool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pgPool.Close()

	if err := verifyInvariants(ctx, pgPool); err != nil {
		log.Fatalf("invariant check FAILED: %v", err)
	}
	log.Println("invariant check passed: one accepted appointment per slot, blocks match")
}

func loadConfig() SimConfig {
	baseCfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load base config: %v", err)
	}

	cfg := SimConfig{
		APIBaseURL:   getEnv("SIM_API_BASE_URL", "http://localhost:8080"),
		Duration:     getDuration("SIM_DURATION", 30*time.Second),
		Workers:      getInt("SIM_WORKERS", 10),
		Students:     getInt("SIM_STUDENTS", 200),
		HotSlots:     getInt("SIM_HOT_SLOTS", 20),
		BookingRatio: getFloat("SIM_BOOKING_RATIO", 0.45),
		AcceptRatio:  getFloat("SIM_ACCEPT_RATIO", 0.25),
		DenyRatio:    getFloat("SIM_DENY_RATIO", 0.05),
		ReadRatio:    getFloat("SIM_READ_RATIO", 0.25),
		PostgresDSN:  baseCfg.PostgresDSN,
		JWTSecret:    baseCfg.JWTSecret,
	}

	// Normalize ratios
	total := cfg.BookingRatio + cfg.AcceptRatio + cfg.DenyRatio + cfg.ReadRatio
	if total > 0 {
		cfg.BookingRatio /= total
		cfg.AcceptRatio /= total
		cfg.DenyRatio /= total
		cfg.ReadRatio /= total
	}

	return cfg
}

func validateConfig(cfg SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Students <= 0 || cfg.HotSlots <= 0 {
		return fmt.Errorf("SIM_STUDENTS and SIM_HOT_SLOTS must be > 0")
	}
	return nil
}

// loadDataPool issues tokens and picks a small set of bookable slots so that
// workers collide on them.
func (s *Simulator) loadDataPool(ctx context.Context) (*DataPool, error) {
	v := auth.NewVerifier(s.config.JWTSecret)
	dp := &DataPool{}

	counselor, err := v.Issue(auth.Identity{UserID: "sim-counselor", Role: auth.RoleCounselor}, time.Hour)
	if err != nil {
		return nil, err
	}
	dp.CounselorToken = counselor

	for i := 0; i < s.config.Students; i++ {
		tok, err := v.Issue(auth.Identity{UserID: uuid.NewString(), Role: auth.RoleStudent}, time.Hour)
		if err != nil {
			return nil, err
		}
		dp.StudentTokens = append(dp.StudentTokens, tok)
	}

	from := time.Now().AddDate(0, 0, 1).Format("2006-01-02")
	to := time.Now().AddDate(0, 0, 30).Format("2006-01-02")
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/availability?from=%s&to=%s", s.config.APIBaseURL, from, to), nil)
	req.Header.Set("Authorization", "Bearer "+counselor)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch availability: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch availability: status %d", resp.StatusCode)
	}

	var body struct {
		Days []struct {
			Date     string   `json:"date"`
			Slots    []string `json:"slots"`
			Blocked  []string `json:"blocked"`
			Bookable bool     `json:"bookable"`
		} `json:"days"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode availability: %w", err)
	}

	for _, d := range body.Days {
		if !d.Bookable {
			continue
		}
		for _, t := range d.Slots {
			if len(dp.Slots) >= s.config.HotSlots {
				break
			}
			dp.Slots = append(dp.Slots, slot{Date: d.Date, Time: t})
		}
	}
	if len(dp.Slots) == 0 {
		return nil, fmt.Errorf("no bookable slots in the next 30 days, run seed first")
	}
	return dp, nil
}

func (s *Simulator) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Duration)
	defer cancel()

	log.Printf("starting simulation for %s with %d workers", s.config.Duration, s.config.Workers)

	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			s.worker(ctx, workerID)
		}(i)
	}

	wg.Wait()
	log.Println("simulation complete")
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBooking(ctx, rng)
		case r < s.config.BookingRatio+s.config.AcceptRatio:
			s.doTransition(ctx, rng, "accept", &s.metrics.Accept)
		case r < s.config.BookingRatio+s.config.AcceptRatio+s.config.DenyRatio:
			s.doTransition(ctx, rng, "deny", &s.metrics.Deny)
		default:
			s.doRead(ctx, rng)
		}
	}
}

func (s *Simulator) doBooking(ctx context.Context, rng *rand.Rand) {
	sl := s.pool.Slots[rng.Intn(len(s.pool.Slots))]
	token := s.pool.StudentTokens[rng.Intn(len(s.pool.StudentTokens))]

	body, _ := json.Marshal(map[string]string{
		"reason": "simulated request",
		"mode":   "in_person",
		"date":   sl.Date,
		"time":   sl.Time,
	})

	status, respBody, latency := s.do(ctx, http.MethodPost, "/appointments", token, body)
	if status == http.StatusCreated {
		var appt struct {
			ID uuid.UUID `json:"id"`
		}
		if json.Unmarshal(respBody, &appt) == nil && appt.ID != uuid.Nil {
			s.pool.AddAppointment(appt.ID)
		}
	}
	s.metrics.Booking.Record(latency, status)
}

func (s *Simulator) doTransition(ctx context.Context, rng *rand.Rand, action string, om *OperationMetrics) {
	id, ok := s.pool.GetRandomAppointment(rng)
	if !ok {
		return
	}
	status, _, latency := s.do(ctx, http.MethodPost,
		fmt.Sprintf("/appointments/%s/%s", id, action), s.pool.CounselorToken, nil)
	om.Record(latency, status)
}

func (s *Simulator) doRead(ctx context.Context, rng *rand.Rand) {
	token := s.pool.StudentTokens[rng.Intn(len(s.pool.StudentTokens))]
	status, _, latency := s.do(ctx, http.MethodGet, "/appointments?limit=20", token, nil)
	s.metrics.Read.Record(latency, status)
}

func (s *Simulator) do(ctx context.Context, method, path, token string, body []byte) (int, []byte, time.Duration) {
	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, nil, 0
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return 0, nil, latency
	}
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	return resp.StatusCode, buf.Bytes(), latency
}

// verifyInvariants checks the database directly: no slot has two accepted
// appointments and slot blocks match accepted appointments one to one.
func verifyInvariants(ctx context.Context, pool *pgxpool.Pool) error {
	var dupes int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM (
			SELECT appt_date, appt_time
			FROM appointments
			WHERE status = 'accepted'
			GROUP BY appt_date, appt_time
			HAVING count(*) > 1
		) d
	`).Scan(&dupes); err != nil {
		return err
	}
	if dupes > 0 {
		return fmt.Errorf("%d slots have more than one accepted appointment", dupes)
	}

	var orphanBlocks, unblocked int
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM slot_blocks b
		LEFT JOIN appointments a ON a.id = b.appointment_id
		WHERE a.id IS NULL OR a.status <> 'accepted'
		   OR a.appt_date <> b.slot_date OR a.appt_time <> b.slot_time
	`).Scan(&orphanBlocks); err != nil {
		return err
	}
	if err := pool.QueryRow(ctx, `
		SELECT count(*) FROM appointments a
		LEFT JOIN slot_blocks b ON b.slot_date = a.appt_date AND b.slot_time = a.appt_time
		WHERE a.status = 'accepted' AND (b.appointment_id IS NULL OR b.appointment_id <> a.id)
	`).Scan(&unblocked); err != nil {
		return err
	}
	if orphanBlocks > 0 || unblocked > 0 {
		return fmt.Errorf("slot block mismatch: %d stale blocks, %d accepted without block", orphanBlocks, unblocked)
	}
	return nil
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Println()

	printOperationReport("Booking", &s.metrics.Booking)
	printOperationReport("Accept", &s.metrics.Accept)
	printOperationReport("Deny", &s.metrics.Deny)
	printOperationReport("Read", &s.metrics.Read)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	failed := atomic.LoadInt64(&om.Error)

	avg, p50, p95, max := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, float64(success)/float64(total)*100)
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, float64(conflict)/float64(total)*100)
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, float64(failed)/float64(total)*100)
	}
	fmt.Printf("  Latency: avg=%s p50=%s p95=%s max=%s\n",
		avg.Round(time.Millisecond), p50.Round(time.Millisecond),
		p95.Round(time.Millisecond), max.Round(time.Millisecond))
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
