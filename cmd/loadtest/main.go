// Command loadtest drives simulated funnel visitors against a running
// collector. Each worker loops full visitor journeys: start a session, walk
// the steps entering and answering, then complete, abandon mid-funnel, or
// exit ineligible. Latency is recorded per request, outcomes per journey.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	BaseURL     string
	APIKey      string
	Concurrency int
	Duration    time.Duration
	Steps       int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64

	completed  atomic.Int64
	abandoned  atomic.Int64
	ineligible atomic.Int64

	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var stepNames = []string{
	"welcome",
	"eligibility",
	"contact-details",
	"preferences",
	"review",
	"confirmation",
}

var descriptors = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 Chrome/126.0 Safari/537.36",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 Version/17.5 Safari/605.1.15",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 Chrome/126.0 Mobile Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 17_5 like Mac OS X) AppleWebKit/605.1.15 Mobile/15E148 Safari/604.1",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8081", "base URL of the collector service")
	apiKey := flag.String("key", "", "write key for the collector API")
	concurrency := flag.Int("concurrency", 10, "number of concurrent visitors")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	steps := flag.Int("steps", 6, "number of funnel steps to walk")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		APIKey:      *apiKey,
		Concurrency: *concurrency,
		Duration:    *duration,
		Steps:       *steps,
	}
	if cfg.Steps > len(stepNames) {
		cfg.Steps = len(stepNames)
	}

	fmt.Println("=== Funnel Collector Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d visitors\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Steps:       %d\n", cfg.Steps)
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func runLoadTest(cfg Config) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	fmt.Print("Running")

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				runJourney(ctx, client, cfg, stats, rng)
			}
		}(w)
	}

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	wg.Wait()
	fmt.Println(" done!")
	fmt.Println()
	return stats
}

// runJourney simulates one visitor. Roughly 60% complete the funnel, 30%
// abandon at a random step, 10% are screened out as ineligible.
func runJourney(ctx context.Context, client *http.Client, cfg Config, stats *Stats, rng *rand.Rand) {
	sessionID := startSession(ctx, client, cfg, stats, rng)
	if sessionID == "" {
		return
	}

	outcome := rng.Float64()
	lastStep := cfg.Steps - 1
	switch {
	case outcome < 0.30:
		lastStep = rng.Intn(cfg.Steps)
	case outcome < 0.40:
		lastStep = 1 // screened out at eligibility
	}

	for step := 0; step <= lastStep; step++ {
		if ctx.Err() != nil {
			return
		}

		postEvent(ctx, client, cfg, stats, sessionID, map[string]any{
			"action":    "enter",
			"step":      step,
			"step_name": stepNames[step%len(stepNames)],
		})
		postEvent(ctx, client, cfg, stats, sessionID, map[string]any{
			"action":    "answer",
			"step":      step,
			"step_name": stepNames[step%len(stepNames)],
			"answers": map[string]any{
				fmt.Sprintf("field_%d", step): fmt.Sprintf("value-%d", rng.Intn(100)),
			},
		})
	}

	switch {
	case outcome < 0.30:
		// Abandoners leave via the unload beacon, not a clean exit.
		postBody(ctx, client, cfg, stats, "/api/v1/beacon", map[string]any{
			"session_id": sessionID,
		})
		stats.abandoned.Add(1)
	case outcome < 0.40:
		postEvent(ctx, client, cfg, stats, sessionID, map[string]any{
			"action":    "exit",
			"step":      lastStep,
			"step_name": stepNames[lastStep%len(stepNames)],
			"reason":    "ineligible",
		})
		stats.ineligible.Add(1)
	default:
		postEvent(ctx, client, cfg, stats, sessionID, map[string]any{
			"action":    "exit",
			"step":      lastStep,
			"step_name": stepNames[lastStep%len(stepNames)],
			"reason":    "completed",
		})
		stats.completed.Add(1)
	}
}

func startSession(ctx context.Context, client *http.Client, cfg Config, stats *Stats, rng *rand.Rand) string {
	body := map[string]any{
		"client_descriptor": descriptors[rng.Intn(len(descriptors))],
	}
	resp := postBody(ctx, client, cfg, stats, "/api/v1/sessions", body)
	if resp == nil {
		return ""
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(resp, &out); err != nil {
		return ""
	}
	return out.SessionID
}

func postEvent(ctx context.Context, client *http.Client, cfg Config, stats *Stats, sessionID string, body map[string]any) {
	postBody(ctx, client, cfg, stats, "/api/v1/sessions/"+sessionID+"/events", body)
}

func postBody(ctx context.Context, client *http.Client, cfg Config, stats *Stats, path string, body map[string]any) []byte {
	payload, err := json.Marshal(body)
	if err != nil {
		panic(fmt.Sprintf("encoding request body: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.APIKey != "" {
		req.Header.Set("X-API-Key", cfg.APIKey)
	}

	start := time.Now()
	resp, err := client.Do(req)
	duration := time.Since(start)

	if err != nil {
		stats.RecordRequest(duration, 0, err)
		return nil
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	stats.RecordRequest(duration, resp.StatusCode, nil)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil
	}
	return data
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

	fmt.Println()
	fmt.Println("=== Journeys ===")
	fmt.Printf("Completed:   %d\n", stats.completed.Load())
	fmt.Printf("Abandoned:   %d\n", stats.abandoned.Load())
	fmt.Printf("Ineligible:  %d\n", stats.ineligible.Load())

	stats.latenciesMu.Lock()
	latencies := make([]time.Duration, len(stats.latencies))
	copy(latencies, stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		sort.Slice(latencies, func(i, j int) bool {
			return latencies[i] < latencies[j]
		})

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", avg)
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P90:    %s\n", percentile(latencies, 90))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Printf("StdDev: %s\n", stddev)
	}

	fmt.Println()
	fmt.Println("=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	sort.Ints(codes)
	for _, code := range codes {
		count := stats.statusCodes[code].Load()
		fmt.Printf("  %d: %d\n", code, count)
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests completed. Is the collector running?")
		os.Exit(1)
	}
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
