package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// NoteRequest is the create-note payload
type NoteRequest struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ImportRequest is the import payload
type ImportRequest struct {
	Notes []NoteRequest `json:"notes"`
}

// TestStats contains aggregated test statistics
type TestStats struct {
	mu            sync.Mutex
	Total         int
	Successful    int
	Failed        int
	ResponseTimes []time.Duration
	ErrorCounts   map[string]int
	ScenarioStats map[string]int
}

func (s *TestStats) record(scenario string, elapsed time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ScenarioStats[scenario]++
	s.ResponseTimes = append(s.ResponseTimes, elapsed)
	if err != nil {
		s.Failed++
		s.ErrorCounts[err.Error()]++
		return
	}
	s.Successful++
}

func main() {
	concurrency := flag.Int("c", 5, "Number of concurrent workers")
	totalRequests := flag.Int("n", 100, "Total number of requests to make")
	tenantsFlag := flag.String("t", "tenant-1,tenant-2,tenant-3", "Comma-separated tenants to spread load across")
	baseURL := flag.String("url", "http://localhost:8080", "Base URL for the API")
	delayMs := flag.Int("delay", 50, "Delay between requests in milliseconds")
	importSize := flag.Int("import", 150, "Notes per import request; 0 disables imports")
	flag.Parse()

	tenants := strings.Split(*tenantsFlag, ",")
	fmt.Printf("Load testing %s across %d tenants: %v\n", *baseURL, len(tenants), tenants)
	fmt.Printf("Concurrency: %d, requests: %d, delay: %d ms, import size: %d\n", *concurrency, *totalRequests, *delayMs, *importSize)

	stats := &TestStats{
		Total:         *totalRequests,
		ErrorCounts:   make(map[string]int),
		ScenarioStats: make(map[string]int),
	}
	client := &http.Client{Timeout: 30 * time.Second}

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(*concurrency)

	start := time.Now()
	for i := range *totalRequests {
		g.Go(func() error {
			if *delayMs > 0 {
				time.Sleep(time.Duration(*delayMs) * time.Millisecond)
			}
			tenant := tenants[rand.IntN(len(tenants))]
			scenario, elapsed, err := runScenario(ctx, client, *baseURL, tenant, i, *importSize)
			stats.record(scenario, elapsed, err)
			return nil
		})
	}
	_ = g.Wait()

	printResults(stats, time.Since(start))
}

// runScenario creates a note and then reads, renames or archives it; every tenth request imports instead
func runScenario(ctx context.Context, client *http.Client, baseURL, tenant string, n, importSize int) (string, time.Duration, error) {
	notesURL := fmt.Sprintf("%s/api/v1/tenants/%s/notes", baseURL, tenant)
	start := time.Now()

	if importSize > 0 && n%10 == 9 {
		items := make([]NoteRequest, importSize)
		for i := range items {
			items[i] = NoteRequest{Title: fmt.Sprintf("import %d-%d", n, i)}
		}
		_, err := send(ctx, client, http.MethodPost, notesURL+"/import", ImportRequest{Notes: items}, http.StatusCreated)
		return "import", time.Since(start), err
	}

	var created struct {
		ID string `json:"id"`
	}
	body, err := send(ctx, client, http.MethodPost, notesURL, NoteRequest{Title: fmt.Sprintf("note %d", n), Body: "load test"}, http.StatusCreated)
	if err != nil {
		return "create", time.Since(start), err
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "create", time.Since(start), err
	}

	noteURL := notesURL + "/" + created.ID
	switch rand.IntN(3) {
	case 0:
		_, err = send(ctx, client, http.MethodGet, noteURL, nil, http.StatusOK)
		return "create+get", time.Since(start), err
	case 1:
		_, err = send(ctx, client, http.MethodPatch, noteURL, NoteRequest{Title: fmt.Sprintf("renamed %d", n)}, http.StatusOK)
		return "create+rename", time.Since(start), err
	default:
		_, err = send(ctx, client, http.MethodPost, noteURL+"/archive", nil, http.StatusOK)
		return "create+archive", time.Since(start), err
	}
}

func send(ctx context.Context, client *http.Client, method, url string, payload any, want int) ([]byte, error) {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	if resp.StatusCode != want {
		return nil, fmt.Errorf("HTTP status code %d", resp.StatusCode)
	}
	return out.Bytes(), nil
}

func printResults(stats *TestStats, elapsed time.Duration) {
	times := slices.Clone(stats.ResponseTimes)
	slices.Sort(times)

	percentile := func(p int) time.Duration {
		if len(times) == 0 {
			return 0
		}
		return times[len(times)*p/100]
	}

	var sum time.Duration
	for _, d := range times {
		sum += d
	}
	var avg time.Duration
	if len(times) > 0 {
		avg = sum / time.Duration(len(times))
	}

	fmt.Println("\n================= TEST RESULTS =================")
	fmt.Printf("Total Requests:      %d\n", stats.Total)
	fmt.Printf("Successful Requests: %d (%.1f%%)\n", stats.Successful, float64(stats.Successful)/float64(max(stats.Total, 1))*100)
	fmt.Printf("Failed Requests:     %d\n", stats.Failed)
	fmt.Printf("Total Test Time:     %.2f seconds\n", elapsed.Seconds())
	fmt.Printf("Throughput:          %.2f scenarios/s\n", float64(stats.Successful)/elapsed.Seconds())

	fmt.Println("\n----------------- RESPONSE TIMES -----------------")
	fmt.Printf("Average: %v  P50: %v  P90: %v  P99: %v\n", avg, percentile(50), percentile(90), percentile(99))

	fmt.Println("\n----------------- SCENARIOS -----------------")
	for scenario, count := range stats.ScenarioStats {
		fmt.Printf("%-16s %d\n", scenario, count)
	}

	if len(stats.ErrorCounts) > 0 {
		fmt.Println("\n----------------- ERRORS -----------------")
		for msg, count := range stats.ErrorCounts {
			fmt.Printf("%-40s %d\n", msg, count)
		}
	}
}
