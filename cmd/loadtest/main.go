// Command loadtest drives concurrent searches against a running search
// service and reports latency percentiles, zero-hit rate and status codes.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Queries     []string
	Filters     []url.Values
	// ReloadEvery triggers POST /api/v1/reload at this interval while the
	// load runs. Zero disables it.
	ReloadEvery time.Duration
}

// defaultQueries mixes plain terms, AND queries, phrases and exclusions.
var defaultQueries = []string{
	"dns timeout",
	"pod crashloop",
	"memory leak",
	"certificate expired",
	"disk full AND database",
	"connection pool exhausted",
	`"rolling update"`,
	"kafka consumer lag",
	"deadlock -postgres",
	"oom killed",
	"rate limit AND api",
	"replication lag",
	"cache stampede",
	"load balancer health check",
	"config drift NOT terraform",
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	zeroHits      atomic.Int64
	reloads       atomic.Int64
	reloadsBusy   atomic.Int64
	generations   sync.Map
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

func (s *Stats) RecordRequest(duration time.Duration, statusCode int, totalHits int, generation uint64, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
		if totalHits == 0 {
			s.zeroHits.Add(1)
		}
		s.generations.Store(generation, struct{}{})
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

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the search service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	queryFile := flag.String("queries", "", "file with one query per line (default: built-in set)")
	categories := flag.String("categories", "", "comma-separated categories to rotate as filters")
	reloadEvery := flag.Duration("reload-every", 0, "trigger a reload at this interval during the run (0 disables)")
	flag.Parse()

	queries := defaultQueries
	if *queryFile != "" {
		loaded, err := readQueries(*queryFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "reading queries: %v\n", err)
			os.Exit(1)
		}
		queries = loaded
	}
	filters := []url.Values{{}}
	for _, c := range strings.Split(*categories, ",") {
		if c = strings.TrimSpace(c); c != "" {
			filters = append(filters, url.Values{"category": {c}})
		}
	}

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		Queries:     queries,
		Filters:     filters,
		ReloadEvery: *reloadEvery,
	}

	fmt.Println("=== Incident Search Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Queries:     %d unique, %d filter set(s)\n", len(cfg.Queries), len(cfg.Filters))
	if cfg.ReloadEvery > 0 {
		fmt.Printf("Reloads:     every %s\n", cfg.ReloadEvery)
	}
	fmt.Println()

	stats := runLoadTest(cfg)
	printReport(stats, cfg.Duration)
}

func readQueries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" && !strings.HasPrefix(line, "#") {
			out = append(out, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s has no queries", path)
	}
	return out, nil
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

	fmt.Print("Running")
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		workerID := w
		g.Go(func() error {
			searchLoop(ctx, client, cfg, stats, workerID)
			return nil
		})
	}
	if cfg.ReloadEvery > 0 {
		g.Go(func() error {
			reloadLoop(ctx, client, cfg, stats)
			return nil
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	})
	_ = g.Wait()

	fmt.Println(" done!")
	fmt.Println()
	return stats
}

func searchLoop(ctx context.Context, client *http.Client, cfg Config, stats *Stats, queryIdx int) {
	for ctx.Err() == nil {
		params := url.Values{}
		for k, v := range cfg.Filters[queryIdx%len(cfg.Filters)] {
			params[k] = v
		}
		params.Set("q", cfg.Queries[queryIdx%len(cfg.Queries)])
		params.Set("limit", "10")
		queryIdx++

		start := time.Now()
		resp, err := client.Do(mustNewRequest(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/search?"+params.Encode()))
		duration := time.Since(start)
		if err != nil {
			if ctx.Err() == nil {
				stats.RecordRequest(duration, 0, 0, 0, err)
			}
			continue
		}
		var body struct {
			Generation uint64 `json:"generation"`
			TotalHits  int    `json:"total_hits"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		stats.RecordRequest(duration, resp.StatusCode, body.TotalHits, body.Generation, nil)
	}
}

// reloadLoop rebuilds the index periodically so the run measures search
// latency across generation swaps.
func reloadLoop(ctx context.Context, client *http.Client, cfg Config, stats *Stats) {
	ticker := time.NewTicker(cfg.ReloadEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		resp, err := client.Do(mustNewRequest(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/reload?reason=loadtest"))
		if err != nil {
			continue
		}
		resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			stats.reloads.Add(1)
		case http.StatusConflict:
			stats.reloadsBusy.Add(1)
		}
	}
}

func mustNewRequest(ctx context.Context, method, rawURL string) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

func printReport(stats *Stats, duration time.Duration) {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", errors)
	if success > 0 {
		fmt.Printf("Zero-hit rate:   %.2f%%\n", float64(stats.zeroHits.Load())/float64(success)*100)
	}

	generations := 0
	stats.generations.Range(func(_, _ any) bool { generations++; return true })
	fmt.Printf("Generations:     %d served", generations)
	if n := stats.reloads.Load() + stats.reloadsBusy.Load(); n > 0 {
		fmt.Printf(", %d reload(s) ok, %d rejected as busy", stats.reloads.Load(), stats.reloadsBusy.Load())
	}
	fmt.Println()

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Printf("Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Printf("Requests/sec:    %.2f\n", rps)
	}

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
		fmt.Println("WARNING: No requests completed. Is the service running?")
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
