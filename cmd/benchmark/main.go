package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type options struct {
	targetURL   string
	orgSlug     string
	concurrency int
	duration    time.Duration
	keys        int
	amount      string
	output      string
}

// counters tracks responses by outcome. 200 is an idempotent replay, 409 an
// in-flight or conflicting request.
type counters struct {
	total     atomic.Uint64
	created   atomic.Uint64
	replayed  atomic.Uint64
	conflicts atomic.Uint64
	other     atomic.Uint64
}

func main() {
	opts := &options{}
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Fire duplicate donation requests that share idempotency keys",
		Long: `Workers draw idempotency keys from a small pool so that many requests
race for the same payment attempt. A correct server answers each key with
exactly one 201 and otherwise 200 or 409.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.targetURL, "url", "http://localhost:8080", "API base URL")
	f.StringVar(&opts.orgSlug, "org", "demo-org-001", "Organization slug receiving donations")
	f.IntVarP(&opts.concurrency, "workers", "w", 10, "Number of concurrent workers")
	f.DurationVarP(&opts.duration, "duration", "d", 30*time.Second, "Test duration")
	f.IntVarP(&opts.keys, "keys", "k", 50, "Size of the idempotency key pool")
	f.StringVar(&opts.amount, "amount", "25.00", "Donation amount in major units")
	f.StringVarP(&opts.output, "output", "o", "results_idempotency.json", "File the JSON results are written to")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts *options) error {
	if opts.concurrency <= 0 || opts.keys <= 0 {
		return fmt.Errorf("workers and keys must be positive")
	}

	pool := make([]string, opts.keys)
	for i := range pool {
		pool[i] = "bench-" + uuid.NewString()
	}

	fmt.Fprintf(os.Stderr, "Starting benchmark: workers=%d keys=%d duration=%s\n", opts.concurrency, opts.keys, opts.duration)

	var c counters
	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(opts.concurrency)
	for i := 0; i < opts.concurrency; i++ {
		go worker(&wg, opts, pool, &c, start)
	}
	wg.Wait()

	return report(opts, &c, time.Since(start))
}

func worker(wg *sync.WaitGroup, opts *options, pool []string, c *counters, start time.Time) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Every request for a key must carry the same body or the server reports a conflict.
	payload, _ := json.Marshal(map[string]interface{}{
		"organizationSlug": opts.orgSlug,
		"amount":           json.Number(opts.amount),
		"currency":         "usd",
		"donorName":        "Benchmark Donor",
	})

	for time.Since(start) < opts.duration {
		key := pool[rng.Intn(len(pool))]

		req, err := http.NewRequest(http.MethodPost, opts.targetURL+"/api/v1/donations", bytes.NewReader(payload))
		if err != nil {
			c.other.Add(1)
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)

		resp, err := client.Do(req)
		if err != nil {
			c.other.Add(1)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		c.total.Add(1)
		switch resp.StatusCode {
		case http.StatusCreated:
			c.created.Add(1)
		case http.StatusOK:
			c.replayed.Add(1)
		case http.StatusConflict:
			c.conflicts.Add(1)
		default:
			c.other.Add(1)
		}
	}
}

func report(opts *options, c *counters, d time.Duration) error {
	total := c.total.Load()
	created := c.created.Load()

	var conflictRate float64
	if total > 0 {
		conflictRate = float64(c.conflicts.Load()) / float64(total) * 100
	}

	results := map[string]interface{}{
		"workers":           opts.concurrency,
		"key_pool":          opts.keys,
		"duration_sec":      d.Seconds(),
		"total_requests":    total,
		"throughput_tps":    float64(total) / d.Seconds(),
		"created":           created,
		"replayed":          c.replayed.Load(),
		"conflicts":         c.conflicts.Load(),
		"conflict_rate_pct": conflictRate,
		"errors":            c.other.Load(),
	}
	// More creations than keys means a key produced two provider objects.
	results["duplicate_creations"] = created > uint64(opts.keys)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	file, err := os.Create(opts.output)
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(results)
}
