package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	tokens      int
)

// Metrics
var (
	totalRequests uint64
	reads200      uint64 // Catalog reads
	accepted202   uint64 // Submissions accepted
	busy409       uint64 // Conflict lock busy
	rejected4xx   uint64 // Validation rejections
	failOther     uint64
)

func init() {
	flag.StringVar(&targetURL, "url", "http://localhost:8080", "API Base URL")
	flag.IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	flag.DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	flag.StringVar(&workload, "workload", "uniform", "Workload type: uniform | hotspot")
	flag.IntVar(&tokens, "tokens", 100, "Token id range assumed seeded (1..N)")
}

func main() {
	flag.Parse()
	log.Printf("Starting Benchmark: %s | Workers: %d | Duration: %s", workload, concurrency, duration)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(concurrency)

	for i := 0; i < concurrency; i++ {
		go worker(&wg, start, i)
	}

	wg.Wait()
	printResults(time.Since(start))
}

func worker(wg *sync.WaitGroup, start time.Time, id int) {
	defer wg.Done()
	client := &http.Client{Timeout: 5 * time.Second}
	submitter := fmt.Sprintf("0xbench%034d", id)

	for time.Since(start) < duration {
		// Mostly reads, with a mutating call mixed in — the catalog should
		// absorb the read side without ledger latency regardless of the
		// write pressure.
		if rand.Float32() < 0.80 {
			doList(client)
			continue
		}
		doSetPrice(client, submitter)
	}
}

func doList(client *http.Client) {
	resp, err := client.Get(targetURL + "/api/v1/artworks")
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}
	atomic.AddUint64(&totalRequests, 1)
	if resp.StatusCode == 200 {
		atomic.AddUint64(&reads200, 1)
	} else {
		atomic.AddUint64(&failOther, 1)
	}
	resp.Body.Close()
}

func doSetPrice(client *http.Client, submitter string) {
	payload := map[string]interface{}{
		"token_id":  pickToken(),
		"price":     int64(rand.Intn(9000) + 1000),
		"submitter": submitter,
	}
	body, _ := json.Marshal(payload)

	resp, err := client.Post(targetURL+"/api/v1/artworks/set-price", "application/json", bytes.NewBuffer(body))
	if err != nil {
		atomic.AddUint64(&failOther, 1)
		return
	}

	atomic.AddUint64(&totalRequests, 1)
	switch {
	case resp.StatusCode == 202:
		atomic.AddUint64(&accepted202, 1)
	case resp.StatusCode == 409:
		atomic.AddUint64(&busy409, 1)
	case resp.StatusCode == 404 || resp.StatusCode == 422:
		atomic.AddUint64(&rejected4xx, 1)
	default:
		atomic.AddUint64(&failOther, 1)
	}
	resp.Body.Close()
}

func pickToken() int64 {
	if workload == "hotspot" {
		// Hotspot: 90% of mutations target tokens 1 & 2, driving lock
		// contention and the 409 path.
		if rand.Float32() < 0.90 {
			return int64(rand.Intn(2) + 1)
		}
	}
	return int64(rand.Intn(tokens) + 1)
}

func printResults(d time.Duration) {
	total := atomic.LoadUint64(&totalRequests)
	r200 := atomic.LoadUint64(&reads200)
	a202 := atomic.LoadUint64(&accepted202)
	b409 := atomic.LoadUint64(&busy409)
	v4xx := atomic.LoadUint64(&rejected4xx)
	fErr := atomic.LoadUint64(&failOther)

	tps := float64(total) / d.Seconds()
	busyRate := float64(b409) / float64(a202+b409+1) * 100

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_tps": tps,
		"catalog_reads":  r200,
		"accepted":       a202,
		"busy_conflicts": b409,
		"rejected":       v4xx,
		"busy_rate_pct":  busyRate,
		"errors":         fErr,
	}

	// Print JSON for the python plotter to consume
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(results)

	// Also save to file
	filename := fmt.Sprintf("results_%s.json", workload)
	file, _ := os.Create(filename)
	defer file.Close()
	json.NewEncoder(file).Encode(results)
}
