// Loadtest drives concurrent generate requests through the proxy and reports
// throughput, latency percentiles and the status code distribution.
//
// Usage:
//
//	go run ./scripts/loadtest -url http://localhost:3000/api/generate -concurrency 10 -requests 1000
//	go run ./scripts/loadtest -concurrency 50 -requests 5000 -csv results.csv -out summary.json
//
// Pair it with scripts/mockupstream to load the proxy without spending quota.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const defaultBody = `{"contents":[{"parts":[{"text":"Write a haiku about load balancers."}]}]}`

type latencyStats struct {
	Samples int           `json:"samples"`
	Min     time.Duration `json:"-"`
	Avg     time.Duration `json:"-"`
	Max     time.Duration `json:"-"`
	P50     time.Duration `json:"-"`
	P90     time.Duration `json:"-"`
	P95     time.Duration `json:"-"`
	P99     time.Duration `json:"-"`
}

func (s latencyStats) MarshalJSON() ([]byte, error) {
	ms := func(d time.Duration) float64 { return float64(d.Microseconds()) / 1000.0 }
	return json.Marshal(map[string]any{
		"samples": s.Samples,
		"min_ms":  ms(s.Min),
		"avg_ms":  ms(s.Avg),
		"max_ms":  ms(s.Max),
		"p50_ms":  ms(s.P50),
		"p90_ms":  ms(s.P90),
		"p95_ms":  ms(s.P95),
		"p99_ms":  ms(s.P99),
	})
}

func computeStats(latencies []time.Duration) latencyStats {
	if len(latencies) == 0 {
		return latencyStats{}
	}

	sorted := slices.Clone(latencies)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	pick := func(p float64) time.Duration {
		return sorted[int(float64(len(sorted)-1)*p)]
	}

	return latencyStats{
		Samples: len(sorted),
		Min:     sorted[0],
		Avg:     sum / time.Duration(len(sorted)),
		Max:     sorted[len(sorted)-1],
		P50:     pick(0.50),
		P90:     pick(0.90),
		P95:     pick(0.95),
		P99:     pick(0.99),
	}
}

func main() {
	var (
		url         = flag.String("url", "http://localhost:3000/api/generate", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		body        = flag.String("body", defaultBody, "Request body")
		timeout     = flag.Duration("timeout", 60*time.Second, "Per-request timeout")
	)

	outJSON := flag.String("out", "", "Write JSON summary to this file (optional)")
	outCSV := flag.String("csv", "", "Write per-request CSV to this file (optional)")
	verbose := flag.Bool("v", false, "Verbose per-request logging to stdout")
	flag.Parse()

	client := &http.Client{Timeout: *timeout}

	jobs := make(chan int)
	var wg sync.WaitGroup

	var total, success, failure atomic.Int64
	var bytesReceived atomic.Uint64

	var mu sync.Mutex
	var allLatencies []time.Duration
	statusCodes := make(map[int]int64)
	statusLatencies := make(map[int][]time.Duration)

	var csvFile *os.File
	var csvWriter *csv.Writer
	if *outCSV != "" {
		f, err := os.Create(*outCSV)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create csv file: %v\n", err)
			os.Exit(1)
		}
		csvFile = f
		csvWriter = csv.NewWriter(f)
		csvWriter.Write([]string{"idx", "timestamp", "request_id", "status", "bytes", "duration_ms"})
	}

	testStart := time.Now()

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for idx := range jobs {
				total.Add(1)
				requestID := uuid.NewString()

				req, err := http.NewRequest(http.MethodPost, *url, bytes.NewBufferString(*body))
				if err != nil {
					failure.Add(1)
					continue
				}
				req.Header.Set("Content-Type", "application/json")
				req.Header.Set("X-Request-ID", requestID)

				start := time.Now()
				resp, err := client.Do(req)
				if err != nil {
					dur := time.Since(start)
					failure.Add(1)
					mu.Lock()
					allLatencies = append(allLatencies, dur)
					mu.Unlock()
					if *verbose {
						fmt.Printf("[%d] idx=%d error=%v\n", workerID, idx, err)
					}
					continue
				}

				n, _ := io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				dur := time.Since(start)
				bytesReceived.Add(uint64(n))

				if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
					success.Add(1)
				} else {
					failure.Add(1)
				}

				mu.Lock()
				allLatencies = append(allLatencies, dur)
				statusCodes[resp.StatusCode]++
				statusLatencies[resp.StatusCode] = append(statusLatencies[resp.StatusCode], dur)
				if csvWriter != nil {
					csvWriter.Write([]string{
						strconv.Itoa(idx),
						time.Now().Format(time.RFC3339Nano),
						requestID,
						strconv.Itoa(resp.StatusCode),
						strconv.FormatInt(n, 10),
						fmt.Sprintf("%.3f", float64(dur.Microseconds())/1000.0),
					})
				}
				mu.Unlock()

				if *verbose {
					fmt.Printf("[%d] idx=%d id=%s status=%d size=%s dur=%v\n",
						workerID, idx, requestID, resp.StatusCode, humanize.Bytes(uint64(n)), dur)
				}
			}
		}(i)
	}

	go func() {
		for i := 0; i < *requests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	wg.Wait()
	totalDuration := time.Since(testStart)

	if csvWriter != nil {
		csvWriter.Flush()
		csvFile.Close()
	}

	throughput := float64(total.Load()) / totalDuration.Seconds()
	overall := computeStats(allLatencies)

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s\n", *url)
	fmt.Printf("Requests: %s  Concurrency: %d\n", humanize.Comma(int64(*requests)), *concurrency)
	fmt.Printf("Total sent: %s  Success: %s  Failure: %s\n",
		humanize.Comma(total.Load()), humanize.Comma(success.Load()), humanize.Comma(failure.Load()))
	fmt.Printf("Duration: %v  Throughput: %.2f req/s  Received: %s\n",
		totalDuration, throughput, humanize.Bytes(bytesReceived.Load()))

	fmt.Println("\nStatus codes:")
	codes := make([]int, 0, len(statusCodes))
	for code := range statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	perStatus := make(map[string]latencyStats, len(codes))
	for _, code := range codes {
		stats := computeStats(statusLatencies[code])
		perStatus[strconv.Itoa(code)] = stats
		fmt.Printf("  %d -> %s  p50=%v p95=%v max=%v\n",
			code, humanize.Comma(statusCodes[code]), stats.P50, stats.P95, stats.Max)
	}

	if overall.Samples > 0 {
		fmt.Println("\nOverall latencies:")
		fmt.Printf("  samples=%d min=%v avg=%v max=%v p50=%v p90=%v p95=%v p99=%v\n",
			overall.Samples, overall.Min, overall.Avg, overall.Max,
			overall.P50, overall.P90, overall.P95, overall.P99)
	}

	fmt.Printf("\nGOMAXPROCS=%d  NumGoroutine=%d\n", runtime.GOMAXPROCS(0), runtime.NumGoroutine())

	if *outJSON != "" {
		report := map[string]any{
			"target":         *url,
			"requests":       *requests,
			"concurrency":    *concurrency,
			"total_sent":     total.Load(),
			"success":        success.Load(),
			"failure":        failure.Load(),
			"bytes_received": bytesReceived.Load(),
			"duration_ms":    totalDuration.Milliseconds(),
			"throughput_rps": throughput,
			"latency":        overall,
			"status_codes":   perStatus,
		}

		f, err := os.Create(*outJSON)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to create json file: %v\n", err)
			os.Exit(1)
		}
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		f.Close()
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if failure.Load() > 0 {
		os.Exit(2)
	}
}
