// Load generator for the Sentinel analyze endpoint.
//
// Usage:
//   go run cmd/loadgen/main.go -url http://localhost:8080 -workers 20 -duration 30s
//
// This tool:
//   1. Generates synthetic mobile money transactions (BDT)
//   2. Sends them to /api/v1/transactions/analyze at the requested concurrency
//   3. Records per-request latency and the decision Sentinel returned
//   4. Reports throughput, latency percentiles, and the decision mix
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// analyzeRequest mirrors the analyze endpoint's input format.
type analyzeRequest struct {
	TransactionID   string  `json:"transaction_id"`
	Amount          float64 `json:"amount"`
	Currency        string  `json:"currency"`
	SenderAccount   string  `json:"sender_account"`
	ReceiverAccount string  `json:"receiver_account"`
	Type            string  `json:"type"`
	Channel         string  `json:"channel"`
	DeviceID        string  `json:"device_id,omitempty"`
}

// analyzeResponse carries the subset of the response the report needs.
type analyzeResponse struct {
	TransactionID string  `json:"transaction_id"`
	Score         float64 `json:"score"`
	RiskLevel     string  `json:"risk_level"`
	Decision      string  `json:"decision"`
	Duplicate     bool    `json:"duplicate"`
}

// Metrics tracks load test results
type Metrics struct {
	TotalSent   int64
	TotalErrors int64

	Approved   int64
	Reviewed   int64
	Rejected   int64
	Duplicates int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Sentinel base URL")
	workers := flag.Int("workers", 20, "Number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "How long to run")
	count := flag.Int("count", 0, "Total requests to send (0 = run for -duration)")
	rate := flag.Int("rate", 0, "Max requests per second (0 = unlimited)")
	senders := flag.Int("senders", 500, "Synthetic sender pool size (smaller pools build more history per account)")
	spike := flag.Float64("spike", 0.02, "Fraction of transactions above the amount ceiling")
	dup := flag.Float64("dup", 0.02, "Fraction of requests that resend an earlier transaction")
	verbose := flag.Bool("verbose", false, "Print each request result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           SENTINEL LOADGEN - Analyze Endpoint Latency         ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nSentinel URL: %s\n", *baseURL)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Duration:     %v\n", *duration)
	fmt.Printf("Count:        %d\n", *count)
	fmt.Printf("Rate:         %d req/s\n", *rate)
	fmt.Printf("Sender Pool:  %d\n", *senders)
	fmt.Printf("Spike Rate:   %.2f\n", *spike)
	fmt.Printf("Dup Rate:     %.2f\n", *dup)
	fmt.Println()

	// Check Sentinel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Sentinel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Sentinel is running:")
		fmt.Println("  go run cmd/sentinel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Sentinel is healthy")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *duration)
	defer cancel()

	fmt.Printf("\nRunning load test with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoadTest(ctx, *baseURL, *workers, *count, *rate, newGenerator(*senders, *spike, *dup), *verbose)
	elapsed := time.Since(startTime)

	printResults(metrics, elapsed)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// generator produces synthetic transactions. Only the feeder goroutine calls
// next, so it needs no locking.
type generator struct {
	senders []string
	spike   float64
	dupRate float64
	recent  []analyzeRequest
	cursor  int
}

const recentSize = 512

var txTypes = []string{"p2p", "p2p", "p2p", "p2m", "p2m", "cash_out", "mobile_recharge", "bill_payment"}

var txChannels = []string{"app", "app", "app", "ussd", "web", "agent"}

func newGenerator(senders int, spike, dupRate float64) *generator {
	if senders < 2 {
		senders = 2
	}
	g := &generator{spike: spike, dupRate: dupRate}
	for i := 0; i < senders; i++ {
		g.senders = append(g.senders, fmt.Sprintf("acct-%04d", i))
	}
	return g
}

func (g *generator) next() analyzeRequest {
	// Resend a recent transaction to exercise the idempotent path.
	if len(g.recent) > 0 && rand.Float64() < g.dupRate {
		return g.recent[rand.IntN(len(g.recent))]
	}

	sender := g.senders[rand.IntN(len(g.senders))]
	receiver := g.senders[rand.IntN(len(g.senders))]
	for receiver == sender {
		receiver = g.senders[rand.IntN(len(g.senders))]
	}

	amount := 50 + rand.Float64()*20000
	if rand.Float64() < g.spike {
		amount = 520000 + rand.Float64()*180000
	}

	req := analyzeRequest{
		TransactionID:   uuid.NewString(),
		Amount:          math.Round(amount*100) / 100,
		Currency:        "BDT",
		SenderAccount:   sender,
		ReceiverAccount: receiver,
		Type:            txTypes[rand.IntN(len(txTypes))],
		Channel:         txChannels[rand.IntN(len(txChannels))],
		DeviceID:        "dev-" + sender,
	}
	// A slice of traffic arrives from devices the account has never used.
	if rand.Float64() < 0.1 {
		req.DeviceID = "dev-" + uuid.NewString()[:8]
	}

	if len(g.recent) < recentSize {
		g.recent = append(g.recent, req)
	} else {
		g.recent[g.cursor] = req
		g.cursor = (g.cursor + 1) % recentSize
	}
	return req
}

func runLoadTest(ctx context.Context, baseURL string, numWorkers, count, rate int, gen *generator, verbose bool) *Metrics {
	metrics := &Metrics{}

	var throttle <-chan time.Time
	if rate > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(rate))
		defer ticker.Stop()
		throttle = ticker.C
	}

	// Feed work until the deadline or the request count, whichever first.
	work := make(chan analyzeRequest, 256)
	go func() {
		defer close(work)
		for i := 0; count == 0 || i < count; i++ {
			if throttle != nil {
				select {
				case <-ctx.Done():
					return
				case <-throttle:
				}
			}
			select {
			case <-ctx.Done():
				return
			case work <- gen.next():
			}
		}
	}()

	// Start workers
	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := analyzeOnce(client, baseURL, req)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalSent, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.TransactionID, err)
					}
					continue
				}
				metrics.observe(elapsed)

				switch result.Decision {
				case "APPROVE":
					atomic.AddInt64(&metrics.Approved, 1)
				case "REVIEW":
					atomic.AddInt64(&metrics.Reviewed, 1)
				case "REJECT":
					atomic.AddInt64(&metrics.Rejected, 1)
				}
				if result.Duplicate {
					atomic.AddInt64(&metrics.Duplicates, 1)
				}

				if verbose {
					mark := ""
					if result.Duplicate {
						mark = " (duplicate)"
					}
					fmt.Printf("%-7s %-8s | %12.2f BDT | score %.3f | %6.1f ms%s\n",
						result.Decision, result.RiskLevel, req.Amount, result.Score,
						float64(elapsed.Microseconds())/1000.0, mark)
				}
			}
		}()
	}

	wg.Wait()

	return metrics
}

func analyzeOnce(client *http.Client, baseURL string, req analyzeRequest) (*analyzeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/transactions/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result analyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
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

func ms(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}

func printResults(m *Metrics, elapsed time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                       LOAD TEST RESULTS                       ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 TRAFFIC\n")
	fmt.Printf("   Requests Sent: %d\n", m.TotalSent)
	fmt.Printf("   Errors:        %d\n", m.TotalErrors)
	fmt.Printf("   Duration:      %v\n", elapsed.Round(time.Millisecond))
	if elapsed > 0 {
		fmt.Printf("   Throughput:    %.1f req/s\n", float64(m.TotalSent)/elapsed.Seconds())
	}

	m.mu.Lock()
	latencies := m.latencies
	m.mu.Unlock()
	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	if len(latencies) > 0 {
		var total time.Duration
		for _, d := range latencies {
			total += d
		}
		avg := total / time.Duration(len(latencies))

		fmt.Printf("\n⏱️  LATENCY (successful requests)\n")
		fmt.Printf("   Min:  %7.1f ms\n", ms(latencies[0]))
		fmt.Printf("   Avg:  %7.1f ms\n", ms(avg))
		fmt.Printf("   P50:  %7.1f ms\n", ms(percentile(latencies, 50)))
		fmt.Printf("   P90:  %7.1f ms\n", ms(percentile(latencies, 90)))
		fmt.Printf("   P95:  %7.1f ms\n", ms(percentile(latencies, 95)))
		fmt.Printf("   P99:  %7.1f ms\n", ms(percentile(latencies, 99)))
		fmt.Printf("   Max:  %7.1f ms\n", ms(latencies[len(latencies)-1]))
	}

	scored := m.Approved + m.Reviewed + m.Rejected
	fmt.Printf("\n🚦 DECISIONS\n")
	if scored > 0 {
		fmt.Printf("   APPROVE: %8d (%.2f%%)\n", m.Approved, 100*float64(m.Approved)/float64(scored))
		fmt.Printf("   REVIEW:  %8d (%.2f%%)\n", m.Reviewed, 100*float64(m.Reviewed)/float64(scored))
		fmt.Printf("   REJECT:  %8d (%.2f%%)\n", m.Rejected, 100*float64(m.Rejected)/float64(scored))
		fmt.Printf("   Answered from history: %d\n", m.Duplicates)
	} else {
		fmt.Println("   No successful requests.")
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if len(latencies) > 0 {
		budget := 100 * time.Millisecond
		p50 := percentile(latencies, 50)
		p99 := percentile(latencies, 99)
		if p99 <= budget {
			fmt.Println("   ✅ p99 within the 100ms decision budget")
		} else if p50 <= budget {
			fmt.Println("   ⚠️  p50 within budget, tail latency above 100ms")
		} else {
			fmt.Println("   ❌ Median latency above the 100ms decision budget")
		}
	}
	if m.TotalSent > 0 && m.TotalErrors > 0 {
		errRate := 100 * float64(m.TotalErrors) / float64(m.TotalSent)
		if errRate >= 1 {
			fmt.Printf("   ❌ %.2f%% of requests failed\n", errRate)
		} else {
			fmt.Printf("   ⚠️  %.2f%% of requests failed\n", errRate)
		}
	}

	fmt.Println()
}
