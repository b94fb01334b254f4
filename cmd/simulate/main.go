// Simulate replays a CSV of transaction requests against a running
// sentinel server and reports the decision distribution and latency
// observed.
//
// Usage:
//
//	go run cmd/simulate/main.go -csv /path/to/transactions.csv -url http://localhost:8080
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/ingest"
)

// Metrics tracks replay results.
type Metrics struct {
	TotalProcessed int64
	TotalErrors    int64
	Approve        int64
	StepUp         int64
	Block          int64
	Escalated      int64
	Coordinated    int64

	ProcessingTimeMs int64
}

func main() {
	_ = godotenv.Load()

	csvPath := flag.String("csv", "", "Path to a transaction CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Sentinel base URL")
	limit := flag.Int("limit", 0, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: simulate -csv /path/to/transactions.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("  +----------------------------------------------+")
	fmt.Println("  |       SENTINEL SIMULATE - transaction replay  |")
	fmt.Println("  +----------------------------------------------+")
	fmt.Printf("\nCSV File:  %s\n", *csvPath)
	fmt.Printf("Base URL:  %s\n", *baseURL)
	fmt.Printf("Workers:   %d\n", *workers)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: sentinel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure sentinel is running:")
		fmt.Println("  go run cmd/sentinel/main.go")
		os.Exit(1)
	}
	fmt.Println("sentinel is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	batch, err := ingest.Transactions(file, slog.Default())
	if err != nil {
		fmt.Printf("ERROR: failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	requests := batch.Requests
	if *limit > 0 && len(requests) > *limit {
		requests = requests[:*limit]
	}
	fmt.Printf("Loaded %d transactions (%d skipped as malformed)\n", len(requests), batch.Skipped)

	startTime := time.Now()
	metrics := runSimulation(requests, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
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

func runSimulation(requests []domain.TransactionRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan domain.TransactionRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				start := time.Now()
				result, err := evaluateTransaction(client, baseURL, req)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.UserID, err)
					}
					continue
				}

				switch result.Decision {
				case domain.DecisionApprove:
					atomic.AddInt64(&metrics.Approve, 1)
				case domain.DecisionStepUp:
					atomic.AddInt64(&metrics.StepUp, 1)
				case domain.DecisionBlock:
					atomic.AddInt64(&metrics.Block, 1)
				}
				if result.EscalationOverride {
					atomic.AddInt64(&metrics.Escalated, 1)
				}
				if result.CoordinatedAttack {
					atomic.AddInt64(&metrics.Coordinated, 1)
				}

				if verbose {
					fmt.Printf("%-24s | amount: %10d | decision: %-7s | score: %3d\n",
						req.UserID, req.Amount, result.Decision, result.FinalRiskScore)
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()
	return metrics
}

func evaluateTransaction(client *http.Client, baseURL string, req domain.TransactionRequest) (*domain.FinalRiskResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
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

	var result domain.FinalRiskResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n  +----------------------------------------------+")
	fmt.Println("  |                REPLAY RESULTS                 |")
	fmt.Println("  +----------------------------------------------+")

	fmt.Printf("\nTotal Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\nDecisions\n")
	fmt.Printf("   APPROVE:  %d\n", m.Approve)
	fmt.Printf("   STEP_UP:  %d\n", m.StepUp)
	fmt.Printf("   BLOCK:    %d\n", m.Block)

	fmt.Printf("\nFlags\n")
	fmt.Printf("   Escalation overrides:   %d\n", m.Escalated)
	fmt.Printf("   Coordinated attacks:    %d\n", m.Coordinated)

	fmt.Printf("\nPerformance\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		tps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}
	fmt.Println()
}
