package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"sort"
	"sync"
	"time"
)

// OrganizationEvent is the payload delivered to the provisioning endpoint
type OrganizationEvent struct {
	Identity string `json:"identity"`
	Name     string `json:"name"`
	Slug     string `json:"slug,omitempty"`
}

// ProvisionResponse mirrors the API response
type ProvisionResponse struct {
	Identity   string `json:"identity"`
	Slug       string `json:"slug"`
	SchemaName string `json:"schemaName"`
	Existing   bool   `json:"existing"`
}

// TestResult contains metrics for a single request
type TestResult struct {
	Success      bool
	Existing     bool
	ResponseTime time.Duration
	StatusCode   int
	Error        error
}

// TestStats contains aggregated test statistics
type TestStats struct {
	TotalRequests      int
	SuccessfulRequests int
	FailedRequests     int
	CreatedCount       int
	ReplayCount        int
	TotalTime          time.Duration
	ResponseTimes      []time.Duration
	ErrorCounts        map[string]int
	Lock               sync.Mutex
}

// Exercises the provisioning endpoint with a mix of fresh organization
// events and replays of already-delivered ones, which is what an
// at-least-once event pipeline actually produces.
func main() {
	concurrency := flag.Int("c", 5, "Number of concurrent goroutines")
	totalRequests := flag.Int("n", 100, "Total number of requests to make")
	replayRatio := flag.Float64("replay", 0.3, "Fraction of requests replaying an earlier event")
	baseURL := flag.String("url", "http://localhost:8080", "Base URL for the API")
	delayMs := flag.Int("delay", 50, "Delay between requests in milliseconds")
	flag.Parse()

	runID := time.Now().UnixNano() % 1_000_000

	fmt.Printf("Provisioning load test against %s\n", *baseURL)
	fmt.Printf("Concurrency: %d goroutines, %d requests, %.0f%% replays\n",
		*concurrency, *totalRequests, *replayRatio*100)

	stats := &TestStats{
		TotalRequests: *totalRequests,
		ErrorCounts:   make(map[string]int),
		ResponseTimes: make([]time.Duration, 0, *totalRequests),
	}

	// Events sent so far, shared so workers can replay each other's.
	var sentLock sync.Mutex
	var sent []OrganizationEvent

	pickEvent := func(jobID int) OrganizationEvent {
		sentLock.Lock()
		defer sentLock.Unlock()

		if len(sent) > 0 && rand.Float64() < *replayRatio {
			return sent[rand.Intn(len(sent))]
		}
		event := OrganizationEvent{
			Identity: fmt.Sprintf("org_%d_%d", runID, jobID),
			Name:     fmt.Sprintf("Load Test Org %d-%d", runID, jobID),
		}
		sent = append(sent, event)
		return event
	}

	jobs := make(chan int, *totalRequests)
	results := make(chan TestResult, *totalRequests)

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker(*baseURL, *delayMs, pickEvent, jobs, results)
		}()
	}

	go func() {
		for i := 0; i < *totalRequests; i++ {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		for result := range results {
			stats.Lock.Lock()
			if result.Success {
				stats.SuccessfulRequests++
				if result.Existing {
					stats.ReplayCount++
				} else {
					stats.CreatedCount++
				}
			} else {
				stats.FailedRequests++
				errMsg := "unknown"
				if result.Error != nil {
					errMsg = result.Error.Error()
				}
				stats.ErrorCounts[errMsg]++
			}
			stats.ResponseTimes = append(stats.ResponseTimes, result.ResponseTime)
			stats.Lock.Unlock()
		}
	}()

	startTime := time.Now()
	wg.Wait()
	close(results)
	stats.TotalTime = time.Since(startTime)

	printResults(stats)
}

func worker(baseURL string, delayMs int, pickEvent func(int) OrganizationEvent,
	jobs <-chan int, results chan<- TestResult) {

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	for jobID := range jobs {
		if delayMs > 0 {
			time.Sleep(time.Duration(delayMs) * time.Millisecond)
		}

		event := pickEvent(jobID)
		jsonData, err := json.Marshal(event)
		if err != nil {
			results <- TestResult{Success: false, Error: err}
			continue
		}

		req, err := http.NewRequest("POST", baseURL+"/events/organizations", bytes.NewBuffer(jsonData))
		if err != nil {
			results <- TestResult{Success: false, Error: err}
			continue
		}
		req.Header.Set("Content-Type", "application/json")

		startTime := time.Now()
		resp, err := client.Do(req)
		responseTime := time.Since(startTime)

		result := TestResult{ResponseTime: responseTime}
		if err != nil {
			result.Error = err
		} else {
			result.StatusCode = resp.StatusCode
			result.Success = resp.StatusCode >= 200 && resp.StatusCode < 300
			if result.Success {
				var body ProvisionResponse
				if decodeErr := json.NewDecoder(resp.Body).Decode(&body); decodeErr == nil {
					result.Existing = body.Existing
				}
			} else {
				result.Error = fmt.Errorf("HTTP status code %d", resp.StatusCode)
			}
			resp.Body.Close()
		}

		results <- result
	}
}

func printResults(stats *TestStats) {
	tps := float64(stats.SuccessfulRequests) / stats.TotalTime.Seconds()

	var avgResponseTime, p50, p95, p99 time.Duration
	if len(stats.ResponseTimes) > 0 {
		sorted := make([]time.Duration, len(stats.ResponseTimes))
		copy(sorted, stats.ResponseTimes)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var total time.Duration
		for _, rt := range sorted {
			total += rt
		}
		avgResponseTime = total / time.Duration(len(sorted))
		p50 = sorted[len(sorted)*50/100]
		p95 = sorted[len(sorted)*95/100]
		p99 = sorted[len(sorted)*99/100]
	}

	fmt.Println("\n================= TEST RESULTS =================")
	fmt.Printf("Total Requests:      %d\n", stats.TotalRequests)
	fmt.Printf("Successful Requests: %d (%.1f%%)\n", stats.SuccessfulRequests,
		float64(stats.SuccessfulRequests)/float64(stats.TotalRequests)*100)
	fmt.Printf("Failed Requests:     %d\n", stats.FailedRequests)
	fmt.Printf("Newly Provisioned:   %d\n", stats.CreatedCount)
	fmt.Printf("Replays (existing):  %d\n", stats.ReplayCount)
	fmt.Printf("Total Test Time:     %.2f seconds\n", stats.TotalTime.Seconds())
	fmt.Printf("Throughput:          %.2f provisions/sec\n", tps)

	fmt.Println("\n----------------- RESPONSE TIMES -----------------")
	fmt.Printf("Average Response:    %v\n", avgResponseTime)
	fmt.Printf("P50 Response:        %v\n", p50)
	fmt.Printf("P95 Response:        %v\n", p95)
	fmt.Printf("P99 Response:        %v\n", p99)

	if stats.FailedRequests > 0 {
		fmt.Println("\n----------------- ERROR DISTRIBUTION -----------------")
		for errMsg, count := range stats.ErrorCounts {
			fmt.Printf("%-40s: %d\n", errMsg, count)
		}
	}
	fmt.Println("================================================")
}
