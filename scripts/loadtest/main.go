// Loadtest sends concurrent tools/call requests to a running gateway and
// reports throughput, latency percentiles and how the calls ended. Pointing
// it at a failing backend shows the circuit breaker turning errors into fast
// rejections.
//
// Usage:
//
//	go run ./scripts/loadtest -tool journey.findTrips -concurrency 10 -requests 1000
//	go run ./scripts/loadtest -url http://localhost:8080/mcp -tool wx.forecast -args '{"city":"Bern"}' -out summary.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

type rpcReply struct {
	Error *struct {
		Code int `json:"code"`
	} `json:"error"`
}

type summary struct {
	Target      string         `json:"target"`
	Tool        string         `json:"tool"`
	Requests    int            `json:"requests"`
	Concurrency int            `json:"concurrency"`
	Outcomes    map[string]int `json:"outcomes"`
	Duration    float64        `json:"duration_s"`
	Throughput  float64        `json:"throughput_rps"`
	P50         float64        `json:"p50_ms"`
	P90         float64        `json:"p90_ms"`
	P95         float64        `json:"p95_ms"`
	P99         float64        `json:"p99_ms"`
}

func main() {
	var (
		url         = flag.String("url", "http://localhost:8080/mcp", "gateway JSON-RPC endpoint")
		tool        = flag.String("tool", "", "namespaced tool to call")
		args        = flag.String("args", "{}", "tool arguments as a JSON object")
		concurrency = flag.Int("concurrency", 10, "number of concurrent workers")
		requests    = flag.Int("requests", 100, "total number of requests to send")
		timeout     = flag.Duration("timeout", 10*time.Second, "per-request timeout")
		outJSON     = flag.String("out", "", "write JSON summary to this file (optional)")
	)
	flag.Parse()

	if *tool == "" {
		fmt.Fprintln(os.Stderr, "-tool is required")
		os.Exit(2)
	}

	var arguments map[string]any
	if err := json.Unmarshal([]byte(*args), &arguments); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -args: %v\n", err)
		os.Exit(2)
	}

	client := &http.Client{Timeout: *timeout}

	var (
		mu        sync.Mutex
		latencies []time.Duration
		outcomes  = map[string]int{}
	)
	record := func(outcome string, d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		outcomes[outcome]++
		latencies = append(latencies, d)
	}

	jobs := make(chan int)
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < *concurrency; i++ {
		g.Go(func() error {
			for id := range jobs {
				start := time.Now()
				outcome := call(ctx, client, *url, id, *tool, arguments)
				record(outcome, time.Since(start))
			}
			return nil
		})
	}

	testStart := time.Now()
	for i := 1; i <= *requests; i++ {
		jobs <- i
	}
	close(jobs)
	_ = g.Wait()
	elapsed := time.Since(testStart)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })

	s := summary{
		Target:      *url,
		Tool:        *tool,
		Requests:    *requests,
		Concurrency: *concurrency,
		Outcomes:    outcomes,
		Duration:    elapsed.Seconds(),
		Throughput:  float64(len(latencies)) / elapsed.Seconds(),
		P50:         percentile(latencies, 0.50),
		P90:         percentile(latencies, 0.90),
		P95:         percentile(latencies, 0.95),
		P99:         percentile(latencies, 0.99),
	}

	fmt.Println("--- Load Test Summary ---")
	fmt.Printf("Target: %s  Tool: %s\n", s.Target, s.Tool)
	fmt.Printf("Requests: %d  Concurrency: %d\n", s.Requests, s.Concurrency)
	fmt.Printf("Duration: %.2fs  Throughput: %.2f req/s\n", s.Duration, s.Throughput)
	fmt.Printf("Latency ms: p50=%.2f p90=%.2f p95=%.2f p99=%.2f\n", s.P50, s.P90, s.P95, s.P99)

	fmt.Println("\nOutcomes:")
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s -> %d\n", k, outcomes[k])
	}

	if *outJSON != "" {
		b, _ := json.MarshalIndent(s, "", "  ")
		if err := os.WriteFile(*outJSON, b, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write summary: %v\n", err)
			os.Exit(1)
		}
	}
}

// call returns "ok", "rpc <code>" or "transport".
func call(ctx context.Context, client *http.Client, url string, id int, tool string, args map[string]any) string {
	body, _ := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  "tools/call",
		"params":  map[string]any{"name": tool, "arguments": args},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "transport"
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "transport"
	}
	defer resp.Body.Close()

	var reply rpcReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return "transport"
	}
	if reply.Error != nil {
		return fmt.Sprintf("rpc %d", reply.Error.Code)
	}
	return "ok"
}

func percentile(sorted []time.Duration, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * pct)
	return float64(sorted[idx].Microseconds()) / 1000.0
}
