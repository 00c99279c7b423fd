// Load generator for the matching path: registers two teams, then fires
// paired buy and sell limit orders at one price and reports latency
// percentiles and match counts.
//
// Run against a live exchange:
//
//	go run scripts/benchmark_matching.go -url http://localhost:8080 -n 10000 -c 100
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

type registerRequest struct {
	TeamName string `json:"team_name"`
	Role     string `json:"role"`
}

type registerResponse struct {
	TeamID string `json:"team_id"`
	APIKey string `json:"api_key"`
}

type submitRequest struct {
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
	OrderType  string `json:"order_type"`
	Quantity   int64  `json:"quantity"`
	Price      string `json:"price"`
}

type submitResponse struct {
	OrderID uint64 `json:"order_id"`
	Status  string `json:"status"`
	Fills   []struct {
		TradeID  uint64 `json:"trade_id"`
		Price    string `json:"price"`
		Quantity int64  `json:"quantity"`
	} `json:"fills"`
	RejectCode string `json:"reject_code"`
}

type results struct {
	orders  int64
	success int64
	failed  int64
	matched int64
	trades  int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (r *results) add(latency time.Duration, success, matched bool, trades int) {
	atomic.AddInt64(&r.orders, 1)
	if success {
		atomic.AddInt64(&r.success, 1)
	} else {
		atomic.AddInt64(&r.failed, 1)
	}
	if matched {
		atomic.AddInt64(&r.matched, 1)
		atomic.AddInt64(&r.trades, int64(trades))
	}
	r.mu.Lock()
	r.latencies = append(r.latencies, latency)
	r.mu.Unlock()
}

func percentile(latencies []time.Duration, p float64) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(latencies))
	copy(sorted, latencies)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func avg(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}

func registerTeam(client *http.Client, baseURL, name, role string) (*registerResponse, error) {
	body, _ := json.Marshal(registerRequest{TeamName: name, Role: role})
	resp, err := client.Post(baseURL+"/game/teams", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("register %s: status %d", name, resp.StatusCode)
	}
	var out registerResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func submitOrder(client *http.Client, baseURL, apiKey string, req *submitRequest) (time.Duration, bool, bool, int) {
	body, _ := json.Marshal(req)
	start := time.Now()

	httpReq, err := http.NewRequest("POST", baseURL+"/exchange/orders", bytes.NewReader(body))
	if err != nil {
		return time.Since(start), false, false, 0
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return latency, false, false, 0
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return latency, false, false, 0
	}

	var orderResp submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&orderResp); err != nil {
		return latency, true, false, 0
	}
	if orderResp.RejectCode != "" {
		return latency, false, false, 0
	}
	return latency, true, len(orderResp.Fills) > 0, len(orderResp.Fills)
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "exchange base URL")
	orderCount := flag.Int("n", 10000, "orders per side")
	concurrency := flag.Int("c", 100, "concurrent requests")
	instrument := flag.String("instrument", "TEST", "instrument symbol")
	price := flag.String("price", "5.25", "limit price for both sides")
	quantity := flag.Int64("qty", 1, "order quantity")
	outputFile := flag.String("o", "", "JSON report file")
	flag.Parse()

	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        1000,
			MaxIdleConnsPerHost: 200,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	fmt.Print("Checking exchange health... ")
	resp, err := client.Get(*baseURL + "/")
	if err != nil {
		fmt.Printf("FAILED: %v\n", err)
		os.Exit(1)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fmt.Printf("FAILED: status %d\n", resp.StatusCode)
		os.Exit(1)
	}
	fmt.Println("OK")

	buyer, err := registerTeam(client, *baseURL, "bench-buyer", "market_maker")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	seller, err := registerTeam(client, *baseURL, "bench-seller", "market_maker")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	fmt.Printf("Instrument %s, %d orders/side at %s, concurrency %d\n\n",
		*instrument, *orderCount, *price, *concurrency)

	res := &results{latencies: make([]time.Duration, 0, *orderCount*2)}
	sem := make(chan struct{}, *concurrency)
	var wg sync.WaitGroup

	startTime := time.Now()
	for i := 0; i < *orderCount; i++ {
		for _, side := range []string{"buy", "sell"} {
			wg.Add(1)
			go func(side string) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				apiKey := buyer.APIKey
				if side == "sell" {
					apiKey = seller.APIKey
				}
				latency, success, matched, trades := submitOrder(client, *baseURL, apiKey, &submitRequest{
					Instrument: *instrument,
					Side:       side,
					OrderType:  "limit",
					Quantity:   *quantity,
					Price:      *price,
				})
				res.add(latency, success, matched, trades)
			}(side)
		}
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	throughput := float64(res.orders) / elapsed.Seconds()
	fmt.Printf("Duration:       %v\n", elapsed.Round(time.Millisecond))
	fmt.Printf("Throughput:     %.2f orders/sec\n", throughput)
	fmt.Printf("Orders:         %d (success %d, failed %d)\n", res.orders, res.success, res.failed)
	fmt.Printf("Matched orders: %d, trades: %d\n", res.matched, res.trades)
	fmt.Printf("Latency avg:    %v\n", avg(res.latencies))
	fmt.Printf("Latency p50:    %v\n", percentile(res.latencies, 0.50))
	fmt.Printf("Latency p95:    %v\n", percentile(res.latencies, 0.95))
	fmt.Printf("Latency p99:    %v\n", percentile(res.latencies, 0.99))

	if *outputFile != "" {
		report := map[string]any{
			"config": map[string]any{
				"url":             *baseURL,
				"instrument":      *instrument,
				"orders_per_side": *orderCount,
				"concurrency":     *concurrency,
				"price":           *price,
				"quantity":        *quantity,
			},
			"summary": map[string]any{
				"duration_ms":        elapsed.Milliseconds(),
				"throughput_per_sec": throughput,
				"total_orders":       res.orders,
				"success_orders":     res.success,
				"failed_orders":      res.failed,
				"matched_orders":     res.matched,
				"total_trades":       res.trades,
			},
			"latency_us": map[string]any{
				"avg": avg(res.latencies).Microseconds(),
				"p50": percentile(res.latencies, 0.50).Microseconds(),
				"p95": percentile(res.latencies, 0.95).Microseconds(),
				"p99": percentile(res.latencies, 0.99).Microseconds(),
			},
			"timestamp": time.Now().Format(time.RFC3339),
		}
		file, err := os.Create(*outputFile)
		if err != nil {
			fmt.Printf("failed to create report file: %v\n", err)
			return
		}
		defer file.Close()
		enc := json.NewEncoder(file)
		enc.SetIndent("", "  ")
		enc.Encode(report)
		fmt.Printf("\nReport saved to %s\n", *outputFile)
	}
}
