// Command signal_load exercises the /signal webhook with synthetic signals
// and reports acceptance statistics. Useful for load-testing the evaluation
// path and for demoing the dashboard feed.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type signalPayload struct {
	Direction         string `json:"direction"`
	Pair              string `json:"pair"`
	EntryPrice        string `json:"entry_price"`
	TargetPrice       string `json:"target_price"`
	StopPrice         string `json:"stop_price"`
	Risk              int    `json:"risk"`
	ExpectedChangePct string `json:"expected_change_pct"`
}

type decisionPayload struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
}

func main() {
	var (
		targetURL string
		rate      float64
		duration  time.Duration
		workers   int
		pair      string
		basePrice float64
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8000/signal", "signal webhook URL")
	flag.Float64Var(&rate, "rate", 2, "signals per second")
	flag.DurationVar(&duration, "dur", 30*time.Second, "test duration (0 for until interrupted)")
	flag.IntVar(&workers, "workers", 4, "number of sender goroutines")
	flag.StringVar(&pair, "pair", "XRP_PHP", "trading pair to send signals for")
	flag.Float64Var(&basePrice, "price", 2.45, "price level to generate signals around")
	flag.Parse()

	if rate <= 0 || workers <= 0 {
		log.Fatalf("invalid rate %v or workers %d", rate, workers)
	}

	log.Printf("starting signal load: url=%s rate=%.1f/s duration=%s workers=%d", targetURL, rate, duration, workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case s := <-sigCh:
			log.Printf("caught signal: %s, shutting down...", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	if duration > 0 {
		go func() {
			timer := time.NewTimer(duration)
			defer timer.Stop()
			select {
			case <-timer.C:
				cancel()
			case <-ctx.Done():
			}
		}()
	}

	var (
		sent      int64
		accepted  int64
		rejected  int64
		failed    int64
		reasonsMu sync.Mutex
		reasons   = map[string]int64{}
	)

	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Duration(float64(time.Second) * float64(workers) / rate)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					decision, err := send(ctx, client, targetURL, randomSignal(rng, pair, basePrice))
					atomic.AddInt64(&sent, 1)
					if err != nil {
						atomic.AddInt64(&failed, 1)
						continue
					}
					if decision.Accepted {
						atomic.AddInt64(&accepted, 1)
						continue
					}
					atomic.AddInt64(&rejected, 1)
					reasonsMu.Lock()
					reasons[decision.Reason]++
					reasonsMu.Unlock()
				}
			}
		}(time.Now().UnixNano() + int64(i))
	}

	wg.Wait()

	elapsed := time.Since(start).Truncate(time.Millisecond)
	fmt.Printf("done: sent=%d accepted=%d rejected=%d failed=%d elapsed=%s\n",
		atomic.LoadInt64(&sent),
		atomic.LoadInt64(&accepted),
		atomic.LoadInt64(&rejected),
		atomic.LoadInt64(&failed),
		elapsed,
	)
	for reason, n := range reasons {
		fmt.Printf("  %s: %d\n", reason, n)
	}
}

// randomSignal produces a plausible long or short around the base price. A
// share of signals is deliberately low quality so rejections show up too.
func randomSignal(rng *rand.Rand, pair string, basePrice float64) signalPayload {
	entry := basePrice * (1 + (rng.Float64()-0.5)*0.02)
	risk := 1 + rng.Intn(10)
	move := 2 + rng.Float64()*8

	if rng.Intn(2) == 0 {
		return signalPayload{
			Direction:         "long",
			Pair:              pair,
			EntryPrice:        fmt.Sprintf("%.4f", entry),
			TargetPrice:       fmt.Sprintf("%.4f", entry*(1+move/100)),
			StopPrice:         fmt.Sprintf("%.4f", entry*(1-move/200)),
			Risk:              risk,
			ExpectedChangePct: fmt.Sprintf("%.2f", move),
		}
	}
	return signalPayload{
		Direction:         "short",
		Pair:              pair,
		EntryPrice:        fmt.Sprintf("%.4f", entry),
		TargetPrice:       fmt.Sprintf("%.4f", entry*(1-move/100)),
		StopPrice:         fmt.Sprintf("%.4f", entry*(1+move/200)),
		Risk:              risk,
		ExpectedChangePct: fmt.Sprintf("%.2f", -move),
	}
}

func send(ctx context.Context, client *http.Client, url string, payload signalPayload) (decisionPayload, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return decisionPayload{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return decisionPayload{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return decisionPayload{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decisionPayload{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var decision decisionPayload
	if err := json.NewDecoder(resp.Body).Decode(&decision); err != nil {
		return decisionPayload{}, err
	}
	return decision, nil
}
