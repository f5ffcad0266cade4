package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/V4T54L/alert-feed/internal/domain"
)

type submitOptions struct {
	concurrency int
	duration    time.Duration
	rps         int
	burst       int
}

func newSubmitCmd() *cobra.Command {
	opts := &submitOptions{}
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit synthetic alerts at a bounded rate",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSubmit(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.concurrency, "concurrency", "c", 10, "Number of concurrent workers")
	cmd.Flags().DurationVarP(&opts.duration, "duration", "d", 30*time.Second, "Duration of the load test")
	cmd.Flags().IntVar(&opts.rps, "rps", 100, "Requests per second limit")
	cmd.Flags().IntVar(&opts.burst, "burst", 20, "Rate limiter burst")
	return cmd
}

func runSubmit(parent context.Context, opts *submitOptions) error {
	if opts.concurrency <= 0 || opts.rps <= 0 {
		return fmt.Errorf("concurrency and rps must be positive")
	}
	targetURL := strings.TrimRight(baseURL, "/") + "/api/logs"
	runID := uuid.NewString()

	log.Printf("Starting load test on %s (run %s)", targetURL, runID)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %d", opts.concurrency, opts.duration, opts.rps)

	var wg sync.WaitGroup
	var successCount, rejectedCount, errorCount atomic.Int64
	ctx, cancel := context.WithTimeout(parent, opts.duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(opts.rps), opts.burst)
	vocab := domain.DefaultVocabulary()

	for i := 0; i < opts.concurrency; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for seq := 0; ; seq++ {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				payload, err := json.Marshal(domain.NewEvent{
					Type:        vocab.Types[rand.IntN(len(vocab.Types))],
					SourceIP:    fmt.Sprintf("10.%d.%d.%d", workerID%256, rand.IntN(256), 1+rand.IntN(254)),
					ActionTaken: vocab.Actions[rand.IntN(len(vocab.Actions))],
					Details: map[string]any{
						"severity": vocab.Severities[rand.IntN(len(vocab.Severities))],
						"run_id":   runID,
						"worker":   workerID,
						"seq":      seq,
					},
				})
				if err != nil {
					continue // Should not happen
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
				if err != nil {
					continue
				}
				req.Header.Set("Content-Type", "application/json")

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() == nil {
						errorCount.Add(1)
					}
					continue
				}

				switch resp.StatusCode {
				case http.StatusCreated:
					successCount.Add(1)
				case http.StatusTooManyRequests:
					rejectedCount.Add(1)
				default:
					errorCount.Add(1)
				}
				resp.Body.Close()
			}
		}(i)
	}

	wg.Wait()

	totalRequests := successCount.Load() + rejectedCount.Load() + errorCount.Load()
	actualRPS := float64(totalRequests) / opts.duration.Seconds()

	log.Println("Load test finished.")
	log.Printf("Total Requests: %d", totalRequests)
	log.Printf("Successful (201 Created): %d", successCount.Load())
	log.Printf("Rate limited (429): %d", rejectedCount.Load())
	log.Printf("Errors: %d", errorCount.Load())
	log.Printf("Actual RPS: %.2f", actualRPS)
	return nil
}
