package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/hiyari/incident-reports-back/internal/admission"
	"github.com/hiyari/incident-reports-back/internal/ai"
	"github.com/hiyari/incident-reports-back/internal/auth"
	httpserver "github.com/hiyari/incident-reports-back/internal/http"
	"github.com/hiyari/incident-reports-back/internal/http/handlers"
	"github.com/hiyari/incident-reports-back/internal/repository"
	"github.com/hiyari/incident-reports-back/internal/retry"
	"github.com/hiyari/incident-reports-back/internal/schema"
	"github.com/hiyari/incident-reports-back/internal/service"
)

const loadToken = "load-token"

type loadOptions struct {
	total         int
	concurrency   int
	latency       time.Duration
	contentLength int
	maxConcurrent int
	queueMaxSize  int
	queueTimeout  time.Duration
	output        string
}

type scenarioResult struct {
	Name          string         `json:"name"`
	Total         int            `json:"total"`
	Success       int            `json:"success"`
	Errors        int            `json:"errors"`
	StatusCounts  map[string]int `json:"status_counts"`
	P50MS         float64        `json:"p50_ms"`
	P95MS         float64        `json:"p95_ms"`
	P99MS         float64        `json:"p99_ms"`
	MaxMS         float64        `json:"max_ms"`
	ThroughputRPS float64        `json:"throughput_rps"`
	ErrorSamples  []string       `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Admission      admission.Status `json:"admission_after_run"`
	Results        []scenarioResult `json:"results"`
}

// latencyProvider answers every prompt with a fixed report after a delay.
type latencyProvider struct {
	latency time.Duration
}

func (p latencyProvider) Name() string  { return "load" }
func (p latencyProvider) Model() string { return "load-model" }

func (p latencyProvider) Generate(ctx context.Context, _ ai.GenerateRequest) (ai.GenerateResult, error) {
	timer := time.NewTimer(p.latency)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ai.GenerateResult{}, ctx.Err()
	case <-timer.C:
	}
	return ai.GenerateResult{
		Text:    `{"title":"負荷試験","category":"WHY_REQ_001","summary":"負荷試験の結果","improvements":["なし"],"anonymizedText":"負荷試験"}`,
		ModelID: "load-model",
	}, nil
}

func newLoadCmd(_ *rootOptions) *cobra.Command {
	opts := loadOptions{}

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Burst /ai/generate in-process and report latency percentiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runLoad(cmd.Context(), opts)
			if err != nil {
				return err
			}
			encoded, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal load report: %w", err)
			}
			if opts.output != "" {
				if err := os.WriteFile(opts.output, encoded, 0o644); err != nil {
					return fmt.Errorf("write output file: %w", err)
				}
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(encoded))
			return err
		},
	}

	cmd.Flags().IntVar(&opts.total, "total", 200, "total /ai/generate requests")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 50, "concurrent clients")
	cmd.Flags().DurationVar(&opts.latency, "latency", 200*time.Millisecond, "simulated provider latency")
	cmd.Flags().IntVar(&opts.contentLength, "content-length", 400, "characters per request body")
	cmd.Flags().IntVar(&opts.maxConcurrent, "max-concurrent", admission.DefaultMaxConcurrent, "admission slots")
	cmd.Flags().IntVar(&opts.queueMaxSize, "queue-max-size", admission.DefaultQueueMaxSize, "admission queue capacity")
	cmd.Flags().DurationVar(&opts.queueTimeout, "queue-timeout", admission.DefaultQueueTimeout, "admission queue timeout")
	cmd.Flags().StringVar(&opts.output, "output", "", "optional path to persist the JSON report")
	return cmd
}

func runLoad(ctx context.Context, opts loadOptions) (runResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	schemas, err := schema.New(schema.Options{MaxContentLength: max(opts.contentLength+100, schema.DefaultMaxContentLength)})
	if err != nil {
		return runResult{}, err
	}
	controller := admission.New(admission.Config{
		MaxConcurrent: opts.maxConcurrent,
		QueueMaxSize:  opts.queueMaxSize,
		QueueTimeout:  opts.queueTimeout,
	})
	go controller.Run(ctx)

	repo := repository.NewMemoryReportsRepository()
	aiService := service.NewAIGenerationService(service.AIGenerationDependencies{
		Provider:    latencyProvider{latency: opts.latency},
		Admission:   controller,
		RetryPolicy: &retry.Policy{NoRetry: true},
	})
	api := handlers.NewAPI(handlers.Dependencies{
		AI:         aiService,
		Reports:    service.NewReportsService(repo, nil, nil),
		Validation: service.NewValidationService(schemas, time.UTC),
		Stats:      service.NewStatsService(repo, nil, ""),
		Levels:     service.NewLevelService(repo),
		Schemas:    schemas,
	})
	router := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            api,
		Identity:       auth.StaticToken{Token: loadToken},
		RateLimitRPS:   1e6,
		RateLimitBurst: 1e6,
	})
	server := httptest.NewServer(router)
	defer server.Close()

	client := &http.Client{Timeout: opts.queueTimeout + time.Minute}
	filler := strings.Repeat("作業中に確認漏れが発生した。", max(1, opts.contentLength/14))

	scenario := runScenario("ai_generate_burst", opts.total, opts.concurrency, func(index int) (int, error) {
		// Distinct content per request keeps the result cache out of the measurement.
		content := fmt.Sprintf("#%d %s", index, filler)
		return postJSON(client, server.URL+"/ai/generate", map[string]string{"content": content})
	})

	return runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Admission:      controller.Status(),
		Results:        []scenarioResult{scenario},
	}, nil
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) (int, error),
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name, StatusCounts: map[string]int{}}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		status     int
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				status, err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
					status:     status,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	statusCounts := make(map[string]int)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		key := "transport_error"
		if item.status != 0 {
			key = fmt.Sprintf("%d", item.status)
		}
		statusCounts[key]++
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		StatusCounts:  statusCounts,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func postJSON(client *http.Client, url string, payload any) (int, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("Authorization", "Bearer "+loadToken)

	response, err := client.Do(request)
	if err != nil {
		return 0, err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return response.StatusCode, fmt.Errorf("unexpected status %d: %s", response.StatusCode, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return response.StatusCode, nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
