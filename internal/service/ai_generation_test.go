package service

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hiyari/incident-reports-back/internal/admission"
	"github.com/hiyari/incident-reports-back/internal/ai"
	"github.com/hiyari/incident-reports-back/internal/apperr"
	"github.com/hiyari/incident-reports-back/internal/quality"
	"github.com/hiyari/incident-reports-back/internal/retry"
	"github.com/hiyari/incident-reports-back/internal/textproc"
)

const modelReply = "```json\n" + `{"title":"確認漏れ","category":"WHY_REQ_001","summary":"要約","improvements":"ダブルチェックする","anonymizedText":"[個人名]が対応"}` + "\n```"

type scriptedProvider struct {
	mu      sync.Mutex
	replies []func() (ai.GenerateResult, error)
	calls   int
	prompts []string
	block   chan struct{}
}

func (p *scriptedProvider) Name() string  { return "fake" }
func (p *scriptedProvider) Model() string { return "fake-model" }

func (p *scriptedProvider) Generate(ctx context.Context, req ai.GenerateRequest) (ai.GenerateResult, error) {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ai.GenerateResult{}, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.prompts = append(p.prompts, req.Prompt)
	if len(p.replies) == 0 {
		return ai.GenerateResult{Text: modelReply, ModelID: "fake-model"}, nil
	}
	next := p.replies[0]
	if len(p.replies) > 1 {
		p.replies = p.replies[1:]
	}
	return next()
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func noSleepPolicy() *retry.Policy {
	return &retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   time.Millisecond,
		Sleep:      func(context.Context, time.Duration) error { return nil },
	}
}

func TestGenerateNormalizesModelReply(t *testing.T) {
	provider := &scriptedProvider{}
	service := NewAIGenerationService(AIGenerationDependencies{Provider: provider, RetryPolicy: noSleepPolicy()})

	output, err := service.Generate(context.Background(), "田中さんに test@example.com で連絡した")
	require.NoError(t, err)

	assert.Equal(t, "fake", output.Provider)
	assert.False(t, output.CacheHit)
	assert.Equal(t, "確認漏れ", output.Report.Title)
	assert.Equal(t, []string{"ダブルチェックする"}, output.Report.Improvements)
	assert.Equal(t, "[個人名]が対応", output.Report.AnonymizedText)
	assert.Equal(t, "Direct processing (28 chars)", output.Processing)
	require.Len(t, output.Report.SuggestedReplacements, 2)
	assert.Equal(t, "test@example.com", output.Report.SuggestedReplacements[0].Original)

	require.Len(t, provider.prompts, 1)
	assert.Contains(t, provider.prompts[0], "田中さんに test@example.com で連絡した")
	assert.Contains(t, provider.prompts[0], "WHY_REQ_001")
}

func TestGenerateServesRepeatsFromCache(t *testing.T) {
	provider := &scriptedProvider{}
	service := NewAIGenerationService(AIGenerationDependencies{Provider: provider, RetryPolicy: noSleepPolicy()})

	first, err := service.Generate(context.Background(), "同じ内容")
	require.NoError(t, err)
	second, err := service.Generate(context.Background(), "同じ内容")
	require.NoError(t, err)

	assert.Equal(t, 1, provider.callCount())
	assert.True(t, second.CacheHit)
	assert.Equal(t, "Cached result (4 chars)", second.Processing)
	assert.Equal(t, first.Report, second.Report)
}

func TestGenerateRetriesThrottling(t *testing.T) {
	throttled := func() (ai.GenerateResult, error) {
		return ai.GenerateResult{}, apperr.NewRetryable("ThrottlingException: slow down", http.StatusTooManyRequests)
	}
	provider := &scriptedProvider{replies: []func() (ai.GenerateResult, error){
		throttled,
		throttled,
		func() (ai.GenerateResult, error) { return ai.GenerateResult{Text: modelReply}, nil },
	}}

	var sleeps []time.Duration
	policy := noSleepPolicy()
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	service := NewAIGenerationService(AIGenerationDependencies{Provider: provider, RetryPolicy: policy})

	output, err := service.Generate(context.Background(), "再試行する内容")
	require.NoError(t, err)
	assert.Equal(t, "確認漏れ", output.Report.Title)
	assert.Equal(t, 3, provider.callCount())
	assert.Len(t, sleeps, 2)
}

func TestGenerateStopsOnFatalProviderError(t *testing.T) {
	provider := &scriptedProvider{replies: []func() (ai.GenerateResult, error){
		func() (ai.GenerateResult, error) {
			return ai.GenerateResult{}, apperr.NewFatal("ValidationException: bad input", http.StatusBadRequest)
		},
	}}
	service := NewAIGenerationService(AIGenerationDependencies{Provider: provider, RetryPolicy: noSleepPolicy()})

	_, err := service.Generate(context.Background(), "内容")
	require.Error(t, err)
	assert.Equal(t, 1, provider.callCount())
	assert.Equal(t, http.StatusBadRequest, apperr.StatusCode(err))
}

func TestGenerateReportsProviderConfigError(t *testing.T) {
	configErr := &ai.NotConfiguredError{Message: "OPENAI_API_KEY is not set"}
	service := NewAIGenerationService(AIGenerationDependencies{ProviderErr: configErr})

	_, err := service.Generate(context.Background(), "内容")
	var notConfigured *ai.NotConfiguredError
	require.True(t, errors.As(err, &notConfigured))
	assert.Equal(t, "OPENAI_API_KEY is not set", notConfigured.Message)
}

func TestGenerateRejectsWhenOverloaded(t *testing.T) {
	provider := &scriptedProvider{block: make(chan struct{})}
	controller := admission.New(admission.Config{MaxConcurrent: 1, QueueMaxSize: 1, QueueTimeout: time.Minute})
	service := NewAIGenerationService(AIGenerationDependencies{
		Provider:    provider,
		Admission:   controller,
		RetryPolicy: noSleepPolicy(),
	})

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, content := range []string{"一件目", "二件目"} {
		wg.Add(1)
		go func(content string) {
			defer wg.Done()
			_, err := service.Generate(context.Background(), content)
			errs <- err
		}(content)
		if content == "一件目" {
			require.Eventually(t, func() bool { return controller.Status().Running == 1 }, time.Second, time.Millisecond)
		}
	}
	require.Eventually(t, func() bool { return controller.Status().Queued == 1 }, time.Second, time.Millisecond)

	_, err := service.Generate(context.Background(), "三件目")
	require.ErrorIs(t, err, admission.ErrOverloaded)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.StatusCode(err))
	assert.Equal(t, 2, apperr.RetryAfter(err))

	close(provider.block)
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestGeneratePreprocessesLongContent(t *testing.T) {
	provider := &scriptedProvider{}
	service := NewAIGenerationService(AIGenerationDependencies{
		Provider:     provider,
		Preprocessor: textproc.New(textproc.Config{MaxDirectLength: 200, ChunkSize: 100, ChunkOverlap: 10, SummaryLength: 150}),
		RetryPolicy:  noSleepPolicy(),
	})

	content := strings.Repeat("重要な問題が発生しました。", 40)
	output, err := service.Generate(context.Background(), content)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(output.Processing, "Preprocessed: 520 -> "), output.Processing)
	require.Len(t, provider.prompts, 1)
	assert.NotContains(t, provider.prompts[0], content)
}

func TestGenerateRejectsUnparseableReplyAndMasksLog(t *testing.T) {
	provider := &scriptedProvider{replies: []func() (ai.GenerateResult, error){
		func() (ai.GenerateResult, error) {
			return ai.GenerateResult{Text: "担当は sato@example.com です"}, nil
		},
	}}
	core, logs := observer.New(zapcore.WarnLevel)
	service := NewAIGenerationService(AIGenerationDependencies{
		Provider:    provider,
		RetryPolicy: noSleepPolicy(),
		Logger:      zap.New(core),
	})

	_, err := service.Generate(context.Background(), "内容")
	require.ErrorIs(t, err, quality.ErrInvalidOutput)
	assert.Equal(t, 1, provider.callCount())

	entries := logs.FilterMessage("model output rejected").All()
	require.Len(t, entries, 1)
	logged, _ := entries[0].ContextMap()["output"].(string)
	assert.NotContains(t, logged, "sato@example.com")
	assert.Contains(t, logged, "[メールアドレス]")
}
