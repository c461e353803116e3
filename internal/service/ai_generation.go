package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/admission"
	"github.com/hiyari/incident-reports-back/internal/ai"
	"github.com/hiyari/incident-reports-back/internal/apperr"
	"github.com/hiyari/incident-reports-back/internal/cache"
	"github.com/hiyari/incident-reports-back/internal/category"
	"github.com/hiyari/incident-reports-back/internal/domain"
	"github.com/hiyari/incident-reports-back/internal/policy"
	"github.com/hiyari/incident-reports-back/internal/quality"
	"github.com/hiyari/incident-reports-back/internal/retry"
	"github.com/hiyari/incident-reports-back/internal/textproc"
)

// AIRetryPolicy is the retry budget for one provider call.
var AIRetryPolicy = retry.Policy{
	MaxRetries: 3,
	BaseDelay:  2 * time.Second,
	MaxDelay:   10 * time.Second,
}

// logPreviewChars bounds text copied into log fields.
const logPreviewChars = 200

// providerRetryHints mark provider failures worth another attempt.
var providerRetryHints = []string{"throttl", "rate limit", "overload", "busy"}

type AIGenerationDependencies struct {
	Provider ai.Provider
	// ProviderErr is returned for every request when the provider could not
	// be built, usually an *ai.NotConfiguredError.
	ProviderErr  error
	Admission    *admission.Controller
	Preprocessor *textproc.Preprocessor
	Cache        cache.Store
	Taxonomy     *category.Taxonomy
	RetryPolicy  *retry.Policy
	Logger       *zap.Logger
}

type AIGenerationService struct {
	provider     ai.Provider
	providerErr  error
	admission    *admission.Controller
	preprocessor *textproc.Preprocessor
	cache        cache.Store
	taxonomy     *category.Taxonomy
	retryPolicy  retry.Policy
	logger       *zap.Logger
}

type GenerateOutput struct {
	Report     domain.GeneratedReport
	Provider   string
	Status     admission.Status
	Processing string
	CacheHit   bool
}

func NewAIGenerationService(deps AIGenerationDependencies) *AIGenerationService {
	if deps.Admission == nil {
		deps.Admission = admission.New(admission.Config{})
	}
	if deps.Preprocessor == nil {
		deps.Preprocessor = textproc.New(textproc.Config{})
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewMemoryStore(cache.Config{})
	}
	if deps.Taxonomy == nil {
		deps.Taxonomy = category.Default()
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	policy := AIRetryPolicy
	if deps.RetryPolicy != nil {
		policy = *deps.RetryPolicy
	}
	if policy.Logger == nil {
		policy.Logger = deps.Logger.Named("retry")
	}

	return &AIGenerationService{
		provider:     deps.Provider,
		providerErr:  deps.ProviderErr,
		admission:    deps.Admission,
		preprocessor: deps.Preprocessor,
		cache:        deps.Cache,
		taxonomy:     deps.Taxonomy,
		retryPolicy:  policy,
		logger:       deps.Logger,
	}
}

// Status reports the admission controller load.
func (s *AIGenerationService) Status() admission.Status {
	return s.admission.Status()
}

// Generate drafts a report from free text: overload check, admission,
// preprocessing, provider call with retries, then normalization.
func (s *AIGenerationService) Generate(ctx context.Context, content string) (output GenerateOutput, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			s.logger.Error("ai generation panicked", zap.Any("panic", recovered))
			output = GenerateOutput{}
			err = apperr.NewFatal(fmt.Sprintf("internal error: %v", recovered), http.StatusInternalServerError)
		}
	}()

	if s.providerErr != nil {
		return GenerateOutput{}, s.providerErr
	}
	if s.provider == nil {
		return GenerateOutput{}, &ai.NotConfiguredError{Message: "AI provider not configured"}
	}

	output.Provider = s.provider.Name()
	signature := cache.BuildSignature(s.provider.Name(), s.provider.Model(), content)
	if report, ok := s.cachedReport(ctx, signature); ok {
		output.Report = report
		output.Status = s.admission.Status()
		output.Processing = fmt.Sprintf("Cached result (%d chars)", len([]rune(content)))
		output.CacheHit = true
		return output, nil
	}

	output.Status = s.admission.Status()
	s.logger.Debug("ai generation requested",
		zap.String("content_preview", policy.MaskString(logPreview(content))),
		zap.Int("content_chars", len([]rune(content))),
	)
	s.logger.Debug("ai concurrency status",
		zap.Int("running", output.Status.Running),
		zap.Int("queued", output.Status.Queued),
		zap.Bool("overloaded", output.Status.IsOverloaded),
	)

	report, err := admission.WithOverloadCheck(ctx, s.admission, func(ctx context.Context) (domain.GeneratedReport, error) {
		processed, err := s.preprocessor.Preprocess(ctx, content)
		if err != nil {
			return domain.GeneratedReport{}, err
		}
		output.Processing = textproc.Stats(processed)
		s.logger.Info("text processing", zap.String("stats", output.Processing))

		prompt, err := ai.RenderReportPrompt(processed.Content, s.taxonomy.PromptList())
		if err != nil {
			return domain.GeneratedReport{}, err
		}

		result, err := retry.Run(ctx, s.retryPolicy, func(ctx context.Context) (ai.GenerateResult, error) {
			result, err := s.provider.Generate(ctx, ai.GenerateRequest{Prompt: prompt})
			if err != nil {
				return ai.GenerateResult{}, classifyProviderError(err)
			}
			return result, nil
		})
		if err != nil {
			return domain.GeneratedReport{}, err
		}

		s.logger.Info("ai generation completed",
			zap.String("provider", s.provider.Name()),
			zap.String("model", result.ModelID),
			zap.Int("input_tokens", result.Usage.InputTokens),
			zap.Int("output_tokens", result.Usage.OutputTokens),
		)
		report, err := quality.NormalizeReport(result.Text, content)
		if err != nil {
			s.logger.Warn("model output rejected",
				zap.Error(err),
				zap.ByteString("output", policy.MaskJSON(json.RawMessage(logPreview(result.Text)))),
			)
			return domain.GeneratedReport{}, err
		}
		return report, nil
	})
	if err != nil {
		return GenerateOutput{}, err
	}

	output.Report = report
	s.storeReport(ctx, signature, report)
	return output, nil
}

func (s *AIGenerationService) cachedReport(ctx context.Context, signature string) (domain.GeneratedReport, bool) {
	entry, ok, err := s.cache.Get(ctx, signature)
	if err != nil {
		s.logger.Warn("ai cache read failed", zap.Error(err))
		return domain.GeneratedReport{}, false
	}
	if !ok {
		return domain.GeneratedReport{}, false
	}
	var report domain.GeneratedReport
	if err := json.Unmarshal(entry.Value, &report); err != nil {
		s.logger.Warn("ai cache entry undecodable", zap.Error(err))
		return domain.GeneratedReport{}, false
	}
	return report, true
}

func (s *AIGenerationService) storeReport(ctx context.Context, signature string, report domain.GeneratedReport) {
	encoded, err := json.Marshal(report)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, signature, cache.Entry{
		Value:    encoded,
		Provider: s.provider.Name(),
		Model:    s.provider.Model(),
	}); err != nil {
		s.logger.Warn("ai cache write failed", zap.Error(err))
	}
}

// classifyProviderError tags throttling and overload failures as retryable.
// Other errors pass through for the retry executor's own classification.
func classifyProviderError(err error) error {
	status := apperr.StatusCode(err)
	if status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable {
		return apperr.Wrap(err, apperr.Retryable, status)
	}
	message := strings.ToLower(err.Error())
	for _, hint := range providerRetryHints {
		if strings.Contains(message, hint) {
			return apperr.Wrap(err, apperr.Retryable, status)
		}
	}
	return err
}

func logPreview(text string) string {
	runes := []rune(text)
	if len(runes) <= logPreviewChars {
		return text
	}
	return string(runes[:logPreviewChars]) + "..."
}
