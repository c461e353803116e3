package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/apperr"
)

const (
	DefaultMaxRetries    = 5
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 30 * time.Second
	DefaultBackoffFactor = 2.0
	DefaultJitterFactor  = 0.1
)

// retryablePatterns are matched against the lowercased error message.
var retryablePatterns = []string{
	"timeout",
	"connection",
	"network",
	"throttl",
	"rate limit",
	"overload",
	"busy",
	"unavailable",
}

// Policy configures Do. Zero fields take the package defaults.
type Policy struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64

	// NoRetry forces a single attempt; MaxRetries 0 means "use the default".
	NoRetry bool

	Rand   func() float64
	Sleep  func(ctx context.Context, d time.Duration) error
	Logger *zap.Logger
}

func (p Policy) withDefaults() Policy {
	if p.NoRetry {
		p.MaxRetries = 0
	} else if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.BackoffFactor <= 0 {
		p.BackoffFactor = DefaultBackoffFactor
	}
	if p.JitterFactor < 0 {
		p.JitterFactor = 0
	}
	if p.Rand == nil {
		p.Rand = rand.Float64
	}
	if p.Sleep == nil {
		p.Sleep = sleepContext
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}
	return p
}

// Delay returns the wait before attempt n+1 (n counts from zero).
func (p Policy) Delay(attempt int) time.Duration {
	p = p.withDefaults()
	exponential := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	jitter := exponential * p.JitterFactor * p.Rand()
	delay := exponential + jitter
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// Do runs op up to MaxRetries+1 times. Non-retryable errors are returned at
// once; after the last attempt the last error is returned unchanged.
func Do(ctx context.Context, policy Policy, op func(ctx context.Context) error) error {
	_, err := Run(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

func Run[T any](ctx context.Context, policy Policy, op func(ctx context.Context) (T, error)) (T, error) {
	policy = policy.withDefaults()

	var (
		zero    T
		lastErr error
	)
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}
		if attempt == policy.MaxRetries {
			break
		}

		delay := policy.Delay(attempt)
		policy.Logger.Info("retrying operation",
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", policy.MaxRetries),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepErr := policy.Sleep(ctx, delay); sleepErr != nil {
			return zero, sleepErr
		}
	}

	if lastErr == nil {
		lastErr = errors.New("retry failed with unknown error")
	}
	return zero, lastErr
}

// IsRetryable classifies err: explicit tag first, then status code, then
// message patterns.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch apperr.KindOf(err) {
	case apperr.Retryable:
		return true
	case apperr.Fatal:
		return false
	}

	if status := apperr.StatusCode(err); status != 0 {
		if status >= 500 && status < 600 {
			return true
		}
		if status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
			return true
		}
	}

	message := strings.ToLower(err.Error())
	for _, pattern := range retryablePatterns {
		if strings.Contains(message, pattern) {
			return true
		}
	}
	return false
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
