package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/hiyari/incident-reports-back/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRateLimitRejectsBurstOverflow(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimit(ctx, RateLimitConfig{RPS: 0.001, Burst: 2, ExemptPaths: []string{"/health"}})(okHandler())

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		request := httptest.NewRequest(http.MethodPost, "/ai/generate", nil)
		request.RemoteAddr = "10.0.0.1:5555"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		codes = append(codes, recorder.Code)
		if recorder.Code == http.StatusTooManyRequests {
			assert.Equal(t, "1", recorder.Header().Get("Retry-After"))
			var body errorBody
			require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
			assert.Equal(t, "rate_limited", body.Code)
		}
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	other := httptest.NewRequest(http.MethodPost, "/ai/generate", nil)
	other.RemoteAddr = "10.0.0.2:5555"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, other)
	assert.Equal(t, http.StatusOK, recorder.Code)

	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	health.RemoteAddr = "10.0.0.1:5555"
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, health)
	assert.Equal(t, http.StatusOK, recorder.Code)

	cancel()
}

func TestRecoverWritesInternalError(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := Recover(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/reports", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, "InternalError", body.Code)
	assert.Equal(t, 1, logs.FilterMessage("handler panicked").Len())
}

func TestTraceLogsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RequestID(Trace(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	request := httptest.NewRequest(http.MethodGet, "/stats/categories", nil)
	request.Header.Set("X-Request-Id", "req-123")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, "req-123", recorder.Header().Get("X-Request-Id"))
	entries := logs.FilterMessage("trace").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/stats/categories", fields["path"])
}

func TestRequestIDGeneratesWhenMissing(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.NotEmpty(t, seen)
	assert.NotEqual(t, "unknown", seen)
	assert.Equal(t, seen, recorder.Header().Get("X-Request-Id"))
	assert.Equal(t, "unknown", GetRequestID(context.Background()))
}

func TestRequestIDReplacesUnsafeInboundValues(t *testing.T) {
	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "uuid", inbound: "3f0c9a52-7d2e-4a51-9b7c-0d1e2f3a4b5c", keep: true},
		{name: "trace token", inbound: "Root=1-abc.def_01:02", keep: false},
		{name: "proxy style", inbound: "edge-01.req_42:7", keep: true},
		{name: "oversized", inbound: strings.Repeat("a", 65), keep: false},
		{name: "spaces", inbound: "abc def", keep: false},
		{name: "control bytes", inbound: "abc\x1b[31m", keep: false},
		{name: "non ascii", inbound: "リクエスト", keep: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = GetRequestID(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.Header.Set(RequestIDHeader, tc.inbound)
			recorder := httptest.NewRecorder()
			handler.ServeHTTP(recorder, req)

			if tc.keep {
				assert.Equal(t, tc.inbound, seen)
			} else {
				assert.NotEqual(t, tc.inbound, seen)
				_, err := uuid.Parse(seen)
				assert.NoError(t, err)
			}
			assert.Equal(t, seen, recorder.Header().Get(RequestIDHeader))
		})
	}
}

func TestIdentityStoresResolvedCaller(t *testing.T) {
	resolver := auth.StaticToken{Token: "secret", UserID: "test-user-id"}

	var (
		userID string
		found  bool
	)
	handler := Identity(resolver)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, found = auth.UserID(r.Context())
	}))

	request := httptest.NewRequest(http.MethodGet, "/me/level", nil)
	request.Header.Set("Authorization", "Bearer secret")
	handler.ServeHTTP(httptest.NewRecorder(), request)
	assert.True(t, found)
	assert.Equal(t, "test-user-id", userID)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/me/level", nil))
	assert.False(t, found)
}
