package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hiyari/incident-reports-back/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIClientGenerateSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var payload map[string]any
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if payload["max_tokens"] != float64(1000) || payload["temperature"] != 0.7 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model":"gpt-4o-mini-2024",
			"choices":[{"message":{"role":"assistant","content":"{\"title\":\"ok\"}"}}],
			"usage":{"prompt_tokens":120,"completion_tokens":25,"total_tokens":145}
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIClientConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
		Timeout: 2 * time.Second,
	})

	result, err := client.Generate(context.Background(), GenerateRequest{Prompt: "analyze"})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"ok"}`, result.Text)
	assert.Equal(t, "gpt-4o-mini-2024", result.ModelID)
	assert.Equal(t, 145, result.Usage.TotalTokens)
	assert.Equal(t, ProviderOpenAI, client.Name())
}

func TestOpenAIClientReportsStatusOnRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached"}}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIClientConfig{APIKey: "k", BaseURL: server.URL})
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, apperr.StatusCode(err))
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestOpenAIClientParsesArrayContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":[{"type":"text","text":"line 1"},{"type":"text","text":"line 2"}]}}]
		}`))
	}))
	defer server.Close()

	client := NewOpenAIClient(OpenAIClientConfig{APIKey: "k", BaseURL: server.URL, Model: "m"})
	result, err := client.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, "line 1\nline 2", result.Text)
	assert.Equal(t, "m", result.ModelID)
}

func TestOpenAIClientRejectsEmptyPrompt(t *testing.T) {
	client := NewOpenAIClient(OpenAIClientConfig{APIKey: "k"})
	_, err := client.Generate(context.Background(), GenerateRequest{Prompt: "  "})
	assert.EqualError(t, err, "prompt is required")
}
