package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/ai"
	"github.com/hiyari/incident-reports-back/internal/apperr"
	"github.com/hiyari/incident-reports-back/internal/schema"
)

const (
	overloadedMessage        = "AI service is temporarily overloaded. Please retry after a few seconds."
	defaultRetryAfterSeconds = 2
)

type generateRequest struct {
	Content string `json:"content"`
}

func (api *API) AIGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok := caller(w, r, "Unauthorized", "Valid JWT token required"); !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Validation error: invalid JSON body")
		return
	}
	if !api.validateBody(w, schema.AIGenerate, body) {
		return
	}
	var request generateRequest
	if err := decodeJSON(body, &request); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Validation error: invalid JSON body")
		return
	}

	output, err := api.ai.Generate(r.Context(), request.Content)
	if err != nil {
		api.writeGenerateError(w, r, err)
		return
	}

	status, _ := json.Marshal(output.Status)
	w.Header().Set("x-ai-provider", output.Provider)
	w.Header().Set("x-concurrency-status", string(status))
	w.Header().Set("x-text-processing", output.Processing)
	if output.CacheHit {
		w.Header().Set("x-ai-cache", "hit")
	} else {
		w.Header().Set("x-ai-cache", "miss")
	}
	writeJSON(w, http.StatusOK, output.Report)
}

func (api *API) writeGenerateError(w http.ResponseWriter, r *http.Request, err error) {
	logger := requestLogger(api.logger, r)

	var notConfigured *ai.NotConfiguredError
	if errors.As(err, &notConfigured) {
		logger.Error("ai provider not configured", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "ai_not_configured", notConfigured.Message)
		return
	}

	status := apperr.StatusCode(err)
	if status == http.StatusServiceUnavailable || strings.Contains(strings.ToLower(err.Error()), "overload") {
		retryAfter := apperr.RetryAfter(err)
		if retryAfter <= 0 {
			retryAfter = defaultRetryAfterSeconds
		}
		logger.Warn("ai service overloaded", zap.Error(err), zap.Int("retry_after", retryAfter))
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		writeJSON(w, http.StatusServiceUnavailable, errorPayload{
			Code:       "service_overloaded",
			Message:    overloadedMessage,
			RetryAfter: retryAfter,
		})
		return
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("ai generation canceled by client")
		return
	}

	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	logger.Error("ai generation failed", zap.Error(err), zap.Int("status", status))
	writeError(w, status, "ai_generation_failed", err.Error())
}

// AIStatus reports the admission controller load.
func (api *API) AIStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, api.ai.Status())
}
