package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/service"
)

func (api *API) CategoryStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID, ok := caller(w, r, "UNAUTHORIZED", "Authentication required")
	if !ok {
		return
	}

	query := r.URL.Query()
	result, err := api.stats.CategoryStats(r.Context(), userID, service.StatsQuery{
		Scope: query.Get("scope"),
		TopN:  query.Get("topN"),
		TZ:    query.Get("tz"),
	})
	switch {
	case errors.Is(err, service.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "INVALID_SCOPE", err.Error())
	case errors.Is(err, service.ErrInvalidTimezone):
		writeError(w, http.StatusBadRequest, "INVALID_TZ", err.Error())
	case err != nil:
		requestLogger(api.logger, r).Error("category stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to get category stats")
	default:
		writeJSON(w, http.StatusOK, result)
	}
}
