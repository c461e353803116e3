package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

func (api *API) MyLevel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID, ok := caller(w, r, "Unauthorized", "Authentication required")
	if !ok {
		return
	}

	info, err := api.levels.ForUser(r.Context(), userID)
	if err != nil {
		requestLogger(api.logger, r).Error("level lookup failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "Failed to get level")
		return
	}
	writeJSON(w, http.StatusOK, info)
}
