package handlers

import (
	"net/http"

	"go.uber.org/zap"
)

// Validate always answers 200 with the check result; rule violations are data,
// not errors.
func (api *API) Validate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if _, ok := caller(w, r, "Unauthorized", "Authentication required"); !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Validation error: invalid JSON body")
		return
	}
	result, err := api.validation.Validate(body)
	if err != nil {
		requestLogger(api.logger, r).Error("validate report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "Failed to validate report")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
