package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/hiyari/incident-reports-back/internal/repository"
	"github.com/hiyari/incident-reports-back/internal/schema"
	"github.com/hiyari/incident-reports-back/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (api *API) Reports(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		api.createReport(w, r)
	case http.MethodGet:
		api.listReports(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (api *API) createReport(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, "Unauthorized", "Authentication required")
	if !ok {
		return
	}

	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Validation error: invalid JSON body")
		return
	}
	if !api.validateBody(w, schema.CreateReport, body) {
		return
	}
	var input service.CreateReportInput
	if err := decodeJSON(body, &input); err != nil {
		writeError(w, http.StatusBadRequest, "BadRequest", "Validation error: invalid JSON body")
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	if idempotencyKey != "" {
		idempotencyKey = userID + ":" + idempotencyKey
		outcome, reportID, err := api.idempotency.Reserve(r.Context(), idempotencyKey, hashPayload(input))
		if err != nil {
			return
		}
		switch outcome {
		case idempotencyConflict:
			writeError(w, http.StatusConflict, "idempotency_conflict", "Idempotency-Key already used with different payload")
			return
		case idempotencyReplay:
			writeJSON(w, http.StatusCreated, map[string]string{"reportId": reportID})
			return
		}
		defer api.idempotency.Release(idempotencyKey)
	}

	report, err := api.reports.Create(r.Context(), userID, input)
	if err != nil {
		if errors.Is(err, service.ErrInvalidQuery) {
			writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
			return
		}
		requestLogger(api.logger, r).Error("create report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "Failed to create report")
		return
	}

	if idempotencyKey != "" {
		api.idempotency.Complete(idempotencyKey, report.ReportID)
	}
	writeJSON(w, http.StatusCreated, map[string]string{"reportId": report.ReportID})
}

func (api *API) listReports(w http.ResponseWriter, r *http.Request) {
	userID, ok := caller(w, r, "Unauthorized", "Authentication required")
	if !ok {
		return
	}

	values := r.URL.Query()
	query := listQuery(values)
	if values.Get("countOnly") == "true" {
		count, err := api.reports.Count(r.Context(), userID, query)
		if err != nil {
			api.writeListError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"count": count})
		return
	}

	result, err := api.reports.List(r.Context(), userID, query)
	if err != nil {
		api.writeListError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ReportByID serves GET /reports/{id}.
func (api *API) ReportByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if _, ok := caller(w, r, "Unauthorized", "Authentication required"); !ok {
		return
	}

	reportID := strings.TrimSpace(strings.TrimPrefix(r.URL.Path, "/reports/"))
	if reportID == "" || strings.Contains(reportID, "/") {
		writeError(w, http.StatusBadRequest, "BadRequest", "Report ID is required")
		return
	}

	report, err := api.reports.Get(r.Context(), reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "NotFound", "Report not found")
			return
		}
		requestLogger(api.logger, r).Error("get report failed", zap.Error(err), zap.String("report_id", reportID))
		writeError(w, http.StatusInternalServerError, "InternalError", "Failed to get report")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// ExportReports serves the filtered reports as an XLSX download.
func (api *API) ExportReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	userID, ok := caller(w, r, "Unauthorized", "Authentication required")
	if !ok {
		return
	}

	var buf bytes.Buffer
	count, err := api.reports.Export(r.Context(), userID, listQuery(r.URL.Query()), &buf, api.location)
	if err != nil {
		api.writeListError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="reports.xlsx"`)
	w.Header().Set("X-Report-Count", strconv.Itoa(count))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func listQuery(values map[string][]string) service.ListQuery {
	get := func(key string) string {
		if items := values[key]; len(items) > 0 {
			return strings.TrimSpace(items[0])
		}
		return ""
	}
	limit, _ := strconv.Atoi(get("limit"))
	return service.ListQuery{
		Category:  get("category"),
		From:      get("from"),
		To:        get("to"),
		NextToken: get("nextToken"),
		Q:         get("q"),
		AuthorID:  get("authorId"),
		Limit:     limit,
	}
}

func (api *API) writeListError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repository.ErrInvalidToken):
		writeError(w, http.StatusBadRequest, "BadRequest", "Invalid nextToken")
	case errors.Is(err, service.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "BadRequest", err.Error())
	default:
		requestLogger(api.logger, r).Error("list reports failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "InternalError", "Failed to get reports")
	}
}
