package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fqdata/fqdata/internal/config"
	"github.com/fqdata/fqdata/internal/datasource"
	"github.com/fqdata/fqdata/internal/query"
)

// queryRequest selects filtered mode whenever filter is present, even when the
// list is empty.
type queryRequest struct {
	SQL       string `json:"sql"`
	Filter    *[]any `json:"filter"`
	KeyColumn string `json:"key_column"`
	RowLimit  int    `json:"row_limit"`
}

type queryResponse struct {
	Columns []string       `json:"columns"`
	Rows    [][]any        `json:"rows"`
	Stats   map[string]any `json:"stats"`
}

func handleQuery(cfg config.Config, deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.QueryEngine == nil || deps.DataSource == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "QUERY_NOT_CONFIGURED", "query dependencies are not configured", false, nil)
		return
	}

	var body queryRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	decoder.UseNumber()
	if err := decoder.Decode(&body); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid query request body", false, map[string]any{"details": err.Error()})
		return
	}

	if strings.TrimSpace(body.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if !isAllowedSQL(body.SQL) {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_NOT_ALLOWED", "only read-only SELECT/WITH queries are allowed", false, nil)
		return
	}
	if body.RowLimit < 0 {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_ROW_LIMIT", "row_limit must be >= 0", false, nil)
		return
	}

	request := query.Unfiltered(body.SQL)
	filterKeys := 0
	if body.Filter != nil {
		request = query.Filtered(body.SQL, *body.Filter, body.KeyColumn)
		filterKeys = len(query.NormalizeKeys(*body.Filter))
	}
	request.RowLimit = effectiveRowLimit(body.RowLimit, cfg.Query.MaxRows)

	ctx := r.Context()
	if cfg.Query.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Query.Timeout)
		defer cancel()
	}

	result, err := deps.QueryEngine.Run(ctx, deps.DataSource, request)
	if err != nil {
		handleQueryError(deps.Logger, r, w, err)
		return
	}

	columns := result.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := result.Rows
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Columns: columns,
		Rows:    rows,
		Stats: map[string]any{
			"duration_ms": result.Duration.Milliseconds(),
			"row_count":   len(rows),
			"filter_keys": filterKeys,
		},
	})
}

// effectiveRowLimit caps requested by maxRows; zero means unlimited for both.
func effectiveRowLimit(requested, maxRows int) int {
	if maxRows <= 0 {
		return requested
	}
	if requested <= 0 || requested > maxRows {
		return maxRows
	}
	return requested
}

func handleQueryError(logger *slog.Logger, r *http.Request, w http.ResponseWriter, err error) {
	details := map[string]any{"details": err.Error()}
	var dsErr *datasource.Error
	if errors.As(err, &dsErr) {
		details["phase"] = string(dsErr.Phase)
		if dsErr.Cleanup != nil {
			details["cleanup_error"] = dsErr.Cleanup.Error()
		}
	}

	switch {
	case errors.Is(err, datasource.ErrClosed):
		writeError(r.Context(), w, http.StatusServiceUnavailable, "DATASOURCE_CLOSED", "data source is closed", false, details)
	case errors.Is(err, context.DeadlineExceeded):
		writeError(r.Context(), w, http.StatusGatewayTimeout, "QUERY_TIMEOUT", "query timed out", true, details)
	case errors.Is(err, datasource.ErrQuery):
		if dsErr != nil && dsErr.Phase == datasource.PhaseCleanup && logger != nil {
			logger.ErrorContext(r.Context(), "query left scratch state behind", slog.Any("error", err))
		}
		writeError(r.Context(), w, http.StatusBadRequest, "QUERY_EXECUTION_FAILED", "query execution failed", false, details)
	default:
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL", "query failed", false, details)
	}
}

func isAllowedSQL(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	if strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with") {
		return true
	}
	return false
}
