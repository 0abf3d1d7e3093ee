// Package handlers contains the audit API's HTTP handlers.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/bargom/hivemind/internal/api/types"
)

func respondJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Default().Debug("writing response failed", "error", err)
		}
	}
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, types.ErrorResponse{Error: message})
}

// paginationParams reads limit and offset, clamping limit to DefaultMaxLimit.
func paginationParams(r *http.Request) (limit, offset int) {
	limit = types.DefaultLimit

	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = min(parsed, types.DefaultMaxLimit)
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
