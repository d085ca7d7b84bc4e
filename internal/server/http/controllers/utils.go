package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/rzbill/strata/internal/controller"
	"github.com/rzbill/strata/internal/protocol"
	"github.com/rzbill/strata/internal/stream"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// writeNoContent writes a 204 No Content response.
func writeNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// writeServiceError maps err onto a status code. Throttled requests also get
// a Retry-After header in whole seconds.
func writeServiceError(w http.ResponseWriter, err error) {
	var te *controller.ThrottleError
	if errors.As(err, &te) {
		secs := int(te.RetryAfter.Seconds())
		if secs < 1 {
			secs = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeError(w, statusFor(err), err.Error())
}

func statusFor(err error) int {
	if errors.Is(err, stream.ErrOffsetOutOfRange) {
		return http.StatusRequestedRangeNotSatisfiable
	}
	if errors.Is(err, stream.ErrReadOnly) {
		return http.StatusForbidden
	}
	switch protocol.CodeOf(err) {
	case protocol.CodeInvalidRequest, protocol.CodeUnsupportedVersion:
		return http.StatusBadRequest
	case protocol.CodeResourceNotFound:
		return http.StatusNotFound
	case protocol.CodeFencedEpoch:
		return http.StatusConflict
	case protocol.CodeThrottlingQuotaExceeded:
		return http.StatusTooManyRequests
	case protocol.CodeRequestTimedOut:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// parseInt64 parses an optional integer query value. Empty means def.
func parseInt64(s string, def int64) (int64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseInt(s, 10, 64)
}

// parseLimit parses a limit string and returns a valid limit value.
//
// Returns 0 for empty strings or invalid values.
func parseLimit(limitStr string) int {
	if limitStr == "" {
		return 0
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}
