package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

// JSON writes v with the given status.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func Error(w http.ResponseWriter, status int, msg string) {
	JSON(w, status, map[string]string{"error": msg})
}

func NotFound(w http.ResponseWriter, msg string) {
	Error(w, http.StatusNotFound, msg)
}

func BadRequest(w http.ResponseWriter, msg string) {
	Error(w, http.StatusBadRequest, msg)
}

func Forbidden(w http.ResponseWriter, msg string) {
	Error(w, http.StatusForbidden, msg)
}

func Unauthorized(w http.ResponseWriter, msg string) {
	Error(w, http.StatusUnauthorized, msg)
}

// ValidationFailed reports per-field messages with a 422.
func ValidationFailed(w http.ResponseWriter, fields map[string]string) {
	JSON(w, http.StatusUnprocessableEntity, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

// TooManyRequests emits the 429 contract used by the rate limiter.
func TooManyRequests(w http.ResponseWriter, retryAfter int) {
	JSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": retryAfter,
	})
}

// Internal logs the failure with context and hides the details from the
// caller.
func Internal(w http.ResponseWriter, code string, err error, fields logrus.Fields) {
	logrus.WithError(err).WithFields(fields).Error(code)
	Error(w, http.StatusInternalServerError, "internal server error")
}
