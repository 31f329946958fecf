package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lvillar/pdfstamp"
	"github.com/lvillar/pdfstamp/auth"
	"github.com/lvillar/pdfstamp/store"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message"`
	Meta       *store.Meta `json:"meta,omitempty"`
	Data       any         `json:"data,omitempty"`
}

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)

// encodeWriteJSON writes payload as the response body with status.
func encodeWriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		pdfstamp.Logger().Error("writing JSON response", "error", err)
	}
}

func writeOK(w http.ResponseWriter, msg string, data any, meta *store.Meta) {
	encodeWriteJSON(w, http.StatusOK, envelope{
		Success:    true,
		StatusCode: http.StatusOK,
		Message:    msg,
		Meta:       meta,
		Data:       data,
	})
}

// writeError maps err to a status and writes the error envelope. Internal
// failures are logged and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	switch {
	case status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout:
		pdfstamp.Logger().Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = http.StatusText(status)
	case status == http.StatusForbidden:
		msg = "Unauthorized"
	default:
		pdfstamp.Logger().Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	encodeWriteJSON(w, status, envelope{StatusCode: status, Message: msg})
}

// statusFor translates the error taxonomy to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, pdfstamp.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, store.ErrInvalidQuery),
		errors.Is(err, pdfstamp.ErrInvalidFormat),
		errors.Is(err, pdfstamp.ErrUnsupportedSource),
		errors.Is(err, pdfstamp.ErrFetchFailed):
		return http.StatusBadRequest
	case errors.Is(err, pdfstamp.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// The client is gone; nobody reads this status.
		return 499
	}
	return http.StatusInternalServerError
}
