package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/habitquest/platform/internal/domain"
)

const maxBodyBytes = 1 << 20

// ErrorBody is the JSON shape of every error response. Retryable tells the
// client it may resend the same event unchanged.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// retryableCodes are the failures a client can clear by resending later:
// the rate window moving on, or a concurrent writer finishing.
var retryableCodes = map[string]bool{
	"RATE_LIMITED": true,
	"CONFLICT":     true,
}

// RespondJSON writes a JSON response with the given status code.
func RespondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// RespondError writes err as an ErrorBody. A domain.AppError anywhere in the
// chain sets the status; anything else is a 500 with a generic message.
func RespondError(w http.ResponseWriter, err error) {
	body := ErrorBody{
		Code:      "INTERNAL_ERROR",
		Message:   "internal server error",
		RequestID: w.Header().Get("X-Request-ID"),
	}
	status := http.StatusInternalServerError

	var appErr *domain.AppError
	if errors.As(err, &appErr) && appErr.Status < 500 {
		body.Code, body.Message = appErr.Code, appErr.Message
		body.Retryable = retryableCodes[appErr.Code]
		status = appErr.Status
	}
	RespondJSON(w, status, body)
}

// DecodeJSON reads a request body of at most 1 MiB into dst. Failures are
// returned as validation errors that say what was wrong with the body.
func DecodeJSON(r *http.Request, dst interface{}) error {
	err := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes)).Decode(dst)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return domain.ErrValidation("request body exceeds 1 MiB")
	case errors.Is(err, io.EOF):
		return domain.ErrValidation("request body is empty")
	default:
		return domain.ErrValidation("request body is not valid JSON")
	}
}
