package llm

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/c360studio/semstreams/pkg/retry"
)

// ErrMissingAPIKey is returned when an endpoint needs a credential that is not set.
var ErrMissingAPIKey = errors.New("missing API key")

// maxErrorBody caps how much of a failed response body is kept in errors.
const maxErrorBody = 200

// StatusError is a non-200 reply from a model endpoint.
type StatusError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint %s returned status %d: %s", e.Endpoint, e.StatusCode, e.Body)
}

// Retryable reports whether the same endpoint may succeed if asked again.
// Rate limits and server errors qualify; auth and request errors do not.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// newStatusError builds the error for a failed reply. Errors that are not
// retryable are marked so retry.Do stops at once.
func newStatusError(endpoint string, statusCode int, body []byte) error {
	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	err := &StatusError{Endpoint: endpoint, StatusCode: statusCode, Body: text}
	if err.Retryable() {
		return err
	}
	return retry.NonRetryable(err)
}

// fatal marks err so that neither retries nor fallback endpoints are tried.
func fatal(err error) error {
	return retry.NonRetryable(err)
}

// IsFatal reports whether err ended the completion without trying further
// endpoints.
func IsFatal(err error) bool {
	return retry.IsNonRetryable(err)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}
