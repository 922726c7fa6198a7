package xstation

import (
	"errors"
	"fmt"
)

// ErrNetwork wraps transport failures: the backend was not reached or the
// response could not be read.
var ErrNetwork = errors.New("network error")

// DefaultErrorMessage is used when the backend reports a failure without a message.
const DefaultErrorMessage = "request failed"

// APIError is a logical failure reported by the backend envelope.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xstation api: %s (http %d)", e.Message, e.StatusCode)
}

// UserMessage returns the text suitable for showing to staff.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	if errors.Is(err, ErrNetwork) {
		return ErrNetwork.Error()
	}
	if err != nil {
		return DefaultErrorMessage
	}
	return ""
}
