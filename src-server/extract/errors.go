package extract

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var ErrEmptyResponse = errors.New("received empty response from API")

// APIError is a permanent failure, such as a rejected API key. It is never
// retried.
type APIError struct {
	Message string
	Err     error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// ResponseError means the provider answered but the answer was unusable:
// empty, or not the JSON we asked for.
type ResponseError struct {
	Message string
	Err     error
}

func (e *ResponseError) Error() string {
	return e.Message
}

func (e *ResponseError) Unwrap() error {
	return e.Err
}

// StatusError is a non-2xx reply from a provider. Status and Reason carry the
// provider's own error codes, e.g. "UNAVAILABLE" and "API_KEY_INVALID".
type StatusError struct {
	Code    int
	Status  string
	Message string
	Reason  string
}

func (e *StatusError) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d %s", e.Code, http.StatusText(e.Code)))
	if e.Status != "" {
		sb.WriteString(": ")
		sb.WriteString(strings.ReplaceAll(e.Status, "_", " "))
	}
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Reason != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Reason)
		sb.WriteString(")")
	}
	return sb.String()
}

type RetryExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("failed after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.LastErr
}

// ImageError rejects an image before anything is sent to the provider.
type ImageError struct {
	Name   string
	Reason string
	Err    error
}

func (e *ImageError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("image %q: %s: %v", e.Name, e.Reason, e.Err)
	}
	return fmt.Sprintf("image %q: %s", e.Name, e.Reason)
}

func (e *ImageError) Unwrap() error {
	return e.Err
}
