package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

type Class int

const (
	Retryable Class = iota
	Terminal
)

func (c Class) String() string {
	if c == Terminal {
		return "terminal"
	}
	return "retryable"
}

var (
	nonRetryablePatterns = []string{
		"invalid api key",
		"api_key_invalid",
		"api key expired",
		"permission denied",
		"quota exceeded",
		"invalid argument",
		"authentication",
		"unauthorized",
	}
	retryablePatterns = []string{
		"timeout",
		"deadline exceeded",
		"service unavailable",
		"resource exhausted",
		"connection",
		"network",
		"temporarily unavailable",
	}
	apiKeyPatterns = []string{
		"api key expired",
		"api_key_invalid",
		"invalid api key",
	}
)

// Classify decides whether a failed attempt is worth repeating. Unknown
// errors are retryable.
func Classify(err error) Class {
	class, known := classify(err)
	if !known {
		slog.Debug("unknown error type, defaulting to retry", "type", errorName(err), "error", err)
	}
	return class
}

// classify reports the class of err and whether any known pattern matched.
// Both pattern sets are tried against every error in the unwrap chain.
func classify(err error) (Class, bool) {
	if err == nil {
		return Retryable, true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return Terminal, true
	}
	if chainMatches(err, nonRetryablePatterns) {
		return Terminal, true
	}
	if chainMatches(err, retryablePatterns) {
		return Retryable, true
	}
	return Retryable, false
}

// IsAPIKeyError reports whether the error message looks like a rejected or
// expired API key.
func IsAPIKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, pattern := range apiKeyPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

func wrapAPIKeyError(err error, maskedKey string) *APIError {
	msg := "API key is invalid. Please check your Gemini API key."
	if strings.Contains(strings.ToLower(err.Error()), "expired") {
		msg = "API key has expired. Please renew your Gemini API key."
	}
	slog.Error("API key error", "key", maskedKey, "error", err)
	return &APIError{Message: msg, Err: err}
}

func chainMatches(err error, patterns []string) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if matchesAny(e, patterns) {
			return true
		}
	}
	return false
}

func matchesAny(err error, patterns []string) bool {
	msg := strings.ToLower(err.Error())
	typ := strings.ToLower(fmt.Sprintf("%T", err))
	for _, pattern := range patterns {
		if strings.Contains(msg, pattern) || strings.Contains(typ, pattern) {
			return true
		}
	}
	return false
}

// errorName returns the bare type name of the first error in the chain that
// isn't a plain fmt.Errorf wrapper.
func errorName(err error) string {
	for {
		name := fmt.Sprintf("%T", err)
		next := errors.Unwrap(err)
		if next == nil || (name != "*fmt.wrapError" && name != "*fmt.wrapErrors") {
			name = strings.TrimLeft(name, "*")
			if i := strings.LastIndex(name, "."); i >= 0 {
				name = name[i+1:]
			}
			return name
		}
		err = next
	}
}
