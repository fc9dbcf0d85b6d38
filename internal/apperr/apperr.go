// Package apperr defines the error kinds the service classifies failures
// into, and their mapping onto HTTP status codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrInvalidInput marks a request rejected before any upstream call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAsrUnavailable means both remote and local transcription failed.
	ErrAsrUnavailable = errors.New("asr unavailable")

	// ErrTranslationFailed means the translation retry budget was exhausted.
	ErrTranslationFailed = errors.New("translation failed")

	// ErrUpstream marks a non-2xx or malformed response from a third-party API.
	ErrUpstream = errors.New("upstream service error")

	// ErrConfigurationMissing means a credential or endpoint required by the
	// requested feature is not configured.
	ErrConfigurationMissing = errors.New("configuration missing")

	// ErrNotFound marks a missing document or resource.
	ErrNotFound = errors.New("not found")
)

// Wrap attaches a kind to a concrete error so callers can classify it with
// errors.Is while still unwrapping the cause.
func Wrap(kind error, err error) error {
	if err == nil {
		return kind
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// Wrapf attaches a kind with a formatted message.
func Wrapf(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}

// HTTPStatusCode maps an error kind to the response status.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUpstream):
		return http.StatusBadGateway
	case errors.Is(err, ErrConfigurationMissing):
		return http.StatusNotImplemented
	case errors.Is(err, ErrAsrUnavailable), errors.Is(err, ErrTranslationFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
