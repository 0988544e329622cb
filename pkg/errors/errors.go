// Package errors defines the sentinel errors surfaced by the search engine and
// an AppError wrapper that carries a human-readable detail and an HTTP status.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidRecord      = errors.New("invalid record")
	ErrEmptyCorpus        = errors.New("empty corpus")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrRebuildInProgress  = errors.New("rebuild in progress")
	ErrTimeout            = errors.New("operation timed out")
	ErrGenerationNotFound = errors.New("generation not found")
	ErrRecordNotFound     = errors.New("record not found")
	ErrNotReady           = errors.New("no generation ready")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// InvalidRecordf builds an ErrInvalidRecord with a formatted detail.
func InvalidRecordf(format string, args ...any) *AppError {
	return Newf(ErrInvalidRecord, http.StatusBadRequest, format, args...)
}

// InvalidQueryf builds an ErrInvalidQuery with a formatted detail.
func InvalidQueryf(format string, args ...any) *AppError {
	return Newf(ErrInvalidQuery, http.StatusBadRequest, format, args...)
}

// IsRetryable reports whether err is transient: the caller may retry after a
// backoff or with a larger deadline.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRebuildInProgress) || errors.Is(err, ErrTimeout)
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrGenerationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRebuildInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidQuery), errors.Is(err, ErrInvalidRecord), errors.Is(err, ErrEmptyCorpus):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrNotReady):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
