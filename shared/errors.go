package shared

import (
	"errors"
	"net/http"
	"time"
)

// Error kinds carried by AppError. Handlers and the retry layer branch on
// these instead of matching error message strings.
const (
	ErrKindValidation      = "VALIDATION"
	ErrKindRateLimited     = "RATE_LIMITED"
	ErrKindScorerTransient = "SCORER_TRANSIENT"
	ErrKindScorerMalformed = "SCORER_MALFORMED"
	ErrKindPersistence     = "PERSISTENCE"
	ErrKindNotFound        = "NOT_FOUND"
	ErrKindInternal        = "INTERNAL"
)

type AppError struct {
	StatusCode int         `json:"code"`
	Kind       string      `json:"kind"`
	Message    string      `json:"message"`
	Data       interface{} `json:"data,omitempty"`
	Err        error       `json:"-"`

	// RetryAfter is set for rate-limited errors so callers can distinguish
	// "try again later" from a hard failure.
	RetryAfter time.Duration `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func GetAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func NewValidationError(err error, message string) *AppError {
	return &AppError{
		StatusCode: http.StatusBadRequest,
		Kind:       ErrKindValidation,
		Message:    message,
		Err:        err,
	}
}

func NewBadRequestError(err error, message string) *AppError {
	return NewValidationError(err, message)
}

func NewNotFoundError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusNotFound,
		Kind:       ErrKindNotFound,
		Message:    message,
	}
}

func NewRateLimitError(retryAfter time.Duration) *AppError {
	return &AppError{
		StatusCode: http.StatusTooManyRequests,
		Kind:       ErrKindRateLimited,
		Message:    "Rate limit exceeded. Please try again later.",
		RetryAfter: retryAfter,
		Data:       map[string]interface{}{"retry_after_ms": retryAfter.Milliseconds()},
	}
}

func NewScorerTransientError(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusServiceUnavailable,
		Kind:       ErrKindScorerTransient,
		Message:    "Analysis service temporarily unavailable",
		Err:        err,
	}
}

func NewScorerMalformedError(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusServiceUnavailable,
		Kind:       ErrKindScorerMalformed,
		Message:    "Analysis service returned an unusable response",
		Err:        err,
	}
}

func NewPersistenceError(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Kind:       ErrKindPersistence,
		Message:    "Failed to persist data",
		Err:        err,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		StatusCode: http.StatusInternalServerError,
		Kind:       ErrKindInternal,
		Message:    "Internal Server Error",
		Err:        err,
	}
}

// IsRateLimited reports whether err is a rate-limit rejection.
func IsRateLimited(err error) bool {
	appErr, ok := GetAppError(err)
	return ok && appErr.Kind == ErrKindRateLimited
}

// IsRetryable reports whether err is worth another attempt under backoff.
// Validation and persistence failures are never retried.
func IsRetryable(err error) bool {
	appErr, ok := GetAppError(err)
	if !ok {
		// Untyped errors from the network layer are treated as transient.
		return true
	}
	switch appErr.Kind {
	case ErrKindScorerTransient, ErrKindScorerMalformed:
		return true
	default:
		return false
	}
}
