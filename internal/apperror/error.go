package apperror

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// AppError is the structured error returned across package boundaries.
type AppError struct {
	Code       Code      `json:"code"`
	Message    string    `json:"message"`
	StatusCode int       `json:"statusCode"`
	Context    string    `json:"context,omitempty"`
	TraceID    string    `json:"traceId,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Code))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Context != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Context)
		sb.WriteString(")")
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap implements the errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.cause
}

// Is matches any *AppError carrying the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithTraceID sets the trace ID for distributed tracing
func (e *AppError) WithTraceID(traceID string) *AppError {
	e.TraceID = traceID
	return e
}

// ToResponse serializes the error for an HTTP body.
func (e *AppError) ToResponse() map[string]any {
	body := map[string]any{
		"code":      e.Code,
		"message":   e.Message,
		"timestamp": e.Timestamp.Format(time.RFC3339),
	}
	if e.Context != "" {
		body["context"] = e.Context
	}
	if e.TraceID != "" {
		body["traceId"] = e.TraceID
	}
	return map[string]any{"error": body}
}

// New creates a new AppError with the given code and options
func New(code Code, opts ...Option) *AppError {
	err := &AppError{
		Code:       code,
		Message:    messages[code],
		StatusCode: getDefaultStatusCode(code),
		Timestamp:  time.Now(),
	}

	for _, opt := range opts {
		opt(err)
	}

	if err.Message == "" {
		err.Message = string(code)
	}

	return err
}

// Option is a functional option for AppError
type Option func(*AppError)

// WithContext adds context information
func WithContext(context string) Option {
	return func(e *AppError) {
		e.Context = context
	}
}

// WithStatusCode sets a custom HTTP status code
func WithStatusCode(statusCode int) Option {
	return func(e *AppError) {
		e.StatusCode = statusCode
	}
}

// WithCause wraps an underlying error
func WithCause(cause error) Option {
	return func(e *AppError) {
		e.cause = cause
	}
}

// Validation creates a 400 error.
func Validation(code Code, context string) *AppError {
	return New(code, WithContext(context), WithStatusCode(http.StatusBadRequest))
}

// IsAppError checks if an error is an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// GetCode extracts the error code from an error
func GetCode(err error) Code {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknownError
}

// HasCode reports whether err carries code anywhere in its chain.
func HasCode(err error, code Code) bool {
	return errors.Is(err, &AppError{Code: code})
}

// IsHard reports whether err must abort a top-level call instead of degrading to a zero quote.
func IsHard(err error) bool {
	switch GetCode(err) {
	case CodeStaleFeed, CodeSlippageExceeded, CodeUnauthorizedOperator,
		CodeInvalidSlippage, CodeInvalidTolerance, CodeInvalidInput:
		return true
	default:
		return false
	}
}

// StatusCode returns the HTTP status for err, 500 for foreign errors.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

func getDefaultStatusCode(code Code) int {
	switch code {
	case CodeStaleFeed:
		return http.StatusServiceUnavailable
	case CodeSlippageExceeded:
		return http.StatusUnprocessableEntity
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	}

	switch s := string(code); {
	case strings.Contains(s, "UNAUTHORIZED"):
		return http.StatusUnauthorized
	case strings.Contains(s, "NOT_FOUND"):
		return http.StatusNotFound
	case strings.Contains(s, "INVALID"), strings.Contains(s, "REQUIRED"):
		return http.StatusBadRequest
	case strings.Contains(s, "CONNECTION"), strings.Contains(s, "TIMEOUT"),
		strings.Contains(s, "UNAVAILABLE"), code == CodeCircuitOpen:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
