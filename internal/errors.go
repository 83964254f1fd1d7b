package internal

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different types of errors
type ErrorType int

const (
	ErrRemoteUnavailable ErrorType = iota
	ErrAuth
	ErrNotFound
	ErrLocalFile
	ErrUserAborted
	ErrCanceled
	ErrInvalidCode
)

// ErrorSeverity represents the severity of an error
type ErrorSeverity int

const (
	SeverityInfo ErrorSeverity = iota
	SeverityWarning
	SeverityError
	SeverityCritical
)

// UptoboxError is the error type returned by the resolver and the transfer layer.
type UptoboxError struct {
	Code       int                    `json:"statusCode"`
	Message    string                 `json:"message"`
	Type       ErrorType              `json:"type"`
	Severity   ErrorSeverity          `json:"severity"`
	URL        string                 `json:"url,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	Err        error                  `json:"-"`
}

// Error implements the error interface
func (e *UptoboxError) Error() string {
	parts := []string{fmt.Sprintf("uptobox error (code: %d, type: %s)", e.Code, e.Type.String())}

	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	return strings.Join(parts, " - ")
}

// Reason returns the bare message, the text a user should see.
func (e *UptoboxError) Reason() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Type.String()
}

// Unwrap exposes the underlying cause
func (e *UptoboxError) Unwrap() error {
	return e.Err
}

// Is matches another *UptoboxError of the same type, so callers can write
// errors.Is(err, &UptoboxError{Type: ErrNotFound}).
func (e *UptoboxError) Is(target error) bool {
	var t *UptoboxError
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// DetailedError returns a detailed error message with all available information
func (e *UptoboxError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s] %s Error", e.Severity.String(), e.Type.String()))

	if e.Code != 0 {
		parts = append(parts, fmt.Sprintf("Code: %d", e.Code))
	}
	if e.Message != "" {
		parts = append(parts, fmt.Sprintf("Message: %s", e.Message))
	}
	if e.Err != nil {
		parts = append(parts, fmt.Sprintf("Cause: %v", e.Err))
	}

	// URLs carry the token as a query parameter
	if e.URL != "" {
		parts = append(parts, fmt.Sprintf("URL: %s", redactSensitiveURL(e.URL)))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// String returns the string representation of ErrorType
func (et ErrorType) String() string {
	switch et {
	case ErrRemoteUnavailable:
		return "RemoteUnavailable"
	case ErrAuth:
		return "AuthError"
	case ErrNotFound:
		return "NotFound"
	case ErrLocalFile:
		return "LocalFileError"
	case ErrUserAborted:
		return "UserAborted"
	case ErrCanceled:
		return "Canceled"
	case ErrInvalidCode:
		return "InvalidCode"
	default:
		return "Unknown"
	}
}

// String returns the string representation of ErrorSeverity
func (es ErrorSeverity) String() string {
	switch es {
	case SeverityInfo:
		return "INFO"
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// NewUptoboxError creates a new UptoboxError with default severity and suggestion
func NewUptoboxError(code int, message string, errorType ErrorType) *UptoboxError {
	return &UptoboxError{
		Code:       code,
		Message:    message,
		Type:       errorType,
		Severity:   getDefaultSeverity(errorType),
		Suggestion: getDefaultSuggestion(errorType),
		Context:    make(map[string]interface{}),
	}
}

// WithSuggestion adds a custom suggestion to the error
func (e *UptoboxError) WithSuggestion(suggestion string) *UptoboxError {
	e.Suggestion = suggestion
	return e
}

// WithURL adds URL context to the error (will be redacted in logs)
func (e *UptoboxError) WithURL(url string) *UptoboxError {
	e.URL = url
	return e
}

// WithCause records the underlying error
func (e *UptoboxError) WithCause(err error) *UptoboxError {
	e.Err = err
	return e
}

// WithContext adds context information to the error
func (e *UptoboxError) WithContext(key string, value interface{}) *UptoboxError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// IsCritical returns true if the error is critical and should stop execution
func (e *UptoboxError) IsCritical() bool {
	return e.Severity == SeverityCritical
}

// IsType reports whether err is, or wraps, an UptoboxError of the given type.
func IsType(err error, errorType ErrorType) bool {
	var ue *UptoboxError
	if !errors.As(err, &ue) {
		return false
	}
	return ue.Type == errorType
}

// ValidationError represents input validation errors
type ValidationError struct {
	Field      string                 `json:"field"`
	Message    string                 `json:"message"`
	Value      interface{}            `json:"value,omitempty"`
	Suggestion string                 `json:"suggestion,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	parts := []string{fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("Suggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, " - ")
}

// DetailedError returns a detailed validation error message
func (e *ValidationError) DetailedError() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Validation Error for field '%s'", e.Field))
	parts = append(parts, fmt.Sprintf("Message: %s", e.Message))

	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("Provided value: %v", e.Value))
	}

	if len(e.Context) > 0 {
		contextParts := make([]string, 0, len(e.Context))
		for k, v := range e.Context {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", k, v))
		}
		parts = append(parts, fmt.Sprintf("Context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Suggestion != "" {
		parts = append(parts, fmt.Sprintf("\nSuggestion: %s", e.Suggestion))
	}

	return strings.Join(parts, "\n")
}

// NewValidationError creates a new ValidationError
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewValidationErrorWithValue creates a ValidationError with the invalid value
func NewValidationErrorWithValue(field, message string, value interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
		Value:   value,
		Context: make(map[string]interface{}),
	}
}

// WithSuggestion adds a suggestion to the validation error
func (e *ValidationError) WithSuggestion(suggestion string) *ValidationError {
	e.Suggestion = suggestion
	return e
}

// WithContext adds context to the validation error
func (e *ValidationError) WithContext(key string, value interface{}) *ValidationError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func getDefaultSuggestion(errorType ErrorType) string {
	switch errorType {
	case ErrRemoteUnavailable:
		return "The Uptobox API did not answer as expected. Check your connection and try again later"
	case ErrAuth:
		return "Check your token (https://uptobox.com/my_account) and pass it with --token or UPTOFETCH_TOKEN"
	case ErrNotFound:
		return "Verify the file code is correct and the file hasn't been removed"
	case ErrLocalFile:
		return "Check that the path exists and is readable"
	case ErrUserAborted:
		return "Run the command again and accept the wait, or use a premium account"
	case ErrCanceled:
		return ""
	case ErrInvalidCode:
		return "Provide a bare file code or a link like https://uptobox.com/abc123"
	default:
		return "Please check the error details and try again"
	}
}

func getDefaultSeverity(errorType ErrorType) ErrorSeverity {
	switch errorType {
	case ErrUserAborted, ErrCanceled:
		return SeverityInfo
	case ErrRemoteUnavailable:
		return SeverityWarning
	case ErrAuth:
		return SeverityCritical
	default:
		return SeverityError
	}
}

// redactSensitiveURL redacts sensitive information from URLs
func redactSensitiveURL(url string) string {
	if strings.Contains(url, "?") {
		parts := strings.Split(url, "?")
		return parts[0] + "?[REDACTED]"
	}
	return url
}

// Common error constructors

// NewRemoteUnavailableError reports a transport failure or a protocol violation
func NewRemoteUnavailableError(message string, cause error) *UptoboxError {
	return NewUptoboxError(0, message, ErrRemoteUnavailable).WithCause(cause)
}

// NewAuthError reports a rejected credential
func NewAuthError(code int, message string) *UptoboxError {
	return NewUptoboxError(code, message, ErrAuth)
}

// NewNotFoundError reports a file code unknown to the service
func NewNotFoundError(code string) *UptoboxError {
	return NewUptoboxError(404, fmt.Sprintf("file %q not found", code), ErrNotFound).
		WithContext("file_code", code)
}

// NewLocalFileError reports a path that cannot be used
func NewLocalFileError(path string, message string, cause error) *UptoboxError {
	return NewUptoboxError(0, message, ErrLocalFile).
		WithCause(cause).
		WithContext("path", path)
}

// NewUserAbortedError reports a declined rate-limit wait
func NewUserAbortedError(waitSeconds int) *UptoboxError {
	return NewUptoboxError(0, "wait declined, operation aborted", ErrUserAborted).
		WithContext("wait_seconds", waitSeconds)
}

// NewCanceledError reports a caller-initiated cancellation
func NewCanceledError(message string) *UptoboxError {
	if message == "" {
		message = "Process Canceled!"
	}
	return NewUptoboxError(0, message, ErrCanceled)
}

// NewInvalidCodeError reports a share code that cannot be normalized
func NewInvalidCodeError(input string) *UptoboxError {
	return NewUptoboxError(400, fmt.Sprintf("invalid file code: %q", input), ErrInvalidCode)
}
