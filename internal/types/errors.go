package types

import "fmt"

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Complete error code constants. All services MUST use these constants
// instead of hardcoded strings.
const (
	// Validation
	ErrCodeValidationEmptyMessage   ErrorCode = "validation_empty_message"
	ErrCodeValidationInvalidRepeat  ErrorCode = "validation_invalid_repeat_interval"
	ErrCodeValidationMissingField   ErrorCode = "validation_missing_required_field"

	// Not Found
	ErrCodeNotFoundReminder ErrorCode = "not_found_reminder"
	ErrCodeNotFoundUser     ErrorCode = "not_found_user"
	ErrCodeNotFoundTemplate ErrorCode = "not_found_template"

	// Internal/Upstream
	ErrCodeInternalDB         ErrorCode = "internal_database_error"
	ErrCodeInternalCache      ErrorCode = "internal_cache_error"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
	ErrCodeUpstreamTelegram   ErrorCode = "upstream_telegram_unavailable"
)

// AppError is the standard application error type used throughout the
// platform. All domain errors should be expressed as AppError to enable
// consistent error formatting, categorization, and error chain support.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]any
}

// Error implements the error interface.
func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given code, message, and
// optional underlying error. This is the standard constructor for domain
// errors.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}
