package screenshot

import "errors"

// Error codes attached to step results and logs
const (
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeProjectNotFound      = "PROJECT_NOT_FOUND"
	CodePermissionDenied     = "PERMISSION_DENIED"
	CodeExternalServiceError = "EXTERNAL_SERVICE_ERROR"
	CodeInternalError        = "INTERNAL_ERROR"
)

var (
	// ErrValidationFailed is returned when required message fields are
	// missing or malformed
	ErrValidationFailed = errors.New("screenshot message validation failed")

	// ErrProjectNotFound is returned when the target project does not exist
	ErrProjectNotFound = errors.New("project not found")

	// ErrPermissionDenied is returned when the project exists but belongs
	// to a different organization
	ErrPermissionDenied = errors.New("project does not belong to the requesting organization")

	// ErrExternalService is returned when the browser-rendering API or CDN
	// responds with a failure
	ErrExternalService = errors.New("external service error")
)

// RetryableError wraps transient failures that should be redelivered
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError wraps err as retryable
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err should trigger a redelivery
func IsRetryable(err error) bool {
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// CodeForError maps a pipeline error to its taxonomy code
func CodeForError(err error) string {
	switch {
	case errors.Is(err, ErrValidationFailed):
		return CodeValidationFailed
	case errors.Is(err, ErrProjectNotFound):
		return CodeProjectNotFound
	case errors.Is(err, ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, ErrExternalService):
		return CodeExternalServiceError
	default:
		return CodeInternalError
	}
}
