package apperror

// Kind classifies an error for callers that need more than the HTTP status.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindUnauthenticated Kind = "unauthenticated"
	KindAuthMismatch    Kind = "auth_mismatch"
	KindConflict        Kind = "conflict"
	KindResourceState   Kind = "resource_state"
	KindInfrastructure  Kind = "infrastructure"
	KindPartialFailure  Kind = "partial_failure"
)

// AppError is a custom error type that includes an HTTP status code and an optional internal error code.
type AppError struct {
	Code    int    // HTTP Status Code (e.g., 400, 404)
	Kind    Kind   // Taxonomy bucket, rendered to clients
	Message string // User-facing error message
	Err     error  // The underlying error, if any (not exposed to user)
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports sentinel equality by identity of the top-level AppError, so that a
// wrapped copy produced by Wrap still matches the sentinel it was derived from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e == t || (e.Code == t.Code && e.Kind == t.Kind && e.Message == t.Message)
}

// New creates a new AppError with a status code, kind and message.
func New(code int, kind Kind, message string) *AppError {
	return &AppError{
		Code:    code,
		Kind:    kind,
		Message: message,
	}
}

// Wrap creates a new AppError from a sentinel, keeping the underlying error for logs.
func Wrap(err error, base *AppError) *AppError {
	return &AppError{
		Code:    base.Code,
		Kind:    base.Kind,
		Message: base.Message,
		Err:     err,
	}
}
