package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthenticated indicates no identity is attached to the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnauthorized indicates the identity may not perform the write.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrUpstream indicates a persistence or identity collaborator failed.
	ErrUpstream = errors.New("external collaborator failure")
	// ErrDuplicate indicates a unique constraint was violated.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
	// ErrLockHeld occurs when another writer holds the tenant lease.
	ErrLockHeld = errors.New("tenant lock held by another writer")
)

// UserSafeMessage returns a message that can be shown to the end user.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound):
		return err.Error()
	case errors.Is(err, ErrUnauthorized):
		return "Your subscription does not allow this change."
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in again."
	case errors.Is(err, ErrLockHeld):
		return "Another save is in progress, try again shortly."
	case errors.Is(err, ErrUpstream):
		return "The storage service is unavailable, nothing was changed."
	default:
		return "Unexpected error."
	}
}
