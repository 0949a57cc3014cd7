package soptrack

import (
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeTokenInvalid       = "TOKEN_INVALID"
	textCodeAccountDisabled    = "ACCOUNT_DISABLED"
	textCodeInsufficientRole   = "INSUFFICIENT_ROLE"
	textCodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
	textCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	textCodeSelfDelete         = "SELF_DELETE_FORBIDDEN"
	textCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrInvalidCredentials is returned for any failed login: unknown
// identifier and wrong password are deliberately indistinguishable.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenInvalid is the single signal for every bearer token failure.
// Tampered, malformed, and expired tokens all collapse into this value so
// callers cannot distinguish why verification failed.
var ErrTokenInvalid = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(textCodeTokenInvalid).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountDisabled is returned when a known identity is inactive.
var ErrAccountDisabled = goerrors.New("account is disabled", goerrors.CategoryAuthz).
	WithTextCode(textCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrForbidden is returned when an active identity lacks the required role.
var ErrForbidden = goerrors.New("insufficient role", goerrors.CategoryAuthz).
	WithTextCode(textCodeInsufficientRole).
	WithCode(goerrors.CodeForbidden)

// ErrDuplicateAccount is returned when a username or email collides with
// an existing account. The collision is detected by the storage layer's
// unique indexes, not by a lookup that races the write.
var ErrDuplicateAccount = goerrors.New("username or email already registered", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicateAccount).
	WithCode(goerrors.CodeConflict)

// ErrAccountNotFound covers missing accounts; malformed account ids fold
// into the same signal.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(textCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrSelfDelete is returned when an admin attempts to delete their own account.
var ErrSelfDelete = goerrors.New("cannot delete your own account", goerrors.CategoryAuthz).
	WithTextCode(textCodeSelfDelete).
	WithCode(goerrors.CodeForbidden)

// ErrTooManyLoginAttempts is returned while an account is inside its
// login cooldown window.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryAuth).
	WithTextCode(textCodeTooManyAttempts).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty plaintext passwords before hashing.
var ErrNoEmptyString = goerrors.New("value must not be empty", goerrors.CategoryValidation).
	WithCode(goerrors.CodeBadRequest)

// ErrMismatchedHashAndPassword is the single verification failure signal:
// a wrong password and a malformed stored digest look the same to callers.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// StatusCode resolves any error to its HTTP status code. Rich errors
// carry their code; everything else is an opaque internal failure.
func StatusCode(err error) int {
	if err == nil {
		return goerrors.CodeInternal
	}

	var richErr *goerrors.Error
	if errors.As(err, &richErr) && richErr.Code > 0 {
		return richErr.Code
	}

	return goerrors.CodeInternal
}

// WrapInternal hides storage and other unexpected failures behind an
// opaque internal error. The cause stays in the chain for logging and
// never reaches a response body.
func WrapInternal(err error, msg string) error {
	var richErr *goerrors.Error
	if errors.As(err, &richErr) {
		return richErr
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}

// IsUniqueViolation reports whether err is a storage-level unique
// constraint failure. Matched by message since drivers do not expose a
// shared structured error for it.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint") ||
		strings.Contains(msg, "constraint failed: UNIQUE")
}
