package iam

import (
	"errors"
	"fmt"
)

// ErrNotAuthenticated is returned when an authenticated request is attempted
// with no signed-in principal. It indicates a bug in the caller.
var ErrNotAuthenticated = errors.New("not authenticated")

// APIError is a backend failure carrying a user-facing message.
type APIError struct {
	Op         string // e.g. "list admin/projects"
	StatusCode int    // 0 when the request never got a response
	Message    string
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Identity provider error codes.
const (
	CodeRequiresRecentLogin = "auth/requires-recent-login"
	CodeInvalidCredential   = "auth/invalid-credential"
	CodeEmailExists         = "auth/email-already-in-use"
	CodeUserNotFound        = "auth/user-not-found"
	CodeTooManyRequests     = "auth/too-many-requests"
	CodeUserDisabled        = "auth/user-disabled"
	CodeWeakPassword        = "auth/weak-password"
	CodeTokenExpired        = "auth/user-token-expired"
	CodeNetwork             = "auth/network-request-failed"
	CodeInternal            = "auth/internal-error"
)

// IdentityError is an identity provider failure with a stable code.
type IdentityError struct {
	Code    string
	Message string
}

func (e *IdentityError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IdentityErrorCode returns the code of an *IdentityError in err's chain, or "".
func IdentityErrorCode(err error) string {
	var idErr *IdentityError
	if errors.As(err, &idErr) {
		return idErr.Code
	}
	return ""
}

// IsRequiresRecentLogin reports whether the user must re-authenticate before retrying.
func IsRequiresRecentLogin(err error) bool {
	return IdentityErrorCode(err) == CodeRequiresRecentLogin
}
