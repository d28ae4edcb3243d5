package auth

import "errors"

// Sentinel errors for auth operations. Typed errors below match one of
// these with errors.Is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrLastAdmin          = errors.New("would remove the last active admin")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUnauthorized       = errors.New("not authenticated")
	ErrForbidden          = errors.New("insufficient permissions")
	ErrSelfModification   = errors.New("cannot modify own account in this way")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrSessionNotFound    = errors.New("session not found")
)

// Validation error codes.
const (
	CodeUsernameLength  = "username_length"
	CodeUsernameCharset = "username_charset"
	CodeUsernameTaken   = "username_taken"
	CodePasswordLength  = "password_length"
	CodeRoleInvalid     = "role_invalid"
	CodeUnknownField    = "unknown_field"
	CodeFieldType       = "field_type"
	CodeEmptyPatch      = "empty_patch"
	CodeNotFound        = "not_found"
	CodeLastAdmin       = "last_admin"
)

// ValidationError is a user-correctable input problem. The message is safe
// to show to the operator.
type ValidationError struct {
	Field   string
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// InvariantError rejects a mutation that would leave no active admin.
type InvariantError struct {
	Code    string
	Message string
}

func (e *InvariantError) Error() string {
	return e.Message
}

// Is matches ErrLastAdmin.
func (e *InvariantError) Is(target error) bool {
	return target == ErrLastAdmin
}

func errLastAdmin() error {
	return &InvariantError{
		Code:    CodeLastAdmin,
		Message: "cannot deactivate, demote or delete the last active admin",
	}
}
