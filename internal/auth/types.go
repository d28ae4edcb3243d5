package auth

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// Username constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30

	// MinPasswordLength counts characters, not bytes.
	MinPasswordLength = 8
	// maxPasswordLength bounds hashing cost for hostile input, in bytes.
	maxPasswordLength = 1024
)

var usernameCharset = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// SystemActor is recorded as createdBy and as the acting user for
// mutations that have no human actor.
const SystemActor = "system"

// SetupActor is recorded for accounts created by gallery-admin setup.
const SetupActor = "setup-script"

// timeLayout sorts lexically in the TEXT columns.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Role is an authorisation tier.
type Role string

const (
	// RoleUser can browse and view media.
	RoleUser Role = "user"

	// RoleUploader is a user who can also create folders and upload media.
	RoleUploader Role = "uploader"

	// RoleAdmin has every uploader capability plus user management and the audit log.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of assignable roles.
var ValidRoles = []Role{RoleAdmin, RoleUploader, RoleUser}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is an account as seen outside the store. The password hash never
// leaves the store, so it has no field here.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	DisplayName string     `json:"displayName"`
	Role        Role       `json:"role"`
	IsActive    bool       `json:"isActive"`
	CreatedBy   string     `json:"createdBy"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLogin   *time.Time `json:"lastLogin,omitempty"`
}

// IsActiveAdmin reports whether u counts toward the last-admin invariant.
func (u *User) IsActiveAdmin() bool {
	return u.IsActive && u.Role == RoleAdmin
}

// NewUser holds the inputs of CreateUser.
type NewUser struct {
	Username    string
	Password    string
	Role        Role
	DisplayName string // defaults to Username
}

// NormalizeUsername trims and lowercases a username for storage and lookup.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername checks length and charset.
func ValidateUsername(username string) error {
	if len(username) < MinUsernameLength || len(username) > MaxUsernameLength {
		return &ValidationError{
			Field:   "username",
			Code:    CodeUsernameLength,
			Message: "username must be between 3 and 30 characters",
		}
	}
	if !usernameCharset.MatchString(username) {
		return &ValidationError{
			Field:   "username",
			Code:    CodeUsernameCharset,
			Message: "username may only contain letters, numbers, dots, hyphens and underscores",
		}
	}
	return nil
}

// ValidatePassword checks the length bounds of a new password.
func ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{
			Field:   "password",
			Code:    CodePasswordLength,
			Message: "password must be at least 8 characters",
		}
	}
	if len(password) > maxPasswordLength {
		return &ValidationError{
			Field:   "password",
			Code:    CodePasswordLength,
			Message: "password is too long",
		}
	}
	return nil
}

// ValidateRole checks that r is assignable.
func ValidateRole(r Role) error {
	if !IsValidRole(r) {
		return &ValidationError{
			Field:   "role",
			Code:    CodeRoleInvalid,
			Message: "role must be one of admin, uploader, user",
		}
	}
	return nil
}
