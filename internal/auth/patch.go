package auth

import (
	"encoding/json"
	"sort"
)

// UserPatch is a validated partial update. Nil fields are left unchanged.
type UserPatch struct {
	Username    *string
	DisplayName *string
	Role        *Role
	IsActive    *bool
}

// IsEmpty reports whether the patch changes nothing.
func (p UserPatch) IsEmpty() bool {
	return p.Username == nil && p.DisplayName == nil && p.Role == nil && p.IsActive == nil
}

const maxDisplayNameLength = 100

// patchFields is the allow-list of updatable keys. Each entry decodes and
// validates one field into the patch.
var patchFields = map[string]func(raw json.RawMessage, p *UserPatch) error{
	"username": func(raw json.RawMessage, p *UserPatch) error {
		var v string
		if err := decodeField("username", raw, &v); err != nil {
			return err
		}
		v = NormalizeUsername(v)
		if err := ValidateUsername(v); err != nil {
			return err
		}
		p.Username = &v
		return nil
	},
	"displayName": func(raw json.RawMessage, p *UserPatch) error {
		var v string
		if err := decodeField("displayName", raw, &v); err != nil {
			return err
		}
		if len(v) > maxDisplayNameLength {
			return &ValidationError{Field: "displayName", Code: CodeFieldType, Message: "display name is too long"}
		}
		p.DisplayName = &v
		return nil
	},
	"role": func(raw json.RawMessage, p *UserPatch) error {
		var v Role
		if err := decodeField("role", raw, &v); err != nil {
			return err
		}
		if err := ValidateRole(v); err != nil {
			return err
		}
		p.Role = &v
		return nil
	},
	"isActive": func(raw json.RawMessage, p *UserPatch) error {
		var v bool
		if err := decodeField("isActive", raw, &v); err != nil {
			return err
		}
		p.IsActive = &v
		return nil
	},
}

// ParseUserPatch builds a patch from client-supplied JSON fields. Keys
// outside the allow-list are rejected, not ignored.
func ParseUserPatch(fields map[string]json.RawMessage) (UserPatch, error) {
	var p UserPatch

	// Sorted so the first reported error is deterministic.
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		apply, ok := patchFields[k]
		if !ok {
			return UserPatch{}, &ValidationError{Field: k, Code: CodeUnknownField, Message: "field cannot be updated"}
		}
		if err := apply(fields[k], &p); err != nil {
			return UserPatch{}, err
		}
	}

	if p.IsEmpty() {
		return UserPatch{}, &ValidationError{Code: CodeEmptyPatch, Message: "no fields to update"}
	}
	return p, nil
}

func decodeField(name string, raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return &ValidationError{Field: name, Code: CodeFieldType, Message: "value must not be null"}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return &ValidationError{Field: name, Code: CodeFieldType, Message: "value has the wrong type", Err: err}
	}
	return nil
}
