package auth

import (
	"encoding/json"
	"errors"
	"testing"
)

func rawFields(t *testing.T, body string) map[string]json.RawMessage {
	t.Helper()
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(body), &m); err != nil {
		t.Fatalf("bad test body: %v", err)
	}
	return m
}

func TestParseUserPatch(t *testing.T) {
	p, err := ParseUserPatch(rawFields(t, `{"username":"  Bob.Smith ","displayName":"Bob","role":"uploader","isActive":false}`))
	if err != nil {
		t.Fatalf("ParseUserPatch() error = %v", err)
	}

	if p.Username == nil || *p.Username != "bob.smith" {
		t.Errorf("Username = %v, want normalised bob.smith", p.Username)
	}
	if p.DisplayName == nil || *p.DisplayName != "Bob" {
		t.Errorf("DisplayName = %v", p.DisplayName)
	}
	if p.Role == nil || *p.Role != RoleUploader {
		t.Errorf("Role = %v", p.Role)
	}
	if p.IsActive == nil || *p.IsActive {
		t.Errorf("IsActive = %v, want false", p.IsActive)
	}
}

func TestParseUserPatch_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"unknown field", `{"passwordHash":"x"}`, CodeUnknownField},
		{"unknown alongside known", `{"role":"user","is_admin":true}`, CodeUnknownField},
		{"empty", `{}`, CodeEmptyPatch},
		{"bad role", `{"role":"owner"}`, CodeRoleInvalid},
		{"short username", `{"username":"ab"}`, CodeUsernameLength},
		{"bad charset", `{"username":"bob smith"}`, CodeUsernameCharset},
		{"wrong type", `{"isActive":"yes"}`, CodeFieldType},
		{"null", `{"displayName":null}`, CodeFieldType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUserPatch(rawFields(t, tt.body))
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Code != tt.wantCode {
				t.Errorf("code = %v, want %s", err, tt.wantCode)
			}
		})
	}
}
