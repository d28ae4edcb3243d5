package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/gallery-core/internal/auth"
	"github.com/nerrad567/gallery-core/internal/infrastructure/logging"
)

func TestUsers_CreateAndList(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	admin := e.login(t, "alice")

	w := e.do(t, http.MethodPost, "/api/admin/users", createUserRequest{
		Username: "Bob", Password: testPassword, Role: auth.RoleUploader,
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: status = %d, body = %s", w.Code, w.Body.String())
	}
	var bob auth.User
	if err := json.NewDecoder(w.Body).Decode(&bob); err != nil {
		t.Fatal(err)
	}
	if bob.Username != "bob" || bob.DisplayName != "bob" || bob.Role != auth.RoleUploader || !bob.IsActive {
		t.Errorf("created user = %+v", bob)
	}
	if strings.Contains(w.Body.String(), "password") {
		t.Error("response must not contain password material")
	}

	w = e.do(t, http.MethodPost, "/api/admin/users", createUserRequest{Username: "carol", Password: testPassword}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create without role: status = %d", w.Code)
	}
	var carol auth.User
	json.NewDecoder(w.Body).Decode(&carol) //nolint:errcheck // checked via fields
	if carol.Role != auth.RoleUser {
		t.Errorf("default role = %q, want user", carol.Role)
	}

	w = e.do(t, http.MethodGet, "/api/admin/users", nil, admin)
	var list struct {
		Users []auth.User `json:"users"`
		Count int         `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatal(err)
	}
	if list.Count != 3 || list.Users[0].Username != "carol" {
		t.Errorf("list = %+v", list)
	}
}

func TestUsers_CreateValidation(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	admin := e.login(t, "alice")

	tests := []struct {
		name string
		req  createUserRequest
		code string
	}{
		{"short username", createUserRequest{Username: "ab", Password: testPassword}, auth.CodeUsernameLength},
		{"bad charset", createUserRequest{Username: "bob smith", Password: testPassword}, auth.CodeUsernameCharset},
		{"short password", createUserRequest{Username: "bob", Password: "short"}, auth.CodePasswordLength},
		{"bad role", createUserRequest{Username: "bob", Password: testPassword, Role: "root"}, auth.CodeRoleInvalid},
		{"taken", createUserRequest{Username: "ALICE", Password: testPassword}, auth.CodeUsernameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPost, "/api/admin/users", tt.req, admin)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			if got := decodeError(t, w); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}
}

func TestUsers_RequireAdmin(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	e.createUser(t, "uppy", auth.RoleUploader)
	uploader := e.login(t, "uppy")

	checks := []struct {
		method, target string
		body           any
	}{
		{http.MethodGet, "/api/admin/users", nil},
		{http.MethodPost, "/api/admin/users", createUserRequest{Username: "eve", Password: testPassword}},
		{http.MethodGet, "/api/admin/audit-log", nil},
	}
	for _, c := range checks {
		w := e.do(t, c.method, c.target, c.body, uploader)
		if w.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", c.method, c.target, w.Code)
			continue
		}
		if got := decodeError(t, w); got.Code != ErrCodeForbidden {
			t.Errorf("%s %s: code = %q", c.method, c.target, got.Code)
		}
	}
}

func TestUsers_Update(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	bob := e.createUser(t, "bob", auth.RoleUser)
	admin := e.login(t, "alice")

	w := e.do(t, http.MethodPut, "/api/admin/users/"+bob.ID,
		strings.NewReader(`{"role":"uploader","displayName":"Bob B."}`), admin)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var got auth.User
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Role != auth.RoleUploader || got.DisplayName != "Bob B." {
		t.Errorf("updated = %+v", got)
	}

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"unknown field", `{"passwordHash":"x"}`, http.StatusBadRequest, auth.CodeUnknownField},
		{"empty patch", `{}`, http.StatusBadRequest, auth.CodeEmptyPatch},
		{"wrong type", `{"isActive":"yes"}`, http.StatusBadRequest, auth.CodeFieldType},
		{"malformed", `{`, http.StatusBadRequest, ErrCodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.do(t, http.MethodPut, "/api/admin/users/"+bob.ID, strings.NewReader(tt.body), admin)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if got := decodeError(t, w); got.Code != tt.code {
				t.Errorf("code = %q, want %q", got.Code, tt.code)
			}
		})
	}

	w = e.do(t, http.MethodPut, "/api/admin/users/usr-missing", strings.NewReader(`{"role":"user"}`), admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}
}

func TestUsers_SelfProtection(t *testing.T) {
	e := newTestEnv(t)
	alice := e.createUser(t, "alice", auth.RoleAdmin)
	admin := e.login(t, "alice")

	w := e.do(t, http.MethodDelete, "/api/admin/users/"+alice.ID, nil, admin)
	if w.Code != http.StatusForbidden {
		t.Fatalf("self-delete: status = %d, want 403", w.Code)
	}
	if got := decodeError(t, w); got.Code != ErrCodeSelfModification {
		t.Errorf("self-delete code = %q", got.Code)
	}

	w = e.do(t, http.MethodPut, "/api/admin/users/"+alice.ID, strings.NewReader(`{"role":"user"}`), admin)
	if w.Code != http.StatusForbidden {
		t.Errorf("self-demote: status = %d, want 403", w.Code)
	}

	// Renaming oneself is allowed.
	w = e.do(t, http.MethodPut, "/api/admin/users/"+alice.ID, strings.NewReader(`{"displayName":"Alice"}`), admin)
	if w.Code != http.StatusOK {
		t.Errorf("self-rename: status = %d, want 200", w.Code)
	}
}

func TestUsers_DeleteEndsSession(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	bob := e.createUser(t, "bob", auth.RoleUploader)
	admin := e.login(t, "alice")
	bobCookie := e.login(t, "bob")

	if w := e.do(t, http.MethodDelete, "/api/admin/users/"+bob.ID, nil, admin); w.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", w.Code)
	}
	if w := e.do(t, http.MethodGet, "/api/browse", nil, bobCookie); w.Code != http.StatusUnauthorized {
		t.Errorf("deactivated user's session: status = %d, want 401", w.Code)
	}
	w := e.do(t, http.MethodPost, "/api/login", loginRequest{Username: "bob", Password: testPassword}, nil)
	if got := decodeError(t, w); w.Code != http.StatusUnauthorized || got.Code != ErrCodeInvalidCredentials {
		t.Errorf("deactivated login = %d %+v", w.Code, got)
	}
}

func TestUsers_ResetPassword(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	bob := e.createUser(t, "bob", auth.RoleUser)
	admin := e.login(t, "alice")

	w := e.do(t, http.MethodPost, "/api/admin/users/"+bob.ID+"/reset-password", resetPasswordRequest{NewPassword: "fresh-password"}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if w := e.do(t, http.MethodPost, "/api/login", loginRequest{Username: "bob", Password: "fresh-password"}, nil); w.Code != http.StatusOK {
		t.Errorf("login with reset password: status = %d", w.Code)
	}

	w = e.do(t, http.MethodPost, "/api/admin/users/usr-missing/reset-password", resetPasswordRequest{NewPassword: "fresh-password"}, admin)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", w.Code)
	}
}

func TestAuditLog(t *testing.T) {
	e := newTestEnv(t)
	e.createUser(t, "alice", auth.RoleAdmin)
	admin := e.login(t, "alice")
	e.do(t, http.MethodPost, "/api/admin/users", createUserRequest{Username: "bob", Password: testPassword}, admin)

	w := e.do(t, http.MethodGet, "/api/admin/audit-log?limit=1", nil, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Entries []struct {
			Action         string `json:"action"`
			ActingUsername string `json:"actingUsername"`
			TargetUsername string `json:"targetUsername"`
		} `json:"entries"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Count != 1 || resp.Entries[0].Action != "user_created" ||
		resp.Entries[0].ActingUsername != "alice" || resp.Entries[0].TargetUsername != "bob" {
		t.Errorf("audit log = %+v", resp)
	}

	for _, bad := range []string{"abc", "0", "-3"} {
		if w := e.do(t, http.MethodGet, "/api/admin/audit-log?limit="+bad, nil, admin); w.Code != http.StatusBadRequest {
			t.Errorf("limit=%s: status = %d, want 400", bad, w.Code)
		}
	}
}

func TestWriteServiceError_LastAdmin(t *testing.T) {
	s := &Server{logger: logging.Discard()}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPut, "/api/admin/users/x", nil)
	r.Header.Set("Accept-Language", "de")

	s.writeServiceError(w, r, &auth.InvariantError{Code: auth.CodeLastAdmin, Message: "last admin"})
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
	got := decodeError(t, w)
	if got.Code != ErrCodeLastAdmin || got.Message != messages[ErrCodeLastAdmin][1] {
		t.Errorf("error = %+v", got)
	}
}

func TestWriteServiceError_Internal(t *testing.T) {
	s := &Server{logger: logging.Discard()}
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)

	s.writeServiceError(w, r, errSecret)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	if strings.Contains(w.Body.String(), errSecret.Error()) {
		t.Error("internal error detail leaked to the client")
	}
}

var errSecret = errors.New("/srv/gallery/db.sqlite: disk I/O error")
