package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/gallery-core/internal/auth"
	"github.com/nerrad567/gallery-core/internal/infrastructure/influxdb"
)

// loginRequest is the request body for POST /api/login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginResponse is the response body for POST /api/login.
type loginResponse struct {
	Success bool           `json:"success"`
	User    *auth.UserView `json:"user"`
}

// changePasswordRequest is the request body for POST /api/change-password.
type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// handleLogin authenticates a user and sets the session cookie.
//
// Every attempt takes a token from the per-client login budget on arrival,
// so parallel guesses cannot outrun it. Anything but a wrong password
// gives the token back, which leaves only failed attempts counted.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	refund := func() {}
	if s.loginLimiter != nil {
		var ok bool
		if refund, ok = s.loginLimiter.reserve(ip); !ok {
			s.logger.Warn("login rate limited", "client", ip)
			if s.telemetry != nil {
				s.telemetry.RecordLoginAttempt(influxdb.LoginRateLimited)
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(s.loginRetryAfter().Seconds())))
			writeError(w, r, http.StatusTooManyRequests, ErrCodeRateLimited, "")
			return
		}
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" || req.Password == "" {
		refund()
		writeBadRequest(w, r, "username and password are required")
		return
	}

	res, err := s.gallery.Login(r.Context(), req.Username, req.Password, s.sessionToken(r))
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			refund()
		}
		// Login always replaces the prior session, even when it fails.
		s.clearSessionCookie(w)
		s.writeServiceError(w, r, err)
		return
	}
	refund()

	s.setSessionCookie(w, res.Token, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User: &auth.UserView{
			Username:    res.User.Username,
			DisplayName: res.User.DisplayName,
			Role:        res.User.Role,
		},
	})
}

// handleLogout destroys the session, if any, and clears the cookie.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess, err := s.gallery.Session(r.Context(), s.sessionToken(r))
	if err == nil {
		err = s.gallery.Logout(r.Context(), sess)
	} else if errors.Is(err, auth.ErrUnauthorized) {
		err = nil
	}
	s.clearSessionCookie(w)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleCheckAuth reports whether the cookie belongs to a live session.
func (s *Server) handleCheckAuth(w http.ResponseWriter, r *http.Request) {
	status, err := s.gallery.CheckSession(r.Context(), s.sessionToken(r))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleChangePassword replaces the caller's own password.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}

	if err := s.gallery.ChangePassword(r.Context(), sessionFromContext(r.Context()), req.CurrentPassword, req.NewPassword); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// ─── Cookie ─────────────────────────────────────────────────────────

func (s *Server) sessionToken(r *http.Request) string {
	c, err := r.Cookie(s.sessionCfg.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge < 1 {
		maxAge = 1
	}
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCfg.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   s.cfg.TLS.Enabled,
		SameSite: http.SameSiteStrictMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.sessionCfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.TLS.Enabled,
		SameSite: http.SameSiteStrictMode,
	})
}

// loginRetryAfter is the time for one failed-login token to refill.
func (s *Server) loginRetryAfter() time.Duration {
	if s.loginLimiter == nil || s.loginLimiter.limit <= 0 {
		return time.Minute
	}
	d := time.Duration(float64(time.Second) / float64(s.loginLimiter.limit))
	if d < time.Second {
		d = time.Second
	}
	return d
}
