package api

import (
	"net/http"
	"strconv"
)

// defaultAuditLimit is used when the limit parameter is absent.
const defaultAuditLimit = 100

// handleAuditLog returns the newest audit entries. limit is capped by the
// audit repository.
func (s *Server) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := defaultAuditLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, r, "limit must be a positive integer")
			return
		}
		limit = n
	}

	entries, err := s.gallery.AuditLog(r.Context(), sessionFromContext(r.Context()), limit)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}
