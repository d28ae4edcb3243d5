package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gallery-core/internal/gallery"
	"github.com/nerrad567/gallery-core/internal/media"
)

// mediaCacheControl lets the browser keep streamed media for an hour
// without sharing it with intermediaries.
const mediaCacheControl = "private, max-age=3600"

type createFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// handleBrowse lists the folder given by the path query parameter.
func (s *Server) handleBrowse(w http.ResponseWriter, r *http.Request) {
	listing, err := s.gallery.Browse(r.Context(), sessionFromContext(r.Context()), r.URL.Query().Get("path"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// handleMedia streams one media file. Range requests are supported.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	rel := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(rel)
		if err != nil {
			writeBadRequest(w, r, "invalid path")
			return
		}
		rel = unescaped
	}

	abs, err := s.gallery.ResolveMediaFile(r.Context(), sessionFromContext(r.Context()), rel)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	f, err := os.Open(abs)
	if err != nil {
		s.writeServiceError(w, r, &media.PathError{Path: rel, Reason: media.ReasonNotFound, Err: err})
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", mediaCacheControl)
	http.ServeContent(w, r, filepath.Base(abs), info.ModTime(), f)
}

// handleCreateFolder creates a folder inside path.
func (s *Server) handleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, r, "invalid JSON body")
		return
	}

	res, err := s.gallery.CreateFolder(r.Context(), sessionFromContext(r.Context()), req.Path, req.Name)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleUpload stores every "file" part of a multipart body in the folder
// given by the path query parameter. Parts are streamed straight to disk.
// Files stored before a failing part are kept.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeBadRequest(w, r, "multipart body required")
		return
	}
	dir := r.URL.Query().Get("path")
	sess := sessionFromContext(r.Context())

	var results []*gallery.MediaResult
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			s.writeUploadError(w, r, err)
			return
		}
		if part.FormName() != "file" || part.FileName() == "" {
			part.Close()
			continue
		}

		res, err := s.gallery.Upload(r.Context(), sess, dir, part.FileName(), part)
		part.Close()
		if err != nil {
			s.writeUploadError(w, r, err)
			return
		}
		results = append(results, res)
	}

	if len(results) == 0 {
		writeBadRequest(w, r, "no file parts in upload")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"files": results,
		"count": len(results),
	})
}

func (s *Server) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, r, http.StatusRequestEntityTooLarge, ErrCodeTooLarge, "")
		return
	}
	s.writeServiceError(w, r, err)
}
