package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/Todor-5rov/Vexcel/internal/ingest"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

const defaultPreviewRows = 1000

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Leave room for the multipart envelope; the workbook limit is enforced
	// by validation so the caller gets a precise message.
	limit := s.cfg.MaxUploadBytes + 1<<20
	if r.ContentLength > limit {
		writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "File too large. Maximum size is 10MB.")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "File too large. Maximum size is 10MB.")
			return
		}
		writeError(w, r, http.StatusBadRequest, "bad_request", "expected a multipart form with a file field")
		return
	}
	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "No file provided")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", "failed to read uploaded file")
		return
	}

	report, err := s.cfg.Files.Upload(r.Context(), owner(r), ingest.Upload{Filename: hdr.Filename, Content: content})
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, report)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	files, err := s.cfg.Files.List(r.Context(), owner(r))
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	if files == nil {
		files = []store.LogicalFile{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	f, err := s.cfg.Files.Get(r.Context(), owner(r), r.PathValue("id"))
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.cfg.Files.Delete(r.Context(), owner(r), r.PathValue("id")); err != nil {
		s.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) handleEmbed(w http.ResponseWriter, r *http.Request) {
	allowEdit := true
	if v := r.URL.Query().Get("allowEdit"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "bad_request", "allowEdit must be true or false")
			return
		}
		allowEdit = b
	}
	u, err := s.cfg.Files.RefreshEmbed(r.Context(), owner(r), r.PathValue("id"), allowEdit)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"embedUrl": u})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	limit := defaultPreviewRows
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "bad_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	table, err := s.cfg.Files.Preview(r.Context(), owner(r), r.PathValue("id"), limit)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

type saveRequest struct {
	Data [][]string `json:"data"`
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if len(req.Data) == 0 {
		writeError(w, r, http.StatusBadRequest, "bad_request", "data must include a header row")
		return
	}
	report, err := s.cfg.Files.Save(r.Context(), owner(r), r.PathValue("id"), req.Data)
	if err != nil {
		s.fileError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "File saved successfully",
		"fileSize":   report.FileSize,
		"syncResult": report.Sync,
	})
}

func (s *Server) fileError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "not_found", "File not found")
	case errors.Is(err, xlsx.ErrTooLarge):
		writeError(w, r, http.StatusRequestEntityTooLarge, "payload_too_large", "File too large. Maximum size is 10MB.")
	case errors.Is(err, xlsx.ErrUnsupportedType):
		writeError(w, r, http.StatusBadRequest, "unsupported_type", "Invalid file type. Please upload an Excel file (.xlsx, .xls, .xlsm).")
	case errors.Is(err, xlsx.ErrEmpty), errors.Is(err, xlsx.ErrCorrupt):
		writeError(w, r, http.StatusBadRequest, "invalid_file", err.Error())
	case errors.Is(err, ingest.ErrNoCloudCopy):
		writeError(w, r, http.StatusConflict, "no_cloud_copy", "This file has not been uploaded to OneDrive.")
	case errors.Is(err, ingest.ErrRemoteUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "remote_unavailable", err.Error())
	default:
		s.log.Error("file request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"correlation_id", r.Header.Get(headerCorrelationID))
		writeError(w, r, http.StatusInternalServerError, "internal_error", "Something went wrong. Please try again.")
	}
}
