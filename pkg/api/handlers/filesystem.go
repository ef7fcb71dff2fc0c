package handlers

import (
	"net/http"

	"github.com/genbu-cloud/genbu/pkg/api/middleware"
	"github.com/genbu-cloud/genbu/pkg/filesystem"
	"github.com/genbu-cloud/genbu/pkg/objstore"
)

// FilesystemHandler serves the per-user directory view.
type FilesystemHandler struct {
	fs *filesystem.Service
}

// NewFilesystemHandler creates a new FilesystemHandler.
func NewFilesystemHandler(fs *filesystem.Service) *FilesystemHandler {
	return &FilesystemHandler{fs: fs}
}

// ListResponse is the response body for GET /api/filesystem.
type ListResponse struct {
	Files []filesystem.Entry `json:"files"`
}

// List handles GET /api/filesystem?base_path=.
func (h *FilesystemHandler) List(w http.ResponseWriter, r *http.Request) {
	basePath := r.URL.Query().Get("base_path")

	entries, err := h.fs.List(r.Context(), middleware.GetUserID(r.Context()), basePath)
	if err != nil {
		if objstore.IsConnection(err) {
			BadGateway(w, "Object store unavailable")
			return
		}
		InternalServerError(w, "Failed to list files")
		return
	}
	if entries == nil {
		entries = []filesystem.Entry{}
	}
	WriteJSONOK(w, ListResponse{Files: entries})
}

// Delete handles DELETE /api/filesystem?path=.
func (h *FilesystemHandler) Delete(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		BadRequest(w, "A path is required")
		return
	}

	if err := h.fs.Delete(r.Context(), middleware.GetUserID(r.Context()), path); err != nil {
		if objstore.IsConnection(err) {
			BadGateway(w, "Object store unavailable")
			return
		}
		InternalServerError(w, "Failed to delete file")
		return
	}
	w.WriteHeader(http.StatusOK)
}
