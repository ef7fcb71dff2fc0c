package handlers

import (
	"net/http"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/objstore"
)

// DebugHandler hosts destructive endpoints for development environments.
// It is only mounted when debug mode is enabled.
type DebugHandler struct {
	backend objstore.Storage
}

// NewDebugHandler creates a new DebugHandler.
func NewDebugHandler(backend objstore.Storage) *DebugHandler {
	return &DebugHandler{backend: backend}
}

// Reset handles POST /api/debug/reset. Drops and recreates every bucket,
// discarding all stored objects.
func (h *DebugHandler) Reset(w http.ResponseWriter, r *http.Request) {
	for _, b := range objstore.Buckets {
		if err := h.backend.DeleteBucket(r.Context(), b); err != nil {
			logger.Warn("failed to delete bucket during reset", "bucket", b, "error", err)
		}
		if err := h.backend.EnsureBucket(r.Context(), b); err != nil {
			InternalServerError(w, "Failed to recreate bucket "+b.Name())
			return
		}
	}
	logger.Info("object store reset", "buckets", len(objstore.Buckets))
	w.WriteHeader(http.StatusOK)
}
