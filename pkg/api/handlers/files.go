package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/api/middleware"
	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/store/models"
	"github.com/genbu-cloud/genbu/pkg/upload"
)

// DownloadURLTTL is the lifetime of a presigned single-download URL. Kept
// short; the client follows the redirect immediately.
const DownloadURLTTL = 20 * time.Second

// FilesHandler handles upload, download and avatar endpoints.
type FilesHandler struct {
	uploads *upload.Service
	store   store.FileStore
	backend objstore.Storage
	users   store.UserStore
}

// NewFilesHandler creates a new FilesHandler.
func NewFilesHandler(uploads *upload.Service, st store.FileStore, users store.UserStore, backend objstore.Storage) *FilesHandler {
	return &FilesHandler{uploads: uploads, store: st, users: users, backend: backend}
}

// UploadRequest is the request body for POST /api/files/upload.
type UploadRequest struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Upload handles POST /api/files/upload.
func (h *FilesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		UnprocessableEntity(w, "A file name is required")
		return
	}

	grant, err := h.uploads.Request(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.Size)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrFileTooLarge):
			Forbidden(w, "File exceeds the maximum upload size")
		case errors.Is(err, models.ErrInvalidSize):
			UnprocessableEntity(w, "Size must be a positive integer")
		case errors.Is(err, models.ErrDuplicateLease):
			Conflict(w, "An upload for this file is already pending")
		case objstore.IsConnection(err):
			BadGateway(w, "Object store unavailable")
		default:
			InternalServerError(w, "Failed to create upload")
		}
		return
	}
	WriteJSONOK(w, grant)
}

// FinishRequest is the request body for POST /api/files/upload/finish.
type FinishRequest struct {
	LeaseID  uuid.UUID       `json:"lease_id"`
	UploadID string          `json:"upload_id"`
	Parts    []objstore.Part `json:"parts"`
}

// Finish handles POST /api/files/upload/finish.
func (h *FilesHandler) Finish(w http.ResponseWriter, r *http.Request) {
	var req FinishRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	err := h.uploads.Finish(r.Context(), req.LeaseID, req.UploadID, req.Parts)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrLeaseNotFound):
			NotFound(w, "Upload lease not found")
		case errors.Is(err, models.ErrLeaseExpired):
			Gone(w, "Upload lease has expired")
		case objstore.IsConnection(err):
			BadGateway(w, "Object store unavailable")
		default:
			InternalServerError(w, "Failed to finish upload")
		}
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Resume handles GET /api/files/upload/{lease_id}. Re-issues the part URLs
// of a pending lease.
func (h *FilesHandler) Resume(w http.ResponseWriter, r *http.Request) {
	leaseID, err := uuid.Parse(chi.URLParam(r, "lease_id"))
	if err != nil {
		BadRequest(w, "Invalid lease id")
		return
	}

	grant, err := h.uploads.Resume(r.Context(), leaseID)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrLeaseNotFound):
			NotFound(w, "Upload lease not found")
		case errors.Is(err, models.ErrLeaseExpired):
			Gone(w, "Upload lease has expired")
		case errors.Is(err, models.ErrLeaseCompleted):
			Conflict(w, "Upload is already completed")
		default:
			InternalServerError(w, "Failed to resume upload")
		}
		return
	}
	WriteJSONOK(w, grant)
}

// Download handles GET /api/files/download?bucket=&file_path=. Redirects to
// a short-lived presigned URL.
func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	bucketParam := r.URL.Query().Get("bucket")
	filePath := r.URL.Query().Get("file_path")

	bucket, err := objstore.ParseBucket(bucketParam)
	if err != nil {
		BadRequest(w, "Unknown bucket")
		return
	}
	if bucket != objstore.UserFiles {
		NotImplemented(w, "Downloads are only supported from the userfiles bucket")
		return
	}
	if filePath == "" {
		BadRequest(w, "A file path is required")
		return
	}

	key := middleware.GetUserID(r.Context()).String() + models.PathSeparator + filePath
	if _, err := h.store.GetFileByPath(r.Context(), key); err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			NotFound(w, "File not found")
			return
		}
		InternalServerError(w, "Failed to look up file")
		return
	}

	url, err := h.backend.PresignGet(r.Context(), bucket, key, DownloadURLTTL)
	if err != nil {
		if objstore.IsConnection(err) {
			BadGateway(w, "Object store unavailable")
			return
		}
		InternalServerError(w, "Failed to presign download")
		return
	}
	http.Redirect(w, r, url, http.StatusTemporaryRedirect)
}

// AvatarResponse is the response body for POST /api/files/upload/avatar.
type AvatarResponse struct {
	URL string `json:"uri"`
}

// Avatar handles POST /api/files/upload/avatar. Issues a presigned PUT URL
// into the avatars bucket and records the avatar on the user. Avatars are
// keyed by the owner's id; re-uploading replaces the previous image.
func (h *FilesHandler) Avatar(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	avatarID := uuid.New()

	url, err := h.backend.PresignPut(r.Context(), objstore.ProfileImages, avatarID.String(), upload.SingleURLTTL)
	if err != nil {
		if objstore.IsConnection(err) {
			BadGateway(w, "Object store unavailable")
			return
		}
		InternalServerError(w, "Failed to presign avatar upload")
		return
	}

	if err := h.users.UpdateUserAvatar(r.Context(), userID, avatarID); err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			Unauthorized(w, "User not found")
			return
		}
		InternalServerError(w, "Failed to record avatar")
		return
	}
	WriteJSONOK(w, AvatarResponse{URL: url})
}
