package handlers

import (
	"io"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/accesstoken"
	"github.com/genbu-cloud/genbu/pkg/api/middleware"
	"github.com/genbu-cloud/genbu/pkg/wopi"
)

// WOPI request headers.
const (
	HeaderOverride        = "X-WOPI-Override"
	HeaderLock            = "X-WOPI-Lock"
	HeaderOldLock         = "X-WOPI-OldLock"
	HeaderRelativeTarget  = "X-WOPI-RelativeTarget"
	HeaderSuggestedTarget = "X-WOPI-SuggestedTarget"
	HeaderOverwriteTarget = "X-WOPI-OverwriteRelativeTarget"
	HeaderItemVersion     = "X-WOPI-ItemVersion"
	HeaderLockFailure     = "X-WOPI-LockFailureReason"
)

// WOPIHandler maps WOPI HTTP requests onto the lock engine and its results
// back onto status codes and X-WOPI headers.
type WOPIHandler struct {
	engine *wopi.Engine
}

// NewWOPIHandler creates a new WOPIHandler.
func NewWOPIHandler(engine *wopi.Engine) *WOPIHandler {
	return &WOPIHandler{engine: engine}
}

// grantFor checks that the resolved access token is bound to the file named
// in the URL. A token never grants operations on any other file.
func grantFor(w http.ResponseWriter, r *http.Request) (*accesstoken.Context, uuid.UUID, bool) {
	fileID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		NotFound(w, "Unknown file")
		return nil, uuid.Nil, false
	}
	grant := middleware.GetWOPIGrant(r.Context())
	if grant == nil || grant.FileID != fileID {
		Unauthorized(w, "Access token does not grant this file")
		return nil, uuid.Nil, false
	}
	return grant, fileID, true
}

// CheckFileInfo handles GET /api/wopi/files/{id}.
func (h *WOPIHandler) CheckFileInfo(w http.ResponseWriter, r *http.Request) {
	grant, fileID, ok := grantFor(w, r)
	if !ok {
		return
	}
	res := h.engine.CheckFileInfo(r.Context(), fileID, grant.UserID)
	if res.Status != wopi.StatusOK {
		h.writeFailure(w, res)
		return
	}
	WriteJSONOK(w, res.Info)
}

// Files handles POST /api/wopi/files/{id}, dispatching on X-WOPI-Override.
func (h *WOPIHandler) Files(w http.ResponseWriter, r *http.Request) {
	grant, fileID, ok := grantFor(w, r)
	if !ok {
		return
	}

	lock := r.Header.Get(HeaderLock)
	if !validLockHeaders(w, lock, r.Header.Get(HeaderOldLock)) {
		return
	}
	switch r.Header.Get(HeaderOverride) {
	case "LOCK":
		if oldLock := r.Header.Get(HeaderOldLock); oldLock != "" {
			h.writeLockResult(w, h.engine.UnlockAndRelock(r.Context(), fileID, oldLock, lock))
			return
		}
		h.writeLockResult(w, h.engine.Lock(r.Context(), fileID, lock))
	case "UNLOCK":
		h.writeLockResult(w, h.engine.Unlock(r.Context(), fileID, lock))
	case "REFRESH_LOCK":
		h.writeLockResult(w, h.engine.RefreshLock(r.Context(), fileID, lock))
	case "GET_LOCK":
		res := h.engine.GetLock(r.Context(), fileID)
		if res.Status != wopi.StatusOK {
			h.writeFailure(w, res)
			return
		}
		w.Header().Set(HeaderLock, res.Lock)
		w.WriteHeader(http.StatusOK)
	case "PUT_RELATIVE":
		h.putRelative(w, r, fileID, grant.UserID)
	default:
		NotImplemented(w, "Unsupported WOPI operation")
	}
}

// GetContents handles GET /api/wopi/files/{id}/contents.
func (h *WOPIHandler) GetContents(w http.ResponseWriter, r *http.Request) {
	_, fileID, ok := grantFor(w, r)
	if !ok {
		return
	}
	res := h.engine.GetFile(r.Context(), fileID)
	if res.Status != wopi.StatusOK {
		h.writeFailure(w, res)
		return
	}
	if res.ItemVersion != "" {
		w.Header().Set(HeaderItemVersion, res.ItemVersion)
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(res.Content)
}

// PutContents handles POST /api/wopi/files/{id}/contents.
func (h *WOPIHandler) PutContents(w http.ResponseWriter, r *http.Request) {
	_, fileID, ok := grantFor(w, r)
	if !ok {
		return
	}

	lock := r.Header.Get(HeaderLock)
	if !validLockHeaders(w, lock) {
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, "Failed to read request body")
		return
	}

	res := h.engine.PutFile(r.Context(), fileID, lock, body)
	if res.Status != wopi.StatusOK {
		h.writeFailure(w, res)
		return
	}
	if res.ItemVersion != "" {
		w.Header().Set(HeaderItemVersion, res.ItemVersion)
	}
	w.WriteHeader(http.StatusOK)
}

// PutRelativeResponse is the success body of a PUT_RELATIVE operation.
type PutRelativeResponse struct {
	Name string `json:"Name"`
	URL  string `json:"Url"`
}

func (h *WOPIHandler) putRelative(w http.ResponseWriter, r *http.Request, fileID, userID uuid.UUID) {
	relative := r.Header.Get(HeaderRelativeTarget)
	suggested := r.Header.Get(HeaderSuggestedTarget)
	if relative != "" && suggested != "" {
		NotImplemented(w, "RelativeTarget and SuggestedTarget are mutually exclusive")
		return
	}
	if relative == "" && suggested == "" {
		BadRequest(w, "A relative or suggested target is required")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		BadRequest(w, "Failed to read request body")
		return
	}

	req := &wopi.RelativeRequest{
		RelativeTarget:  relative,
		SuggestedTarget: suggested,
		Overwrite:       r.Header.Get(HeaderOverwriteTarget) == "true",
		Addr:            clientIP(r),
	}
	res := h.engine.PutRelativeFile(r.Context(), fileID, userID, req, body)
	if res.Status != wopi.StatusOK {
		h.writeFailure(w, res)
		return
	}
	WriteJSONOK(w, PutRelativeResponse{Name: res.Name, URL: res.URL})
}

// writeLockResult maps Lock/Unlock/Relock/Refresh outcomes. Conflicts carry
// the held lock in X-WOPI-Lock, empty when the file was unlocked.
func (h *WOPIHandler) writeLockResult(w http.ResponseWriter, res *wopi.Result) {
	if res.Status == wopi.StatusOK {
		w.WriteHeader(http.StatusOK)
		return
	}
	h.writeFailure(w, res)
}

// validLockHeaders rejects lock tokens above the protocol's size bound with
// a 400 before any store access.
func validLockHeaders(w http.ResponseWriter, locks ...string) bool {
	for _, lock := range locks {
		if len(lock) > wopi.MaxLockLen {
			BadRequest(w, "Lock token exceeds the maximum length")
			return false
		}
	}
	return true
}

// clientIP returns the caller's bare IP. RemoteAddr carries host:port, but
// the token's created_from column holds an address only.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (h *WOPIHandler) writeFailure(w http.ResponseWriter, res *wopi.Result) {
	switch res.Status {
	case wopi.StatusNotFound:
		NotFound(w, "File not found")
	case wopi.StatusConflict:
		w.Header().Set(HeaderLock, res.Lock)
		if res.Lock == "" {
			w.Header().Set(HeaderLockFailure, "File is not locked")
		}
		w.WriteHeader(http.StatusConflict)
	case wopi.StatusFileAlreadyExists:
		w.WriteHeader(http.StatusConflict)
	case wopi.StatusTooLarge:
		PayloadTooLarge(w, "Body exceeds the maximum file size")
	default:
		InternalServerError(w, "WOPI operation failed")
	}
}
