// Package wopi implements the WOPI file-lock protocol core: CheckFileInfo,
// the lock family, file contents transfer, and PutRelativeFile. The engine
// returns tagged results; mapping to HTTP status codes and X-WOPI headers
// happens in the API layer.
package wopi

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/metrics"
	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// MaxNameProbes caps the suggested-name search in PutRelativeFile. The
// protocol gives the loop no bound of its own.
const MaxNameProbes = 10_000

// MaxLockLen is the longest lock token the protocol allows, in bytes.
// Oversized tokens are rejected before they reach the store.
const MaxLockLen = 1024

// Status tags the outcome of a WOPI operation.
type Status int

const (
	// StatusOK means the operation succeeded.
	StatusOK Status = iota
	// StatusNotFound means the file record does not exist.
	StatusNotFound
	// StatusConflict means a lock check failed; Result.Lock carries the
	// held token ("" when the conflict is with an unlocked file).
	StatusConflict
	// StatusFileAlreadyExists means a PutRelativeFile target exists.
	StatusFileAlreadyExists
	// StatusTooLarge means the body exceeds the representable size.
	StatusTooLarge
	// StatusInternal means an unexpected backend or store failure.
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not_found"
	case StatusConflict:
		return "conflict"
	case StatusFileAlreadyExists:
		return "file_already_exists"
	case StatusTooLarge:
		return "too_large"
	default:
		return "internal"
	}
}

// FileInfo is the CheckFileInfo capability descriptor. Field names follow
// the WOPI wire format.
type FileInfo struct {
	BaseFileName               string  `json:"BaseFileName"`
	OwnerID                    string  `json:"OwnerId"`
	UserID                     string  `json:"UserId"`
	Size                       int64   `json:"Size"`
	ReadOnly                   bool    `json:"ReadOnly"`
	UserCanWrite               bool    `json:"UserCanWrite"`
	SupportsLocks              bool    `json:"SupportsLocks"`
	SupportsGetLock            bool    `json:"SupportsGetLock"`
	SupportsExtendedLockLength bool    `json:"SupportsExtendedLockLength"`
	SupportsUpdate             bool    `json:"SupportsUpdate"`
	UserCanNotWriteRelative    bool    `json:"UserCanNotWriteRelative"`
	Version                    *string `json:"Version"`
}

// Result is the tagged outcome of a WOPI operation. Only the fields the
// operation produces are set.
type Result struct {
	Status      Status
	Lock        string
	ItemVersion string
	Info        *FileInfo
	Content     []byte
	Name        string
	URL         string
}

func ok() *Result                  { return &Result{Status: StatusOK} }
func notFound() *Result            { return &Result{Status: StatusNotFound} }
func conflict(lock string) *Result { return &Result{Status: StatusConflict, Lock: lock} }
func internal() *Result            { return &Result{Status: StatusInternal} }

// Store is the slice of the metadata store the engine needs.
type Store interface {
	store.FileStore
	store.TokenStore
}

// Engine is the WOPI core. The metadata store is the only authority for
// lock state; the engine holds no lock caches.
type Engine struct {
	store   Store
	backend objstore.Storage
	host    string
}

// New creates a WOPI engine. host is the externally reachable base URL used
// to build PutRelativeFile editor links.
func New(st Store, backend objstore.Storage, host string) *Engine {
	return &Engine{store: st, backend: backend, host: strings.TrimRight(host, "/")}
}

func (e *Engine) file(ctx context.Context, id uuid.UUID) (*models.File, *Result) {
	file, err := e.store.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			return nil, notFound()
		}
		logger.Error("failed to load file record", "file_id", id, "error", err)
		return nil, internal()
	}
	return file, nil
}

// CheckFileInfo returns the capability descriptor for a file, as seen by
// the token's bound user.
func (e *Engine) CheckFileInfo(ctx context.Context, fileID, userID uuid.UUID) *Result {
	file, fail := e.file(ctx, fileID)
	if fail != nil {
		return e.observe("check_file_info", fail)
	}
	res := ok()
	res.Info = &FileInfo{
		BaseFileName:               file.Name(),
		OwnerID:                    file.CreatedBy.String(),
		UserID:                     userID.String(),
		Size:                       file.Size,
		UserCanWrite:               true,
		SupportsLocks:              true,
		SupportsGetLock:            true,
		SupportsExtendedLockLength: true,
		SupportsUpdate:             true,
	}
	return e.observe("check_file_info", res)
}

// Lock acquires or refreshes the lock on a file.
func (e *Engine) Lock(ctx context.Context, fileID uuid.UUID, lock string) *Result {
	return e.lockOp(ctx, "lock", fileID, func(ctx context.Context) (*store.LockResult, error) {
		return e.store.LockFile(ctx, fileID, lock)
	})
}

// Unlock releases the lock on a file.
func (e *Engine) Unlock(ctx context.Context, fileID uuid.UUID, lock string) *Result {
	return e.lockOp(ctx, "unlock", fileID, func(ctx context.Context) (*store.LockResult, error) {
		return e.store.UnlockFile(ctx, fileID, lock)
	})
}

// UnlockAndRelock atomically swaps oldLock for newLock.
func (e *Engine) UnlockAndRelock(ctx context.Context, fileID uuid.UUID, oldLock, newLock string) *Result {
	return e.lockOp(ctx, "unlock_and_relock", fileID, func(ctx context.Context) (*store.LockResult, error) {
		return e.store.UnlockAndRelock(ctx, fileID, oldLock, newLock)
	})
}

// RefreshLock extends the deadline of a held, matching lock.
func (e *Engine) RefreshLock(ctx context.Context, fileID uuid.UUID, lock string) *Result {
	return e.lockOp(ctx, "refresh_lock", fileID, func(ctx context.Context) (*store.LockResult, error) {
		return e.store.ExtendLock(ctx, fileID, lock)
	})
}

func (e *Engine) lockOp(ctx context.Context, op string, fileID uuid.UUID,
	fn func(ctx context.Context) (*store.LockResult, error),
) *Result {
	res, err := fn(ctx)
	if err != nil {
		if errors.Is(err, models.ErrFileNotFound) {
			return e.observe(op, notFound())
		}
		logger.Error("lock operation failed", "op", op, "file_id", fileID, "error", err)
		return e.observe(op, internal())
	}
	switch res.Outcome {
	case store.LockAcquired, store.LockRefreshed:
		return e.observe(op, ok())
	case store.LockConflict:
		metrics.LockConflicts.Inc()
		return e.observe(op, conflict(res.Existing))
	default: // store.LockNotHeld
		return e.observe(op, conflict(""))
	}
}

// GetLock reports the lock currently held on a file, "" when unlocked.
func (e *Engine) GetLock(ctx context.Context, fileID uuid.UUID) *Result {
	file, fail := e.file(ctx, fileID)
	if fail != nil {
		return e.observe("get_lock", fail)
	}
	res := ok()
	res.Lock = file.HeldLock(time.Now())
	return e.observe("get_lock", res)
}

// GetFile returns the file's bytes from the object backend.
func (e *Engine) GetFile(ctx context.Context, fileID uuid.UUID) *Result {
	file, fail := e.file(ctx, fileID)
	if fail != nil {
		return e.observe("get_file", fail)
	}
	data, err := e.backend.Download(ctx, objstore.UserFiles, file.Path)
	if err != nil {
		logger.Error("failed to download file contents", "file_id", fileID, "error", err)
		return e.observe("get_file", internal())
	}
	res := ok()
	res.Content = data
	res.ItemVersion = itemVersion(file)
	return e.observe("get_file", res)
}

// PutFile replaces the file's contents. A held lock must be presented and
// match; an unlocked file may only be overwritten while still empty.
func (e *Engine) PutFile(ctx context.Context, fileID uuid.UUID, lock string, body []byte) *Result {
	file, fail := e.file(ctx, fileID)
	if fail != nil {
		return e.observe("put_file", fail)
	}

	held := file.HeldLock(time.Now())
	if held != "" && lock != held {
		metrics.LockConflicts.Inc()
		return e.observe("put_file", conflict(held))
	}
	if held == "" && file.Size > 0 {
		// A non-empty unlocked file may not be overwritten without a lock.
		return e.observe("put_file", conflict(""))
	}

	size := int64(len(body))
	if size != file.Size {
		if err := e.store.UpdateFileSize(ctx, fileID, size); err != nil {
			logger.Error("failed to persist file size", "file_id", fileID, "error", err)
			return e.observe("put_file", internal())
		}
	}
	if err := e.backend.Upload(ctx, objstore.UserFiles, file.Path, body); err != nil {
		logger.Error("failed to upload file contents", "file_id", fileID, "error", err)
		return e.observe("put_file", internal())
	}

	file.Size = size
	res := ok()
	res.ItemVersion = itemVersion(file)
	return e.observe("put_file", res)
}

// RelativeRequest carries the parameters of a PutRelativeFile call.
// Exactly one of RelativeTarget and SuggestedTarget is set; the API layer
// rejects requests carrying both.
type RelativeRequest struct {
	// RelativeTarget names the exact target (specific mode).
	RelativeTarget string
	// Overwrite permits replacing an existing unlocked target in specific
	// mode.
	Overwrite bool
	// SuggestedTarget is a name or ".ext" suggestion (suggested mode).
	SuggestedTarget string
	// Addr is the caller's address, recorded on the minted access token.
	Addr string
}

// PutRelativeFile creates a sibling of the source file and returns its name
// plus an editor URL carrying a freshly minted access token.
func (e *Engine) PutRelativeFile(ctx context.Context, fileID, userID uuid.UUID, req *RelativeRequest, body []byte) *Result {
	source, fail := e.file(ctx, fileID)
	if fail != nil {
		return e.observe("put_relative_file", fail)
	}

	var target string
	switch {
	case req.RelativeTarget != "":
		target = source.ParentFolder() + req.RelativeTarget
		if !req.Overwrite {
			if res := e.checkSpecificTarget(ctx, target); res != nil {
				return e.observe("put_relative_file", res)
			}
		}
	case req.SuggestedTarget != "":
		probed, res := e.probeSuggestedTarget(ctx, source, req.SuggestedTarget)
		if res != nil {
			return e.observe("put_relative_file", res)
		}
		target = probed
	default:
		return e.observe("put_relative_file", internal())
	}

	file := models.NewFile(target, userID, int64(len(body)))
	if err := e.store.AddFile(ctx, file); err != nil {
		if errors.Is(err, models.ErrDuplicatePath) && req.Overwrite {
			existing, gerr := e.store.GetFileByPath(ctx, target)
			if gerr != nil {
				logger.Error("failed to load overwrite target", "path", target, "error", gerr)
				return e.observe("put_relative_file", internal())
			}
			file = existing
			if uerr := e.store.UpdateFileSize(ctx, file.ID, int64(len(body))); uerr != nil {
				logger.Error("failed to persist overwrite size", "file_id", file.ID, "error", uerr)
				return e.observe("put_relative_file", internal())
			}
		} else {
			logger.Error("failed to create file record", "path", target, "error", err)
			return e.observe("put_relative_file", internal())
		}
	}

	token, err := e.store.CreateToken(ctx, userID, file.ID, req.Addr)
	if err != nil {
		logger.Error("failed to mint access token", "file_id", file.ID, "error", err)
		return e.observe("put_relative_file", internal())
	}

	if err := e.backend.Upload(ctx, objstore.UserFiles, target, body); err != nil {
		logger.Error("failed to upload relative file", "path", target, "error", err)
		return e.observe("put_relative_file", internal())
	}

	res := ok()
	res.Name = file.Name()
	res.URL = fmt.Sprintf("%s/api/wopi/files/%s?access_token=%s", e.host, file.ID, token)
	return e.observe("put_relative_file", res)
}

// checkSpecificTarget enforces the no-overwrite rules of specific mode.
// Returns nil when the target is free.
func (e *Engine) checkSpecificTarget(ctx context.Context, target string) *Result {
	existing, err := e.store.GetFileByPath(ctx, target)
	if errors.Is(err, models.ErrFileNotFound) {
		return nil
	}
	if err != nil {
		logger.Error("failed to probe relative target", "path", target, "error", err)
		return internal()
	}
	if held := existing.HeldLock(time.Now()); held != "" {
		return conflict(held)
	}
	return &Result{Status: StatusFileAlreadyExists}
}

// probeSuggestedTarget resolves a suggested name to a free sibling path. A
// suggestion starting with "." is an extension appended to the source name.
// Collisions are resolved by prefixing an increasing counter to the plain
// base name ("draft.docx", "1draft.docx", "2draft.docx", ...); counters
// never stack on top of an earlier candidate.
func (e *Engine) probeSuggestedTarget(ctx context.Context, source *models.File, suggestion string) (string, *Result) {
	base := suggestion
	if strings.HasPrefix(suggestion, ".") {
		base = source.Name() + suggestion
	}
	parent := source.ParentFolder()

	candidate := base
	for attempt := 0; attempt < MaxNameProbes; attempt++ {
		if attempt > 0 {
			candidate = strconv.Itoa(attempt) + base
		}
		_, err := e.store.GetFileByPath(ctx, parent+candidate)
		if errors.Is(err, models.ErrFileNotFound) {
			return parent + candidate, nil
		}
		if err != nil {
			logger.Error("failed to probe suggested target", "path", parent+candidate, "error", err)
			return "", internal()
		}
	}
	logger.Error("suggested-name probe exhausted", "parent", parent, "suggestion", suggestion)
	return "", internal()
}

func (e *Engine) observe(op string, res *Result) *Result {
	metrics.WOPIRequests.WithLabelValues(op, res.Status.String()).Inc()
	return res
}

func itemVersion(file *models.File) string {
	return strconv.FormatInt(file.Size, 10)
}
