package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// UserStore persists accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserAvatar(ctx context.Context, id, avatar uuid.UUID) error
	DeleteUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// LockOutcome describes the result of a transactional lock operation.
type LockOutcome int

const (
	// LockAcquired means the file was unlocked and now holds the
	// requested token.
	LockAcquired LockOutcome = iota
	// LockRefreshed means the held token matched and its deadline was
	// extended.
	LockRefreshed
	// LockConflict means a different live lock is held; Existing carries it.
	LockConflict
	// LockNotHeld is returned by unlock when no live lock was present.
	LockNotHeld
)

// LockResult is the outcome of LockFile and friends. Existing is the lock
// held at decision time ("" when none).
type LockResult struct {
	Outcome  LockOutcome
	Existing string
}

// FileStore persists file records and owns the lock state machine. The four
// lock operations each run in a single transaction; the store is the only
// authority for lock state and callers must not cache it.
type FileStore interface {
	AddFile(ctx context.Context, file *models.File) error
	GetFile(ctx context.Context, id uuid.UUID) (*models.File, error)
	GetFileByPath(ctx context.Context, path string) (*models.File, error)
	UpdateFileSize(ctx context.Context, id uuid.UUID, size int64) error

	// LockFile acquires or refreshes the lock per the WOPI transitions:
	// unlocked (or lapsed) -> acquire; held matching -> refresh; held
	// differing -> conflict with the existing token.
	LockFile(ctx context.Context, id uuid.UUID, requested string) (*LockResult, error)

	// UnlockFile clears a held lock that byte-matches the presented token.
	// Unlocking an unlocked file reports LockNotHeld.
	UnlockFile(ctx context.Context, id uuid.UUID, lock string) (*LockResult, error)

	// UnlockAndRelock atomically swaps oldLock for newLock. Succeeds only
	// when the held lock equals oldLock.
	UnlockAndRelock(ctx context.Context, id uuid.UUID, oldLock, newLock string) (*LockResult, error)

	// ExtendLock pushes out the deadline of a held, matching lock.
	ExtendLock(ctx context.Context, id uuid.UUID, lock string) (*LockResult, error)
}

// LeaseStore persists upload leases.
type LeaseStore interface {
	AddLease(ctx context.Context, lease *models.UploadLease) error
	GetLease(ctx context.Context, id uuid.UUID) (*models.UploadLease, error)

	// GetPendingLease returns the live pending lease for an object, or
	// models.ErrLeaseNotFound. Pending means not completed and not past
	// the deadline; at most one pending lease exists per object.
	GetPendingLease(ctx context.Context, bucket objstore.Bucket, owner uuid.UUID, name string) (*models.UploadLease, error)

	GetLeasesByUser(ctx context.Context, owner uuid.UUID) ([]*models.UploadLease, error)
	DeleteLease(ctx context.Context, id uuid.UUID) (*models.UploadLease, error)

	// MarkLeaseCompleted transitions a pending lease to completed. Returns
	// models.ErrLeaseExpired past the deadline, models.ErrLeaseNotFound for
	// unknown ids and models.ErrLeaseCompleted when the lease already
	// completed. Completed is terminal; it never reverts on a retry.
	MarkLeaseCompleted(ctx context.Context, id uuid.UUID) (*models.UploadLease, error)

	// ReopenLease reverts completed back to pending; best-effort rollback
	// for a failed multipart completion.
	ReopenLease(ctx context.Context, id uuid.UUID) error

	// ListExpiredLeases returns leases whose deadline passed before cutoff,
	// so the caller can abort their backend sessions before pruning.
	ListExpiredLeases(ctx context.Context, cutoff time.Time) ([]*models.UploadLease, error)

	// PruneExpiredLeases deletes leases whose deadline passed before cutoff.
	PruneExpiredLeases(ctx context.Context, cutoff time.Time) (int64, error)
}

// TokenStore persists WOPI access tokens.
type TokenStore interface {
	CreateToken(ctx context.Context, userID, fileID uuid.UUID, from string) (uuid.UUID, error)
	GetTokenContext(ctx context.Context, token uuid.UUID) (*models.AccessToken, error)
	RevokeToken(ctx context.Context, token uuid.UUID) error
}

// Store is the full metadata-store contract.
type Store interface {
	UserStore
	FileStore
	LeaseStore
	TokenStore
}
