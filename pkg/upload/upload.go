// Package upload implements the upload-lease engine: it reserves object
// names, opens multipart sessions at the object backend, vends presigned
// part URLs, and finalizes transfers once all parts are acknowledged.
package upload

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/metrics"
	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

const (
	// MaxFileSize is the upper bound on a single upload.
	MaxFileSize int64 = 1_000_000_000

	// ChunkSize is the fixed part size clients upload in. The final part
	// may be shorter.
	ChunkSize int64 = 10_000_000

	// PartURLTTL is the lifetime of a presigned part-upload URL.
	PartURLTTL = 1800 * time.Second

	// SingleURLTTL is the lifetime of a presigned single-shot PUT URL.
	SingleURLTTL = 900 * time.Second
)

// ChunkCount returns the number of fixed-size parts needed to carry size
// bytes. size must be positive.
func ChunkCount(size int64) int32 {
	return int32((size + ChunkSize - 1) / ChunkSize)
}

// Grant is what a client needs to drive a chunked upload: the lease to
// redeem, the backend session, and one URL per part in ascending order.
type Grant struct {
	LeaseID  uuid.UUID `json:"lease_id"`
	UploadID string    `json:"upload_id"`
	PartURLs []string  `json:"uris"`
}

// Store is the slice of the metadata store the engine needs.
type Store interface {
	store.LeaseStore
	store.FileStore
}

// Service is the upload-lease engine.
type Service struct {
	store   Store
	backend objstore.Storage
}

// New creates an upload service.
func New(st Store, backend objstore.Storage) *Service {
	return &Service{store: st, backend: backend}
}

// Request validates an upload, opens a multipart session and persists the
// lease. If the lease cannot be persisted the session is aborted so the
// backend does not accumulate orphans.
func (s *Service) Request(ctx context.Context, owner uuid.UUID, name string, size int64) (*Grant, error) {
	if size > MaxFileSize {
		return nil, models.ErrFileTooLarge
	}
	if size <= 0 {
		return nil, models.ErrInvalidSize
	}

	bucket := objstore.UserFiles
	key := owner.String() + models.PathSeparator + name

	// One pending lease per object: a second request for the same name
	// must not open a competing multipart session.
	if _, err := s.store.GetPendingLease(ctx, bucket, owner, name); err == nil {
		return nil, models.ErrDuplicateLease
	} else if !errors.Is(err, models.ErrLeaseNotFound) {
		return nil, fmt.Errorf("failed to check for pending lease: %w", err)
	}

	uploadID, err := s.backend.StartMultipart(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open multipart session: %w", err)
	}

	urls, err := s.presignParts(ctx, bucket, key, uploadID, ChunkCount(size))
	if err != nil {
		s.abort(ctx, bucket, key, uploadID)
		return nil, err
	}

	lease := &models.UploadLease{
		ID:         uuid.New(),
		Owner:      owner,
		S3UploadID: uploadID,
		Name:       name,
		Bucket:     bucket,
		Size:       size,
		ExpiresAt:  time.Now().Add(models.LeaseDuration),
	}
	if err := s.store.AddLease(ctx, lease); err != nil {
		s.abort(ctx, bucket, key, uploadID)
		return nil, fmt.Errorf("failed to persist lease: %w", err)
	}

	metrics.UploadsStarted.WithLabelValues(bucket.Name()).Inc()
	metrics.UploadBytes.WithLabelValues(bucket.Name()).Add(float64(size))
	logger.Info("upload lease created",
		"lease_id", lease.ID, "owner", owner, "name", name,
		"size", size, "parts", len(urls))

	return &Grant{LeaseID: lease.ID, UploadID: uploadID, PartURLs: urls}, nil
}

// Resume re-issues the part URLs for a pending lease. Completed or expired
// leases cannot be resumed.
func (s *Service) Resume(ctx context.Context, leaseID uuid.UUID) (*Grant, error) {
	lease, err := s.store.GetLease(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	if lease.Completed {
		return nil, models.ErrLeaseCompleted
	}
	if lease.Expired(time.Now()) {
		return nil, models.ErrLeaseExpired
	}

	key := lease.Owner.String() + models.PathSeparator + lease.Name
	urls, err := s.presignParts(ctx, lease.Bucket, key, lease.S3UploadID, ChunkCount(lease.Size))
	if err != nil {
		return nil, err
	}
	return &Grant{LeaseID: lease.ID, UploadID: lease.S3UploadID, PartURLs: urls}, nil
}

// Finish redeems a lease: it marks the lease completed, commits the
// multipart session with the client's part list, and records the file. If
// the backend commit fails the lease is reopened best-effort so the client
// can retry while the lease is still live.
//
// Completed is terminal. Finishing an already-completed lease succeeds
// without touching the backend; the session is gone by then and the lease
// must never flip back to pending.
func (s *Service) Finish(ctx context.Context, leaseID uuid.UUID, uploadID string, parts []objstore.Part) error {
	lease, err := s.store.MarkLeaseCompleted(ctx, leaseID)
	if err != nil {
		if errors.Is(err, models.ErrLeaseCompleted) {
			logger.Debug("finish retried on completed lease", "lease_id", leaseID)
			return nil
		}
		if errors.Is(err, models.ErrLeaseExpired) {
			metrics.UploadsFailed.WithLabelValues("expired").Inc()
		}
		return err
	}

	key := lease.Owner.String() + models.PathSeparator + lease.Name
	if err := s.backend.CompleteMultipart(ctx, lease.Bucket, key, uploadID, parts); err != nil {
		metrics.UploadsFailed.WithLabelValues("backend").Inc()
		if rerr := s.store.ReopenLease(ctx, leaseID); rerr != nil {
			logger.Error("failed to reopen lease after backend failure",
				"lease_id", leaseID, "error", rerr)
		}
		return fmt.Errorf("failed to complete multipart upload: %w", err)
	}

	if err := s.recordFile(ctx, lease, key); err != nil {
		logger.Error("failed to record finished upload",
			"lease_id", leaseID, "path", key, "error", err)
	}

	metrics.UploadsFinished.WithLabelValues(lease.Bucket.Name()).Inc()
	logger.Info("upload finished", "lease_id", leaseID, "path", key, "size", lease.Size)
	return nil
}

// recordFile creates the file record the first time a key is finalized, or
// refreshes the size when the key was uploaded before.
func (s *Service) recordFile(ctx context.Context, lease *models.UploadLease, key string) error {
	existing, err := s.store.GetFileByPath(ctx, key)
	if err == nil {
		if existing.Size == lease.Size {
			return nil
		}
		return s.store.UpdateFileSize(ctx, existing.ID, lease.Size)
	}
	if !errors.Is(err, models.ErrFileNotFound) {
		return err
	}
	return s.store.AddFile(ctx, models.NewFile(key, lease.Owner, lease.Size))
}

// Prune aborts the backend sessions of expired leases and removes the
// leases. Called periodically from the server.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	cutoff := time.Now()
	leases, err := s.store.ListExpiredLeases(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	for _, lease := range leases {
		key := lease.Owner.String() + models.PathSeparator + lease.Name
		s.abort(ctx, lease.Bucket, key, lease.S3UploadID)
	}

	pruned, err := s.store.PruneExpiredLeases(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		metrics.LeasesPruned.Add(float64(pruned))
		logger.Info("pruned expired upload leases", "count", pruned)
	}
	return pruned, nil
}

func (s *Service) presignParts(ctx context.Context, bucket objstore.Bucket, key, uploadID string, count int32) ([]string, error) {
	urls := make([]string, 0, count)
	for n := int32(1); n <= count; n++ {
		u, err := s.backend.PresignPart(ctx, bucket, key, uploadID, n, PartURLTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to presign part %d: %w", n, err)
		}
		urls = append(urls, u)
	}
	return urls, nil
}

func (s *Service) abort(ctx context.Context, bucket objstore.Bucket, key, uploadID string) {
	if err := s.backend.AbortMultipart(ctx, bucket, key, uploadID); err != nil {
		logger.Warn("failed to abort multipart session",
			"bucket", bucket, "key", key, "upload_id", uploadID, "error", err)
	}
}
