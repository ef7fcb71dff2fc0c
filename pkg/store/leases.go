package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// AddLease records a new upload lease.
func (s *GORMStore) AddLease(ctx context.Context, lease *models.UploadLease) error {
	if lease.ID == uuid.Nil {
		lease.ID = uuid.New()
	}
	if lease.ExpiresAt.IsZero() {
		lease.ExpiresAt = time.Now().Add(models.LeaseDuration)
	}
	if err := s.db.WithContext(ctx).Create(lease).Error; err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}
	return nil
}

// GetLease retrieves an upload lease by ID.
func (s *GORMStore) GetLease(ctx context.Context, id uuid.UUID) (*models.UploadLease, error) {
	var lease models.UploadLease
	err := s.db.WithContext(ctx).First(&lease, "id = ?", id).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrLeaseNotFound)
	}
	return &lease, nil
}

// GetPendingLease returns the live pending lease for an object, if any. A
// lease counts as pending while it is neither completed nor past its
// deadline; at most one such lease exists per (bucket, owner, name).
func (s *GORMStore) GetPendingLease(ctx context.Context, bucket objstore.Bucket, owner uuid.UUID, name string) (*models.UploadLease, error) {
	var lease models.UploadLease
	err := s.db.WithContext(ctx).
		Where("bucket = ? AND owner = ? AND name = ? AND completed = ? AND expires_at > ?",
			bucket, owner, name, false, time.Now()).
		First(&lease).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrLeaseNotFound)
	}
	return &lease, nil
}

// GetLeasesByUser lists all leases owned by a user, newest first.
func (s *GORMStore) GetLeasesByUser(ctx context.Context, owner uuid.UUID) ([]*models.UploadLease, error) {
	var leases []*models.UploadLease
	err := s.db.WithContext(ctx).
		Where("owner = ?", owner).
		Order("created_at DESC").
		Find(&leases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list leases: %w", err)
	}
	return leases, nil
}

// DeleteLease removes a lease and returns the deleted record.
func (s *GORMStore) DeleteLease(ctx context.Context, id uuid.UUID) (*models.UploadLease, error) {
	var lease models.UploadLease
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&lease, "id = ?", id).Error; err != nil {
			return convertNotFoundError(err, models.ErrLeaseNotFound)
		}
		return tx.Delete(&models.UploadLease{}, "id = ?", id).Error
	})
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// MarkLeaseCompleted transitions a pending lease to completed. A lease past
// its deadline cannot be completed; a lease that already completed reports
// ErrLeaseCompleted so callers do not redo finalization work.
func (s *GORMStore) MarkLeaseCompleted(ctx context.Context, id uuid.UUID) (*models.UploadLease, error) {
	var lease models.UploadLease
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockForUpdate(tx).First(&lease, "id = ?", id).Error; err != nil {
			return convertNotFoundError(err, models.ErrLeaseNotFound)
		}
		if lease.Completed {
			return models.ErrLeaseCompleted
		}
		if lease.Expired(time.Now()) {
			return models.ErrLeaseExpired
		}
		lease.Completed = true
		return tx.Model(&models.UploadLease{}).
			Where("id = ?", id).
			Update("completed", true).Error
	})
	if err != nil {
		return nil, err
	}
	return &lease, nil
}

// ReopenLease reverts a completed lease back to pending. Used to roll back
// when finalizing the multipart upload fails after the lease was marked.
func (s *GORMStore) ReopenLease(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).
		Model(&models.UploadLease{}).
		Where("id = ?", id).
		Update("completed", false)
	if res.Error != nil {
		return fmt.Errorf("failed to reopen lease: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrLeaseNotFound
	}
	return nil
}

// ListExpiredLeases returns leases whose deadline passed before cutoff.
func (s *GORMStore) ListExpiredLeases(ctx context.Context, cutoff time.Time) ([]*models.UploadLease, error) {
	var leases []*models.UploadLease
	err := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Find(&leases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired leases: %w", err)
	}
	return leases, nil
}

// PruneExpiredLeases deletes leases whose deadline passed before cutoff and
// returns how many were removed. Abandoned multipart sessions at the backend
// are the caller's problem; it should abort them before pruning.
func (s *GORMStore) PruneExpiredLeases(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at < ?", cutoff).
		Delete(&models.UploadLease{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to prune leases: %w", res.Error)
	}
	return res.RowsAffected, nil
}
