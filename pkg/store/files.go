package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// AddFile creates a new file record.
func (s *GORMStore) AddFile(ctx context.Context, file *models.File) error {
	if file.ID == uuid.Nil {
		file.ID = uuid.New()
	}
	if err := s.db.WithContext(ctx).Create(file).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicatePath
		}
		return fmt.Errorf("failed to create file: %w", err)
	}
	return nil
}

// GetFile retrieves a file record by ID.
func (s *GORMStore) GetFile(ctx context.Context, id uuid.UUID) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).First(&file, "id = ?", id).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

// GetFileByPath retrieves a file record by its full virtual path.
func (s *GORMStore) GetFileByPath(ctx context.Context, path string) (*models.File, error) {
	var file models.File
	err := s.db.WithContext(ctx).First(&file, "path = ?", path).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrFileNotFound)
	}
	return &file, nil
}

// UpdateFileSize records the current object size for a file.
func (s *GORMStore) UpdateFileSize(ctx context.Context, id uuid.UUID, size int64) error {
	res := s.db.WithContext(ctx).
		Model(&models.File{}).
		Where("id = ?", id).
		Update("size", size)
	if res.Error != nil {
		return fmt.Errorf("failed to update file size: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrFileNotFound
	}
	return nil
}

// lockForUpdate applies a row lock on databases that support it. SQLite
// serializes writers on its own and rejects the clause.
func (s *GORMStore) lockForUpdate(tx *gorm.DB) *gorm.DB {
	if s.config.Type == DatabaseTypePostgres {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

// lockTxn runs fn against the current row state inside one transaction.
// fn inspects the file and returns the result plus the column updates to
// apply (nil updates means no write).
func (s *GORMStore) lockTxn(ctx context.Context, id uuid.UUID,
	fn func(file *models.File, now time.Time) (*LockResult, map[string]any),
) (*LockResult, error) {
	var result *LockResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file models.File
		if err := s.lockForUpdate(tx).First(&file, "id = ?", id).Error; err != nil {
			return convertNotFoundError(err, models.ErrFileNotFound)
		}

		var updates map[string]any
		result, updates = fn(&file, time.Now())
		if updates == nil {
			return nil
		}
		return tx.Model(&models.File{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// LockFile acquires or refreshes the WOPI lock on a file.
func (s *GORMStore) LockFile(ctx context.Context, id uuid.UUID, requested string) (*LockResult, error) {
	return s.lockTxn(ctx, id, func(file *models.File, now time.Time) (*LockResult, map[string]any) {
		deadline := now.Add(models.LockDuration)
		switch held := file.HeldLock(now); held {
		case "":
			return &LockResult{Outcome: LockAcquired},
				map[string]any{"lock": requested, "lock_expires_at": deadline}
		case requested:
			return &LockResult{Outcome: LockRefreshed, Existing: held},
				map[string]any{"lock_expires_at": deadline}
		default:
			return &LockResult{Outcome: LockConflict, Existing: held}, nil
		}
	})
}

// UnlockFile releases a held lock when the presented token byte-matches.
func (s *GORMStore) UnlockFile(ctx context.Context, id uuid.UUID, lock string) (*LockResult, error) {
	return s.lockTxn(ctx, id, func(file *models.File, now time.Time) (*LockResult, map[string]any) {
		switch held := file.HeldLock(now); held {
		case "":
			return &LockResult{Outcome: LockNotHeld}, nil
		case lock:
			return &LockResult{Outcome: LockAcquired, Existing: held},
				map[string]any{"lock": nil, "lock_expires_at": nil}
		default:
			return &LockResult{Outcome: LockConflict, Existing: held}, nil
		}
	})
}

// UnlockAndRelock atomically swaps oldLock for newLock, starting a fresh
// lock period.
func (s *GORMStore) UnlockAndRelock(ctx context.Context, id uuid.UUID, oldLock, newLock string) (*LockResult, error) {
	return s.lockTxn(ctx, id, func(file *models.File, now time.Time) (*LockResult, map[string]any) {
		switch held := file.HeldLock(now); held {
		case "":
			return &LockResult{Outcome: LockNotHeld}, nil
		case oldLock:
			return &LockResult{Outcome: LockAcquired, Existing: held},
				map[string]any{"lock": newLock, "lock_expires_at": now.Add(models.LockDuration)}
		default:
			return &LockResult{Outcome: LockConflict, Existing: held}, nil
		}
	})
}

// ExtendLock pushes out the deadline of a held, matching lock.
func (s *GORMStore) ExtendLock(ctx context.Context, id uuid.UUID, lock string) (*LockResult, error) {
	return s.lockTxn(ctx, id, func(file *models.File, now time.Time) (*LockResult, map[string]any) {
		switch held := file.HeldLock(now); held {
		case "":
			return &LockResult{Outcome: LockNotHeld}, nil
		case lock:
			return &LockResult{Outcome: LockRefreshed, Existing: held},
				map[string]any{"lock_expires_at": now.Add(models.LockDuration)}
		default:
			return &LockResult{Outcome: LockConflict, Existing: held}, nil
		}
	})
}
