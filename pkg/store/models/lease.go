package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/objstore"
)

// LeaseDuration is how long an upload lease stays redeemable.
const LeaseDuration = 6 * time.Hour

// UploadLease reserves an object name in a bucket and pairs it with an open
// multipart session at the backend.
//
// Lifecycle: Pending (completed=false, before expiry) -> Completed, or
// Pending -> Expired once ExpiresAt passes. Completed and Expired are
// terminal; only Pending leases may re-issue part URLs.
type UploadLease struct {
	ID         uuid.UUID       `gorm:"primaryKey;type:uuid" json:"id"`
	Owner      uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner"`
	S3UploadID string          `gorm:"not null" json:"s3_upload_id"`
	Name       string          `gorm:"not null" json:"name"`
	Bucket     objstore.Bucket `gorm:"not null;size:32" json:"bucket"`
	Size       int64           `gorm:"not null" json:"size"`
	Completed  bool            `gorm:"not null;default:false" json:"completed"`
	CreatedAt  time.Time       `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt  time.Time       `gorm:"not null" json:"expires_at"`
}

// TableName returns the table name for UploadLease.
func (UploadLease) TableName() string { return "upload_leases" }

// Expired reports whether the lease can no longer be redeemed.
func (l *UploadLease) Expired(now time.Time) bool {
	return now.After(l.ExpiresAt)
}
