package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// PathSeparator separates segments of the virtual file path. Object keys in
// the userfiles bucket use the same separator, so a File's Path doubles as
// its object key.
const PathSeparator = "\\"

// LockDuration is how long a WOPI lock is held before it lapses. Every
// matching Lock or RefreshLock pushes the deadline out again.
const LockDuration = 30 * time.Minute

// File is the metadata record of one object in the userfiles bucket.
//
// Lock and LockExpiresAt are set and cleared together. A lock whose
// deadline has passed is treated as absent by every transition (lazy
// expiry); the columns may keep their stale values until the next write.
type File struct {
	ID            uuid.UUID  `gorm:"primaryKey;type:uuid" json:"id"`
	Path          string     `gorm:"uniqueIndex;not null" json:"path"`
	Size          int64      `gorm:"not null;default:0" json:"size"`
	Lock          *string    `json:"-"`
	LockExpiresAt *time.Time `json:"-"`
	CreatedBy     uuid.UUID  `gorm:"type:uuid;not null" json:"created_by"`
	CreatedAt     time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for File.
func (File) TableName() string { return "files" }

// NewFile builds a record for path owned by createdBy.
func NewFile(path string, createdBy uuid.UUID, size int64) *File {
	return &File{
		ID:        uuid.New(),
		Path:      path,
		Size:      size,
		CreatedBy: createdBy,
	}
}

// IsLocked reports whether the file currently holds a live lock.
func (f *File) IsLocked(now time.Time) bool {
	return f.Lock != nil && f.LockExpiresAt != nil && now.Before(*f.LockExpiresAt)
}

// HeldLock returns the live lock token, or "" when unlocked.
func (f *File) HeldLock(now time.Time) string {
	if !f.IsLocked(now) {
		return ""
	}
	return *f.Lock
}

// Name returns the final path segment, extension included.
func (f *File) Name() string {
	segments := strings.Split(f.Path, PathSeparator)
	return segments[len(segments)-1]
}

// ParentFolder returns everything up to and including the final separator,
// so that ParentFolder()+child is a valid sibling path.
func (f *File) ParentFolder() string {
	idx := strings.LastIndex(f.Path, PathSeparator)
	if idx < 0 {
		return ""
	}
	return f.Path[:idx+len(PathSeparator)]
}
