// Package objstore defines the object-storage backend contract used by the
// upload, WOPI, and filesystem engines.
//
// Implementations adapt an S3-compatible store (pkg/objstore/s3 in
// production, pkg/objstore/memory in tests). The backend never retries;
// retry policy belongs to callers.
package objstore

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Bucket is a closed enum of the object-store namespaces genbu uses. The
// value of each constant is the physical bucket name.
type Bucket string

const (
	// ProfileImages holds user avatars.
	ProfileImages Bucket = "avatars"
	// VideoFiles holds uploaded video content.
	VideoFiles Bucket = "videos"
	// UserFiles holds the per-user virtual filesystem.
	UserFiles Bucket = "userfiles"
	// NotebookFiles holds notebook documents.
	NotebookFiles Bucket = "notebookfiles"
)

// Buckets lists every bucket the service manages. They are created on
// startup via EnsureBucket.
var Buckets = []Bucket{ProfileImages, VideoFiles, UserFiles, NotebookFiles}

// ParseBucket validates a wire-level bucket name.
func ParseBucket(s string) (Bucket, error) {
	b := Bucket(s)
	switch b {
	case ProfileImages, VideoFiles, UserFiles, NotebookFiles:
		return b, nil
	}
	return "", fmt.Errorf("unknown bucket %q", s)
}

// Name returns the physical bucket name.
func (b Bucket) Name() string { return string(b) }

// Value implements driver.Valuer so leases can persist their bucket.
func (b Bucket) Value() (driver.Value, error) { return string(b), nil }

// Scan implements sql.Scanner.
func (b *Bucket) Scan(src any) error {
	switch v := src.(type) {
	case string:
		*b = Bucket(v)
	case []byte:
		*b = Bucket(v)
	default:
		return fmt.Errorf("cannot scan %T into Bucket", src)
	}
	return nil
}

// MarshalJSON serializes the bucket as its physical name.
func (b Bucket) MarshalJSON() ([]byte, error) { return json.Marshal(string(b)) }

// UnmarshalJSON validates on decode.
func (b *Bucket) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseBucket(s)
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Part identifies one completed part of a multipart upload. The JSON shape
// matches what clients echo back from the S3 part-upload responses.
type Part struct {
	ETag       string `json:"e_tag"`
	PartNumber int32  `json:"part_number"`
}

// MaxPartNumber is the highest part number S3 accepts.
const MaxPartNumber = 10_000

// ObjectInfo describes one listed object.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// Listing is the result of a prefix+delimiter listing: objects at this level
// plus the common prefixes ("folders") below it.
type Listing struct {
	Objects        []ObjectInfo
	CommonPrefixes []string
}

// Storage is the object-backend contract.
//
// All operations take a context and suspend at the underlying store call.
// Implementations classify failures via Error but never retry.
type Storage interface {
	// EnsureBucket creates the bucket if missing. Already-exists (owned by
	// us) is success.
	EnsureBucket(ctx context.Context, b Bucket) error

	// DeleteBucket removes a bucket. Only used by the debug reset path.
	DeleteBucket(ctx context.Context, b Bucket) error

	// PresignGet returns a presigned download URL for the object.
	PresignGet(ctx context.Context, b Bucket, key string, ttl time.Duration) (string, error)

	// PresignPut returns a presigned single-shot upload URL.
	PresignPut(ctx context.Context, b Bucket, key string, ttl time.Duration) (string, error)

	// StartMultipart opens a multipart upload session and returns its id.
	StartMultipart(ctx context.Context, b Bucket, key string) (string, error)

	// PresignPart returns a presigned URL for one part of an open multipart
	// session. partNumber must be in [1, MaxPartNumber].
	PresignPart(ctx context.Context, b Bucket, key, uploadID string, partNumber int32, ttl time.Duration) (string, error)

	// CompleteMultipart commits the session with the given parts.
	CompleteMultipart(ctx context.Context, b Bucket, key, uploadID string, parts []Part) error

	// AbortMultipart cancels the session. Idempotent.
	AbortMultipart(ctx context.Context, b Bucket, key, uploadID string) error

	// Upload writes the object in a single request.
	Upload(ctx context.Context, b Bucket, key string, data []byte) error

	// Download reads the whole object.
	Download(ctx context.Context, b Bucket, key string) ([]byte, error)

	// List performs a prefix+delimiter listing.
	List(ctx context.Context, b Bucket, prefix, delimiter string) (*Listing, error)

	// Delete removes a single object.
	Delete(ctx context.Context, b Bucket, key string) error
}
