// Package filesystem projects the userfiles bucket into a per-user
// directory view. There is no directory table; folders exist only as common
// prefixes of object keys.
package filesystem

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// Entry is one row of a directory listing. Size and LastModified are absent
// for folders.
type Entry struct {
	Name         string     `json:"name"`
	Owner        uuid.UUID  `json:"owner"`
	IsFolder     bool       `json:"is_folder"`
	Size         *int64     `json:"size,omitempty"`
	LastModified *time.Time `json:"last_modified,omitempty"`
}

// Service lists and deletes objects within a user's slice of the userfiles
// bucket. All paths are relative to the user's root; the user id prefix
// never leaks to callers.
type Service struct {
	backend objstore.Storage
}

// New creates a filesystem service.
func New(backend objstore.Storage) *Service {
	return &Service{backend: backend}
}

// List returns the entries directly under basePath in the user's tree.
// Objects at deeper levels are rolled up into folders.
func (s *Service) List(ctx context.Context, userID uuid.UUID, basePath string) ([]Entry, error) {
	scope := userID.String() + models.PathSeparator
	prefix := scope + basePath

	listing, err := s.backend.List(ctx, objstore.UserFiles, prefix, models.PathSeparator)
	if err != nil {
		return nil, fmt.Errorf("failed to list user files: %w", err)
	}

	entries := make([]Entry, 0, len(listing.Objects)+len(listing.CommonPrefixes))
	for _, obj := range listing.Objects {
		size := obj.Size
		modified := obj.LastModified
		entries = append(entries, Entry{
			Name:         strings.TrimPrefix(obj.Key, scope),
			Owner:        userID,
			Size:         &size,
			LastModified: &modified,
		})
	}
	for _, cp := range listing.CommonPrefixes {
		entries = append(entries, Entry{
			Name:     strings.TrimPrefix(cp, scope),
			Owner:    userID,
			IsFolder: true,
		})
	}
	return entries, nil
}

// Delete removes the object at path in the user's tree. Folders are not
// deleted recursively.
func (s *Service) Delete(ctx context.Context, userID uuid.UUID, path string) error {
	key := userID.String() + models.PathSeparator + path
	if err := s.backend.Delete(ctx, objstore.UserFiles, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", path, err)
	}
	return nil
}
