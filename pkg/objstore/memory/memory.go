// Package memory provides an in-memory objstore.Storage used by tests.
//
// Multipart uploads are simulated: PresignPart vends memory:// URLs and the
// test harness stages part bytes with PutPart, the way a real client would
// PUT against a presigned URL.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/objstore"
)

type object struct {
	data         []byte
	lastModified time.Time
}

type multipartSession struct {
	bucket objstore.Bucket
	key    string
	parts  map[int32][]byte
	etags  map[int32]string
}

// Store is an in-memory object store. Safe for concurrent use.
type Store struct {
	mu       sync.Mutex
	buckets  map[objstore.Bucket]map[string]object
	sessions map[string]*multipartSession
}

// New creates an empty store. Buckets must still be created via
// EnsureBucket, mirroring the production startup sequence.
func New() *Store {
	return &Store{
		buckets:  make(map[objstore.Bucket]map[string]object),
		sessions: make(map[string]*multipartSession),
	}
}

func (s *Store) EnsureBucket(_ context.Context, b objstore.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[b]; !ok {
		s.buckets[b] = make(map[string]object)
	}
	return nil
}

func (s *Store) DeleteBucket(_ context.Context, b objstore.Bucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, b)
	return nil
}

func (s *Store) bucket(b objstore.Bucket) (map[string]object, error) {
	objects, ok := s.buckets[b]
	if !ok {
		return nil, objstore.NewError("bucket", fmt.Errorf("bucket %q does not exist", b.Name()))
	}
	return objects, nil
}

func (s *Store) PresignGet(_ context.Context, b objstore.Bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s?op=get&expires=%d", b.Name(), key, int(ttl.Seconds())), nil
}

func (s *Store) PresignPut(_ context.Context, b objstore.Bucket, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s?op=put&expires=%d", b.Name(), key, int(ttl.Seconds())), nil
}

func (s *Store) StartMultipart(_ context.Context, b objstore.Bucket, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.bucket(b); err != nil {
		return "", err
	}
	uploadID := uuid.NewString()
	s.sessions[uploadID] = &multipartSession{
		bucket: b,
		key:    key,
		parts:  make(map[int32][]byte),
		etags:  make(map[int32]string),
	}
	return uploadID, nil
}

func (s *Store) PresignPart(_ context.Context, b objstore.Bucket, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	if partNumber < 1 || partNumber > objstore.MaxPartNumber {
		return "", objstore.NewPresignError("PresignPart",
			fmt.Errorf("part number %d out of range [1, %d]", partNumber, objstore.MaxPartNumber))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[uploadID]; !ok {
		return "", objstore.NewError("PresignPart", fmt.Errorf("upload session %s not found", uploadID))
	}
	return fmt.Sprintf("memory://%s/%s?uploadId=%s&partNumber=%d", b.Name(), key, uploadID, partNumber), nil
}

// PutPart stages part bytes for an open session and returns the part's
// ETag, standing in for the client's PUT against a presigned URL.
func (s *Store) PutPart(uploadID string, partNumber int32, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[uploadID]
	if !ok {
		return "", objstore.NewError("PutPart", fmt.Errorf("upload session %s not found", uploadID))
	}
	etag := fmt.Sprintf("%q", uuid.NewString())
	session.parts[partNumber] = append([]byte(nil), data...)
	session.etags[partNumber] = etag
	return etag, nil
}

func (s *Store) CompleteMultipart(_ context.Context, b objstore.Bucket, key, uploadID string, parts []objstore.Part) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[uploadID]
	if !ok {
		return objstore.NewError("CompleteMultipart", fmt.Errorf("upload session %s not found", uploadID))
	}
	objects, err := s.bucket(b)
	if err != nil {
		return err
	}

	ordered := append([]objstore.Part(nil), parts...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].PartNumber < ordered[j].PartNumber })

	var data []byte
	for _, p := range ordered {
		staged, ok := session.parts[p.PartNumber]
		if !ok {
			return objstore.NewError("CompleteMultipart", fmt.Errorf("part %d was never uploaded", p.PartNumber))
		}
		if session.etags[p.PartNumber] != p.ETag {
			return objstore.NewError("CompleteMultipart", fmt.Errorf("etag mismatch for part %d", p.PartNumber))
		}
		data = append(data, staged...)
	}

	objects[key] = object{data: data, lastModified: time.Now()}
	delete(s.sessions, uploadID)
	return nil
}

func (s *Store) AbortMultipart(_ context.Context, _ objstore.Bucket, _ string, uploadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, uploadID)
	return nil
}

func (s *Store) Upload(_ context.Context, b objstore.Bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.bucket(b)
	if err != nil {
		return err
	}
	objects[key] = object{data: append([]byte(nil), data...), lastModified: time.Now()}
	return nil
}

func (s *Store) Download(_ context.Context, b objstore.Bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.bucket(b)
	if err != nil {
		return nil, err
	}
	obj, ok := objects[key]
	if !ok {
		return nil, objstore.NewError("Download", fmt.Errorf("no such key %q", key))
	}
	return append([]byte(nil), obj.data...), nil
}

// List mirrors S3 prefix+delimiter semantics: keys containing the delimiter
// after the prefix are rolled up into common prefixes.
func (s *Store) List(_ context.Context, b objstore.Bucket, prefix, delimiter string) (*objstore.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.bucket(b)
	if err != nil {
		return nil, err
	}

	listing := &objstore.Listing{}
	seenPrefixes := make(map[string]bool)

	keys := make([]string, 0, len(objects))
	for key := range objects {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		if delimiter != "" {
			if idx := strings.Index(rest, delimiter); idx >= 0 {
				cp := prefix + rest[:idx+len(delimiter)]
				if !seenPrefixes[cp] {
					seenPrefixes[cp] = true
					listing.CommonPrefixes = append(listing.CommonPrefixes, cp)
				}
				continue
			}
		}
		obj := objects[key]
		listing.Objects = append(listing.Objects, objstore.ObjectInfo{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.lastModified,
		})
	}
	return listing, nil
}

func (s *Store) Delete(_ context.Context, b objstore.Bucket, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	objects, err := s.bucket(b)
	if err != nil {
		return err
	}
	delete(objects, key)
	return nil
}

// OpenSessions returns the number of in-flight multipart sessions.
// Used by tests asserting abort-on-failure behavior.
func (s *Store) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

var _ objstore.Storage = (*Store)(nil)
