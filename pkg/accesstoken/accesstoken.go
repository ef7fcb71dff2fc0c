// Package accesstoken issues and resolves the single-file capability tokens
// WOPI editors authenticate with.
package accesstoken

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/internal/logger"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// Context is what a resolved token grants: one user acting on one file.
type Context struct {
	UserID uuid.UUID
	FileID uuid.UUID
}

// Service mints, resolves and revokes access tokens.
type Service struct {
	store store.TokenStore
}

// New creates an access-token service.
func New(st store.TokenStore) *Service {
	return &Service{store: st}
}

// Create mints a token binding user to file. from records where the token
// was requested from, for audit.
func (s *Service) Create(ctx context.Context, userID, fileID uuid.UUID, from string) (uuid.UUID, error) {
	token, err := s.store.CreateToken(ctx, userID, fileID, from)
	if err != nil {
		return uuid.Nil, err
	}
	logger.Debug("access token issued", "user_id", userID, "file_id", fileID, "from", from)
	return token, nil
}

// Resolve returns the context a token grants, or nil when the token is
// unknown or malformed. Unknown tokens are not an error; every WOPI entry
// goes through this check.
func (s *Service) Resolve(ctx context.Context, raw string) (*Context, error) {
	token, err := uuid.Parse(raw)
	if err != nil {
		return nil, nil
	}
	record, err := s.store.GetTokenContext(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrTokenNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &Context{UserID: record.UserID, FileID: record.FileID}, nil
}

// Revoke invalidates a token. Revoking an unknown token is not an error.
func (s *Service) Revoke(ctx context.Context, token uuid.UUID) error {
	err := s.store.RevokeToken(ctx, token)
	if errors.Is(err, models.ErrTokenNotFound) {
		return nil
	}
	return err
}
