package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/genbu-cloud/genbu/pkg/store/models"
)

// CreateToken mints an access token binding userID to fileID.
func (s *GORMStore) CreateToken(ctx context.Context, userID, fileID uuid.UUID, from string) (uuid.UUID, error) {
	token := models.AccessToken{
		Token:       uuid.New(),
		UserID:      userID,
		FileID:      fileID,
		CreatedFrom: from,
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return uuid.Nil, fmt.Errorf("failed to create access token: %w", err)
	}
	return token.Token, nil
}

// GetTokenContext resolves a token to its bound user and file.
func (s *GORMStore) GetTokenContext(ctx context.Context, token uuid.UUID) (*models.AccessToken, error) {
	var record models.AccessToken
	err := s.db.WithContext(ctx).First(&record, "token = ?", token).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrTokenNotFound)
	}
	return &record, nil
}

// RevokeToken deletes a token. Revoking an unknown token reports
// models.ErrTokenNotFound.
func (s *GORMStore) RevokeToken(ctx context.Context, token uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.AccessToken{}, "token = ?", token)
	if res.Error != nil {
		return fmt.Errorf("failed to revoke access token: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.ErrTokenNotFound
	}
	return nil
}
