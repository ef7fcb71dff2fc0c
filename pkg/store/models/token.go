package models

import (
	"github.com/google/uuid"
)

// AccessToken is a single-file WOPI capability: it grants the holder the
// operations of exactly one file, acting as exactly one user. Tokens are
// not time-bounded in the store; revocation is explicit.
type AccessToken struct {
	Token       uuid.UUID `gorm:"primaryKey;type:uuid" json:"token"`
	UserID      uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	FileID      uuid.UUID `gorm:"type:uuid;not null;index" json:"file_id"`
	CreatedFrom string    `gorm:"size:64" json:"created_from"`
}

// TableName returns the table name for AccessToken.
func (AccessToken) TableName() string { return "access_tokens" }
