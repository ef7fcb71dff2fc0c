package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an account in the service. Authentication itself (password
// verification, session minting) lives in the API layer; the store only
// persists the bcrypt hash.
type User struct {
	ID        uuid.UUID  `gorm:"primaryKey;type:uuid" json:"id"`
	Name      string     `gorm:"size:255" json:"name"`
	Email     string     `gorm:"uniqueIndex;not null;size:255" json:"email"`
	Hash      string     `gorm:"not null" json:"-"`
	Avatar    *uuid.UUID `gorm:"type:uuid" json:"avatar,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for User.
func (User) TableName() string { return "users" }
