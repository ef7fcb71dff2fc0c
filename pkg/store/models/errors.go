package models

import "errors"

// Common errors for metadata store operations.
var (
	// User errors
	ErrUserNotFound   = errors.New("user not found")
	ErrDuplicateEmail = errors.New("a user with this email already exists")

	// File errors
	ErrFileNotFound  = errors.New("file not found")
	ErrDuplicatePath = errors.New("a file with this path already exists")

	// Lease errors
	ErrLeaseNotFound  = errors.New("upload lease not found")
	ErrLeaseExpired   = errors.New("upload lease has expired")
	ErrLeaseCompleted = errors.New("upload lease is already completed")
	ErrDuplicateLease = errors.New("an upload for this object is already pending")
	ErrInvalidSize    = errors.New("invalid or missing file size")
	ErrFileTooLarge   = errors.New("file exceeds the maximum upload size")

	// Token errors
	ErrTokenNotFound = errors.New("access token not found")
)
