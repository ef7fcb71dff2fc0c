// Package models defines the persisted entities of the genbu metadata
// store: users, file records, upload leases, and WOPI access tokens.
package models

// AllModels returns every model for GORM AutoMigrate, in dependency order.
func AllModels() []any {
	return []any{
		&User{},
		&File{},
		&UploadLease{},
		&AccessToken{},
	}
}
