package accesstoken

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbu-cloud/genbu/pkg/store"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	return New(st)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	userID := uuid.New()
	fileID := uuid.New()

	token, err := svc.Create(ctx, userID, fileID, "192.0.2.1")
	require.NoError(t, err)

	granted, err := svc.Resolve(ctx, token.String())
	require.NoError(t, err)
	require.NotNil(t, granted)
	assert.Equal(t, userID, granted.UserID)
	assert.Equal(t, fileID, granted.FileID)
}

func TestResolveUnknownToken(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	granted, err := svc.Resolve(ctx, uuid.NewString())
	require.NoError(t, err)
	assert.Nil(t, granted)
}

func TestResolveMalformedToken(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	granted, err := svc.Resolve(ctx, "not-a-uuid")
	require.NoError(t, err)
	assert.Nil(t, granted)
}

func TestRevoke(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	token, err := svc.Create(ctx, uuid.New(), uuid.New(), "")
	require.NoError(t, err)

	require.NoError(t, svc.Revoke(ctx, token))
	granted, err := svc.Resolve(ctx, token.String())
	require.NoError(t, err)
	assert.Nil(t, granted)

	// Revoking again is a no-op.
	assert.NoError(t, svc.Revoke(ctx, token))
}
