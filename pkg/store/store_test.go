package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

func setupTestStore(t *testing.T) *GORMStore {
	t.Helper()
	s, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)
	return s
}

func createTestUser(t *testing.T, s *GORMStore, email string) *models.User {
	t.Helper()
	user := &models.User{
		Name:  "Test User",
		Email: email,
		Hash:  "$2a$10$notarealhashbutlongenough",
	}
	require.NoError(t, s.CreateUser(context.Background(), user))
	return user
}

func createTestFile(t *testing.T, s *GORMStore, path string) *models.File {
	t.Helper()
	file := models.NewFile(path, uuid.New(), 42)
	require.NoError(t, s.AddFile(context.Background(), file))
	return file
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid sqlite",
			config: Config{Type: DatabaseTypeSQLite, SQLite: SQLiteConfig{Path: ":memory:"}},
		},
		{
			name:    "sqlite without path",
			config:  Config{Type: DatabaseTypeSQLite},
			wantErr: true,
		},
		{
			name: "valid postgres",
			config: Config{
				Type:     DatabaseTypePostgres,
				Postgres: PostgresConfig{Host: "localhost", Database: "genbu", User: "genbu"},
			},
		},
		{
			name:    "postgres without host",
			config:  Config{Type: DatabaseTypePostgres, Postgres: PostgresConfig{Database: "genbu", User: "genbu"}},
			wantErr: true,
		},
		{
			name:    "unknown type",
			config:  Config{Type: "oracle"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	c := PostgresConfig{
		Host: "db", Port: 5432, User: "genbu", Password: "secret",
		Database: "genbu", SSLMode: "disable",
	}
	assert.Equal(t, "host=db port=5432 user=genbu password=secret dbname=genbu sslmode=disable", c.DSN())
}

func TestUserCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	user := createTestUser(t, s, "alice@example.com")
	require.NotEqual(t, uuid.Nil, user.ID)

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", got.Email)
	assert.Nil(t, got.Avatar)

	got, err = s.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	avatar := uuid.New()
	require.NoError(t, s.UpdateUserAvatar(ctx, user.ID, avatar))
	got, err = s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Avatar)
	assert.Equal(t, avatar, *got.Avatar)

	deleted, err := s.DeleteUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, user.ID, deleted.ID)

	_, err = s.GetUser(ctx, user.ID)
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	createTestUser(t, s, "bob@example.com")
	err := s.CreateUser(ctx, &models.User{Email: "bob@example.com", Hash: "x"})
	assert.ErrorIs(t, err, models.ErrDuplicateEmail)
}

func TestUserNotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.GetUser(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	err = s.UpdateUserAvatar(ctx, uuid.New(), uuid.New())
	assert.ErrorIs(t, err, models.ErrUserNotFound)

	_, err = s.DeleteUser(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrUserNotFound)
}

func TestFileCRUD(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	owner := uuid.New()
	file := models.NewFile(owner.String()+`\docs\report.docx`, owner, 1024)
	require.NoError(t, s.AddFile(ctx, file))

	got, err := s.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1024), got.Size)
	assert.Equal(t, "report.docx", got.Name())

	got, err = s.GetFileByPath(ctx, file.Path)
	require.NoError(t, err)
	assert.Equal(t, file.ID, got.ID)

	require.NoError(t, s.UpdateFileSize(ctx, file.ID, 2048))
	got, err = s.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), got.Size)
}

func TestAddFileDuplicatePath(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	file := createTestFile(t, s, `u\a.txt`)
	err := s.AddFile(ctx, models.NewFile(file.Path, uuid.New(), 0))
	assert.ErrorIs(t, err, models.ErrDuplicatePath)
}

func TestLockStateMachine(t *testing.T) {
	type step struct {
		op          string // lock, unlock, relock, extend
		token       string
		newToken    string
		wantOutcome LockOutcome
		wantHeld    string // expected Existing in the result
	}
	tests := []struct {
		name  string
		steps []step
	}{
		{
			name: "acquire then refresh same token",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "lock", token: "L1", wantOutcome: LockRefreshed, wantHeld: "L1"},
			},
		},
		{
			name: "acquire then conflicting lock",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "lock", token: "L2", wantOutcome: LockConflict, wantHeld: "L1"},
			},
		},
		{
			name: "unlock with matching token",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "unlock", token: "L1", wantOutcome: LockAcquired, wantHeld: "L1"},
				{op: "lock", token: "L2", wantOutcome: LockAcquired},
			},
		},
		{
			name: "unlock with wrong token",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "unlock", token: "L2", wantOutcome: LockConflict, wantHeld: "L1"},
			},
		},
		{
			name: "unlock while unlocked",
			steps: []step{
				{op: "unlock", token: "L1", wantOutcome: LockNotHeld},
			},
		},
		{
			name: "relock swaps tokens",
			steps: []step{
				{op: "lock", token: "OLD", wantOutcome: LockAcquired},
				{op: "relock", token: "OLD", newToken: "NEW", wantOutcome: LockAcquired, wantHeld: "OLD"},
				{op: "lock", token: "NEW", wantOutcome: LockRefreshed, wantHeld: "NEW"},
			},
		},
		{
			name: "relock with wrong old token",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "relock", token: "L2", newToken: "L3", wantOutcome: LockConflict, wantHeld: "L1"},
			},
		},
		{
			name: "relock while unlocked",
			steps: []step{
				{op: "relock", token: "L1", newToken: "L2", wantOutcome: LockNotHeld},
			},
		},
		{
			name: "extend matching lock",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "extend", token: "L1", wantOutcome: LockRefreshed, wantHeld: "L1"},
			},
		},
		{
			name: "extend with wrong token",
			steps: []step{
				{op: "lock", token: "L1", wantOutcome: LockAcquired},
				{op: "extend", token: "L2", wantOutcome: LockConflict, wantHeld: "L1"},
			},
		},
		{
			name: "extend while unlocked",
			steps: []step{
				{op: "extend", token: "L1", wantOutcome: LockNotHeld},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := setupTestStore(t)
			ctx := context.Background()
			file := createTestFile(t, s, `u\`+tt.name+`.docx`)

			for i, st := range tt.steps {
				var (
					res *LockResult
					err error
				)
				switch st.op {
				case "lock":
					res, err = s.LockFile(ctx, file.ID, st.token)
				case "unlock":
					res, err = s.UnlockFile(ctx, file.ID, st.token)
				case "relock":
					res, err = s.UnlockAndRelock(ctx, file.ID, st.token, st.newToken)
				case "extend":
					res, err = s.ExtendLock(ctx, file.ID, st.token)
				}
				require.NoError(t, err, "step %d", i)
				assert.Equal(t, st.wantOutcome, res.Outcome, "step %d outcome", i)
				assert.Equal(t, st.wantHeld, res.Existing, "step %d existing", i)
			}
		})
	}
}

func TestLockExpiryIsLazy(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	file := createTestFile(t, s, `u\stale.docx`)

	res, err := s.LockFile(ctx, file.ID, "L1")
	require.NoError(t, err)
	require.Equal(t, LockAcquired, res.Outcome)

	// Age the deadline past the lock window without touching the token.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, s.db.Model(&models.File{}).
		Where("id = ?", file.ID).
		Update("lock_expires_at", past).Error)

	// A lapsed lock behaves as absent for every transition.
	res, err = s.LockFile(ctx, file.ID, "L2")
	require.NoError(t, err)
	assert.Equal(t, LockAcquired, res.Outcome)

	got, err := s.GetFile(ctx, file.ID)
	require.NoError(t, err)
	assert.Equal(t, "L2", got.HeldLock(time.Now()))
}

func TestLockFileNotFound(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.LockFile(ctx, uuid.New(), "L1")
	assert.ErrorIs(t, err, models.ErrFileNotFound)
	_, err = s.UnlockFile(ctx, uuid.New(), "L1")
	assert.ErrorIs(t, err, models.ErrFileNotFound)
}

func TestLeaseLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	owner := uuid.New()

	lease := &models.UploadLease{
		Owner:      owner,
		S3UploadID: "upload-1",
		Name:       "video.mp4",
		Bucket:     objstore.VideoFiles,
		Size:       25_000_000,
	}
	require.NoError(t, s.AddLease(ctx, lease))
	require.NotEqual(t, uuid.Nil, lease.ID)
	assert.False(t, lease.ExpiresAt.IsZero())

	got, err := s.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, "upload-1", got.S3UploadID)
	assert.False(t, got.Completed)

	list, err := s.GetLeasesByUser(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 1)

	completed, err := s.MarkLeaseCompleted(ctx, lease.ID)
	require.NoError(t, err)
	assert.True(t, completed.Completed)

	// Completed is terminal; a retry reports it instead of redoing work.
	_, err = s.MarkLeaseCompleted(ctx, lease.ID)
	assert.ErrorIs(t, err, models.ErrLeaseCompleted)

	require.NoError(t, s.ReopenLease(ctx, lease.ID))
	got, err = s.GetLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.False(t, got.Completed)

	deleted, err := s.DeleteLease(ctx, lease.ID)
	require.NoError(t, err)
	assert.Equal(t, lease.ID, deleted.ID)
	_, err = s.GetLease(ctx, lease.ID)
	assert.ErrorIs(t, err, models.ErrLeaseNotFound)
}

func TestMarkLeaseCompletedExpired(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	lease := &models.UploadLease{
		Owner:      uuid.New(),
		S3UploadID: "upload-2",
		Name:       "old.bin",
		Bucket:     objstore.UserFiles,
		Size:       100,
		ExpiresAt:  time.Now().Add(-time.Hour),
	}
	require.NoError(t, s.AddLease(ctx, lease))

	_, err := s.MarkLeaseCompleted(ctx, lease.ID)
	assert.ErrorIs(t, err, models.ErrLeaseExpired)
}

func TestPruneExpiredLeases(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	owner := uuid.New()

	stale := &models.UploadLease{
		Owner: owner, S3UploadID: "u1", Name: "a", Bucket: objstore.UserFiles,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	live := &models.UploadLease{
		Owner: owner, S3UploadID: "u2", Name: "b", Bucket: objstore.UserFiles,
	}
	require.NoError(t, s.AddLease(ctx, stale))
	require.NoError(t, s.AddLease(ctx, live))

	pruned, err := s.PruneExpiredLeases(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, err = s.GetLease(ctx, stale.ID)
	assert.ErrorIs(t, err, models.ErrLeaseNotFound)
	_, err = s.GetLease(ctx, live.ID)
	assert.NoError(t, err)
}

func TestAccessTokens(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	userID := uuid.New()
	fileID := uuid.New()

	token, err := s.CreateToken(ctx, userID, fileID, "wopi")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, token)

	record, err := s.GetTokenContext(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, userID, record.UserID)
	assert.Equal(t, fileID, record.FileID)
	assert.Equal(t, "wopi", record.CreatedFrom)

	require.NoError(t, s.RevokeToken(ctx, token))
	_, err = s.GetTokenContext(ctx, token)
	assert.ErrorIs(t, err, models.ErrTokenNotFound)

	err = s.RevokeToken(ctx, token)
	assert.ErrorIs(t, err, models.ErrTokenNotFound)
}
