package wopi

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genbu-cloud/genbu/pkg/objstore"
	"github.com/genbu-cloud/genbu/pkg/objstore/memory"
	"github.com/genbu-cloud/genbu/pkg/store"
	"github.com/genbu-cloud/genbu/pkg/store/models"
)

type fixture struct {
	engine  *Engine
	store   *store.GORMStore
	backend *memory.Store
	owner   uuid.UUID
}

func setupEngine(t *testing.T) *fixture {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	})
	require.NoError(t, err)

	backend := memory.New()
	for _, b := range objstore.Buckets {
		require.NoError(t, backend.EnsureBucket(context.Background(), b))
	}
	return &fixture{
		engine:  New(st, backend, "https://genbu.example.com"),
		store:   st,
		backend: backend,
		owner:   uuid.New(),
	}
}

// addFile creates a record plus its backing object.
func (f *fixture) addFile(t *testing.T, name string, content []byte) *models.File {
	t.Helper()
	ctx := context.Background()
	path := f.owner.String() + models.PathSeparator + name
	file := models.NewFile(path, f.owner, int64(len(content)))
	require.NoError(t, f.store.AddFile(ctx, file))
	require.NoError(t, f.backend.Upload(ctx, objstore.UserFiles, path, content))
	return file
}

func TestCheckFileInfo(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	file := f.addFile(t, "report.docx", []byte("hello"))
	caller := uuid.New()

	res := f.engine.CheckFileInfo(ctx, file.ID, caller)
	require.Equal(t, StatusOK, res.Status)
	require.NotNil(t, res.Info)
	assert.Equal(t, "report.docx", res.Info.BaseFileName)
	assert.Equal(t, f.owner.String(), res.Info.OwnerID)
	assert.Equal(t, caller.String(), res.Info.UserID)
	assert.Equal(t, int64(5), res.Info.Size)
	assert.True(t, res.Info.SupportsLocks)
	assert.True(t, res.Info.SupportsGetLock)
	assert.True(t, res.Info.SupportsExtendedLockLength)
	assert.True(t, res.Info.SupportsUpdate)
	assert.True(t, res.Info.UserCanWrite)
	assert.False(t, res.Info.ReadOnly)
	assert.False(t, res.Info.UserCanNotWriteRelative)
	assert.Nil(t, res.Info.Version)

	res = f.engine.CheckFileInfo(ctx, uuid.New(), caller)
	assert.Equal(t, StatusNotFound, res.Status)
}

func TestLockProtocol(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	file := f.addFile(t, "doc.docx", []byte("x"))

	// Acquire.
	res := f.engine.Lock(ctx, file.ID, "L1")
	assert.Equal(t, StatusOK, res.Status)

	// Refresh with the same token.
	res = f.engine.Lock(ctx, file.ID, "L1")
	assert.Equal(t, StatusOK, res.Status)

	// Conflicting lock reports the holder.
	res = f.engine.Lock(ctx, file.ID, "L2")
	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, "L1", res.Lock)

	// GetLock sees the holder.
	res = f.engine.GetLock(ctx, file.ID)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "L1", res.Lock)

	// RefreshLock with wrong token conflicts.
	res = f.engine.RefreshLock(ctx, file.ID, "L2")
	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, "L1", res.Lock)

	// RefreshLock with the holder succeeds.
	res = f.engine.RefreshLock(ctx, file.ID, "L1")
	assert.Equal(t, StatusOK, res.Status)

	// UnlockAndRelock swaps tokens.
	res = f.engine.UnlockAndRelock(ctx, file.ID, "L1", "L3")
	assert.Equal(t, StatusOK, res.Status)
	res = f.engine.GetLock(ctx, file.ID)
	assert.Equal(t, "L3", res.Lock)

	// Unlock with wrong token conflicts.
	res = f.engine.Unlock(ctx, file.ID, "L1")
	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, "L3", res.Lock)

	// Unlock with the holder releases.
	res = f.engine.Unlock(ctx, file.ID, "L3")
	assert.Equal(t, StatusOK, res.Status)

	// Unlocking an unlocked file conflicts with an empty lock header.
	res = f.engine.Unlock(ctx, file.ID, "L3")
	assert.Equal(t, StatusConflict, res.Status)
	assert.Equal(t, "", res.Lock)
}

func TestLockNotFound(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	assert.Equal(t, StatusNotFound, f.engine.Lock(ctx, uuid.New(), "L1").Status)
	assert.Equal(t, StatusNotFound, f.engine.Unlock(ctx, uuid.New(), "L1").Status)
	assert.Equal(t, StatusNotFound, f.engine.GetLock(ctx, uuid.New()).Status)
	assert.Equal(t, StatusNotFound, f.engine.GetFile(ctx, uuid.New()).Status)
}

func TestExpiredLockIsIgnored(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	file := f.addFile(t, "stale.docx", []byte("x"))

	require.Equal(t, StatusOK, f.engine.Lock(ctx, file.ID, "L1").Status)

	past := time.Now().Add(-time.Minute)
	require.NoError(t, f.store.DB().Model(&models.File{}).
		Where("id = ?", file.ID).
		Update("lock_expires_at", past).Error)

	res := f.engine.GetLock(ctx, file.ID)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "", res.Lock)

	res = f.engine.Lock(ctx, file.ID, "L2")
	assert.Equal(t, StatusOK, res.Status)
}

func TestGetFile(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	file := f.addFile(t, "data.bin", []byte("payload"))

	res := f.engine.GetFile(ctx, file.ID)
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, []byte("payload"), res.Content)
}

func TestPutFile(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()

	t.Run("locked file accepts matching lock", func(t *testing.T) {
		file := f.addFile(t, "a.docx", []byte("old"))
		require.Equal(t, StatusOK, f.engine.Lock(ctx, file.ID, "L1").Status)

		res := f.engine.PutFile(ctx, file.ID, "L1", []byte("new content"))
		require.Equal(t, StatusOK, res.Status)

		data, err := f.backend.Download(ctx, objstore.UserFiles, file.Path)
		require.NoError(t, err)
		assert.Equal(t, []byte("new content"), data)

		got, err := f.store.GetFile(ctx, file.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(len("new content")), got.Size)
	})

	t.Run("locked file rejects wrong lock", func(t *testing.T) {
		file := f.addFile(t, "b.docx", []byte("old"))
		require.Equal(t, StatusOK, f.engine.Lock(ctx, file.ID, "L1").Status)

		res := f.engine.PutFile(ctx, file.ID, "L2", []byte("new"))
		assert.Equal(t, StatusConflict, res.Status)
		assert.Equal(t, "L1", res.Lock)
	})

	t.Run("locked file rejects missing lock", func(t *testing.T) {
		file := f.addFile(t, "c.docx", []byte("old"))
		require.Equal(t, StatusOK, f.engine.Lock(ctx, file.ID, "L1").Status)

		res := f.engine.PutFile(ctx, file.ID, "", []byte("new"))
		assert.Equal(t, StatusConflict, res.Status)
		assert.Equal(t, "L1", res.Lock)
	})

	t.Run("unlocked non-empty file rejects write", func(t *testing.T) {
		file := f.addFile(t, "d.docx", []byte("content"))

		res := f.engine.PutFile(ctx, file.ID, "", []byte("new"))
		assert.Equal(t, StatusConflict, res.Status)
		assert.Equal(t, "", res.Lock)
	})

	t.Run("unlocked empty file accepts write", func(t *testing.T) {
		file := f.addFile(t, "e.docx", nil)

		res := f.engine.PutFile(ctx, file.ID, "", []byte("first bytes"))
		require.Equal(t, StatusOK, res.Status)

		data, err := f.backend.Download(ctx, objstore.UserFiles, file.Path)
		require.NoError(t, err)
		assert.Equal(t, []byte("first bytes"), data)
	})
}

func TestPutRelativeFileSpecific(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	caller := uuid.New()

	source := f.addFile(t, "base.docx", []byte("src"))

	t.Run("creates sibling with token url", func(t *testing.T) {
		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{RelativeTarget: "copy.docx", Addr: "10.0.0.1"}, []byte("copied"))
		require.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "copy.docx", res.Name)
		assert.Contains(t, res.URL, "https://genbu.example.com/api/wopi/files/")
		assert.Contains(t, res.URL, "?access_token=")

		path := source.ParentFolder() + "copy.docx"
		file, err := f.store.GetFileByPath(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, caller, file.CreatedBy)

		data, err := f.backend.Download(ctx, objstore.UserFiles, path)
		require.NoError(t, err)
		assert.Equal(t, []byte("copied"), data)

		// The minted token resolves to the new file.
		token := res.URL[len(res.URL)-36:]
		parsed, err := uuid.Parse(token)
		require.NoError(t, err)
		record, err := f.store.GetTokenContext(ctx, parsed)
		require.NoError(t, err)
		assert.Equal(t, file.ID, record.FileID)
		assert.Equal(t, caller, record.UserID)
		assert.Equal(t, "10.0.0.1", record.CreatedFrom)
	})

	t.Run("existing unlocked target without overwrite", func(t *testing.T) {
		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{RelativeTarget: "copy.docx"}, []byte("again"))
		assert.Equal(t, StatusFileAlreadyExists, res.Status)
	})

	t.Run("existing locked target without overwrite", func(t *testing.T) {
		path := source.ParentFolder() + "copy.docx"
		existing, err := f.store.GetFileByPath(ctx, path)
		require.NoError(t, err)
		_, err = f.store.LockFile(ctx, existing.ID, "HELD")
		require.NoError(t, err)

		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{RelativeTarget: "copy.docx"}, []byte("again"))
		assert.Equal(t, StatusConflict, res.Status)
		assert.Equal(t, "HELD", res.Lock)
	})

	t.Run("existing target with overwrite", func(t *testing.T) {
		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{RelativeTarget: "over.docx"}, []byte("v1"))
		require.Equal(t, StatusOK, res.Status)

		res = f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{RelativeTarget: "over.docx", Overwrite: true}, []byte("v2 longer"))
		require.Equal(t, StatusOK, res.Status)

		path := source.ParentFolder() + "over.docx"
		data, err := f.backend.Download(ctx, objstore.UserFiles, path)
		require.NoError(t, err)
		assert.Equal(t, []byte("v2 longer"), data)

		file, err := f.store.GetFileByPath(ctx, path)
		require.NoError(t, err)
		assert.Equal(t, int64(len("v2 longer")), file.Size)
	})
}

func TestPutRelativeFileSuggested(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	caller := uuid.New()

	source := f.addFile(t, "note.docx", []byte("src"))

	t.Run("plain suggestion", func(t *testing.T) {
		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{SuggestedTarget: "draft.docx"}, []byte("d"))
		require.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "draft.docx", res.Name)
	})

	t.Run("extension suggestion appends to source name", func(t *testing.T) {
		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{SuggestedTarget: ".pdf"}, []byte("p"))
		require.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "note.docx.pdf", res.Name)
	})

	t.Run("collisions get a counter prefix", func(t *testing.T) {
		res := f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{SuggestedTarget: "draft.docx"}, []byte("d2"))
		require.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "1draft.docx", res.Name)

		res = f.engine.PutRelativeFile(ctx, source.ID, caller,
			&RelativeRequest{SuggestedTarget: "draft.docx"}, []byte("d3"))
		require.Equal(t, StatusOK, res.Status)
		assert.Equal(t, "2draft.docx", res.Name)
	})
}

func TestPutRelativeFileSuggestedManyCollisions(t *testing.T) {
	f := setupEngine(t)
	ctx := context.Background()
	caller := uuid.New()
	source := f.addFile(t, "busy.docx", []byte("s"))

	// Pre-seed a dense block of colliding names.
	for i := 0; i < 10; i++ {
		name := "crowd.docx"
		if i > 0 {
			name = strconv.Itoa(i) + name
		}
		path := source.ParentFolder() + name
		require.NoError(t, f.store.AddFile(ctx, models.NewFile(path, caller, 1)))
	}

	res := f.engine.PutRelativeFile(ctx, source.ID, caller,
		&RelativeRequest{SuggestedTarget: "crowd.docx"}, []byte("c"))
	require.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "10crowd.docx", res.Name)
}

func TestStatusString(t *testing.T) {
	for status, want := range map[Status]string{
		StatusOK:                "ok",
		StatusNotFound:          "not_found",
		StatusConflict:          "conflict",
		StatusFileAlreadyExists: "file_already_exists",
		StatusTooLarge:          "too_large",
		StatusInternal:          "internal",
	} {
		assert.Equal(t, want, status.String(), fmt.Sprintf("status %d", status))
	}
}
