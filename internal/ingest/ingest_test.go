package ingest

import (
	"context"
	"errors"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Todor-5rov/Vexcel/internal/backup"
	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/events"
	"github.com/Todor-5rov/Vexcel/internal/logging"
	"github.com/Todor-5rov/Vexcel/internal/mcp"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

type memRemote struct {
	mu      gosync.Mutex
	healthy bool
	files   map[string][]byte
	deleted []string
}

func newMemRemote() *memRemote {
	return &memRemote{healthy: true, files: map[string][]byte{}}
}

func (r *memRemote) Health(context.Context) bool { return r.healthy }

func (r *memRemote) Upload(_ context.Context, owner, name string, content []byte) (*mcp.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.files[mcp.JoinPath(owner, name)] = append([]byte(nil), content...)
	return &mcp.File{Filename: name, RelativePath: mcp.JoinPath(owner, name), SizeBytes: int64(len(content))}, nil
}

func (r *memRemote) Download(_ context.Context, owner, name string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	data, ok := r.files[mcp.JoinPath(owner, name)]
	if !ok {
		return nil, &mcp.StatusError{Op: "download", StatusCode: 404}
	}
	return data, nil
}

func (r *memRemote) Delete(_ context.Context, owner, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, mcp.JoinPath(owner, name))
	delete(r.files, mcp.JoinPath(owner, name))
	return nil
}

type fakeCloud struct {
	enabled   bool
	uploadErr error
	pushErr   error
	pushes    int
}

func (c *fakeCloud) Status(context.Context) (cloud.Status, error) {
	return cloud.Status{Enabled: c.enabled}, nil
}

func (c *fakeCloud) Upload(_ context.Context, owner, name string, _ []byte, folder string, allowEdit bool) (*cloud.UploadResult, error) {
	if c.uploadErr != nil {
		return nil, c.uploadErr
	}
	return &cloud.UploadResult{
		FileID:     "OD-" + name,
		WebURL:     "https://onedrive.test/" + name,
		EmbedURL:   "https://onedrive.test/embed?resid=1&amp;em=2",
		FolderPath: folder + "/" + owner,
	}, nil
}

func (c *fakeCloud) SyncLocalToCloud(context.Context, string, string, string) (*cloud.SyncResponse, error) {
	c.pushes++
	if c.pushErr != nil {
		return nil, c.pushErr
	}
	return &cloud.SyncResponse{EmbedURL: "https://onedrive.test/embed?v=2&amp;em=2"}, nil
}

func (c *fakeCloud) SyncCloudToLocal(context.Context, string, string, string) (*cloud.SyncResponse, error) {
	return &cloud.SyncResponse{}, nil
}

func (c *fakeCloud) GetEmbedURL(_ context.Context, fileID string, allowEdit bool) (string, error) {
	if allowEdit {
		return "https://onedrive.test/edit?id=" + fileID + "&amp;x=1", nil
	}
	return "https://onedrive.test/view?id=" + fileID, nil
}

func (c *fakeCloud) List(context.Context, string, string) ([]cloud.File, error) { return nil, nil }

type fakeBackup struct {
	err     error
	deleted []string
}

func (b *fakeBackup) Put(_ context.Context, owner, name string, _ []byte) (string, error) {
	if b.err != nil {
		return "", b.err
	}
	return owner + "/1-file.xlsx", nil
}

func (b *fakeBackup) Delete(_ context.Context, key string) error {
	b.deleted = append(b.deleted, key)
	return nil
}

type harness struct {
	up     *Uploader
	remote *memRemote
	cloud  *fakeCloud
	backup *fakeBackup
	files  *store.SQLRepository
	hub    *events.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := store.Open(ctx, store.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, store.Migrate(ctx, db, store.DriverSQLite, logging.Discard()))

	h := &harness{
		remote: newMemRemote(),
		cloud:  &fakeCloud{enabled: true},
		backup: &fakeBackup{},
		files:  store.NewSQLRepository(db),
		hub:    events.NewHub(logging.Discard()),
	}
	h.up = New(Config{
		Remote: h.remote,
		Cloud:  h.cloud,
		Backup: h.backup,
		Files:  h.files,
		Events: h.hub,
		Logger: logging.Discard(),
	})
	return h
}

func workbook(t *testing.T) []byte {
	t.Helper()
	data, err := xlsx.WriteBytes("Sheet1", [][]string{{"Name", "Salary"}, {"Ann", "10"}, {"Bob", "20"}})
	require.NoError(t, err)
	return data
}

func TestUploadStoresEverywhere(t *testing.T) {
	h := newHarness(t)
	uploads, unsub := h.hub.Subscribe("u1")
	defer unsub()

	rep, err := h.up.Upload(context.Background(), "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)
	assert.Empty(t, rep.CloudError)
	assert.Empty(t, rep.BackupError)

	f, err := h.files.Get(context.Background(), rep.File.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "u1/sales.xlsx", f.RemotePath)
	assert.Equal(t, "OD-sales.xlsx", f.CloudFileID)
	assert.Equal(t, "https://onedrive.test/embed?resid=1&em=2", f.CloudEmbedURL)
	assert.Equal(t, "excel-files/u1", f.CloudFolder)
	assert.Equal(t, "u1/1-file.xlsx", f.BackupKey)
	require.NotNil(t, f.CloudUploadedAt)

	select {
	case ev := <-uploads:
		assert.Equal(t, events.TypeUploaded, ev.Type)
		assert.Equal(t, f.ID, ev.FileID)
	case <-time.After(time.Second):
		t.Fatal("no upload event")
	}
}

func TestUploadToleratesCloudAndBackupFailures(t *testing.T) {
	h := newHarness(t)
	h.cloud.uploadErr = errors.New("OneDrive upload failed: 500 - boom")
	h.backup.err = errors.New("bucket missing")

	rep, err := h.up.Upload(context.Background(), "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)
	assert.Contains(t, rep.CloudError, "500")
	assert.Equal(t, "bucket missing", rep.BackupError)

	f, err := h.files.Get(context.Background(), rep.File.ID, "u1")
	require.NoError(t, err)
	assert.False(t, f.HasCloudCopy())
	assert.Empty(t, f.CloudEmbedURL)
	assert.Nil(t, f.CloudUploadedAt)
}

func TestUploadCloudDisabled(t *testing.T) {
	h := newHarness(t)
	h.cloud.enabled = false
	h.up.backup = backup.Noop{}

	rep, err := h.up.Upload(context.Background(), "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)
	assert.Contains(t, rep.CloudError, "disabled")
	assert.Empty(t, rep.BackupError, "a disabled backup store is not an error")
}

func TestUploadRejections(t *testing.T) {
	h := newHarness(t)

	_, err := h.up.Upload(context.Background(), "u1", Upload{Filename: "notes.txt", Content: []byte("x")})
	assert.ErrorIs(t, err, xlsx.ErrUnsupportedType)

	_, err = h.up.Upload(context.Background(), "u1", Upload{Filename: "broken.xlsx", Content: []byte("not a zip")})
	assert.ErrorIs(t, err, xlsx.ErrCorrupt)

	h.remote.healthy = false
	_, err = h.up.Upload(context.Background(), "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	assert.ErrorIs(t, err, ErrRemoteUnavailable)

	files, err := h.files.List(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadWaitsForSyncedOperation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	release, err := h.up.sync.Lock(ctx, "u1", "sales.xlsx")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.up.Upload(ctx, "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("upload finished while the file was locked: %v", err)
	case <-time.After(100 * time.Millisecond):
	}
	h.remote.mu.Lock()
	_, written := h.remote.files["u1/sales.xlsx"]
	h.remote.mu.Unlock()
	assert.False(t, written, "working copy replaced while locked")

	release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("upload did not resume after the lock was released")
	}

	// Other files are not blocked.
	release, err = h.up.sync.Lock(ctx, "u1", "sales.xlsx")
	require.NoError(t, err)
	defer release()
	_, err = h.up.Upload(ctx, "u1", Upload{Filename: "other.xlsx", Content: workbook(t)})
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = h.up.Upload(waitCtx, "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPreviewAndSave(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rep, err := h.up.Upload(ctx, "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)
	id := rep.File.ID

	table, err := h.up.Preview(ctx, "u1", id, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Salary"}, table.Headers)
	assert.Equal(t, 3, table.RowCount, "header plus two rows")

	before := time.Now().Truncate(time.Millisecond)
	saved, err := h.up.Save(ctx, "u1", id, [][]string{{"Name", "Salary"}, {"Ann", "15"}, {"Bob", "20"}, {"Cy", "30"}})
	require.NoError(t, err)
	assert.True(t, saved.Sync.Success)
	assert.True(t, saved.Sync.EmbedURLUpdated)
	assert.Equal(t, 1, h.cloud.pushes)

	f, err := h.files.Get(ctx, id, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://onedrive.test/embed?v=2&em=2", f.CloudEmbedURL)
	assert.Equal(t, saved.FileSize, f.SizeBytes)
	require.NotNil(t, f.LastSyncedAt)
	assert.False(t, f.LastSyncedAt.Before(before))

	table, err = h.up.Preview(ctx, "u1", id, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, table.RowCount)
}

func TestSaveCloudFailureStillSaves(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rep, err := h.up.Upload(ctx, "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)
	h.cloud.pushErr = errors.New("OneDrive sync to OneDrive failed: 500 - boom")

	saved, err := h.up.Save(ctx, "u1", rep.File.ID, [][]string{{"Name"}, {"Zed"}})
	require.NoError(t, err)
	assert.False(t, saved.Sync.Success)

	f, err := h.files.Get(ctx, rep.File.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "https://onedrive.test/embed?resid=1&em=2", f.CloudEmbedURL, "embed URL unchanged after a failed push")
}

func TestRefreshEmbed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rep, err := h.up.Upload(ctx, "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)

	url, err := h.up.RefreshEmbed(ctx, "u1", rep.File.ID, true)
	require.NoError(t, err)
	assert.Equal(t, "https://onedrive.test/edit?id=OD-sales.xlsx&x=1", url)

	f, _ := h.files.Get(ctx, rep.File.ID, "u1")
	assert.Equal(t, url, f.CloudEmbedURL)

	h.cloud.uploadErr = errors.New("down")
	rep2, err := h.up.Upload(ctx, "u1", Upload{Filename: "other.xlsx", Content: workbook(t)})
	require.NoError(t, err)
	_, err = h.up.RefreshEmbed(ctx, "u1", rep2.File.ID, false)
	assert.ErrorIs(t, err, ErrNoCloudCopy)
}

func TestDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	rep, err := h.up.Upload(ctx, "u1", Upload{Filename: "sales.xlsx", Content: workbook(t)})
	require.NoError(t, err)

	assert.ErrorIs(t, h.up.Delete(ctx, "u2", rep.File.ID), store.ErrNotFound)

	require.NoError(t, h.up.Delete(ctx, "u1", rep.File.ID))
	_, err = h.files.Get(ctx, rep.File.ID, "u1")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, []string{"u1/sales.xlsx"}, h.remote.deleted)
	assert.Equal(t, []string{"u1/1-file.xlsx"}, h.backup.deleted)
}
