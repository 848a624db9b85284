package files

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/ingest"
	"github.com/Todor-5rov/Vexcel/internal/logging"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/sync"
)

func init() {
	color.NoColor = true
}

func TestFileRows(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	synced := now.Add(-2 * time.Hour)
	rows := fileRows([]store.LogicalFile{
		{ID: "f1", Filename: "sales.xlsx", SizeBytes: 2048, UploadedAt: now.Add(-time.Minute * 5), CloudFileID: "OD1", LastSyncedAt: &synced},
		{ID: "f2", Filename: "local.xlsx", SizeBytes: 10, UploadedAt: now},
	}, now)

	assert.Equal(t, []string{"f1", "sales.xlsx", "2.0 KB", "yes", "5m ago", "2h ago"}, rows[0])
	assert.Equal(t, []string{"f2", "local.xlsx", "10 B", "-", "just now", "never"}, rows[1])
}

func TestPrintReport(t *testing.T) {
	var buf bytes.Buffer
	printReport(&buf, &ingest.Report{
		File:        &store.LogicalFile{ID: "f1", Filename: "q3.xlsx", SizeBytes: 10},
		CloudError:  "OneDrive upload failed: 500",
		BackupError: "bucket missing",
	})
	out := buf.String()
	assert.Contains(t, out, "✓ q3.xlsx: uploaded as f1 (10 B)")
	assert.Contains(t, out, "! OneDrive: OneDrive upload failed: 500")
	assert.Contains(t, out, "! Backup: bucket missing")
}

type pushCloud struct {
	cloud.Disabled
	pulls, pushes int
	pushErr       error
}

func (c *pushCloud) Status(context.Context) (cloud.Status, error) {
	return cloud.Status{Enabled: true}, nil
}

func (c *pushCloud) SyncCloudToLocal(context.Context, string, string, string) (*cloud.SyncResponse, error) {
	c.pulls++
	return &cloud.SyncResponse{Message: "pulled"}, nil
}

func (c *pushCloud) SyncLocalToCloud(context.Context, string, string, string) (*cloud.SyncResponse, error) {
	c.pushes++
	if c.pushErr != nil {
		return nil, c.pushErr
	}
	return &cloud.SyncResponse{Message: "File synced to OneDrive successfully", EmbedURL: "https://onedrive.test/e?a=1&amp;b=2"}, nil
}

type embedLog struct {
	urls []string
}

func (e *embedLog) UpdateEmbedURL(_ context.Context, _, _, embedURL string, _ time.Time) error {
	e.urls = append(e.urls, embedURL)
	return nil
}

func TestSync(t *testing.T) {
	c := &pushCloud{}
	rec := &embedLog{}
	o := sync.New(sync.Config{Cloud: c, Files: rec, Logger: logging.Discard()})
	f := &store.LogicalFile{ID: "f1", OwnerID: "u1", RemoteFilename: "sales.xlsx", CloudFileID: "OD1"}

	res, err := Sync(context.Background(), o, f, false)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, c.pulls)
	assert.Equal(t, 1, c.pushes)
	assert.Equal(t, []string{"https://onedrive.test/e?a=1&b=2"}, rec.urls)

	res, err = Sync(context.Background(), o, f, true)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, c.pulls)
}

func TestPrintSyncFailure(t *testing.T) {
	c := &pushCloud{pushErr: errors.New("OneDrive sync to OneDrive failed: 500 - boom")}
	o := sync.New(sync.Config{Cloud: c, Logger: logging.Discard()})
	f := &store.LogicalFile{ID: "f1", OwnerID: "u1", RemoteFilename: "sales.xlsx"}

	res, err := Sync(context.Background(), o, f, false)
	require.NoError(t, err, "sync problems are reported in the result")
	assert.False(t, res.Success)

	var buf bytes.Buffer
	printSync(&buf, res)
	assert.True(t, strings.Contains(buf.String(), "✗ OneDrive:"), buf.String())
}
