// Package ingest owns a spreadsheet's lifecycle outside of chat: upload to
// the MCP server and OneDrive, table previews and saves, embed refresh, and
// deletion.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Todor-5rov/Vexcel/internal/backup"
	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/events"
	"github.com/Todor-5rov/Vexcel/internal/mcp"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/sync"
	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

var (
	// ErrRemoteUnavailable means the MCP server failed its health probe.
	ErrRemoteUnavailable = errors.New("the Excel processing server is not available right now")
	// ErrNoCloudCopy means the file was never uploaded to OneDrive.
	ErrNoCloudCopy = errors.New("file has no OneDrive copy")
)

// Remote is the MCP server surface the upload workflow uses.
type Remote interface {
	Health(ctx context.Context) bool
	Upload(ctx context.Context, ownerID, filename string, content []byte) (*mcp.File, error)
	Download(ctx context.Context, ownerID, filename string) ([]byte, error)
	Delete(ctx context.Context, ownerID, filename string) error
}

// Publisher receives file lifecycle events.
type Publisher interface {
	Publish(ev events.Event)
}

// Config wires an Uploader. Remote, Files and Sync are required.
type Config struct {
	Remote   Remote
	Cloud    cloud.Store
	Backup   backup.Store
	Files    store.Repository
	Sync     *sync.Orchestrator
	Events   Publisher
	Logger   *slog.Logger
	MaxBytes int64
	Folder   string
	Now      func() time.Time
}

// Uploader implements the file workflows.
type Uploader struct {
	remote   Remote
	cloud    cloud.Store
	backup   backup.Store
	files    store.Repository
	sync     *sync.Orchestrator
	events   Publisher
	log      *slog.Logger
	maxBytes int64
	folder   string
	now      func() time.Time
}

// New creates an Uploader.
func New(cfg Config) *Uploader {
	u := &Uploader{
		remote:   cfg.Remote,
		cloud:    cfg.Cloud,
		backup:   cfg.Backup,
		files:    cfg.Files,
		sync:     cfg.Sync,
		events:   cfg.Events,
		log:      cfg.Logger,
		maxBytes: cfg.MaxBytes,
		folder:   cfg.Folder,
		now:      cfg.Now,
	}
	if u.cloud == nil {
		u.cloud = cloud.Disabled{}
	}
	if u.backup == nil {
		u.backup = backup.Noop{}
	}
	if u.log == nil {
		u.log = slog.Default()
	}
	if u.maxBytes <= 0 {
		u.maxBytes = xlsx.MaxUploadBytes
	}
	if u.folder == "" {
		u.folder = cloud.DefaultFolder
	}
	if u.now == nil {
		u.now = time.Now
	}
	if u.sync == nil {
		u.sync = sync.New(sync.Config{Cloud: u.cloud, Files: u.files, Logger: u.log, Folder: u.folder, Now: u.now})
	}
	return u
}

// Upload is a file submitted by its owner.
type Upload struct {
	Filename string
	Content  []byte
}

// Report describes what an upload achieved. Cloud and backup failures are
// tolerated and only recorded here.
type Report struct {
	File        *store.LogicalFile `json:"file"`
	CloudError  string             `json:"onedriveError,omitempty"`
	BackupError string             `json:"backupError,omitempty"`
}

// Upload validates the file, stores it on the MCP server and OneDrive, then
// records it. Only validation, the MCP upload and the metadata insert can
// fail the call.
func (u *Uploader) Upload(ctx context.Context, ownerID string, up Upload) (*Report, error) {
	if err := xlsx.Validate(up.Filename, up.Content, u.maxBytes); err != nil {
		return nil, err
	}
	if !u.remote.Health(ctx) {
		return nil, ErrRemoteUnavailable
	}

	log := u.log.With(slog.String("owner", ownerID), slog.String("file", up.Filename))

	// A re-upload replaces the working copy and the OneDrive copy, so it waits
	// for any synced operation on the same file.
	release, err := u.sync.Lock(ctx, ownerID, up.Filename)
	if err != nil {
		return nil, err
	}
	defer release()

	remote, err := u.remote.Upload(ctx, ownerID, up.Filename, up.Content)
	if err != nil {
		return nil, fmt.Errorf("upload to Excel server: %w", err)
	}
	log.Info("uploaded to MCP server", slog.String("path", remote.RelativePath))

	now := u.now()
	f := &store.LogicalFile{
		OwnerID:        ownerID,
		Filename:       up.Filename,
		RemoteFilename: remote.Filename,
		RemotePath:     remote.RelativePath,
		SizeBytes:      int64(len(up.Content)),
		UploadedAt:     now,
		LastAccessedAt: now,
	}
	rep := &Report{File: f}

	if res, err := u.uploadCloud(ctx, ownerID, remote.Filename, up.Content); err != nil {
		rep.CloudError = err.Error()
		log.Warn("OneDrive upload failed, continuing without embedding", slog.String("error", err.Error()))
	} else {
		f.CloudFileID = res.FileID
		f.CloudWebURL = res.WebURL
		f.CloudEmbedURL = cloud.NormalizeEmbedURL(res.EmbedURL)
		f.CloudFolder = res.FolderPath
		uploaded := res.CreatedAt
		if uploaded.IsZero() {
			uploaded = now
		}
		f.CloudUploadedAt = &uploaded
	}

	if key, err := u.backup.Put(ctx, ownerID, up.Filename, up.Content); err != nil {
		if !errors.Is(err, backup.ErrDisabled) {
			rep.BackupError = err.Error()
			log.Warn("backup copy failed", slog.String("error", err.Error()))
		}
	} else {
		f.BackupKey = key
	}

	if err := u.files.Insert(ctx, f); err != nil {
		return nil, fmt.Errorf("save file record: %w", err)
	}

	u.publish(events.Event{
		Type:     events.TypeUploaded,
		OwnerID:  ownerID,
		FileID:   f.ID,
		Filename: f.Filename,
		Success:  true,
		EmbedURL: f.CloudEmbedURL,
	})
	log.Info("file uploaded", slog.String("file_id", f.ID), slog.Bool("onedrive", f.HasCloudCopy()))
	return rep, nil
}

func (u *Uploader) uploadCloud(ctx context.Context, ownerID, filename string, content []byte) (*cloud.UploadResult, error) {
	st, err := u.cloud.Status(ctx)
	if err != nil {
		return nil, err
	}
	if !st.Enabled {
		return nil, errors.New("OneDrive integration is currently disabled")
	}
	return u.cloud.Upload(ctx, ownerID, filename, content, u.folder, true)
}

// Get returns one of the owner's files.
func (u *Uploader) Get(ctx context.Context, ownerID, id string) (*store.LogicalFile, error) {
	return u.files.Get(ctx, id, ownerID)
}

// List returns the owner's files, newest first.
func (u *Uploader) List(ctx context.Context, ownerID string) ([]store.LogicalFile, error) {
	return u.files.List(ctx, ownerID)
}

// Delete removes the file record, then the MCP working copy and the backup on
// a best-effort basis. The OneDrive copy is kept.
func (u *Uploader) Delete(ctx context.Context, ownerID, id string) error {
	f, err := u.files.Get(ctx, id, ownerID)
	if err != nil {
		return err
	}
	if err := u.files.Delete(ctx, id, ownerID); err != nil {
		return fmt.Errorf("delete file record: %w", err)
	}

	log := u.log.With(slog.String("owner", ownerID), slog.String("file", f.Filename))
	if err := u.remote.Delete(ctx, ownerID, f.RemoteFilename); err != nil {
		log.Warn("could not delete MCP working copy", slog.String("error", err.Error()))
	}
	if err := u.backup.Delete(ctx, f.BackupKey); err != nil {
		log.Warn("could not delete backup copy", slog.String("error", err.Error()))
	}

	u.publish(events.Event{Type: events.TypeDeleted, OwnerID: ownerID, FileID: id, Filename: f.Filename, Success: true})
	return nil
}

// RefreshEmbed asks OneDrive for a new embed URL and records it.
func (u *Uploader) RefreshEmbed(ctx context.Context, ownerID, id string, allowEdit bool) (string, error) {
	f, err := u.files.Get(ctx, id, ownerID)
	if err != nil {
		return "", err
	}
	if !f.HasCloudCopy() {
		return "", ErrNoCloudCopy
	}
	embed, err := u.cloud.GetEmbedURL(ctx, f.CloudFileID, allowEdit)
	if err != nil {
		return "", fmt.Errorf("get embed URL: %w", err)
	}
	embed = cloud.NormalizeEmbedURL(embed)
	if err := u.files.UpdateEmbedURL(ctx, id, ownerID, embed, u.now()); err != nil {
		return "", fmt.Errorf("save embed URL: %w", err)
	}
	return embed, nil
}

// Preview downloads the working copy and returns its first sheet as a table.
func (u *Uploader) Preview(ctx context.Context, ownerID, id string, maxRows int) (*xlsx.Table, error) {
	f, err := u.files.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	data, err := u.remote.Download(ctx, ownerID, f.RemoteFilename)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", f.Filename, err)
	}
	table, err := xlsx.Preview(data, maxRows)
	if err != nil {
		return nil, err
	}
	if err := u.files.Touch(ctx, id, ownerID, int64(len(data)), u.now()); err != nil {
		u.log.Warn("could not update last access", slog.String("file_id", id), slog.String("error", err.Error()))
	}
	return table, nil
}

// SaveReport is the outcome of saving edited table data.
type SaveReport struct {
	FileSize int64       `json:"fileSize"`
	Sync     sync.Result `json:"syncResult"`
}

// Save writes rows as a workbook over the MCP working copy and pushes it to
// OneDrive. rows[0] is the header.
func (u *Uploader) Save(ctx context.Context, ownerID, id string, rows [][]string) (*SaveReport, error) {
	if len(rows) == 0 {
		return nil, xlsx.ErrEmpty
	}
	f, err := u.files.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}
	data, err := xlsx.WriteBytes("", rows)
	if err != nil {
		return nil, err
	}

	out, err := sync.PerformSyncedOperation(ctx, u.sync, ownerID, f.RemoteFilename,
		func(ctx context.Context) (*mcp.File, error) {
			return u.remote.Upload(ctx, ownerID, f.RemoteFilename, data)
		}, sync.Options{FileID: id})
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", f.Filename, err)
	}

	if err := u.files.Touch(ctx, id, ownerID, int64(len(data)), u.now()); err != nil {
		u.log.Warn("could not update file size", slog.String("file_id", id), slog.String("error", err.Error()))
	}
	return &SaveReport{FileSize: int64(len(data)), Sync: out.Sync}, nil
}

func (u *Uploader) publish(ev events.Event) {
	if u.events != nil {
		u.events.Publish(ev)
	}
}
