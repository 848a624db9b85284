// Package store keeps the durable record of every uploaded spreadsheet: the
// user_files table linking a logical file to its MCP working copy and its
// OneDrive copy.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no row matches the id and owner.
var ErrNotFound = errors.New("file not found")

// LogicalFile is a spreadsheet as the application knows it. Empty strings
// stand for absent cloud fields.
type LogicalFile struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"userId"`
	Filename       string    `json:"fileName"`
	RemoteFilename string    `json:"mcpFilename"`
	RemotePath     string    `json:"mcpFilePath"`
	BackupKey      string    `json:"backupKey,omitempty"`
	SizeBytes      int64     `json:"fileSize"`
	UploadedAt     time.Time `json:"uploadedAt"`
	LastAccessedAt time.Time `json:"lastAccessed"`
	// LastSyncedAt is nil until the first successful metadata refresh.
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`

	CloudFileID     string     `json:"onedriveFileId,omitempty"`
	CloudWebURL     string     `json:"onedriveWebUrl,omitempty"`
	CloudEmbedURL   string     `json:"onedriveEmbedUrl,omitempty"`
	CloudFolder     string     `json:"onedriveFolderPath,omitempty"`
	CloudUploadedAt *time.Time `json:"onedriveUploadedAt,omitempty"`
}

// HasCloudCopy reports whether the file is bound to a OneDrive item.
func (f *LogicalFile) HasCloudCopy() bool {
	return f.CloudFileID != ""
}

// CloudRef is the OneDrive half of a LogicalFile.
type CloudRef struct {
	FileID     string
	WebURL     string
	EmbedURL   string
	Folder     string
	UploadedAt time.Time
}

// Repository is the MetadataStore.
type Repository interface {
	// Insert creates the row, or replaces the row with the same owner and
	// filename. f.ID is set to the stored id.
	Insert(ctx context.Context, f *LogicalFile) error
	Get(ctx context.Context, id, ownerID string) (*LogicalFile, error)
	GetByName(ctx context.Context, ownerID, filename string) (*LogicalFile, error)
	// List returns the owner's files, most recently uploaded first.
	List(ctx context.Context, ownerID string) ([]LogicalFile, error)
	// UpdateEmbedURL records a fresh embed URL and stamps both the access and
	// sync times with at.
	UpdateEmbedURL(ctx context.Context, id, ownerID, embedURL string, at time.Time) error
	UpdateCloud(ctx context.Context, id, ownerID string, ref CloudRef) error
	// GetCloudFileID returns "" when the file has no cloud copy, and
	// ErrNotFound when id does not belong to ownerID.
	GetCloudFileID(ctx context.Context, id, ownerID string) (string, error)
	Touch(ctx context.Context, id, ownerID string, sizeBytes int64, at time.Time) error
	Delete(ctx context.Context, id, ownerID string) error
}
