// Package cloud provides the OneDrive side of a spreadsheet: an editable copy
// addressed by an opaque file id, and the embed URLs the viewer iframes.
package cloud

import (
	"context"
	"strings"
	"time"
)

// DefaultFolder is the OneDrive folder uploads land in.
const DefaultFolder = "excel-files"

// Status reports whether OneDrive participation is switched on.
type Status struct {
	Enabled     bool   `json:"enabled"`
	AccountType string `json:"account_type,omitempty"`
	FolderName  string `json:"folder_name,omitempty"`
	Message     string `json:"message,omitempty"`
}

// UploadResult describes a file created in OneDrive.
type UploadResult struct {
	FileID     string    `json:"fileId"`
	WebURL     string    `json:"webUrl"`
	EmbedURL   string    `json:"embedUrl"`
	FolderPath string    `json:"folderPath,omitempty"`
	SizeBytes  int64     `json:"sizeBytes"`
	CreatedAt  time.Time `json:"createdAt"`
}

// SyncResponse is the outcome of a one-way copy between the MCP working copy
// and OneDrive.
type SyncResponse struct {
	Message      string `json:"message"`
	EmbedURL     string `json:"embedUrl,omitempty"`
	FileID       string `json:"fileId,omitempty"`
	SizeBytes    int64  `json:"sizeBytes,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
}

// File is an entry of an owner's OneDrive folder.
type File struct {
	Filename     string `json:"filename"`
	FileID       string `json:"fileId"`
	WebURL       string `json:"webUrl"`
	EmbedURL     string `json:"embedUrl,omitempty"`
	SizeBytes    int64  `json:"sizeBytes"`
	CreatedAt    string `json:"createdAt,omitempty"`
	LastModified string `json:"lastModified,omitempty"`
	FolderPath   string `json:"folderPath,omitempty"`
}

// Store is the OneDrive contract the sync workflow and the upload flow rely
// on. Every embed URL an implementation returns is already normalized.
type Store interface {
	Status(ctx context.Context) (Status, error)
	// Upload creates the cloud copy. allowEdit makes the embed URL an edit
	// capability for anyone holding it.
	Upload(ctx context.Context, ownerID, filename string, content []byte, folder string, allowEdit bool) (*UploadResult, error)
	// SyncLocalToCloud overwrites the cloud copy bound to (ownerID, filename)
	// with the current MCP working copy.
	SyncLocalToCloud(ctx context.Context, ownerID, filename, folder string) (*SyncResponse, error)
	// SyncCloudToLocal overwrites the MCP working copy with the cloud copy.
	SyncCloudToLocal(ctx context.Context, ownerID, fileID, filename string) (*SyncResponse, error)
	GetEmbedURL(ctx context.Context, fileID string, allowEdit bool) (string, error)
	List(ctx context.Context, ownerID, folder string) ([]File, error)
}

// NormalizeEmbedURL undoes HTML entity encoding of ampersands. OneDrive
// sometimes returns "&amp;" in embed URLs, which an iframe cannot load.
// Normalizing an already clean URL is a no-op.
func NormalizeEmbedURL(u string) string {
	for strings.Contains(u, "&amp;") {
		u = strings.ReplaceAll(u, "&amp;", "&")
	}
	return u
}
