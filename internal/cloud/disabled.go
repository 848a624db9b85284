package cloud

import (
	"context"
	"errors"
)

// ErrDisabled is returned by every Disabled operation except Status.
var ErrDisabled = errors.New("OneDrive integration is not enabled")

// Disabled is the Store used when no OneDrive backend is configured. Status
// reports the integration as off so the sync workflow can fail cleanly.
type Disabled struct {
	Reason string
}

// Status implements Store.
func (d Disabled) Status(context.Context) (Status, error) {
	msg := d.Reason
	if msg == "" {
		msg = ErrDisabled.Error()
	}
	return Status{Enabled: false, Message: msg}, nil
}

// Upload implements Store.
func (Disabled) Upload(context.Context, string, string, []byte, string, bool) (*UploadResult, error) {
	return nil, ErrDisabled
}

// SyncLocalToCloud implements Store.
func (Disabled) SyncLocalToCloud(context.Context, string, string, string) (*SyncResponse, error) {
	return nil, ErrDisabled
}

// SyncCloudToLocal implements Store.
func (Disabled) SyncCloudToLocal(context.Context, string, string, string) (*SyncResponse, error) {
	return nil, ErrDisabled
}

// GetEmbedURL implements Store.
func (Disabled) GetEmbedURL(context.Context, string, bool) (string, error) {
	return "", ErrDisabled
}

// List implements Store.
func (Disabled) List(context.Context, string, string) ([]File, error) {
	return []File{}, nil
}
