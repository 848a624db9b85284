package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Bridge reaches OneDrive through the MCP server's /onedrive endpoints. The
// server owns the Microsoft credentials and moves bytes between its working
// copy and OneDrive itself.
type Bridge struct {
	BaseURL string
	HTTP    *http.Client
}

// NewBridge creates a Bridge for the MCP server at baseURL.
func NewBridge(baseURL string, timeout time.Duration) *Bridge {
	return &Bridge{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Status implements Store.
func (b *Bridge) Status(ctx context.Context) (Status, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.BaseURL+"/onedrive/status", nil)
	if err != nil {
		return Status{}, err
	}
	body, err := b.do(req, "status check")
	if err != nil {
		return Status{}, err
	}

	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return Status{}, fmt.Errorf("could not parse OneDrive status: %w", err)
	}
	return st, nil
}

type bridgeUpload struct {
	Message          string `json:"message"`
	Filename         string `json:"filename"`
	FileID           string `json:"onedrive_file_id"`
	WebURL           string `json:"onedrive_web_url"`
	EmbedURL         string `json:"embed_url"`
	FolderPath       string `json:"folder_path"`
	SizeBytes        int64  `json:"size_bytes"`
	CreatedDateTime  string `json:"created_datetime"`
	LastModifiedTime string `json:"last_modified_datetime"`
}

// Upload implements Store.
func (b *Bridge) Upload(ctx context.Context, ownerID, filename string, content []byte, folder string, allowEdit bool) (*UploadResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("could not build OneDrive upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("could not build OneDrive upload form: %w", err)
	}
	if folder != "" {
		_ = mw.WriteField("folder_path", folder)
	}
	_ = mw.WriteField("allow_edit", strconv.FormatBool(allowEdit))
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not build OneDrive upload form: %w", err)
	}

	endpoint := b.BaseURL + "/onedrive/upload/" + url.PathEscape(ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := b.do(req, "upload")
	if err != nil {
		return nil, err
	}

	var res bridgeUpload
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("could not parse OneDrive upload response: %w", err)
	}

	out := &UploadResult{
		FileID:     res.FileID,
		WebURL:     res.WebURL,
		EmbedURL:   NormalizeEmbedURL(res.EmbedURL),
		FolderPath: res.FolderPath,
		SizeBytes:  res.SizeBytes,
	}
	if t, err := time.Parse(time.RFC3339, res.CreatedDateTime); err == nil {
		out.CreatedAt = t
	}
	return out, nil
}

// SyncLocalToCloud implements Store.
func (b *Bridge) SyncLocalToCloud(ctx context.Context, ownerID, filename, folder string) (*SyncResponse, error) {
	form := url.Values{}
	if folder != "" {
		form.Set("folder_path", folder)
	}
	endpoint := b.BaseURL + "/onedrive/upload-local/" + url.PathEscape(ownerID) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := b.do(req, "sync to OneDrive")
	if err != nil {
		return nil, err
	}

	var res bridgeUpload
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("could not parse OneDrive sync response: %w", err)
	}
	msg := res.Message
	if msg == "" {
		msg = "File synced to OneDrive successfully"
	}
	return &SyncResponse{
		Message:      msg,
		EmbedURL:     NormalizeEmbedURL(res.EmbedURL),
		FileID:       res.FileID,
		SizeBytes:    res.SizeBytes,
		LastModified: res.LastModifiedTime,
	}, nil
}

// SyncCloudToLocal implements Store.
func (b *Bridge) SyncCloudToLocal(ctx context.Context, ownerID, fileID, filename string) (*SyncResponse, error) {
	form := url.Values{"filename": {filename}}
	endpoint := b.BaseURL + "/onedrive/download-to-local/" + url.PathEscape(ownerID) + "/" + url.PathEscape(fileID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := b.do(req, "sync from OneDrive")
	if err != nil {
		return nil, err
	}

	var res struct {
		Message      string `json:"message"`
		SizeBytes    int64  `json:"size_bytes"`
		LastModified string `json:"last_modified"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("could not parse OneDrive download response: %w", err)
	}
	msg := res.Message
	if msg == "" {
		msg = "File synced from OneDrive successfully"
	}
	return &SyncResponse{
		Message:      msg,
		FileID:       fileID,
		SizeBytes:    res.SizeBytes,
		LastModified: res.LastModified,
	}, nil
}

// GetEmbedURL implements Store.
func (b *Bridge) GetEmbedURL(ctx context.Context, fileID string, allowEdit bool) (string, error) {
	endpoint := b.BaseURL + "/onedrive/embed/" + url.PathEscape(fileID) + "?allow_edit=" + strconv.FormatBool(allowEdit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	body, err := b.do(req, "embed URL")
	if err != nil {
		return "", err
	}

	var res struct {
		EmbedURL string `json:"embed_url"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("could not parse embed URL response: %w", err)
	}
	if res.EmbedURL == "" {
		return "", fmt.Errorf("OneDrive returned no embed URL for %s", fileID)
	}
	return NormalizeEmbedURL(res.EmbedURL), nil
}

// List implements Store. An owner with no OneDrive files yields an empty list.
func (b *Bridge) List(ctx context.Context, ownerID, folder string) ([]File, error) {
	endpoint := b.BaseURL + "/onedrive/files/" + url.PathEscape(ownerID)
	if folder != "" {
		endpoint += "?folder_path=" + url.QueryEscape(folder)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := b.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OneDrive list request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return []File{}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("OneDrive list failed: %d - %s", resp.StatusCode, string(body))
	}

	var res struct {
		Files []struct {
			Filename     string `json:"filename"`
			FileID       string `json:"file_id"`
			WebURL       string `json:"web_url"`
			EmbedURL     string `json:"embed_url"`
			SizeBytes    int64  `json:"size_bytes"`
			Created      string `json:"created_datetime"`
			LastModified string `json:"last_modified_datetime"`
			FolderPath   string `json:"folder_path"`
		} `json:"files"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("could not parse OneDrive file list: %w", err)
	}

	files := make([]File, 0, len(res.Files))
	for _, f := range res.Files {
		files = append(files, File{
			Filename:     f.Filename,
			FileID:       f.FileID,
			WebURL:       f.WebURL,
			EmbedURL:     NormalizeEmbedURL(f.EmbedURL),
			SizeBytes:    f.SizeBytes,
			CreatedAt:    f.Created,
			LastModified: f.LastModified,
			FolderPath:   f.FolderPath,
		})
	}
	return files, nil
}

func (b *Bridge) do(req *http.Request, op string) ([]byte, error) {
	resp, err := b.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OneDrive %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read OneDrive %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("OneDrive %s failed: %d - %s", op, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}
