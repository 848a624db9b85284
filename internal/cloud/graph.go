package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Todor-5rov/Vexcel/internal/mcp"
)

const graphBase = "https://graph.microsoft.com/v1.0"

// simpleUploadLimit is the largest body Graph accepts on a single PUT.
const simpleUploadLimit = 4 * 1024 * 1024

// WorkingCopy is the MCP side of a Graph sync: Graph moves bytes itself, so
// it needs read and write access to the working copy.
type WorkingCopy interface {
	Download(ctx context.Context, ownerID, filename string) ([]byte, error)
	Upload(ctx context.Context, ownerID, filename string, content []byte) (*mcp.File, error)
}

// driveItem represents a file or folder in OneDrive.
type driveItem struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	WebURL         string    `json:"webUrl"`
	LastModifiedAt time.Time `json:"-"`
	CreatedAt      time.Time `json:"-"`
	IsFolder       bool      `json:"-"`
	DownloadURL    string    `json:"-"`
	ParentPath     string    `json:"-"`
}

// UnmarshalJSON implements custom unmarshalling for driveItem.
func (d *driveItem) UnmarshalJSON(data []byte) error {
	type alias driveItem
	aux := &struct {
		*alias
		Folder *struct {
			ChildCount int `json:"childCount"`
		} `json:"folder"`
		DownloadURL     string `json:"@microsoft.graph.downloadUrl"`
		ParentReference *struct {
			Path string `json:"path"`
		} `json:"parentReference"`
		LastModified string `json:"lastModifiedDateTime"`
		Created      string `json:"createdDateTime"`
	}{
		alias: (*alias)(d),
	}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	d.IsFolder = aux.Folder != nil
	d.DownloadURL = aux.DownloadURL
	if aux.ParentReference != nil {
		d.ParentPath = aux.ParentReference.Path
	}
	if aux.LastModified != "" {
		if t, err := time.Parse(time.RFC3339, aux.LastModified); err == nil {
			d.LastModifiedAt = t
		}
	}
	if aux.Created != "" {
		if t, err := time.Parse(time.RFC3339, aux.Created); err == nil {
			d.CreatedAt = t
		}
	}
	return nil
}

// Graph talks to Microsoft Graph directly. Files of an owner live under
// <folder>/<ownerID>/ in the configured drive.
type Graph struct {
	BaseURL string
	// Drive is the drive resource path, e.g. "/me/drive" or "/drives/{id}".
	Drive  string
	Client *http.Client
	Local  WorkingCopy
}

// NewGraph creates a Graph store. client must already carry credentials.
func NewGraph(client *http.Client, drive string, local WorkingCopy) *Graph {
	if drive == "" {
		drive = "/me/drive"
	}
	return &Graph{BaseURL: graphBase, Drive: drive, Client: client, Local: local}
}

// Status implements Store. A reachable drive means the integration is on.
func (g *Graph) Status(ctx context.Context) (Status, error) {
	body, err := g.call(ctx, http.MethodGet, g.drivePath(""), nil, "")
	if err != nil {
		return Status{}, err
	}
	var drive struct {
		DriveType string `json:"driveType"`
		Name      string `json:"name"`
	}
	if err := json.Unmarshal(body, &drive); err != nil {
		return Status{}, fmt.Errorf("could not parse drive: %w", err)
	}
	return Status{
		Enabled:     true,
		AccountType: drive.DriveType,
		FolderName:  DefaultFolder,
		Message:     "OneDrive drive " + drive.Name + " reachable",
	}, nil
}

// Upload implements Store.
func (g *Graph) Upload(ctx context.Context, ownerID, filename string, content []byte, folder string, allowEdit bool) (*UploadResult, error) {
	item, err := g.put(ctx, g.itemPath(folder, ownerID, filename), content)
	if err != nil {
		return nil, err
	}

	embed, err := g.GetEmbedURL(ctx, item.ID, allowEdit)
	if err != nil {
		return nil, err
	}

	return &UploadResult{
		FileID:     item.ID,
		WebURL:     item.WebURL,
		EmbedURL:   embed,
		FolderPath: ownerFolder(folder, ownerID),
		SizeBytes:  item.Size,
		CreatedAt:  item.CreatedAt,
	}, nil
}

// SyncLocalToCloud implements Store by copying the MCP working copy over the
// item at the conventional path.
func (g *Graph) SyncLocalToCloud(ctx context.Context, ownerID, filename, folder string) (*SyncResponse, error) {
	if g.Local == nil {
		return nil, fmt.Errorf("graph store has no working copy configured")
	}
	content, err := g.Local.Download(ctx, ownerID, filename)
	if err != nil {
		return nil, fmt.Errorf("could not read working copy: %w", err)
	}

	item, err := g.put(ctx, g.itemPath(folder, ownerID, filename), content)
	if err != nil {
		return nil, err
	}

	embed, err := g.GetEmbedURL(ctx, item.ID, true)
	if err != nil {
		return nil, err
	}

	return &SyncResponse{
		Message:      "File synced to OneDrive successfully",
		EmbedURL:     embed,
		FileID:       item.ID,
		SizeBytes:    item.Size,
		LastModified: item.LastModifiedAt.Format(time.RFC3339),
	}, nil
}

// SyncCloudToLocal implements Store by downloading the item and overwriting
// the MCP working copy.
func (g *Graph) SyncCloudToLocal(ctx context.Context, ownerID, fileID, filename string) (*SyncResponse, error) {
	if g.Local == nil {
		return nil, fmt.Errorf("graph store has no working copy configured")
	}

	body, err := g.call(ctx, http.MethodGet, g.drivePath("/items/"+url.PathEscape(fileID)), nil, "")
	if err != nil {
		return nil, err
	}
	var item driveItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("could not parse item: %w", err)
	}
	if item.DownloadURL == "" {
		return nil, fmt.Errorf("no download URL available for %s", fileID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, item.DownloadURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with HTTP %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("download copy failed: %w", err)
	}

	if _, err := g.Local.Upload(ctx, ownerID, filename, content); err != nil {
		return nil, fmt.Errorf("could not overwrite working copy: %w", err)
	}

	return &SyncResponse{
		Message:      "File synced from OneDrive successfully",
		FileID:       fileID,
		SizeBytes:    int64(len(content)),
		LastModified: item.LastModifiedAt.Format(time.RFC3339),
	}, nil
}

// GetEmbedURL implements Store. Editable URLs are anonymous edit links;
// read-only URLs come from the preview endpoint.
func (g *Graph) GetEmbedURL(ctx context.Context, fileID string, allowEdit bool) (string, error) {
	if allowEdit {
		payload := `{"type":"edit","scope":"anonymous"}`
		body, err := g.call(ctx, http.MethodPost, g.drivePath("/items/"+url.PathEscape(fileID)+"/createLink"), strings.NewReader(payload), "application/json")
		if err != nil {
			return "", err
		}
		var res struct {
			Link struct {
				WebURL string `json:"webUrl"`
			} `json:"link"`
		}
		if err := json.Unmarshal(body, &res); err != nil {
			return "", fmt.Errorf("could not parse share link response: %w", err)
		}
		if res.Link.WebURL == "" {
			return "", fmt.Errorf("OneDrive returned no edit link for %s", fileID)
		}
		return NormalizeEmbedURL(res.Link.WebURL), nil
	}

	body, err := g.call(ctx, http.MethodPost, g.drivePath("/items/"+url.PathEscape(fileID)+"/preview"), strings.NewReader(`{}`), "application/json")
	if err != nil {
		return "", err
	}
	var res struct {
		GetURL string `json:"getUrl"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return "", fmt.Errorf("could not parse preview response: %w", err)
	}
	if res.GetURL == "" {
		return "", fmt.Errorf("OneDrive returned no preview URL for %s", fileID)
	}
	return NormalizeEmbedURL(res.GetURL), nil
}

// List implements Store.
func (g *Graph) List(ctx context.Context, ownerID, folder string) ([]File, error) {
	endpoint := g.drivePath("/root:/" + escapePath(ownerFolder(folder, ownerID)) + ":/children")

	var files []File
	for endpoint != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		resp, err := g.Client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("OneDrive list request failed: %w", err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode == http.StatusNotFound {
			return []File{}, nil
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("OneDrive API returned %d: %s", resp.StatusCode, string(body))
		}

		var page struct {
			Value    []driveItem `json:"value"`
			NextLink string      `json:"@odata.nextLink"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("could not parse OneDrive response: %w", err)
		}
		for _, item := range page.Value {
			if item.IsFolder {
				continue
			}
			files = append(files, File{
				Filename:     item.Name,
				FileID:       item.ID,
				WebURL:       item.WebURL,
				SizeBytes:    item.Size,
				CreatedAt:    item.CreatedAt.Format(time.RFC3339),
				LastModified: item.LastModifiedAt.Format(time.RFC3339),
				FolderPath:   item.ParentPath,
			})
		}
		endpoint = page.NextLink
	}
	if files == nil {
		files = []File{}
	}
	return files, nil
}

func (g *Graph) put(ctx context.Context, itemPath string, content []byte) (*driveItem, error) {
	if len(content) > simpleUploadLimit {
		return nil, fmt.Errorf("file too large for simple upload (%d bytes, max 4MB)", len(content))
	}

	endpoint := g.drivePath("/root:/" + itemPath + ":/content?@microsoft.graph.conflictBehavior=replace")
	body, err := g.call(ctx, http.MethodPut, endpoint, bytes.NewReader(content), "application/octet-stream")
	if err != nil {
		return nil, err
	}

	var item driveItem
	if err := json.Unmarshal(body, &item); err != nil {
		return nil, fmt.Errorf("could not parse upload response: %w", err)
	}
	return &item, nil
}

func (g *Graph) call(ctx context.Context, method, endpoint string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("OneDrive request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("OneDrive API returned %d: %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

func (g *Graph) drivePath(suffix string) string {
	return strings.TrimRight(g.BaseURL, "/") + g.Drive + suffix
}

func (g *Graph) itemPath(folder, ownerID, filename string) string {
	return escapePath(ownerFolder(folder, ownerID) + "/" + filename)
}

func ownerFolder(folder, ownerID string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		folder = DefaultFolder
	}
	return folder + "/" + ownerID
}

// escapePath escapes each segment of a drive path, keeping the separators.
func escapePath(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
