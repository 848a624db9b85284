// Package mcp is a client for the Excel MCP server, which holds the working
// copy of every uploaded spreadsheet and exposes the tools the assistant uses
// to edit it.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the hosted MCP server.
const DefaultBaseURL = "https://vexcelmcp.onrender.com"

// File describes a spreadsheet held by the MCP server.
type File struct {
	Filename     string `json:"filename"`
	RelativePath string `json:"relative_path"`
	SizeBytes    int64  `json:"size_bytes"`
	Modified     int64  `json:"modified,omitempty"`
}

// ExcelData is the tabular view of a workbook's first sheet as rendered by
// the server.
type ExcelData struct {
	Headers      []string   `json:"headers"`
	Rows         [][]string `json:"rows"`
	TotalRows    int        `json:"totalRows"`
	TotalColumns int        `json:"totalColumns"`
	Filename     string     `json:"filename"`
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("MCP %s failed: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("MCP %s failed: HTTP %d - %s", e.Op, e.StatusCode, body)
}

// Client talks to the MCP server over HTTP. It never retries; callers decide.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a client for baseURL. A zero timeout keeps the
// http.Client default.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// ToolURL is the MCP endpoint handed to the language model as a tool server.
func (c *Client) ToolURL() string {
	return c.BaseURL + "/mcp/mcp"
}

// Health reports whether the server answered {"status":"healthy"}.
// Unreachable and unhealthy are treated the same.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return false
	}
	var health struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.Status == "healthy"
}

// Upload stores content as ownerID/filename on the server.
func (c *Client) Upload(ctx context.Context, ownerID, filename string, content []byte) (*File, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("could not build upload form: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("could not build upload form: %w", err)
	}
	if err := mw.WriteField("allow_edit", "true"); err != nil {
		return nil, fmt.Errorf("could not build upload form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("could not build upload form: %w", err)
	}

	endpoint := c.BaseURL + "/upload/" + url.PathEscape(ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	body, err := c.do(req, "upload")
	if err != nil {
		return nil, err
	}

	var result struct {
		Filename  string `json:"filename"`
		FilePath  string `json:"file_path"`
		SizeBytes int64  `json:"size_bytes"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not parse MCP upload response: %w", err)
	}
	if result.Filename == "" {
		result.Filename = filename
	}
	if result.FilePath == "" {
		result.FilePath = JoinPath(ownerID, result.Filename)
	}
	return &File{
		Filename:     result.Filename,
		RelativePath: result.FilePath,
		SizeBytes:    result.SizeBytes,
	}, nil
}

// Download fetches the full content of ownerID/filename.
func (c *Client) Download(ctx context.Context, ownerID, filename string) ([]byte, error) {
	endpoint := c.BaseURL + "/download/" + url.PathEscape(ownerID) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req, "download")
}

// List returns the owner's files. An owner with no files yet yields an
// empty list, not an error.
func (c *Client) List(ctx context.Context, ownerID string) ([]File, error) {
	endpoint := c.BaseURL + "/files/" + url.PathEscape(ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req, "list")
	if err != nil {
		if se, ok := err.(*StatusError); ok && se.StatusCode == http.StatusNotFound {
			return []File{}, nil
		}
		return nil, err
	}

	var result struct {
		Files []File `json:"files"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not parse MCP file list: %w", err)
	}
	if result.Files == nil {
		result.Files = []File{}
	}
	return result.Files, nil
}

// Delete removes ownerID/filename from the server.
func (c *Client) Delete(ctx context.Context, ownerID, filename string) error {
	endpoint := c.BaseURL + "/files/" + url.PathEscape(ownerID) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}
	_, err = c.do(req, "delete")
	return err
}

// ExcelData returns the server-side tabular rendering of ownerID/filename.
func (c *Client) ExcelData(ctx context.Context, ownerID, filename string) (*ExcelData, error) {
	endpoint := c.BaseURL + "/excel-data/" + url.PathEscape(ownerID) + "/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	body, err := c.do(req, "excel-data")
	if err != nil {
		return nil, err
	}

	var result struct {
		Headers      []string   `json:"headers"`
		Rows         [][]string `json:"rows"`
		TotalRows    int        `json:"total_rows"`
		TotalColumns int        `json:"total_columns"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("could not parse MCP excel data: %w", err)
	}
	data := &ExcelData{
		Headers:      result.Headers,
		Rows:         result.Rows,
		TotalRows:    result.TotalRows,
		TotalColumns: result.TotalColumns,
		Filename:     filename,
	}
	if data.Headers == nil {
		data.Headers = []string{}
	}
	if data.Rows == nil {
		data.Rows = [][]string{}
	}
	return data, nil
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("MCP %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("could not read MCP %s response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
