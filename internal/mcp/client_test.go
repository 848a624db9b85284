package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 5*time.Second)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   bool
	}{
		{"healthy", 200, `{"status":"healthy"}`, true},
		{"degraded", 200, `{"status":"degraded"}`, false},
		{"server error", 503, `{"status":"healthy"}`, false},
		{"garbage", 200, `not json`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					t.Errorf("unexpected path: %s", r.URL.Path)
				}
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			if got := c.Health(context.Background()); got != tt.want {
				t.Errorf("Health() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHealthUnreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	if c.Health(context.Background()) {
		t.Error("unreachable server should not be healthy")
	}
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/upload/u1" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.FormValue("allow_edit") != "true" {
			t.Errorf("allow_edit = %q", r.FormValue("allow_edit"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		if hdr.Filename != "sales.xlsx" || string(data) != "xlsx-bytes" {
			t.Errorf("got %q with %q", hdr.Filename, data)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"filename":   "sales.xlsx",
			"file_path":  "u1/sales.xlsx",
			"size_bytes": 10,
		})
	})

	f, err := c.Upload(context.Background(), "u1", "sales.xlsx", []byte("xlsx-bytes"))
	if err != nil {
		t.Fatal(err)
	}
	if f.RelativePath != "u1/sales.xlsx" || f.SizeBytes != 10 {
		t.Errorf("unexpected file: %+v", f)
	}
}

func TestUploadErrorFoldsStatusAndBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "unsupported file type")
	})

	_, err := c.Upload(context.Background(), "u1", "notes.txt", []byte("x"))
	if err == nil {
		t.Fatal("expected error")
	}
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected StatusError 400, got %v", err)
	}
	if !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "unsupported file type") {
		t.Errorf("error should carry status and body: %s", err)
	}
}

func TestListNotFoundIsEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	files, err := c.List(context.Background(), "new-user")
	if err != nil {
		t.Fatalf("404 should not be an error: %v", err)
	}
	if files == nil || len(files) != 0 {
		t.Errorf("expected empty list, got %v", files)
	}
}

func TestList(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"files":[{"filename":"a.xlsx","relative_path":"u1/a.xlsx","size_bytes":3}]}`)
	})

	files, err := c.List(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Filename != "a.xlsx" {
		t.Errorf("unexpected files: %+v", files)
	}
}

func TestListServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	if _, err := c.List(context.Background(), "u1"); err == nil {
		t.Fatal("expected error for 500")
	}
}

func TestDownloadAndDelete(t *testing.T) {
	var deleted string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/download/u1/sales.xlsx":
			io.WriteString(w, "content")
		case r.Method == http.MethodDelete && r.URL.Path == "/files/u1/sales.xlsx":
			deleted = r.URL.Path
			io.WriteString(w, `{"message":"deleted"}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusTeapot)
		}
	})

	data, err := c.Download(context.Background(), "u1", "sales.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "content" {
		t.Errorf("data = %q", data)
	}
	if err := c.Delete(context.Background(), "u1", "sales.xlsx"); err != nil {
		t.Fatal(err)
	}
	if deleted == "" {
		t.Error("delete endpoint not called")
	}
}

func TestExcelData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"headers":["Name","Salary"],"rows":[["Ann","10"]],"total_rows":1,"total_columns":2}`)
	})

	data, err := c.ExcelData(context.Background(), "u1", "sales.xlsx")
	if err != nil {
		t.Fatal(err)
	}
	if data.TotalRows != 1 || data.TotalColumns != 2 || data.Filename != "sales.xlsx" {
		t.Errorf("unexpected data: %+v", data)
	}
}

func TestParsePath(t *testing.T) {
	tests := []struct {
		in        string
		owner     string
		filename  string
		expectErr bool
	}{
		{"u1/sales.xlsx", "u1", "sales.xlsx", false},
		{"/u1/sales.xlsx/", "u1", "sales.xlsx", false},
		{"sales.xlsx", "", "", true},
		{"u1/", "", "", true},
		{"u1/a/b.xlsx", "", "", true},
		{"", "", "", true},
		{"u1/..", "", "", true},
		{"u1/.", "", "", true},
		{"../sales.xlsx", "", "", true},
		{"./sales.xlsx", "", "", true},
		{`u1/..\u2.xlsx`, "", "", true},
		{"u1/..sales.xlsx", "u1", "..sales.xlsx", false},
	}
	for _, tt := range tests {
		owner, filename, err := ParsePath(tt.in)
		if tt.expectErr {
			if err == nil {
				t.Errorf("ParsePath(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParsePath(%q) error: %v", tt.in, err)
			continue
		}
		if owner != tt.owner || filename != tt.filename {
			t.Errorf("ParsePath(%q) = %q, %q", tt.in, owner, filename)
		}
		if JoinPath(owner, filename) != tt.owner+"/"+tt.filename {
			t.Errorf("JoinPath round trip failed for %q", tt.in)
		}
	}
}
