package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSON(&buf, "files ls", map[string]int{"count": 2}); err != nil {
		t.Fatal(err)
	}
	var res JSONResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if !res.OK || res.Command != "files ls" || res.Version == "" {
		t.Errorf("unexpected envelope: %+v", res)
	}
}

func TestPrintJSONError(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONError(&buf, "files rm", errors.New("file not found"), ExitUserError); err != nil {
		t.Fatal(err)
	}
	var res JSONResult
	if err := json.Unmarshal(buf.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.OK || res.Error != "file not found" || res.Code != ExitUserError {
		t.Errorf("unexpected envelope: %+v", res)
	}
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	if err := Table(&buf, []string{"ID", "NAME"}, [][]string{{"f1", "sales.xlsx"}, {"f22", "q3.xlsx"}}); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), buf.String())
	}
	if strings.Index(lines[1], "sales.xlsx") != strings.Index(lines[2], "q3.xlsx") {
		t.Errorf("columns not aligned:\n%s", buf.String())
	}
}

func TestLine(t *testing.T) {
	var buf bytes.Buffer
	Line(&buf, StatusWarning, "OneDrive", "disabled")
	if got := buf.String(); got != "  ! OneDrive: disabled\n" {
		t.Errorf("Line() = %q", got)
	}
}

func TestSize(t *testing.T) {
	tests := map[int64]string{
		0:        "0 B",
		1023:     "1023 B",
		1024:     "1.0 KB",
		10 << 20: "10.0 MB",
	}
	for in, want := range tests {
		if got := Size(in); got != want {
			t.Errorf("Size(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestSince(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "never"},
		{now.Add(-10 * time.Second), "just now"},
		{now.Add(-5 * time.Minute), "5m ago"},
		{now.Add(-3 * time.Hour), "3h ago"},
		{now.Add(-72 * time.Hour), "2025-05-29"},
	}
	for _, tt := range tests {
		if got := Since(tt.at, now); got != tt.want {
			t.Errorf("Since(%v) = %q, want %q", tt.at, got, tt.want)
		}
	}
}
