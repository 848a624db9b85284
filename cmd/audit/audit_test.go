package audit

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	auditpkg "github.com/Todor-5rov/Vexcel/internal/audit"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	root := &cobra.Command{Use: "vexcel", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().Bool("json", false, "")
	root.PersistentFlags().Bool("verbose", false, "")
	root.PersistentFlags().String("config", "", "")
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeJournal(t *testing.T) (configFile, journal string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	journal = filepath.Join(dir, "sync.log")
	configFile = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configFile, []byte("audit:\n  path: "+journal+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	j := auditpkg.NewJournal(journal, nil)
	at := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	err := j.Append(
		auditpkg.Entry{Timestamp: at, OwnerID: "u1", Filename: "sales.xlsx", Phase: "operation", Status: "ok", Success: true},
		auditpkg.Entry{Timestamp: at, OwnerID: "u1", Filename: "sales.xlsx", Phase: "post_sync", Status: "failed", Error: "OneDrive upload failed: 502", Success: false},
		auditpkg.Entry{Timestamp: at.Add(time.Hour), OwnerID: "u2", Filename: "budget.xlsx", Phase: "operation", Status: "ok", Success: true},
	)
	if err != nil {
		t.Fatal(err)
	}
	return configFile, journal
}

func TestLogFailures(t *testing.T) {
	cfgFile, _ := writeJournal(t)

	out, err := run(t, "audit", "log", "--config", cfgFile, "--failures")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "1 entries") || !strings.Contains(out, "OneDrive upload failed: 502") {
		t.Errorf("unexpected output:\n%s", out)
	}
	if strings.Contains(out, "budget.xlsx") {
		t.Errorf("successful entries should be filtered:\n%s", out)
	}
}

func TestLogJSONByOwner(t *testing.T) {
	cfgFile, _ := writeJournal(t)

	out, err := run(t, "audit", "log", "--config", cfgFile, "--json", "--owner", "u2")
	if err != nil {
		t.Fatal(err)
	}
	var entries []auditpkg.Entry
	if err := json.Unmarshal([]byte(out), &entries); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(entries) != 1 || entries[0].Filename != "budget.xlsx" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestLogBadDate(t *testing.T) {
	cfgFile, _ := writeJournal(t)

	if _, err := run(t, "audit", "log", "--config", cfgFile, "--since", "yesterday"); err == nil {
		t.Fatal("expected an error for an invalid date")
	}
}

func TestStatusAndClear(t *testing.T) {
	cfgFile, journal := writeJournal(t)

	out, err := run(t, "audit", "status", "--config", cfgFile, "--json")
	if err != nil {
		t.Fatal(err)
	}
	var st struct {
		Path     string `json:"path"`
		Entries  int    `json:"entries"`
		Failures int    `json:"failures"`
	}
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if st.Path != journal || st.Entries != 3 || st.Failures != 1 {
		t.Errorf("status = %+v", st)
	}

	if _, err := run(t, "audit", "clear", "--config", cfgFile); err != nil {
		t.Fatal(err)
	}
	if auditpkg.Size(journal) != 0 {
		t.Error("journal should be empty after clear")
	}

	out, err = run(t, "audit", "log", "--config", cfgFile)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No journal entries found.") {
		t.Errorf("unexpected output: %s", out)
	}
}
