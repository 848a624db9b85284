// Package audit keeps an append-only JSONL journal of synced operations so an
// operator can see which phase of which save went wrong and when.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/Todor-5rov/Vexcel/internal/sync"
)

// Entry is one journal line: a single phase of one synced operation.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	OwnerID   string    `json:"owner_id"`
	Filename  string    `json:"filename"`
	FileID    string    `json:"file_id,omitempty"`
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Message   string    `json:"message,omitempty"`
	Error     string    `json:"error,omitempty"`
	Success   bool      `json:"success"`
}

// Journal appends entries to a file. A zero-path Journal drops everything.
type Journal struct {
	path   string
	logger *slog.Logger

	mu stdsync.Mutex
}

// NewJournal creates a journal backed by path.
func NewJournal(path string, logger *slog.Logger) *Journal {
	if logger == nil {
		logger = slog.Default()
	}
	return &Journal{path: path, logger: logger}
}

// Path returns the journal file location.
func (j *Journal) Path() string { return j.path }

// Append writes entries as JSON lines.
func (j *Journal) Append(entries ...Entry) error {
	if j.path == "" || len(entries) == 0 {
		return nil
	}

	var buf []byte
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode journal entry: %w", err)
		}
		buf = append(buf, data...)
		buf = append(buf, '\n')
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("create journal dir: %w", err)
	}
	f, err := os.OpenFile(j.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

// SyncCompleted implements sync.Observer. Journal failures are logged and
// never reach the caller.
func (j *Journal) SyncCompleted(_ context.Context, ev sync.Event) {
	if err := j.Append(FromEvent(ev)...); err != nil {
		j.logger.Warn("could not write sync journal", slog.String("error", err.Error()))
	}
}

// FromEvent flattens a sync event into one entry per reported phase.
func FromEvent(ev sync.Event) []Entry {
	entries := make([]Entry, 0, len(ev.Result.Steps))
	for _, step := range ev.Result.Steps {
		e := Entry{
			Timestamp: ev.At,
			OwnerID:   ev.OwnerID,
			Filename:  ev.Filename,
			FileID:    ev.FileID,
			Phase:     string(step.Phase),
			Status:    string(step.Status),
			Message:   step.Message,
			Success:   ev.Result.Success,
		}
		if step.Err != nil {
			e.Error = step.Err.Error()
		}
		entries = append(entries, e)
	}
	return entries
}

// ReadEntries loads every entry in the journal. A missing file is an empty
// journal; malformed lines are skipped.
func ReadEntries(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Filter selects entries for the journal listing.
type Filter struct {
	Since    time.Time
	Until    time.Time
	OwnerID  string
	Filename string
	Phase    string
	// FailuresOnly keeps failed and degraded phases.
	FailuresOnly bool
}

// Apply returns the entries matching f, in their original order.
func (f Filter) Apply(entries []Entry) []Entry {
	var out []Entry
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.OwnerID != "" && e.OwnerID != f.OwnerID {
			continue
		}
		if f.Filename != "" && !strings.Contains(e.Filename, f.Filename) {
			continue
		}
		if f.Phase != "" && e.Phase != f.Phase {
			continue
		}
		if f.FailuresOnly && e.Status != string(sync.StepFailed) && e.Status != string(sync.StepDegraded) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Size returns the journal size in bytes, or 0 if it does not exist.
func Size(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the journal.
func Clear(path string) error {
	err := os.Truncate(path, 0)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
