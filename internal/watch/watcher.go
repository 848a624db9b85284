// Package watch monitors folders for spreadsheets and hands each new or
// modified workbook to a handler, typically the upload workflow.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

// DefaultDebounce is how long a file must stay quiet before it is handled.
const DefaultDebounce = 500 * time.Millisecond

// Config holds the watcher configuration.
type Config struct {
	Directories []string
	Recursive   bool
	// Pattern optionally restricts handled files by base-name glob.
	Pattern  string
	Debounce time.Duration
}

// Event records one handled or skipped file.
type Event struct {
	Time      time.Time `json:"time"`
	Path      string    `json:"path"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"` // "processed", "error", "skipped"
	Error     string    `json:"error,omitempty"`
}

// Handler is called once per settled spreadsheet.
type Handler func(ctx context.Context, path string) error

// Status represents the current watcher status.
type Status struct {
	Running     bool      `json:"running"`
	Directories []string  `json:"directories"`
	EventCount  int       `json:"eventCount"`
	StartedAt   time.Time `json:"startedAt,omitzero"`
}

// Watcher monitors directories for spreadsheet changes.
type Watcher struct {
	Config  Config
	Handler Handler
	Logger  *slog.Logger

	mu        stdsync.Mutex
	events    []Event
	debounce  map[string]*time.Timer
	running   bool
	startedAt time.Time
	inflight  stdsync.WaitGroup
	watcher   *fsnotify.Watcher
}

// New creates a Watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not create file watcher: %w", err)
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		Config:   cfg,
		Handler:  handler,
		Logger:   logger,
		watcher:  fsw,
		debounce: make(map[string]*time.Timer),
	}, nil
}

// Start watches the configured directories. It blocks until ctx is cancelled
// and waits for in-flight handlers before returning.
func (w *Watcher) Start(ctx context.Context) error {
	for _, dir := range w.Config.Directories {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("could not resolve %s: %w", dir, err)
		}
		if w.Config.Recursive {
			if err := w.addRecursive(absDir); err != nil {
				return err
			}
		} else if err := w.watcher.Add(absDir); err != nil {
			return fmt.Errorf("could not watch %s: %w", absDir, err)
		}
	}

	w.mu.Lock()
	w.running = true
	w.startedAt = time.Now()
	w.mu.Unlock()
	w.Logger.Info("watching for spreadsheets", "directories", len(w.Config.Directories), "recursive", w.Config.Recursive)

	defer func() {
		w.mu.Lock()
		w.running = false
		for _, t := range w.debounce {
			t.Stop()
		}
		w.mu.Unlock()
		w.inflight.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("stopping watcher")
			return w.watcher.Close()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.Logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != dir {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) handleEvent(ctx context.Context, event fsnotify.Event) {
	if w.Config.Recursive && event.Has(fsnotify.Create) {
		if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
			if err := w.addRecursive(event.Name); err != nil {
				w.Logger.Warn("could not watch new directory", "path", event.Name, "error", err)
			}
			return
		}
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	if !w.matches(event.Name) {
		return
	}

	path := event.Name
	op := event.Op.String()
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.debounce[path]; ok {
		timer.Stop()
	}
	w.debounce[path] = time.AfterFunc(w.Config.Debounce, func() {
		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		delete(w.debounce, path)
		w.inflight.Add(1)
		w.mu.Unlock()
		defer w.inflight.Done()
		w.process(ctx, path, op)
	})
}

// matches reports whether path names a spreadsheet the watcher handles.
// Office lock files (~$name.xlsx) and editor temp files are skipped.
func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".~") || strings.HasPrefix(base, ".") {
		return false
	}
	if !xlsx.IsSpreadsheet(base) {
		return false
	}
	if w.Config.Pattern != "" {
		ok, _ := filepath.Match(w.Config.Pattern, base)
		return ok
	}
	return true
}

func (w *Watcher) process(ctx context.Context, path, op string) {
	evt := Event{Time: time.Now(), Path: path, Operation: op, Status: "processed"}
	switch {
	case w.Handler == nil:
		evt.Status = "skipped"
	default:
		if err := w.Handler(ctx, path); err != nil {
			evt.Status = "error"
			evt.Error = err.Error()
			w.Logger.Warn("could not process spreadsheet", "path", path, "error", err)
		} else {
			w.Logger.Info("processed spreadsheet", "path", path)
		}
	}

	w.mu.Lock()
	w.events = append(w.events, evt)
	w.mu.Unlock()
}

// GetStatus returns the current watcher status.
func (w *Watcher) GetStatus() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		Running:     w.running,
		Directories: w.Config.Directories,
		EventCount:  len(w.events),
		StartedAt:   w.startedAt,
	}
}

// GetEvents returns all recorded events.
func (w *Watcher) GetEvents() []Event {
	w.mu.Lock()
	defer w.mu.Unlock()
	events := make([]Event, len(w.events))
	copy(events, w.events)
	return events
}
