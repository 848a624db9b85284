// Package progress draws upload progress on a terminal. Every method is a
// no-op on a disabled indicator, so callers never check for a TTY themselves.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Bar renders an ASCII progress bar over a fixed number of files.
type Bar struct {
	Out     io.Writer
	Total   int
	Current int
	Label   string
	Width   int
	Enabled bool

	mu sync.Mutex
}

// New creates a bar writing to out. It is enabled only when out is a
// terminal and VEXCEL_NO_PROGRESS is not set.
func New(out io.Writer, label string, total int) *Bar {
	return &Bar{
		Out:     out,
		Total:   total,
		Label:   label,
		Width:   30,
		Enabled: Enabled(out),
	}
}

// Increment advances the bar by one file and redraws it with status.
func (b *Bar) Increment(status string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.Current = min(b.Current+1, b.Total)
	b.render(status)
}

// Finish replaces the bar with a summary line.
func (b *Bar) Finish(summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.Enabled {
		return
	}
	fmt.Fprintf(b.Out, "\r\033[K✓ %s\n", summary)
}

func (b *Bar) render(status string) {
	if !b.Enabled {
		return
	}

	filled := 0
	if b.Total > 0 {
		filled = min(b.Current*b.Width/b.Total, b.Width)
	}
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", b.Width-filled)
	fmt.Fprintf(b.Out, "\r\033[K%s [%s] %d/%d  %s", b.Label, bar, b.Current, b.Total, status)
}

// Pct returns the completed share in percent.
func (b *Bar) Pct() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Total == 0 {
		return 0
	}
	return float64(b.Current) / float64(b.Total) * 100
}

// Spinner animates while a sync with OneDrive is in flight.
type Spinner struct {
	Out     io.Writer
	Label   string
	Enabled bool

	mu      sync.Mutex
	done    chan struct{}
	stopped bool
}

// NewSpinner creates a spinner writing to out.
func NewSpinner(out io.Writer, label string) *Spinner {
	return &Spinner{
		Out:     out,
		Label:   label,
		Enabled: Enabled(out),
		done:    make(chan struct{}),
	}
}

// Start begins the animation.
func (s *Spinner) Start() {
	if !s.Enabled {
		return
	}

	s.mu.Lock()
	s.stopped = false
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		frames := []rune{'⠋', '⠙', '⠹', '⠸', '⠼', '⠴', '⠦', '⠧', '⠇', '⠏'}
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()

		for i := 0; ; i++ {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				if !s.stopped {
					fmt.Fprintf(s.Out, "\r\033[K%c %s", frames[i%len(frames)], s.Label)
				}
				s.mu.Unlock()
			}
		}
	}()
}

// Stop ends the animation and clears the line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	s.stopped = true
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.Enabled {
		fmt.Fprint(s.Out, "\r\033[K")
	}
}

// Enabled reports whether progress should be drawn on out.
func Enabled(out io.Writer) bool {
	if os.Getenv("VEXCEL_NO_PROGRESS") == "1" {
		return false
	}
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}
