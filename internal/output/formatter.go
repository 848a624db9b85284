// Package output provides formatting utilities for CLI output.
package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	faint  = color.New(color.Faint).SprintFunc()
)

// Status is the severity of a one-line report.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
)

// Icon returns the colored marker for s.
func Icon(s Status) string {
	switch s {
	case StatusOK:
		return green("✓")
	case StatusWarning:
		return yellow("!")
	default:
		return red("✗")
	}
}

// Line writes "  <icon> <label>: <message>".
func Line(w io.Writer, s Status, label, message string) {
	fmt.Fprintf(w, "  %s %s: %s\n", Icon(s), label, message)
}

// Heading writes a bold title underlined with '='.
func Heading(w io.Writer, title string) {
	fmt.Fprintln(w, bold(title))
	fmt.Fprintln(w, strings.Repeat("=", len(title)))
}

// Faint renders secondary text.
func Faint(s string) string { return faint(s) }

// Table writes rows under a bold header, aligned with tabwriter.
func Table(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	boldHeaders := make([]string, len(headers))
	for i, h := range headers {
		boldHeaders[i] = bold(h)
	}
	fmt.Fprintln(tw, strings.Join(boldHeaders, "\t"))
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// Size formats a byte count for humans.
func Size(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Since formats t relative to now, or "never" for the zero time.
func Since(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("2006-01-02")
	}
}

// WriteError writes an error message to stderr.
func WriteError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
