// Package audit provides the "vexcel audit" commands for reading the sync journal.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/app"
	auditpkg "github.com/Todor-5rov/Vexcel/internal/audit"
	"github.com/Todor-5rov/Vexcel/internal/output"
)

// NewCommand creates the "audit" command with all subcommands.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "View and manage the sync journal",
		Long:  "Every synced operation writes one journal line per phase. Use these commands to inspect failed or degraded syncs.",
	}

	cmd.AddCommand(newLogCmd())
	cmd.AddCommand(newClearCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

func journalPath(cmd *cobra.Command) (string, error) {
	cfg, _, err := app.Setup(cmd)
	if err != nil {
		return "", err
	}
	return cfg.Audit.Path, nil
}

func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date: %w (use YYYY-MM-DD)", flag, err)
	}
	return t, nil
}

func newLogCmd() *cobra.Command {
	var (
		last     int
		since    string
		until    string
		filename string
		phase    string
		owner    string
		failures bool
	)

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := journalPath(cmd)
			if err != nil {
				return err
			}
			entries, err := auditpkg.ReadEntries(path)
			if err != nil {
				return err
			}

			f := auditpkg.Filter{
				OwnerID:      owner,
				Filename:     filename,
				Phase:        phase,
				FailuresOnly: failures,
			}
			if f.Since, err = parseDate("since", since); err != nil {
				return err
			}
			if f.Until, err = parseDate("until", until); err != nil {
				return err
			}
			if !f.Until.IsZero() {
				// Include the whole day.
				f.Until = f.Until.Add(24*time.Hour - time.Nanosecond)
			}

			filtered := f.Apply(entries)
			if last > 0 && len(filtered) > last {
				filtered = filtered[len(filtered)-last:]
			}

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if filtered == nil {
					filtered = []auditpkg.Entry{}
				}
				return enc.Encode(filtered)
			}

			return printEntries(cmd.OutOrStdout(), path, filtered)
		},
	}

	cmd.Flags().IntVar(&last, "last", 20, "Show last N entries")
	cmd.Flags().StringVar(&since, "since", "", "Only entries since date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "until", "", "Only entries up to date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&filename, "file", "", "Filter by filename substring")
	cmd.Flags().StringVar(&phase, "phase", "", "Filter by phase (pre_sync, operation, post_sync, metadata)")
	cmd.Flags().StringVar(&owner, "owner", "", "Filter by owner id")
	cmd.Flags().BoolVar(&failures, "failures", false, "Only failed and degraded phases")
	return cmd
}

func printEntries(w io.Writer, path string, entries []auditpkg.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No journal entries found.")
		return nil
	}

	fmt.Fprintf(w, "Sync Journal: %d entries\n", len(entries))
	fmt.Fprintf(w, "File: %s\n\n", path)

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		detail := e.Message
		if e.Error != "" {
			detail = e.Error
		}
		rows = append(rows, []string{
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			dash(e.OwnerID),
			e.Filename,
			e.Phase,
			e.Status,
			dash(detail),
		})
	}
	return output.Table(w, []string{"TIMESTAMP", "OWNER", "FILE", "PHASE", "STATUS", "DETAIL"}, rows)
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the sync journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := journalPath(cmd)
			if err != nil {
				return err
			}
			if err := auditpkg.Clear(path); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]string{"cleared": path})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Sync journal cleared: %s\n", path)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show journal path, size and failure count",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := journalPath(cmd)
			if err != nil {
				return err
			}
			size := auditpkg.Size(path)
			entries, _ := auditpkg.ReadEntries(path)
			failed := len(auditpkg.Filter{FailuresOnly: true}.Apply(entries))

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":     path,
					"size":     size,
					"entries":  len(entries),
					"failures": failed,
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Sync journal: %s\n", path)
			if size == 0 {
				fmt.Fprintln(w, "Size:         empty (no entries)")
			} else {
				fmt.Fprintf(w, "Size:         %s\n", output.Size(size))
			}
			fmt.Fprintf(w, "Entries:      %d\n", len(entries))
			fmt.Fprintf(w, "Failures:     %d\n", failed)
			return nil
		},
	}
}
