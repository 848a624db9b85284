// Package files provides the "vexcel files" commands for managing a user's
// uploaded spreadsheets.
package files

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/app"
	"github.com/Todor-5rov/Vexcel/internal/ingest"
	"github.com/Todor-5rov/Vexcel/internal/output"
	"github.com/Todor-5rov/Vexcel/internal/progress"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/sync"
)

// NewCommand returns the files command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "Manage uploaded spreadsheets",
		Long:  "List, upload, preview, sync and delete the spreadsheets of the user given by --user.",
	}

	cmd.AddCommand(newLsCommand())
	cmd.AddCommand(newUploadCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSyncCommand())
	cmd.AddCommand(newEmbedCommand())
	cmd.AddCommand(newRmCommand())

	return cmd
}

// withApp opens the services and resolves the owner for a subcommand.
func withApp(cmd *cobra.Command, name string, fn func(ctx context.Context, a *app.App, owner string) error) error {
	owner, err := app.Owner(cmd)
	if err != nil {
		return app.Fail(cmd, name, err)
	}
	a, err := app.OpenFromCommand(cmd)
	if err != nil {
		return app.Fail(cmd, name, err)
	}
	defer a.Close()
	if err := fn(cmd.Context(), a, owner); err != nil {
		return app.Fail(cmd, name, err)
	}
	return nil
}

func newLsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List uploaded spreadsheets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "files ls", func(ctx context.Context, a *app.App, owner string) error {
				list, err := a.Uploader.List(ctx, owner)
				if err != nil {
					return err
				}
				return app.Emit(cmd, "files ls", list, func(w io.Writer) error {
					if len(list) == 0 {
						fmt.Fprintln(w, "No files uploaded yet.")
						return nil
					}
					return output.Table(w, []string{"ID", "NAME", "SIZE", "ONEDRIVE", "UPLOADED", "SYNCED"}, fileRows(list, time.Now()))
				})
			})
		},
	}
}

func fileRows(list []store.LogicalFile, now time.Time) [][]string {
	rows := make([][]string, 0, len(list))
	for _, f := range list {
		onedrive := "-"
		if f.HasCloudCopy() {
			onedrive = "yes"
		}
		synced := time.Time{}
		if f.LastSyncedAt != nil {
			synced = *f.LastSyncedAt
		}
		rows = append(rows, []string{
			f.ID,
			f.Filename,
			output.Size(f.SizeBytes),
			onedrive,
			output.Since(f.UploadedAt, now),
			output.Since(synced, now),
		})
	}
	return rows
}

func newUploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.xlsx>...",
		Short: "Upload spreadsheets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "files upload", func(ctx context.Context, a *app.App, owner string) error {
				bar := progress.New(cmd.ErrOrStderr(), "Uploading", len(args))
				var reports []*ingest.Report
				for _, path := range args {
					report, err := UploadPath(ctx, a.Uploader, owner, path)
					if err != nil {
						return fmt.Errorf("%s: %w", path, err)
					}
					reports = append(reports, report)
					bar.Increment(filepath.Base(path))
				}
				bar.Finish(fmt.Sprintf("%d file(s) uploaded", len(reports)))
				return app.Emit(cmd, "files upload", reports, func(w io.Writer) error {
					for _, r := range reports {
						printReport(w, r)
					}
					return nil
				})
			})
		},
	}
}

// UploadPath reads a local workbook and runs the upload workflow on it.
func UploadPath(ctx context.Context, u *ingest.Uploader, owner, path string) (*ingest.Report, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read file: %w", err)
	}
	return u.Upload(ctx, owner, ingest.Upload{Filename: filepath.Base(path), Content: content})
}

func printReport(w io.Writer, r *ingest.Report) {
	output.Line(w, output.StatusOK, r.File.Filename, fmt.Sprintf("uploaded as %s (%s)", r.File.ID, output.Size(r.File.SizeBytes)))
	if r.CloudError != "" {
		output.Line(w, output.StatusWarning, "OneDrive", r.CloudError)
	} else if r.File.CloudEmbedURL != "" {
		output.Line(w, output.StatusOK, "OneDrive", r.File.CloudEmbedURL)
	}
	if r.BackupError != "" {
		output.Line(w, output.StatusWarning, "Backup", r.BackupError)
	}
}

func newShowCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print the first sheet of a spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "files show", func(ctx context.Context, a *app.App, owner string) error {
				table, err := a.Uploader.Preview(ctx, owner, args[0], limit)
				if err != nil {
					return err
				}
				return app.Emit(cmd, "files show", table, func(w io.Writer) error {
					if len(table.Rows) == 0 {
						fmt.Fprintln(w, "The sheet is empty.")
						return nil
					}
					if err := output.Table(w, table.Rows[0], table.Rows[1:]); err != nil {
						return err
					}
					if table.Truncated {
						fmt.Fprintln(w, output.Faint(fmt.Sprintf("showing %d of %d rows", limit, table.RowCount)))
					}
					return nil
				})
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows to print")
	return cmd
}

func newSyncCommand() *cobra.Command {
	var pull bool
	cmd := &cobra.Command{
		Use:   "sync <id>",
		Short: "Push the server copy of a spreadsheet to OneDrive",
		Long: `Push the MCP server copy of a spreadsheet to OneDrive and refresh its embed URL.

With --pull the OneDrive copy is first copied over the server copy, picking up
edits made in the browser viewer.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "files sync", func(ctx context.Context, a *app.App, owner string) error {
				f, err := a.Uploader.Get(ctx, owner, args[0])
				if err != nil {
					return err
				}
				spin := progress.NewSpinner(cmd.ErrOrStderr(), "Syncing "+f.Filename+" with OneDrive")
				spin.Start()
				res, err := Sync(ctx, a.Sync, f, pull)
				spin.Stop()
				if err != nil {
					return err
				}
				return app.Emit(cmd, "files sync", res, func(w io.Writer) error {
					printSync(w, res)
					return nil
				})
			})
		},
	}
	cmd.Flags().BoolVar(&pull, "pull", false, "Copy the OneDrive version over the server copy first")
	return cmd
}

// Sync runs an empty synced operation over f, which pushes the working copy
// to OneDrive and refreshes the stored embed URL.
func Sync(ctx context.Context, o *sync.Orchestrator, f *store.LogicalFile, pull bool) (sync.Result, error) {
	out, err := sync.PerformSyncedOperation(ctx, o, f.OwnerID, f.RemoteFilename,
		func(context.Context) (struct{}, error) { return struct{}{}, nil },
		sync.Options{FileID: f.ID, CloudFileID: f.CloudFileID, SyncFromCloudFirst: pull})
	return out.Sync, err
}

func printSync(w io.Writer, res sync.Result) {
	for _, step := range res.Steps {
		status := output.StatusOK
		switch step.Status {
		case sync.StepFailed:
			status = output.StatusError
		case sync.StepDegraded:
			status = output.StatusWarning
		case sync.StepSkipped:
			continue
		}
		msg := step.Message
		if msg == "" && step.Err != nil {
			msg = step.Err.Error()
		}
		output.Line(w, status, string(step.Phase), msg)
	}
	if res.Success {
		output.Line(w, output.StatusOK, "OneDrive", res.Message)
	} else {
		output.Line(w, output.StatusError, "OneDrive", res.Message)
	}
}

func newEmbedCommand() *cobra.Command {
	var readOnly bool
	cmd := &cobra.Command{
		Use:   "embed <id>",
		Short: "Refresh and print the OneDrive viewer URL",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "files embed", func(ctx context.Context, a *app.App, owner string) error {
				u, err := a.Uploader.RefreshEmbed(ctx, owner, args[0], !readOnly)
				if err != nil {
					return err
				}
				return app.Emit(cmd, "files embed", map[string]string{"embedUrl": u}, func(w io.Writer) error {
					_, err := fmt.Fprintln(w, u)
					return err
				})
			})
		},
	}
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Request a view-only embed URL")
	return cmd
}

func newRmCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete spreadsheets",
		Long:  "Delete spreadsheets from VExcel and the MCP server. The OneDrive copy is kept.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, "files rm", func(ctx context.Context, a *app.App, owner string) error {
				for _, id := range args {
					if err := a.Uploader.Delete(ctx, owner, id); err != nil {
						return fmt.Errorf("%s: %w", id, err)
					}
				}
				return app.Emit(cmd, "files rm", map[string][]string{"deleted": args}, func(w io.Writer) error {
					for _, id := range args {
						output.Line(w, output.StatusOK, id, "deleted")
					}
					return nil
				})
			})
		},
	}
}
