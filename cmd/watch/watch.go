// Package watch provides the "vexcel watch" command that uploads
// spreadsheets dropped into a folder.
package watch

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/cmd/files"
	"github.com/Todor-5rov/Vexcel/internal/app"
	watchpkg "github.com/Todor-5rov/Vexcel/internal/watch"
)

// NewCommand returns the watch command.
func NewCommand() *cobra.Command {
	var (
		recursive bool
		pattern   string
		debounce  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch <dir>...",
		Short: "Upload spreadsheets saved into a folder",
		Long: `Watch folders and upload every Excel workbook that is created or saved there.
Each save uploads a new copy. Stop with Ctrl+C.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := app.Owner(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.OpenFromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			handler := func(ctx context.Context, path string) error {
				report, err := files.UploadPath(ctx, a.Uploader, owner, path)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Uploaded %s as %s\n", report.File.Filename, report.File.ID)
				if report.CloudError != "" {
					fmt.Fprintf(out, "  OneDrive: %s\n", report.CloudError)
				}
				return nil
			}

			w, err := watchpkg.New(watchpkg.Config{
				Directories: args,
				Recursive:   recursive,
				Pattern:     pattern,
				Debounce:    debounce,
			}, handler, a.Logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Watching %d folder(s) for spreadsheets. Press Ctrl+C to stop.\n", len(args))
			return w.Start(ctx)
		},
	}
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Watch subfolders too")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Only upload files whose name matches this glob")
	cmd.Flags().DurationVar(&debounce, "debounce", watchpkg.DefaultDebounce, "Quiet period before a saved file is uploaded")
	return cmd
}
