// Package chat provides the "vexcel chat" command, an interactive assistant
// session over one uploaded spreadsheet.
package chat

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/app"
	"github.com/Todor-5rov/Vexcel/internal/config"
	"github.com/Todor-5rov/Vexcel/internal/shell"
	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

const previewRows = 200

// NewCommand returns the chat command.
func NewCommand() *cobra.Command {
	var noSync bool
	cmd := &cobra.Command{
		Use:   "chat <file-id>",
		Short: "Edit a spreadsheet by chatting with the assistant",
		Long: `Start an interactive session with the spreadsheet assistant. Each request is
applied to the MCP server copy and then pushed to OneDrive.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owner, err := app.Owner(cmd)
			if err != nil {
				return err
			}
			a, err := app.OpenFromCommand(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if !config.CurrentFeatures().OpenAI {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: OPENAI_API_KEY is not set; requests will not be processed.")
			}

			ctx := cmd.Context()
			f, err := a.Uploader.Get(ctx, owner, args[0])
			if err != nil {
				return err
			}

			s := shell.NewSession(a.Assistant, f.ID, f.Filename, f.RemotePath)
			s.SyncFirst = !noSync && f.HasCloudCopy()
			s.Out = cmd.OutOrStdout()
			s.Load = func(ctx context.Context) (*xlsx.Table, error) {
				return a.Uploader.Preview(ctx, owner, f.ID, previewRows)
			}
			return s.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Do not pull the OneDrive copy before each request")
	return cmd
}
