// Package cmd contains all CLI commands for the vexcel binary.
package cmd

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	cmdaudit "github.com/Todor-5rov/Vexcel/cmd/audit"
	"github.com/Todor-5rov/Vexcel/cmd/chat"
	"github.com/Todor-5rov/Vexcel/cmd/completion"
	cmdconfig "github.com/Todor-5rov/Vexcel/cmd/config"
	"github.com/Todor-5rov/Vexcel/cmd/doctor"
	"github.com/Todor-5rov/Vexcel/cmd/files"
	"github.com/Todor-5rov/Vexcel/cmd/migrate"
	"github.com/Todor-5rov/Vexcel/cmd/serve"
	"github.com/Todor-5rov/Vexcel/cmd/version"
	cmdwatch "github.com/Todor-5rov/Vexcel/cmd/watch"
)

var (
	jsonOutput bool
	verbose    bool
	noColor    bool
	configFile string
	user       string
)

// NewRootCommand creates and returns the root cobra command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vexcel",
		Short: "Spreadsheet editing service with an AI assistant and OneDrive sync",
		Long: `VExcel keeps an uploaded Excel workbook in two places: the Excel MCP server,
where the assistant edits it, and OneDrive, where the browser viewer shows it.
Every edit runs through one sync workflow so both copies stay in step.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	// Global persistent flags
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output as machine-readable JSON")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable ANSI color output")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default ~/.vexcel/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&user, "user", "", "User id the command acts for (or VEXCEL_USER)")

	// Register subcommands
	rootCmd.AddCommand(serve.NewCommand())
	rootCmd.AddCommand(files.NewCommand())
	rootCmd.AddCommand(chat.NewCommand())
	rootCmd.AddCommand(cmdwatch.NewCommand())
	rootCmd.AddCommand(migrate.NewCommand())
	rootCmd.AddCommand(doctor.NewCommand())
	rootCmd.AddCommand(cmdaudit.NewCommand())
	rootCmd.AddCommand(cmdconfig.NewCommand())
	rootCmd.AddCommand(completion.NewCommand(rootCmd))
	rootCmd.AddCommand(version.NewCommand())

	return rootCmd
}

// Execute runs the root command and handles any returned errors.
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
