// Package version provides the version command for the vexcel CLI.
package version

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Version and Commit are set at build time via ldflags.
var (
	Version = "dev"
	Commit  = "none"
)

// Info is the build description printed by the command.
type Info struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// Current returns the running binary's build info.
func Current() Info {
	return Info{Version: Version, Commit: Commit, Go: runtime.Version(), OS: runtime.GOOS, Arch: runtime.GOARCH}
}

// NewCommand returns the version subcommand.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the vexcel version",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := Current()
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(info)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "vexcel %s (%s) %s %s/%s\n", info.Version, info.Commit, info.Go, info.OS, info.Arch)
			return nil
		},
	}
}
