package completion

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func run(t *testing.T, shell string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "vexcel"}
	root.AddCommand(&cobra.Command{Use: "serve", Short: "Run the HTTP API"})
	root.AddCommand(&cobra.Command{Use: "files", Short: "Manage uploaded spreadsheets"})
	root.AddCommand(NewCommand(root))

	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"completion", shell})
	err := root.Execute()
	return buf.String(), err
}

func TestCompletionScripts(t *testing.T) {
	tests := []struct {
		shell string
		want  string
	}{
		{"bash", "_vexcel"},
		{"zsh", "compdef"},
		{"fish", "complete -c vexcel"},
		{"powershell", "Register-ArgumentCompleter"},
	}
	for _, tt := range tests {
		t.Run(tt.shell, func(t *testing.T) {
			out, err := run(t, tt.shell)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out, tt.want) {
				t.Errorf("%s completion should contain %q", tt.shell, tt.want)
			}
			if !strings.HasPrefix(out, "# VExcel") {
				t.Errorf("%s completion should start with an install hint", tt.shell)
			}
		})
	}
}

func TestCompletionUnknownShell(t *testing.T) {
	if _, err := run(t, "tcsh"); err == nil {
		t.Error("expected error for unsupported shell")
	}
}
