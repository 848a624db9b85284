// Package doctor provides the "vexcel doctor" command for checking system health.
package doctor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/app"
	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/config"
	"github.com/Todor-5rov/Vexcel/internal/mcp"
	"github.com/Todor-5rov/Vexcel/internal/store"
)

const probeTimeout = 10 * time.Second

// Check represents a single health check result.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Message string `json:"message"`
}

// Probes reach the external services. Nil probes are reported as skipped.
type Probes struct {
	MCP      interface{ Health(ctx context.Context) bool }
	MCPURL   string
	Cloud    cloud.Store
	Database func(ctx context.Context) error
}

// NewCommand creates the "doctor" command.
func NewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and connectivity",
		Long:  "Run diagnostic checks against the MCP server, OneDrive, the database and the API keys.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := app.Setup(cmd)
			if err != nil {
				return err
			}

			remote := mcp.NewClient(cfg.MCP.BaseURL, probeTimeout)
			probes := Probes{
				MCP:    remote,
				MCPURL: cfg.MCP.BaseURL,
				Database: func(ctx context.Context) error {
					db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
					if err != nil {
						return err
					}
					return db.Close()
				},
			}
			if c, err := app.NewCloud(cmd.Context(), cfg, remote); err == nil {
				probes.Cloud = c
			}

			checks := runChecks(cmd.Context(), cfg, probes)

			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(checks)
			}

			green := color.New(color.FgGreen).SprintFunc()
			yellow := color.New(color.FgYellow).SprintFunc()
			red := color.New(color.FgRed).SprintFunc()

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "VExcel Doctor")
			fmt.Fprintln(out, "=============")
			fmt.Fprintln(out)

			okCount, warnCount, errCount := 0, 0, 0
			for _, c := range checks {
				var icon string
				switch c.Status {
				case "ok":
					icon = green("✓")
					okCount++
				case "warning":
					icon = yellow("!")
					warnCount++
				case "error":
					icon = red("✗")
					errCount++
				}
				fmt.Fprintf(out, "  %s %s: %s\n", icon, c.Name, c.Message)
			}

			fmt.Fprintln(out)
			fmt.Fprintf(out, "  %d passed, %d warnings, %d errors\n", okCount, warnCount, errCount)

			if errCount > 0 {
				return fmt.Errorf("%d check(s) failed", errCount)
			}
			return nil
		},
	}
}

func runChecks(ctx context.Context, cfg *config.Config, p Probes) []Check {
	var checks []Check

	checks = append(checks, Check{
		Name:    "Go Runtime",
		Status:  "ok",
		Message: fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
	})

	path := config.ConfigPath()
	if _, err := os.Stat(path); err == nil {
		checks = append(checks, Check{Name: "Config File", Status: "ok", Message: path})
	} else {
		checks = append(checks, Check{Name: "Config File", Status: "warning", Message: "Not found, using defaults and environment. Run 'vexcel config init'"})
	}

	for _, issue := range config.Validate() {
		if issue.Severity != "error" {
			continue
		}
		checks = append(checks, Check{Name: "Config " + issue.Key, Status: "error", Message: issue.Message})
	}

	f := config.CurrentFeatures()
	if f.OpenAI {
		checks = append(checks, Check{Name: "OpenAI", Status: "ok", Message: fmt.Sprintf("API key set (%d characters)", f.OpenAIKeyLength)})
	} else {
		checks = append(checks, Check{Name: "OpenAI", Status: "warning", Message: "OPENAI_API_KEY not set, the assistant cannot edit files"})
	}
	if f.ElevenLabs {
		checks = append(checks, Check{Name: "ElevenLabs", Status: "ok", Message: "API key set"})
	} else {
		checks = append(checks, Check{Name: "ElevenLabs", Status: "warning", Message: "ELEVENLABS_API_KEY not set, voice input is disabled"})
	}

	pctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	if p.MCP != nil {
		if p.MCP.Health(pctx) {
			checks = append(checks, Check{Name: "MCP Server", Status: "ok", Message: p.MCPURL})
		} else {
			checks = append(checks, Check{Name: "MCP Server", Status: "error", Message: "Not reachable at " + p.MCPURL})
		}
	}

	switch {
	case p.Cloud == nil:
		checks = append(checks, Check{Name: "OneDrive", Status: "error", Message: fmt.Sprintf("Backend %q could not be configured", cfg.OneDrive.Mode)})
	default:
		st, err := p.Cloud.Status(pctx)
		switch {
		case err != nil:
			checks = append(checks, Check{Name: "OneDrive", Status: "error", Message: err.Error()})
		case !st.Enabled:
			msg := "Disabled, the viewer will not show edits"
			if st.Message != "" {
				msg = st.Message
			}
			checks = append(checks, Check{Name: "OneDrive", Status: "warning", Message: msg})
		default:
			checks = append(checks, Check{Name: "OneDrive", Status: "ok", Message: fmt.Sprintf("Enabled (%s)", cfg.OneDrive.Mode)})
		}
	}

	if p.Database != nil {
		if err := p.Database(pctx); err != nil {
			checks = append(checks, Check{Name: "Database", Status: "error", Message: err.Error()})
		} else {
			checks = append(checks, Check{Name: "Database", Status: "ok", Message: cfg.Database.Driver})
		}
	}

	if f.Auth {
		checks = append(checks, Check{Name: "Auth", Status: "ok", Message: "Bearer tokens are verified"})
	} else {
		checks = append(checks, Check{Name: "Auth", Status: "warning", Message: "auth.jwt_secret not set, the server trusts X-User-ID"})
	}
	if f.Backup {
		checks = append(checks, Check{Name: "Backup", Status: "ok", Message: "Uploads are copied to " + cfg.Backup.Bucket})
	} else {
		checks = append(checks, Check{Name: "Backup", Status: "warning", Message: "No backup bucket configured"})
	}

	return checks
}
