package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ConfigIssue represents a validation finding.
type ConfigIssue struct {
	Key      string `json:"key"`
	Severity string `json:"severity"` // "error", "warning", "info"
	Message  string `json:"message"`
	Fix      string `json:"fix"`
}

// Wizard runs the interactive setup wizard.
// If reader is nil, reads from os.Stdin.
func Wizard(reader io.Reader, out io.Writer) error {
	if reader == nil {
		reader = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	scanner := bufio.NewScanner(reader)
	ask := func(prompt string) string {
		fmt.Fprint(out, prompt)
		scanner.Scan()
		return strings.TrimSpace(scanner.Text())
	}

	fmt.Fprintln(out, "VExcel Setup")
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("-", 48))
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 1/4: OpenAI")
	if key := ask("  Paste your OpenAI API key (sk-..., empty to skip): "); key != "" {
		viper.Set("openai.api_key", key)
		fmt.Fprintln(out, "  API key saved")
	} else {
		fmt.Fprintln(out, "  Skipped (the assistant stays disabled until OPENAI_API_KEY is set)")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 2/4: Excel MCP server")
	if u := ask(fmt.Sprintf("  Server URL (default: %s): ", viper.GetString("mcp.base_url"))); u != "" {
		viper.Set("mcp.base_url", strings.TrimRight(u, "/"))
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 3/4: OneDrive")
	fmt.Fprintln(out, "  [1] Through the MCP server (recommended)")
	fmt.Fprintln(out, "  [2] Directly through Microsoft Graph")
	fmt.Fprintln(out, "  [3] Disabled")
	switch ask("  Choice: ") {
	case "2":
		viper.Set("onedrive.mode", OneDriveGraph)
		viper.Set("onedrive.tenant_id", ask("  Tenant ID: "))
		viper.Set("onedrive.client_id", ask("  Client ID: "))
		viper.Set("onedrive.client_secret", ask("  Client secret: "))
		fmt.Fprintln(out, "  Graph configured")
	case "3":
		viper.Set("onedrive.mode", OneDriveDisabled)
		fmt.Fprintln(out, "  OneDrive disabled")
	default:
		viper.Set("onedrive.mode", OneDriveBridge)
		fmt.Fprintln(out, "  Using the MCP server bridge")
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Step 4/4: Voice input (optional)")
	if key := ask("  Paste your ElevenLabs API key (empty to skip): "); key != "" {
		viper.Set("elevenlabs.api_key", key)
		fmt.Fprintln(out, "  API key saved")
	} else {
		fmt.Fprintln(out, "  Skipped")
	}
	fmt.Fprintln(out)

	if err := SaveConfig(); err != nil {
		return fmt.Errorf("could not save config: %w", err)
	}

	fmt.Fprintln(out, strings.Repeat("-", 48))
	fmt.Fprintln(out, "VExcel is ready!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Quick start:")
	fmt.Fprintln(out, "  vexcel doctor                  (check connectivity)")
	fmt.Fprintln(out, "  vexcel serve                   (start the API)")
	fmt.Fprintln(out, "  vexcel files upload sales.xlsx --user <id>")
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Config file: %s\n", ConfigPath())
	return nil
}

// WizardNonInteractive writes the defaults without asking anything.
func WizardNonInteractive() error {
	viper.Set("onedrive.mode", viper.GetString("onedrive.mode"))
	viper.Set("output.color", true)
	viper.Set("output.format", "text")
	return SaveConfig()
}

// Validate checks config values and returns a list of issues.
func Validate() []ConfigIssue {
	var issues []ConfigIssue

	if OpenAIKey() == "" {
		issues = append(issues, ConfigIssue{
			Key:      "openai.api_key",
			Severity: "warning",
			Message:  "OPENAI_API_KEY is not set; the assistant will answer with a configuration message",
			Fix:      "export OPENAI_API_KEY=sk-...\nOr: vexcel config set openai.api_key sk-...",
		})
	} else {
		issues = append(issues, ConfigIssue{Key: "openai.api_key", Severity: "info", Message: "OpenAI API key configured"})
	}

	if viper.GetString("mcp.base_url") == "" {
		issues = append(issues, ConfigIssue{
			Key:      "mcp.base_url",
			Severity: "error",
			Message:  "Excel MCP server URL is empty",
			Fix:      "vexcel config set mcp.base_url https://your-mcp-server",
		})
	}

	switch mode := viper.GetString("onedrive.mode"); mode {
	case OneDriveBridge:
	case OneDriveDisabled:
		issues = append(issues, ConfigIssue{
			Key:      "onedrive.mode",
			Severity: "warning",
			Message:  "OneDrive is disabled; files open without the embedded editor and edits are not synced",
		})
	case OneDriveGraph:
		if viper.GetString("onedrive.access_token") == "" &&
			(viper.GetString("onedrive.tenant_id") == "" || viper.GetString("onedrive.client_id") == "" || viper.GetString("onedrive.client_secret") == "") {
			issues = append(issues, ConfigIssue{
				Key:      "onedrive.client_id",
				Severity: "error",
				Message:  "Graph mode needs tenant_id, client_id and client_secret, or an access_token",
				Fix:      "vexcel config set onedrive.client_id <id>",
			})
		}
	default:
		issues = append(issues, ConfigIssue{
			Key:      "onedrive.mode",
			Severity: "error",
			Message:  fmt.Sprintf("onedrive.mode must be bridge, graph or disabled, got %q", mode),
			Fix:      "vexcel config set onedrive.mode bridge",
		})
	}

	if d := viper.GetString("database.driver"); d != "" && d != "sqlite" && d != "postgres" {
		issues = append(issues, ConfigIssue{
			Key:      "database.driver",
			Severity: "error",
			Message:  fmt.Sprintf("database.driver must be sqlite or postgres, got %q", d),
		})
	}

	switch p := viper.GetString("ai.provider"); p {
	case "openai", "":
	case "anthropic":
		if AnthropicKey() == "" {
			issues = append(issues, ConfigIssue{
				Key:      "ai.provider",
				Severity: "error",
				Message:  "ai.provider is \"anthropic\" but ANTHROPIC_API_KEY is not set",
				Fix:      "export ANTHROPIC_API_KEY=sk-ant-...",
			})
		}
	case "ollama":
		issues = append(issues, ConfigIssue{Key: "ai.provider", Severity: "info", Message: "Ollama configured (no API key needed)"})
	default:
		issues = append(issues, ConfigIssue{
			Key:      "ai.provider",
			Severity: "error",
			Message:  fmt.Sprintf("ai.provider must be openai, anthropic, or ollama, got %q", p),
		})
	}

	if viper.GetString("auth.jwt_secret") == "" {
		issues = append(issues, ConfigIssue{
			Key:      "auth.jwt_secret",
			Severity: "warning",
			Message:  "auth.jwt_secret is not set; the API trusts the X-User-ID header (development mode)",
			Fix:      "export SUPABASE_JWT_SECRET=...",
		})
	}

	if ElevenLabsKey() == "" {
		issues = append(issues, ConfigIssue{
			Key:      "elevenlabs.api_key",
			Severity: "info",
			Message:  "ElevenLabs API key is not set; voice input is disabled",
		})
	}

	if viper.GetString("backup.bucket") != "" &&
		(viper.GetString("backup.access_key") == "" || viper.GetString("backup.secret_key") == "") {
		issues = append(issues, ConfigIssue{
			Key:      "backup.access_key",
			Severity: "warning",
			Message:  "backup.bucket is set but the access keys are missing; backups will fail",
		})
	}

	return issues
}

// Set sets a config value and saves to disk.
func Set(key, value string) error {
	viper.Set(key, value)
	return SaveConfig()
}

// Get retrieves a config value.
func Get(key string) string {
	return viper.GetString(key)
}

// ResetConfig removes the config file and restores the defaults.
func ResetConfig() error {
	path := ConfigPath()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not delete config: %w", err)
	}
	viper.Reset()
	setDefaults()
	return nil
}

// SaveConfig writes the current config to ~/.vexcel/config.yaml, or to the
// file Load was pointed at.
func SaveConfig() error {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("could not create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("could not write config: %w", err)
	}

	// The file holds API keys.
	_ = os.Chmod(path, 0o600)
	return nil
}

// ConfigPath returns the path to the config file.
func ConfigPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return filepath.Join(configDir(), "config.yaml")
}

var secretKeys = map[string]bool{
	"openai.api_key":         true,
	"anthropic.api_key":      true,
	"elevenlabs.api_key":     true,
	"auth.jwt_secret":        true,
	"onedrive.client_secret": true,
	"onedrive.access_token":  true,
	"backup.secret_key":      true,
	"backup.access_key":      true,
}

// Mask shortens a secret for display.
func Mask(v string) string {
	if v == "" {
		return ""
	}
	if len(v) <= 8 {
		return "****"
	}
	return v[:min(6, len(v)/3)] + "****"
}

// Settings returns every known setting with secrets masked.
func Settings() map[string]any {
	out := make(map[string]any)
	for _, key := range viper.AllKeys() {
		v := viper.Get(key)
		if secretKeys[key] {
			v = Mask(fmt.Sprint(v))
		}
		out[key] = v
	}
	return out
}

// ShowYAML renders Settings as nested YAML.
func ShowYAML() (string, error) {
	nested := make(map[string]any)
	for key, v := range Settings() {
		parts := strings.Split(key, ".")
		m := nested
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = v
	}
	data, err := yaml.Marshal(nested)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ShowConfig returns a formatted string of the current configuration.
func ShowConfig() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Config: %s\n\n", ConfigPath()))

	sb.WriteString("Server\n")
	sb.WriteString(fmt.Sprintf("  addr:      %s\n", viper.GetString("server.addr")))
	sb.WriteString(fmt.Sprintf("  auth:      %s\n", onOff(viper.GetString("auth.jwt_secret") != "", "jwt", "X-User-ID header")))
	sb.WriteString("\n")

	sb.WriteString("Excel MCP server\n")
	sb.WriteString(fmt.Sprintf("  url:       %s\n", viper.GetString("mcp.base_url")))
	sb.WriteString("\n")

	sb.WriteString("OneDrive\n")
	sb.WriteString(fmt.Sprintf("  mode:      %s\n", viper.GetString("onedrive.mode")))
	sb.WriteString(fmt.Sprintf("  folder:    %s\n", viper.GetString("onedrive.folder")))
	if id := viper.GetString("onedrive.client_id"); id != "" {
		sb.WriteString(fmt.Sprintf("  client_id: %s\n", id))
	}
	sb.WriteString("\n")

	sb.WriteString("AI\n")
	sb.WriteString(fmt.Sprintf("  model:     %s\n", viper.GetString("openai.model")))
	if k := OpenAIKey(); k != "" {
		sb.WriteString(fmt.Sprintf("  key:       %s\n", Mask(k)))
	}
	sb.WriteString(fmt.Sprintf("  analyst:   %s\n", viper.GetString("ai.provider")))
	sb.WriteString("\n")

	sb.WriteString("Storage\n")
	sb.WriteString(fmt.Sprintf("  database:  %s\n", DriverFor(viper.GetString("database.url"))))
	if b := viper.GetString("backup.bucket"); b != "" {
		sb.WriteString(fmt.Sprintf("  backup:    %s\n", b))
	}
	sb.WriteString(fmt.Sprintf("  journal:   %s\n", viper.GetString("audit.path")))
	sb.WriteString("\n")

	if k := ElevenLabsKey(); k != "" {
		sb.WriteString("Voice\n")
		sb.WriteString(fmt.Sprintf("  key:       %s\n", Mask(k)))
		sb.WriteString("\n")
	}

	return sb.String()
}

func onOff(on bool, yes, no string) string {
	if on {
		return yes
	}
	return no
}
