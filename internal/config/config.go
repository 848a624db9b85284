// Package config manages application configuration from files and environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. VEXCEL_SERVER_ADDR.
const EnvPrefix = "VEXCEL"

// OneDrive modes.
const (
	OneDriveBridge   = "bridge"
	OneDriveGraph    = "graph"
	OneDriveDisabled = "disabled"
)

// Config holds the application configuration.
type Config struct {
	Server struct {
		Addr            string        `mapstructure:"addr"`
		AllowedOrigins  []string      `mapstructure:"allowed_origins"`
		ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	} `mapstructure:"server"`
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
	MCP struct {
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"mcp"`
	OneDrive struct {
		Mode         string        `mapstructure:"mode"`
		Folder       string        `mapstructure:"folder"`
		Drive        string        `mapstructure:"drive"`
		TenantID     string        `mapstructure:"tenant_id"`
		ClientID     string        `mapstructure:"client_id"`
		ClientSecret string        `mapstructure:"client_secret"`
		AccessToken  string        `mapstructure:"access_token"`
		Timeout      time.Duration `mapstructure:"timeout"`
	} `mapstructure:"onedrive"`
	Database struct {
		Driver string `mapstructure:"driver"`
		URL    string `mapstructure:"url"`
	} `mapstructure:"database"`
	OpenAI struct {
		APIKey  string        `mapstructure:"api_key"`
		Model   string        `mapstructure:"model"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"openai"`
	AI struct {
		Provider string `mapstructure:"provider"`
		Model    string `mapstructure:"model"`
	} `mapstructure:"ai"`
	Anthropic struct {
		APIKey string `mapstructure:"api_key"`
	} `mapstructure:"anthropic"`
	Ollama struct {
		Host string `mapstructure:"host"`
	} `mapstructure:"ollama"`
	ElevenLabs struct {
		APIKey string `mapstructure:"api_key"`
		Model  string `mapstructure:"model"`
	} `mapstructure:"elevenlabs"`
	Auth struct {
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`
	Backup struct {
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		Bucket    string `mapstructure:"bucket"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"backup"`
	Audit struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"audit"`
	Upload struct {
		MaxBytes int64 `mapstructure:"max_bytes"`
	} `mapstructure:"upload"`
	Output struct {
		Format string `mapstructure:"format"`
		Color  bool   `mapstructure:"color"`
	} `mapstructure:"output"`
}

// wellKnownEnv maps keys to the unprefixed variables the hosting platforms
// already set.
var wellKnownEnv = map[string][]string{
	"openai.api_key":     {"OPENAI_API_KEY"},
	"anthropic.api_key":  {"ANTHROPIC_API_KEY"},
	"elevenlabs.api_key": {"ELEVENLABS_API_KEY"},
	"database.url":       {"DATABASE_URL"},
	"auth.jwt_secret":    {"SUPABASE_JWT_SECRET"},
	"mcp.base_url":       {"MCP_SERVER_URL"},
}

// Load reads ~/.vexcel/config.yaml (or file, when set) and the environment.
// A missing config file is not an error.
func Load(file string) (*Config, error) {
	if file != "" {
		viper.SetConfigFile(file)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
	}

	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for key, names := range wellKnownEnv {
		prefixed := EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		_ = viper.BindEnv(append([]string{key, prefixed}, names...)...)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("could not read config: %w", err)
		}
	}

	return current()
}

func setDefaults() {
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("server.allowed_origins", []string{})
	viper.SetDefault("server.shutdown_timeout", "15s")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("mcp.base_url", "https://vexcelmcp.onrender.com")
	viper.SetDefault("mcp.timeout", "60s")
	viper.SetDefault("onedrive.mode", OneDriveBridge)
	viper.SetDefault("onedrive.folder", "excel-files")
	viper.SetDefault("onedrive.drive", "/me/drive")
	viper.SetDefault("onedrive.timeout", "60s")
	viper.SetDefault("database.driver", "")
	viper.SetDefault("database.url", filepath.Join(configDir(), "vexcel.db"))
	viper.SetDefault("openai.model", "gpt-4o")
	viper.SetDefault("openai.timeout", "120s")
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ollama.host", "http://localhost:11434")
	viper.SetDefault("elevenlabs.model", "eleven_multilingual_v2")
	viper.SetDefault("backup.region", "us-east-1")
	viper.SetDefault("audit.path", filepath.Join(configDir(), "sync.jsonl"))
	viper.SetDefault("upload.max_bytes", 10*1024*1024)
	viper.SetDefault("output.color", true)
	viper.SetDefault("output.format", "text")
}

func current() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Audit.Path = ExpandHome(cfg.Audit.Path)
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverFor(cfg.Database.URL)
	}
	if cfg.Database.Driver == "sqlite" {
		cfg.Database.URL = ExpandHome(cfg.Database.URL)
	}
	return &cfg, nil
}

// DriverFor guesses the database driver from a connection string.
func DriverFor(url string) string {
	lower := strings.ToLower(url)
	if strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://") {
		return "postgres"
	}
	return "sqlite"
}

// Watch calls fn with the reloaded configuration whenever the config file
// changes. Reload errors are passed through and the old config stays valid.
func Watch(fn func(cfg *Config, err error)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(current())
	})
	viper.WatchConfig()
}

// Features reports which optional integrations have credentials. Keys are
// read on every call so that environment changes are picked up.
type Features struct {
	OpenAI              bool `json:"openai"`
	OpenAIKeyLength     int  `json:"openaiKeyLength"`
	ElevenLabs          bool `json:"elevenlabs"`
	ElevenLabsKeyLength int  `json:"elevenlabsKeyLength"`
	Anthropic           bool `json:"anthropic"`
	Auth                bool `json:"auth"`
	Backup              bool `json:"backup"`
}

// CurrentFeatures reads the feature flags.
func CurrentFeatures() Features {
	openai := strings.TrimSpace(viper.GetString("openai.api_key"))
	eleven := strings.TrimSpace(viper.GetString("elevenlabs.api_key"))
	return Features{
		OpenAI:              openai != "",
		OpenAIKeyLength:     len(openai),
		ElevenLabs:          eleven != "",
		ElevenLabsKeyLength: len(eleven),
		Anthropic:           viper.GetString("anthropic.api_key") != "",
		Auth:                viper.GetString("auth.jwt_secret") != "",
		Backup:              viper.GetString("backup.bucket") != "",
	}
}

// OpenAIKey returns the current OpenAI key.
func OpenAIKey() string { return strings.TrimSpace(viper.GetString("openai.api_key")) }

// ElevenLabsKey returns the current ElevenLabs key.
func ElevenLabsKey() string { return strings.TrimSpace(viper.GetString("elevenlabs.api_key")) }

// AnthropicKey returns the current Anthropic key.
func AnthropicKey() string { return strings.TrimSpace(viper.GetString("anthropic.api_key")) }

// ExpandHome resolves a leading "~/".
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vexcel"
	}
	return filepath.Join(home, ".vexcel")
}
