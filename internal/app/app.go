// Package app assembles the VExcel services from configuration. Both the
// HTTP server and the CLI commands build on it.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Todor-5rov/Vexcel/internal/ai"
	"github.com/Todor-5rov/Vexcel/internal/assistant"
	"github.com/Todor-5rov/Vexcel/internal/audit"
	"github.com/Todor-5rov/Vexcel/internal/auth"
	"github.com/Todor-5rov/Vexcel/internal/backup"
	"github.com/Todor-5rov/Vexcel/internal/cloud"
	"github.com/Todor-5rov/Vexcel/internal/config"
	"github.com/Todor-5rov/Vexcel/internal/events"
	"github.com/Todor-5rov/Vexcel/internal/httpapi"
	"github.com/Todor-5rov/Vexcel/internal/ingest"
	"github.com/Todor-5rov/Vexcel/internal/mcp"
	"github.com/Todor-5rov/Vexcel/internal/store"
	"github.com/Todor-5rov/Vexcel/internal/sync"
	"github.com/Todor-5rov/Vexcel/internal/voice"
)

const voiceTimeout = 60 * time.Second

// App holds the wired services. Close releases the database.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	DB        *sql.DB
	Files     *store.SQLRepository
	Remote    *mcp.Client
	Cloud     cloud.Store
	Backup    backup.Store
	Journal   *audit.Journal
	Hub       *events.Hub
	Sync      *sync.Orchestrator
	Uploader  *ingest.Uploader
	Assistant *assistant.Assistant
	Analyst   *assistant.Analyst
}

// Open connects the database, applies pending migrations and wires every
// service described by cfg.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if cfg.Database.Driver == store.DriverSQLite && !strings.HasPrefix(cfg.Database.URL, ":") && !strings.HasPrefix(cfg.Database.URL, "file:") {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.URL), 0o700); err != nil {
			return nil, fmt.Errorf("could not create database directory: %w", err)
		}
	}

	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx, db, cfg.Database.Driver, logger); err != nil {
		db.Close()
		return nil, err
	}

	a := &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Files:  store.NewSQLRepository(db),
		Remote: mcp.NewClient(cfg.MCP.BaseURL, cfg.MCP.Timeout),
	}

	a.Cloud, err = NewCloud(ctx, cfg, a.Remote)
	if err != nil {
		db.Close()
		return nil, err
	}

	a.Backup = backup.Noop{}
	bcfg := backup.Config{
		Endpoint:  cfg.Backup.Endpoint,
		Region:    cfg.Backup.Region,
		Bucket:    cfg.Backup.Bucket,
		AccessKey: cfg.Backup.AccessKey,
		SecretKey: cfg.Backup.SecretKey,
	}
	if bcfg.Enabled() {
		s3, err := backup.NewS3(ctx, bcfg)
		if err != nil {
			db.Close()
			return nil, err
		}
		a.Backup = s3
	}

	a.Journal = audit.NewJournal(cfg.Audit.Path, logger)
	a.Hub = events.NewHub(logger)
	a.Sync = sync.New(sync.Config{
		Cloud:    a.Cloud,
		Files:    a.Files,
		Observer: sync.Observers(a.Journal, a.Hub),
		Logger:   logger,
		Folder:   cfg.OneDrive.Folder,
	})
	a.Uploader = ingest.New(ingest.Config{
		Remote:   a.Remote,
		Cloud:    a.Cloud,
		Backup:   a.Backup,
		Files:    a.Files,
		Sync:     a.Sync,
		Events:   a.Hub,
		Logger:   logger,
		MaxBytes: cfg.Upload.MaxBytes,
		Folder:   cfg.OneDrive.Folder,
	})
	a.Assistant = assistant.New(assistant.Config{
		Mutator: Mutator(cfg),
		Remote:  a.Remote,
		Files:   a.Files,
		Sync:    a.Sync,
		Model:   cfg.OpenAI.Model,
		Logger:  logger,
	})
	a.Analyst = &assistant.Analyst{Provider: Provider(cfg)}
	return a, nil
}

// Close releases the database.
func (a *App) Close() error {
	if a.DB == nil {
		return nil
	}
	return a.DB.Close()
}

// Server builds the HTTP API over the wired services.
func (a *App) Server() *httpapi.Server {
	resolver := auth.Resolver{}
	if secret := a.Config.Auth.JWTSecret; secret != "" {
		resolver.Verifier = auth.NewVerifier(secret)
	} else {
		a.Logger.Warn("auth.jwt_secret is not set; trusting the X-User-ID header")
	}

	return httpapi.New(httpapi.Config{
		Files:          a.Uploader,
		Assistant:      a.Assistant,
		Analyst:        a.Analyst,
		Voice:          Voice(a.Config),
		Remote:         a.Remote,
		Cloud:          a.Cloud,
		Hub:            a.Hub,
		Auth:           resolver,
		Features:       config.CurrentFeatures,
		Logger:         a.Logger,
		AllowedOrigins: a.Config.Server.AllowedOrigins,
		MaxUploadBytes: a.Config.Upload.MaxBytes,
		VoiceModel:     a.Config.ElevenLabs.Model,
	})
}

// NewCloud selects the OneDrive backend.
func NewCloud(ctx context.Context, cfg *config.Config, working cloud.WorkingCopy) (cloud.Store, error) {
	switch cfg.OneDrive.Mode {
	case config.OneDriveBridge, "":
		return cloud.NewBridge(cfg.MCP.BaseURL, cfg.OneDrive.Timeout), nil
	case config.OneDriveGraph:
		creds := cloud.Credentials{
			TenantID:     cfg.OneDrive.TenantID,
			ClientID:     cfg.OneDrive.ClientID,
			ClientSecret: cfg.OneDrive.ClientSecret,
			AccessToken:  cfg.OneDrive.AccessToken,
		}
		client, err := creds.HTTPClient(ctx)
		if err != nil {
			return nil, err
		}
		client.Timeout = cfg.OneDrive.Timeout
		return cloud.NewGraph(client, cfg.OneDrive.Drive, working), nil
	case config.OneDriveDisabled:
		return cloud.Disabled{}, nil
	default:
		return nil, fmt.Errorf("unknown onedrive.mode %q, supported modes: bridge, graph, disabled", cfg.OneDrive.Mode)
	}
}

// Mutator returns a factory that builds the OpenAI client from the key
// configured at call time, or nil when no key is set.
func Mutator(cfg *config.Config) func() ai.Mutator {
	return func() ai.Mutator {
		key := config.OpenAIKey()
		if key == "" {
			return nil
		}
		return ai.NewResponsesMutator(key, cfg.OpenAI.Model, &http.Client{Timeout: cfg.OpenAI.Timeout})
	}
}

// Provider returns a factory for the chat provider used by the analyst.
func Provider(cfg *config.Config) func() (ai.Provider, error) {
	return func() (ai.Provider, error) {
		return ai.NewProvider(cfg.AI.Provider, cfg.AI.Model, ai.Credentials{
			OpenAIKey:    config.OpenAIKey(),
			AnthropicKey: config.AnthropicKey(),
			OllamaHost:   cfg.Ollama.Host,
			Timeout:      cfg.OpenAI.Timeout,
		})
	}
}

// Voice returns a factory for the transcriber, or nil when no ElevenLabs key
// is set.
func Voice(cfg *config.Config) func() httpapi.Transcriber {
	return func() httpapi.Transcriber {
		key := config.ElevenLabsKey()
		if key == "" {
			return nil
		}
		return voice.NewClient(key, voiceTimeout)
	}
}
