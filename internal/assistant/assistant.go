// Package assistant turns a chat message about a spreadsheet into a tool-using
// model call on the MCP working copy, keeps OneDrive in step through the sync
// orchestrator, and phrases the outcome for the user.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"text/template"

	"github.com/Todor-5rov/Vexcel/internal/ai"
	"github.com/Todor-5rov/Vexcel/internal/mcp"
	"github.com/Todor-5rov/Vexcel/internal/sync"
)

// Remote is the part of the MCP server client the assistant needs.
type Remote interface {
	Health(ctx context.Context) bool
	ToolURL() string
}

// CloudLookup resolves a metadata row of ownerID to its OneDrive item id.
type CloudLookup interface {
	GetCloudFileID(ctx context.Context, id, ownerID string) (string, error)
}

// Command is one chat turn against a selected file.
type Command struct {
	UserMessage string     `json:"userMessage"`
	CurrentData [][]string `json:"currentData"`
	Headers     []string   `json:"headers"`
	// RemoteFilePath is owner/filename on the MCP server.
	RemoteFilePath     string `json:"remoteFilePath"`
	FileID             string `json:"fileId,omitempty"`
	SyncFromCloudFirst bool   `json:"syncFromCloudFirst,omitempty"`
}

// Reply is what the user sees. Failures are expressed in Response.
type Reply struct {
	Response     string        `json:"response"`
	FileModified bool          `json:"fileModified"`
	Mutations    []ai.ToolCall `json:"mutations,omitempty"`
	Sync         *sync.Result  `json:"syncResult,omitempty"`
}

// Config wires an Assistant.
type Config struct {
	// Mutator returns the model client, or nil when no key is configured.
	// It is called per command so key changes apply without a restart.
	Mutator func() ai.Mutator
	Remote  Remote
	Files   CloudLookup
	Sync    *sync.Orchestrator
	Model   string
	Logger  *slog.Logger
	// Pick chooses the follow-up suggestion index; defaults to rand.IntN.
	Pick func(n int) int
}

// Assistant is safe for concurrent use.
type Assistant struct {
	cfg Config
	log *slog.Logger
}

// New creates an Assistant.
func New(cfg Config) *Assistant {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Pick == nil {
		cfg.Pick = rand.IntN
	}
	if cfg.Sync == nil {
		cfg.Sync = sync.New(sync.Config{Logger: cfg.Logger})
	}
	return &Assistant{cfg: cfg, log: cfg.Logger}
}

// Messages shown when a dependency is missing.
const (
	msgNoKey       = "OpenAI API key is not configured. Please add OPENAI_API_KEY to your environment variables."
	msgNoPath      = "No file path provided. Please make sure a file is selected."
	msgUnreachable = "I'm having trouble connecting to the Excel processing server. Please try again in a moment, and if the issue persists, the server might be temporarily unavailable."
)

// ProcessCommand runs cmd and never fails: every problem becomes a reply.
func (a *Assistant) ProcessCommand(ctx context.Context, cmd Command) Reply {
	var mutator ai.Mutator
	if a.cfg.Mutator != nil {
		mutator = a.cfg.Mutator()
	}
	if mutator == nil {
		return Reply{Response: msgNoKey}
	}
	if strings.TrimSpace(cmd.RemoteFilePath) == "" {
		return Reply{Response: msgNoPath}
	}
	ownerID, filename, err := mcp.ParsePath(cmd.RemoteFilePath)
	if err != nil {
		return Reply{Response: msgNoPath}
	}
	if a.cfg.Remote != nil && !a.cfg.Remote.Health(ctx) {
		return Reply{Response: msgUnreachable}
	}

	log := a.log.With(slog.String("owner", ownerID), slog.String("file", filename))

	// The file id comes from the client, so it is only used once it is known
	// to belong to the owner of the path.
	var opts sync.Options
	if cmd.FileID != "" && a.cfg.Files != nil {
		cloudID, err := a.cfg.Files.GetCloudFileID(ctx, cmd.FileID, ownerID)
		if err != nil {
			log.Warn("ignoring file id", slog.String("file_id", cmd.FileID), slog.String("error", err.Error()))
		} else {
			opts = sync.Options{FileID: cmd.FileID, CloudFileID: cloudID, SyncFromCloudFirst: cmd.SyncFromCloudFirst}
		}
	}

	prompt, err := buildPrompt(filename, cmd)
	if err != nil {
		return Reply{Response: friendly(err)}
	}
	req := ai.MutationRequest{Prompt: prompt, Model: a.cfg.Model}
	if a.cfg.Remote != nil {
		req.ToolURL = a.cfg.Remote.ToolURL()
	}

	out, err := sync.PerformSyncedOperation(ctx, a.cfg.Sync, ownerID, filename,
		func(ctx context.Context) (*ai.MutationResult, error) {
			return mutator.Mutate(ctx, req)
		}, opts)
	if err != nil {
		log.Warn("assistant command failed", slog.String("error", err.Error()))
		return Reply{Response: friendly(err)}
	}

	res := out.Result
	syncRes := out.Sync
	modified := res.Modified()
	log.Info("assistant command done",
		slog.Int("tool_calls", len(res.ToolCalls)),
		slog.Bool("modified", modified),
		slog.Bool("synced", syncRes.Success))

	return Reply{
		Response:     a.narrate(filename, res, modified, syncRes),
		FileModified: modified,
		Mutations:    res.ToolCalls,
		Sync:         &syncRes,
	}
}

var promptTemplate = template.Must(template.New("prompt").Parse(`You are VExcel, an expert Excel data manipulation assistant. You help users work with their Excel files using natural language commands.

FILE DETAILS:
- File: {{.Filename}}
- MCP File Path: {{.Path}}
- Available columns: {{.Columns}}
- Total rows: {{.Rows}} (excluding header)

USER REQUEST: "{{.Message}}"

INSTRUCTIONS:
1. Use the Excel MCP tools to perform the requested operation on the file at path "{{.Path}}"
2. Always use the exact filepath parameter: "{{.Path}}"
3. After performing operations, provide a clear, friendly explanation of what you did
4. If you made changes, describe the specific changes made
5. If you encountered any issues, explain them clearly
6. Be conversational and helpful in your response

IMPORTANT: Focus on explaining what you accomplished rather than technical details. Users want to know:
- What operation was performed
- What data was affected
- What the results mean
- Any next steps they might consider

Work with the file and provide a helpful, conversational response about what you accomplished.`))

func buildPrompt(filename string, cmd Command) (string, error) {
	rows := len(cmd.CurrentData) - 1
	if rows < 0 {
		rows = 0
	}
	var b strings.Builder
	err := promptTemplate.Execute(&b, map[string]any{
		"Filename": filename,
		"Path":     strings.Trim(strings.TrimSpace(cmd.RemoteFilePath), "/"),
		"Columns":  strings.Join(cmd.Headers, ", "),
		"Rows":     rows,
		"Message":  cmd.UserMessage,
	})
	return b.String(), err
}

// friendly maps an error to a message a user can act on.
func friendly(err error) string {
	var apiErr *ai.APIError
	switch {
	case errors.Is(err, ai.ErrMissingAPIKey):
		return "There's an issue with the OpenAI API key. Please make sure it's configured correctly."
	case errors.As(err, &apiErr) && apiErr.Unauthorized():
		return "There's an issue with the OpenAI API key. Please make sure it's configured correctly."
	case errors.As(err, &apiErr) && strings.Contains(strings.ToLower(apiErr.Body), "quota"):
		return "The OpenAI API quota has been exceeded. Please check your OpenAI account billing."
	case errors.As(err, &apiErr) && apiErr.RateLimited():
		return "I'm getting too many requests right now. Please wait a moment and try again."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "That request took too long to finish. Please try again, or break it into smaller steps."
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(msg, "MCP") || strings.Contains(lower, "server") {
		return msgUnreachable
	}
	return "I encountered an error while processing your request: " + msg + ". Please try rephrasing your request or try a simpler operation first."
}
