// Package shell provides the interactive chat REPL over one spreadsheet.
package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Todor-5rov/Vexcel/internal/assistant"
	"github.com/Todor-5rov/Vexcel/internal/xlsx"
)

// Assistant processes one chat command.
type Assistant interface {
	ProcessCommand(ctx context.Context, cmd assistant.Command) assistant.Reply
}

// TableLoader returns the current contents of the file being edited.
type TableLoader func(ctx context.Context) (*xlsx.Table, error)

// Session manages an interactive chat session over one file.
type Session struct {
	FileID     string
	Filename   string
	RemotePath string
	// SyncFirst pulls the OneDrive copy before each command so edits made in
	// the browser are not overwritten.
	SyncFirst bool

	Assistant Assistant
	Load      TableLoader

	CommandHistory []string
	HistoryFile    string
	StartTime      time.Time
	Out            io.Writer

	modified int
}

var metaCommands = []string{"help", "history", "show", "sync", "exit", "quit"}

// NewSession creates a chat session for the file at remotePath.
func NewSession(a Assistant, fileID, filename, remotePath string) *Session {
	home, _ := os.UserHomeDir()
	histFile := filepath.Join(home, ".vexcel", "chat_history")
	os.MkdirAll(filepath.Dir(histFile), 0o755)

	return &Session{
		FileID:      fileID,
		Filename:    filename,
		RemotePath:  remotePath,
		SyncFirst:   true,
		Assistant:   a,
		HistoryFile: histFile,
		StartTime:   time.Now(),
		Out:         os.Stdout,
	}
}

// Run starts the REPL loop. Blocks until 'exit', Ctrl+D or ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if s.Assistant == nil {
		return fmt.Errorf("chat assistant not configured")
	}

	var items []readline.PrefixCompleterInterface
	for _, c := range metaCommands {
		if c == "sync" {
			items = append(items, readline.PcItem(c, readline.PcItem("on"), readline.PcItem("off")))
			continue
		}
		items = append(items, readline.PcItem(c))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "vexcel> ",
		HistoryFile:     s.HistoryFile,
		AutoComplete:    readline.NewPrefixCompleter(items...),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	fmt.Fprintf(s.Out, "VExcel chat: %s\n", s.Filename)
	fmt.Fprintln(s.Out, "Describe a change in plain language. Type 'help' for commands, 'exit' to quit.")
	fmt.Fprintln(s.Out)

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			break
		}
		out, done := s.Eval(ctx, line)
		if out != "" {
			fmt.Fprint(s.Out, out)
			if !strings.HasSuffix(out, "\n") {
				fmt.Fprintln(s.Out)
			}
		}
		if done {
			return nil
		}
	}
	return nil
}

// Eval handles one input line and returns the text to print. done reports
// that the session should end.
func (s *Session) Eval(ctx context.Context, line string) (out string, done bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	s.CommandHistory = append(s.CommandHistory, line)

	switch {
	case line == "exit" || line == "quit":
		return fmt.Sprintf("Session ended. %d request(s), %d change(s) in %s.\n",
			len(s.CommandHistory)-1, s.modified, formatDuration(time.Since(s.StartTime))), true
	case line == "help":
		return helpText, false
	case line == "history":
		var b strings.Builder
		for i, c := range s.CommandHistory {
			fmt.Fprintf(&b, "  %d  %s\n", i+1, c)
		}
		return b.String(), false
	case line == "show":
		return s.show(ctx), false
	case line == "sync on" || line == "sync off":
		s.SyncFirst = line == "sync on"
		return fmt.Sprintf("Pull from OneDrive before each request: %s\n", onOff(s.SyncFirst)), false
	}

	return s.ask(ctx, line), false
}

func (s *Session) ask(ctx context.Context, message string) string {
	cmd := assistant.Command{
		UserMessage:        message,
		RemoteFilePath:     s.RemotePath,
		FileID:             s.FileID,
		SyncFromCloudFirst: s.SyncFirst,
	}
	if s.Load != nil {
		if table, err := s.Load(ctx); err == nil {
			cmd.Headers = table.Headers
			cmd.CurrentData = table.Rows
		}
	}

	reply := s.Assistant.ProcessCommand(ctx, cmd)
	if reply.FileModified {
		s.modified++
	}
	return reply.Response
}

func (s *Session) show(ctx context.Context) string {
	if s.Load == nil {
		return "Preview is not available.\n"
	}
	table, err := s.Load(ctx)
	if err != nil {
		return fmt.Sprintf("Could not load %s: %s\n", s.Filename, err)
	}
	var b strings.Builder
	for _, row := range table.Rows {
		b.WriteString(strings.Join(row, " | "))
		b.WriteByte('\n')
	}
	if table.Truncated {
		b.WriteString("...\n")
	}
	return b.String()
}

const helpText = `Type a request such as "add a total row" or "sort by salary".

Commands:
  show       print the current sheet
  sync on    pull the OneDrive copy before each request (default)
  sync off   work on the server copy only
  history    show this session's input
  exit       leave the chat
`

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	m := int(d.Minutes())
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", m, s)
}
