package app

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/config"
	"github.com/Todor-5rov/Vexcel/internal/logging"
	"github.com/Todor-5rov/Vexcel/internal/output"
)

// ErrNoOwner is returned by commands that act on a user's files when no
// user is given.
var ErrNoOwner = errors.New("no user given: pass --user or set VEXCEL_USER")

// Setup loads the configuration named by --config and builds the logger.
// --verbose forces debug level.
func Setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(file)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.Log.Level
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		level = "debug"
	}
	return cfg, logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format), nil
}

// OpenFromCommand runs Setup and Open.
func OpenFromCommand(cmd *cobra.Command) (*App, error) {
	cfg, logger, err := Setup(cmd)
	if err != nil {
		return nil, err
	}
	return Open(cmd.Context(), cfg, logger)
}

// Owner returns the user the command acts for.
func Owner(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = os.Getenv(config.EnvPrefix + "_USER")
	}
	user = strings.TrimSpace(user)
	if user == "" {
		return "", ErrNoOwner
	}
	return user, nil
}

// Emit prints data as the JSON envelope under --json, or calls text.
func Emit(cmd *cobra.Command, name string, data any, text func(w io.Writer) error) error {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		return output.PrintJSON(cmd.OutOrStdout(), name, data)
	}
	return text(cmd.OutOrStdout())
}

// Fail reports err under --json and returns it for cobra to surface.
func Fail(cmd *cobra.Command, name string, err error) error {
	if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
		code := output.ExitSystemError
		if errors.Is(err, ErrNoOwner) {
			code = output.ExitUserError
		}
		_ = output.PrintJSONError(cmd.OutOrStdout(), name, err, code)
	}
	return fmt.Errorf("%s: %w", name, err)
}
