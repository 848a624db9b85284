// Package config provides CLI commands for configuration management.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/config"
)

// NewCommand returns the config command group.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage VExcel configuration",
		Long:  "Interactive setup, view, and modify VExcel settings.",
	}

	cmd.AddCommand(newInitCommand())
	cmd.AddCommand(newShowCommand())
	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newResetCommand())
	cmd.AddCommand(newPathCommand())
	cmd.AddCommand(newValidateCommand())

	return cmd
}

// loaded runs fn after reading the file named by --config.
func loaded(fn func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("config")
		if _, err := config.Load(file); err != nil {
			return err
		}
		return fn(cmd, args)
	}
}

func newInitCommand() *cobra.Command {
	var noInteractive bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			if noInteractive {
				if err := config.WizardNonInteractive(); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote defaults to %s\n", config.ConfigPath())
				return nil
			}
			return config.Wizard(cmd.InOrStdin(), cmd.OutOrStdout())
		}),
	}
	cmd.Flags().BoolVar(&noInteractive, "no-interactive", false, "Skip prompts, use defaults")
	return cmd
}

func newShowCommand() *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			jsonFlag, _ := cmd.Flags().GetBool("json")
			switch {
			case jsonFlag:
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(config.Settings())
			case asYAML:
				s, err := config.ShowYAML()
				if err != nil {
					return err
				}
				fmt.Fprint(out, s)
				return nil
			}

			fmt.Fprint(out, config.ShowConfig())
			return nil
		}),
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Print every setting as YAML, secrets masked")
	return cmd
}

func newSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			if err := config.Set(args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s\n", args[0], display(args[0], args[1]))
			return nil
		}),
	}
}

func newGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value",
		Args:  cobra.ExactArgs(1),
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			val := config.Get(args[0])
			if val == "" {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: (not set)\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], display(args[0], val))
			}
			return nil
		}),
	}
}

// display masks secrets the same way "config show" does.
func display(key, val string) string {
	if masked, ok := config.Settings()[key]; ok {
		return fmt.Sprint(masked)
	}
	return val
}

func newResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset configuration to defaults",
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			if err := config.ResetConfig(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration reset to defaults")
			return nil
		}),
	}
}

func newPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), config.ConfigPath())
			return nil
		}),
	}
}

func newValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate current configuration",
		RunE: loaded(func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			issues := config.Validate()

			jsonFlag, _ := cmd.Flags().GetBool("json")
			if jsonFlag {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(issues)
			}

			errors := printIssues(out, issues)
			if errors > 0 {
				return fmt.Errorf("configuration has %d error(s)", errors)
			}
			return nil
		}),
	}
}

// printIssues lists issues by severity and returns the error count.
func printIssues(w io.Writer, issues []config.ConfigIssue) int {
	count := map[string]int{}
	for _, issue := range issues {
		count[issue.Severity]++
	}
	if count["error"] == 0 && count["warning"] == 0 {
		color.New(color.FgGreen).Fprintln(w, "Configuration is valid")
		return 0
	}

	fmt.Fprintf(w, "Config validation: %d errors, %d warnings\n\n", count["error"], count["warning"])

	rank := map[string]int{"error": 0, "warning": 1, "info": 2}
	sorted := slices.Clone(issues)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank[sorted[i].Severity] < rank[sorted[j].Severity]
	})

	paint := map[string]*color.Color{
		"error":   color.New(color.FgRed),
		"warning": color.New(color.FgYellow),
		"info":    color.New(color.FgGreen),
	}
	for _, issue := range sorted {
		if c, ok := paint[issue.Severity]; ok {
			c.Fprintf(w, "  [%s] %s\n", issue.Key, issue.Message)
		}
		if issue.Fix != "" {
			fmt.Fprintf(w, "   Fix: %s\n", strings.ReplaceAll(issue.Fix, "\n", "\n        "))
		}
	}
	return count["error"]
}
