// Package migrate provides the "vexcel migrate" command for the metadata
// database schema.
package migrate

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/Todor-5rov/Vexcel/internal/app"
	"github.com/Todor-5rov/Vexcel/internal/output"
	"github.com/Todor-5rov/Vexcel/internal/store"
)

type migration struct {
	Version int64  `json:"version"`
	Source  string `json:"source"`
	Applied bool   `json:"applied"`
	At      string `json:"appliedAt,omitempty"`
}

// NewCommand returns the migrate command.
func NewCommand() *cobra.Command {
	var statusOnly bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending metadata database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := app.Setup(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
			if err != nil {
				return app.Fail(cmd, "migrate", err)
			}
			defer db.Close()

			if !statusOnly {
				if err := store.Migrate(ctx, db, cfg.Database.Driver, logger); err != nil {
					return app.Fail(cmd, "migrate", err)
				}
			}

			statuses, err := store.MigrationStatus(ctx, db, cfg.Database.Driver)
			if err != nil {
				return app.Fail(cmd, "migrate", err)
			}
			list := make([]migration, 0, len(statuses))
			for _, s := range statuses {
				m := migration{Version: s.Source.Version, Source: s.Source.Path, Applied: !s.AppliedAt.IsZero()}
				if m.Applied {
					m.At = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				list = append(list, m)
			}

			return app.Emit(cmd, "migrate", list, func(w io.Writer) error {
				fmt.Fprintf(w, "Database: %s\n\n", cfg.Database.Driver)
				rows := make([][]string, 0, len(list))
				for _, m := range list {
					state := output.Icon(output.StatusWarning) + " pending"
					if m.Applied {
						state = output.Icon(output.StatusOK) + " " + m.At
					}
					rows = append(rows, []string{fmt.Sprintf("%d", m.Version), m.Source, state})
				}
				return output.Table(w, []string{"VERSION", "SOURCE", "APPLIED"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "Only show which migrations are applied")
	return cmd
}
