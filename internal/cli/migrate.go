package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conference-site/schedule-api/internal/adapters/postgres"
	"github.com/conference-site/schedule-api/internal/adapters/sqlite"
	"github.com/conference-site/schedule-api/internal/platform/config"
)

type migrateResult struct {
	Backend   string `json:"backend"`
	Direction string `json:"direction"`
	Changed   bool   `json:"changed"`
}

func newMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate <up|down>",
		Short: "Apply or roll back the database schema",
		Long: `Apply (up) or roll back (down) the embedded schema.

Postgres runs the versioned migrations. SQLite applies its schema when the
file is opened, so only "up" is supported there.`,
		Args:          cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:     []string{postgres.MigrationUp, postgres.MigrationDown},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(rootOpts, args[0], cmd)
		},
	}
}

func runMigrate(opts *RootOptions, direction string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)
	res := migrateResult{Backend: opts.Backend, Direction: direction}

	switch opts.Backend {
	case config.BackendPostgres:
		if opts.DatabaseURL == "" {
			_ = f.Error("INVALID_FLAGS", "--database-url is required for postgres", nil)
			return NewExitError(ExitCommandError, "missing --database-url")
		}
		changed, err := postgres.Migrate(opts.DatabaseURL, direction)
		if err != nil {
			_ = f.Error("MIGRATION_FAILED", err.Error(), nil)
			return WrapExitError(ExitCommandError, "migrate", err)
		}
		res.Changed = changed

	case config.BackendSQLite:
		if direction != postgres.MigrationUp {
			_ = f.Error("INVALID_ARGS", "sqlite only supports migrate up", nil)
			return NewExitError(ExitCommandError, "unsupported direction")
		}
		store, err := sqlite.Open(opts.SQLitePath)
		if err != nil {
			_ = f.Error("MIGRATION_FAILED", err.Error(), nil)
			return WrapExitError(ExitCommandError, "migrate", err)
		}
		_ = store.Close()
		res.Changed = true

	default:
		_ = f.Error("INVALID_FLAGS", fmt.Sprintf("backend %q has no schema", opts.Backend), nil)
		return NewExitError(ExitCommandError, "nothing to migrate")
	}

	text := fmt.Sprintf("%s: migrate %s: no change\n", res.Backend, res.Direction)
	if res.Changed {
		text = fmt.Sprintf("%s: migrate %s: applied\n", res.Backend, res.Direction)
	}
	return f.Success(res, text)
}
