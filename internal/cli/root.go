// Package cli implements rsvpctl, the operator command line for the schedule stores.
package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/conference-site/schedule-api/internal/adapters/backends"
	"github.com/conference-site/schedule-api/internal/adapters/postgres"
	platformclock "github.com/conference-site/schedule-api/internal/platform/clock"
	"github.com/conference-site/schedule-api/internal/platform/config"
	"github.com/conference-site/schedule-api/internal/ports/out/clock"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	Backend     string
	DatabaseURL string
	SQLitePath  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// deps is what commands need beyond flags. Tests swap it for a shared in-memory store
// and a manual clock.
type deps struct {
	clock clock.Clock
	open  func(ctx context.Context, cfg backends.Config) (*backends.Stores, error)
	// ids, when set, replace random session and user ids.
	ids *idSource
}

func defaultDeps() *deps {
	return &deps{
		clock: platformclock.NewSystemClock(),
		open:  backends.Open,
	}
}

// NewRootCommand creates the rsvpctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultDeps())
}

func newRootCommand(d *deps) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rsvpctl",
		Short: "Operate the conference schedule stores",
		Long: `rsvpctl runs schedule and RSVP operations directly against a storage backend.

It applies the same capacity and waitlist rules as the API, so it is safe to
use against a live database.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			switch opts.Backend {
			case config.BackendMemory, config.BackendPostgres, config.BackendSQLite:
			default:
				return fmt.Errorf("invalid backend %q: must be one of memory, postgres, sqlite", opts.Backend)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Backend, "backend", config.BackendSQLite, "storage backend (memory|postgres|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.DatabaseURL, "database-url", "", "postgres connection string")
	cmd.PersistentFlags().StringVar(&opts.SQLitePath, "sqlite-path", "schedule.db", "sqlite database file")

	cmd.AddCommand(newMigrateCommand(opts))
	cmd.AddCommand(newUsersCommand(opts, d))
	cmd.AddCommand(newSessionsCommand(opts, d))
	cmd.AddCommand(newRSVPCommand(opts, d))
	cmd.AddCommand(newUnrsvpCommand(opts, d))
	cmd.AddCommand(newToggleCommand(opts, d))
	cmd.AddCommand(newPurgeUserCommand(opts, d))
	cmd.AddCommand(newCountsCommand(opts, d))

	return cmd
}

func (o *RootOptions) backendConfig() backends.Config {
	return backends.Config{
		Backend:     o.Backend,
		DatabaseURL: o.DatabaseURL,
		SQLitePath:  o.SQLitePath,
		Pool:        postgres.PoolOptions{MaxConns: 2},
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
