package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conference-site/schedule-api/internal/app/sessions"
	"github.com/conference-site/schedule-api/internal/domain"
)

// scheduleFile is the YAML document accepted by "sessions import".
type scheduleFile struct {
	Sessions []scheduleEntry `yaml:"sessions"`
}

type scheduleEntry struct {
	Title       string     `yaml:"title"`
	Description *string    `yaml:"description"`
	Location    *string    `yaml:"location"`
	StartsAt    *time.Time `yaml:"startsAt"`
	EndsAt      *time.Time `yaml:"endsAt"`
	// MaxCapacity omitted means unlimited.
	MaxCapacity *int `yaml:"maxCapacity"`
}

func newSessionsCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage scheduled sessions",
	}
	cmd.AddCommand(newSessionsImportCommand(rootOpts, d))
	cmd.AddCommand(newSessionsListCommand(rootOpts, d))
	cmd.AddCommand(newSessionsSetCapacityCommand(rootOpts, d))
	return cmd
}

func newSessionsImportCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create sessions from a YAML schedule file",
		Long: `Create one session per entry of a YAML schedule file:

  sessions:
    - title: Opening keynote
      location: Hall A
      startsAt: 2026-05-04T09:00:00Z
      endsAt: 2026-05-04T10:00:00Z
      maxCapacity: 300

Entries are created in order; the import stops at the first rejected entry.
Use "-" to read from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSessionsImport(rootOpts, args[0], d, cmd)
		},
	}
}

func runSessionsImport(opts *RootOptions, path string, d *deps, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd)

	sf, err := readScheduleFile(path, cmd.InOrStdin())
	if err != nil {
		_ = f.Error("INVALID_SCHEDULE", err.Error(), nil)
		return WrapExitError(ExitCommandError, "read schedule", err)
	}

	svc, err := d.openServices(cmd.Context(), opts, f)
	if err != nil {
		return err
	}
	defer svc.Close()

	created := make([]sessionView, 0, len(sf.Sessions))
	var text strings.Builder
	for i, e := range sf.Sessions {
		s, err := svc.sessions.CreateSession(cmd.Context(), sessions.CreateSessionInput{
			Title:       e.Title,
			Description: e.Description,
			Location:    e.Location,
			StartsAt:    e.StartsAt,
			EndsAt:      e.EndsAt,
			MaxCapacity: e.MaxCapacity,
		})
		if err != nil {
			f.VerboseLog("entry %d rejected after %d created", i+1, len(created))
			return fail(f, err)
		}
		v := toSessionView(s)
		created = append(created, v)
		text.WriteString(sessionLine(v))
	}

	fmt.Fprintf(&text, "imported %d sessions\n", len(created))
	return f.Success(created, text.String())
}

func readScheduleFile(path string, stdin io.Reader) (scheduleFile, error) {
	var r io.Reader = stdin
	if path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return scheduleFile{}, err
		}
		defer file.Close()
		r = file
	}

	var sf scheduleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sf); err != nil {
		if errors.Is(err, io.EOF) {
			return scheduleFile{}, errors.New("schedule file is empty")
		}
		return scheduleFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(sf.Sessions) == 0 {
		return scheduleFile{}, errors.New("schedule file has no sessions")
	}
	return sf, nil
}

func newSessionsListCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List sessions with their RSVP counts",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			svc, err := d.openServices(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer svc.Close()

			entries, err := svc.sessions.ListSchedule(cmd.Context())
			if err != nil {
				return fail(f, err)
			}
			out := make([]sessionView, 0, len(entries))
			var text strings.Builder
			for _, e := range entries {
				v := toSessionView(e.Session)
				n := e.RSVPCount
				v.RSVPCount = &n
				out = append(out, v)
				text.WriteString(sessionLine(v))
			}
			return f.Success(out, text.String())
		},
	}
}

type capacityResult struct {
	Session  sessionView `json:"session"`
	Promoted []string    `json:"promotedUserIds"`
}

func newSessionsSetCapacityCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "set-capacity <sessionId> <n|unlimited>",
		Short: "Change a session's capacity, promoting waitlisted attendees into new seats",
		Long: `Change a session's maximum capacity.

Raising the limit (or removing it with "unlimited") promotes waitlisted
attendees in the order they joined. The limit cannot drop below the number
of attendees already going.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)

			capacity := sessions.Null[int]()
			if args[1] != "unlimited" {
				n, err := strconv.Atoi(args[1])
				if err != nil {
					_ = f.Error("INVALID_ARGS", fmt.Sprintf("capacity must be a number or \"unlimited\" (got %q)", args[1]), nil)
					return WrapExitError(ExitCommandError, "parse capacity", err)
				}
				capacity = sessions.Some(n)
			}

			svc, err := d.openServices(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.sessions.UpdateSession(cmd.Context(), domain.SessionID(args[0]), sessions.UpdateSessionInput{
				MaxCapacity: capacity,
			})
			if err != nil {
				return fail(f, err)
			}

			out := capacityResult{Session: toSessionView(res.Session), Promoted: make([]string, 0, len(res.Promoted))}
			var text strings.Builder
			text.WriteString(sessionLine(out.Session))
			for _, id := range res.Promoted {
				out.Promoted = append(out.Promoted, string(id))
				fmt.Fprintf(&text, "promoted %s\n", id)
			}
			return f.Success(out, text.String())
		},
	}
}
