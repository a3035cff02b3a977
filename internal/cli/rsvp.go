package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conference-site/schedule-api/internal/domain"
)

// rsvpCommand builds the commands that take <sessionId> <userId>.
func rsvpCommand(use, short string, rootOpts *RootOptions, d *deps, run func(*services, *OutputFormatter, *cobra.Command, domain.SessionID, domain.UserID) error) *cobra.Command {
	return &cobra.Command{
		Use:           use + " <sessionId> <userId>",
		Short:         short,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			svc, err := d.openServices(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer svc.Close()
			return run(svc, f, cmd, domain.SessionID(args[0]), domain.UserID(args[1]))
		},
	}
}

func newRSVPCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return rsvpCommand("rsvp", "RSVP a user to a session (waitlisted when full)", rootOpts, d,
		func(svc *services, f *OutputFormatter, cmd *cobra.Command, sessionID domain.SessionID, userID domain.UserID) error {
			r, err := svc.rsvps.Rsvp(cmd.Context(), sessionID, userID)
			if err != nil {
				return fail(f, err)
			}
			v := toRSVPView(r)
			return f.Success(v, rsvpLine(v))
		})
}

type unrsvpResult struct {
	Removed bool      `json:"removed"`
	RSVP    *rsvpView `json:"rsvp"`
}

func newUnrsvpCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return rsvpCommand("unrsvp", "Remove a user's RSVP, promoting the head of the waitlist", rootOpts, d,
		func(svc *services, f *OutputFormatter, cmd *cobra.Command, sessionID domain.SessionID, userID domain.UserID) error {
			removed, err := svc.rsvps.Unrsvp(cmd.Context(), sessionID, userID)
			if err != nil {
				return fail(f, err)
			}
			if removed == nil {
				return f.Success(unrsvpResult{}, fmt.Sprintf("%s  %s  no rsvp\n", sessionID, userID))
			}
			v := toRSVPView(*removed)
			return f.Success(unrsvpResult{Removed: true, RSVP: &v}, fmt.Sprintf("%s  %s  removed (was %s)\n", v.SessionID, v.UserID, v.State))
		})
}

type toggleResult struct {
	State string    `json:"state"`
	RSVP  *rsvpView `json:"rsvp"`
}

func newToggleCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return rsvpCommand("toggle", "RSVP the user if absent, otherwise remove the RSVP", rootOpts, d,
		func(svc *services, f *OutputFormatter, cmd *cobra.Command, sessionID domain.SessionID, userID domain.UserID) error {
			res, err := svc.rsvps.Toggle(cmd.Context(), sessionID, userID)
			if err != nil {
				return fail(f, err)
			}
			out := toggleResult{State: string(res.State())}
			if !res.Removed {
				v := toRSVPView(res.RSVP)
				out.RSVP = &v
			}
			return f.Success(out, fmt.Sprintf("%s  %s  %s\n", sessionID, userID, out.State))
		})
}

type purgeResult struct {
	UserID   string   `json:"userId"`
	Released []string `json:"releasedSessionIds"`
}

func newPurgeUserCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:   "purge-user <userId>",
		Short: "Release every RSVP a user holds",
		Long: `Remove the user from every session, promoting waitlisted attendees
where a seat frees up. The user profile itself is kept.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			svc, err := d.openServices(cmd.Context(), rootOpts, f)
			if err != nil {
				return err
			}
			defer svc.Close()

			userID := domain.UserID(args[0])
			held, err := svc.rsvps.GetForUser(cmd.Context(), userID)
			if err != nil {
				return fail(f, err)
			}
			if err := svc.rsvps.UnrsvpFromAllSessions(cmd.Context(), userID); err != nil {
				return fail(f, err)
			}

			out := purgeResult{UserID: string(userID), Released: make([]string, 0, len(held))}
			for _, r := range held {
				out.Released = append(out.Released, string(r.SessionID))
			}
			return f.Success(out, fmt.Sprintf("%s  released %d rsvps\n", userID, len(out.Released)))
		},
	}
}

func newCountsCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	return &cobra.Command{
		Use:           "counts",
		Short:         "Show the number of RSVPs (going plus waitlisted) per session",
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

			counts, err := svc.rsvps.CountsBySession(cmd.Context())
			if err != nil {
				return fail(f, err)
			}

			out := make([]countView, 0, len(counts))
			for id, n := range counts {
				out = append(out, countView{SessionID: string(id), Count: n})
			}
			sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })

			var text strings.Builder
			for _, c := range out {
				fmt.Fprintf(&text, "%s  %d\n", c.SessionID, c.Count)
			}
			return f.Success(out, text.String())
		},
	}
}
