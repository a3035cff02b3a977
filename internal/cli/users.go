package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/conference-site/schedule-api/internal/app/users"
	"github.com/conference-site/schedule-api/internal/domain"
)

type usersCreateOptions struct {
	Subject string
	Name    string
	Email   string
}

func newUsersCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage attendee profiles",
	}
	cmd.AddCommand(newUsersCreateCommand(rootOpts, d))
	return cmd
}

func newUsersCreateCommand(rootOpts *RootOptions, d *deps) *cobra.Command {
	opts := &usersCreateOptions{}

	cmd := &cobra.Command{
		Use:           "create",
		Short:         "Provision a user profile for an auth subject",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUsersCreate(rootOpts, opts, d, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Subject, "subject", "", "auth subject (the token's sub claim)")
	cmd.Flags().StringVar(&opts.Name, "name", "", "display name")
	cmd.Flags().StringVar(&opts.Email, "email", "", "contact email")
	_ = cmd.MarkFlagRequired("subject")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runUsersCreate(rootOpts *RootOptions, opts *usersCreateOptions, d *deps, cmd *cobra.Command) error {
	f := newFormatter(rootOpts, cmd)
	svc, err := d.openServices(cmd.Context(), rootOpts, f)
	if err != nil {
		return err
	}
	defer svc.Close()

	u, err := svc.users.CreateMyUser(cmd.Context(), domain.SubjectID(opts.Subject), users.CreateMyUserInput{
		DisplayName: opts.Name,
		Email:       opts.Email,
	})
	if err != nil {
		return fail(f, err)
	}

	v := toUserView(u)
	return f.Success(v, fmt.Sprintf("%s  %s  %s\n", v.ID, v.Subject, v.DisplayName))
}
