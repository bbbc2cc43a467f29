package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/model"
)

func newUserCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage API users",
	}
	cmd.AddCommand(newUserCreateCommand(a))
	return cmd
}

func newUserCreateCommand(a *app) *cobra.Command {
	var in core.NewUser
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Password == "" {
				in.Password = os.Getenv("PROXYCTL_PASSWORD")
			}
			u, err := a.services.User.Create(a.ctx(cmd), in)
			if err != nil {
				return err
			}
			return a.print(u, func(w io.Writer) {
				fmt.Fprintf(w, "User %s created (role %s, id %s)\n", u.Username, u.Role, u.ID)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Username, "username", "", "Login name")
	f.StringVar(&in.Email, "email", "", "Email address")
	f.StringVar(&in.Password, "password", "", "Password (default $PROXYCTL_PASSWORD)")
	f.StringVar(&in.Role, "role", model.RoleAdmin, "admin or operator")
	cmd.MarkFlagRequired("username")
	return cmd
}

func newMigrateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		// Migrations run during setup; this only reports.
		RunE: func(*cobra.Command, []string) error {
			return a.print(map[string]string{"status": "ok"}, func(w io.Writer) {
				fmt.Fprintf(w, "Database %s is up to date\n", a.cfg.DatabaseDriver)
			})
		},
	}
}
