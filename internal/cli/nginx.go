package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edvin/proxyctl/internal/core"
)

func newNginxCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nginx",
		Short: "Render, apply, validate and reload nginx configs",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "render NAME|ID",
			Short: "Print the config a domain would get, without writing it",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := a.ctx(cmd)
				id, err := a.domainID(ctx, args[0])
				if err != nil {
					return err
				}
				doc, err := a.services.Proxy.Render(ctx, id)
				if err != nil {
					return err
				}
				return a.print(map[string]string{"config": doc}, func(w io.Writer) {
					fmt.Fprint(w, doc)
				})
			},
		},
		&cobra.Command{
			Use:   "apply NAME|ID",
			Short: "Render and write the config of a domain",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx := a.ctx(cmd)
				id, err := a.domainID(ctx, args[0])
				if err != nil {
					return err
				}
				res, err := a.services.Proxy.Regenerate(ctx, id, "")
				if err != nil {
					return err
				}
				return a.printResult(res)
			},
		},
		&cobra.Command{
			Use:   "test",
			Short: "Syntax-check the nginx configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.printResult(a.services.Proxy.Test(a.ctx(cmd)))
			},
		},
		newNginxReloadCommand(a),
		&cobra.Command{
			Use:   "version",
			Short: "Print the nginx build information",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				version, err := a.services.Proxy.Version(a.ctx(cmd))
				if err != nil {
					return err
				}
				return a.print(map[string]string{"version": version}, func(w io.Writer) {
					fmt.Fprintln(w, version)
				})
			},
		},
	)
	return cmd
}

func newNginxReloadCommand(a *app) *cobra.Command {
	var skipTest bool
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Validate the configuration and reload nginx",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var res *core.OperationResult
			if skipTest {
				res = a.services.Proxy.Reload(a.ctx(cmd))
			} else {
				res = a.services.Proxy.TestAndReload(a.ctx(cmd))
			}
			return a.printResult(res)
		},
	}
	cmd.Flags().BoolVar(&skipTest, "skip-test", false, "Reload without running nginx -t first")
	return cmd
}

func newReconcileCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Regenerate every config from observed certificate material and drop orphans",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := a.services.Proxy.Reconcile(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.printResult(res)
		},
	}
}
