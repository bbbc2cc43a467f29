package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/edvin/proxyctl/internal/core"
)

func newCertCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Issue, revoke and inspect certificates",
	}

	operation := func(use, short string, run func(*core.CertificateService, *cobra.Command, string) (*core.OperationResult, error)) *cobra.Command {
		return &cobra.Command{
			Use:   use + " NAME|ID",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := a.domainID(a.ctx(cmd), args[0])
				if err != nil {
					return err
				}
				res, err := run(a.services.Certificate, cmd, id)
				if err != nil {
					return err
				}
				return a.printResult(res)
			},
		}
	}

	cmd.AddCommand(
		operation("issue", "Check DNS, request a certificate and switch the domain to HTTPS",
			func(s *core.CertificateService, cmd *cobra.Command, id string) (*core.OperationResult, error) {
				return s.Issue(a.ctx(cmd), id)
			}),
		operation("revoke", "Revoke the certificate and fall back to HTTP",
			func(s *core.CertificateService, cmd *cobra.Command, id string) (*core.OperationResult, error) {
				return s.Revoke(a.ctx(cmd), id)
			}),
		operation("delete", "Delete the certificate material and fall back to HTTP",
			func(s *core.CertificateService, cmd *cobra.Command, id string) (*core.OperationResult, error) {
				return s.Delete(a.ctx(cmd), id)
			}),
		newCertCheckCommand(a),
		newCertViewCommand(a),
		newCertStatusCommand(a),
	)
	return cmd
}

func newCertCheckCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check NAME",
		Short: "Report whether certificate material exists and when it expires",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.services.Certificate.Check(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) {
				if !res.Exists {
					fmt.Fprintln(w, "No certificate material")
					if res.Stale {
						fmt.Fprintln(w, "WARNING: stored status is valid; run `proxyctl reconcile`")
					}
					return
				}
				fmt.Fprintf(w, "Full chain:  %s\n", res.FullChainPath)
				fmt.Fprintf(w, "Private key: %s\n", res.PrivKeyPath)
				if d := res.Details; d != nil {
					fmt.Fprintf(w, "Subject:     %s\n", d.Subject)
					fmt.Fprintf(w, "Issuer:      %s\n", d.Issuer)
					fmt.Fprintf(w, "Expires:     %s (%d days)\n", d.NotAfter.Format("2006-01-02"), d.DaysLeft)
				}
			})
		},
	}
}

func newCertViewCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "view NAME",
		Short: "Print the full X.509 text of a certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := a.services.Certificate.View(a.ctx(cmd), args[0])
			if err != nil {
				return err
			}
			return a.print(map[string]string{"certificate": text}, func(w io.Writer) {
				fmt.Fprintln(w, text)
			})
		},
	}
}

func newCertStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "List the certificate status of every domain",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			entries, err := a.services.Certificate.Statuses(a.ctx(cmd))
			if err != nil {
				return err
			}
			return a.print(entries, func(w io.Writer) {
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					checked := "-"
					if e.LastCheckedAt != nil {
						checked = e.LastCheckedAt.Format("2006-01-02 15:04")
					}
					rows = append(rows, []string{e.Name, e.CertificateStatus, checked})
				}
				table(w, []string{"NAME", "CERT", "LAST CHECK"}, rows)
			})
		},
	}
}
