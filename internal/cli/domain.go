package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/model"
)

func newDomainCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "domain",
		Short: "Manage declared domains",
	}
	cmd.AddCommand(
		newDomainAddCommand(a),
		newDomainListCommand(a),
		newDomainUpdateCommand(a),
		newDomainDeleteCommand(a),
	)
	return cmd
}

func newDomainAddCommand(a *app) *cobra.Command {
	var (
		ip   string
		port int
	)
	cmd := &cobra.Command{
		Use:   "add NAME...",
		Short: "Declare one or more domains proxied to the same destination",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.services.Domain.Add(a.ctx(cmd), args, ip, port)
			if err != nil {
				return err
			}
			return a.print(res, func(w io.Writer) {
				for _, d := range res.Added {
					fmt.Fprintf(w, "added    %s  %s\n", d.Name, d.ID)
				}
				for _, name := range res.Skipped {
					fmt.Fprintf(w, "skipped  %s  (already managed)\n", name)
				}
				fmt.Fprintf(w, "%d domains added, %d skipped\n", len(res.Added), len(res.Skipped))
			})
		},
	}
	cmd.Flags().StringVar(&ip, "ip", "", "Destination address (IP or hostname)")
	cmd.Flags().IntVar(&port, "port", model.DefaultDestinationPort, "Destination port")
	cmd.MarkFlagRequired("ip")
	return cmd
}

func newDomainListCommand(a *app) *cobra.Command {
	var resolve bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List declared domains",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := a.ctx(cmd)
			domains, err := a.services.Domain.List(ctx)
			if err != nil {
				return err
			}
			if resolve {
				a.services.Domain.ResolveIPs(ctx, domains, a.services.Resolver)
			}
			return a.print(domains, func(w io.Writer) {
				rows := make([][]string, 0, len(domains))
				for _, d := range domains {
					row := []string{d.Name, d.DestinationAddress + ":" + strconv.Itoa(d.DestinationPort), d.Status, d.CertificateStatus, d.ID}
					if resolve {
						row = append(row, orDash(d.ResolvedIP))
					}
					rows = append(rows, row)
				}
				header := []string{"NAME", "DESTINATION", "STATUS", "CERT", "ID"}
				if resolve {
					header = append(header, "RESOLVES TO")
				}
				table(w, header, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Look up the current A record of every domain")
	return cmd
}

func newDomainUpdateCommand(a *app) *cobra.Command {
	var (
		ip, tlsVersion, httpVersion, bufferSize, maxBody, customConfig string
		port, timeout                                                  int
		headers                                                        []string
		websocket, gzip, cache, blockExploits, includeWWW              bool
	)
	cmd := &cobra.Command{
		Use:   "update NAME|ID",
		Short: "Change the proxy settings of a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			id, err := a.domainID(ctx, args[0])
			if err != nil {
				return err
			}

			var patch model.DomainPatch
			flags := cmd.Flags()
			if flags.Changed("ip") {
				patch.DestinationAddress = &ip
			}
			if flags.Changed("port") {
				patch.DestinationPort = &port
			}
			if flags.Changed("tls-version") {
				patch.TLSVersion = &tlsVersion
			}
			if flags.Changed("http-version") {
				patch.HTTPVersion = &httpVersion
			}
			if flags.Changed("proxy-timeout") {
				patch.ProxyTimeout = &timeout
			}
			if flags.Changed("proxy-buffer-size") {
				patch.ProxyBufferSize = &bufferSize
			}
			if flags.Changed("client-max-body-size") {
				patch.ClientMaxBodySize = &maxBody
			}
			if flags.Changed("header") {
				patch.CustomHeaders = &headers
			}
			if flags.Changed("custom-config") {
				patch.CustomConfig = &customConfig
			}
			if flags.Changed("websocket") {
				patch.EnableWebsocket = &websocket
			}
			if flags.Changed("gzip") {
				patch.EnableGzip = &gzip
			}
			if flags.Changed("cache") {
				patch.EnableCache = &cache
			}
			if flags.Changed("block-exploits") {
				patch.BlockExploits = &blockExploits
			}
			if flags.Changed("www") {
				patch.IncludeWWW = &includeWWW
			}

			d, err := a.services.Domain.Update(ctx, id, patch)
			if err != nil {
				return err
			}
			return a.print(d, func(w io.Writer) {
				fmt.Fprintf(w, "Domain %s updated. Run `proxyctl nginx apply %s` to regenerate its config.\n", d.Name, d.Name)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&ip, "ip", "", "Destination address")
	f.IntVar(&port, "port", 0, "Destination port")
	f.StringVar(&tlsVersion, "tls-version", "", "TLS protocols: 'TLSv1.2', 'TLSv1.3' or 'TLSv1.2 TLSv1.3'")
	f.StringVar(&httpVersion, "http-version", "", "http2 or http1.1")
	f.IntVar(&timeout, "proxy-timeout", 0, "Upstream timeout in seconds")
	f.StringVar(&bufferSize, "proxy-buffer-size", "", "Proxy buffer size, e.g. 4k")
	f.StringVar(&maxBody, "client-max-body-size", "", "Maximum request body size, e.g. 10m")
	f.StringArrayVar(&headers, "header", nil, "Custom response header 'Name: value' (repeatable)")
	f.StringVar(&customConfig, "custom-config", "", "Raw directives appended to the server block")
	f.BoolVar(&websocket, "websocket", false, "Enable WebSocket upgrade headers")
	f.BoolVar(&gzip, "gzip", true, "Enable gzip compression")
	f.BoolVar(&cache, "cache", false, "Enable static asset caching")
	f.BoolVar(&blockExploits, "block-exploits", true, "Deny common exploit URI patterns")
	f.BoolVar(&includeWWW, "www", false, "Also serve the www. alias")
	return cmd
}

func newDomainDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME|ID",
		Short: "Remove a domain and its rendered config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := a.ctx(cmd)
			id, err := a.domainID(ctx, args[0])
			if err != nil {
				return err
			}
			d, err := a.services.Domain.Delete(ctx, id)
			if err != nil {
				return err
			}
			return a.print(d, func(w io.Writer) {
				fmt.Fprintf(w, "Domain %s deleted\n", d.Name)
			})
		},
	}
}

// domainID accepts either a domain name or an id.
func (a *app) domainID(ctx context.Context, ref string) (string, error) {
	d, err := a.services.Domain.GetByName(ctx, ref)
	if err == nil {
		return d.ID, nil
	}
	if !errors.Is(err, core.ErrNotFound) {
		return "", err
	}
	return ref, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
