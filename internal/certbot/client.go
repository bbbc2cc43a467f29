package certbot

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/edvin/proxyctl/internal/command"
)

// ErrNoMaterial is returned when a domain has no live certificate bundle.
var ErrNoMaterial = errors.New("no certificate material")

type Options struct {
	Bin        string
	OpenSSLBin string
	// CertsDir doubles as certbot's config, work and logs directory.
	CertsDir string
	Webroot  string
	Staging  bool
	Timeout  time.Duration
}

// Client drives the certbot CLI and observes the material it leaves on disk.
// It never writes certificate files itself.
type Client struct {
	runner command.Runner
	opts   Options
}

func NewClient(runner command.Runner, opts Options) *Client {
	if opts.OpenSSLBin == "" {
		opts.OpenSSLBin = "openssl"
	}
	return &Client{runner: runner, opts: opts}
}

// Paths locates one domain's live certificate files.
type Paths struct {
	Dir       string
	FullChain string
	PrivKey   string
	Cert      string
}

func (c *Client) Paths(name string) Paths {
	dir := filepath.Join(c.opts.CertsDir, "live", name)
	return Paths{
		Dir:       dir,
		FullChain: filepath.Join(dir, "fullchain.pem"),
		PrivKey:   filepath.Join(dir, "privkey.pem"),
		Cert:      filepath.Join(dir, "cert.pem"),
	}
}

// HasMaterial reports whether both fullchain.pem and privkey.pem exist and
// resolve. certbot keeps them as symlinks into archive/; a dangling link
// counts as absent.
func (c *Client) HasMaterial(name string) bool {
	p := c.Paths(name)
	return exists(p.FullChain) && exists(p.PrivKey)
}

// HasLineage reports whether certbot still tracks a lineage for name, even
// one missing some of its files.
func (c *Client) HasLineage(name string) bool {
	return exists(c.Paths(name).Dir)
}

// Issue requests (or keeps, if not due for renewal) a certificate via the
// webroot HTTP-01 challenge.
func (c *Client) Issue(ctx context.Context, name string) (*command.Result, error) {
	args := []string{
		"certonly", "-n", "--agree-tos", "--no-redirect",
		"--webroot", "-w", c.opts.Webroot,
		"--register-unsafely-without-email",
		"--cert-name", name,
		"-d", name,
	}
	return c.run(ctx, append(args, c.stateArgs()...))
}

// Revoke revokes the live certificate and removes its lineage.
func (c *Client) Revoke(ctx context.Context, name string) (*command.Result, error) {
	args := []string{
		"revoke", "--non-interactive",
		"--cert-path", c.Paths(name).Cert,
		"--delete-after-revoke",
	}
	return c.run(ctx, append(args, c.stateArgs()...))
}

// Delete removes the certificate lineage without contacting the CA.
func (c *Client) Delete(ctx context.Context, name string) (*command.Result, error) {
	args := []string{"delete", "--non-interactive", "--cert-name", name}
	return c.run(ctx, append(args, c.stateArgs()...))
}

// Command returns the certbot invocation for args, for display.
func (c *Client) Command(args ...string) command.Command {
	return command.Command{Name: c.opts.Bin, Args: args, Timeout: c.opts.Timeout}
}

func (c *Client) run(ctx context.Context, args []string) (*command.Result, error) {
	return c.runner.Run(ctx, c.Command(args...))
}

func (c *Client) stateArgs() []string {
	args := []string{
		"--config-dir", c.opts.CertsDir,
		"--work-dir", c.opts.CertsDir,
		"--logs-dir", c.opts.CertsDir,
	}
	if c.opts.Staging {
		args = append(args, "--staging")
	}
	return args
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
