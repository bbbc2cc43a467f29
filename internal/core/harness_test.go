package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/proxyctl/internal/certbot"
	"github.com/edvin/proxyctl/internal/certbot/certbottest"
	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/command/commandtest"
	"github.com/edvin/proxyctl/internal/db"
	"github.com/edvin/proxyctl/internal/dnscheck"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/nginx"
)

const serverIP = "203.0.113.10"

type fakeResolver struct {
	mu      sync.Mutex
	records map[string][]string
}

func (f *fakeResolver) set(host string, ips ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[host] = ips
}

func (f *fakeResolver) LookupA(_ context.Context, host string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ips, ok := f.records[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return ips, nil
}

// harness runs the services against a real SQLite store, real temp
// directories and a scripted runner standing in for certbot, nginx and
// openssl.
type harness struct {
	t         *testing.T
	svc       *Services
	db        DB
	runner    *commandtest.Runner
	dns       *fakeResolver
	certsDir  string
	configDir string
	renderer  *nginx.Renderer
	acme      *certbot.Client
	manager   *nginx.Manager

	mu sync.Mutex
	// certbot behaviour
	certbotExit   int
	certbotWrites bool
	certbotOutput []string
	certbotErr    error
	// nginx behaviour
	nginxTestExit   int
	nginxReloadExit int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn, "sqlite3"))

	h := &harness{
		t:             t,
		db:            conn,
		dns:           &fakeResolver{records: map[string][]string{}},
		certsDir:      t.TempDir(),
		configDir:     t.TempDir(),
		certbotWrites: true,
	}
	h.runner = &commandtest.Runner{Handler: h.handle}

	renderer, err := nginx.NewRenderer("")
	require.NoError(t, err)
	acme := certbot.NewClient(h.runner, certbot.Options{
		Bin:      "certbot",
		CertsDir: h.certsDir,
		Webroot:  "/var/www/html",
		Timeout:  time.Minute,
	})
	proxy := nginx.NewManager(zerolog.Nop(), h.runner, nginx.ManagerOptions{
		ConfigDir: h.configDir,
		Command:   []string{"nginx"},
		Timeout:   time.Second,
	})
	verifier := dnscheck.NewVerifier(dnscheck.StaticIP(serverIP), h.dns)
	h.renderer, h.acme, h.manager = renderer, acme, proxy

	h.svc = NewServices(conn, Deps{
		Renderer:    renderer,
		ACME:        acme,
		Proxy:       proxy,
		Gate:        verifier,
		Resolver:    verifier,
		ACMEWebroot: "/var/www/html",
		SessionTTL:  time.Hour,
	})
	return h
}

func (h *harness) handle(cmd command.Command) (*command.Result, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch cmd.Name {
	case "certbot":
		name := certName(cmd)
		switch cmd.Args[0] {
		case "certonly":
			if h.certbotWrites {
				certbottest.WriteMaterial(h.t, h.certsDir, name)
			}
		case "revoke", "delete":
			if h.certbotExit == 0 && h.certbotErr == nil {
				certbottest.RemoveMaterial(h.t, h.certsDir, name)
			}
		}
		if h.certbotErr != nil {
			return nil, h.certbotErr
		}
		return commandtest.Output(h.certbotExit, h.certbotOutput...), nil
	case "nginx":
		switch cmd.Args[0] {
		case "-t":
			if h.nginxTestExit != 0 {
				return commandtest.Output(h.nginxTestExit, "nginx: [emerg] unexpected \"}\"", "nginx: configuration file test failed"), nil
			}
			return commandtest.Output(0, "nginx: configuration file /etc/nginx/nginx.conf test is successful"), nil
		case "-s":
			return commandtest.Output(h.nginxReloadExit), nil
		case "-V":
			return commandtest.Output(0, "nginx version: nginx/1.25.3", "built with OpenSSL 3.0.13"), nil
		}
	case "openssl":
		return commandtest.Output(0, "Certificate:", "    Data:", "        Version: 3 (0x2)"), nil
	}
	return commandtest.Output(127, "unexpected command "+cmd.String()), nil
}

// certName finds the lineage a certbot command targets.
func certName(cmd command.Command) string {
	for i, a := range cmd.Args {
		if i+1 >= len(cmd.Args) {
			break
		}
		switch a {
		case "--cert-name":
			return cmd.Args[i+1]
		case "--cert-path":
			return filepath.Base(filepath.Dir(cmd.Args[i+1]))
		}
	}
	return ""
}

func (h *harness) script(fn func(h *harness)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(h)
}

// addDomain creates one domain whose DNS points at this server.
func (h *harness) addDomain(name, address string, port int) *model.Domain {
	h.t.Helper()
	res, err := h.svc.Domain.Add(context.Background(), []string{name}, address, port)
	require.NoError(h.t, err)
	require.Len(h.t, res.Added, 1)
	h.dns.set(name, serverIP)
	return &res.Added[0]
}

func (h *harness) reload(id string) *model.Domain {
	h.t.Helper()
	d, err := h.svc.Domain.Get(context.Background(), id)
	require.NoError(h.t, err)
	return d
}

func (h *harness) config(name string) string {
	h.t.Helper()
	b, err := os.ReadFile(filepath.Join(h.configDir, name+".conf"))
	require.NoError(h.t, err)
	return string(b)
}

func (h *harness) hasConfig(name string) bool {
	_, err := os.Stat(filepath.Join(h.configDir, name+".conf"))
	return err == nil
}
