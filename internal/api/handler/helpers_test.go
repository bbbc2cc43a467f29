package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/edvin/proxyctl/internal/api/middleware"
	"github.com/edvin/proxyctl/internal/certbot"
	"github.com/edvin/proxyctl/internal/certbot/certbottest"
	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/command/commandtest"
	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/db"
	"github.com/edvin/proxyctl/internal/dnscheck"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/nginx"
)

const serverIP = "203.0.113.10"

// newRequest creates a new HTTP request with a JSON body.
func newRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

// newRequestRaw creates a new HTTP request with a raw string body.
func newRequestRaw(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// decodeBody parses the JSON response body into a map.
func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// withIdentity injects an authenticated identity into the request context.
func withIdentity(r *http.Request, userID, role string) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), &model.Identity{
		UserID:   userID,
		Username: userID,
		Role:     role,
	}))
}

type dnsTable struct {
	mu      sync.Mutex
	records map[string]string
}

func (d *dnsTable) set(host, ip string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records[host] = ip
}

func (d *dnsTable) LookupA(_ context.Context, host string) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ip, ok := d.records[host]
	if !ok {
		return nil, fmt.Errorf("lookup %s: no such host", host)
	}
	return []string{ip}, nil
}

// env wires real services to SQLite, temp directories and a runner that
// behaves like a cooperative certbot and nginx.
type env struct {
	svc       *core.Services
	dns       *dnsTable
	certsDir  string
	configDir string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	conn, err := db.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn, "sqlite3"))

	e := &env{
		dns:       &dnsTable{records: map[string]string{}},
		certsDir:  t.TempDir(),
		configDir: t.TempDir(),
	}
	runner := &commandtest.Runner{Handler: func(cmd command.Command) (*command.Result, error) {
		switch cmd.Name {
		case "certbot":
			name := lineage(cmd)
			switch cmd.Args[0] {
			case "certonly":
				certbottest.WriteMaterial(t, e.certsDir, name)
			case "revoke", "delete":
				certbottest.RemoveMaterial(t, e.certsDir, name)
			}
			return commandtest.Output(0, "Successfully received certificate."), nil
		case "nginx":
			if cmd.Args[0] == "-V" {
				return commandtest.Output(0, "nginx version: nginx/1.25.3"), nil
			}
			return commandtest.Output(0, "nginx: configuration file test is successful"), nil
		case "openssl":
			return commandtest.Output(0, "Certificate:"), nil
		}
		return commandtest.Output(127), nil
	}}

	renderer, err := nginx.NewRenderer("")
	require.NoError(t, err)
	acme := certbot.NewClient(runner, certbot.Options{
		Bin:      "certbot",
		CertsDir: e.certsDir,
		Webroot:  "/var/www/html",
		Timeout:  time.Minute,
	})
	proxy := nginx.NewManager(zerolog.Nop(), runner, nginx.ManagerOptions{
		ConfigDir: e.configDir,
		Command:   []string{"nginx"},
		Timeout:   time.Second,
	})
	verifier := dnscheck.NewVerifier(dnscheck.StaticIP(serverIP), e.dns)

	e.svc = core.NewServices(conn, core.Deps{
		Renderer:    renderer,
		ACME:        acme,
		Proxy:       proxy,
		Gate:        verifier,
		Resolver:    verifier,
		ACMEWebroot: "/var/www/html",
		SessionTTL:  time.Hour,
	})
	return e
}

func lineage(cmd command.Command) string {
	for i := 0; i+1 < len(cmd.Args); i++ {
		switch cmd.Args[i] {
		case "--cert-name":
			return cmd.Args[i+1]
		case "--cert-path":
			return filepath.Base(filepath.Dir(cmd.Args[i+1]))
		}
	}
	return ""
}

// addDomain declares name with DNS pointing at this server.
func (e *env) addDomain(t *testing.T, name string) *model.Domain {
	t.Helper()
	res, err := e.svc.Domain.Add(context.Background(), []string{name}, "10.0.0.5", 8080)
	require.NoError(t, err)
	require.Len(t, res.Added, 1)
	e.dns.set(name, serverIP)
	return &res.Added[0]
}
