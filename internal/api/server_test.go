package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/proxyctl/internal/certbot"
	"github.com/edvin/proxyctl/internal/command/commandtest"
	"github.com/edvin/proxyctl/internal/config"
	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/db"
	"github.com/edvin/proxyctl/internal/dnscheck"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/nginx"
)

type testServer struct {
	*Server
	services *core.Services
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	conn, err := db.Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn, "sqlite3"))

	runner := &commandtest.Runner{}
	renderer, err := nginx.NewRenderer("")
	require.NoError(t, err)
	services := core.NewServices(conn, core.Deps{
		Renderer: renderer,
		ACME: certbot.NewClient(runner, certbot.Options{
			Bin:      "certbot",
			CertsDir: t.TempDir(),
			Timeout:  time.Minute,
		}),
		Proxy: nginx.NewManager(zerolog.Nop(), runner, nginx.ManagerOptions{
			ConfigDir: t.TempDir(),
			Command:   []string{"nginx"},
			Timeout:   time.Second,
		}),
		Gate:       dnscheck.NewVerifier(dnscheck.StaticIP("203.0.113.10"), dnscheck.NewNetResolver(nil)),
		SessionTTL: time.Hour,
	})

	return &testServer{
		Server:   NewServer(zerolog.Nop(), conn, services, &config.Config{}),
		services: services,
	}
}

// login creates a user with role and returns a session token for it.
func (s *testServer) login(t *testing.T, username, role string) string {
	t.Helper()
	ctx := context.Background()
	_, err := s.services.User.Create(ctx, core.NewUser{Username: username, Password: "correct horse", Role: role})
	require.NoError(t, err)
	token, _, err := s.services.Auth.Login(ctx, username, "correct horse")
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, target, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	r := httptest.NewRequest(method, target, &buf)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, r)
	return rec
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(http.MethodGet, "/readyz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"db":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.do(http.MethodGet, "/healthz", "", nil)

	rec := s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)
	for _, target := range []string{"/domains", "/certificates?action=status", "/nginx?action=status", "/users", "/auth?action=check"} {
		rec := s.do(http.MethodGet, target, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, target)
	}
}

func TestLoginThenListDomains(t *testing.T) {
	s := newTestServer(t)
	_, err := s.services.User.Create(context.Background(), core.NewUser{Username: "admin", Password: "correct horse"})
	require.NoError(t, err)

	rec := s.do(http.MethodPost, "/auth?action=login", "", map[string]string{"username": "admin", "password": "correct horse"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &login))

	rec = s.do(http.MethodGet, "/domains", login.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/auth?action=check", login.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t)
	token := s.login(t, "admin", model.RoleAdmin)

	rec := s.do(http.MethodPatch, "/domains", token, nil)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.JSONEq(t, `{"success":false,"error":"Method not allowed"}`, rec.Body.String())
}

func TestUsersRequireAdmin(t *testing.T) {
	s := newTestServer(t)
	operator := s.login(t, "ops", model.RoleOperator)
	admin := s.login(t, "admin", model.RoleAdmin)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/users", operator, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/users", admin, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/domains", operator, nil).Code)
}
