package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edvin/proxyctl/internal/core"
	"github.com/edvin/proxyctl/internal/model"
)

type fakeSessions map[string]*model.Identity

func (f fakeSessions) Validate(_ context.Context, token string) (*model.Identity, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return nil, fmt.Errorf("%w: invalid session", core.ErrUnauthorized)
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestAuth_MissingToken(t *testing.T) {
	handler := Auth(fakeSessions{})(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/domains", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing session token", body["error"])
	assert.Equal(t, false, body["success"])
}

func TestAuth_InvalidToken(t *testing.T) {
	handler := Auth(fakeSessions{})(http.HandlerFunc(okHandler))

	req := httptest.NewRequest("GET", "/domains", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuth_BearerAndCookie(t *testing.T) {
	admin := &model.Identity{UserID: "u1", Username: "admin", Role: model.RoleAdmin}
	var seen *model.Identity
	handler := Auth(fakeSessions{"tok": admin})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetIdentity(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer tok")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin, seen)

	seen = nil
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookie, Value: "tok"})
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, admin, seen)
}

func TestToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		cookie string
		want   string
	}{
		{"bearer", "Bearer abc", "", "abc"},
		{"empty", "", "", ""},
		{"no prefix", "abc", "", ""},
		{"basic ignored", "Basic dXNlcjpwYXNz", "", ""},
		{"cookie", "", "xyz", "xyz"},
		{"header wins", "Bearer abc", "xyz", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			assert.Equal(t, tt.want, Token(req))
		})
	}
}

func TestRequireRole(t *testing.T) {
	handler := RequireRole(model.RoleAdmin)(http.HandlerFunc(okHandler))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &model.Identity{Role: model.RoleOperator}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithIdentity(req.Context(), &model.Identity{Role: model.RoleAdmin}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	var ctxLogger *zerolog.Logger
	handler := chimw.RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = zerolog.Ctx(r.Context())
		w.WriteHeader(http.StatusTeapot)
	})))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/certificates?action=generate", nil))

	require.NotNil(t, ctxLogger)
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["message"])
	assert.Equal(t, "POST", line["method"])
	assert.Equal(t, "/certificates", line["path"])
	assert.Equal(t, "generate", line["action"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.NotEmpty(t, line["request_id"])
	assert.Equal(t, "warn", line["level"])
}

func TestMetrics_PassesThrough(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/domains?action=bogus", nil))
	assert.Equal(t, http.StatusCreated, rec.Code)
}
