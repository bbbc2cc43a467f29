package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCertificateGet_InvalidAction(t *testing.T) {
	h := NewCertificate(nil, nil)
	rec := httptest.NewRecorder()

	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=bogus", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid action", decodeBody(t, rec)["error"])
}

func TestCertificatePost_InvalidAction(t *testing.T) {
	h := NewCertificate(nil, nil)
	rec := httptest.NewRecorder()

	h.Post(rec, newRequest(http.MethodPost, "/certificates", map[string]any{"domain_id": "x"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid action", decodeBody(t, rec)["error"])
}

func TestCertificatePost_MissingDomainID(t *testing.T) {
	h := NewCertificate(nil, nil)
	rec := httptest.NewRecorder()

	h.Post(rec, newRequest(http.MethodPost, "/certificates?action=generate", map[string]any{}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "validation error")
}

func TestCertificateCheck_MissingDomainID(t *testing.T) {
	h := NewCertificate(nil, nil)
	rec := httptest.NewRecorder()

	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=check", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCertificateView_MissingName(t *testing.T) {
	h := NewCertificate(nil, nil)
	rec := httptest.NewRecorder()

	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=view", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCertificateGenerate_DNSMismatchIsOperationFailure(t *testing.T) {
	e := newEnv(t)
	d := e.addDomain(t, "a.example.com")
	e.dns.set("a.example.com", "198.51.100.1")
	h := NewCertificate(e.svc.Certificate, e.svc.Domain)
	rec := httptest.NewRecorder()

	h.Post(rec, newRequest(http.MethodPost, "/certificates?action=generate", map[string]any{"domain_id": d.ID}))

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "policy_gate_failed", body["kind"])
	assert.NotEmpty(t, body["logs"])
}

func TestCertificateLifecycle(t *testing.T) {
	e := newEnv(t)
	d := e.addDomain(t, "a.example.com")
	h := NewCertificate(e.svc.Certificate, e.svc.Domain)

	rec := httptest.NewRecorder()
	h.Post(rec, newRequest(http.MethodPost, "/certificates?action=generate", map[string]any{"domain_id": d.ID}))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	require.Equal(t, true, body["success"], body)
	assert.Equal(t, "Certificate generated successfully. Nginx config updated to HTTPS.", body["message"])

	rec = httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=check&domain_id="+d.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	cert := decodeBody(t, rec)["certificate"].(map[string]any)
	assert.Equal(t, true, cert["exists"])
	assert.Contains(t, cert["fullchain_path"], "live/a.example.com/fullchain.pem")

	rec = httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=view&domain=a.example.com", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["certificate"], "Certificate:")

	rec = httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["data"], 1)

	rec = httptest.NewRecorder()
	h.Post(rec, newRequest(http.MethodPost, "/certificates?action=delete", map[string]any{"domain_id": d.ID}))
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Certificate deleted successfully. Config updated to HTTP-only.", body["message"])

	rec = httptest.NewRecorder()
	h.Get(rec, newRequest(http.MethodGet, "/certificates?action=view&domain=a.example.com", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCertificateGenerate_UnknownDomain(t *testing.T) {
	e := newEnv(t)
	h := NewCertificate(e.svc.Certificate, e.svc.Domain)
	rec := httptest.NewRecorder()

	h.Post(rec, newRequest(http.MethodPost, "/certificates?action=generate", map[string]any{"domain_id": "missing"}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
