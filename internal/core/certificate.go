package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/edvin/proxyctl/internal/certbot"
	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/dnscheck"
	"github.com/edvin/proxyctl/internal/metrics"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/platform"
	"github.com/edvin/proxyctl/internal/transcript"
)

// CertificateAuthority drives the ACME client and observes its material.
type CertificateAuthority interface {
	MaterialObserver
	HasLineage(name string) bool
	Issue(ctx context.Context, name string) (*command.Result, error)
	Revoke(ctx context.Context, name string) (*command.Result, error)
	Delete(ctx context.Context, name string) (*command.Result, error)
	NormalizePermissions(name string) error
	Inspect(ctx context.Context, name string) (*certbot.Info, error)
	Text(ctx context.Context, name string) (string, error)
}

// PolicyGate decides whether a name may be issued for from this host.
type PolicyGate interface {
	Verify(ctx context.Context, name string) dnscheck.Result
}

// CertificateService runs the certificate lifecycle of a domain: DNS gate,
// ACME issuance, permission fix-up and the HTTPS config switch, plus revoke
// and delete with the HTTP-only fallback.
type CertificateService struct {
	domains *DomainService
	proxy   *ProxyConfigService
	acme    CertificateAuthority
	gate    PolicyGate
	locks   *platform.KeyedMutex
}

func NewCertificateService(domains *DomainService, proxy *ProxyConfigService, acme CertificateAuthority,
	gate PolicyGate, locks *platform.KeyedMutex) *CertificateService {
	return &CertificateService{
		domains: domains,
		proxy:   proxy,
		acme:    acme,
		gate:    gate,
		locks:   locks,
	}
}

// Issue obtains a certificate for the domain and switches its config to
// HTTPS. Success is decided by material on disk, not by the ACME client's
// exit status or output. Once started it runs to completion even if ctx is
// cancelled; subprocess timeouts bound it instead.
func (s *CertificateService) Issue(ctx context.Context, id string) (*OperationResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock("domain", id)
	defer unlock()

	d, err := s.domains.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tr := newTranscript(ctx, "issue", d.Name)
	tr.Add("Starting certificate generation for: %s", d.Name)

	if err := s.domains.setCertificateStatus(ctx, d, model.CertPending); err != nil {
		return nil, err
	}

	check := s.gate.Verify(ctx, d.Name)
	metrics.ObserveDNSCheck(check.Matches)
	tr.Add("Server IP: %s", orUnknown(check.ExpectedIP))
	tr.Add("Resolved IP: %s", orUnknown(check.ObservedIP))
	if !check.Matches {
		if check.Reason != "" {
			tr.Add("DNS check: %s", check.Reason)
		}
		tr.Add("ERROR: Domain not pointed to server IP. Expected: %s, Got: %s",
			orUnknown(check.ExpectedIP), orUnknown(check.ObservedIP))
		gateErr := fmt.Errorf("%w: %s resolves to %s, expected %s",
			ErrPolicyGateFailed, d.Name, orUnknown(check.ObservedIP), orUnknown(check.ExpectedIP))
		return s.finish(ctx, d, tr, "issue", model.StatusError, model.CertDNSMismatch, gateErr)
	}

	tr.Add("Running certbot...")
	res, runErr := s.acme.Issue(ctx, d.Name)
	if res != nil {
		tr.AddOutput(res.Output)
		tr.Add("Certbot exit code: %d", res.ExitCode)
	}
	if runErr != nil {
		tr.Add("ERROR: %v", runErr)
	}

	if !s.acme.HasMaterial(d.Name) {
		diagnosis := certbot.Classify(outputOf(res))
		tr.Add("ERROR: %s", diagnosis.Message)
		var issueErr error
		if runErr != nil {
			issueErr = fmt.Errorf("%w: %v", ErrSubprocessFailure, runErr)
		} else {
			issueErr = fmt.Errorf("%w: no certificate files for %s (%s)", ErrMaterialMissing, d.Name, diagnosis.Kind)
		}
		return s.finish(ctx, d, tr, "issue", model.StatusError, model.CertFailed, issueErr)
	}

	tr.Add("SUCCESS: Certificate files created")
	tr.Add("Fixing certificate permissions...")
	if err := s.acme.NormalizePermissions(d.Name); err != nil {
		tr.Add("WARNING: could not fix permissions: %v", err)
	}
	if err := s.domains.recordOutcome(ctx, d, model.StatusActive, model.CertValid, tr.String()); err != nil {
		return nil, err
	}

	tr.Add("Auto-updating Nginx config to enable HTTPS...")
	path, applyErr := s.proxy.apply(ctx, d, tr)
	out, err := s.finish(ctx, d, tr, "issue", model.StatusActive, model.CertValid, applyErr)
	if err != nil {
		return nil, err
	}
	out.ConfigFile = path
	if applyErr == nil {
		out.Message = "Certificate generated successfully. Nginx config updated to HTTPS."
	}
	return out, nil
}

// Revoke revokes the certificate and deletes its material. It succeeds when
// the ACME client exits 0 or when no material is left afterwards.
func (s *CertificateService) Revoke(ctx context.Context, id string) (*OperationResult, error) {
	return s.retire(ctx, id, retirement{
		operation: "revoke",
		start:     "Revoking certificate for: %s",
		run:       s.acme.Revoke,
		status:    model.CertRevoked,
		message:   "Certificate revoked successfully. Config updated to HTTP-only.",
	})
}

// Delete removes the certificate material without revoking it. Deleting a
// domain that has no material succeeds.
func (s *CertificateService) Delete(ctx context.Context, id string) (*OperationResult, error) {
	return s.retire(ctx, id, retirement{
		operation: "delete",
		start:     "Deleting certificate for: %s",
		run:       s.acme.Delete,
		status:    model.CertNone,
		message:   "Certificate deleted successfully. Config updated to HTTP-only.",
	})
}

type retirement struct {
	operation string
	start     string
	run       func(ctx context.Context, name string) (*command.Result, error)
	status    string
	message   string
}

func (s *CertificateService) retire(ctx context.Context, id string, r retirement) (*OperationResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock("domain", id)
	defer unlock()

	d, err := s.domains.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tr := newTranscript(ctx, r.operation, d.Name)
	tr.Add(r.start, d.Name)

	var runErr error
	exitOK := false
	if s.acme.HasLineage(d.Name) {
		if !s.acme.HasMaterial(d.Name) {
			tr.Add("Certificate files incomplete, asking certbot to %s the lineage", r.operation)
		}
		res, err := r.run(ctx, d.Name)
		runErr = err
		if res != nil {
			tr.AddOutput(res.Output)
			tr.Add("Exit code: %d", res.ExitCode)
			exitOK = err == nil && res.Success()
		}
		if err != nil {
			tr.Add("ERROR: %v", err)
		}
	} else {
		tr.Add("Certificate files not found, updating status only")
	}

	if !exitOK && s.acme.HasMaterial(d.Name) {
		var opErr error
		if runErr != nil {
			opErr = fmt.Errorf("%w: %v", ErrSubprocessFailure, runErr)
		} else {
			opErr = fmt.Errorf("%w: certbot %s failed for %s", ErrSubprocessFailedSemantically, r.operation, d.Name)
		}
		tr.Add("ERROR: Certificate %s failed", r.operation)
		return s.finish(ctx, d, tr, r.operation, d.Status, d.CertificateStatus, opErr)
	}

	if err := s.domains.recordOutcome(ctx, d, model.StatusActive, r.status, tr.String()); err != nil {
		return nil, err
	}
	tr.Add("Updating Nginx config to HTTP-only...")
	path, applyErr := s.proxy.apply(ctx, d, tr)
	res, err := s.finish(ctx, d, tr, r.operation, model.StatusActive, r.status, applyErr)
	if err != nil {
		return nil, err
	}
	res.ConfigFile = path
	if applyErr == nil {
		res.Message = r.message
	}
	return res, nil
}

// finish persists the transcript with the final statuses and builds the
// result. opErr nil means success.
func (s *CertificateService) finish(ctx context.Context, d *model.Domain, tr *transcript.Transcript,
	operation, status, certStatus string, opErr error) (*OperationResult, error) {
	if opErr != nil {
		tr.Add("Operation failed: %v", opErr)
	}
	if err := s.domains.recordOutcome(ctx, d, status, certStatus, tr.String()); err != nil {
		return nil, err
	}
	metrics.ObserveOperation(operation, opErr == nil)

	var res *OperationResult
	if opErr != nil {
		res = failed(tr, opErr)
	} else {
		res = succeeded(tr, "")
	}
	res.CertificateStatus = certStatus
	return res, nil
}

// CheckResult is the read-only view of a domain's certificate material.
type CheckResult struct {
	Exists        bool          `json:"exists"`
	FullChainPath string        `json:"fullchain_path,omitempty"`
	PrivKeyPath   string        `json:"privkey_path,omitempty"`
	Details       *certbot.Info `json:"details,omitempty"`
	// Stale is set when the store says valid but no material exists.
	Stale bool `json:"stale,omitempty"`
}

// Check observes the material of the named domain without changing state.
// Unknown names are reported as absent material.
func (s *CertificateService) Check(ctx context.Context, name string) (*CheckResult, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}

	info, err := s.acme.Inspect(ctx, name)
	if errors.Is(err, certbot.ErrNoMaterial) {
		res := &CheckResult{Exists: false}
		if d, gerr := s.domains.GetByName(ctx, name); gerr == nil && d.CertificateStatus == model.CertValid {
			res.Stale = true
		}
		return res, nil
	}
	if err != nil {
		return nil, fmt.Errorf("inspect certificate of %s: %w", name, err)
	}
	p := s.acme.Paths(name)
	return &CheckResult{
		Exists:        true,
		FullChainPath: p.FullChain,
		PrivKeyPath:   p.PrivKey,
		Details:       info,
	}, nil
}

// View returns the full text dump of the named domain's certificate.
func (s *CertificateService) View(ctx context.Context, name string) (string, error) {
	name = NormalizeName(name)
	if name == "" {
		return "", fmt.Errorf("%w: domain is required", ErrInvalidInput)
	}
	text, err := s.acme.Text(ctx, name)
	if errors.Is(err, certbot.ErrNoMaterial) {
		return "", fmt.Errorf("%w: certificate not found", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubprocessFailure, err)
	}
	return text, nil
}

// Statuses lists the certificate status of every domain.
func (s *CertificateService) Statuses(ctx context.Context) ([]model.CertificateStatusEntry, error) {
	return s.domains.CertificateStatuses(ctx)
}

func outputOf(res *command.Result) []string {
	if res == nil {
		return nil
	}
	return res.Output
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
