package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edvin/proxyctl/internal/certbot"
	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/metrics"
	"github.com/edvin/proxyctl/internal/model"
	"github.com/edvin/proxyctl/internal/nginx"
	"github.com/edvin/proxyctl/internal/platform"
	"github.com/edvin/proxyctl/internal/transcript"
)

// ProxyServer is the nginx side: the config directory and the running server.
type ProxyServer interface {
	ConfigPath(name string) string
	WriteConfig(name, content string) (string, error)
	CleanOrphanedConfigs(expected map[string]bool) ([]string, error)
	Test(ctx context.Context) (*command.Result, error)
	Reload(ctx context.Context) (*command.Result, error)
	Version(ctx context.Context) (*command.Result, error)
}

// MaterialObserver reports on certificate files without touching them.
type MaterialObserver interface {
	HasMaterial(name string) bool
	Paths(name string) certbot.Paths
}

type ProxyConfigOptions struct {
	ACMEWebroot string
	// AutoReload validates and reloads nginx after every successful
	// regeneration. Reload is skipped when validation fails.
	AutoReload bool
}

// ProxyConfigService renders domains into nginx configs and drives the
// validate and reload steps.
type ProxyConfigService struct {
	domains  *DomainService
	renderer *nginx.Renderer
	proxy    ProxyServer
	material MaterialObserver
	locks    *platform.KeyedMutex
	opts     ProxyConfigOptions
}

func NewProxyConfigService(domains *DomainService, renderer *nginx.Renderer, proxy ProxyServer,
	material MaterialObserver, locks *platform.KeyedMutex, opts ProxyConfigOptions) *ProxyConfigService {
	return &ProxyConfigService{
		domains:  domains,
		renderer: renderer,
		proxy:    proxy,
		material: material,
		locks:    locks,
		opts:     opts,
	}
}

// Regenerate renders and writes the config of one domain. The destination
// always comes from the store; a callerAddress that differs is logged and
// ignored.
func (s *ProxyConfigService) Regenerate(ctx context.Context, id, callerAddress string) (*OperationResult, error) {
	ctx = context.WithoutCancel(ctx)
	unlock := s.locks.Lock("domain", id)
	defer unlock()

	d, err := s.domains.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	tr := newTranscript(ctx, "generate_config", d.Name)

	if callerAddress != "" && callerAddress != d.DestinationAddress {
		tr.Add("Ignoring requested destination %s; using stored destination %s", callerAddress, d.DestinationAddress)
	}

	path, applyErr := s.apply(ctx, d, tr)
	if applyErr == nil && s.opts.AutoReload {
		if err := s.validateAndReload(ctx, tr); err != nil {
			applyErr = err
		}
	}

	if err := s.domains.recordOutcome(ctx, d, d.Status, d.CertificateStatus, tr.String()); err != nil {
		return nil, err
	}
	metrics.ObserveOperation("generate_config", applyErr == nil)

	if applyErr != nil {
		res := failed(tr, applyErr)
		res.ConfigFile = path
		return res, nil
	}
	res := succeeded(tr, "Nginx config generated successfully")
	res.ConfigFile = path
	res.CertificateStatus = d.CertificateStatus
	return res, nil
}

// apply is the regenerate stage shared by every flow. The caller holds the
// domain lock. The HTTPS template is chosen from material observed on disk,
// not from the stored status.
func (s *ProxyConfigService) apply(ctx context.Context, d *model.Domain, tr *transcript.Transcript) (string, error) {
	tr.Add("Generating Nginx config for: %s", d.Name)

	hasMaterial, hasCert := s.serveHTTPS(d)
	switch {
	case hasCert:
		tr.Add("SSL certificate found - generating HTTPS config")
	case hasMaterial:
		tr.Add("Certificate is revoked - generating HTTP-only config")
	default:
		if d.CertificateStatus == model.CertValid {
			tr.Add("WARNING: certificate status is valid but no certificate files exist")
		}
		tr.Add("No SSL certificate - generating HTTP-only config")
	}

	opts := s.optionsFor(d)
	describeOptions(tr, opts, hasCert)

	doc, err := s.renderer.Render(opts, hasCert)
	if err != nil {
		tr.Add("ERROR: %v", err)
		return "", fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}
	path, err := s.proxy.WriteConfig(d.Name, doc)
	if err != nil {
		tr.Add("ERROR: %v", err)
		return "", fmt.Errorf("%w: %v", ErrConfigWrite, err)
	}

	tr.Add("Config file created: %s", path)
	tr.Add("Destination: %s", opts.Upstream)
	return path, nil
}

// Render returns the document Regenerate would write for a domain without
// writing it.
func (s *ProxyConfigService) Render(ctx context.Context, id string) (string, error) {
	d, err := s.domains.Get(ctx, id)
	if err != nil {
		return "", err
	}
	_, hasCert := s.serveHTTPS(d)
	doc, err := s.renderer.Render(s.optionsFor(d), hasCert)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", d.Name, err)
	}
	return doc, nil
}

// serveHTTPS reports whether material exists and whether the HTTPS
// template applies. Revoked material is never served.
func (s *ProxyConfigService) serveHTTPS(d *model.Domain) (hasMaterial, hasCert bool) {
	hasMaterial = s.material.HasMaterial(d.Name)
	return hasMaterial, hasMaterial && d.CertificateStatus != model.CertRevoked
}

func (s *ProxyConfigService) optionsFor(d *model.Domain) nginx.Options {
	p := s.material.Paths(d.Name)
	return nginx.OptionsFor(d, nginx.MaterialPaths{FullChain: p.FullChain, PrivKey: p.PrivKey}, s.opts.ACMEWebroot)
}

func describeOptions(tr *transcript.Transcript, o nginx.Options, https bool) {
	if https {
		tr.Add("TLS protocols: %s", o.TLSProtocols)
		if o.HTTP2 {
			tr.Add("HTTP/2 enabled")
		}
	}
	if o.Websocket {
		tr.Add("WebSocket support enabled")
	}
	if o.Gzip {
		tr.Add("Gzip compression enabled")
	}
	if o.CacheStatic {
		tr.Add("Asset caching enabled")
	}
	if o.BlockExploits {
		tr.Add("Exploit blocking enabled")
	}
	if n := len(o.CustomHeaders); n > 0 {
		tr.Add("Custom headers applied: %d", n)
	}
	if o.CustomConfig != "" {
		tr.Add("Custom configuration applied")
	}
}

// Test asks nginx to syntax-check the live configuration.
func (s *ProxyConfigService) Test(ctx context.Context) *OperationResult {
	tr := newTranscript(ctx, "test", "")
	err := s.test(ctx, tr)
	metrics.ObserveOperation("test", err == nil)
	if err != nil {
		return failed(tr, err)
	}
	return succeeded(tr, "Nginx configuration is valid")
}

// Reload signals nginx to reload. It does not validate first; use
// TestAndReload for the guarded sequence.
func (s *ProxyConfigService) Reload(ctx context.Context) *OperationResult {
	tr := newTranscript(ctx, "reload", "")
	err := s.reload(ctx, tr)
	metrics.ObserveOperation("reload", err == nil)
	if err != nil {
		return failed(tr, err)
	}
	return succeeded(tr, "Nginx reloaded successfully")
}

// TestAndReload validates and, only if validation passes, reloads.
func (s *ProxyConfigService) TestAndReload(ctx context.Context) *OperationResult {
	tr := newTranscript(ctx, "test_reload", "")
	err := s.validateAndReload(ctx, tr)
	metrics.ObserveOperation("test_reload", err == nil)
	if err != nil {
		return failed(tr, err)
	}
	return succeeded(tr, "Nginx configuration is valid and was reloaded")
}

// Version returns nginx -V output.
func (s *ProxyConfigService) Version(ctx context.Context) (string, error) {
	res, err := s.proxy.Version(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSubprocessFailure, err)
	}
	if !res.Success() {
		return res.Text(), fmt.Errorf("%w: nginx -V exited with status %d", ErrSubprocessFailedSemantically, res.ExitCode)
	}
	return res.Text(), nil
}

func (s *ProxyConfigService) validateAndReload(ctx context.Context, tr *transcript.Transcript) error {
	if err := s.test(ctx, tr); err != nil {
		tr.Add("Reload skipped because the configuration test failed")
		return err
	}
	return s.reload(ctx, tr)
}

func (s *ProxyConfigService) test(ctx context.Context, tr *transcript.Transcript) error {
	tr.Add("Testing Nginx configuration...")
	res, err := s.proxy.Test(ctx)
	if err := runOutcome(tr, res, err); err != nil {
		return err
	}
	if !res.Success() {
		tr.Add("ERROR: Configuration has errors")
		return fmt.Errorf("%w: nginx -t exited with status %d", ErrValidationFailure, res.ExitCode)
	}
	tr.Add("SUCCESS: Configuration is valid")
	return nil
}

func (s *ProxyConfigService) reload(ctx context.Context, tr *transcript.Transcript) error {
	tr.Add("Reloading Nginx...")
	res, err := s.proxy.Reload(ctx)
	if err := runOutcome(tr, res, err); err != nil {
		return err
	}
	if !res.Success() {
		tr.Add("ERROR: Nginx reload failed")
		return fmt.Errorf("%w: nginx reload exited with status %d", ErrSubprocessFailedSemantically, res.ExitCode)
	}
	tr.Add("SUCCESS: Nginx reloaded")
	return nil
}

// Reconcile brings every domain's config in line with observed state:
// a stale "valid" without material becomes "none", every config is
// regenerated, orphaned configs are removed, then nginx is validated and,
// if valid, reloaded. Like the other mutating flows it ignores cancellation
// of ctx.
func (s *ProxyConfigService) Reconcile(ctx context.Context) (*OperationResult, error) {
	ctx = context.WithoutCancel(ctx)
	domains, err := s.domains.List(ctx)
	if err != nil {
		return nil, err
	}
	tr := newTranscript(ctx, "reconcile", "")
	tr.Add("Reconciling %d domains", len(domains))

	var errs []error
	for i := range domains {
		if err := s.reconcileOne(ctx, domains[i].ID, tr); err != nil {
			errs = append(errs, err)
		}
	}

	// Domains added while the sweep ran own their configs too.
	current, err := s.domains.List(ctx)
	if err != nil {
		tr.Add("WARNING: skipped orphan cleanup, could not list domains: %v", err)
	} else {
		expected := make(map[string]bool, len(current))
		for i := range current {
			expected[current[i].Name+".conf"] = true
		}
		removed, err := s.proxy.CleanOrphanedConfigs(expected)
		if err != nil {
			tr.Add("WARNING: could not clean orphaned configs: %v", err)
		}
		for _, name := range removed {
			tr.Add("Removed orphaned config: %s", name)
		}
	}

	if err := s.validateAndReload(ctx, tr); err != nil {
		errs = append(errs, err)
	}
	metrics.ObserveOperation("reconcile", len(errs) == 0)

	if len(errs) > 0 {
		res := failed(tr, errs[0])
		if len(errs) > 1 {
			res.Error = errors.Join(errs...).Error()
		}
		return res, nil
	}
	return succeeded(tr, fmt.Sprintf("Reconciled %d domains", len(domains))), nil
}

func (s *ProxyConfigService) reconcileOne(ctx context.Context, id string, tr *transcript.Transcript) error {
	unlock := s.locks.Lock("domain", id)
	defer unlock()

	d, err := s.domains.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if d.CertificateStatus == model.CertValid && !s.material.HasMaterial(d.Name) {
		tr.Add("Certificate files for %s are gone; marking certificate status none", d.Name)
		if err := s.domains.setCertificateStatus(ctx, d, model.CertNone); err != nil {
			return err
		}
	}
	_, err = s.apply(ctx, d, tr)
	return err
}

// runOutcome records how a subprocess finished and converts a failure to
// run into ErrSubprocessFailure.
func runOutcome(tr *transcript.Transcript, res *command.Result, err error) error {
	if res != nil {
		tr.AddOutput(res.Output)
	}
	if err != nil {
		tr.Add("ERROR: %v", err)
		return fmt.Errorf("%w: %v", ErrSubprocessFailure, err)
	}
	tr.Add("Exit code: %d", res.ExitCode)
	return nil
}

func newTranscript(ctx context.Context, operation, domain string) *transcript.Transcript {
	tr := transcript.New()
	logger := zerolog.Ctx(ctx).With().Str("operation", operation).Str("domain", domain).Logger()
	tr.Observe(func(line string) {
		logger.Debug().Msg(line)
	})
	return tr
}
