package core

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/edvin/proxyctl/internal/certbot"
	"github.com/edvin/proxyctl/internal/command"
	"github.com/edvin/proxyctl/internal/config"
	"github.com/edvin/proxyctl/internal/dnscheck"
	"github.com/edvin/proxyctl/internal/nginx"
	"github.com/edvin/proxyctl/internal/platform"
)

type Services struct {
	Domain      *DomainService
	Certificate *CertificateService
	Proxy       *ProxyConfigService
	Auth        *AuthService
	User        *UserService
	Resolver    NameResolver
}

// ProxyStore is the full nginx collaborator: config files plus the server.
type ProxyStore interface {
	ProxyServer
	ConfigRemover
}

// Deps are the external collaborators of the orchestration services.
type Deps struct {
	Renderer    *nginx.Renderer
	ACME        CertificateAuthority
	Proxy       ProxyStore
	Gate        PolicyGate
	Resolver    NameResolver
	ACMEWebroot string
	AutoReload  bool
	SessionTTL  time.Duration
}

func NewServices(db DB, deps Deps) *Services {
	locks := &platform.KeyedMutex{}
	domains := NewDomainService(db, locks, deps.Proxy)
	proxy := NewProxyConfigService(domains, deps.Renderer, deps.Proxy, deps.ACME, locks, ProxyConfigOptions{
		ACMEWebroot: deps.ACMEWebroot,
		AutoReload:  deps.AutoReload,
	})
	return &Services{
		Domain:      domains,
		Certificate: NewCertificateService(domains, proxy, deps.ACME, deps.Gate, locks),
		Proxy:       proxy,
		Auth:        NewAuthService(db, deps.SessionTTL),
		User:        NewUserService(db),
		Resolver:    deps.Resolver,
	}
}

// DepsFromConfig builds the real certbot, nginx and DNS collaborators
// described by cfg. Every subprocess goes through runner.
func DepsFromConfig(cfg *config.Config, logger zerolog.Logger, runner command.Runner) (Deps, error) {
	renderer, err := nginx.NewRenderer(cfg.NginxTemplateDir)
	if err != nil {
		return Deps{}, fmt.Errorf("load nginx templates: %w", err)
	}

	acme := certbot.NewClient(runner, certbot.Options{
		Bin:        cfg.CertbotBin,
		OpenSSLBin: cfg.OpenSSLBin,
		CertsDir:   cfg.CertsDir,
		Webroot:    cfg.ACMEWebroot,
		Staging:    cfg.CertbotStaging,
		Timeout:    cfg.CertbotTimeout,
	})
	proxy := nginx.NewManager(logger, runner, nginx.ManagerOptions{
		ConfigDir: cfg.NginxConfigDir,
		Command:   cfg.NginxCommand,
		Timeout:   cfg.NginxTimeout,
	})

	var ips dnscheck.IPSource = dnscheck.NewHTTPIPSource(cfg.PublicIPURL)
	if cfg.ServerPublicIP != "" {
		ips = dnscheck.StaticIP(cfg.ServerPublicIP)
	}
	verifier := dnscheck.NewVerifier(ips, dnscheck.NewNetResolver(cfg.DNSResolvers))

	return Deps{
		Renderer:    renderer,
		ACME:        acme,
		Proxy:       proxy,
		Gate:        verifier,
		Resolver:    verifier,
		ACMEWebroot: cfg.ACMEWebroot,
		AutoReload:  cfg.NginxAutoReload,
		SessionTTL:  cfg.SessionTTL,
	}, nil
}
