package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName    string
	DatabaseDriver string
	DatabaseURL    string
	HTTPListenAddr string
	LogLevel       string

	// CertsDir is used as certbot's config, work and logs directory.
	// Live material is expected under CertsDir/live/<name>/.
	CertsDir       string
	ACMEWebroot    string
	CertbotBin     string
	CertbotStaging bool
	OpenSSLBin     string
	CertbotTimeout time.Duration

	NginxConfigDir   string
	NginxTemplateDir string
	NginxCommand     []string
	NginxTimeout     time.Duration
	// NginxAutoReload validates and reloads nginx after each config write.
	NginxAutoReload bool

	PublicIPURL    string
	ServerPublicIP string
	DNSResolvers   []string

	SessionTTL   time.Duration
	CookieSecure bool
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first if present; variables already set win.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		ServiceName:      getEnv("SERVICE_NAME", "proxyctl"),
		DatabaseDriver:   getEnv("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:      getEnv("DATABASE_URL", "/db/db.db"),
		HTTPListenAddr:   getEnv("HTTP_LISTEN_ADDR", ":8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		CertsDir:         getEnv("CERTS_DIR", "/certs/certificates"),
		ACMEWebroot:      getEnv("ACME_WEBROOT", "/var/www/html"),
		CertbotBin:       getEnv("CERTBOT_BIN", "/usr/bin/certbot"),
		OpenSSLBin:       getEnv("OPENSSL_BIN", "openssl"),
		NginxConfigDir:   getEnv("NGINX_CONFIG_DIR", "/nginx-configs"),
		NginxTemplateDir: getEnv("NGINX_TEMPLATE_DIR", ""),
		NginxCommand:     strings.Fields(getEnv("NGINX_COMMAND", "docker exec reverse-proxy nginx")),
		PublicIPURL:      getEnv("PUBLIC_IP_URL", "https://ipinfo.io/ip"),
		ServerPublicIP:   getEnv("SERVER_PUBLIC_IP", ""),
		DNSResolvers:     splitList(getEnv("DNS_RESOLVERS", "1.1.1.1:53,8.8.8.8:53")),
		CertbotStaging:   getEnv("CERTBOT_STAGING", "false") == "true",
		CookieSecure:     getEnv("COOKIE_SECURE", "false") == "true",
		NginxAutoReload:  getEnv("NGINX_AUTO_RELOAD", "false") == "true",
	}

	var err error
	if cfg.CertbotTimeout, err = getDuration("CERTBOT_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.NginxTimeout, err = getDuration("NGINX_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.SessionTTL, err = getDuration("SESSION_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all settings needed to run the orchestrator are present.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.CertsDir == "" {
		missing = append(missing, "CERTS_DIR")
	}
	if c.ACMEWebroot == "" {
		missing = append(missing, "ACME_WEBROOT")
	}
	if c.CertbotBin == "" {
		missing = append(missing, "CERTBOT_BIN")
	}
	if c.NginxConfigDir == "" {
		missing = append(missing, "NGINX_CONFIG_DIR")
	}
	if len(c.NginxCommand) == 0 {
		missing = append(missing, "NGINX_COMMAND")
	}
	if c.PublicIPURL == "" && c.ServerPublicIP == "" {
		missing = append(missing, "PUBLIC_IP_URL or SERVER_PUBLIC_IP")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required config: %s", strings.Join(missing, ", "))
	}

	switch c.DatabaseDriver {
	case "sqlite3", "pgx":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want sqlite3 or pgx)", c.DatabaseDriver)
	}
	if c.CertbotTimeout <= 0 || c.NginxTimeout <= 0 {
		return fmt.Errorf("subprocess timeouts must be positive")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
