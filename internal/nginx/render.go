package nginx

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"text/template"

	"github.com/edvin/proxyctl/internal/model"
)

//go:embed templates/vhost.conf.tmpl
var defaultHTTPSTemplate string

// ManagedMarker starts the first line of every rendered document. Only files
// carrying it are treated as ours when cleaning the config directory.
const ManagedMarker = "# Managed by proxyctl"

// Override file names looked up in the template directory.
const (
	HTTPSTemplateFile    = "vhost-template.conf"
	HTTPOnlyTemplateFile = "vhost-http-only.conf"
)

// GzipTypes is the MIME list compressed when gzip is enabled.
const GzipTypes = "text/plain text/css text/xml text/javascript application/json application/javascript application/xml+rss application/rss+xml font/truetype font/opentype application/vnd.ms-fontobject image/svg+xml"

// tlsLine matches the directives that only make sense with a certificate.
var tlsLine = regexp.MustCompile(`(?m)^[ \t]*(listen[^;\n]*443[^;\n]*;|ssl_[a-z_]+[^;\n]*;|\{\{\s*if \.HTTP2\s*\}\}.*\{\{\s*end\s*\}\})[ \t]*\r?\n`)

// Options is everything a vhost template may reference.
type Options struct {
	Name              string
	ServerNames       string
	Upstream          string
	TLSProtocols      string
	HTTP2             bool
	ProxyTimeout      int
	ProxyBufferSize   string
	ClientMaxBodySize string
	Gzip              bool
	GzipTypes         string
	Websocket         bool
	CustomHeaders     []string
	CacheStatic       bool
	BlockExploits     bool
	CustomConfig      string
	CertificatePath   string
	KeyPath           string
	ACMEWebroot       string
}

// MaterialPaths locates the certificate files the HTTPS template references.
type MaterialPaths struct {
	FullChain string
	PrivKey   string
}

// OptionsFor maps a domain record onto template options, applying defaults
// for any unset knob.
func OptionsFor(d *model.Domain, material MaterialPaths, acmeWebroot string) Options {
	names := d.Name
	if d.IncludeWWW && !strings.HasPrefix(d.Name, "www.") {
		names += " www." + d.Name
	}
	port := d.DestinationPort
	if port <= 0 {
		port = model.DefaultDestinationPort
	}
	timeout := d.ProxyTimeout
	if timeout <= 0 {
		timeout = model.DefaultProxyTimeout
	}

	return Options{
		Name:              d.Name,
		ServerNames:       names,
		Upstream:          d.DestinationAddress + ":" + strconv.Itoa(port),
		TLSProtocols:      orDefault(d.TLSVersion, model.DefaultTLSVersion),
		HTTP2:             orDefault(d.HTTPVersion, model.HTTPVersion2) == model.HTTPVersion2,
		ProxyTimeout:      timeout,
		ProxyBufferSize:   orDefault(d.ProxyBufferSize, model.DefaultProxyBufferSize),
		ClientMaxBodySize: orDefault(d.ClientMaxBodySize, model.DefaultClientMaxBodySize),
		Gzip:              d.EnableGzip,
		GzipTypes:         GzipTypes,
		Websocket:         d.EnableWebsocket,
		CustomHeaders:     headerDirectives(d.CustomHeaders),
		CacheStatic:       d.EnableCache,
		BlockExploits:     d.BlockExploits,
		CustomConfig:      strings.TrimSpace(d.CustomConfig),
		CertificatePath:   material.FullChain,
		KeyPath:           material.PrivKey,
		ACMEWebroot:       acmeWebroot,
	}
}

// Renderer holds the parsed HTTPS and HTTP-only vhost templates.
type Renderer struct {
	https    *template.Template
	httpOnly *template.Template
}

// NewRenderer loads templates from dir, falling back to the embedded default.
// When only the HTTPS template exists the HTTP-only variant is derived from
// it by removing the TLS directives.
func NewRenderer(dir string) (*Renderer, error) {
	httpsText := defaultHTTPSTemplate
	httpText := ""

	if dir != "" {
		if b, err := os.ReadFile(filepath.Join(dir, HTTPSTemplateFile)); err == nil {
			httpsText = string(b)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read https template: %w", err)
		}
		if b, err := os.ReadFile(filepath.Join(dir, HTTPOnlyTemplateFile)); err == nil {
			httpText = string(b)
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read http-only template: %w", err)
		}
	}
	if httpText == "" {
		httpText = DeriveHTTPOnly(httpsText)
	}

	return NewRendererFromText(httpsText, httpText)
}

// NewRendererFromText parses the two template bodies.
func NewRendererFromText(httpsText, httpText string) (*Renderer, error) {
	https, err := template.New("https").Option("missingkey=error").Parse(httpsText)
	if err != nil {
		return nil, fmt.Errorf("parse https template: %w", err)
	}
	httpOnly, err := template.New("http").Option("missingkey=error").Parse(httpText)
	if err != nil {
		return nil, fmt.Errorf("parse http-only template: %w", err)
	}
	return &Renderer{https: https, httpOnly: httpOnly}, nil
}

// DeriveHTTPOnly strips TLS listeners, ssl_* directives and the HTTP/2
// directive from an HTTPS template.
func DeriveHTTPOnly(httpsText string) string {
	return tlsLine.ReplaceAllString(httpsText, "")
}

// Render produces the complete document for opts. The HTTPS template is used
// only when hasCertificate is true.
func (r *Renderer) Render(opts Options, hasCertificate bool) (string, error) {
	tmpl := r.httpOnly
	if hasCertificate {
		tmpl = r.https
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return "", fmt.Errorf("render %s template for %s: %w", tmpl.Name(), opts.Name, err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, ManagedMarker) {
		out = ManagedMarker + " for " + opts.Name + ".\n" + out
	}
	return out, nil
}

// headerDirectives yields one directive per non-blank line, without a
// trailing semicolon.
func headerDirectives(headers []string) []string {
	var out []string
	for _, entry := range headers {
		for _, h := range strings.Split(entry, "\n") {
			h = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(h), ";"))
			if h == "" {
				continue
			}
			out = append(out, h)
		}
	}
	return out
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
