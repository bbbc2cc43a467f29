package certbot

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/edvin/proxyctl/internal/command"
)

// Info describes the leaf certificate of a domain's live bundle.
type Info struct {
	Exists    bool      `json:"exists"`
	Subject   string    `json:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	DNSNames  []string  `json:"dns_names,omitempty"`
	NotBefore time.Time `json:"not_before,omitempty"`
	NotAfter  time.Time `json:"not_after,omitempty"`
	DaysLeft  int       `json:"days_left"`
	// Details is the openssl dump of dates and subject.
	Details string `json:"details,omitempty"`
}

// Inspect reads the live bundle for name. It returns ErrNoMaterial when the
// bundle is absent. The openssl dump is best effort; the parsed fields come
// from crypto/x509 and do not depend on it.
func (c *Client) Inspect(ctx context.Context, name string) (*Info, error) {
	if !c.HasMaterial(name) {
		return &Info{Exists: false}, ErrNoMaterial
	}
	p := c.Paths(name)

	data, err := os.ReadFile(p.FullChain)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.FullChain, err)
	}
	leaf, err := leafFromChain(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", p.FullChain, err)
	}

	info := &Info{
		Exists:    true,
		Subject:   leaf.Subject.String(),
		Issuer:    leaf.Issuer.String(),
		DNSNames:  leaf.DNSNames,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		DaysLeft:  int(time.Until(leaf.NotAfter).Hours() / 24),
	}

	res, err := c.runner.Run(ctx, c.opensslCommand(p.FullChain, "-dates", "-subject"))
	if err == nil && res.Success() {
		info.Details = res.Text()
	}
	return info, nil
}

// Text returns openssl's full human-readable dump of the live certificate.
func (c *Client) Text(ctx context.Context, name string) (string, error) {
	if !c.HasMaterial(name) {
		return "", ErrNoMaterial
	}
	res, err := c.runner.Run(ctx, c.opensslCommand(c.Paths(name).FullChain, "-text"))
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", fmt.Errorf("openssl exited with status %d: %s", res.ExitCode, res.Text())
	}
	return res.Text(), nil
}

func (c *Client) opensslCommand(path string, fields ...string) command.Command {
	args := append([]string{"x509", "-in", path, "-noout"}, fields...)
	return command.Command{Name: c.opts.OpenSSLBin, Args: args, Timeout: 30 * time.Second}
}

// leafFromChain returns the first non-CA certificate in a PEM bundle.
func leafFromChain(bb []byte) (*x509.Certificate, error) {
	var block *pem.Block
	for {
		block, bb = pem.Decode(bb)
		if block == nil {
			return nil, errors.New("no leaf certificate in bundle")
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		if cert.IsCA {
			continue
		}
		return cert, nil
	}
}
