// Package certbottest lays out certificate material the way certbot does:
// real files under archive/<name>/ and symlinks under live/<name>/.
package certbottest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// WriteMaterial creates a self-signed leaf for name valid for 90 days.
func WriteMaterial(t testing.TB, certsDir, name string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	archive := filepath.Join(certsDir, "archive", name)
	live := filepath.Join(certsDir, "live", name)
	for _, dir := range []string{archive, live} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}

	files := map[string][]byte{
		"cert":      certPEM,
		"fullchain": certPEM,
		"privkey":   keyPEM,
	}
	for base, data := range files {
		target := filepath.Join(archive, base+"1.pem")
		if err := os.WriteFile(target, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", target, err)
		}
		link := filepath.Join(live, base+".pem")
		_ = os.Remove(link)
		if err := os.Symlink(target, link); err != nil {
			t.Fatalf("symlink %s: %v", link, err)
		}
	}
}

// RemoveMaterial deletes the live and archive trees for name.
func RemoveMaterial(t testing.TB, certsDir, name string) {
	t.Helper()
	for _, sub := range []string{"live", "archive"} {
		if err := os.RemoveAll(filepath.Join(certsDir, sub, name)); err != nil {
			t.Fatalf("remove material: %v", err)
		}
	}
}
