// Package certgen generates self-signed ECDSA certificates for development
// and tests.
//
// Typical usage:
//
//	if err := certgen.Generate("crt.crt", "key.key", []string{"localhost"}); err != nil {
//	    log.Fatalf("generate cert: %v", err)
//	}
package certgen

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Validity is how long generated certificates are valid for.
const Validity = 365 * 24 * time.Hour

// Generate writes a self-signed certificate and SEC1 EC private key to
// certFile and keyFile. If both files already exist it does nothing.
func Generate(certFile, keyFile string, hosts []string) error {
	if fileExists(certFile) && fileExists(keyFile) {
		return nil
	}

	certPEM, keyPEM, err := NewPEM(hosts)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil { //nolint:gosec // Certificates are public.
		return fmt.Errorf("writing certificate: %w", err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		return fmt.Errorf("writing private key: %w", err)
	}
	return nil
}

// NewPEM returns a PEM encoded self-signed P-256 certificate valid for hosts
// (DNS names or IP addresses) and its PEM encoded SEC1 private key.
func NewPEM(hosts []string) (certPEM, keyPEM []byte, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generating private key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return nil, nil, fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	tmpl := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"httpsproxy"}},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.Add(Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			tmpl.IPAddresses = append(tmpl.IPAddresses, ip)
		} else {
			tmpl.DNSNames = append(tmpl.DNSNames, h)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		return nil, nil, fmt.Errorf("creating certificate: %w", err)
	}

	keyDER, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, nil, fmt.Errorf("marshaling private key: %w", err)
	}

	certPEM = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return certPEM, keyPEM, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
