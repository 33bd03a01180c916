package testutil

import (
	"crypto/tls"
	"crypto/x509"
	"testing"

	"github.com/molezz/httpsproxy/internal/certgen"
)

// NewTLSPair returns a self-signed certificate and key for localhost and
// 127.0.0.1 as PEM, plus a client config that trusts exactly that
// certificate.
func NewTLSPair(t *testing.T) (certPEM, keyPEM []byte, client *tls.Config) {
	t.Helper()

	certPEM, keyPEM, err := certgen.NewPEM([]string{"localhost", "127.0.0.1"})
	if err != nil {
		t.Fatal(err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certPEM) {
		t.Fatal("failed to add test certificate to pool")
	}

	return certPEM, keyPEM, &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    pool,
		ServerName: "localhost",
	}
}
