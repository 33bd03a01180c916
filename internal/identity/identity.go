package identity

import (
	"crypto/ecdsa"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"

	"github.com/youmark/pkcs8"
)

// PEM block types accepted for the private key.
const (
	blockCertificate  = "CERTIFICATE"
	blockECPrivateKey = "EC PRIVATE KEY"
	blockPKCS8        = "PRIVATE KEY"
	blockPKCS8Crypted = "ENCRYPTED PRIVATE KEY"
)

var (
	// ErrNoCertificates is returned when the chain file holds no CERTIFICATE block.
	ErrNoCertificates = errors.New("no certificates found")
	// ErrNoKey is returned when the key file holds no supported EC key block.
	ErrNoKey = errors.New("no supported private key found")
	// ErrKeyMismatch is returned when the key does not belong to the leaf certificate.
	ErrKeyMismatch = errors.New("private key does not match certificate")
)

// Identity is the server's certificate chain and private key. It is built
// once at startup and never modified.
type Identity struct {
	chain [][]byte
	leaf  *x509.Certificate
	key   *ecdsa.PrivateKey
}

type options struct {
	passphrase []byte
}

// Option configures Load and Parse.
type Option func(*options)

// WithPassphrase sets the passphrase used to decrypt an ENCRYPTED PRIVATE KEY
// block.
func WithPassphrase(passphrase string) Option {
	return func(o *options) {
		if passphrase != "" {
			o.passphrase = []byte(passphrase)
		}
	}
}

// Load reads a PEM certificate chain from certPath and a PEM EC private key
// from keyPath.
func Load(certPath, keyPath string, opts ...Option) (*Identity, error) {
	certPEM, err := os.ReadFile(certPath) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("reading certificate file: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("reading private key file: %w", err)
	}

	id, err := Parse(certPEM, keyPEM, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s, %s: %w", certPath, keyPath, err)
	}
	return id, nil
}

// Parse builds an Identity from PEM encoded certificate chain and key bytes.
func Parse(certPEM, keyPEM []byte, opts ...Option) (*Identity, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	chain, err := parseChain(certPEM)
	if err != nil {
		return nil, err
	}

	leaf, err := x509.ParseCertificate(chain[0])
	if err != nil {
		return nil, fmt.Errorf("parsing leaf certificate: %w", err)
	}

	key, err := parseECKey(keyPEM, o.passphrase)
	if err != nil {
		return nil, err
	}

	pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(key.Public()) {
		return nil, ErrKeyMismatch
	}

	return &Identity{chain: chain, leaf: leaf, key: key}, nil
}

func parseChain(data []byte) ([][]byte, error) {
	var chain [][]byte
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type == blockCertificate {
			chain = append(chain, block.Bytes)
		}
	}
	if len(chain) == 0 {
		return nil, ErrNoCertificates
	}
	return chain, nil
}

// parseECKey returns the first EC key in data. Keys of other algorithms are
// skipped.
func parseECKey(data, passphrase []byte) (*ecdsa.PrivateKey, error) {
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			return nil, ErrNoKey
		}

		switch block.Type {
		case blockECPrivateKey:
			key, err := x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing EC private key: %w", err)
			}
			return key, nil
		case blockPKCS8:
			key, err := pkcs8.ParsePKCS8PrivateKey(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing PKCS#8 private key: %w", err)
			}
			if ec, ok := key.(*ecdsa.PrivateKey); ok {
				return ec, nil
			}
		case blockPKCS8Crypted:
			if passphrase == nil {
				return nil, errors.New("encrypted private key requires a passphrase")
			}
			key, err := pkcs8.ParsePKCS8PrivateKeyECDSA(block.Bytes, passphrase)
			if err != nil {
				return nil, fmt.Errorf("decrypting PKCS#8 private key: %w", err)
			}
			return key, nil
		}
	}
}

// Leaf returns the parsed end-entity certificate.
func (id *Identity) Leaf() *x509.Certificate { return id.leaf }

// Certificate returns the chain and key as a tls.Certificate.
func (id *Identity) Certificate() tls.Certificate {
	return tls.Certificate{
		Certificate: id.chain,
		PrivateKey:  id.key,
		Leaf:        id.leaf,
	}
}

// TLSConfig returns a server-side TLS configuration presenting this identity.
// Client certificates are not requested.
func (id *Identity) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{id.Certificate()},
		ClientAuth:   tls.NoClientCert,
		NextProtos:   []string{"http/1.1"},
	}
}
