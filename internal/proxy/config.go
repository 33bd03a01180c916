package proxy

import (
	"crypto/tls"

	"github.com/molezz/httpsproxy/internal/dialer"
)

// DefaultMaxHeaderBytes bounds the CONNECT request header.
const DefaultMaxHeaderBytes = 64 << 10

type Config struct {
	// TLSConfig holds the server identity. It is shared by all sessions and
	// must not be modified after NewServer.
	TLSConfig *tls.Config

	Credentials Credentials

	Dialer dialer.Dialer

	// MaxHeaderBytes bounds the request header. Zero means unbounded.
	MaxHeaderBytes int

	// Verbose logs every session's lifecycle and errors.
	Verbose bool
}
