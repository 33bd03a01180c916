package dialer

import (
	"net"
	"time"
)

// Config holds settings shared by every outbound route.
type Config struct {
	// DialTimeout bounds DNS resolution plus TCP connect. Zero means no limit.
	DialTimeout time.Duration

	// NegotiationTimeout bounds the handshake with an upstream proxy (TLS,
	// CONNECT, SOCKS5, or SSH). It does not apply to direct dials.
	NegotiationTimeout time.Duration

	KeepAlive net.KeepAliveConfig

	SSHKeyPath        string
	SSHKnownHostsPath string
}
