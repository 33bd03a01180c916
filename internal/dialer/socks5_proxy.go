package dialer

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/molezz/httpsproxy/internal/socks5"
)

// SOCKS5ProxyDialer chains outbound TCP connections through a SOCKS5 proxy.
type SOCKS5ProxyDialer struct {
	cfg       Config
	proxyAddr string
	auth      socks5.Auth
	direct    Dialer
}

// NewSOCKS5ProxyDialer constructs a dialer for the SOCKS5 proxy at proxyAddr.
// Username/password authentication is offered when username is non-empty.
func NewSOCKS5ProxyDialer(cfg Config, proxyAddr, username, password string) (*SOCKS5ProxyDialer, error) {
	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}
	return &SOCKS5ProxyDialer{
		cfg:       cfg,
		proxyAddr: proxyAddr,
		auth:      socks5.Auth{Username: username, Password: password},
		direct:    direct,
	}, nil
}

// DialContext connects to the SOCKS5 proxy and issues a CONNECT for address.
func (f *SOCKS5ProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("socks5 proxy dial %s %s: unsupported network", network, address)
	}

	c, err := f.direct.DialContext(ctx, network, f.proxyAddr)
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy: %w", err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = c.Close()
	})
	defer stop()

	if f.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(f.cfg.NegotiationTimeout))
	}

	if err := socks5.ClientDial(c, f.auth, address); err != nil {
		_ = c.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, ctxErr)
		}
		return nil, fmt.Errorf("socks5 proxy dial %s: %w", address, err)
	}

	_ = c.SetDeadline(time.Time{})
	return c, nil
}
