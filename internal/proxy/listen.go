package proxy

import (
	"context"
	"fmt"
	"net"
)

type ListenOptions struct {
	// KeepAlive is applied to every accepted connection.
	KeepAlive net.KeepAliveConfig

	// ReusePort sets SO_REUSEPORT so several processes can share the port.
	ReusePort bool
}

// ListenTCP listens on addr with opts applied.
func ListenTCP(addr string, opts ListenOptions) (net.Listener, error) {
	lc := net.ListenConfig{KeepAliveConfig: opts.KeepAlive}
	if opts.ReusePort {
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen tcp %s: %w", addr, err)
	}

	return ln, nil
}
