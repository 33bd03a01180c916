package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/singleflight"

	internalssh "github.com/molezz/httpsproxy/internal/ssh"
)

// SSHProxyDialer chains outbound TCP connections through an SSH server.
//
// All tunnels share one SSH transport, created on first use. Each
// DialContext opens one "direct-tcpip" channel. When a channel cannot be
// opened because the transport died, the transport is replaced once and the
// dial retried.
type SSHProxyDialer struct {
	sshAddr string
	config  internalssh.ClientConfig
	direct  Dialer

	mu     sync.Mutex
	client *ssh.Client
	sf     singleflight.Group
}

// NewSSHProxyDialer constructs a dialer for the SSH server at sshAddr.
//
// Keys come from cfg.SSHKeyPath and host keys are checked against
// cfg.SSHKnownHostsPath; see internal/ssh for both.
func NewSSHProxyDialer(cfg Config, sshAddr, username, password string) (*SSHProxyDialer, error) {
	if sshAddr == "" {
		return nil, errors.New("ssh dialer: missing ssh address")
	}

	signers, err := internalssh.LoadSigners(cfg.SSHKeyPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	sshConfig := internalssh.ClientConfig{
		Username:         username,
		Password:         password,
		Signers:          signers,
		HandshakeTimeout: cfg.NegotiationTimeout,
	}
	if err := sshConfig.Validate(); err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	sshConfig.HostKeyCallback, err = internalssh.NewHostKeyCallback(cfg.SSHKnownHostsPath)
	if err != nil {
		return nil, fmt.Errorf("ssh dialer: %w", err)
	}

	direct, err := NewDirectDialer(cfg)
	if err != nil {
		return nil, err
	}

	return &SSHProxyDialer{sshAddr: sshAddr, config: sshConfig, direct: direct}, nil
}

// DialContext opens a channel to address over the shared SSH transport.
// Canceling ctx closes the returned conn.
func (f *SSHProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("ssh upstream dial %s %s: unsupported network", network, address)
	}

	client, err := f.getClient(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := client.DialContext(ctx, "tcp", address)
	if err != nil {
		// The transport is fine; the server could not reach address.
		var openErr *ssh.OpenChannelError
		if errors.As(err, &openErr) || ctx.Err() != nil {
			return nil, fmt.Errorf("ssh upstream dial %s: %w", address, err)
		}

		f.invalidateClient(client)
		client, err = f.getClient(ctx)
		if err != nil {
			return nil, err
		}
		conn, err = client.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("ssh upstream dial %s: %w", address, err)
		}
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	return &sshChannelConn{Conn: conn, stop: stop}, nil
}

// getClient returns the shared transport, connecting if there is none. A
// single connect attempt is shared by concurrent callers and runs to
// completion even if the caller that started it gives up.
func (f *SSHProxyDialer) getClient(ctx context.Context) (*ssh.Client, error) {
	f.mu.Lock()
	client := f.client
	f.mu.Unlock()
	if client != nil {
		return client, nil
	}

	ch := f.sf.DoChan("connect", func() (any, error) {
		f.mu.Lock()
		if f.client != nil {
			c := f.client
			f.mu.Unlock()
			return c, nil
		}
		f.mu.Unlock()

		c, err := f.connect(context.Background())
		if err != nil {
			return nil, err
		}

		f.mu.Lock()
		f.client = c
		f.mu.Unlock()
		return c, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ssh.Client), nil
	}
}

func (f *SSHProxyDialer) connect(ctx context.Context) (*ssh.Client, error) {
	conn, err := f.direct.DialContext(ctx, "tcp", f.sshAddr)
	if err != nil {
		return nil, fmt.Errorf("ssh transport dial: %w", err)
	}

	client, err := internalssh.Handshake(conn, f.sshAddr, f.config)
	if err != nil {
		return nil, fmt.Errorf("ssh transport: %w", err)
	}
	return client, nil
}

// invalidateClient drops client if it is still the shared transport.
func (f *SSHProxyDialer) invalidateClient(client *ssh.Client) {
	f.mu.Lock()
	if f.client == client {
		f.client = nil
	}
	f.mu.Unlock()
	_ = client.Close()
}

// Close closes the shared transport and every channel on it.
func (f *SSHProxyDialer) Close() error {
	f.mu.Lock()
	client := f.client
	f.client = nil
	f.mu.Unlock()
	if client == nil {
		return nil
	}
	return client.Close()
}

type sshChannelConn struct {
	net.Conn
	stop func() bool
}

func (c *sshChannelConn) Close() error {
	c.stop()
	return c.Conn.Close()
}
