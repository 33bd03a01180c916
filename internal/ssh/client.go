package ssh

import (
	"errors"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"
)

// ClientConfig holds what is needed to authenticate to an SSH server.
type ClientConfig struct {
	Username        string
	Password        string
	Signers         []ssh.Signer
	HostKeyCallback ssh.HostKeyCallback

	// HandshakeTimeout bounds the SSH handshake. Zero means no limit.
	HandshakeTimeout time.Duration
}

// Validate reports missing required fields.
func (c *ClientConfig) Validate() error {
	if c.Username == "" {
		return errors.New("missing username")
	}
	if c.Password == "" && len(c.Signers) == 0 {
		return errors.New("missing password or key")
	}
	return nil
}

// AuthMethods offers public keys first, then the password.
func (c *ClientConfig) AuthMethods() []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if len(c.Signers) > 0 {
		methods = append(methods, ssh.PublicKeys(c.Signers...))
	}
	if c.Password != "" {
		methods = append(methods, ssh.Password(c.Password))
	}
	return methods
}

// Handshake runs the SSH client handshake over conn, an established
// connection to the server at addr. On error conn is closed.
func Handshake(conn net.Conn, addr string, cfg ClientConfig) (*ssh.Client, error) {
	hostKeyCallback := cfg.HostKeyCallback
	if hostKeyCallback == nil {
		_ = conn.Close()
		return nil, errors.New("ssh handshake: missing host key callback")
	}

	if cfg.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(cfg.HandshakeTimeout))
	}

	cc, chans, reqs, err := ssh.NewClientConn(conn, addr, &ssh.ClientConfig{
		User:            cfg.Username,
		Auth:            cfg.AuthMethods(),
		HostKeyCallback: hostKeyCallback,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake: %w", err)
	}

	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(cc, chans, reqs), nil
}
