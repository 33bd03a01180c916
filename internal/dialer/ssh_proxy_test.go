package dialer

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"

	"github.com/molezz/httpsproxy/internal/testutil"
)

func TestSSHProxyDialerDialContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn1 := testutil.StartEchoTCPServer(t, ctx)
	echoLn2 := testutil.StartEchoTCPServer(t, ctx)

	sshLn := startSSHDynamicForwardServer(t, ctx, "user", "pass")

	cfg := Config{
		DialTimeout:        2 * time.Second,
		NegotiationTimeout: 2 * time.Second,
		SSHKnownHostsPath:  filepath.Join(t.TempDir(), "known_hosts"),
	}
	d, err := NewSSHProxyDialer(cfg, sshLn.Addr().String(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	c1, err := d.DialContext(ctx, "tcp", echoLn1.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	testutil.AssertEcho(t, c1, c1, []byte("hello"))
	_ = c1.Close()

	c2, err := d.DialContext(ctx, "tcp", echoLn2.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	testutil.AssertEcho(t, c2, c2, []byte("hello2"))

	// The destination is refused by the server, but the transport survives.
	if _, err := d.DialContext(ctx, "tcp", testutil.UnusedAddr(t)); err == nil {
		t.Fatal("expected error for unreachable destination")
	}
	testutil.AssertEcho(t, c2, c2, []byte("still here"))
}

func TestSSHProxyDialerBadPassword(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sshLn := startSSHDynamicForwardServer(t, ctx, "user", "pass")

	cfg := Config{
		DialTimeout:        2 * time.Second,
		NegotiationTimeout: 2 * time.Second,
		SSHKnownHostsPath:  filepath.Join(t.TempDir(), "known_hosts"),
	}
	d, err := NewSSHProxyDialer(cfg, sshLn.Addr().String(), "user", "wrong")
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if _, err := d.DialContext(ctx, "tcp", "127.0.0.1:1"); err == nil {
		t.Fatal("expected authentication error")
	}
}

func TestSSHProxyDialerClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	echoLn := testutil.StartEchoTCPServer(t, ctx)
	sshLn := startSSHDynamicForwardServer(t, ctx, "user", "pass")

	cfg := Config{
		DialTimeout:        2 * time.Second,
		NegotiationTimeout: 2 * time.Second,
		SSHKnownHostsPath:  filepath.Join(t.TempDir(), "known_hosts"),
	}
	d, err := NewSSHProxyDialer(cfg, sshLn.Addr().String(), "user", "pass")
	if err != nil {
		t.Fatal(err)
	}

	c, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	testutil.AssertEcho(t, c, c, []byte("hello"))

	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := c.Read(make([]byte, 1)); err == nil {
		t.Fatal("expected channel to close with the transport")
	}

	// A later dial starts a new transport.
	c2, err := d.DialContext(ctx, "tcp", echoLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer c2.Close()
	testutil.AssertEcho(t, c2, c2, []byte("again"))
	_ = d.Close()
}

type directTCPIPPayload struct {
	Host       string
	Port       uint32
	OriginHost string
	OriginPort uint32
}

// startSSHDynamicForwardServer runs an SSH server that accepts password
// auth and serves direct-tcpip channels, like sshd with AllowTcpForwarding.
func startSSHDynamicForwardServer(t *testing.T, ctx context.Context, username, password string) net.Listener {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}

	cfg := &ssh.ServerConfig{
		PasswordCallback: func(meta ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if meta.User() != username || string(pass) != password {
				return nil, errors.New("invalid credentials")
			}
			return &ssh.Permissions{}, nil
		},
	}
	cfg.AddHostKey(signer)

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSHConn(ctx, c, cfg)
		}
	}()

	return ln
}

func serveSSHConn(ctx context.Context, c net.Conn, cfg *ssh.ServerConfig) {
	defer c.Close()

	_, chans, reqs, err := ssh.NewServerConn(c, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newChan := range chans {
		if newChan.ChannelType() != "direct-tcpip" {
			_ = newChan.Reject(ssh.UnknownChannelType, "unsupported channel")
			continue
		}

		var p directTCPIPPayload
		if err := ssh.Unmarshal(newChan.ExtraData(), &p); err != nil {
			_ = newChan.Reject(ssh.Prohibited, "bad direct-tcpip payload")
			continue
		}

		d := net.Dialer{}
		dst, err := d.DialContext(ctx, "tcp", net.JoinHostPort(p.Host, fmt.Sprint(p.Port)))
		if err != nil {
			_ = newChan.Reject(ssh.ConnectionFailed, "dial failed")
			continue
		}

		ch, chReqs, err := newChan.Accept()
		if err != nil {
			_ = dst.Close()
			continue
		}
		go ssh.DiscardRequests(chReqs)

		go func() {
			defer ch.Close()
			defer dst.Close()

			g := errgroup.Group{}
			g.Go(func() error {
				_, err := io.Copy(dst, ch)
				_ = dst.Close()
				return err
			})
			g.Go(func() error {
				_, err := io.Copy(ch, dst)
				_ = ch.Close()
				return err
			})
			_ = g.Wait()
		}()
	}
}
