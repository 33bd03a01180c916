package testutil

import (
	"errors"
	"fmt"
	"net"
	"slices"

	txsocks5 "github.com/txthinking/socks5"
)

// ErrSOCKS5AuthRejected is returned by SOCKS5Negotiate for wrong credentials.
var ErrSOCKS5AuthRejected = errors.New("socks5: credentials rejected")

// SOCKS5Negotiate plays the server side of method negotiation on conn. An
// empty username accepts only no-auth.
func SOCKS5Negotiate(conn net.Conn, username, password string) error {
	neg, err := txsocks5.NewNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("negotiation request: %w", err)
	}

	want := txsocks5.MethodNone
	if username != "" {
		want = txsocks5.MethodUsernamePassword
	}
	if !slices.Contains(neg.Methods, want) {
		// RFC 1928: 0xFF means no acceptable methods.
		_, _ = txsocks5.NewNegotiationReply(0xff).WriteTo(conn)
		return fmt.Errorf("socks5: client does not offer method %d", want)
	}
	if _, err := txsocks5.NewNegotiationReply(want).WriteTo(conn); err != nil {
		return fmt.Errorf("negotiation reply: %w", err)
	}
	if want == txsocks5.MethodNone {
		return nil
	}

	urq, err := txsocks5.NewUserPassNegotiationRequestFrom(conn)
	if err != nil {
		return fmt.Errorf("read userpass: %w", err)
	}
	if string(urq.Uname) != username || string(urq.Passwd) != password {
		_, _ = txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusFailure).WriteTo(conn)
		return ErrSOCKS5AuthRejected
	}
	if _, err := txsocks5.NewUserPassNegotiationReply(txsocks5.UserPassStatusSuccess).WriteTo(conn); err != nil {
		return fmt.Errorf("write userpass: %w", err)
	}
	return nil
}

// SOCKS5ReadConnect reads a command request and returns its destination.
// Commands other than CONNECT are an error.
func SOCKS5ReadConnect(conn net.Conn) (string, error) {
	req, err := txsocks5.NewRequestFrom(conn)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	if req.Cmd != txsocks5.CmdConnect {
		return "", fmt.Errorf("unexpected command: %d", req.Cmd)
	}
	return req.Address(), nil
}

// SOCKS5RefuseConnect writes a connection-refused reply.
func SOCKS5RefuseConnect(conn net.Conn) {
	_, _ = txsocks5.NewReply(txsocks5.RepConnectionRefused, txsocks5.ATYPIPv4, []byte{0x00, 0x00, 0x00, 0x00}, []byte{0x00, 0x00}).WriteTo(conn)
}

// SOCKS5AcceptConnect writes a success reply with bound as the bound address.
func SOCKS5AcceptConnect(conn net.Conn, bound net.Addr) error {
	a, addr, port, err := txsocks5.ParseAddress(bound.String())
	if err != nil {
		return fmt.Errorf("parse bound address %q: %w", bound.String(), err)
	}
	if a == txsocks5.ATYPDomain {
		addr = addr[1:]
	}
	if _, err := txsocks5.NewReply(txsocks5.RepSuccess, a, addr, port).WriteTo(conn); err != nil {
		return fmt.Errorf("success reply: %w", err)
	}
	return nil
}
