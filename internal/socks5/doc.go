// Package socks5 implements the client side of a SOCKS5 handshake on top of
// the message types in github.com/txthinking/socks5. It chains tunnels
// through an upstream SOCKS5 proxy.
package socks5
