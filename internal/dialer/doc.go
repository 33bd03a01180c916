// Package dialer opens the proxy's outbound connections.
//
// The default route dials targets directly. An upstream URL can instead
// chain every tunnel through another HTTP(S) CONNECT proxy, a SOCKS5 proxy,
// or an SSH server (dynamic port forwarding).
package dialer
