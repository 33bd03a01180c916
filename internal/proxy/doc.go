// Package proxy implements the TLS-terminating CONNECT proxy.
//
// A Server accepts TCP connections, completes a TLS handshake with the
// configured identity, reads one CONNECT request, checks its Basic
// credentials, dials the target through a dialer.Dialer and then relays
// bytes in both directions until either side closes.
package proxy
