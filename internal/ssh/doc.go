// Package ssh holds the client-side SSH plumbing for the ssh:// upstream
// route: loading signers from key files or the agent, known_hosts
// verification with trust on first use, and the client handshake.
//
// Tunnels are opened as "direct-tcpip" channels over one shared transport,
// the same mechanism as ssh -D.
package ssh
