package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"
)

const (
	responseEstablished       = "HTTP/1.1 200 Connection Established\r\n\r\n"
	responseBadRequest        = "HTTP/1.1 400 Bad Request\r\n\r\n"
	responseProxyAuthRequired = "HTTP/1.1 407 Proxy Authentication Required\r\nProxy-Authenticate: Basic realm=\"Proxy\"\r\n\r\n"
	responseBadGateway        = "HTTP/1.1 502 Bad Gateway\r\n\r\n"
)

// Server serves TLS-wrapped CONNECT tunnels.
type Server struct {
	ctx    context.Context
	cancel context.CancelFunc
	cfg    Config

	mu        sync.Mutex
	closed    bool
	listeners map[net.Listener]struct{}
	sessions  sync.WaitGroup
}

// NewServer constructs a Server. Canceling ctx ends all sessions, as does
// Close.
func NewServer(ctx context.Context, cfg Config) *Server {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Server{
		ctx:       ctx,
		cancel:    cancel,
		cfg:       cfg,
		listeners: make(map[net.Listener]struct{}),
	}
}

// Serve accepts connections on ln and runs one session per connection. It
// returns ErrServerClosed after Close.
func (s *Server) Serve(ln net.Listener) error {
	if !s.trackListener(ln) {
		_ = ln.Close()
		return ErrServerClosed
	}
	defer s.untrackListener(ln)

	var backoff time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("accept: %w", err)
			}

			// Out of descriptors and similar conditions clear up on their own.
			backoff = min(max(2*backoff, 5*time.Millisecond), time.Second)
			log.Printf("Accept error: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return ErrServerClosed
		}
		s.sessions.Add(1)
		s.mu.Unlock()

		go func() {
			defer s.sessions.Done()
			s.serveConn(conn)
		}()
	}
}

// Close stops all listeners passed to Serve, ends live sessions and waits
// for their goroutines to return.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closed = true
	var errs []error
	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	s.mu.Unlock()

	s.cancel()
	s.sessions.Wait()

	return errors.Join(errs...)
}

func (s *Server) trackListener(ln net.Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.listeners[ln] = struct{}{}
	return true
}

func (s *Server) untrackListener(ln net.Listener) {
	s.mu.Lock()
	delete(s.listeners, ln)
	s.mu.Unlock()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) serveConn(raw net.Conn) {
	remote := raw.RemoteAddr().String()

	err := s.session(raw)
	if s.cfg.Verbose {
		if err != nil {
			log.Printf("%s: session closed: %v", remote, err)
		} else {
			log.Printf("%s: session closed", remote)
		}
	}
}

// session runs one connection from TLS handshake to the end of the relay.
// Every failure before the tunnel is up either closes the connection
// silently or after one fixed response.
func (s *Server) session(raw net.Conn) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	// Unblocks any pending handshake, read or write on shutdown.
	stop := context.AfterFunc(ctx, func() { _ = raw.Close() })
	defer stop()

	conn := tls.Server(raw, s.cfg.TLSConfig)
	defer conn.Close()

	if err := conn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tls handshake: %w", err)
	}

	header, rest, err := ReadRequest(conn, s.cfg.MaxHeaderBytes)
	if err != nil {
		return fmt.Errorf("read request: %w", err)
	}

	req, err := ParseRequest(header)
	if err != nil {
		_, _ = io.WriteString(conn, responseBadRequest)
		return err
	}

	if !s.cfg.Credentials.Authenticate(req.Header) {
		_, _ = io.WriteString(conn, responseProxyAuthRequired)
		return fmt.Errorf("%w: CONNECT %s", ErrUnauthorized, req.Target())
	}

	target := req.Target()
	upstream, err := s.cfg.Dialer.DialContext(ctx, "tcp", target)
	if err != nil {
		_, _ = io.WriteString(conn, responseBadGateway)
		return fmt.Errorf("upstream: %w", err)
	}

	if _, err := io.WriteString(conn, responseEstablished); err != nil {
		_ = upstream.Close()
		return fmt.Errorf("write response: %w", err)
	}

	// The client may pipeline tunnel bytes right behind the header.
	if len(rest) > 0 {
		if _, err := upstream.Write(rest); err != nil {
			_ = upstream.Close()
			return fmt.Errorf("forward early data to %s: %w", target, err)
		}
	}

	if s.cfg.Verbose {
		log.Printf("%s: tunnel to %s established", raw.RemoteAddr(), target)
	}

	return CopyBidirectional(ctx, conn, upstream)
}
