package proxy

import "errors"

var (
	// ErrMalformedRequest is returned for a request line that is not
	// "CONNECT host:port version".
	ErrMalformedRequest = errors.New("malformed CONNECT request")

	// ErrHeaderTooLarge is returned when the request header grows past the
	// configured bound without a terminator.
	ErrHeaderTooLarge = errors.New("request header too large")

	// ErrUnauthorized is returned for a request with missing or wrong
	// credentials.
	ErrUnauthorized = errors.New("proxy authentication failed")

	// ErrServerClosed is returned by Serve after Close.
	ErrServerClosed = errors.New("proxy: server closed")
)
