package proxy

import (
	"bytes"
	"errors"
	"io"
	"net"
	"strings"
)

const readChunkSize = 4096

var headerTerminator = []byte("\r\n\r\n")

// Request is a parsed CONNECT request.
type Request struct {
	Host string
	Port string

	// RequestLine is the first line of the header.
	RequestLine string

	// Header holds the lines after the request line, CR stripped, in order.
	// The final empty line is included.
	Header []string
}

// Target returns the dial address for the request.
func (r *Request) Target() string {
	return net.JoinHostPort(r.Host, r.Port)
}

// ReadRequest reads from r until the data contains the header terminator
// CRLFCRLF. It returns the header including the terminator, and any bytes
// that arrived after it. If maxBytes is positive, a header longer than
// maxBytes yields ErrHeaderTooLarge. A connection closed before the
// terminator yields io.ErrUnexpectedEOF.
func ReadRequest(r io.Reader, maxBytes int) (header, rest []byte, err error) {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	for {
		n, err := r.Read(chunk)
		if n > 0 {
			// Only the tail can complete a terminator started in an earlier read.
			start := max(len(buf)-len(headerTerminator)+1, 0)
			buf = append(buf, chunk[:n]...)

			if i := bytes.Index(buf[start:], headerTerminator); i >= 0 {
				end := start + i + len(headerTerminator)
				if maxBytes > 0 && end > maxBytes {
					return nil, nil, ErrHeaderTooLarge
				}
				return buf[:end], buf[end:], nil
			}
			if maxBytes > 0 && len(buf) > maxBytes {
				return nil, nil, ErrHeaderTooLarge
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, nil, err
		}
	}
}

// ParseRequest splits header into lines and parses the request line with
// ParseConnect. Invalid UTF-8 is replaced rather than rejected.
func ParseRequest(header []byte) (*Request, error) {
	lines := splitLines(strings.ToValidUTF8(string(header), "\uFFFD"))
	if len(lines) == 0 {
		return nil, ErrMalformedRequest
	}

	host, port, err := ParseConnect(lines[0])
	if err != nil {
		return nil, err
	}

	return &Request{
		Host:        host,
		Port:        port,
		RequestLine: lines[0],
		Header:      lines[1:],
	}, nil
}

// ParseConnect parses a request line of the form "CONNECT host:port version".
// The host:port token must contain exactly one colon and a non-empty host.
// The port is passed through unchecked; a bad port fails at dial time.
func ParseConnect(line string) (host, port string, err error) {
	fields := strings.Fields(line)
	if len(fields) != 3 || fields[0] != "CONNECT" {
		return "", "", ErrMalformedRequest
	}

	parts := strings.Split(fields[1], ":")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", ErrMalformedRequest
	}

	return parts[0], parts[1], nil
}

// splitLines splits s on LF and strips one trailing CR from each line. A
// trailing LF does not start another line.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(strings.TrimSuffix(s, "\n"), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}
