package proxy

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
	"unicode/utf8"
)

const basicAuthPrefix = "Proxy-Authorization: Basic "

// Credentials is the single username/password pair the proxy accepts.
type Credentials struct {
	Username string
	Password string
}

// Authenticate reports whether the first Proxy-Authorization Basic header
// in lines carries exactly these credentials. The header name is matched
// case-sensitively and the password may contain colons.
func (c Credentials) Authenticate(lines []string) bool {
	for _, line := range lines {
		if encoded, ok := strings.CutPrefix(line, basicAuthPrefix); ok {
			return c.matches(encoded)
		}
	}
	return false
}

func (c Credentials) matches(encoded string) bool {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || !utf8.Valid(decoded) {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.Username))
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(c.Password))
	return userOK&passOK == 1
}
