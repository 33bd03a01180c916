package ssh

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// NewHostKeyCallback verifies server host keys against the known_hosts file
// at path. Unknown hosts are appended on first contact (trust on first use);
// a changed key for a known host is rejected. An empty path disables host key
// checking.
//
// The file and its parent directory are created if missing.
func NewHostKeyCallback(path string) (ssh.HostKeyCallback, error) {
	if path == "" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // User explicitly disabled host key checking.
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating known_hosts directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("creating known_hosts file: %w", err)
	}
	_ = f.Close()

	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts: %w", err)
	}

	tofu := &trustOnFirstUse{path: path, verify: verify}
	return tofu.check, nil
}

type trustOnFirstUse struct {
	path   string
	verify ssh.HostKeyCallback

	mu sync.Mutex
	// added holds keys appended during this process's lifetime, which the
	// knownhosts callback loaded at startup does not know about.
	added []knownKey
}

type knownKey struct {
	host string
	key  []byte
}

func (t *trustOnFirstUse) check(hostname string, remote net.Addr, key ssh.PublicKey) error {
	err := t.verify(hostname, remote, key)
	if err == nil {
		return nil
	}

	var keyErr *knownhosts.KeyError
	if !errors.As(err, &keyErr) {
		return err
	}
	if len(keyErr.Want) > 0 {
		return fmt.Errorf("host key mismatch for %s (possible MITM attack): %w", hostname, err)
	}

	host := knownhosts.Normalize(hostname)
	marshaled := key.Marshal()

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, k := range t.added {
		if k.host != host {
			continue
		}
		if string(k.key) == string(marshaled) {
			return nil
		}
		return fmt.Errorf("host key mismatch for %s (possible MITM attack)", hostname)
	}

	f, err := os.OpenFile(t.path, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // Path is from user config.
	if err != nil {
		return fmt.Errorf("opening known_hosts for writing: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(knownhosts.Line([]string{host}, key) + "\n"); err != nil {
		return fmt.Errorf("writing to known_hosts: %w", err)
	}
	t.added = append(t.added, knownKey{host: host, key: marshaled})

	log.Printf("ssh: added host key for %s to %s", hostname, t.path)
	return nil
}
