package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func mustGenerateKey(t *testing.T) ssh.Signer {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatal(err)
	}
	return signer
}

func TestNewHostKeyCallback(t *testing.T) {
	t.Parallel()

	addr := &net.TCPAddr{IP: net.ParseIP("192.0.2.1"), Port: 22}

	t.Run("empty path accepts any key", func(t *testing.T) {
		t.Parallel()

		cb, err := NewHostKeyCallback("")
		if err != nil {
			t.Fatal(err)
		}
		if err := cb("example.com:22", addr, mustGenerateKey(t).PublicKey()); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("creates directory and file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "subdir", "known_hosts")
		if _, err := NewHostKeyCallback(path); err != nil {
			t.Fatal(err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("file not created: %v", err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("expected file mode 0600, got %o", info.Mode().Perm())
		}
	})

	t.Run("trusts unknown host and remembers it", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		cb, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}

		key := mustGenerateKey(t).PublicKey()
		if err := cb("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("unknown host rejected: %v", err)
		}
		if err := cb("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("same key rejected on second use: %v", err)
		}
		if err := cb("192.0.2.1:22", addr, mustGenerateKey(t).PublicKey()); err == nil {
			t.Fatal("expected changed key to be rejected within the same process")
		}

		data, err := os.ReadFile(path) //nolint:gosec // Test path from t.TempDir().
		if err != nil {
			t.Fatal(err)
		}
		if strings.Count(string(data), "\n") != 1 {
			t.Fatalf("expected exactly one known_hosts line, got %q", data)
		}

		reloaded, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := reloaded("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("known host rejected after reload: %v", err)
		}
	})

	t.Run("rejects changed key from file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "known_hosts")
		key := mustGenerateKey(t).PublicKey()
		line := "192.0.2.1 " + key.Type() + " " + base64.StdEncoding.EncodeToString(key.Marshal()) + "\n"
		if err := os.WriteFile(path, []byte(line), 0o600); err != nil {
			t.Fatal(err)
		}

		cb, err := NewHostKeyCallback(path)
		if err != nil {
			t.Fatal(err)
		}
		if err := cb("192.0.2.1:22", addr, key); err != nil {
			t.Fatalf("existing entry rejected: %v", err)
		}

		err = cb("192.0.2.1:22", addr, mustGenerateKey(t).PublicKey())
		if err == nil || !strings.Contains(err.Error(), "mismatch") {
			t.Fatalf("expected mismatch error, got %v", err)
		}
	})
}
