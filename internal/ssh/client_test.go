package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestClientConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  ClientConfig
		wantErr string
	}{
		{name: "password", config: ClientConfig{Username: "user", Password: "pass"}},
		{name: "key", config: ClientConfig{Username: "user", Signers: []ssh.Signer{mustGenerateKey(t)}}},
		{name: "missing username", config: ClientConfig{Password: "pass"}, wantErr: "missing username"},
		{name: "missing auth method", config: ClientConfig{Username: "user"}, wantErr: "missing password or key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatal(err)
				}
				if n := len(tt.config.AuthMethods()); n != 1 {
					t.Fatalf("expected 1 auth method, got %d", n)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestHandshakeRequiresHostKeyCallback(t *testing.T) {
	t.Parallel()

	client, server := net.Pipe()
	defer server.Close()

	_, err := Handshake(client, "example.com:22", ClientConfig{Username: "user", Password: "pass"})
	if err == nil {
		t.Fatal("expected error")
	}
	if _, err := client.Write([]byte("x")); err == nil {
		t.Fatal("expected conn to be closed")
	}
}

func TestLoadSigners(t *testing.T) {
	t.Parallel()

	signers, err := LoadSigners("")
	if err != nil || signers != nil {
		t.Fatalf("empty path: signers=%v err=%v", signers, err)
	}

	if _, err := LoadSigners(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing key file")
	}

	path := filepath.Join(t.TempDir(), "id_ed25519")
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatal(err)
	}

	signers, err = LoadSigners(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(signers) != 1 {
		t.Fatalf("expected 1 signer, got %d", len(signers))
	}
}
