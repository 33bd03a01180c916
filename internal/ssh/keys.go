package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// AgentAuthType is the --ssh-key value that selects the SSH agent.
const AgentAuthType = "agent"

// AgentAvailable reports whether SSH_AUTH_SOCK is set.
func AgentAvailable() bool {
	return os.Getenv("SSH_AUTH_SOCK") != ""
}

// AgentSigners returns every signer held by the SSH agent. The agent
// connection stays open for the life of the process.
func AgentSigners() ([]ssh.Signer, error) {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil, errors.New("SSH_AUTH_SOCK not set")
	}

	var d net.Dialer
	conn, err := d.DialContext(context.Background(), "unix", socket)
	if err != nil {
		return nil, fmt.Errorf("connecting to SSH agent: %w", err)
	}

	signers, err := agent.NewClient(conn).Signers()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("getting signers from SSH agent: %w", err)
	}
	if len(signers) == 0 {
		_ = conn.Close()
		return nil, errors.New("no keys available in SSH agent")
	}
	return signers, nil
}

// LoadPrivateKey parses an OpenSSH or PEM private key file.
func LoadPrivateKey(path string) (ssh.Signer, error) {
	keyData, err := os.ReadFile(path) //nolint:gosec // Path is from user config.
	if err != nil {
		return nil, fmt.Errorf("reading key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing key file: %w", err)
	}
	return signer, nil
}

// LoadSigners resolves keyPath: "" means no key, "agent" means the SSH agent,
// anything else is a private key file.
func LoadSigners(keyPath string) ([]ssh.Signer, error) {
	switch keyPath {
	case "":
		return nil, nil
	case AgentAuthType:
		return AgentSigners()
	default:
		signer, err := LoadPrivateKey(keyPath)
		if err != nil {
			return nil, err
		}
		return []ssh.Signer{signer}, nil
	}
}
