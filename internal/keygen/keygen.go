// Package keygen generates RSA key pairs for SSH provisioning. Private key
// material stays in memory or on disk at caller-chosen paths; it is never
// written into state or logged.
package keygen

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/ssh"
)

const DefaultBits = 4096

// KeyPair holds an RSA key pair in ready-to-use formats.
type KeyPair struct {
	// PrivateKeyPEM is the RSA private key in PEM-encoded PKCS#1 format.
	PrivateKeyPEM []byte
	// PublicKey is the public key in OpenSSH authorized_keys format.
	PublicKey []byte
}

// Generate creates a new RSA key pair with the given bit size. A bit size
// of zero uses DefaultBits.
func Generate(bits int) (*KeyPair, error) {
	if bits == 0 {
		bits = DefaultBits
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA private key: %w", err)
	}
	if err := privateKey.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate RSA private key: %w", err)
	}

	privDER := x509.MarshalPKCS1PrivateKey(privateKey)
	privateKeyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: privDER,
	})

	publicKey, err := ssh.NewPublicKey(&privateKey.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encode SSH public key: %w", err)
	}

	return &KeyPair{
		PrivateKeyPEM: privateKeyPEM,
		PublicKey:     ssh.MarshalAuthorizedKey(publicKey),
	}, nil
}

// WritePrivateKey persists the private half to path with mode 0600. The
// key is written even when the chmod fails; the returned warning reports
// the loose permissions so the caller can surface it without aborting.
func (kp *KeyPair) WritePrivateKey(path string) (warning string, err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("failed to write private key: %w", err)
	}
	if _, err := f.Write(kp.PrivateKeyPEM); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write private key: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to write private key: %w", err)
	}

	if err := os.Chmod(path, 0o600); err != nil {
		warning = fmt.Sprintf("private key %s may have loose permissions: %v", path, err)
	}
	return warning, nil
}

// Store caches generated private keys in memory, keyed by resource
// address, so the provisioner can authenticate within the same run.
type Store struct {
	mu   sync.Mutex
	keys map[string][]byte
}

func NewStore() *Store {
	return &Store{keys: make(map[string][]byte)}
}

func (s *Store) Put(address string, privateKeyPEM []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[address] = privateKeyPEM
}

func (s *Store) Get(address string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.keys[address]
	return key, ok
}
