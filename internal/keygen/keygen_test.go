package keygen

import (
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

func TestGenerate(t *testing.T) {
	kp, err := Generate(2048)
	require.NoError(t, err)

	block, rest := pem.Decode(kp.PrivateKeyPEM)
	require.NotNil(t, block)
	assert.Empty(t, rest)
	assert.Equal(t, "RSA PRIVATE KEY", block.Type)

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, 2048, priv.N.BitLen())

	pub, _, _, _, err := ssh.ParseAuthorizedKey(kp.PublicKey)
	require.NoError(t, err)
	assert.Equal(t, "ssh-rsa", pub.Type())

	// The two halves belong together.
	signer, err := ssh.ParsePrivateKey(kp.PrivateKeyPEM)
	require.NoError(t, err)
	assert.Equal(t, pub.Marshal(), signer.PublicKey().Marshal())
}

func TestGenerate_DefaultBits(t *testing.T) {
	kp, err := Generate(0)
	require.NoError(t, err)

	block, _ := pem.Decode(kp.PrivateKeyPEM)
	require.NotNil(t, block)
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	require.NoError(t, err)
	assert.Equal(t, DefaultBits, priv.N.BitLen())
}

func TestWritePrivateKey(t *testing.T) {
	kp, err := Generate(2048)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "keys", "deploy.pem")
	warning, err := kp.WritePrivateKey(path)
	require.NoError(t, err)
	assert.Empty(t, warning)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, kp.PrivateKeyPEM, content)
}

func TestPublicKeyIsSingleLine(t *testing.T) {
	kp, err := Generate(2048)
	require.NoError(t, err)

	line := strings.TrimSuffix(string(kp.PublicKey), "\n")
	assert.NotContains(t, line, "\n")
	assert.True(t, strings.HasPrefix(line, "ssh-rsa "))
}

func TestStore(t *testing.T) {
	s := NewStore()

	_, ok := s.Get("aws:EC2.KeyPair.deploy")
	assert.False(t, ok)

	s.Put("aws:EC2.KeyPair.deploy", []byte("pem"))
	key, ok := s.Get("aws:EC2.KeyPair.deploy")
	require.True(t, ok)
	assert.Equal(t, []byte("pem"), key)
}
