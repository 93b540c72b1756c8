// Package auth issues and verifies the credentials approved devices use to
// open control connections, and generates the pairing codes shown to the
// operator.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// secretBytes is the size of a freshly generated secret.
const secretBytes = 32

// SecretManager loads or creates the signing secret file.
//
// The secret is a 32-byte hex string stored with 0600 permissions in a 0700
// directory. It is read once at startup and never rotated while running.
type SecretManager struct {
	path   string
	secret []byte
}

// NewSecretManager creates a manager for the secret stored at path.
// Nothing is read until EnsureSecret is called.
func NewSecretManager(path string) *SecretManager {
	return &SecretManager{path: path}
}

// EnsureSecret loads the secret from disk, generating it if the file is
// missing or empty. A file holding anything but hex is an error.
func (m *SecretManager) EnsureSecret() ([]byte, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read secret file %s: %w", m.path, err)
		}
		return m.generate()
	}

	encoded := strings.TrimSpace(string(data))
	if encoded == "" {
		return m.generate()
	}

	secret, err := hex.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("secret file %s is not hex: %w", m.path, err)
	}
	if len(secret) < 16 {
		return nil, fmt.Errorf("secret file %s holds only %d bytes", m.path, len(secret))
	}

	m.secret = secret
	log.Printf("auth: loaded signing secret from %s", m.path)
	return m.secret, nil
}

func (m *SecretManager) generate() ([]byte, error) {
	secret := make([]byte, secretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create secret directory %s: %w", dir, err)
	}
	if err := os.WriteFile(m.path, []byte(hex.EncodeToString(secret)), 0600); err != nil {
		return nil, fmt.Errorf("failed to write secret file %s: %w", m.path, err)
	}

	m.secret = secret
	log.Printf("auth: generated new signing secret at %s", m.path)
	return m.secret, nil
}

// Path returns the secret file location.
func (m *SecretManager) Path() string {
	return m.path
}

// DeriveKey expands secret into a 32-byte HMAC key bound to purpose.
func DeriveKey(secret []byte, purpose string) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, nil, []byte(purpose))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return key, nil
}
