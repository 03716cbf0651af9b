// Package keys owns the process signing key pair. The private key is
// generated on first run, persisted under the configuration directory, and
// immutable for the process lifetime; the matching public key is exported as
// PEM for the discovery endpoint.
package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const (
	privateDirName          = "private"
	signKeyFileName         = "sign-key.pem"
	verificationKeyFileName = "verification-key.pem"
	saltFileName            = "salt.txt"
)

// Manager holds the loaded signing key pair.
type Manager struct {
	key       *ecdsa.PrivateKey
	publicPEM string
}

// LoadOrCreate loads the signing key from configDir, generating and
// persisting a fresh P-256 key pair on first run. When generating, any stale
// verification key is removed before the new one is written so the published
// key never diverges from the signing key. All failures are startup-fatal for
// the caller.
func LoadOrCreate(configDir string) (*Manager, error) {
	privateDir := filepath.Join(configDir, privateDirName)
	if err := os.MkdirAll(privateDir, 0o700); err != nil {
		return nil, fmt.Errorf("create key directory: %w", err)
	}

	signKeyPath := filepath.Join(privateDir, signKeyFileName)
	verificationKeyPath := filepath.Join(configDir, verificationKeyFileName)

	if _, err := os.Stat(signKeyPath); os.IsNotExist(err) {
		return generate(signKeyPath, verificationKeyPath)
	} else if err != nil {
		return nil, fmt.Errorf("stat signing key: %w", err)
	}
	return load(signKeyPath)
}

func generate(signKeyPath, verificationKeyPath string) (*Manager, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}

	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encode signing key: %w", err)
	}
	privatePEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode verification key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	// A verification key from a previous key pair must not outlive it.
	_ = os.Remove(verificationKeyPath)

	if err := os.WriteFile(signKeyPath, privatePEM, 0o600); err != nil {
		return nil, fmt.Errorf("write signing key: %w", err)
	}
	if err := os.WriteFile(verificationKeyPath, publicPEM, 0o644); err != nil {
		return nil, fmt.Errorf("write verification key: %w", err)
	}

	return &Manager{key: key, publicPEM: string(publicPEM)}, nil
}

func load(signKeyPath string) (*Manager, error) {
	raw, err := os.ReadFile(signKeyPath)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil || block.Type != "EC PRIVATE KEY" {
		return nil, fmt.Errorf("signing key %s is not an EC private key PEM", signKeyPath)
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}

	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encode verification key: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER})

	return &Manager{key: key, publicPEM: string(publicPEM)}, nil
}

// PrivateKey exposes the signing key for the token signer. The key is
// read-only after load and safe for concurrent use.
func (m *Manager) PrivateKey() *ecdsa.PrivateKey {
	return m.key
}

// PublicKeyPEM returns the PEM-encoded verification key, served verbatim at
// the public key endpoint.
func (m *Manager) PublicKeyPEM() string {
	return m.publicPEM
}

// LoadOrCreateSalt provisions the process-wide password salt under the
// private configuration directory, generating a random one on first run.
func LoadOrCreateSalt(configDir string) (string, error) {
	privateDir := filepath.Join(configDir, privateDirName)
	if err := os.MkdirAll(privateDir, 0o700); err != nil {
		return "", fmt.Errorf("create salt directory: %w", err)
	}
	saltPath := filepath.Join(privateDir, saltFileName)

	raw, err := os.ReadFile(saltPath)
	if err == nil {
		return string(raw), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read salt: %w", err)
	}

	salt := uuid.NewString()
	if err := os.WriteFile(saltPath, []byte(salt), 0o600); err != nil {
		return "", fmt.Errorf("write salt: %w", err)
	}
	return salt, nil
}
