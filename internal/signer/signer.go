// Package signer holds the process Ed25519 signing key used to sign
// evidence chain hashes and rule set content hashes.
//
// The private half is loaded (or generated) once at startup, lives
// only in process memory, and is zeroed on Close. The public half is
// exportable for third-party verification.
package signer

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
)

// ErrClosed is returned when signing is attempted after Close.
var ErrClosed = errors.New("signer: key has been released")

// Signer wraps an Ed25519 key pair with a precomputed hex-encoded
// public key. The zero value is unusable; construct via Generate,
// FromPrivateKey, or LoadOrGenerate.
type Signer struct {
	priv   ed25519.PrivateKey
	pub    ed25519.PublicKey
	pubHex string
	closed bool
}

// Generate creates a new Signer from cryptographically secure randomness.
func Generate() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("signer: failed to generate Ed25519 key pair: %w", err)
	}
	return &Signer{
		priv:   priv,
		pub:    pub,
		pubHex: hex.EncodeToString(pub),
	}, nil
}

// FromPrivateKey reconstructs a Signer from an existing Ed25519
// private key. The key must be 64 bytes (Go's ed25519.PrivateKey
// format which includes the public key suffix). The key bytes are
// copied so the caller's slice is not retained.
func FromPrivateKey(privateKey ed25519.PrivateKey) (*Signer, error) {
	if len(privateKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("signer: private key must be %d bytes, got %d", ed25519.PrivateKeySize, len(privateKey))
	}
	keyCopy := make(ed25519.PrivateKey, len(privateKey))
	copy(keyCopy, privateKey)
	pub := keyCopy.Public().(ed25519.PublicKey)
	return &Signer{
		priv:   keyCopy,
		pub:    pub,
		pubHex: hex.EncodeToString(pub),
	}, nil
}

// Load reads a raw 64-byte Ed25519 private key from path.
func Load(path string) (*Signer, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("signer: read key file: %w", err)
	}
	return FromPrivateKey(raw)
}

// LoadOrGenerate loads the key at path, generating and persisting a
// new one (mode 0600) if the file does not exist.
func LoadOrGenerate(path string) (*Signer, error) {
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("signer: stat key file: %w", err)
	}

	s, err := Generate()
	if err != nil {
		return nil, err
	}
	if err := s.Save(path); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Save writes the raw private key to path with owner-only permissions.
func (s *Signer) Save(path string) error {
	if s.closed {
		return ErrClosed
	}
	if err := os.WriteFile(path, s.priv, 0o600); err != nil {
		return fmt.Errorf("signer: write key file: %w", err)
	}
	return nil
}

// Sign signs message bytes and returns the hex-encoded 64-byte signature.
func (s *Signer) Sign(message []byte) (string, error) {
	if s.closed {
		return "", ErrClosed
	}
	return hex.EncodeToString(ed25519.Sign(s.priv, message)), nil
}

// PublicKey returns the public half for external verification.
func (s *Signer) PublicKey() ed25519.PublicKey {
	return s.pub
}

// PublicKeyHex returns the hex-encoded public key.
func (s *Signer) PublicKeyHex() string {
	return s.pubHex
}

// Close zeroes the private key material. The Signer is unusable for
// signing afterwards; verification remains possible via the public key.
func (s *Signer) Close() {
	for i := range s.priv {
		s.priv[i] = 0
	}
	s.closed = true
}

// Verify checks a hex-encoded signature over message against a public
// key. It is a predicate: malformed input returns false, never an error.
func Verify(pub ed25519.PublicKey, message []byte, sigHex string) bool {
	if len(pub) != ed25519.PublicKeySize {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(pub, message, sig)
}
