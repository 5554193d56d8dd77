// Package vault provides symmetric encryption for stored mailbox secrets.
package vault

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/nacl/secretbox"
)

const keySize = 32

var (
	// ErrMalformed is returned when a ciphertext cannot be decoded.
	ErrMalformed = errors.New("malformed ciphertext")
	// ErrDecrypt is returned when a ciphertext fails authentication.
	ErrDecrypt = errors.New("decryption failed")
)

// Vault encrypts and decrypts secrets with a locally persisted key.
type Vault struct {
	key [keySize]byte
}

// Open loads the key from keyPath, generating a new one on first use.
func Open(keyPath string) (*Vault, error) {
	raw, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		raw, err = generateKey(keyPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load vault key: %w", err)
	}
	if len(raw) != keySize {
		return nil, fmt.Errorf("vault key %s has invalid size %d", keyPath, len(raw))
	}

	v := &Vault{}
	copy(v.key[:], raw)
	return v, nil
}

func generateKey(keyPath string) ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(keyPath, key, 0600); err != nil {
		return nil, err
	}
	return key, nil
}

// Encrypt seals a plaintext secret and returns it base64-encoded.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &v.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a base64-encoded ciphertext produced by Encrypt.
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < 24 {
		return "", ErrMalformed
	}

	var nonce [24]byte
	copy(nonce[:], raw[:24])

	plaintext, ok := secretbox.Open(nil, raw[24:], &nonce, &v.key)
	if !ok {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
