package vault

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(filepath.Join(dir, ".vault.key"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tests := []string{"", "hunter2", "p@ss with spaces", "пароль"}
	for _, secret := range tests {
		encrypted, err := v.Encrypt(secret)
		if err != nil {
			t.Fatalf("Encrypt(%q) error = %v", secret, err)
		}
		if encrypted == secret && secret != "" {
			t.Errorf("Encrypt(%q) returned plaintext", secret)
		}

		decrypted, err := v.Decrypt(encrypted)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if decrypted != secret {
			t.Errorf("Decrypt() = %q, want %q", decrypted, secret)
		}
	}
}

func TestKeyPersistsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, ".vault.key")

	v1, err := Open(keyPath)
	if err != nil {
		t.Fatalf("first Open() error = %v", err)
	}
	encrypted, err := v1.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	v2, err := Open(keyPath)
	if err != nil {
		t.Fatalf("second Open() error = %v", err)
	}
	decrypted, err := v2.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt() with reloaded key error = %v", err)
	}
	if decrypted != "secret" {
		t.Errorf("Decrypt() = %q, want %q", decrypted, "secret")
	}
}

func TestDecryptErrors(t *testing.T) {
	dir := t.TempDir()
	v, err := Open(filepath.Join(dir, ".vault.key"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	tests := []struct {
		name       string
		ciphertext string
		wantErr    error
	}{
		{"not base64", "!!!", ErrMalformed},
		{"too short", "YWJj", ErrMalformed},
		{"tampered", "", ErrDecrypt},
	}

	encrypted, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	// Flip a character in the sealed payload.
	tampered := []byte(encrypted)
	if tampered[len(tampered)-5] == 'A' {
		tampered[len(tampered)-5] = 'B'
	} else {
		tampered[len(tampered)-5] = 'A'
	}
	tests[2].ciphertext = string(tampered)

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Decrypt(tt.ciphertext)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decrypt(%q) error = %v, want %v", tt.ciphertext, err, tt.wantErr)
			}
		})
	}
}

func TestRejectsInvalidKeyFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, ".vault.key")
	if err := os.WriteFile(keyPath, []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(keyPath); err == nil {
		t.Error("Open() with truncated key file, want error")
	}
}
