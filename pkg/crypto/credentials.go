// Package crypto seals and opens tenant credential blobs.
package crypto

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/SATIVAR/SATIVAR-AI-CHAT-sub002/pkg/models"
)

var (
	// ErrMalformedBlob is returned for blobs too short to hold a nonce and tag.
	ErrMalformedBlob = errors.New("malformed credential blob")
	// ErrDecryptFailed is returned when authentication of the ciphertext fails.
	ErrDecryptFailed = errors.New("credential decryption failed")
	// ErrInvalidCredentials is returned when the plaintext is not a usable credential set.
	ErrInvalidCredentials = errors.New("invalid credential payload")
)

// Decrypter opens an encrypted credential blob.
type Decrypter interface {
	Decrypt(blob []byte) (*models.Credentials, error)
}

// KeyParams are the Argon2id parameters used to derive the sealing key.
type KeyParams struct {
	Iterations  uint32
	MemoryKiB   uint32
	Parallelism uint8
}

// DefaultKeyParams are the parameters used when none are configured.
func DefaultKeyParams() KeyParams {
	return KeyParams{Iterations: 3, MemoryKiB: 64 * 1024, Parallelism: 2}
}

// SealedBox uses XChaCha20-Poly1305. Blob layout: nonce (24 bytes) || ciphertext.
type SealedBox struct {
	key []byte
}

// NewSealedBox derives a 32-byte key from passphrase and salt with Argon2id.
func NewSealedBox(passphrase, salt string, params KeyParams) (*SealedBox, error) {
	if passphrase == "" {
		return nil, errors.New("credential passphrase is required")
	}
	if len(salt) < 8 {
		return nil, errors.New("credential salt must have at least 8 bytes")
	}
	key := argon2.IDKey([]byte(passphrase), []byte(salt), params.Iterations, params.MemoryKiB, params.Parallelism, chacha20poly1305.KeySize)
	return &SealedBox{key: key}, nil
}

// Seal encrypts credentials into a blob that Decrypt accepts.
func (b *SealedBox) Seal(creds models.Credentials) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal credentials: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Seal.
func (b *SealedBox) Decrypt(blob []byte) (*models.Credentials, error) {
	aead, err := chacha20poly1305.NewX(b.key)
	if err != nil {
		return nil, err
	}

	if len(blob) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrMalformedBlob
	}

	nonce, ciphertext := blob[:aead.NonceSize()], blob[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}

	var creds models.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if creds.Username == "" {
		return nil, fmt.Errorf("%w: username is empty", ErrInvalidCredentials)
	}

	return &creds, nil
}
