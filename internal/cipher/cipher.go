// Package cipher encrypts API key secrets at rest. Each user gets a distinct
// AES-256-GCM key derived from the deployment secret and the user id, so a
// record copied into another user's collection does not decrypt.
package cipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
)

// ErrEmptySecret is returned by New when no deployment secret is configured.
var ErrEmptySecret = errors.New("encryption secret must not be empty")

// EncryptionError wraps a failure to produce ciphertext.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string { return "encrypt api key: " + e.Err.Error() }
func (e *EncryptionError) Unwrap() error { return e.Err }

// DecryptionError wraps a failure to recover plaintext: wrong user, corrupted
// or truncated ciphertext, or an empty result.
type DecryptionError struct {
	Err error
}

func (e *DecryptionError) Error() string { return "decrypt api key: " + e.Err.Error() }
func (e *DecryptionError) Unwrap() error { return e.Err }

var errEmptyPlaintext = errors.New("empty plaintext")

// Cipher is a per-user, two-way transform of key secrets. It is safe for
// concurrent use.
type Cipher struct {
	secret string
}

// New returns a Cipher bound to secret.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &Cipher{secret: secret}, nil
}

// DeriveKey returns the AES-256 key for userID.
func (c *Cipher) DeriveKey(userID string) [32]byte {
	return sha256.Sum256([]byte(c.secret + "_" + userID))
}

// Encrypt seals plaintext for userID and returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext, userID string) (string, error) {
	aead, err := c.aead(userID)
	if err != nil {
		return "", &EncryptionError{Err: err}
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", &EncryptionError{Err: fmt.Errorf("generate nonce: %w", err)}
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a value produced by Encrypt for the same userID.
func (c *Cipher) Decrypt(ciphertext, userID string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", &DecryptionError{Err: fmt.Errorf("decode base64: %w", err)}
	}
	aead, err := c.aead(userID)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	if len(raw) < aead.NonceSize()+aead.Overhead() {
		return "", &DecryptionError{Err: errors.New("ciphertext too short")}
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", &DecryptionError{Err: err}
	}
	if len(plain) == 0 {
		return "", &DecryptionError{Err: errEmptyPlaintext}
	}
	return string(plain), nil
}

func (c *Cipher) aead(userID string) (cipher.AEAD, error) {
	key := c.DeriveKey(userID)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("create block cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
