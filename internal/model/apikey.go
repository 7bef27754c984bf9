package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// KeyStatus is the lifecycle state of an API key. Revocation is one-way.
type KeyStatus string

const (
	KeyActive  KeyStatus = "active"
	KeyRevoked KeyStatus = "revoked"
)

// Valid reports whether s is a known key status.
func (s KeyStatus) Valid() bool {
	return s == KeyActive || s == KeyRevoked
}

// Key format and naming limits shared by the lifecycle service and validators.
const (
	KeyPrefix     = "zk_"
	KeySecretHex  = 32 // hex characters after the prefix
	KeyNameMaxLen = 100
)

// APIKey is the decrypted view of a key. The plaintext Key is only held in
// memory; it is never persisted in this form.
type APIKey struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Key        string     `json:"key"`
	MaskedKey  string     `json:"maskedKey"`
	Status     KeyStatus  `json:"status"`
	CreatedAt  time.Time  `json:"createdAt"`
	LastUsedAt *time.Time `json:"lastUsedAt"`
	UserID     string     `json:"userId"`
}

// Validate checks a decrypted key before it is handed to a caller.
func (k APIKey) Validate() error {
	if err := validateKeyCommon(k.ID, k.Name, k.MaskedKey, k.Status, k.UserID); err != nil {
		return err
	}
	if !strings.HasPrefix(k.Key, KeyPrefix) {
		return fieldError("key", "must start with "+KeyPrefix)
	}
	if k.CreatedAt.IsZero() {
		return fieldError("createdAt", "must be set")
	}
	return nil
}

// EncryptedAPIKey is the at-rest view of a key: the secret is replaced by its
// ciphertext and dates are RFC 3339 strings.
type EncryptedAPIKey struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	EncryptedKey string    `json:"encryptedKey"`
	MaskedKey    string    `json:"maskedKey"`
	Status       KeyStatus `json:"status"`
	CreatedAt    string    `json:"createdAt"`
	LastUsedAt   *string   `json:"lastUsedAt"`
	UserID       string    `json:"userId"`
}

// Validate checks a stored record. It is applied on every read and write of
// the credential store.
func (k EncryptedAPIKey) Validate() error {
	if err := validateKeyCommon(k.ID, k.Name, k.MaskedKey, k.Status, k.UserID); err != nil {
		return err
	}
	if k.EncryptedKey == "" {
		return fieldError("encryptedKey", "must not be empty")
	}
	if _, err := time.Parse(time.RFC3339Nano, k.CreatedAt); err != nil {
		return fieldError("createdAt", "must be an RFC 3339 timestamp")
	}
	if k.LastUsedAt != nil {
		if _, err := time.Parse(time.RFC3339Nano, *k.LastUsedAt); err != nil {
			return fieldError("lastUsedAt", "must be an RFC 3339 timestamp or null")
		}
	}
	return nil
}

func validateKeyCommon(id, name, masked string, status KeyStatus, userID string) error {
	if id == "" {
		return fieldError("id", "must not be empty")
	}
	if err := validateKeyName(name); err != nil {
		return err
	}
	if masked == "" {
		return fieldError("maskedKey", "must not be empty")
	}
	if !status.Valid() {
		return fieldError("status", "must be active or revoked")
	}
	if userID == "" {
		return fieldError("userId", "must not be empty")
	}
	return nil
}

func validateKeyName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < 1 {
		return fieldError("name", "must not be empty")
	}
	if n > KeyNameMaxLen {
		return fieldError("name", "must be at most 100 characters")
	}
	return nil
}

// CreateKeyInput is the request to mint a new key for a user.
type CreateKeyInput struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
}

// Validate enforces a 1..100 character name and a non-empty user id.
func (in CreateKeyInput) Validate() error {
	if err := validateKeyName(in.Name); err != nil {
		return err
	}
	return validateUserID(in.UserID)
}

// KeyOperationInput addresses one key of one user. Both parts are required:
// a key id alone is not sufficient authorization.
type KeyOperationInput struct {
	KeyID  string `json:"keyId"`
	UserID string `json:"userId"`
}

// Validate requires both identifiers.
func (in KeyOperationInput) Validate() error {
	if in.KeyID == "" {
		return fieldError("keyId", "must not be empty")
	}
	return validateUserID(in.UserID)
}

// ValidateUserID checks a bare user id argument.
func ValidateUserID(userID string) error {
	return validateUserID(userID)
}

func validateUserID(userID string) error {
	if userID == "" {
		return fieldError("userId", "must not be empty")
	}
	return nil
}

// MaskKey returns the display projection of a secret: the first and last four
// characters with asterisks between them. Secrets of eight characters or
// fewer collapse to a fixed placeholder.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + strings.Repeat("*", len(key)-8) + key[len(key)-4:]
}
