package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"time"

	"github.com/zamadev/sandbox/internal/cipher"
	"github.com/zamadev/sandbox/internal/credential"
	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/model"
)

const (
	idAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	idRandLen  = 7
)

// KeyList is the result of a tolerant listing. Skipped holds the user's
// records that could not be decrypted, indexed by position in the stored
// collection.
type KeyList struct {
	Keys    []model.APIKey
	Skipped []model.SkippedItem
}

// APIKeyService manages the per-user lifecycle of API keys. Secrets are
// encrypted before they reach the credential store; plaintext only leaves the
// service in return values.
type APIKeyService struct {
	store   *credential.Store
	cipher  *cipher.Cipher
	logger  *slog.Logger
	metrics metrics.Recorder

	now  func() time.Time
	rand io.Reader
}

// NewAPIKeyService wires the lifecycle service. rec may be nil.
func NewAPIKeyService(store *credential.Store, c *cipher.Cipher, logger *slog.Logger, rec metrics.Recorder) *APIKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &APIKeyService{
		store:   store,
		cipher:  c,
		logger:  logger,
		metrics: rec,
		now:     time.Now,
		rand:    rand.Reader,
	}
}

// CreateKey mints a new active key for in.UserID. It is the only call that
// returns a freshly generated secret.
func (s *APIKeyService) CreateKey(ctx context.Context, in model.CreateKeyInput) (*model.APIKey, error) {
	key, err := s.createKey(ctx, in)
	s.metrics.RecordKeyOperation("create", result(err))
	return key, err
}

func (s *APIKeyService) createKey(ctx context.Context, in model.CreateKeyInput) (*model.APIKey, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	secret, err := s.generateSecret()
	if err != nil {
		return nil, err
	}
	id, err := s.generateID()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	key := model.APIKey{
		ID:        id,
		Name:      in.Name,
		Key:       secret,
		MaskedKey: model.MaskKey(secret),
		Status:    model.KeyActive,
		CreatedAt: now,
		UserID:    in.UserID,
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}

	ct, err := s.cipher.Encrypt(secret, in.UserID)
	if err != nil {
		return nil, err
	}
	rec := model.EncryptedAPIKey{
		ID:           key.ID,
		Name:         key.Name,
		EncryptedKey: ct,
		MaskedKey:    key.MaskedKey,
		Status:       key.Status,
		CreatedAt:    now.Format(time.RFC3339Nano),
		UserID:       key.UserID,
	}

	err = s.store.Update(ctx, func(cur credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		return append(cur.Records, rec), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("api key created", "key_id", key.ID, "user_id", key.UserID)
	return &key, nil
}

// GetAllKeys returns the decrypted keys of userID in stored order. Records
// that fail to decrypt are skipped and reported, never fatal.
func (s *APIKeyService) GetAllKeys(ctx context.Context, userID string) (*KeyList, error) {
	if err := model.ValidateUserID(userID); err != nil {
		return nil, err
	}

	res, err := s.store.ReadAll(ctx)
	if err != nil {
		s.metrics.RecordKeyOperation("list", "error")
		return nil, err
	}
	for range res.Skipped {
		s.metrics.RecordKeySkipped("invalid")
	}

	list := &KeyList{Keys: make([]model.APIKey, 0)}
	for i, rec := range res.Records {
		if rec.UserID != userID {
			continue
		}
		key, err := s.decryptRecord(rec)
		if err != nil {
			s.logger.Warn("skipping api key that failed to decrypt", "key_id", rec.ID, "user_id", userID, "error", err)
			s.metrics.RecordKeySkipped("decrypt")
			list.Skipped = append(list.Skipped, model.SkippedItem{Index: res.Position(i), ID: rec.ID, Reason: err.Error()})
			continue
		}
		list.Keys = append(list.Keys, *key)
	}

	s.metrics.RecordKeyOperation("list", "ok")
	return list, nil
}

// GetKey returns one decrypted key of userID.
func (s *APIKeyService) GetKey(ctx context.Context, in model.KeyOperationInput) (*model.APIKey, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	list, err := s.GetAllKeys(ctx, in.UserID)
	if err != nil {
		return nil, err
	}
	for i := range list.Keys {
		if list.Keys[i].ID == in.KeyID {
			return &list.Keys[i], nil
		}
	}
	return nil, ErrNotFound
}

// RevokeKey marks the key revoked. A key id that does not belong to
// in.UserID is left alone without error.
func (s *APIKeyService) RevokeKey(ctx context.Context, in model.KeyOperationInput) error {
	err := s.revokeKey(ctx, in)
	s.metrics.RecordKeyOperation("revoke", result(err))
	return err
}

func (s *APIKeyService) revokeKey(ctx context.Context, in model.KeyOperationInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return s.store.Update(ctx, func(cur credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		for i := range cur.Records {
			if cur.Records[i].ID == in.KeyID && cur.Records[i].UserID == in.UserID {
				cur.Records[i].Status = model.KeyRevoked
				s.logger.Info("api key revoked", "key_id", in.KeyID, "user_id", in.UserID)
			}
		}
		return cur.Records, nil
	})
}

// RegenerateKey revokes an active key and creates a replacement with the
// same name. The two steps are not atomic: if the create fails the old key
// stays revoked and the caller may create a key by name.
func (s *APIKeyService) RegenerateKey(ctx context.Context, in model.KeyOperationInput) (*model.APIKey, error) {
	key, err := s.regenerateKey(ctx, in)
	s.metrics.RecordKeyOperation("regenerate", result(err))
	return key, err
}

func (s *APIKeyService) regenerateKey(ctx context.Context, in model.KeyOperationInput) (*model.APIKey, error) {
	old, err := s.GetKey(ctx, in)
	if err != nil {
		return nil, err
	}
	if old.Status == model.KeyRevoked {
		return nil, ErrKeyRevoked
	}

	if err := s.revokeKey(ctx, in); err != nil {
		return nil, fmt.Errorf("revoke before regenerate: %w", err)
	}
	next, err := s.createKey(ctx, model.CreateKeyInput{UserID: in.UserID, Name: old.Name})
	if err != nil {
		s.logger.Error("regenerate left key revoked without replacement", "key_id", in.KeyID, "error", err)
		return nil, fmt.Errorf("create replacement key: %w", err)
	}
	return next, nil
}

// DeleteKey removes the key record entirely. No match is a no-op.
func (s *APIKeyService) DeleteKey(ctx context.Context, in model.KeyOperationInput) error {
	err := s.deleteKey(ctx, in)
	s.metrics.RecordKeyOperation("delete", result(err))
	return err
}

func (s *APIKeyService) deleteKey(ctx context.Context, in model.KeyOperationInput) error {
	if err := in.Validate(); err != nil {
		return err
	}
	return s.store.Update(ctx, func(cur credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		kept := cur.Records[:0]
		for _, rec := range cur.Records {
			if rec.ID == in.KeyID && rec.UserID == in.UserID {
				s.logger.Info("api key deleted", "key_id", in.KeyID, "user_id", in.UserID)
				continue
			}
			kept = append(kept, rec)
		}
		return kept, nil
	})
}

func (s *APIKeyService) decryptRecord(rec model.EncryptedAPIKey) (*model.APIKey, error) {
	plain, err := s.cipher.Decrypt(rec.EncryptedKey, rec.UserID)
	if err != nil {
		return nil, err
	}
	created, err := time.Parse(time.RFC3339Nano, rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}
	key := model.APIKey{
		ID:        rec.ID,
		Name:      rec.Name,
		Key:       plain,
		MaskedKey: rec.MaskedKey,
		Status:    rec.Status,
		CreatedAt: created,
		UserID:    rec.UserID,
	}
	if rec.LastUsedAt != nil {
		t, err := time.Parse(time.RFC3339Nano, *rec.LastUsedAt)
		if err != nil {
			return nil, fmt.Errorf("parse lastUsedAt: %w", err)
		}
		key.LastUsedAt = &t
	}
	if err := key.Validate(); err != nil {
		return nil, err
	}
	return &key, nil
}

// generateSecret returns "zk_" followed by 16 random bytes in hex.
func (s *APIKeyService) generateSecret() (string, error) {
	b := make([]byte, model.KeySecretHex/2)
	if _, err := io.ReadFull(s.rand, b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return model.KeyPrefix + hex.EncodeToString(b), nil
}

// generateID returns "key_<unix ms>_<7 base36 chars>".
func (s *APIKeyService) generateID() (string, error) {
	buf := make([]byte, idRandLen)
	max := big.NewInt(int64(len(idAlphabet)))
	for i := range buf {
		n, err := rand.Int(s.rand, max)
		if err != nil {
			return "", fmt.Errorf("generate key id: %w", err)
		}
		buf[i] = idAlphabet[n.Int64()]
	}
	return fmt.Sprintf("key_%d_%s", s.now().UnixMilli(), buf), nil
}

func result(err error) string {
	var ve *model.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &ve):
		return "invalid"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrKeyRevoked):
		return "revoked"
	default:
		return "error"
	}
}
