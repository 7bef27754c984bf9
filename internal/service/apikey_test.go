package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zamadev/sandbox/internal/cipher"
	"github.com/zamadev/sandbox/internal/credential"
	"github.com/zamadev/sandbox/internal/metrics"
	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestKeys(t *testing.T) (*APIKeyService, *credential.Store) {
	t.Helper()
	store := credential.NewStore(storage.NewMemory(), discardLogger())
	c, err := cipher.New("test-secret")
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	return NewAPIKeyService(store, c, discardLogger(), nil), store
}

func mustCreate(t *testing.T, svc *APIKeyService, userID, name string) *model.APIKey {
	t.Helper()
	key, err := svc.CreateKey(context.Background(), model.CreateKeyInput{UserID: userID, Name: name})
	if err != nil {
		t.Fatalf("CreateKey(%s, %s): %v", userID, name, err)
	}
	return key
}

var (
	secretPattern = regexp.MustCompile(`^zk_[0-9a-f]{32}$`)
	idPattern     = regexp.MustCompile(`^key_\d+_[0-9a-z]{7}$`)
)

func TestCreateKey(t *testing.T) {
	svc, _ := newTestKeys(t)

	key := mustCreate(t, svc, "1", "Prod")

	if !secretPattern.MatchString(key.Key) {
		t.Errorf("key %q does not match zk_ + 32 hex", key.Key)
	}
	if !idPattern.MatchString(key.ID) {
		t.Errorf("id %q does not match key_<ms>_<7>", key.ID)
	}
	if key.MaskedKey != model.MaskKey(key.Key) {
		t.Errorf("masked %q, want %q", key.MaskedKey, model.MaskKey(key.Key))
	}
	if want := key.Key[:4] + strings.Repeat("*", 27) + key.Key[31:]; key.MaskedKey != want {
		t.Errorf("masked %q, want %q", key.MaskedKey, want)
	}
	if key.Status != model.KeyActive {
		t.Errorf("status %q, want active", key.Status)
	}
	if key.LastUsedAt != nil {
		t.Error("new key should have no lastUsedAt")
	}
}

func TestCreateKeyValidation(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   model.CreateKeyInput
	}{
		{"empty name", model.CreateKeyInput{UserID: "1", Name: ""}},
		{"long name", model.CreateKeyInput{UserID: "1", Name: strings.Repeat("x", 101)}},
		{"missing user", model.CreateKeyInput{Name: "Prod"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateKey(ctx, tt.in)
			var ve *model.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("got %v, want *model.ValidationError", err)
			}
		})
	}
}

func TestGetAllKeysRoundTrip(t *testing.T) {
	svc, store := newTestKeys(t)
	ctx := context.Background()

	created := mustCreate(t, svc, "1", "Prod")

	raw, _ := store.ReadAll(ctx)
	if raw.Records[0].EncryptedKey == created.Key {
		t.Fatal("secret stored in plaintext")
	}

	list, err := svc.GetAllKeys(ctx, "1")
	if err != nil {
		t.Fatalf("GetAllKeys: %v", err)
	}
	if len(list.Keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(list.Keys))
	}
	if list.Keys[0].Key != created.Key {
		t.Errorf("decrypted %q, want %q", list.Keys[0].Key, created.Key)
	}
	if !list.Keys[0].CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("createdAt %v, want %v", list.Keys[0].CreatedAt, created.CreatedAt)
	}
}

func TestGetAllKeysPartitionsByUser(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()

	mustCreate(t, svc, "1", "Mine")
	mustCreate(t, svc, "guest_id", "Theirs")
	mustCreate(t, svc, "1", "Also mine")

	list, err := svc.GetAllKeys(ctx, "1")
	if err != nil {
		t.Fatalf("GetAllKeys: %v", err)
	}
	if len(list.Keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(list.Keys))
	}
	for _, k := range list.Keys {
		if k.UserID != "1" {
			t.Errorf("leaked key of user %q", k.UserID)
		}
	}
	if list.Keys[0].Name != "Mine" || list.Keys[1].Name != "Also mine" {
		t.Errorf("keys not in stored order: %q, %q", list.Keys[0].Name, list.Keys[1].Name)
	}
}

func TestGetAllKeysIdempotent(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	mustCreate(t, svc, "1", "A")
	mustCreate(t, svc, "1", "B")

	first, _ := svc.GetAllKeys(ctx, "1")
	second, _ := svc.GetAllKeys(ctx, "1")
	if !reflect.DeepEqual(first, second) {
		t.Error("two reads without writes should be equal")
	}
}

func TestRevokeKey(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	key := mustCreate(t, svc, "1", "Prod")

	if err := svc.RevokeKey(ctx, model.KeyOperationInput{KeyID: key.ID, UserID: "1"}); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	for i := 0; i < 2; i++ {
		got, err := svc.GetKey(ctx, model.KeyOperationInput{KeyID: key.ID, UserID: "1"})
		if err != nil {
			t.Fatalf("GetKey: %v", err)
		}
		if got.Status != model.KeyRevoked {
			t.Errorf("read %d: status %q, want revoked", i, got.Status)
		}
	}
}

func TestRevokeKeyOtherUserIsNoop(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	key := mustCreate(t, svc, "1", "Prod")

	if err := svc.RevokeKey(ctx, model.KeyOperationInput{KeyID: key.ID, UserID: "guest_id"}); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	if err := svc.RevokeKey(ctx, model.KeyOperationInput{KeyID: "key_missing", UserID: "1"}); err != nil {
		t.Fatalf("RevokeKey unknown id: %v", err)
	}

	got, _ := svc.GetKey(ctx, model.KeyOperationInput{KeyID: key.ID, UserID: "1"})
	if got.Status != model.KeyActive {
		t.Errorf("status %q, another user's revoke must not apply", got.Status)
	}
}

func TestRegenerateKey(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	old := mustCreate(t, svc, "1", "Prod")

	next, err := svc.RegenerateKey(ctx, model.KeyOperationInput{KeyID: old.ID, UserID: "1"})
	if err != nil {
		t.Fatalf("RegenerateKey: %v", err)
	}
	if next.Key == old.Key {
		t.Error("regenerated key should differ")
	}
	if next.ID == old.ID {
		t.Error("regenerated key should have a new id")
	}
	if next.Name != "Prod" {
		t.Errorf("name %q, want Prod", next.Name)
	}

	list, _ := svc.GetAllKeys(ctx, "1")
	if len(list.Keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(list.Keys))
	}
	var active []model.APIKey
	for _, k := range list.Keys {
		if k.ID == old.ID && k.Status != model.KeyRevoked {
			t.Errorf("old key status %q, want revoked", k.Status)
		}
		if k.Status == model.KeyActive {
			active = append(active, k)
		}
	}
	if len(active) != 1 || active[0].MaskedKey == old.MaskedKey {
		t.Errorf("expected one active key with a new mask, got %+v", active)
	}
}

func TestRegenerateKeyOtherUser(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	key := mustCreate(t, svc, "1", "Prod")

	_, err := svc.RegenerateKey(ctx, model.KeyOperationInput{KeyID: key.ID, UserID: "guest_id"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	got, _ := svc.GetKey(ctx, model.KeyOperationInput{KeyID: key.ID, UserID: "1"})
	if got.Status != model.KeyActive {
		t.Error("another user's regenerate must not touch the key")
	}
}

func TestScenarioCreateRevokeRegenerate(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()

	key := mustCreate(t, svc, "1", "Prod")
	list, _ := svc.GetAllKeys(ctx, "1")
	if len(list.Keys) != 1 || list.Keys[0].Name != "Prod" || list.Keys[0].Status != model.KeyActive {
		t.Fatalf("unexpected list after create: %+v", list.Keys)
	}
	if list.Keys[0].MaskedKey != model.MaskKey(key.Key) {
		t.Error("mask mismatch")
	}

	op := model.KeyOperationInput{KeyID: key.ID, UserID: "1"}
	if err := svc.RevokeKey(ctx, op); err != nil {
		t.Fatalf("RevokeKey: %v", err)
	}
	list, _ = svc.GetAllKeys(ctx, "1")
	if list.Keys[0].Status != model.KeyRevoked {
		t.Fatalf("status %q, want revoked", list.Keys[0].Status)
	}

	if _, err := svc.RegenerateKey(ctx, op); !errors.Is(err, ErrKeyRevoked) {
		t.Fatalf("got %v, want ErrKeyRevoked", err)
	}
	list, _ = svc.GetAllKeys(ctx, "1")
	if len(list.Keys) != 1 {
		t.Errorf("regenerate of a revoked key produced a new key: %d keys", len(list.Keys))
	}
}

func TestCorruptCiphertextIsSkipped(t *testing.T) {
	svc, store := newTestKeys(t)
	ctx := context.Background()

	mustCreate(t, svc, "1", "Good one")
	bad := mustCreate(t, svc, "1", "Corrupted")
	mustCreate(t, svc, "1", "Good two")

	err := store.Update(ctx, func(cur credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		for i := range cur.Records {
			if cur.Records[i].ID == bad.ID {
				cur.Records[i].EncryptedKey = "bm90IGEgcmVhbCBjaXBoZXJ0ZXh0IGF0IGFsbA=="
			}
		}
		return cur.Records, nil
	})
	if err != nil {
		t.Fatalf("corrupt record: %v", err)
	}

	list, err := svc.GetAllKeys(ctx, "1")
	if err != nil {
		t.Fatalf("GetAllKeys: %v", err)
	}
	if len(list.Keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(list.Keys))
	}
	if len(list.Skipped) != 1 || list.Skipped[0].ID != bad.ID || list.Skipped[0].Index != 1 {
		t.Errorf("unexpected skipped %+v", list.Skipped)
	}
}

func TestSkippedIndexIsStoredPosition(t *testing.T) {
	kv := storage.NewMemory()
	store := credential.NewStore(kv, discardLogger())
	c, err := cipher.New("test-secret")
	if err != nil {
		t.Fatalf("cipher.New: %v", err)
	}
	svc := NewAPIKeyService(store, c, discardLogger(), nil)
	ctx := context.Background()

	mustCreate(t, svc, "1", "Good")
	bad := mustCreate(t, svc, "1", "Corrupted")
	store.Update(ctx, func(cur credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		cur.Records[1].EncryptedKey = "bm90IGEgcmVhbCBjaXBoZXJ0ZXh0IGF0IGFsbA=="
		return cur.Records, nil
	})

	// An undecodable record ahead of both shifts their stored positions.
	raw, _, err := kv.Get(ctx, credential.KeyAPIKeys)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	kv.Set(ctx, credential.KeyAPIKeys, `["junk",`+strings.TrimPrefix(raw, "["))

	list, err := svc.GetAllKeys(ctx, "1")
	if err != nil {
		t.Fatalf("GetAllKeys: %v", err)
	}
	if len(list.Keys) != 1 {
		t.Fatalf("got %d keys, want 1", len(list.Keys))
	}
	if len(list.Skipped) != 1 || list.Skipped[0].ID != bad.ID || list.Skipped[0].Index != 2 {
		t.Errorf("skipped = %+v, want %s at index 2", list.Skipped, bad.ID)
	}
}

func TestRecordFromOtherUserDoesNotDecrypt(t *testing.T) {
	svc, store := newTestKeys(t)
	ctx := context.Background()
	mustCreate(t, svc, "1", "Stolen")

	// Move the record into another user's partition.
	store.Update(ctx, func(cur credential.ReadResult) ([]model.EncryptedAPIKey, error) {
		cur.Records[0].UserID = "guest_id"
		return cur.Records, nil
	})

	list, err := svc.GetAllKeys(ctx, "guest_id")
	if err != nil {
		t.Fatalf("GetAllKeys: %v", err)
	}
	if len(list.Keys) != 0 || len(list.Skipped) != 1 {
		t.Errorf("got %d keys, %d skipped; want 0, 1", len(list.Keys), len(list.Skipped))
	}
}

func TestDeleteKey(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	a := mustCreate(t, svc, "1", "A")
	b := mustCreate(t, svc, "1", "B")

	if err := svc.DeleteKey(ctx, model.KeyOperationInput{KeyID: a.ID, UserID: "guest_id"}); err != nil {
		t.Fatalf("DeleteKey other user: %v", err)
	}
	list, _ := svc.GetAllKeys(ctx, "1")
	if len(list.Keys) != 2 {
		t.Fatal("delete by another user must be a no-op")
	}

	if err := svc.DeleteKey(ctx, model.KeyOperationInput{KeyID: a.ID, UserID: "1"}); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	list, _ = svc.GetAllKeys(ctx, "1")
	if len(list.Keys) != 1 || list.Keys[0].ID != b.ID {
		t.Errorf("unexpected keys after delete: %+v", list.Keys)
	}

	if _, err := svc.GetKey(ctx, model.KeyOperationInput{KeyID: a.ID, UserID: "1"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetKey after delete: got %v, want ErrNotFound", err)
	}
}

func TestKeyOperationInputValidation(t *testing.T) {
	svc, _ := newTestKeys(t)
	ctx := context.Background()
	var ve *model.ValidationError

	if err := svc.RevokeKey(ctx, model.KeyOperationInput{UserID: "1"}); !errors.As(err, &ve) {
		t.Errorf("RevokeKey without key id: got %v", err)
	}
	if err := svc.DeleteKey(ctx, model.KeyOperationInput{KeyID: "key_1"}); !errors.As(err, &ve) {
		t.Errorf("DeleteKey without user id: got %v", err)
	}
	if _, err := svc.GetAllKeys(ctx, ""); !errors.As(err, &ve) {
		t.Errorf("GetAllKeys without user id: got %v", err)
	}
}

func TestKeyOperationsAreCounted(t *testing.T) {
	reg := prometheus.NewRegistry()
	store := credential.NewStore(storage.NewMemory(), discardLogger())
	c, _ := cipher.New("test-secret")
	svc := NewAPIKeyService(store, c, discardLogger(), metrics.NewCollector(reg))
	ctx := context.Background()

	mustCreate(t, svc, "1", "Prod")
	svc.CreateKey(ctx, model.CreateKeyInput{UserID: "1"})

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	var total float64
	for _, mf := range mfs {
		if mf.GetName() == "sandbox_api_key_operations_total" {
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
		}
	}
	if total != 2 {
		t.Errorf("counted %v operations, want 2", total)
	}
}
