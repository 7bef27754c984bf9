// Package credential persists the profile's encrypted API key collection and
// its session records on top of a storage.KV.
package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/zamadev/sandbox/internal/model"
	"github.com/zamadev/sandbox/internal/storage"
)

// Storage keys. They match the names the web console used in local storage
// so an exported profile can be inspected side by side.
const (
	KeyAuth    = "zama_auth"
	KeyUser    = "zama_user"
	KeyAPIKeys = "zama_api_keys"
)

// PersistenceError is returned by WriteAll when a record fails validation.
// Nothing is written when it is returned.
type PersistenceError struct {
	Index int
	ID    string
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist api keys: record %d (%s): %v", e.Index, e.ID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ReadResult is the outcome of a partial-failure tolerant read.
type ReadResult struct {
	Records []model.EncryptedAPIKey
	Skipped []model.SkippedItem

	// Positions[i] is the index of Records[i] in the stored collection.
	Positions []int
}

// Position returns the stored index of Records[i].
func (r ReadResult) Position(i int) int {
	if i < len(r.Positions) {
		return r.Positions[i]
	}
	return i
}

// Store reads and writes the credential blobs of one profile.
type Store struct {
	kv     storage.KV
	logger *slog.Logger

	// mu guards every KV access and whole sequences run through Update.
	mu sync.Mutex
}

// NewStore returns a Store over kv.
func NewStore(kv storage.KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{kv: kv, logger: logger}
}

// ReadAll returns every stored key record that passes validation. Records
// that fail are reported in Skipped and logged; only substrate errors are
// returned.
func (s *Store) ReadAll(ctx context.Context) (ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readAll(ctx)
}

func (s *Store) readAll(ctx context.Context) (ReadResult, error) {
	raw, ok, err := s.kv.Get(ctx, KeyAPIKeys)
	if err != nil {
		return ReadResult{}, fmt.Errorf("read api keys: %w", err)
	}
	if !ok || raw == "" {
		return ReadResult{Records: []model.EncryptedAPIKey{}}, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.logger.Warn("stored api key collection is not a JSON array, ignoring it", "error", err)
		return ReadResult{
			Records: []model.EncryptedAPIKey{},
			Skipped: []model.SkippedItem{{Index: -1, Reason: "collection is not a JSON array: " + err.Error()}},
		}, nil
	}

	res := ReadResult{
		Records:   make([]model.EncryptedAPIKey, 0, len(items)),
		Positions: make([]int, 0, len(items)),
	}
	for i, item := range items {
		var rec model.EncryptedAPIKey
		if err := json.Unmarshal(item, &rec); err != nil {
			res.Skipped = append(res.Skipped, model.SkippedItem{Index: i, Reason: err.Error()})
			s.logger.Warn("skipping undecodable api key record", "index", i, "error", err)
			continue
		}
		if err := rec.Validate(); err != nil {
			res.Skipped = append(res.Skipped, model.SkippedItem{Index: i, ID: rec.ID, Reason: err.Error()})
			s.logger.Warn("skipping invalid api key record", "index", i, "id", rec.ID, "error", err)
			continue
		}
		res.Records = append(res.Records, rec)
		res.Positions = append(res.Positions, i)
	}
	return res, nil
}

// WriteAll replaces the stored collection with records after validating all
// of them.
func (s *Store) WriteAll(ctx context.Context, records []model.EncryptedAPIKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeAll(ctx, records)
}

func (s *Store) writeAll(ctx context.Context, records []model.EncryptedAPIKey) error {
	for i, rec := range records {
		if err := rec.Validate(); err != nil {
			return &PersistenceError{Index: i, ID: rec.ID, Err: err}
		}
	}
	if records == nil {
		records = []model.EncryptedAPIKey{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode api keys: %w", err)
	}
	if err := s.kv.Set(ctx, KeyAPIKeys, string(b)); err != nil {
		return fmt.Errorf("write api keys: %w", err)
	}
	return nil
}

// Update runs fn against the current collection and writes back whatever it
// returns, holding the store lock for the whole sequence. Returning a nil
// slice with a nil error writes an empty collection. Skipped records from the
// read are passed to fn for reporting and are not written back.
func (s *Store) Update(ctx context.Context, fn func(ReadResult) ([]model.EncryptedAPIKey, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, err := s.readAll(ctx)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return s.writeAll(ctx, next)
}

// LoadToken returns the stored session token. A missing or malformed record
// reads as absent.
func (s *Store) LoadToken(ctx context.Context) (*model.AuthToken, error) {
	var tok model.AuthToken
	ok, err := s.loadJSON(ctx, KeyAuth, &tok)
	if err != nil || !ok {
		return nil, err
	}
	if err := tok.Validate(); err != nil {
		s.logger.Warn("ignoring invalid stored session token", "error", err)
		return nil, nil
	}
	return &tok, nil
}

// LoadUser returns the stored session user. A missing or malformed record
// reads as absent.
func (s *Store) LoadUser(ctx context.Context) (*model.User, error) {
	var u model.User
	ok, err := s.loadJSON(ctx, KeyUser, &u)
	if err != nil || !ok {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		s.logger.Warn("ignoring invalid stored session user", "error", err)
		return nil, nil
	}
	return &u, nil
}

// SaveSession stores token and user together.
func (s *Store) SaveSession(ctx context.Context, tok model.AuthToken, u model.User) error {
	if err := tok.Validate(); err != nil {
		return err
	}
	if err := u.Validate(); err != nil {
		return err
	}
	if err := s.saveJSON(ctx, KeyAuth, tok); err != nil {
		return err
	}
	return s.saveJSON(ctx, KeyUser, u)
}

// SaveToken replaces the stored token and leaves the user untouched.
func (s *Store) SaveToken(ctx context.Context, tok model.AuthToken) error {
	if err := tok.Validate(); err != nil {
		return err
	}
	return s.saveJSON(ctx, KeyAuth, tok)
}

// ClearSession removes the token and user. The key collection is kept.
func (s *Store) ClearSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, KeyAuth); err != nil {
		return fmt.Errorf("clear session token: %w", err)
	}
	if err := s.kv.Delete(ctx, KeyUser); err != nil {
		return fmt.Errorf("clear session user: %w", err)
	}
	return nil
}

func (s *Store) loadJSON(ctx context.Context, key string, v interface{}) (bool, error) {
	s.mu.Lock()
	raw, ok, err := s.kv.Get(ctx, key)
	s.mu.Unlock()
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		s.logger.Warn("ignoring malformed stored record", "key", key, "error", err)
		return false, nil
	}
	return true, nil
}

func (s *Store) saveJSON(ctx context.Context, key string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// Ping checks the underlying substrate.
func (s *Store) Ping(ctx context.Context) error {
	return s.kv.Ping(ctx)
}
