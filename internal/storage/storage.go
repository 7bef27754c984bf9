// Package storage provides the profile key-value substrate: a string-keyed,
// string-valued namespace that plays the role browser local storage plays for
// the web console. Every higher layer (credential store, session records)
// persists JSON blobs through a KV.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// KV is a single profile's key-value namespace.
type KV interface {
	// Get returns the value stored under key. ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
	// Ping checks that the substrate is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// Lister is implemented by substrates that can enumerate their entries.
// The SQL drivers do.
type Lister interface {
	List(ctx context.Context) ([]Entry, error)
}

// Config selects and configures a storage driver.
type Config struct {
	Driver    string // memory, sqlite, postgres, mysql, redis
	DSN       string // driver specific; sqlite accepts "" for in-memory
	DataDir   string // sqlite file location when DSN is empty and DataDir is set
	KeyPrefix string // redis namespace prefix
}

// Drivers lists the supported driver names.
var Drivers = []string{"memory", "sqlite", "postgres", "mysql", "redis"}

// Open creates the KV named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch cfg.Driver {
	case "memory":
		return NewMemory(), nil
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" && cfg.DataDir != "" {
			if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
				return nil, fmt.Errorf("create data dir: %w", err)
			}
			dsn = filepath.Join(cfg.DataDir, "sandbox.db")
		}
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(cfg.DSN)
	case "mysql":
		return NewMySQL(cfg.DSN)
	case "redis":
		return NewRedis(ctx, cfg.DSN, cfg.KeyPrefix)
	default:
		return nil, fmt.Errorf("unsupported storage driver %q (supported: %v)", cfg.Driver, Drivers)
	}
}
