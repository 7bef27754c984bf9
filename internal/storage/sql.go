package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLStore is a KV backed by a single profile_entries table in a SQL
// database. SQLite is the default; PostgreSQL and MySQL share the same
// schema with dialect-specific upserts.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
}

type dialect struct {
	name       string // sqlx driver name
	upsert     string
	migrations []string
}

var (
	sqliteDialect = dialect{
		name: "sqlite",
		upsert: `INSERT INTO profile_entries (entry_key, entry_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(entry_key) DO UPDATE SET
				entry_value = excluded.entry_value,
				updated_at = excluded.updated_at`,
		migrations: sqliteMigrations,
	}
	postgresDialect = dialect{
		name: "pgx",
		upsert: `INSERT INTO profile_entries (entry_key, entry_value, updated_at) VALUES (?, ?, ?)
			ON CONFLICT (entry_key) DO UPDATE SET
				entry_value = EXCLUDED.entry_value,
				updated_at = EXCLUDED.updated_at`,
		migrations: postgresMigrations,
	}
	mysqlDialect = dialect{
		name: "mysql",
		upsert: `INSERT INTO profile_entries (entry_key, entry_value, updated_at) VALUES (?, ?, ?)
			ON DUPLICATE KEY UPDATE
				entry_value = VALUES(entry_value),
				updated_at = VALUES(updated_at)`,
		migrations: mysqlMigrations,
	}
)

// NewSQLite opens a SQLite-backed KV at path. Pass empty string for in-memory.
func NewSQLite(path string) (*SQLStore, error) {
	dsn := ":memory:"
	if path != "" {
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite profile store: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes; one conn also keeps :memory: alive

	return newSQLStore(db, sqliteDialect)
}

// NewPostgres opens a PostgreSQL-backed KV using the pgx stdlib driver.
func NewPostgres(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres storage requires a dsn")
	}
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return newSQLStore(db, postgresDialect)
}

// NewMySQL opens a MySQL-backed KV. parseTime is required so updated_at scans
// into time.Time.
func NewMySQL(dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, errors.New("mysql storage requires a dsn")
	}
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql connect: %w", err)
	}
	return newSQLStore(db, mysqlDialect)
}

func newSQLStore(db *sqlx.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate profile store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is alive.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Get returns the value stored under key.
func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	q := s.db.Rebind("SELECT entry_value FROM profile_entries WHERE entry_key = ?")
	if err := s.db.GetContext(ctx, &value, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("get profile entry %q: %w", key, err)
	}
	return value, true, nil
}

// Set upserts value under key.
func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(s.dialect.upsert), key, value, now); err != nil {
		return fmt.Errorf("set profile entry %q: %w", key, err)
	}
	return nil
}

// Delete removes key. A missing key is not an error.
func (s *SQLStore) Delete(ctx context.Context, key string) error {
	q := s.db.Rebind("DELETE FROM profile_entries WHERE entry_key = ?")
	if _, err := s.db.ExecContext(ctx, q, key); err != nil {
		return fmt.Errorf("delete profile entry %q: %w", key, err)
	}
	return nil
}

// Entry is one row of the profile table, as listed by 'sandbox profile dump'.
type Entry struct {
	Key       string    `db:"entry_key" json:"key"`
	Value     string    `db:"entry_value" json:"value"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// List returns every entry in the profile ordered by key.
func (s *SQLStore) List(ctx context.Context) ([]Entry, error) {
	var entries []Entry
	if err := s.db.SelectContext(ctx, &entries,
		"SELECT entry_key, entry_value, updated_at FROM profile_entries ORDER BY entry_key"); err != nil {
		return nil, fmt.Errorf("list profile entries: %w", err)
	}
	return entries, nil
}
