// Package identity keeps the device id and name across restarts in a small SQLite file.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

const (
	keyID   = "meem_id"
	keyName = "meem_name"

	dirPermissions    = 0o750
	connectionTimeout = 5 * time.Second
	busyTimeoutMs     = 5000
)

const schema = `CREATE TABLE IF NOT EXISTS meem_config (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
)`

type Store struct {
	db *sql.DB
}

// Open opens or creates the store at path. ":memory:" gives a throwaway store.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
			return nil, fmt.Errorf("creating state directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?_busy_timeout=%d", path, busyTimeoutMs))
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}
	db.SetMaxOpenConns(1)
	ctx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating state table: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Load returns the stored id and name. Missing values are empty.
func (s *Store) Load() (id, name string, err error) {
	if id, err = s.get(keyID); err != nil {
		return "", "", err
	}
	if name, err = s.get(keyName); err != nil {
		return "", "", err
	}
	return id, name, nil
}

// Ensure settles the device id. A configured id wins and is stored, then a stored id,
// and otherwise a new UUID is generated and stored.
func (s *Store) Ensure(configured string) (string, error) {
	if configured != "" {
		return configured, s.set(keyID, configured)
	}
	stored, err := s.get(keyID)
	if err != nil {
		return "", err
	}
	if stored != "" {
		return stored, nil
	}
	id := uuid.NewString()
	if err := s.set(keyID, id); err != nil {
		return "", err
	}
	return id, nil
}

// SetName stores the human readable device name.
func (s *Store) SetName(name string) error {
	return s.set(keyName, name)
}

func (s *Store) get(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM meem_config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return value, nil
}

func (s *Store) set(key, value string) error {
	_, err := s.db.Exec(`INSERT INTO meem_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}
