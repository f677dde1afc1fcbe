package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jwulff/transcribe/internal/api"
)

// Store holds the credential pair in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "transcribe", "transcribe.sqlite")
}

// Open opens (creating if needed) the database at path with WAL.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// LoadCredentials returns the persisted token and user. A missing pair is
// not an error: the token is empty and the user nil. Half a pair, or a user
// that no longer parses, is cleared and reported the same way.
func (s *Store) LoadCredentials() (string, *api.User, error) {
	rows, err := s.credentials()
	if err != nil {
		return "", nil, err
	}
	tok, hasTok := rows[KeyToken]
	raw, hasUser := rows[KeyUser]
	if !hasTok && !hasUser {
		return "", nil, nil
	}

	var user api.User
	if !hasTok || !hasUser || tok.Value == "" || json.Unmarshal([]byte(raw.Value), &user) != nil {
		if err := s.ClearCredentials(); err != nil {
			return "", nil, err
		}
		return "", nil, nil
	}
	return tok.Value, &user, nil
}

// SaveCredentials writes token and user in one transaction.
func (s *Store) SaveCredentials(token string, user api.User) error {
	if token == "" {
		return errors.New("save credentials: empty token")
	}
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	ts := unixFromTime(s.now())
	for _, kv := range [][2]string{{KeyToken, token}, {KeyUser, string(data)}} {
		if _, err := tx.Exec(`
			INSERT INTO credentials (key, value, updatedAt) VALUES (?, ?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt
		`, kv[0], kv[1], ts); err != nil {
			return fmt.Errorf("save %s: %w", kv[0], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// ClearCredentials removes both keys in one transaction.
func (s *Store) ClearCredentials() error {
	if _, err := s.db.Exec(`DELETE FROM credentials WHERE key IN (?, ?)`, KeyToken, KeyUser); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

func (s *Store) credentials() (map[string]Credential, error) {
	rows, err := s.db.Query(`
		SELECT key, value, updatedAt
		FROM credentials
		WHERE key IN (?, ?)
	`, KeyToken, KeyUser)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Credential, 2)
	for rows.Next() {
		var c Credential
		var updatedAt float64
		if err := rows.Scan(&c.Key, &c.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		c.UpdatedAt = timeFromUnix(updatedAt)
		out[c.Key] = c
	}
	return out, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
