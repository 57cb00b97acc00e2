// Package settings persists small namespaced key/value settings across
// power loss. The daemon uses it only for the Wi-Fi credentials.
package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// KV is one namespace of the store.
type KV interface {
	// Get returns the stored value, or def when the key is absent or unreadable.
	Get(key, def string) string
	Put(key, value string) error
}

// Store is a SQLite-backed settings store.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS settings (
	namespace  TEXT    NOT NULL,
	key        TEXT    NOT NULL,
	value      TEXT    NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (namespace, key)
);`

// Open opens (creating if needed) the settings database at path.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create settings dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	// One writer; avoids SQLITE_BUSY between HTTP handlers.
	db.SetMaxOpenConns(1)

	// Settings must survive an immediate reboot after Put.
	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=FULL;"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("settings db %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create settings schema: %w", err)
	}

	return &Store{db: db, log: log.Named("settings")}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Namespace returns the KV view for one category of settings.
func (s *Store) Namespace(name string) KV {
	return &namespace{store: s, name: name}
}

type namespace struct {
	store *Store
	name  string
}

func (n *namespace) Get(key, def string) string {
	var value string
	err := n.store.db.QueryRow(
		`SELECT value FROM settings WHERE namespace = ? AND key = ?`, n.name, key,
	).Scan(&value)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			n.store.log.Warn("read failed, using default",
				zap.String("namespace", n.name), zap.String("key", key), zap.Error(err))
		}
		return def
	}
	return value
}

func (n *namespace) Put(key, value string) error {
	_, err := n.store.db.Exec(`
		INSERT INTO settings (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		n.name, key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("write %s/%s: %w", n.name, key, err)
	}
	return nil
}
