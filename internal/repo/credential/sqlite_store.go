package credential

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/felnan/snapfeed/internal/infra/logging"
)

// tokenKey is the fixed row key for the session token; the store is a thin
// durable map from this key to a string.
const tokenKey = "session"

// SQLiteStoreConfig holds configuration for the SQLite credential store.
type SQLiteStoreConfig struct {
	// DatabasePath is the filesystem path to the SQLite database file
	DatabasePath string `env:"DATABASE_PATH" default:"var/storage/snapfeed.db"`
}

// SQLiteStore implements Store using SQLite as the storage backend.
type SQLiteStore struct {
	db        *sql.DB
	log       logging.Logger
	writeLock *sync.Mutex // go-sqlite does not support concurrent writes
}

var _ Store = (*SQLiteStore)(nil)

// SQLiteStoreFactory creates a factory function that returns a new SQLiteStore.
// The factory function implements the StoreFactory type.
func SQLiteStoreFactory(cfg SQLiteStoreConfig) StoreFactory {
	return func() (Store, error) {
		return NewSQLiteStore(cfg)
	}
}

// NewSQLiteStore creates a new SQLiteStore with the given configuration.
// It initializes the database connection and creates the schema if needed.
// Returns an error if database connection or initialization fails.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	log := logging.GetLogger("repo.credential.sqlite_store").With(
		logging.Group("db", "path", cfg.DatabasePath),
	)

	db, err := sql.Open("sqlite", cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := initializeDB(db); err != nil {
		return nil, fmt.Errorf("initialize db: %w", err)
	}

	db.SetConnMaxLifetime(5 * time.Minute)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		log:       log,
		writeLock: new(sync.Mutex),
	}, nil
}

func initializeDB(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS credentials (
			name       TEXT    PRIMARY KEY,
			token      TEXT    NOT NULL,
			updated_at INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Get implements Store.Get using SQLite.
func (s *SQLiteStore) Get(ctx context.Context) (string, bool, error) {
	var token string

	err := s.db.QueryRowContext(ctx,
		"SELECT token FROM credentials WHERE name = ?",
		tokenKey,
	).Scan(&token)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}

		return "", false, fmt.Errorf("query credential: %w", err)
	}

	return token, true, nil
}

// Set implements Store.Set using SQLite.
func (s *SQLiteStore) Set(ctx context.Context, token string) (err error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "credential set failed", "error", err)
		} else {
			s.log.DebugContext(ctx, "credential stored")
		}
	}()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (name, token, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET token = excluded.token, updated_at = excluded.updated_at`,
		tokenKey,
		token,
		time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert credential: %w", err)
	}

	return nil
}

// Clear implements Store.Clear using SQLite.
func (s *SQLiteStore) Clear(ctx context.Context) (err error) {
	s.writeLock.Lock()
	defer s.writeLock.Unlock()

	defer func() {
		if err != nil {
			s.log.ErrorContext(ctx, "credential clear failed", "error", err)
		} else {
			s.log.DebugContext(ctx, "credential cleared")
		}
	}()

	_, err = s.db.ExecContext(ctx,
		"DELETE FROM credentials WHERE name = ?",
		tokenKey,
	)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}

	return nil
}

// Close implements Store.Close by closing the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}

	return nil
}
