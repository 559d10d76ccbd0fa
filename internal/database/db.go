// Package database provides SQLite persistence with SQLCipher encryption.
package database

import (
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mutecomm/go-sqlcipher/v4"
)

//go:embed schema.sql
var schemaSQL string

// SchemaVersion is the version written by schema.sql
const SchemaVersion = "1"

var (
	ErrNoPath   = errors.New("database path cannot be empty")
	ErrNoKey    = errors.New("encryption key cannot be empty")
	ErrWrongKey = errors.New("database cannot be decrypted with the keyring key")
)

// DB represents the database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Config contains database configuration.
type Config struct {
	Path          string
	EncryptionKey string // SQLCipher encryption key (from the credential manager)
}

// Open opens or creates an encrypted SQLite database.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrNoPath
	}
	if cfg.EncryptionKey == "" {
		return nil, ErrNoKey
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0700); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_pragma_key=%s&_pragma_cipher_page_size=4096",
		cfg.Path, url.QueryEscape(cfg.EncryptionKey))

	conn, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// one writer; the scheduler and CLI share the handle
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn, path: cfg.Path}
	if err := db.prepare(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("open %s: %w", cfg.Path, err)
	}
	return db, nil
}

// prepare applies the schema and checks its version. SQLCipher only notices
// a wrong key on the first statement touching the file.
func (db *DB) prepare() error {
	if err := db.conn.Ping(); err != nil {
		return notADatabase(err)
	}
	if _, err := db.conn.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", notADatabase(err))
	}

	version, err := db.GetMetadata("schema_version")
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("unsupported schema version %q (want %s)", version, SchemaVersion)
	}
	return nil
}

func notADatabase(err error) error {
	if strings.Contains(err.Error(), "file is not a database") {
		return fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Transaction executes a function within a transaction.
func (db *DB) Transaction(fn func(*sql.Tx) error) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is accessible.
func (db *DB) HealthCheck() error {
	return db.conn.Ping()
}

// GetMetadata retrieves a metadata value from the database.
func (db *DB) GetMetadata(key string) (string, error) {
	var value string
	err := db.conn.QueryRow("SELECT value FROM db_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("metadata %q not found", key)
	}
	if err != nil {
		return "", fmt.Errorf("read metadata %s: %w", key, err)
	}
	return value, nil
}

// SetMetadata sets a metadata value in the database.
func (db *DB) SetMetadata(key, value string) error {
	_, err := db.conn.Exec(`
		INSERT INTO db_metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("write metadata %s: %w", key, err)
	}
	return nil
}
