// Package userdb provides the SQLite-backed user table with encrypted
// per-user credentials.
package userdb

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id                           INTEGER PRIMARY KEY AUTOINCREMENT,
	username                     TEXT NOT NULL UNIQUE,
	email                        TEXT NOT NULL UNIQUE,
	password_hash                TEXT NOT NULL,
	zotero_user_id_enc           TEXT NOT NULL DEFAULT '',
	zotero_api_key_enc           TEXT NOT NULL DEFAULT '',
	semantic_scholar_api_key_enc TEXT NOT NULL DEFAULT '',
	created_at                   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Cipher encrypts credential columns.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// DB wraps a sql.DB with user-specific operations.
type DB struct {
	conn   *sql.DB
	cipher Cipher
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, cipher Cipher) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("userdb: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("userdb: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("userdb: apply schema: %w", err)
	}
	return &DB{conn: conn, cipher: cipher}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Wipe drops and recreates every table.
func (db *DB) Wipe() error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("userdb: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DROP TABLE IF EXISTS users`); err != nil {
		return fmt.Errorf("userdb: drop users: %w", err)
	}
	if _, err := tx.Exec(schemaSQL); err != nil {
		return fmt.Errorf("userdb: recreate schema: %w", err)
	}
	return tx.Commit()
}
