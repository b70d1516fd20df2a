package userdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"

	"github.com/starford/paperfeed/internal/apperr"
	"github.com/starford/paperfeed/internal/models"
)

// User is a row of the users table without secrets.
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Create inserts a user with a bcrypt-hashed password.
func (db *DB) Create(ctx context.Context, username, email, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("userdb: hash password: %w", err)
	}
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)`,
		username, email, string(hash))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return nil, fmt.Errorf("userdb: create %s: %w", username, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("userdb: create %s: %w", username, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("userdb: last insert id: %w", err)
	}
	return db.Get(ctx, id)
}

// Get returns a user by id.
func (db *DB) Get(ctx context.Context, id int64) (*User, error) {
	var u User
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, created_at FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("userdb: user %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("userdb: get user: %w", err)
	}
	return &u, nil
}

// Authenticate checks a username/password pair.
func (db *DB) Authenticate(ctx context.Context, username, password string) (*User, error) {
	var u User
	var hash string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, username, email, created_at, password_hash FROM users WHERE username = ?`, username,
	).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("userdb: authenticate: %w", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, apperr.ErrInvalidCredentials
	}
	return &u, nil
}

// SetCredentials encrypts and stores a user's credentials, replacing all three.
func (db *DB) SetCredentials(ctx context.Context, id int64, creds models.Credentials) error {
	uid, err := db.cipher.Encrypt(creds.ZoteroUserID)
	if err != nil {
		return fmt.Errorf("userdb: encrypt zotero user id: %w", err)
	}
	zkey, err := db.cipher.Encrypt(creds.ZoteroAPIKey)
	if err != nil {
		return fmt.Errorf("userdb: encrypt zotero api key: %w", err)
	}
	skey, err := db.cipher.Encrypt(creds.SemanticScholarAPIKey)
	if err != nil {
		return fmt.Errorf("userdb: encrypt semantic scholar api key: %w", err)
	}
	res, err := db.conn.ExecContext(ctx, `
		UPDATE users SET
			zotero_user_id_enc           = ?,
			zotero_api_key_enc           = ?,
			semantic_scholar_api_key_enc = ?
		WHERE id = ?`, uid, zkey, skey, id)
	if err != nil {
		return fmt.Errorf("userdb: set credentials: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("userdb: user %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

// Credentials returns the decrypted credentials of a user.
func (db *DB) Credentials(ctx context.Context, id int64) (models.Credentials, error) {
	var uid, zkey, skey string
	err := db.conn.QueryRowContext(ctx, `
		SELECT zotero_user_id_enc, zotero_api_key_enc, semantic_scholar_api_key_enc
		FROM users WHERE id = ?`, id,
	).Scan(&uid, &zkey, &skey)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Credentials{}, fmt.Errorf("userdb: user %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return models.Credentials{}, fmt.Errorf("userdb: get credentials: %w", err)
	}

	var creds models.Credentials
	if creds.ZoteroUserID, err = db.cipher.Decrypt(uid); err != nil {
		return models.Credentials{}, fmt.Errorf("userdb: decrypt zotero user id: %w", err)
	}
	if creds.ZoteroAPIKey, err = db.cipher.Decrypt(zkey); err != nil {
		return models.Credentials{}, fmt.Errorf("userdb: decrypt zotero api key: %w", err)
	}
	if creds.SemanticScholarAPIKey, err = db.cipher.Decrypt(skey); err != nil {
		return models.Credentials{}, fmt.Errorf("userdb: decrypt semantic scholar api key: %w", err)
	}
	return creds, nil
}
