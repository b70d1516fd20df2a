// Package testutil provides shared test helpers for data directories,
// session stores and user databases.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/paperfeed/internal/models"
	"github.com/starford/paperfeed/internal/secret"
	"github.com/starford/paperfeed/internal/session"
	"github.com/starford/paperfeed/internal/storage"
	"github.com/starford/paperfeed/internal/userdb"
)

// Credentials is a complete set of test credentials.
var Credentials = models.Credentials{ZoteroUserID: "42", ZoteroAPIKey: "zotero-secret", SemanticScholarAPIKey: "s2-secret"}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDataDir creates a temporary data directory with a storage.FS.
func TestDataDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestSessions creates an in-memory session store and its manager.
func TestSessions(t *testing.T) *session.Manager {
	t.Helper()
	store, err := session.Open("", true, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return session.NewManager(store, "sid", false, time.Hour)
}

// TestEncryptor returns an encryptor with a fixed test secret.
func TestEncryptor(t *testing.T) *secret.Encryptor {
	t.Helper()
	enc, err := secret.NewEncryptor("test-encryption-key")
	if err != nil {
		t.Fatal(err)
	}
	return enc
}

// TestUserDB creates a temporary SQLite user database that is closed on cleanup.
func TestUserDB(t *testing.T, cipher userdb.Cipher) *userdb.DB {
	t.Helper()
	db, err := userdb.Open(filepath.Join(t.TempDir(), "users.db"), cipher)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
