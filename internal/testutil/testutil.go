// Package testutil provides shared test helpers for setting up projects,
// journals and encryptors.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/postlock/internal/journal"
	"github.com/starford/postlock/internal/linklock"
	"github.com/starford/postlock/internal/storage"
)

// TestPassphrase is the passphrase used by TestEncryptor.
const TestPassphrase = "test-passphrase"

// TestJournal creates a temporary SQLite journal that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "postlock-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := journal.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestProject creates a temporary project directory with a storage.FS.
func TestProject(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestKey derives a key with few iterations to keep tests fast.
func TestKey(t *testing.T) linklock.Key {
	t.Helper()
	k, err := linklock.DeriveKey(TestPassphrase, linklock.DefaultSalt, 1000)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

// TestEncryptor returns an Encryptor under TestKey.
func TestEncryptor(t *testing.T, opts ...linklock.Option) *linklock.Encryptor {
	t.Helper()
	e, err := linklock.New(TestKey(t), opts...)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

// WriteFile writes content to rel under root, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// ReadFile reads rel under root.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
