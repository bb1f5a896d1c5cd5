// Package testutil provides shared test helpers for setting up databases,
// upload directories, and vector stores.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/learnmate/internal/storage"
	"github.com/starford/learnmate/internal/store"
	"github.com/starford/learnmate/internal/vectorindex"
)

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "learnmate-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestUploads creates a temporary uploads directory with a storage.FS.
func TestUploads(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestVectors creates a vector store under a temporary directory.
func TestVectors(t *testing.T) *vectorindex.Store {
	t.Helper()
	vs, err := vectorindex.NewStore(filepath.Join(t.TempDir(), "vectors"), vectorindex.WithLogger(Logger()))
	if err != nil {
		t.Fatal(err)
	}
	return vs
}

// Logger returns a logger that discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
