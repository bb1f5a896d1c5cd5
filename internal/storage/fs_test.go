package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempRoot(t *testing.T) *FS {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewFS(dir)
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func TestWriteAndRead(t *testing.T) {
	s := tempRoot(t)
	content := []byte("%PDF-1.4 fake")
	if err := s.Write("book.pdf", content); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("book.pdf")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q", got)
	}
}

func TestWriteCreatesSubdirs(t *testing.T) {
	s := tempRoot(t)
	if err := s.Write("subject_1/index.json", []byte("{}")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := s.Read("subject_1/index.json")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "{}" {
		t.Errorf("content = %q", got)
	}
}

func TestSave_UniqueNames(t *testing.T) {
	s := tempRoot(t)
	a, err := s.Save("notes.txt", strings.NewReader("first"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, err := s.Save("notes.txt", strings.NewReader("second"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct names, both %q", a)
	}
	if !strings.HasSuffix(a, "_notes.txt") {
		t.Errorf("name %q should keep the original base name", a)
	}
	got, _ := s.Read(b)
	if string(got) != "second" {
		t.Errorf("content = %q", got)
	}
}

func TestSave_StripsDirectories(t *testing.T) {
	s := tempRoot(t)
	name, err := s.Save("../../etc/passwd", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if strings.Contains(name, "/") || !strings.HasSuffix(name, "_passwd") {
		t.Errorf("name = %q", name)
	}
}

func TestOpen(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.txt", []byte("stream"))
	rc, err := s.Open("a.txt")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "stream" {
		t.Errorf("data = %q", data)
	}
}

func TestDelete(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("del.txt", []byte("bye"))
	if err := s.Delete("del.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Read("del.txt"); err == nil {
		t.Error("expected error reading deleted file")
	}
	if err := s.Delete("del.txt"); err != nil {
		t.Errorf("deleting a missing file should succeed, got %v", err)
	}
}

func TestRemoveAll(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("subject_3/index.vec", []byte("v"))
	_ = s.Write("subject_3/index.json", []byte("{}"))
	if err := s.RemoveAll("subject_3"); err != nil {
		t.Fatalf("RemoveAll: %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.Root(), "subject_3")); !os.IsNotExist(err) {
		t.Errorf("directory still present: %v", err)
	}
	if err := s.RemoveAll(""); err == nil {
		t.Error("expected error removing root")
	}
}

func TestList(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("a.pdf", []byte("a"))
	_ = s.Write("sub/b.txt", []byte("b"))

	items, err := s.List("")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Errorf("len = %d, want 2 (%v)", len(items), items)
	}
}

func TestTraversalBlocked(t *testing.T) {
	s := tempRoot(t)

	cases := []string{
		"../../etc/passwd",
		"../outside.txt",
		"/etc/shadow",
	}
	for _, p := range cases {
		if _, err := s.Read(p); err == nil {
			t.Errorf("expected error for path %q", p)
		}
		if err := s.Write(p, []byte("x")); err == nil {
			t.Errorf("expected error for write to %q", p)
		}
		if _, err := s.Abs(p); err == nil {
			t.Errorf("expected error resolving %q", p)
		}
	}
}

func TestAtomicWriteNoCorruption(t *testing.T) {
	s := tempRoot(t)
	_ = s.Write("atomic.txt", []byte("original content"))

	updated := []byte("updated content")
	if err := s.Write("atomic.txt", updated); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, _ := s.Read("atomic.txt")
	if string(got) != string(updated) {
		t.Errorf("expected updated content, got %q", got)
	}

	// Confirm no leftover temp files.
	matches, _ := filepath.Glob(filepath.Join(s.root, ".learnmate-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS(filepath.Join(t.TempDir(), "does-not-exist"))
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "learnmate-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestIsSavedName(t *testing.T) {
	fs := tempRoot(t)
	saved, err := fs.Save("lecture 1.pdf", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !IsSavedName(saved) {
		t.Errorf("IsSavedName(%q) = false", saved)
	}
	for _, name := range []string{
		"learnmate.db",
		"learnmate.db-wal",
		"vectorstores/subject_1/index.vec",
		"not-a-uuid-at-all-but-36-characters_x.pdf",
		"sub/" + saved,
	} {
		if IsSavedName(name) {
			t.Errorf("IsSavedName(%q) = true", name)
		}
	}
}
