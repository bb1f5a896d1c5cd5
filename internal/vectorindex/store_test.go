package vectorindex

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "vectors"))
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func addOne(resourceID int64, content string, v []float32) func(*Index) error {
	return func(ix *Index) error {
		return ix.Add([]Entry{entry(resourceID, content)}, [][]float32{v})
	}
}

func TestStore_LoadMissing(t *testing.T) {
	s := testStore(t)
	if _, err := s.Load(1); !errors.Is(err, ErrNoIndex) {
		t.Errorf("err = %v, want ErrNoIndex", err)
	}
	if s.Exists(1) {
		t.Error("Exists should be false")
	}
}

func TestStore_UpdatePersists(t *testing.T) {
	s := testStore(t)
	if err := s.Update(3, addOne(10, "chunk", []float32{1, 0})); err != nil {
		t.Fatalf("Update: %v", err)
	}
	for _, name := range []string{"index.vec", "index.json"} {
		if _, err := os.Stat(filepath.Join(s.Root(), "subject_3", name)); err != nil {
			t.Errorf("%s missing: %v", name, err)
		}
	}

	// A fresh store reads the committed files from disk.
	again, err := NewStore(s.Root())
	if err != nil {
		t.Fatal(err)
	}
	ix, err := again.Load(3)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ix.Len() != 1 || ix.Entries[0].Content != "chunk" {
		t.Errorf("loaded = %+v", ix.Entries)
	}
}

func TestStore_FailedUpdateLeavesIndexUntouched(t *testing.T) {
	s := testStore(t)
	_ = s.Update(1, addOne(1, "first", []float32{1, 0}))

	boom := errors.New("embedding failed")
	err := s.Update(1, func(ix *Index) error {
		_ = ix.Add([]Entry{entry(2, "partial")}, [][]float32{{0, 1}})
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	ix, _ := s.Load(1)
	if ix.Len() != 1 {
		t.Errorf("len = %d, want 1", ix.Len())
	}

	fresh, _ := NewStore(s.Root())
	ix, _ = fresh.Load(1)
	if ix.Len() != 1 {
		t.Errorf("on-disk len = %d, want 1", ix.Len())
	}
}

func TestStore_ConcurrentUpdatesDoNotLoseWrites(t *testing.T) {
	s := testStore(t)
	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Update(1, addOne(int64(i), fmt.Sprintf("c%d", i), []float32{float32(i), 1})); err != nil {
				t.Errorf("Update %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	fresh, _ := NewStore(s.Root())
	ix, err := fresh.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ix.Len() != n {
		t.Errorf("len = %d, want %d", ix.Len(), n)
	}
}

func TestStore_CorruptFilesDetected(t *testing.T) {
	s := testStore(t)
	_ = s.Update(2, addOne(1, "a", []float32{1, 2}))
	vecPath := filepath.Join(s.Root(), "subject_2", "index.vec")
	if err := os.WriteFile(vecPath, []byte("LMVIgarbage"), 0o644); err != nil {
		t.Fatal(err)
	}

	fresh, _ := NewStore(s.Root())
	if _, err := fresh.Load(2); !errors.Is(err, ErrCorrupt) {
		t.Errorf("err = %v, want ErrCorrupt", err)
	}
}

func TestStore_SearchAndRemoveResource(t *testing.T) {
	s := testStore(t)
	_ = s.Update(1, func(ix *Index) error {
		return ix.Add(
			[]Entry{entry(1, "keep"), entry(2, "drop"), entry(2, "drop too")},
			[][]float32{{1, 0}, {0, 1}, {0.1, 1}},
		)
	})

	hits, err := s.Search(1, []float32{0, 1}, 1)
	if err != nil || len(hits) != 1 || hits[0].Content != "drop" {
		t.Fatalf("Search = %+v, %v", hits, err)
	}

	n, err := s.RemoveResource(1, 2)
	if err != nil || n != 2 {
		t.Fatalf("RemoveResource = %d, %v", n, err)
	}
	ix, _ := s.Load(1)
	if ix.Len() != 1 || ix.Entries[0].Content != "keep" {
		t.Errorf("after remove = %+v", ix.Entries)
	}

	if n, err := s.RemoveResource(99, 1); n != 0 || err != nil {
		t.Errorf("remove on missing subject = %d, %v", n, err)
	}
	if n, err := s.RemoveResource(1, 42); n != 0 || err != nil {
		t.Errorf("remove of unknown resource = %d, %v", n, err)
	}
}

func TestStore_DropAndSubjects(t *testing.T) {
	s := testStore(t)
	var mu sync.Mutex
	var events []string
	s.SetUpdateCallback(func(id int64, count int) {
		mu.Lock()
		events = append(events, fmt.Sprintf("%d:%d", id, count))
		mu.Unlock()
	})

	_ = s.Update(5, addOne(1, "a", []float32{1}))
	_ = s.Update(2, addOne(1, "a", []float32{1}))
	_ = os.MkdirAll(filepath.Join(s.Root(), "not_a_subject"), 0o755)

	ids, err := s.Subjects()
	if err != nil {
		t.Fatalf("Subjects: %v", err)
	}
	if len(ids) != 2 || ids[0] != 2 || ids[1] != 5 {
		t.Errorf("Subjects = %v", ids)
	}

	if err := s.Drop(5); err != nil {
		t.Fatalf("Drop: %v", err)
	}
	if s.Exists(5) {
		t.Error("index still exists after Drop")
	}
	if _, err := s.Load(5); !errors.Is(err, ErrNoIndex) {
		t.Errorf("Load after drop: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"5:1", "2:1", "5:-1"}
	if fmt.Sprint(events) != fmt.Sprint(want) {
		t.Errorf("events = %v, want %v", events, want)
	}
}
