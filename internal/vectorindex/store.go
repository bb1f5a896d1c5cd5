package vectorindex

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/starford/learnmate/internal/storage"
)

// ErrNoIndex is returned when a subject has not been indexed yet.
var ErrNoIndex = errors.New("vectorindex: subject has no index")

const (
	vecFile  = "index.vec"
	metaName = "index.json"
	dirPref  = "subject_"
)

// UpdateCallback is called after a subject's index was committed or dropped.
// count is the number of entries after the change, or -1 when dropped.
type UpdateCallback func(subjectID int64, count int)

type cached struct {
	ix  *Index
	sum string // checksum of the vector file the index was loaded from
}

// Store manages the per-subject indexes under a root directory. Mutations of
// one subject are serialized by a per-subject lock; cached indexes are never
// mutated in place.
type Store struct {
	fs     *storage.FS
	logger *slog.Logger

	mu       sync.Mutex
	locks    map[int64]*sync.Mutex
	cache    map[int64]cached
	onUpdate UpdateCallback
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l.With("component", "vectorindex") }
}

// WithUpdateCallback registers cb to be called after every commit or drop.
func WithUpdateCallback(cb UpdateCallback) StoreOption {
	return func(s *Store) { s.onUpdate = cb }
}

// NewStore opens (creating if needed) the vector store root.
func NewStore(root string, opts ...StoreOption) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("vectorindex: create root: %w", err)
	}
	fs, err := storage.NewFS(root)
	if err != nil {
		return nil, err
	}
	s := &Store{
		fs:     fs,
		logger: slog.Default().With("component", "vectorindex"),
		locks:  make(map[int64]*sync.Mutex),
		cache:  make(map[int64]cached),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute root directory.
func (s *Store) Root() string { return s.fs.Root() }

// SetUpdateCallback replaces the commit callback.
func (s *Store) SetUpdateCallback(cb UpdateCallback) {
	s.mu.Lock()
	s.onUpdate = cb
	s.mu.Unlock()
}

// Dir returns the directory name of a subject relative to the root.
func Dir(subjectID int64) string {
	return dirPref + strconv.FormatInt(subjectID, 10)
}

func subjectOf(dir string) (int64, bool) {
	if !strings.HasPrefix(dir, dirPref) {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(dir, dirPref), 10, 64)
	return id, err == nil && id > 0
}

func (s *Store) lock(subjectID int64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[subjectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[subjectID] = l
	}
	return l
}

func (s *Store) cached(subjectID int64) (cached, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cache[subjectID]
	return c, ok
}

// Exists reports whether the subject has a committed index.
func (s *Store) Exists(subjectID int64) bool {
	if _, ok := s.cached(subjectID); ok {
		return true
	}
	abs, err := s.fs.Abs(path.Join(Dir(subjectID), metaName))
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// Load returns the subject's index. The returned index is shared and must
// not be modified; use Update to change it.
func (s *Store) Load(subjectID int64) (*Index, error) {
	if c, ok := s.cached(subjectID); ok {
		return c.ix, nil
	}
	l := s.lock(subjectID)
	l.Lock()
	defer l.Unlock()
	c, err := s.loadLocked(subjectID)
	if err != nil {
		return nil, err
	}
	return c.ix, nil
}

// loadLocked reads the index from cache or disk. The subject lock must be held.
func (s *Store) loadLocked(subjectID int64) (cached, error) {
	if c, ok := s.cached(subjectID); ok {
		return c, nil
	}
	dir := Dir(subjectID)
	meta, err := s.fs.Read(path.Join(dir, metaName))
	if errors.Is(err, os.ErrNotExist) {
		return cached{}, ErrNoIndex
	}
	if err != nil {
		return cached{}, fmt.Errorf("vectorindex: subject %d: %w", subjectID, err)
	}
	vec, err := s.fs.Read(path.Join(dir, vecFile))
	if err != nil {
		return cached{}, fmt.Errorf("vectorindex: subject %d: %w", subjectID, err)
	}
	ix, sum, err := decode(vec, meta)
	if err != nil {
		return cached{}, fmt.Errorf("subject %d: %w", subjectID, err)
	}
	c := cached{ix: ix, sum: sum}
	s.mu.Lock()
	s.cache[subjectID] = c
	s.mu.Unlock()
	s.logger.Debug("index loaded", slog.Int64("subject_id", subjectID), slog.Int("entries", ix.Len()))
	return c, nil
}

// Update applies fn to a private copy of the subject's index (an empty one
// when none exists) and commits the result. fn's error aborts the update and
// leaves the stored index untouched. The vector file is written first and
// the metadata blob last, so a crash between the two is detected as a
// checksum mismatch on the next load.
func (s *Store) Update(subjectID int64, fn func(ix *Index) error) error {
	l := s.lock(subjectID)
	l.Lock()
	defer l.Unlock()

	current, err := s.loadLocked(subjectID)
	var work *Index
	switch {
	case errors.Is(err, ErrNoIndex):
		work = New()
	case err != nil:
		return err
	default:
		work = current.ix.Clone()
	}

	if err := fn(work); err != nil {
		return err
	}

	vec, meta, sum, err := encode(work)
	if err != nil {
		return err
	}
	dir := Dir(subjectID)
	if err := s.fs.Write(path.Join(dir, vecFile), vec); err != nil {
		return fmt.Errorf("vectorindex: write vectors: %w", err)
	}
	if err := s.fs.Write(path.Join(dir, metaName), meta); err != nil {
		return fmt.Errorf("vectorindex: write metadata: %w", err)
	}

	s.mu.Lock()
	s.cache[subjectID] = cached{ix: work, sum: sum}
	cb := s.onUpdate
	s.mu.Unlock()

	s.logger.Info("index committed", slog.Int64("subject_id", subjectID), slog.Int("entries", work.Len()))
	if cb != nil {
		cb(subjectID, work.Len())
	}
	return nil
}

// Search runs a similarity query against the subject's index.
func (s *Store) Search(subjectID int64, query []float32, k int) ([]Hit, error) {
	ix, err := s.Load(subjectID)
	if err != nil {
		return nil, err
	}
	return ix.Search(query, k)
}

// RemoveResource deletes a resource's chunks from its subject's index.
// A subject without an index is left alone.
func (s *Store) RemoveResource(subjectID, resourceID int64) (int, error) {
	if !s.Exists(subjectID) {
		return 0, nil
	}
	removed := 0
	err := s.Update(subjectID, func(ix *Index) error {
		removed = ix.RemoveResource(resourceID)
		if removed == 0 {
			return errNothingToDo
		}
		return nil
	})
	if errors.Is(err, errNothingToDo) {
		return 0, nil
	}
	return removed, err
}

var errNothingToDo = errors.New("nothing to do")

// Drop deletes the subject's index directory.
func (s *Store) Drop(subjectID int64) error {
	l := s.lock(subjectID)
	l.Lock()
	defer l.Unlock()

	if err := s.fs.RemoveAll(Dir(subjectID)); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.cache, subjectID)
	cb := s.onUpdate
	s.mu.Unlock()
	s.logger.Info("index dropped", slog.Int64("subject_id", subjectID))
	if cb != nil {
		cb(subjectID, -1)
	}
	return nil
}

// Invalidate forgets the cached copy of a subject's index.
func (s *Store) Invalidate(subjectID int64) {
	s.mu.Lock()
	delete(s.cache, subjectID)
	s.mu.Unlock()
}

// Subjects lists the subjects that have an index directory, in ascending order.
func (s *Store) Subjects() ([]int64, error) {
	entries, err := os.ReadDir(s.fs.Root())
	if err != nil {
		return nil, fmt.Errorf("vectorindex: list root: %w", err)
	}
	var out []int64
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if id, ok := subjectOf(e.Name()); ok {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
