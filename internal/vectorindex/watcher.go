package vectorindex

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/learnmate/internal/checksum"
)

// InvalidateCallback is called after the watcher dropped a cached index.
type InvalidateCallback func(subjectID int64)

// Watch follows changes under the store root until ctx is cancelled. When a
// subject's index files change on disk and no longer match the cached copy,
// the cached copy is dropped so that the next read reloads it. Writes made by
// the store itself match the cache and are ignored.
func (s *Store) Watch(ctx context.Context, cb InvalidateCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := s.fs.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	s.logger.Info("watcher: started", slog.String("root", root))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("watcher: stopped")
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.handleEvent(w, ev, cb)

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (s *Store) handleEvent(w *fsnotify.Watcher, ev fsnotify.Event, cb InvalidateCallback) {
	absPath := ev.Name
	root := s.fs.Root()

	// New subject directories are added to the watch list.
	if ev.Op&fsnotify.Create != 0 {
		if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
			if addErr := addDirsRecursive(w, absPath); addErr != nil {
				s.logger.Warn("watcher: add new dir failed",
					slog.String("path", absPath),
					slog.String("error", addErr.Error()))
			}
			return
		}
	}

	rel, err := filepath.Rel(root, absPath)
	if err != nil {
		return
	}
	dir, file := filepath.Split(rel)
	dir = filepath.Clean(dir)

	var subjectID int64
	var ok bool
	switch {
	case dir == "." && ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// The subject directory itself went away.
		subjectID, ok = subjectOf(file)
	case file == vecFile || file == metaName:
		subjectID, ok = subjectOf(dir)
	}
	if !ok {
		return
	}

	c, isCached := s.cached(subjectID)
	if !isCached {
		return
	}
	if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
		if sum, sumErr := s.diskSum(subjectID); sumErr == nil && sum == c.sum {
			return
		}
	}

	s.Invalidate(subjectID)
	s.logger.Debug("watcher: cache invalidated",
		slog.Int64("subject_id", subjectID),
		slog.String("op", ev.Op.String()))
	if cb != nil {
		cb(subjectID)
	}
}

func (s *Store) diskSum(subjectID int64) (string, error) {
	f, err := s.fs.Open(filepath.Join(Dir(subjectID), vecFile))
	if err != nil {
		return "", err
	}
	defer f.Close()
	return checksum.Reader(f)
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
