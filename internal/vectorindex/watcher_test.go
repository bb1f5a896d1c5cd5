package vectorindex

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"
)

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func TestWatcher_ExternalChangeInvalidatesCache(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	s, err := NewStore(t.TempDir(), WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Update(1, addOne(1, "original", []float32{1, 0})); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var invalidated atomic.Int64
	go s.Watch(ctx, func(id int64) { invalidated.Store(id) }) //nolint:errcheck
	time.Sleep(100 * time.Millisecond)

	// Another process rewrites the index.
	other, _ := NewStore(s.Root())
	if err := other.Update(1, addOne(2, "external", []float32{0, 1})); err != nil {
		t.Fatal(err)
	}

	eventually(t, 3*time.Second, 20*time.Millisecond, func() bool {
		return invalidated.Load() == 1
	}, "cache was not invalidated")

	ix, err := s.Load(1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ix.Len() != 2 {
		t.Errorf("len = %d, want 2 after reload", ix.Len())
	}
}

func TestWatcher_OwnWritesKeepCache(t *testing.T) {
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	_ = s.Update(1, addOne(1, "a", []float32{1}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = s.Watch(ctx, nil)
		close(done)
	}()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop after cancel")
	}
	if _, ok := s.cached(1); !ok {
		t.Error("cache should survive")
	}
}
