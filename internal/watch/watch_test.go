package watch

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/postlock/internal/build"
	"github.com/starford/postlock/internal/models"
	"github.com/starford/postlock/internal/testutil"
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

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) cb(kind string, res models.FileResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+res.Path+":"+string(res.Outcome))
}

func (r *recorder) has(s string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == s {
			return true
		}
	}
	return false
}

func startWatcher(t *testing.T) (string, *recorder) {
	t.Helper()
	root, store := testutil.TestProject(t)
	testutil.WriteFile(t, root, "src/posts/.keep", "")
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	b := build.New(store, testutil.TestEncryptor(t), build.WithLogger(logger))

	rec := &recorder{}
	w := New(b, root, b.PostsDir(), logger, rec.cb)
	w.SetDebounce(50 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	time.Sleep(100 * time.Millisecond)
	return root, rec
}

func TestWatcher_NewPostLocked(t *testing.T) {
	root, rec := startWatcher(t)

	_ = os.WriteFile(filepath.Join(root, "src", "posts", "new.md"),
		[]byte("[下载](https://example.com/file.zip)\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		data, _ := os.ReadFile(filepath.Join(root, "src", "posts", "new.md"))
		return strings.Contains(string(data), "(encrypted:")
	}, "new post not locked by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		return rec.has("created:src/posts/new.md:locked")
	}, "expected created callback with locked outcome")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root, _ := startWatcher(t)

	sub := filepath.Join(root, "src", "posts", "2024", "trip")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "index.md"), []byte("see https://example.com/a\n"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		data, _ := os.ReadFile(filepath.Join(sub, "index.md"))
		return strings.Contains(string(data), "(encrypted:")
	}, "post in new subdir not locked by watcher")
}

func TestWatcher_IgnoresNonMarkdown(t *testing.T) {
	root, rec := startWatcher(t)

	p := filepath.Join(root, "src", "posts", "notes.txt")
	_ = os.WriteFile(p, []byte("https://example.com\n"), 0o644)
	time.Sleep(300 * time.Millisecond)

	data, _ := os.ReadFile(p)
	if string(data) != "https://example.com\n" {
		t.Errorf("non-markdown file changed: %q", data)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.events) != 0 {
		t.Errorf("unexpected events: %v", rec.events)
	}
}
