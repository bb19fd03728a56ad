// Package watch re-locks posts as they change on disk.
package watch

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/starford/postlock/internal/models"
)

// DefaultDebounce is how long the watcher waits for a burst of writes to
// settle before processing the touched posts.
const DefaultDebounce = 200 * time.Millisecond

// Processor locks a single post. *build.Builder satisfies it.
type Processor interface {
	ProcessFile(runID, rel string) models.FileResult
}

// EventCallback is called after a watcher-driven run over one post.
// kind is "created" or "updated".
type EventCallback func(kind string, res models.FileResult)

// Watcher watches the posts directory of a project.
type Watcher struct {
	proc     Processor
	root     string
	postsDir string
	logger   *slog.Logger
	debounce time.Duration
	cb       EventCallback
}

// New creates a Watcher over root/postsDir. postsDir is slash separated and
// relative to root.
func New(proc Processor, root, postsDir string, logger *slog.Logger, cb EventCallback) *Watcher {
	return &Watcher{
		proc:     proc,
		root:     root,
		postsDir: postsDir,
		logger:   logger,
		debounce: DefaultDebounce,
		cb:       cb,
	}
}

// SetDebounce overrides DefaultDebounce.
func (w *Watcher) SetDebounce(d time.Duration) { w.debounce = d }

// Run processes change events until ctx is cancelled. Posts are processed
// one at a time from the event loop. New directories created at runtime
// are added to the watch list and their posts are processed.
//
// Processing rewrites the post, which fires another event; the second
// pass finds nothing left to lock and writes nothing, so the loop settles.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Join(w.root, filepath.FromSlash(w.postsDir))
	if err := addDirsRecursive(fw, dir); err != nil {
		return err
	}

	runID := uuid.NewString()
	logger := w.logger.With(slog.String("run_id", runID))
	logger.Info("watcher: started", slog.String("dir", dir))

	// pending maps a post to the kind of its first event in the burst.
	pending := map[string]string{}
	var timer *time.Timer
	var timerCh <-chan time.Time

	schedule := func(rel, kind string) {
		if _, ok := pending[rel]; !ok {
			pending[rel] = kind
		}
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerCh = timer.C
		} else {
			timer.Reset(w.debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			w.flush(runID, pending, logger)
			pending = map[string]string{}

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(fw, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
						continue
					}
					logger.Debug("watcher: watching new dir", slog.String("path", ev.Name))
					for _, rel := range w.postsIn(ev.Name) {
						schedule(rel, "created")
					}
					continue
				}
			}

			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 || !strings.HasSuffix(ev.Name, ".md") {
				continue
			}
			rel, ok := w.relPath(ev.Name)
			if !ok {
				continue
			}
			kind := "updated"
			if ev.Op&fsnotify.Create != 0 {
				kind = "created"
			}
			schedule(rel, kind)

		case watchErr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) flush(runID string, pending map[string]string, logger *slog.Logger) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if _, err := os.Stat(filepath.Join(w.root, filepath.FromSlash(rel))); err != nil {
			continue
		}
		res := w.proc.ProcessFile(runID, rel)
		logger.Debug("watcher: processed",
			slog.String("path", rel),
			slog.String("outcome", string(res.Outcome)),
			slog.Int("links", res.Links))
		if w.cb != nil {
			w.cb(pending[rel], res)
		}
	}
}

// postsIn lists the posts under a newly created directory.
func (w *Watcher) postsIn(dir string) []string {
	var out []string
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".md") {
			return nil
		}
		if rel, ok := w.relPath(p); ok {
			out = append(out, rel)
		}
		return nil
	})
	return out
}

func (w *Watcher) relPath(abs string) (string, bool) {
	rel, err := filepath.Rel(w.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
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
