// Package build drives link locking over a tree of Markdown posts and copies
// post images into the public asset directory.
package build

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/starford/postlock/internal/allowlist"
	"github.com/starford/postlock/internal/journal"
	"github.com/starford/postlock/internal/linklock"
	"github.com/starford/postlock/internal/models"
	"github.com/starford/postlock/internal/storage"
)

// Defaults mirror the blog's layout.
const (
	DefaultPostsDir  = "src/posts"
	DefaultPublicDir = "public"
)

// Observer is called after each post is processed. It may be called from
// several goroutines at once.
type Observer func(models.FileResult)

// Option is a functional option for configuring a Builder.
type Option func(*Builder)

// WithAllowList excludes matching paths from any mutation.
func WithAllowList(l *allowlist.List) Option {
	return func(b *Builder) { b.allow = l }
}

// WithJournal records runs and per-file outcomes, and lets unchanged
// posts be skipped on later runs.
func WithJournal(j journal.Store) Option {
	return func(b *Builder) { b.journal = j }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithWorkers bounds the number of posts processed concurrently.
func WithWorkers(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithForce re-processes posts even when the journal says they are unchanged.
func WithForce(force bool) Option {
	return func(b *Builder) { b.force = force }
}

// WithDirs overrides the posts and public directories (relative to the
// project root). Empty values keep the defaults.
func WithDirs(postsDir, publicDir string) Option {
	return func(b *Builder) {
		if postsDir != "" {
			b.postsDir = path.Clean(filepath.ToSlash(postsDir))
		}
		if publicDir != "" {
			b.publicDir = path.Clean(filepath.ToSlash(publicDir))
		}
	}
}

// WithObserver registers a per-file callback.
func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

// Builder runs the build steps against a project.
type Builder struct {
	store     storage.Provider
	enc       *linklock.Encryptor
	allow     *allowlist.List
	journal   journal.Store
	logger    *slog.Logger
	observer  Observer
	workers   int
	force     bool
	postsDir  string
	publicDir string
}

// New creates a Builder. store and enc are required.
func New(store storage.Provider, enc *linklock.Encryptor, opts ...Option) *Builder {
	b := &Builder{
		store:     store,
		enc:       enc,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		workers:   4,
		postsDir:  DefaultPostsDir,
		publicDir: DefaultPublicDir,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// PostsDir returns the posts directory relative to the project root.
func (b *Builder) PostsDir() string { return b.postsDir }

// Build locks links in every post and then copies post images.
func (b *Builder) Build(ctx context.Context) (*Report, error) {
	return b.run(ctx, true)
}

// LockPosts locks links in every post without touching images.
func (b *Builder) LockPosts(ctx context.Context) (*Report, error) {
	return b.run(ctx, false)
}

func (b *Builder) run(ctx context.Context, withImages bool) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: time.Now()}
	logger := b.logger.With(slog.String("run_id", report.RunID))

	if b.journal != nil {
		if err := b.journal.StartRun(report.RunID, report.StartedAt); err != nil {
			logger.Warn("build: journal start failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("build: locking links", slog.String("posts_dir", b.postsDir), slog.Int("workers", b.workers))
	if err := b.lockAll(ctx, report); err != nil {
		return nil, err
	}

	if withImages {
		logger.Info("build: copying images", slog.String("dest", b.publicPostsDir()))
		n, err := b.CopyImages(ctx)
		if err != nil {
			return nil, err
		}
		report.Images = n
	}

	report.finish()

	if b.journal != nil {
		if err := b.journal.FinishRun(report.runRow()); err != nil {
			logger.Warn("build: journal finish failed", slog.String("error", err.Error()))
		}
	}

	logger.Info("build: finished",
		slog.Int("processed", report.Processed),
		slog.Int("locked", report.Locked),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		slog.Int("links", report.Links),
		slog.Int("images", report.Images))
	for _, f := range report.Failures() {
		logger.Warn("build: file failed", slog.String("path", f.Path), slog.String("error", f.Error))
	}
	return report, nil
}

// lockAll fans posts out to a bounded worker pool. Each path is handled by
// exactly one worker, so writes never race on the same file.
func (b *Builder) lockAll(ctx context.Context, report *Report) error {
	posts, err := b.store.List(b.postsDir)
	if err != nil {
		return fmt.Errorf("build: list posts: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, p := range posts {
		rel := p.Path
		if gCtx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			res := b.ProcessFile(report.RunID, rel)
			report.add(res)
			if b.observer != nil {
				b.observer(res)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	return ctx.Err()
}

func (b *Builder) publicPostsDir() string {
	return path.Join(b.publicDir, b.postsDir)
}
