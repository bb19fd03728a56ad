package build

import (
	"context"
	"fmt"
	"path"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/starford/postlock/internal/linklock"
)

// CopyImages replaces <public>/<posts> with a fresh copy of every image
// under the posts directory, keeping relative paths. Only the posts
// subtree of the public directory is cleaned.
func (b *Builder) CopyImages(ctx context.Context) (int, error) {
	dest := b.publicPostsDir()

	if b.store.Exists(dest) {
		b.logger.Debug("build: cleaning image dir")
		if err := b.store.RemoveAll(dest); err != nil {
			return 0, fmt.Errorf("build: clean %s: %w", dest, err)
		}
	}
	if err := b.store.MkdirAll(dest); err != nil {
		return 0, fmt.Errorf("build: create %s: %w", dest, err)
	}

	images, err := b.store.ListFiles(b.postsDir, isImageFile)
	if err != nil {
		return 0, fmt.Errorf("build: list images: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for _, src := range images {
		rel := strings.TrimPrefix(src, strings.TrimSuffix(b.postsDir, "/")+"/")
		dst := path.Join(dest, rel)
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			if err := b.store.CopyFile(src, dst); err != nil {
				return fmt.Errorf("build: copy %s: %w", src, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(images), nil
}

func isImageFile(rel string) bool {
	ext := strings.ToLower(path.Ext(rel))
	for _, e := range linklock.ImageExtensions() {
		if ext == e {
			return true
		}
	}
	return false
}
