package internal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/starford/postlock/internal/build"
	"github.com/starford/postlock/internal/bundle"
	"github.com/starford/postlock/internal/linklock"
	"github.com/starford/postlock/internal/mcpserver"
	"github.com/starford/postlock/internal/models"
	"github.com/starford/postlock/internal/postservice"
	"github.com/starford/postlock/internal/shell"
	"github.com/starford/postlock/internal/watch"
)

// Build locks links in every post and, when images is true, copies post
// images into the public directory. Per-post failures do not fail the
// call; they are listed in the report.
func Build(ctx context.Context, images bool, opts ...Option) (*build.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.wire(true, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	return c.svc.Build(ctx, postservice.BuildRequest{Force: app.force, Images: images})
}

// CopyImages copies post images without locking any link.
func CopyImages(ctx context.Context, opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return 0, err
	}
	c, err := app.wire(false, nil)
	if err != nil {
		return 0, err
	}
	defer c.Close()

	// The image copier never touches the encryptor, so no key is needed.
	return c.svc.Builder(false).CopyImages(ctx)
}

// Unlock decrypts a locked-link payload.
func Unlock(payload string, opts ...Option) (string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return "", err
	}
	key, err := app.config.Crypto.Key()
	if err != nil {
		return "", err
	}
	enc, err := linklock.New(key)
	if err != nil {
		return "", err
	}
	return enc.DecryptPayload(payload)
}

// Import extracts a zipped article bundle into a new post directory.
func Import(ctx context.Context, archivePath string, opts ...Option) (*bundle.Result, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	c, err := app.wire(false, nil)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.svc.ImportBundle(ctx, archivePath)
}

// Presets lists the configured command presets.
func Presets(opts ...Option) ([]string, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	return shell.NewRunner(app.config.Project.Root, app.config.Presets(), nil).Presets(), nil
}

// Exec runs a command preset in the project root, streaming its output.
func Exec(ctx context.Context, preset string, args []string, onLine func(shell.Line), opts ...Option) (int, error) {
	app, err := newApplication(opts)
	if err != nil {
		return -1, err
	}
	c, err := app.wire(false, nil)
	if err != nil {
		return -1, err
	}
	defer c.Close()

	res, err := c.svc.Exec(ctx, preset, args, onLine)
	if err != nil {
		return -1, err
	}
	return res.ExitCode, nil
}

// Watch locks posts as they change until interrupted.
func Watch(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.wire(true, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := watch.New(c.svc.Builder(app.force), c.store.Root(), app.config.Project.PostsDir, c.logger,
		func(kind string, res models.FileResult) {
			if res.Outcome == models.OutcomeLocked {
				c.logger.Info("post locked",
					slog.String("path", res.Path),
					slog.String("trigger", kind),
					slog.Int("links", res.Links))
			}
		})
	return w.Run(ctx)
}

// ServeMCP serves the MCP tools over stdio. Logs go to stderr.
func ServeMCP(version string, opts ...Option) error {
	opts = append(opts, WithLogOutput(os.Stderr))
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	c, err := app.wire(true, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	c.logger.Info("Starting MCP server (stdio)")
	return mcpserver.New(c.svc, version).ServeStdio()
}
