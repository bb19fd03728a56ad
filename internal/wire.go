package internal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/starford/postlock/internal/allowlist"
	"github.com/starford/postlock/internal/build"
	"github.com/starford/postlock/internal/bundle"
	"github.com/starford/postlock/internal/journal"
	"github.com/starford/postlock/internal/linklock"
	"github.com/starford/postlock/internal/postservice"
	"github.com/starford/postlock/internal/shell"
	"github.com/starford/postlock/internal/storage"
)

// components are the wired collaborators shared by every command.
type components struct {
	cfg     *Config
	logger  *slog.Logger
	store   *storage.FS
	enc     *linklock.Encryptor
	journal *journal.DB
	svc     *postservice.Service
}

func newApplication(opts []Option) (*application, error) {
	app := &application{logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// wire builds the components. needKey is false for commands that never
// encrypt, so they work without a passphrase. events may be nil.
func (a *application) wire(needKey bool, events postservice.Publisher) (*components, error) {
	cfg := a.config

	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Debug("Configuration loaded",
		slog.String("project_root", cfg.Project.Root),
		slog.String("posts_dir", cfg.Project.PostsDir),
		slog.String("journal_path", cfg.Journal.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	store, err := storage.NewFS(cfg.Project.Root)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	c := &components{cfg: cfg, logger: logger, store: store}

	if needKey {
		key, err := cfg.Crypto.Key()
		if err != nil {
			return nil, err
		}
		c.enc, err = linklock.New(key, linklock.WithLabels(cfg.Lock.Label, cfg.Lock.CodeLabel))
		if err != nil {
			return nil, fmt.Errorf("init encryptor: %w", err)
		}
	}

	if cfg.Journal.Enabled() {
		p := cfg.Journal.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(cfg.Project.Root, p)
		}
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		c.journal, err = journal.Open(p)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
	}

	c.svc = postservice.New(postservice.Deps{
		Store:     store,
		Encryptor: c.enc,
		BuildOptions: []build.Option{
			build.WithAllowList(allowlist.New(cfg.AllowList)),
			build.WithWorkers(cfg.Build.Workers),
			build.WithDirs(cfg.Project.PostsDir, cfg.Project.PublicDir),
		},
		Journal:  c.journal,
		Importer: bundle.NewImporter(store, cfg.Project.PostsDir, cfg.Project.BackupDir, logger),
		Runner:   shell.NewRunner(store.Root(), cfg.Presets(), logger),
		Events:   events,
		Logger:   logger,
	})
	return c, nil
}

func (c *components) Close() error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Close()
}
