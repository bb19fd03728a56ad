// Package postservice coordinates the build, journal, bundle and command
// operations behind the HTTP and MCP surfaces.
package postservice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/starford/postlock/internal/apperr"
	"github.com/starford/postlock/internal/build"
	"github.com/starford/postlock/internal/bundle"
	"github.com/starford/postlock/internal/journal"
	"github.com/starford/postlock/internal/linklock"
	"github.com/starford/postlock/internal/models"
	"github.com/starford/postlock/internal/shell"
	"github.com/starford/postlock/internal/sse"
	"github.com/starford/postlock/internal/storage"
)

// Publisher receives progress events. *sse.Broker satisfies it.
type Publisher interface {
	Publish(event sse.Event)
	PublishPost(trigger string, res models.FileResult)
}

// Deps are the collaborators of a Service. Journal, Importer, Runner and
// Events are optional.
type Deps struct {
	Store        storage.Provider
	Encryptor    *linklock.Encryptor
	BuildOptions []build.Option
	Journal      *journal.DB
	Importer     *bundle.Importer
	Runner       *shell.Runner
	Events       Publisher
	Logger       *slog.Logger
}

// Service is safe for concurrent use. Only one build runs at a time.
type Service struct {
	deps     Deps
	logger   *slog.Logger
	building atomic.Bool
}

// New creates a Service.
func New(deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{deps: deps, logger: logger}
}

// BuildRequest selects what a build does.
type BuildRequest struct {
	Force  bool `json:"force"`
	Images bool `json:"images"`
}

// Build locks every post and, if requested, copies images.
func (s *Service) Build(ctx context.Context, req BuildRequest) (*build.Report, error) {
	if !s.building.CompareAndSwap(false, true) {
		return nil, fmt.Errorf("postservice: build: %w", apperr.ErrBusy)
	}
	defer s.building.Store(false)

	if s.deps.Encryptor == nil {
		return nil, errNoKey
	}
	b := s.Builder(req.Force)
	s.publish(sse.TypeBuildStarted, req)

	var report *build.Report
	var err error
	if req.Images {
		report, err = b.Build(ctx)
	} else {
		report, err = b.LockPosts(ctx)
	}
	if err != nil {
		return nil, err
	}
	s.publish(sse.TypeBuildFinished, summary(report))
	return report, nil
}

// Builder returns a Builder wired to the journal and event stream.
func (s *Service) Builder(force bool) *build.Builder {
	opts := append([]build.Option{}, s.deps.BuildOptions...)
	opts = append(opts, build.WithForce(force), build.WithLogger(s.logger))
	if s.deps.Journal != nil {
		opts = append(opts, build.WithJournal(s.deps.Journal))
	}
	if s.deps.Events != nil {
		opts = append(opts, build.WithObserver(func(res models.FileResult) {
			s.deps.Events.PublishPost("build", res)
		}))
	}
	return build.New(s.deps.Store, s.deps.Encryptor, opts...)
}

// LockText locks the links in a Markdown body without touching any file.
func (s *Service) LockText(text string) (string, int, error) {
	if s.deps.Encryptor == nil {
		return "", 0, errNoKey
	}
	return s.deps.Encryptor.Lock(text)
}

// Unlock decrypts a locked-link payload.
func (s *Service) Unlock(payload string) (string, error) {
	if s.deps.Encryptor == nil {
		return "", errNoKey
	}
	return s.deps.Encryptor.DecryptPayload(payload)
}

// ListFiles returns journal entries, optionally filtered by outcome.
func (s *Service) ListFiles(_ context.Context, outcome string, limit, offset int) ([]journal.FileRow, int, error) {
	if s.deps.Journal == nil {
		return nil, 0, errNoJournal
	}
	return s.deps.Journal.ListFiles(outcome, limit, offset)
}

// GetFile returns the journal entry of one post.
func (s *Service) GetFile(_ context.Context, path string) (*journal.FileRow, error) {
	if s.deps.Journal == nil {
		return nil, errNoJournal
	}
	return s.deps.Journal.GetFile(path)
}

// ListRuns returns the most recent build runs.
func (s *Service) ListRuns(_ context.Context, limit int) ([]journal.RunRow, error) {
	if s.deps.Journal == nil {
		return nil, errNoJournal
	}
	return s.deps.Journal.ListRuns(limit)
}

var (
	errNoJournal = fmt.Errorf("postservice: journal disabled: %w", apperr.ErrNotFound)
	errNoKey     = errors.New("postservice: no link key configured")
)

// ImportBundle extracts a zipped article bundle.
func (s *Service) ImportBundle(_ context.Context, archivePath string) (*bundle.Result, error) {
	if s.deps.Importer == nil {
		return nil, fmt.Errorf("postservice: bundle import disabled: %w", apperr.ErrNotFound)
	}
	res, err := s.deps.Importer.Import(archivePath)
	if err != nil {
		return nil, err
	}
	s.publish(sse.TypeBundleImported, res)
	return res, nil
}

// Presets lists the command presets.
func (s *Service) Presets() []string {
	if s.deps.Runner == nil {
		return nil
	}
	return s.deps.Runner.Presets()
}

// CommandResult is the collected output of a preset run.
type CommandResult struct {
	Preset   string       `json:"preset"`
	ExitCode int          `json:"exit_code"`
	Lines    []shell.Line `json:"lines"`
}

// Exec runs a preset, streaming its output to the event stream and onLine
// (if non-nil), and returns the collected lines.
func (s *Service) Exec(ctx context.Context, preset string, args []string, onLine func(shell.Line)) (*CommandResult, error) {
	if s.deps.Runner == nil {
		return nil, fmt.Errorf("postservice: commands disabled: %w", apperr.ErrNotFound)
	}
	res := &CommandResult{Preset: preset}
	code, err := s.deps.Runner.Exec(ctx, preset, func(l shell.Line) {
		res.Lines = append(res.Lines, l)
		s.publish(sse.TypeCommandLine, map[string]string{"preset": preset, "stream": l.Stream, "text": l.Text})
		if onLine != nil {
			onLine(l)
		}
	}, args...)
	if err != nil {
		return nil, err
	}
	res.ExitCode = code
	s.publish(sse.TypeCommandExit, map[string]any{"preset": preset, "exit_code": code})
	return res, nil
}

func (s *Service) publish(kind string, data any) {
	if s.deps.Events != nil {
		s.deps.Events.Publish(sse.Event{Type: kind, Data: data})
	}
}

// Summary is a build report without per-file results.
type Summary struct {
	RunID     string `json:"run_id"`
	Processed int    `json:"processed"`
	Locked    int    `json:"locked"`
	Unchanged int    `json:"unchanged"`
	Skipped   int    `json:"skipped"`
	Failed    int    `json:"failed"`
	Links     int    `json:"links"`
	Images    int    `json:"images"`
}

func summary(r *build.Report) Summary {
	return Summary{
		RunID:     r.RunID,
		Processed: r.Processed,
		Locked:    r.Locked,
		Unchanged: r.Unchanged,
		Skipped:   r.Skipped,
		Failed:    r.Failed,
		Links:     r.Links,
		Images:    r.Images,
	}
}
