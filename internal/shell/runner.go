// Package shell runs preset project commands such as git and npm, one at a
// time, with their output collected or streamed line by line.
package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/postlock/internal/apperr"
)

// Stream names used in Line.
const (
	Stdout = "stdout"
	Stderr = "stderr"
)

// DefaultPresets are the commands the blog workflow needs. Arguments given
// to Exec are available to the command as $1, $2 and so on.
func DefaultPresets() map[string]string {
	return map[string]string{
		"pull":              "git pull",
		"add":               "git add .",
		"commit":            `git commit -m "$1"`,
		"push":              `git push ${1:+"$1"} ${2:+"$2"}`,
		"checkout":          `git checkout "$1"`,
		"remotes":           "git remote",
		"branches":          "git branch",
		"current-branch":    "git branch --show-current",
		"credential-helper": "git config --get credential.helper",
		"install":           "npm install",
		"build":             "npm run build",
	}
}

// Line is one line of command output.
type Line struct {
	Stream string `json:"stream"`
	Text   string `json:"text"`
}

// Result is the outcome of a collected run.
type Result struct {
	Command  string        `json:"command"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
}

// Runner executes commands in a working directory. Only one command runs
// at a time; a second caller gets apperr.ErrBusy.
type Runner struct {
	dir     string
	presets map[string]string
	logger  *slog.Logger
	running atomic.Bool
}

// NewRunner creates a Runner. Nil presets means DefaultPresets.
func NewRunner(dir string, presets map[string]string, logger *slog.Logger) *Runner {
	if presets == nil {
		presets = DefaultPresets()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{dir: dir, presets: presets, logger: logger}
}

// Presets returns the preset names in sorted order.
func (r *Runner) Presets() []string {
	names := make([]string, 0, len(r.presets))
	for n := range r.presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Lookup returns the command for a preset.
func (r *Runner) Lookup(name string) (string, error) {
	cmd, ok := r.presets[name]
	if !ok {
		return "", fmt.Errorf("shell: preset %q: %w", name, apperr.ErrNotFound)
	}
	return cmd, nil
}

// Running reports whether a command is in progress.
func (r *Runner) Running() bool { return r.running.Load() }

// Run executes command and collects its output. A non-zero exit status is
// reported in Result.ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, command string, args ...string) (*Result, error) {
	var stdout, stderr bytes.Buffer
	start := time.Now()
	code, err := r.exec(ctx, command, args, &stdout, &stderr)
	if err != nil {
		return nil, err
	}
	return &Result{
		Command:  command,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: code,
		Duration: time.Since(start),
	}, nil
}

// Stream executes command and calls onLine for every output line as it is
// produced. onLine is never called concurrently.
func (r *Runner) Stream(ctx context.Context, command string, onLine func(Line), args ...string) (int, error) {
	var mu sync.Mutex
	emit := func(stream string) io.WriteCloser {
		return newLineWriter(func(text string) {
			mu.Lock()
			defer mu.Unlock()
			onLine(Line{Stream: stream, Text: text})
		})
	}
	out, errOut := emit(Stdout), emit(Stderr)
	code, err := r.exec(ctx, command, args, out, errOut)
	_ = out.Close()
	_ = errOut.Close()
	return code, err
}

// Exec streams a preset by name.
func (r *Runner) Exec(ctx context.Context, preset string, onLine func(Line), args ...string) (int, error) {
	command, err := r.Lookup(preset)
	if err != nil {
		return -1, err
	}
	return r.Stream(ctx, command, onLine, args...)
}

func (r *Runner) exec(ctx context.Context, command string, args []string, stdout, stderr io.Writer) (int, error) {
	if !r.running.CompareAndSwap(false, true) {
		return -1, fmt.Errorf("shell: %q: %w", command, apperr.ErrBusy)
	}
	defer r.running.Store(false)

	cmd := shellCommand(ctx, command, args)
	cmd.Dir = r.dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0", "PYTHONIOENCODING=utf-8")
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = time.Second

	logger := r.logger.With(slog.String("command", command))
	logger.Info("shell: running", slog.String("dir", r.dir))

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		logger.Info("shell: finished", slog.Int("exit_code", 0))
		return 0, nil
	case errors.As(err, &exitErr) && ctx.Err() == nil:
		code := exitErr.ExitCode()
		logger.Warn("shell: failed", slog.Int("exit_code", code))
		return code, nil
	case ctx.Err() != nil:
		return -1, fmt.Errorf("shell: %q: %w", command, ctx.Err())
	default:
		return -1, fmt.Errorf("shell: %q: %w", command, err)
	}
}

// lineWriter splits written bytes into lines. The trailing partial line is
// flushed on Close.
type lineWriter struct {
	buf  bytes.Buffer
	emit func(string)
}

func newLineWriter(emit func(string)) *lineWriter {
	return &lineWriter{emit: emit}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		i := bytes.IndexByte(w.buf.Bytes(), '\n')
		if i < 0 {
			return len(p), nil
		}
		line := w.buf.Next(i + 1)
		w.emit(string(bytes.TrimRight(line, "\r\n")))
	}
}

func (w *lineWriter) Close() error {
	if w.buf.Len() > 0 {
		sc := bufio.NewScanner(&w.buf)
		for sc.Scan() {
			w.emit(sc.Text())
		}
	}
	return nil
}
