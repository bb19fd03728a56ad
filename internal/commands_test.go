package internal

import (
	"archive/zip"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"testing"

	"github.com/starford/postlock/internal/apperr"
	"github.com/starford/postlock/internal/shell"
	"github.com/starford/postlock/internal/testutil"
)

func testConfig(t *testing.T) (*Config, string) {
	t.Helper()
	root, _ := testutil.TestProject(t)
	cfg := NewDefaultConfig()
	cfg.Project.Root = root
	cfg.Crypto.Passphrase = testutil.TestPassphrase
	cfg.Crypto.Iterations = 1000
	cfg.AllowList = []string{"src/posts/aboutme/"}
	return cfg, root
}

func opts(cfg *Config, extra ...Option) []Option {
	return append([]Option{WithConfig(cfg), WithLogOutput(io.Discard)}, extra...)
}

var payloadRe = regexp.MustCompile(`\((encrypted:[^)]+)\)`)

func TestBuild_EndToEnd(t *testing.T) {
	cfg, root := testConfig(t)
	post := "---\ntitle: T\n---\n[网盘 提取码：q1w2](https://pan.example.com/s/abc)\n![](cover.webp)\n"
	testutil.WriteFile(t, root, "src/posts/t/index.md", post)
	testutil.WriteFile(t, root, "src/posts/t/cover.webp", "img")
	testutil.WriteFile(t, root, "src/posts/aboutme/index.md", post)

	report, err := Build(context.Background(), true, opts(cfg)...)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Locked != 1 || report.Skipped != 1 || report.Images != 1 {
		t.Errorf("report = %+v", report)
	}
	if testutil.ReadFile(t, root, "src/posts/aboutme/index.md") != post {
		t.Error("allow-listed post changed")
	}
	if _, err := os.Stat(filepath.Join(root, ".postlock", "journal.db")); err != nil {
		t.Errorf("journal not created: %v", err)
	}

	locked := testutil.ReadFile(t, root, "src/posts/t/index.md")
	m := payloadRe.FindStringSubmatch(locked)
	if m == nil {
		t.Fatalf("no payload in %q", locked)
	}
	url, err := Unlock(m[1], opts(cfg)...)
	if err != nil || url != "https://pan.example.com/s/abc" {
		t.Errorf("Unlock = %q, %v", url, err)
	}

	again, err := Build(context.Background(), false, opts(cfg)...)
	if err != nil {
		t.Fatal(err)
	}
	if again.Locked != 0 || again.Unchanged != 1 {
		t.Errorf("second build = %+v", again)
	}
}

func TestBuild_RequiresPassphrase(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Crypto.Passphrase = ""
	if _, err := Build(context.Background(), true, opts(cfg)...); err == nil || !strings.Contains(err.Error(), PassphraseEnv) {
		t.Errorf("err = %v", err)
	}
}

func TestCopyImages_WithoutPassphrase(t *testing.T) {
	cfg, root := testConfig(t)
	cfg.Crypto.Passphrase = ""
	testutil.WriteFile(t, root, "src/posts/a/b.gif", "gif")

	n, err := CopyImages(context.Background(), opts(cfg)...)
	if err != nil || n != 1 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
	if testutil.ReadFile(t, root, "public/src/posts/a/b.gif") != "gif" {
		t.Error("image not copied")
	}
}

func TestImport(t *testing.T) {
	cfg, root := testConfig(t)

	archive := filepath.Join(t.TempDir(), "post.zip")
	f, err := os.Create(archive)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	w, _ := zw.Create("index.md")
	_, _ = w.Write([]byte("# Hi\n"))
	_ = zw.Close()
	_ = f.Close()

	res, err := Import(context.Background(), archive, opts(cfg)...)
	if err != nil {
		t.Fatal(err)
	}
	if testutil.ReadFile(t, root, res.ArticleDir+"/index.md") != "# Hi\n" ||
		testutil.ReadFile(t, root, res.BackupDir+"/index.md") != "# Hi\n" {
		t.Errorf("import result = %+v", res)
	}
}

func TestExec(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}
	cfg, _ := testConfig(t)
	cfg.Commands = map[string]string{"where": "pwd"}

	var lines []string
	code, err := Exec(context.Background(), "where", nil, func(l shell.Line) { lines = append(lines, l.Text) }, opts(cfg)...)
	if err != nil || code != 0 || len(lines) != 1 {
		t.Fatalf("code = %d, err = %v, lines = %v", code, err, lines)
	}
	want, _ := filepath.EvalSymlinks(cfg.Project.Root)
	got, _ := filepath.EvalSymlinks(lines[0])
	if got != want {
		t.Errorf("pwd = %q, want %q", got, want)
	}

	if _, err := Exec(context.Background(), "nope", nil, nil, opts(cfg)...); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRequiresConfig(t *testing.T) {
	if _, err := Build(context.Background(), true); err == nil {
		t.Error("expected error without config")
	}
}
