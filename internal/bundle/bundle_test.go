package bundle

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/postlock/internal/apperr"
	"github.com/starford/postlock/internal/testutil"
)

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "bundle.zip")
	f, err := os.Create(p)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return p
}

var fixed = time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)

func newImporter(t *testing.T) (string, *Importer) {
	t.Helper()
	root, store := testutil.TestProject(t)
	im := NewImporter(store, "src/posts", "", nil)
	im.SetClock(func() time.Time { return fixed })
	return root, im
}

func TestImport_ExtractsAndBacksUp(t *testing.T) {
	root, im := newImporter(t)
	archive := writeZip(t, map[string]string{
		"index.md":       "# Trip\n",
		"images/pic.png": "png",
		"images/":        "",
	})

	res, err := im.Import(archive)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.ArticleDir != "src/posts/20240309140507" || res.BackupDir != "backup/20240309140507" {
		t.Errorf("result = %+v", res)
	}
	if res.Files != 2 {
		t.Errorf("files = %d, want 2", res.Files)
	}
	for _, dir := range []string{res.ArticleDir, res.BackupDir} {
		if got := testutil.ReadFile(t, root, dir+"/index.md"); got != "# Trip\n" {
			t.Errorf("%s/index.md = %q", dir, got)
		}
		if got := testutil.ReadFile(t, root, dir+"/images/pic.png"); got != "png" {
			t.Errorf("%s/images/pic.png = %q", dir, got)
		}
	}
}

func TestImport_RefusesExistingArticleDir(t *testing.T) {
	root, im := newImporter(t)
	testutil.WriteFile(t, root, "src/posts/20240309140507/index.md", "old")

	_, err := im.Import(writeZip(t, map[string]string{"index.md": "new"}))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if got := testutil.ReadFile(t, root, "src/posts/20240309140507/index.md"); got != "old" {
		t.Errorf("existing article overwritten: %q", got)
	}
}

func TestImport_RefusesExistingBackupDir(t *testing.T) {
	root, im := newImporter(t)
	testutil.WriteFile(t, root, "backup/20240309140507/index.md", "old")

	_, err := im.Import(writeZip(t, map[string]string{"index.md": "new"}))
	if !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Fatalf("err = %v, want ErrAlreadyExists", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "src", "posts", "20240309140507")); !os.IsNotExist(statErr) {
		t.Error("article dir should not be created when the backup dir is taken")
	}
}

func TestImport_InvalidZip(t *testing.T) {
	root, im := newImporter(t)
	bad := filepath.Join(t.TempDir(), "bad.zip")
	if err := os.WriteFile(bad, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := im.Import(bad); !errors.Is(err, apperr.ErrInvalidArchive) {
		t.Fatalf("err = %v, want ErrInvalidArchive", err)
	}
	if _, statErr := os.Stat(filepath.Join(root, "src", "posts", "20240309140507")); !os.IsNotExist(statErr) {
		t.Error("no article dir should remain after a failed import")
	}
}

func TestImport_ZipSlipRejected(t *testing.T) {
	root, im := newImporter(t)
	archive := writeZip(t, map[string]string{"../../escape.md": "x"})

	if _, err := im.Import(archive); err == nil {
		t.Fatal("expected zip-slip entry to be rejected")
	}
	if _, statErr := os.Stat(filepath.Join(root, "escape.md")); !os.IsNotExist(statErr) {
		t.Error("entry escaped the article dir")
	}
	if _, statErr := os.Stat(filepath.Join(root, "src", "posts", "20240309140507")); !os.IsNotExist(statErr) {
		t.Error("partial article dir should be cleaned up")
	}
}
