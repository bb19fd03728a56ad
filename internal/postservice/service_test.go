package postservice

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/starford/postlock/internal/apperr"
	"github.com/starford/postlock/internal/models"
	"github.com/starford/postlock/internal/shell"
	"github.com/starford/postlock/internal/sse"
	"github.com/starford/postlock/internal/testutil"
)

type fakeEvents struct {
	mu    sync.Mutex
	types []string
	posts []string
}

func (f *fakeEvents) Publish(e sse.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, e.Type)
}

func (f *fakeEvents) PublishPost(trigger string, res models.FileResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, trigger+":"+res.Path)
}

func newService(t *testing.T) (string, *Service, *fakeEvents) {
	t.Helper()
	root, store := testutil.TestProject(t)
	ev := &fakeEvents{}
	svc := New(Deps{
		Store:     store,
		Encryptor: testutil.TestEncryptor(t),
		Journal:   testutil.TestJournal(t),
		Runner:    shell.NewRunner(root, nil, nil),
		Events:    ev,
	})
	return root, svc, ev
}

func TestBuild_PublishesProgress(t *testing.T) {
	root, svc, ev := newService(t)
	testutil.WriteFile(t, root, "src/posts/a.md", "[x](https://example.com/a)\n")

	report, err := svc.Build(context.Background(), BuildRequest{Images: true})
	if err != nil {
		t.Fatal(err)
	}
	if report.Locked != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(ev.posts) != 1 || ev.posts[0] != "build:src/posts/a.md" {
		t.Errorf("post events = %v", ev.posts)
	}
	if len(ev.types) != 2 || ev.types[0] != sse.TypeBuildStarted || ev.types[1] != sse.TypeBuildFinished {
		t.Errorf("events = %v", ev.types)
	}

	files, total, err := svc.ListFiles(context.Background(), "", 10, 0)
	if err != nil || total != 1 || files[0].Path != "src/posts/a.md" {
		t.Errorf("files = %+v, total = %d, err = %v", files, total, err)
	}
}

func TestBuild_RefusesConcurrentRun(t *testing.T) {
	_, svc, _ := newService(t)
	svc.building.Store(true)
	if _, err := svc.Build(context.Background(), BuildRequest{}); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("err = %v, want ErrBusy", err)
	}
}

func TestLockTextAndUnlock(t *testing.T) {
	_, svc, _ := newService(t)

	out, n, err := svc.LockText("[盘 提取码：ab12](https://pan.example.com/s/1)")
	if err != nil || n != 1 {
		t.Fatalf("n = %d, err = %v", n, err)
	}
	start := strings.Index(out, "(encrypted:")
	if start < 0 {
		t.Fatalf("no payload in %q", out)
	}
	payload := strings.TrimSuffix(out[start+1:], ")")
	url, err := svc.Unlock(payload)
	if err != nil || url != "https://pan.example.com/s/1" {
		t.Errorf("unlock = %q, %v", url, err)
	}
	if _, err := svc.Unlock("encrypted:AAAA"); !errors.Is(err, apperr.ErrInvalidPayload) {
		t.Errorf("err = %v, want ErrInvalidPayload", err)
	}
}

func TestOptionalDepsReportNotFound(t *testing.T) {
	_, store := testutil.TestProject(t)
	svc := New(Deps{Store: store, Encryptor: testutil.TestEncryptor(t)})

	if _, _, err := svc.ListFiles(context.Background(), "", 0, 0); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ListFiles err = %v", err)
	}
	if _, err := svc.ImportBundle(context.Background(), "x.zip"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("ImportBundle err = %v", err)
	}
	if _, err := svc.Exec(context.Background(), "pull", nil, nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("Exec err = %v", err)
	}
	if svc.Presets() != nil {
		t.Error("no presets without a runner")
	}
}

func TestExec_CollectsAndPublishes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("posix shell required")
	}
	root, store := testutil.TestProject(t)
	ev := &fakeEvents{}
	svc := New(Deps{
		Store:     store,
		Encryptor: testutil.TestEncryptor(t),
		Runner:    shell.NewRunner(root, map[string]string{"hello": `echo "hi $1"`}, nil),
		Events:    ev,
	})

	var streamed []string
	res, err := svc.Exec(context.Background(), "hello", []string{"there"}, func(l shell.Line) {
		streamed = append(streamed, l.Text)
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.ExitCode != 0 || len(res.Lines) != 1 || res.Lines[0].Text != "hi there" {
		t.Errorf("result = %+v", res)
	}
	if len(streamed) != 1 {
		t.Errorf("streamed = %v", streamed)
	}
	if len(ev.types) != 2 || ev.types[0] != sse.TypeCommandLine || ev.types[1] != sse.TypeCommandExit {
		t.Errorf("events = %v", ev.types)
	}
}
