package syllabus

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/FireFreezer630/Wisdom-Core/kernel/tool"
)

func TestFileName(t *testing.T) {
	if got := FileName("Computer  Science"); got != "computer_science_syllabus.txt" {
		t.Fatalf("unexpected file name %q", got)
	}
}

func TestGetSyllabus_RemoteCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/syllabi/physics_syllabus.txt" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("1. Mechanics\n2. Waves"))
	}))
	defer srv.Close()

	syl, err := New(Config{Source: srv.URL + "/syllabi/"})
	if err != nil {
		t.Fatal(err)
	}
	reg, err := tool.NewRegistry(tool.RegistryConfig{}, syl)
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		res := reg.Dispatch(context.Background(), ToolName, `{"subject":"Physics"}`)
		if res.Failed() {
			t.Fatal(res.Err)
		}
		if !strings.Contains(res.ModelContent(), "Mechanics") {
			t.Fatalf("unexpected output %q", res.ModelContent())
		}
		if res.Content != nil {
			t.Fatal("syllabus result should not carry UI content")
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one fetch, got %d", hits.Load())
	}
}

func TestGetSyllabus_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	syl, err := New(Config{Source: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	res := mustDispatch(t, syl, `{"subject":"Astrophysics"}`)
	if !res.Failed() || !strings.Contains(res.Summary, `syllabus file not found for subject "Astrophysics"`) {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestGetSyllabus_LocalDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "biology_syllabus.txt"), []byte("Cells"), 0o644); err != nil {
		t.Fatal(err)
	}
	syl, err := New(Config{Source: dir})
	if err != nil {
		t.Fatal(err)
	}
	res := mustDispatch(t, syl, `{"subject":"Biology"}`)
	if res.Failed() || res.ModelContent() != "Cells" {
		t.Fatalf("unexpected result %+v", res)
	}
	res = mustDispatch(t, syl, `{"subject":"Chemistry"}`)
	if !res.Failed() {
		t.Fatalf("expected not found, got %+v", res)
	}
}

func TestGetSyllabus_InvalidSubject(t *testing.T) {
	syl, err := New(Config{Source: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	for _, raw := range []string{`{"subject":""}`, `{"subject":3}`, `{}`} {
		if res := mustDispatch(t, syl, raw); !res.Failed() {
			t.Fatalf("expected failure for %s", raw)
		}
	}
}

func mustDispatch(t *testing.T, syl *Tool, raw string) *tool.Result {
	t.Helper()
	reg, err := tool.NewRegistry(tool.RegistryConfig{}, syl)
	if err != nil {
		t.Fatal(err)
	}
	return reg.Dispatch(context.Background(), ToolName, raw)
}
