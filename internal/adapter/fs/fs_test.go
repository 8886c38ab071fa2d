package fs

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestWalkerIncludesAndExcludes(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.txt"), "a")
	writeFile(t, filepath.Join(root, "docs", "b.md"), "b")
	writeFile(t, filepath.Join(root, "docs", "c.go"), "c")
	writeFile(t, filepath.Join(root, ".docchat", "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "node_modules", "pkg", "readme.md"), "skip")

	w := NewWalker(
		[]string{"**/*.pdf", "**/*.txt", "**/*.md"},
		[]string{"**/.docchat/**", "**/node_modules/**"},
	)
	files, err := w.Walk(root)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, f := range files {
		id, err := SourceID(root, f.Path)
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, id)
	}

	want := []string{"a.txt", "docs/b.md"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v, got %v", want, got)
		}
	}
}

func TestLoaderReadsText(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "notes", "sky.txt")
	writeFile(t, path, "The sky is blue.")

	doc, err := NewLoader("").Load(context.Background(), root, path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.SourceID != "notes/sky.txt" {
		t.Errorf("expected source notes/sky.txt, got %s", doc.SourceID)
	}
	if doc.Text != "The sky is blue." {
		t.Errorf("unexpected text %q", doc.Text)
	}
}

func TestLoaderPDFUsesExtractor(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "report.pdf")
	writeFile(t, path, "%PDF-1.4")

	// a fake extractor: echo the output marker to stdout
	script := filepath.Join(root, "fake-pdftotext")
	writeFile(t, script, "#!/bin/sh\necho extracted text\n")
	if err := os.Chmod(script, 0755); err != nil {
		t.Fatal(err)
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("no shell available")
	}

	doc, err := NewLoader(script).Load(context.Background(), root, path)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Text != "extracted text\n" {
		t.Errorf("unexpected text %q", doc.Text)
	}
}

func TestLoaderMissingExtractor(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "report.pdf")
	writeFile(t, path, "%PDF-1.4")

	if _, err := NewLoader("docchat-no-such-extractor").Load(context.Background(), root, path); err == nil {
		t.Error("expected error when the extractor is missing")
	}
}

func TestSourceIDOutsideRoot(t *testing.T) {
	id, err := SourceID("/srv/corpus", "/tmp/elsewhere/file.txt")
	if err != nil {
		t.Fatal(err)
	}
	if id != "file.txt" {
		t.Errorf("expected base name, got %s", id)
	}
}

func TestWatcherReportsNewFiles(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher(NewWalker([]string{"**/*.txt"}, nil), 50*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := w.Watch(ctx, root)
	if err != nil {
		t.Fatal(err)
	}

	writeFile(t, filepath.Join(root, "ignored.bin"), "x")
	target := filepath.Join(root, "new.txt")
	writeFile(t, target, "fresh")

	select {
	case batch := <-changes:
		if len(batch) != 1 || batch[0] != target {
			t.Errorf("expected [%s], got %v", target, batch)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no change reported")
	}

	cancel()
	for range changes {
	}
}
