package manifest

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, body := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func relPaths(m Manifest) []string {
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.RelPath
	}
	return out
}

func TestScanPaths_FilesAndDirs(t *testing.T) {
	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{
		"z.txt":            "zz",
		"docs/b.md":        "bbb",
		"docs/a.md":        "a",
		"docs/sub/c.png":   "cccc",
		"docs/.git/config": "hidden",
		"docs/.DS_Store":   "hidden",
		"other/readme.txt": "r",
	})

	m, err := ScanPaths([]string{
		filepath.Join(tmp, "z.txt"),
		filepath.Join(tmp, "docs"),
	})
	if err != nil {
		t.Fatalf("ScanPaths() error = %v", err)
	}

	want := []string{"z.txt", "docs/a.md", "docs/b.md", "docs/sub/c.png"}
	if got := relPaths(m); !reflect.DeepEqual(got, want) {
		t.Fatalf("entries = %v, want %v", got, want)
	}
	if m.TotalBytes != 2+1+3+4 {
		t.Errorf("TotalBytes = %d, want 10", m.TotalBytes)
	}
	if m.Skipped != 2 {
		t.Errorf("Skipped = %d, want 2", m.Skipped)
	}
	for _, e := range m.Entries {
		if !filepath.IsAbs(e.Path) {
			t.Errorf("path %s is not absolute", e.Path)
		}
	}
}

func TestScanPaths_Dedupe(t *testing.T) {
	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{"dir/a.txt": "a"})

	a := filepath.Join(tmp, "dir", "a.txt")
	m, err := ScanPaths([]string{a, filepath.Join(tmp, "dir"), a})
	if err != nil {
		t.Fatalf("ScanPaths() error = %v", err)
	}
	if len(m.Entries) != 1 {
		t.Fatalf("expected 1 entry, got %v", relPaths(m))
	}
	if m.Entries[0].RelPath != "a.txt" {
		t.Errorf("first mention wins, got %s", m.Entries[0].RelPath)
	}
	if got := m.Paths(); len(got) != 1 || got[0] != a {
		t.Errorf("Paths() = %v", got)
	}
}

func TestScanPaths_MissingPathKeepsRest(t *testing.T) {
	tmp := t.TempDir()
	writeTree(t, tmp, map[string]string{"ok.bin": "x"})

	m, err := ScanPaths([]string{filepath.Join(tmp, "missing.bin"), filepath.Join(tmp, "ok.bin")})
	if err == nil {
		t.Fatal("expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path does not exist") {
		t.Errorf("unexpected error %v", err)
	}
	if len(m.Entries) != 1 || m.Entries[0].RelPath != "ok.bin" {
		t.Errorf("entries = %v", relPaths(m))
	}
}

func TestScanPaths_EmptyDir(t *testing.T) {
	m, err := ScanPaths([]string{t.TempDir()})
	if err != nil {
		t.Fatalf("ScanPaths() error = %v", err)
	}
	if len(m.Entries) != 0 {
		t.Errorf("expected no entries, got %v", relPaths(m))
	}
}

func TestScanPaths_NoPaths(t *testing.T) {
	if _, err := ScanPaths(nil); err == nil {
		t.Fatal("expected error")
	}
}
