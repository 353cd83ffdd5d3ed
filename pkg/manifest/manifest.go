package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Entry is one regular file selected for upload.
type Entry struct {
	Path    string // absolute path on disk
	RelPath string // path shown to the user, forward slashes
	Size    int64
}

// Manifest is the ordered set of files a command will upload.
type Manifest struct {
	Entries    []Entry
	TotalBytes int64
	// Skipped counts hidden files and non-regular files left out of directory walks.
	Skipped int
}

// Paths returns the absolute paths of all entries in order.
func (m Manifest) Paths() []string {
	out := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		out[i] = e.Path
	}
	return out
}

// ScanPaths expands files and directories into a manifest. Files keep the
// order they were given in; each directory contributes its regular files
// sorted by relative path. A file named twice is uploaded once.
//
// Missing or unreadable paths do not stop the scan: the manifest holds
// everything that could be read and the error lists what could not.
func ScanPaths(paths []string) (Manifest, error) {
	if len(paths) == 0 {
		return Manifest{}, errors.New("no paths provided")
	}

	var m Manifest
	var scanErrors []error
	seen := make(map[string]bool)
	add := func(e Entry) {
		if seen[e.Path] {
			return
		}
		seen[e.Path] = true
		m.Entries = append(m.Entries, e)
		m.TotalBytes += e.Size
	}

	for _, path := range paths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			scanErrors = append(scanErrors, fmt.Errorf("cannot get absolute path for %s: %w", path, err))
			continue
		}
		info, err := os.Stat(absPath)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				scanErrors = append(scanErrors, fmt.Errorf("path does not exist: %s", path))
				continue
			}
			scanErrors = append(scanErrors, fmt.Errorf("cannot access path %s: %w", path, err))
			continue
		}

		if !info.IsDir() {
			if !info.Mode().IsRegular() {
				scanErrors = append(scanErrors, fmt.Errorf("not a regular file: %s", path))
				continue
			}
			add(Entry{Path: absPath, RelPath: filepath.Base(absPath), Size: info.Size()})
			continue
		}

		entries, skipped, errs := walkDir(absPath)
		m.Skipped += skipped
		scanErrors = append(scanErrors, errs...)
		for _, e := range entries {
			add(e)
		}
	}

	if len(scanErrors) > 0 {
		return m, fmt.Errorf("scan completed with %d error(s): %w", len(scanErrors), errors.Join(scanErrors...))
	}
	return m, nil
}

// walkDir lists the regular files under root. Hidden entries are skipped,
// hidden directories with their whole subtree.
func walkDir(root string) ([]Entry, int, []error) {
	base := filepath.Base(root)
	var entries []Entry
	var errs []error
	skipped := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot read %s: %w", rel, err))
			if d == nil || !d.IsDir() {
				return nil
			}
			return fs.SkipDir
		}
		if rel == "." {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			skipped++
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			skipped++
			return nil
		}
		info, err := d.Info()
		if err != nil {
			errs = append(errs, fmt.Errorf("cannot get info for %s: %w", rel, err))
			return nil
		}
		entries = append(entries, Entry{
			Path:    path,
			RelPath: base + "/" + filepath.ToSlash(rel),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("error walking directory %s: %w", root, err))
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, skipped, errs
}
