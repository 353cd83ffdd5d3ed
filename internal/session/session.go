package session

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	chunksDir = "chunks"
	filesDir  = "files"

	// MaxChunkIndex bounds the index a client may upload.
	MaxChunkIndex = 1 << 20
)

var (
	ErrInvalidFileID  = errors.New("invalid file id")
	ErrInvalidIndex   = errors.New("invalid chunk index")
	ErrUnknownUpload  = errors.New("unknown upload")
	ErrMissingChunks  = errors.New("missing chunks")
	ErrDigestMismatch = errors.New("merged content does not match file id")
)

var fileIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)
var md5Pattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Upload is the server view of one file being assembled from chunks.
type Upload struct {
	FileID    string
	FileName  string
	FileSize  int64
	Received  []int
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Status answers a pre-upload check.
type Status struct {
	Completed bool
	Uploaded  []int
	// FilePath is the merged file relative to the files root, set when Completed.
	FilePath string
}

type upload struct {
	fileID    string
	fileName  string
	fileSize  int64
	received  map[int]struct{}
	createdAt time.Time
	expiresAt time.Time
}

func (u *upload) snapshot() Upload {
	return Upload{
		FileID:    u.fileID,
		FileName:  u.fileName,
		FileSize:  u.fileSize,
		Received:  sortedIndexes(u.received),
		CreatedAt: u.createdAt,
		ExpiresAt: u.expiresAt,
	}
}

// Store keeps partial uploads on disk under dir/chunks and merged files under
// dir/files. Metadata lives in memory and is guarded by mu.
type Store struct {
	mu      sync.RWMutex
	dir     string
	uploads map[string]*upload // keyed by file id
	merged  map[string]string  // file id -> path relative to files root
	ttl     time.Duration
}

// NewStore creates the directory layout under dir. Partial uploads expire ttl
// after their last chunk.
func NewStore(dir string, ttl time.Duration) (*Store, error) {
	for _, sub := range []string{chunksDir, filesDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", sub, err)
		}
	}
	return &Store{
		dir:     dir,
		uploads: make(map[string]*upload),
		merged:  make(map[string]string),
		ttl:     ttl,
	}, nil
}

// FilesDir is the directory merged files are written to.
func (s *Store) FilesDir() string {
	return filepath.Join(s.dir, filesDir)
}

// Check reports whether fileID was already merged or which chunks are held.
func (s *Store) Check(fileID, fileName string, fileSize int64) (Status, error) {
	if !fileIDPattern.MatchString(fileID) {
		return Status{}, ErrInvalidFileID
	}
	if rel, ok := s.mergedPath(fileID); ok {
		return Status{Completed: true, Uploaded: []int{}, FilePath: rel}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.uploads[fileID]
	if !ok {
		now := time.Now()
		u = &upload{
			fileID:    fileID,
			fileName:  fileName,
			fileSize:  fileSize,
			received:  make(map[int]struct{}),
			createdAt: now,
			expiresAt: now.Add(s.ttl),
		}
		s.uploads[fileID] = u
	}
	return Status{Uploaded: sortedIndexes(u.received)}, nil
}

// Get returns the partial upload for fileID.
func (s *Store) Get(fileID string) (Upload, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.uploads[fileID]
	if !ok {
		return Upload{}, false
	}
	return u.snapshot(), true
}

// PutChunk stores chunk index of fileID. Re-uploading an index replaces it.
func (s *Store) PutChunk(fileID, fileName string, index int, data []byte) error {
	if !fileIDPattern.MatchString(fileID) {
		return ErrInvalidFileID
	}
	if index < 0 || index >= MaxChunkIndex {
		return ErrInvalidIndex
	}

	dir := filepath.Join(s.dir, chunksDir, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create chunk dir: %w", err)
	}
	final := filepath.Join(dir, strconv.Itoa(index))
	tmp, err := os.CreateTemp(dir, strconv.Itoa(index)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create chunk file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write chunk: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close chunk: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("commit chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	u, ok := s.uploads[fileID]
	if !ok {
		u = &upload{
			fileID:    fileID,
			fileName:  fileName,
			received:  make(map[int]struct{}),
			createdAt: now,
		}
		s.uploads[fileID] = u
	}
	u.received[index] = struct{}{}
	u.expiresAt = now.Add(s.ttl)
	return nil
}

// Merge concatenates chunks 0..total-1 of fileID into one file and returns its
// path relative to the files root. File ids that look like an MD5 digest are
// verified against the merged content. Merging an already merged id is a no-op.
func (s *Store) Merge(fileID, fileName string, total int) (string, error) {
	if !fileIDPattern.MatchString(fileID) {
		return "", ErrInvalidFileID
	}
	if total < 0 || total > MaxChunkIndex {
		return "", ErrInvalidIndex
	}
	if rel, ok := s.mergedPath(fileID); ok {
		return rel, nil
	}

	s.mu.RLock()
	u, ok := s.uploads[fileID]
	var missing []int
	if ok {
		for i := 0; i < total; i++ {
			if _, have := u.received[i]; !have {
				missing = append(missing, i)
			}
		}
	}
	s.mu.RUnlock()
	if !ok && total > 0 {
		return "", ErrUnknownUpload
	}
	if len(missing) > 0 {
		return "", fmt.Errorf("%w: %v", ErrMissingChunks, missing)
	}

	rel := fileID + safeExt(fileName)
	final := filepath.Join(s.dir, filesDir, rel)
	tmp, err := os.CreateTemp(filepath.Join(s.dir, filesDir), fileID+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create merged file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := md5.New()
	w := io.MultiWriter(tmp, h)
	for i := 0; i < total; i++ {
		if err := appendChunk(w, filepath.Join(s.dir, chunksDir, fileID, strconv.Itoa(i))); err != nil {
			tmp.Close()
			return "", err
		}
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close merged file: %w", err)
	}
	if md5Pattern.MatchString(fileID) && hex.EncodeToString(h.Sum(nil)) != fileID {
		return "", ErrDigestMismatch
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", fmt.Errorf("commit merged file: %w", err)
	}

	s.mu.Lock()
	s.merged[fileID] = rel
	delete(s.uploads, fileID)
	s.mu.Unlock()
	os.RemoveAll(filepath.Join(s.dir, chunksDir, fileID))
	return rel, nil
}

// Lookup returns the merged file for fileID relative to the files root.
func (s *Store) Lookup(fileID string) (string, bool) {
	if !fileIDPattern.MatchString(fileID) {
		return "", false
	}
	return s.mergedPath(fileID)
}

// Count returns the number of partial uploads.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.uploads)
}

// CleanupExpired removes partial uploads that received no chunk within the TTL.
// Returns the number of uploads removed.
func (s *Store) CleanupExpired(now time.Time) int {
	s.mu.Lock()
	var toRemove []string
	for id, u := range s.uploads {
		if now.After(u.expiresAt) {
			toRemove = append(toRemove, id)
		}
	}
	for _, id := range toRemove {
		delete(s.uploads, id)
	}
	s.mu.Unlock()

	for _, id := range toRemove {
		os.RemoveAll(filepath.Join(s.dir, chunksDir, id))
	}
	return len(toRemove)
}

// RunCleanup calls CleanupExpired every interval until stop is closed.
func (s *Store) RunCleanup(interval time.Duration, stop <-chan struct{}, onRemoved func(n int)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			if n := s.CleanupExpired(now); n > 0 && onRemoved != nil {
				onRemoved(n)
			}
		}
	}
}

// mergedPath finds a merged file for fileID, falling back to the files
// directory so merges survive a restart.
func (s *Store) mergedPath(fileID string) (string, bool) {
	s.mu.RLock()
	rel, ok := s.merged[fileID]
	s.mu.RUnlock()
	if ok {
		return rel, true
	}

	entries, err := os.ReadDir(filepath.Join(s.dir, filesDir))
	if err != nil {
		return "", false
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasSuffix(name, ".tmp") {
			continue
		}
		if name == fileID || strings.TrimSuffix(name, filepath.Ext(name)) == fileID {
			s.mu.Lock()
			s.merged[fileID] = name
			s.mu.Unlock()
			return name, true
		}
	}
	return "", false
}

func appendChunk(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open chunk: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("copy chunk: %w", err)
	}
	return nil
}

// safeExt keeps a short alphanumeric extension of name, lowercased.
func safeExt(name string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(name)))
	if len(ext) < 2 || len(ext) > 10 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

func sortedIndexes(m map[int]struct{}) []int {
	out := make([]int, 0, len(m))
	for i := range m {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}
