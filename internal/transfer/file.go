package transfer

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// File is a read-only handle to the source bytes of an upload.
type File interface {
	io.ReaderAt
	Name() string
	Size() int64
}

// OSFile is a File backed by a file on disk.
type OSFile struct {
	f    *os.File
	name string
	size int64
}

// OpenFile opens path for chunked reads.
func OpenFile(path string) (*OSFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ReadError{Op: "open", Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &ReadError{Op: "stat", Err: err}
	}
	if info.IsDir() {
		_ = f.Close()
		return nil, &ReadError{Op: "open", Err: fmt.Errorf("%s is a directory", path)}
	}
	return &OSFile{f: f, name: filepath.Base(path), size: info.Size()}, nil
}

func (o *OSFile) Name() string { return o.name }
func (o *OSFile) Size() int64  { return o.size }

func (o *OSFile) ReadAt(p []byte, off int64) (int, error) {
	return o.f.ReadAt(p, off)
}

// Close releases the underlying descriptor.
func (o *OSFile) Close() error {
	return o.f.Close()
}

// MemFile is an in-memory File.
type MemFile struct {
	r    *bytes.Reader
	name string
}

// NewMemFile wraps data as a File named name.
func NewMemFile(name string, data []byte) *MemFile {
	return &MemFile{r: bytes.NewReader(data), name: name}
}

func (m *MemFile) Name() string { return m.name }
func (m *MemFile) Size() int64  { return m.r.Size() }

func (m *MemFile) ReadAt(p []byte, off int64) (int, error) {
	return m.r.ReadAt(p, off)
}

// ChunkReader reads chunks of a File into pooled buffers.
type ChunkReader struct {
	file File
	size int64
}

// NewChunkReader creates a reader for chunks no larger than chunkSize.
func NewChunkReader(file File, chunkSize int64) *ChunkReader {
	return &ChunkReader{file: file, size: chunkSize}
}

// Read returns the bytes of c and a release func that must be called once the
// bytes are no longer referenced.
func (r *ChunkReader) Read(c Chunk) ([]byte, func(), error) {
	n := c.Len()
	if n < 0 || n > r.size {
		return nil, func() {}, &ReadError{Op: fmt.Sprintf("chunk %d", c.Index), Err: fmt.Errorf("invalid chunk length %d", n)}
	}
	pool := chunkPoolFor(r.size)
	buf := pool.Get(int(n))
	release := func() { pool.Put(buf) }

	read, err := r.file.ReadAt(buf, c.Start)
	if err != nil && !(errors.Is(err, io.EOF) && int64(read) == n) {
		release()
		return nil, func() {}, &ReadError{Op: fmt.Sprintf("chunk %d", c.Index), Err: err}
	}
	if int64(read) != n {
		release()
		return nil, func() {}, &ReadError{Op: fmt.Sprintf("chunk %d", c.Index), Err: io.ErrUnexpectedEOF}
	}
	return buf, release, nil
}
