package upload

import (
	"math"

	"github.com/sheerbytes/chunkchat/internal/transfer"
)

// Session is an immutable snapshot of one file's upload state. Methods that
// change state return a new Session.
type Session struct {
	Fingerprint string
	FileName    string
	FileSize    int64
	ChunkSize   int64
	Chunks      []transfer.Chunk
	uploaded    *transfer.ChunkSet
	failed      []int
}

// NewSession splits the file into chunks and returns a session with nothing uploaded.
func NewSession(fingerprint, fileName string, fileSize, chunkSize int64) (Session, error) {
	chunks, err := transfer.Split(fileSize, chunkSize)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Fingerprint: fingerprint,
		FileName:    fileName,
		FileSize:    fileSize,
		ChunkSize:   chunkSize,
		Chunks:      chunks,
		uploaded:    transfer.NewChunkSet(len(chunks)),
	}, nil
}

// Total returns the number of chunks.
func (s Session) Total() int {
	return len(s.Chunks)
}

// Uploaded returns indices confirmed by the server, ascending.
func (s Session) Uploaded() []int {
	return s.uploaded.Indexes()
}

// Pending returns indices not yet confirmed, ascending.
func (s Session) Pending() []int {
	return s.uploaded.Missing()
}

// Failed returns indices that exhausted retries in the last attempt.
func (s Session) Failed() []int {
	return append([]int(nil), s.failed...)
}

// Complete reports whether every chunk is confirmed.
func (s Session) Complete() bool {
	return s.uploaded.Complete()
}

// Percent returns round(confirmed / total * 100).
func (s Session) Percent() int {
	if s.Total() == 0 {
		return 100
	}
	return int(math.Round(float64(s.uploaded.Count()) / float64(s.Total()) * 100))
}

// WithServerState replaces the confirmed set with what the server reports.
func (s Session) WithServerState(uploaded []int) Session {
	s.uploaded = transfer.ChunkSetOf(s.Total(), uploaded)
	s.failed = nil
	return s
}

// WithConfirmed adds indices to the confirmed set.
func (s Session) WithConfirmed(indexes []int) Session {
	set := s.uploaded.Clone()
	for _, i := range indexes {
		set.Add(i)
	}
	s.uploaded = set
	return s
}

// WithAllConfirmed marks every chunk as confirmed.
func (s Session) WithAllConfirmed() Session {
	set := transfer.NewChunkSet(s.Total())
	for i := 0; i < s.Total(); i++ {
		set.Add(i)
	}
	s.uploaded = set
	s.failed = nil
	return s
}

// WithFailed records the indices that failed in the last attempt.
func (s Session) WithFailed(indexes []int) Session {
	s.failed = append([]int(nil), indexes...)
	return s
}
