package upload

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

var errFlaky = errors.New("flaky network")

// fakeTransport is an in-memory server. failures[i] is the number of times
// chunk i fails before succeeding; a negative value fails forever.
type fakeTransport struct {
	mu sync.Mutex

	complete  bool
	filePath  string
	uploaded  map[int]bool
	failures  map[int]int
	checkErr  error
	mergeErr  error
	block     chan struct{}
	attempts  map[int]int
	confirmed []int
	merges    []protocol.MergeRequest
	checks    int
	inFlight  int
	maxFlight int
	sums      map[int]string

	// mergeBlock holds MergeChunks until closed, ignoring cancellation, the
	// way a merge the server already started still completes.
	mergeBlock   chan struct{}
	mergeStarted chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		uploaded: map[int]bool{},
		failures: map[int]int{},
		attempts: map[int]int{},
		sums:     map[int]string{},
		filePath: "/uploads/merged.bin",
	}
}

func (f *fakeTransport) CheckFile(ctx context.Context, req CheckRequest) (protocol.CheckFileResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.checkErr != nil {
		return protocol.CheckFileResponse{}, f.checkErr
	}
	resp := protocol.CheckFileResponse{IsCompleted: f.complete}
	if f.complete {
		resp.FilePath = f.filePath
	}
	for idx := range f.uploaded {
		resp.Uploaded = append(resp.Uploaded, idx)
	}
	sort.Ints(resp.Uploaded)
	return resp, nil
}

func (f *fakeTransport) UploadChunk(ctx context.Context, req ChunkRequest) error {
	f.mu.Lock()
	f.attempts[req.Index]++
	f.inFlight++
	if f.inFlight > f.maxFlight {
		f.maxFlight = f.inFlight
	}
	block := f.block
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if remaining, ok := f.failures[req.Index]; ok && remaining != 0 {
		if remaining > 0 {
			f.failures[req.Index] = remaining - 1
		}
		return errFlaky
	}
	if err := transfer.VerifyChecksum(req.ChecksumAlg, req.Data, req.Checksum); err != nil {
		return err
	}
	f.uploaded[req.Index] = true
	f.sums[req.Index] = req.Checksum
	f.confirmed = append(f.confirmed, req.Index)
	return nil
}

func (f *fakeTransport) MergeChunks(ctx context.Context, req protocol.MergeRequest) (protocol.MergeResponse, error) {
	if f.mergeBlock != nil {
		close(f.mergeStarted)
		<-f.mergeBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merges = append(f.merges, req)
	if f.mergeErr != nil {
		return protocol.MergeResponse{}, f.mergeErr
	}
	return protocol.MergeResponse{FileName: req.FileName, FilePath: f.filePath}, nil
}

func (f *fakeTransport) confirmedSorted() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]int(nil), f.confirmed...)
	sort.Ints(out)
	return out
}

func (f *fakeTransport) attemptsFor(i int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[i]
}

// fiveChunkFile is 5 chunks of 4 bytes with the last chunk 2 bytes long.
func fiveChunkFile() *transfer.MemFile {
	return transfer.NewMemFile("notes.txt", []byte("aaaabbbbccccddddee"))
}
