package transfer

import "fmt"

// DefaultChunkSize is the fixed chunk size used for splitting uploads.
const DefaultChunkSize int64 = 2 << 20

// Chunk is a contiguous byte range [Start, End) of a file.
type Chunk struct {
	Index int
	Start int64
	End   int64
}

// Len returns the number of bytes covered by the chunk.
func (c Chunk) Len() int64 {
	return c.End - c.Start
}

// ChunkCount returns ceil(fileSize / chunkSize).
func ChunkCount(fileSize, chunkSize int64) int {
	if fileSize <= 0 || chunkSize <= 0 {
		return 0
	}
	return int((fileSize + chunkSize - 1) / chunkSize)
}

// Split partitions a file of fileSize bytes into ordered chunks of chunkSize.
// The last chunk may be shorter. A zero-byte file has no chunks.
func Split(fileSize, chunkSize int64) ([]Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("invalid chunk size %d", chunkSize)
	}
	if fileSize < 0 {
		return nil, fmt.Errorf("invalid file size %d", fileSize)
	}
	n := ChunkCount(fileSize, chunkSize)
	chunks := make([]Chunk, n)
	for i := 0; i < n; i++ {
		start := int64(i) * chunkSize
		end := start + chunkSize
		if end > fileSize {
			end = fileSize
		}
		chunks[i] = Chunk{Index: i, Start: start, End: end}
	}
	return chunks, nil
}
