package upload

import (
	"context"

	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// CheckRequest asks the server what it holds for a fingerprint.
type CheckRequest struct {
	FileID    string
	FileName  string
	FileSize  int64
	SessionID string
}

// ChunkRequest is one chunk upload.
type ChunkRequest struct {
	FileID      string
	FileName    string
	Index       int
	Checksum    string
	ChecksumAlg transfer.ChecksumAlg
	Data        []byte
}

// Transport is the server side of an upload.
type Transport interface {
	CheckFile(ctx context.Context, req CheckRequest) (protocol.CheckFileResponse, error)
	UploadChunk(ctx context.Context, req ChunkRequest) error
	MergeChunks(ctx context.Context, req protocol.MergeRequest) (protocol.MergeResponse, error)
}
