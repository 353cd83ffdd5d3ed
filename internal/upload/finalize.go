package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sheerbytes/chunkchat/pkg/protocol"
)

// Merge asks the server to assemble all chunks of the session. It must only be
// called once every chunk is confirmed. Failures are returned as *MergeError.
func Merge(ctx context.Context, t Transport, s Session, logger *slog.Logger) (protocol.MergeResponse, error) {
	if !s.Complete() {
		return protocol.MergeResponse{}, &MergeError{Err: fmt.Errorf("%d chunk(s) not confirmed", len(s.Pending()))}
	}
	resp, err := t.MergeChunks(ctx, protocol.MergeRequest{
		FileID:      s.Fingerprint,
		FileName:    s.FileName,
		TotalChunks: s.Total(),
	})
	if err != nil {
		return protocol.MergeResponse{}, &MergeError{Err: err}
	}
	if resp.FilePath == "" {
		return protocol.MergeResponse{}, &MergeError{Err: errors.New("server returned empty file path")}
	}
	if logger != nil {
		logger.Info("merged upload", "file_id", s.Fingerprint, "file_name", s.FileName, "path", resp.FilePath)
	}
	return resp, nil
}
