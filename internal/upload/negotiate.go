package upload

import (
	"context"
	"log/slog"
)

// Negotiation is the server's view of a fingerprint before any transfer.
type Negotiation struct {
	Complete bool
	Uploaded []int
	FilePath string
}

// Negotiate asks the server whether the session's file is already stored in
// full or in part. Failures are returned as *NegotiationError.
func Negotiate(ctx context.Context, t Transport, s Session, scopeID string, logger *slog.Logger) (Negotiation, error) {
	resp, err := t.CheckFile(ctx, CheckRequest{
		FileID:    s.Fingerprint,
		FileName:  s.FileName,
		FileSize:  s.FileSize,
		SessionID: scopeID,
	})
	if err != nil {
		return Negotiation{}, &NegotiationError{Err: err}
	}
	n := Negotiation{Complete: resp.IsCompleted, FilePath: resp.FilePath}
	for _, idx := range resp.Uploaded {
		if idx >= 0 && idx < s.Total() {
			n.Uploaded = append(n.Uploaded, idx)
		}
	}
	if logger != nil {
		logger.Debug("negotiated upload",
			"file_id", s.Fingerprint,
			"complete", n.Complete,
			"uploaded", len(n.Uploaded),
			"total", s.Total())
	}
	return n, nil
}
