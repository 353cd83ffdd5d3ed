package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/sheerbytes/chunkchat/internal/attach"
	"github.com/sheerbytes/chunkchat/internal/bench"
	"github.com/sheerbytes/chunkchat/internal/chat"
	"github.com/sheerbytes/chunkchat/internal/config"
	"github.com/sheerbytes/chunkchat/internal/progress"
	"github.com/sheerbytes/chunkchat/internal/stream"
	"github.com/sheerbytes/chunkchat/internal/transfer"
	"github.com/sheerbytes/chunkchat/internal/upload"
	"github.com/sheerbytes/chunkchat/pkg/manifest"
)

// Output is where a command writes. Progress may be a terminal; Result gets
// plain text only.
type Output struct {
	Result   io.Writer
	Progress io.Writer
}

// RunUpload uploads every file named by cfg.Args, expanding directories, and
// prints the server path of each. Files already on the server complete
// instantly; interrupted uploads resume from the chunks the server confirmed.
func RunUpload(ctx context.Context, logger *slog.Logger, cfg config.ClientConfig, out Output) error {
	if len(cfg.Args) == 0 {
		return errors.New("no files to upload")
	}
	m, scanErr := manifest.ScanPaths(cfg.Args)
	if scanErr != nil {
		logger.Warn("some paths were not readable", "error", scanErr)
		fmt.Fprintln(out.Result, scanErr)
	}
	if len(m.Entries) == 0 {
		return errors.New("nothing to upload")
	}
	logger.Debug("upload manifest", "files", len(m.Entries), "total_bytes", m.TotalBytes, "skipped", m.Skipped)

	c, err := newChat(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	var failed int
	var sums []bench.Summary
	for _, e := range m.Entries {
		res, sum, err := attachPath(ctx, c, e.Path, out.Progress, logger)
		sums = append(sums, sum)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			fmt.Fprintf(out.Result, "%s: %v\n", e.RelPath, describeUploadError(err))
			continue
		}
		fmt.Fprintf(out.Result, "%s: %s %s (%s)\n", e.RelPath, attach.Kind(res.FileName),
			attach.ResolveURL(cfg.PublicURL, res.FilePath), attach.ContentType(res.FileName))
		c.DropAttachment()
	}

	agg := bench.Aggregate(sums)
	fmt.Fprintf(out.Progress, "uploaded %d of %d files, sent %s in %s (avg %.2f MB/s, peak %.2f MB/s)\n",
		len(m.Entries)-failed, len(m.Entries), formatMiB(agg.Bytes), agg.Elapsed.Round(time.Millisecond),
		agg.AvgMBps, agg.PeakMBps)
	switch {
	case failed > 0:
		return fmt.Errorf("%d of %d uploads failed", failed, len(m.Entries))
	case scanErr != nil:
		return scanErr
	}
	return nil
}

// RunAsk sends the words in cfg.Args as one message, with cfg.File attached
// when set, and copies the streamed reply to out.Result as it arrives.
func RunAsk(ctx context.Context, logger *slog.Logger, cfg config.ClientConfig, out Output) error {
	text := strings.TrimSpace(strings.Join(cfg.Args, " "))
	c, err := newChat(cfg, logger)
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Conversation != "" {
		c.SelectConversation(cfg.Conversation)
	}
	if cfg.File != "" {
		if _, _, err := attachPath(ctx, c, cfg.File, out.Progress, logger); err != nil {
			return fmt.Errorf("attach %s: %w", cfg.File, describeUploadError(err))
		}
	}

	consumer, err := c.Submit(ctx, text, stream.Handlers{
		OnChunk: func(s string) { fmt.Fprint(out.Result, s) },
	})
	if err != nil {
		return err
	}
	err = consumer.Wait(ctx)
	fmt.Fprintln(out.Result)
	fmt.Fprintf(out.Progress, "conversation: %s\n", c.Conversation())

	var serr *stream.StreamError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &serr):
		return fmt.Errorf("reply failed: %w", serr)
	case errors.Is(err, stream.ErrClosed) && ctx.Err() != nil:
		return ctx.Err()
	}
	return err
}

func newChat(cfg config.ClientConfig, logger *slog.Logger) (*chat.Chat, error) {
	opts, err := UploadOptions(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := NewBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	return chat.New(backend, chat.Options{Upload: opts, PublicURL: cfg.PublicURL}, logger), nil
}

// attachPath uploads path as the chat's attachment while drawing progress on
// w. Ctrl-C in the terminal view cancels the upload.
func attachPath(ctx context.Context, c *chat.Chat, path string, w io.Writer, logger *slog.Logger) (upload.Outcome, bench.Summary, error) {
	file, err := transfer.OpenFile(path)
	if err != nil {
		return upload.Outcome{}, bench.Summary{}, err
	}
	defer file.Close()

	p := newUploadProgress(file.Name(), logger)
	stop := progress.RenderUpload(ctx, w, p.snapshot, c.CancelAttachment)
	res, err := c.Attach(ctx, file, p.hooks())
	sum := p.finish(res)
	stop()
	logger.Info("upload finished", "file", res.FileName, "success", res.Success, "instant", res.Instant,
		"bytes", sum.Bytes, "elapsed", sum.Elapsed, "avg_mbps", sum.AvgMBps, "first_chunk", sum.FirstChunk)
	return res, sum, err
}

func describeUploadError(err error) error {
	var failed *upload.ChunksFailedError
	if errors.As(err, &failed) {
		return fmt.Errorf("%d chunks failed after retries, run again to resume: %w", len(failed.Indexes), err)
	}
	if errors.Is(err, upload.ErrCancelled) {
		return fmt.Errorf("cancelled, run again to resume: %w", err)
	}
	return err
}
