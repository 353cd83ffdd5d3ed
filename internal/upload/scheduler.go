package upload

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sheerbytes/chunkchat/internal/progress"
	"github.com/sheerbytes/chunkchat/internal/transfer"
)

const (
	DefaultConcurrency = 3
	DefaultMaxAttempts = 3
)

// SchedulerConfig bounds a scheduler run.
type SchedulerConfig struct {
	// Concurrency is the maximum number of chunk uploads in flight.
	Concurrency int
	// MaxAttempts is the total number of tries per chunk, including the first.
	MaxAttempts int
	Checksum    transfer.ChecksumAlg
	RetryDelay  time.Duration
	// OnChunk is called after each confirmed chunk with its index and size.
	OnChunk func(index int, size int64)
}

// Result is what one scheduler run produced.
type Result struct {
	Confirmed []int
	Failed    []int
	Errs      []*ChunkUploadError
	Cancelled bool
	// Err is set when the run could not proceed: a *transfer.ReadError when the
	// source could not be read, or a bad checksum configuration.
	Err error
}

// Scheduler uploads pending chunks with bounded concurrency and per-chunk retries.
type Scheduler struct {
	transport Transport
	cfg       SchedulerConfig
	logger    *slog.Logger
}

// NewScheduler creates a scheduler. Zero config values fall back to defaults.
func NewScheduler(t Transport, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Checksum == "" {
		cfg.Checksum = transfer.ChecksumMD5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{transport: t, cfg: cfg, logger: logger}
}

// Run uploads the pending indices of s read from file. Confirmed chunks are
// reported to tracker. Cancelling ctx stops scheduling, aborts in-flight
// requests and suppresses further retries.
func (sc *Scheduler) Run(ctx context.Context, file transfer.File, s Session, pending []int, tracker *progress.Tracker) Result {
	var (
		mu  sync.Mutex
		res Result
	)
	if _, err := transfer.ParseChecksumAlg(string(sc.cfg.Checksum)); err != nil {
		res.Err = err
		return res
	}
	reader := transfer.NewChunkReader(file, s.ChunkSize)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sc.cfg.Concurrency)

	for _, idx := range pending {
		if gctx.Err() != nil {
			break
		}
		if idx < 0 || idx >= s.Total() {
			continue
		}
		chunk := s.Chunks[idx]
		g.Go(func() error {
			confirmed, uerr, err := sc.uploadChunk(gctx, reader, s, chunk)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				return err
			case confirmed:
				res.Confirmed = append(res.Confirmed, chunk.Index)
				if tracker != nil {
					tracker.Confirm()
				}
				if sc.cfg.OnChunk != nil {
					sc.cfg.OnChunk(chunk.Index, chunk.Len())
				}
			case uerr != nil:
				res.Failed = append(res.Failed, chunk.Index)
				res.Errs = append(res.Errs, uerr)
			}
			return nil
		})
	}

	// Workers return an error only when the chunk could not be prepared;
	// cancellation and exhausted retries are reported through res.
	if err := g.Wait(); err != nil {
		res.Err = err
	}
	if res.Err == nil && ctx.Err() != nil {
		res.Cancelled = true
	}
	sort.Ints(res.Confirmed)
	sort.Ints(res.Failed)
	return res
}

// uploadChunk tries one chunk up to MaxAttempts times. It returns confirmed,
// or the last upload error once attempts are exhausted, or a read error.
// Cancellation returns none of them.
func (sc *Scheduler) uploadChunk(ctx context.Context, reader *transfer.ChunkReader, s Session, c transfer.Chunk) (bool, *ChunkUploadError, error) {
	if ctx.Err() != nil {
		return false, nil, nil
	}
	data, release, err := reader.Read(c)
	if err != nil {
		return false, nil, err
	}
	defer release()

	sum, err := transfer.Checksum(sc.cfg.Checksum, data)
	if err != nil {
		return false, nil, err
	}
	req := ChunkRequest{
		FileID:      s.Fingerprint,
		FileName:    s.FileName,
		Index:       c.Index,
		Checksum:    sum,
		ChecksumAlg: sc.cfg.Checksum,
		Data:        data,
	}

	var last *ChunkUploadError
	for attempt := 1; attempt <= sc.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return false, nil, nil
		}
		err := sc.transport.UploadChunk(ctx, req)
		if err == nil {
			return true, nil, nil
		}
		if ctx.Err() != nil {
			return false, nil, nil
		}
		last = &ChunkUploadError{Index: c.Index, Attempt: attempt, Err: err}
		if attempt == sc.cfg.MaxAttempts {
			break
		}
		sc.logger.Warn("chunk upload failed, retrying",
			"index", c.Index,
			"attempt", attempt,
			"max_attempts", sc.cfg.MaxAttempts,
			"error", err)
		if sc.cfg.RetryDelay > 0 {
			timer := time.NewTimer(sc.cfg.RetryDelay * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return false, nil, nil
			case <-timer.C:
			}
		}
	}
	sc.logger.Warn("chunk upload exhausted retries", "index", c.Index, "attempts", sc.cfg.MaxAttempts, "error", last.Err)
	return false, last, nil
}
