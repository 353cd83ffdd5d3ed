package upload

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sheerbytes/chunkchat/internal/progress"
	"github.com/sheerbytes/chunkchat/internal/transfer"
)

// Options configures an Uploader.
type Options struct {
	ChunkSize   int64
	Concurrency int
	MaxAttempts int
	Checksum    transfer.ChecksumAlg
	RetryDelay  time.Duration
	// ScopeID is sent with the pre-upload check so the server can scope partial uploads.
	ScopeID string
}

// Hooks receive progress from a running attempt. All fields are optional.
type Hooks struct {
	OnPhase        func(progress.Phase)
	OnHashProgress func(percent int)
	OnProgress     func(percent int)
	OnChunk        func(index int, size int64)
	// OnSession receives the session snapshot once negotiation has seeded it.
	OnSession func(Session)
}

func (h Hooks) phase(p progress.Phase) {
	if h.OnPhase != nil {
		h.OnPhase(p)
	}
}

// Outcome is the terminal result of one attempt.
type Outcome struct {
	Success       bool
	Instant       bool
	Cancelled     bool
	Fingerprint   string
	FileName      string
	FilePath      string
	FailedIndexes []int
	Percent       int
}

// Uploader owns at most one upload session and runs one attempt at a time.
type Uploader struct {
	transport Transport
	opts      Options
	logger    *slog.Logger

	mu      sync.Mutex
	file    transfer.File
	session *Session
	last    *Outcome
	running bool
	cancel  context.CancelFunc
	gen     uint64
}

// NewUploader creates an uploader. Zero options fall back to defaults.
func NewUploader(t Transport, opts Options, logger *slog.Logger) *Uploader {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = transfer.DefaultChunkSize
	}
	if opts.Checksum == "" {
		opts.Checksum = transfer.ChecksumMD5
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{transport: t, opts: opts, logger: logger}
}

// Select replaces any current session with file, fingerprints it and runs the
// first attempt. An unknown checksum algorithm fails before any I/O. Other
// errors are one of *transfer.ReadError, *NegotiationError,
// *ChunksFailedError, *MergeError or ErrCancelled.
func (u *Uploader) Select(ctx context.Context, file transfer.File, hooks Hooks) (Outcome, error) {
	if _, err := transfer.ParseChecksumAlg(string(u.opts.Checksum)); err != nil {
		return Outcome{FileName: file.Name()}, err
	}
	attemptCtx, gen, err := u.begin(ctx, true)
	if err != nil {
		return Outcome{}, err
	}
	u.mu.Lock()
	u.file = file
	u.mu.Unlock()

	hooks.phase(progress.PhaseHashing)
	job := transfer.StartFingerprint(attemptCtx, file, u.opts.ChunkSize)
	for p := range job.Progress() {
		if hooks.OnHashProgress != nil {
			hooks.OnHashProgress(p)
		}
	}
	fingerprint, err := job.Wait()
	if err != nil {
		if attemptCtx.Err() != nil {
			return u.finish(gen, nil, Outcome{FileName: file.Name(), Cancelled: true}, ErrCancelled, hooks)
		}
		return u.finish(gen, nil, Outcome{FileName: file.Name()}, err, hooks)
	}

	s, err := NewSession(fingerprint, file.Name(), file.Size(), u.opts.ChunkSize)
	if err != nil {
		return u.finish(gen, nil, Outcome{FileName: file.Name()}, err, hooks)
	}
	return u.attempt(attemptCtx, gen, file, s, hooks)
}

// Retry runs a new attempt for the current session. It is only valid after
// a failed or cancelled attempt and uploads only chunks the server lacks.
func (u *Uploader) Retry(ctx context.Context, hooks Hooks) (Outcome, error) {
	u.mu.Lock()
	if u.session == nil || u.file == nil {
		u.mu.Unlock()
		return Outcome{}, ErrNoSession
	}
	if u.last != nil && u.last.Success {
		u.mu.Unlock()
		return Outcome{}, ErrNothingToRetry
	}
	u.mu.Unlock()

	attemptCtx, gen, err := u.begin(ctx, false)
	if err != nil {
		return Outcome{}, err
	}
	u.mu.Lock()
	file, s := u.file, *u.session
	u.mu.Unlock()
	return u.attempt(attemptCtx, gen, file, s, hooks)
}

// Cancel stops the running attempt, if any. Confirmed chunks stay recorded.
func (u *Uploader) Cancel() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		u.cancel()
	}
}

// Reset cancels the running attempt and forgets the session.
func (u *Uploader) Reset() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
	u.gen++
	u.running = false
	u.file = nil
	u.session = nil
	u.last = nil
}

// Session returns the current session snapshot.
func (u *Uploader) Session() (Session, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.session == nil {
		return Session{}, false
	}
	return *u.session, true
}

// Last returns the outcome of the most recent finished attempt.
func (u *Uploader) Last() (Outcome, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.last == nil {
		return Outcome{}, false
	}
	return *u.last, true
}

// Running reports whether an attempt is in progress.
func (u *Uploader) Running() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.running
}

func (u *Uploader) begin(ctx context.Context, fresh bool) (context.Context, uint64, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.running {
		return nil, 0, ErrUploadInProgress
	}
	if fresh {
		u.gen++
		u.file = nil
		u.session = nil
		u.last = nil
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	u.running = true
	u.cancel = cancel
	return attemptCtx, u.gen, nil
}

// finish records the attempt's result. An attempt overtaken by Reset or a new
// Select reports ErrCancelled whatever it achieved, so its file never reaches
// the caller that replaced it.
func (u *Uploader) finish(gen uint64, s *Session, out Outcome, err error, hooks Hooks) (Outcome, error) {
	u.mu.Lock()
	if gen != u.gen {
		u.mu.Unlock()
		hooks.phase(progress.PhaseFailed)
		return Outcome{Fingerprint: out.Fingerprint, FileName: out.FileName, Cancelled: true, Percent: out.Percent}, ErrCancelled
	}
	if u.cancel != nil {
		u.cancel()
		u.cancel = nil
	}
	u.running = false
	if s != nil {
		snap := *s
		u.session = &snap
	}
	u.last = &out
	u.mu.Unlock()

	switch {
	case out.Success:
		hooks.phase(progress.PhaseDone)
	default:
		hooks.phase(progress.PhaseFailed)
	}
	return out, err
}

func (u *Uploader) attempt(ctx context.Context, gen uint64, file transfer.File, s Session, hooks Hooks) (Outcome, error) {
	out := Outcome{Fingerprint: s.Fingerprint, FileName: s.FileName}

	hooks.phase(progress.PhaseChecking)
	neg, err := Negotiate(ctx, u.transport, s, u.opts.ScopeID, u.logger)
	if err != nil {
		if ctx.Err() != nil {
			out.Cancelled = true
			out.Percent = s.Percent()
			return u.finish(gen, &s, out, ErrCancelled, hooks)
		}
		out.Percent = s.Percent()
		return u.finish(gen, &s, out, err, hooks)
	}
	if neg.Complete {
		s = s.WithAllConfirmed()
		out.Success = true
		out.Instant = true
		out.FilePath = neg.FilePath
		out.Percent = 100
		if hooks.OnProgress != nil {
			hooks.OnProgress(100)
		}
		return u.finish(gen, &s, out, nil, hooks)
	}

	s = s.WithServerState(neg.Uploaded)
	if hooks.OnSession != nil {
		hooks.OnSession(s)
	}
	pending := s.Pending()
	tracker := progress.NewTracker(s.Total(), s.Total()-len(pending), hooks.OnProgress)

	if len(pending) > 0 {
		hooks.phase(progress.PhaseUploading)
		sched := NewScheduler(u.transport, SchedulerConfig{
			Concurrency: u.opts.Concurrency,
			MaxAttempts: u.opts.MaxAttempts,
			Checksum:    u.opts.Checksum,
			RetryDelay:  u.opts.RetryDelay,
			OnChunk:     hooks.OnChunk,
		}, u.logger)
		res := sched.Run(ctx, file, s, pending, tracker)
		s = s.WithConfirmed(res.Confirmed).WithFailed(res.Failed)
		out.Percent = tracker.Percent()
		out.FailedIndexes = res.Failed

		switch {
		case res.Err != nil:
			return u.finish(gen, &s, out, res.Err, hooks)
		case res.Cancelled:
			out.Cancelled = true
			return u.finish(gen, &s, out, ErrCancelled, hooks)
		case len(res.Failed) > 0:
			u.logger.Warn("upload attempt failed", "file_id", s.Fingerprint, "failed", res.Failed, "percent", out.Percent)
			return u.finish(gen, &s, out, &ChunksFailedError{Indexes: res.Failed, Errs: res.Errs}, hooks)
		}
	}

	hooks.phase(progress.PhaseMerging)
	resp, err := Merge(ctx, u.transport, s, u.logger)
	if err != nil {
		out.Percent = tracker.Percent()
		if ctx.Err() != nil {
			out.Cancelled = true
			return u.finish(gen, &s, out, ErrCancelled, hooks)
		}
		return u.finish(gen, &s, out, err, hooks)
	}
	out.Success = true
	out.FilePath = resp.FilePath
	out.Percent = 100
	return u.finish(gen, &s, out, nil, hooks)
}
