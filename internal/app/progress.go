package app

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sheerbytes/chunkchat/internal/bench"
	"github.com/sheerbytes/chunkchat/internal/progress"
	"github.com/sheerbytes/chunkchat/internal/upload"
)

const chunkLogInterval = 250 * time.Millisecond

// uploadProgress folds uploader callbacks into the view the renderer polls.
type uploadProgress struct {
	logger  *slog.Logger
	meter   *progress.Meter
	lastLog atomic.Int64

	mu      sync.Mutex
	view    progress.UploadView
	bench   *bench.Bench
	summary bench.Summary
}

func newUploadProgress(fileName string, logger *slog.Logger) *uploadProgress {
	return &uploadProgress{
		logger: logger,
		meter:  progress.NewMeter(),
		bench:  bench.New(),
		view:   progress.UploadView{FileName: fileName, Phase: progress.PhaseHashing},
	}
}

func (p *uploadProgress) hooks() upload.Hooks {
	return upload.Hooks{
		OnPhase:        p.onPhase,
		OnHashProgress: p.onHashProgress,
		OnProgress:     p.onProgress,
		OnChunk:        p.onChunk,
		OnSession:      p.onSession,
	}
}

func (p *uploadProgress) onPhase(phase progress.Phase) {
	p.mu.Lock()
	p.view.Phase = phase
	p.mu.Unlock()
	p.logger.Debug("upload phase", "file", p.fileName(), "phase", phase)
}

func (p *uploadProgress) onHashProgress(percent int) {
	p.mu.Lock()
	p.view.HashPercent = percent
	p.mu.Unlock()
}

func (p *uploadProgress) onProgress(percent int) {
	p.mu.Lock()
	p.view.Percent = percent
	p.mu.Unlock()
}

func (p *uploadProgress) onSession(s upload.Session) {
	var already int64
	for _, idx := range s.Uploaded() {
		already += s.Chunks[idx].Len()
	}
	p.meter.Start(s.FileSize)
	p.meter.Skip(already)

	p.mu.Lock()
	p.bench.Start(time.Now(), already)
	p.view.ChunksTotal = s.Total()
	p.view.ChunksDone = len(s.Uploaded())
	p.view.Percent = s.Percent()
	p.view.Failed = nil
	p.mu.Unlock()
}

func (p *uploadProgress) onChunk(index int, size int64) {
	p.meter.AddChunk(int(size))
	bytesDone := p.meter.Snapshot().BytesDone
	p.mu.Lock()
	p.view.ChunksDone++
	done, total := p.view.ChunksDone, p.view.ChunksTotal
	snap := p.bench.Tick(time.Now(), bytesDone)
	p.mu.Unlock()
	if p.logDue() {
		p.logger.Debug("chunk confirmed", "file", p.fileName(), "index", index,
			"done", done, "total", total, "mbps", snap.EwmaMBps)
	}
}

// finish records the terminal outcome so the last frame shows it, and
// closes the throughput measurement.
func (p *uploadProgress) finish(out upload.Outcome) bench.Summary {
	bytesDone := p.meter.Snapshot().BytesDone
	p.mu.Lock()
	defer p.mu.Unlock()
	p.summary = p.bench.Final(time.Now(), bytesDone)
	p.view.Instant = out.Instant
	p.view.Failed = out.FailedIndexes
	p.view.Percent = out.Percent
	if out.Success {
		p.view.Phase = progress.PhaseDone
		p.view.ChunksDone = p.view.ChunksTotal
	} else {
		p.view.Phase = progress.PhaseFailed
	}
	return p.summary
}

func (p *uploadProgress) snapshot() progress.UploadView {
	p.mu.Lock()
	v := p.view
	p.mu.Unlock()
	v.Stats = p.meter.Snapshot()
	return v
}

func (p *uploadProgress) fileName() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view.FileName
}

// logDue rate-limits per-chunk debug lines; one caller wins each interval.
func (p *uploadProgress) logDue() bool {
	now := time.Now().UnixNano()
	prev := p.lastLog.Load()
	if now-prev < int64(chunkLogInterval) {
		return false
	}
	return p.lastLog.CompareAndSwap(prev, now)
}
