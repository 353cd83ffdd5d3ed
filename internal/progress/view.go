package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Phase names a stage of a single upload.
type Phase string

const (
	PhaseHashing   Phase = "hashing"
	PhaseChecking  Phase = "checking"
	PhaseUploading Phase = "uploading"
	PhaseMerging   Phase = "merging"
	PhaseDone      Phase = "done"
	PhaseFailed    Phase = "failed"
)

// UploadView is what the CLI renders for one file.
type UploadView struct {
	FileName    string
	Phase       Phase
	HashPercent int
	Percent     int
	ChunksDone  int
	ChunksTotal int
	Failed      []int
	Instant     bool
	Stats       Stats
}

const (
	colorReset = "\033[0m"
	colorRed   = "\033[31m"
	colorGreen = "\033[32m"
	colorCyan  = "\033[36m"
)

func colorize(s string, color string, enabled bool) string {
	if !enabled || color == "" {
		return s
	}
	return color + s + colorReset
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// RenderUpload draws the view on w until the returned stop func is called.
// Terminals get a bubbletea program; other writers get one line per second.
// onInterrupt is called when the user presses ctrl-c in the terminal view.
func RenderUpload(ctx context.Context, w io.Writer, view func() UploadView, onInterrupt func()) func() {
	if IsTTY(w) {
		return renderUploadTea(ctx, w, view, onInterrupt)
	}
	return renderUploadLines(ctx, w, view)
}

func renderUploadLines(ctx context.Context, w io.Writer, view func() UploadView) func() {
	ticker := time.NewTicker(1 * time.Second)
	stop := make(chan struct{})
	var renderMu sync.Mutex
	last := ""

	renderOnce := func() {
		renderMu.Lock()
		defer renderMu.Unlock()
		line := formatUploadLine(view(), false)
		if line == last {
			return
		}
		last = line
		fmt.Fprintln(w, line)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				renderOnce()
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			renderOnce()
		})
	}
}

func renderUploadTTY(v UploadView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", colorize(formatUploadLine(v, true), phaseColor(v.Phase), true))
	if v.Phase == PhaseUploading || v.Phase == PhaseDone {
		fmt.Fprintf(&b, "%s %3d%%\n", renderBar(float64(v.Percent), 30), v.Percent)
	}
	if len(v.Failed) > 0 {
		fmt.Fprintf(&b, "%s\n", colorize(fmt.Sprintf("failed chunks: %v", v.Failed), colorRed, true))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func phaseColor(p Phase) string {
	switch p {
	case PhaseFailed:
		return colorRed
	case PhaseDone:
		return colorGreen
	default:
		return colorCyan
	}
}

func formatUploadLine(v UploadView, tty bool) string {
	name := v.FileName
	if name == "" {
		name = "-"
	}
	switch v.Phase {
	case PhaseHashing:
		return fmt.Sprintf("%s: hashing %d%%", name, v.HashPercent)
	case PhaseChecking:
		return fmt.Sprintf("%s: checking server", name)
	case PhaseMerging:
		return fmt.Sprintf("%s: merging %d chunks", name, v.ChunksTotal)
	case PhaseDone:
		if v.Instant {
			return fmt.Sprintf("%s: already on server", name)
		}
		return fmt.Sprintf("%s: done (%s)", name, formatSize(v.Stats.Total))
	case PhaseFailed:
		return fmt.Sprintf("%s: failed at %d%% (%d/%d chunks)", name, v.Percent, v.ChunksDone, v.ChunksTotal)
	}
	line := fmt.Sprintf("%s: chunks %d/%d rate %s eta %s",
		name, v.ChunksDone, v.ChunksTotal, formatRate(v.Stats.RateBps), formatETA(v.Stats.ETA))
	if !tty {
		line = fmt.Sprintf("%s %d%%", line, v.Percent)
	}
	return line
}

func renderBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int((percent / 100) * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("█", filled) + strings.Repeat("░", width-filled) + "]"
}

func formatRate(bps float64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	if bps >= g {
		return fmt.Sprintf("%.2f GB/s", bps/float64(g))
	}
	if bps >= m {
		return fmt.Sprintf("%.1f MB/s", bps/float64(m))
	}
	if bps >= k {
		return fmt.Sprintf("%.0f KB/s", bps/float64(k))
	}
	return fmt.Sprintf("%.0f B/s", bps)
}

func formatSize(n int64) string {
	const (
		k = 1024
		m = 1024 * k
		g = 1024 * m
	)
	switch {
	case n >= g:
		return fmt.Sprintf("%.2f GiB", float64(n)/float64(g))
	case n >= m:
		return fmt.Sprintf("%.1f MiB", float64(n)/float64(m))
	case n >= k:
		return fmt.Sprintf("%.0f KiB", float64(n)/float64(k))
	}
	return fmt.Sprintf("%d B", n)
}

func formatETA(d time.Duration) string {
	if d <= 0 {
		return "--:--:--"
	}
	secs := int(d.Seconds())
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
