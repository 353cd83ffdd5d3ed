package bench

import "time"

const mib = 1024 * 1024

// Bench measures the throughput of one upload from the bytes the server has
// confirmed. Bytes already on the server when the upload resumed are excluded.
type Bench struct {
	start      time.Time
	last       time.Time
	lastBytes  int64
	baseBytes  int64
	ewma       float64
	peak       float64
	firstChunk time.Duration
	gotFirst   bool
}

type Snapshot struct {
	Bytes    int64
	Elapsed  time.Duration
	InstMBps float64
	EwmaMBps float64
	AvgMBps  float64
	PeakMBps float64
}

// Summary is the result of a finished upload.
type Summary struct {
	Bytes   int64 // bytes sent in this run
	Elapsed time.Duration
	AvgMBps float64
	// PeakMBps is the highest rate seen between two confirmed chunks.
	PeakMBps float64
	// FirstChunk is the delay until the first chunk was confirmed.
	FirstChunk    time.Duration
	GotFirstChunk bool
}

func New() *Bench {
	return &Bench{}
}

// Start resets the bench. already is the byte count confirmed before this run.
func (b *Bench) Start(now time.Time, already int64) {
	*b = Bench{start: now, last: now, lastBytes: already, baseBytes: already}
}

// Tick records that bytesNow bytes are confirmed at now.
func (b *Bench) Tick(now time.Time, bytesNow int64) Snapshot {
	if b.start.IsZero() {
		b.Start(now, bytesNow)
		return Snapshot{}
	}
	elapsed := now.Sub(b.start)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}
	delta := bytesNow - b.lastBytes
	if delta < 0 {
		delta = 0
	}
	dt := now.Sub(b.last)
	if dt <= 0 {
		dt = time.Millisecond
	}
	inst := float64(delta) / dt.Seconds() / mib
	if b.ewma == 0 {
		b.ewma = inst
	} else {
		b.ewma = 0.2*inst + 0.8*b.ewma
	}
	if inst > b.peak {
		b.peak = inst
	}
	if !b.gotFirst && bytesNow > b.baseBytes {
		b.gotFirst = true
		b.firstChunk = elapsed
	}
	sent := bytesNow - b.baseBytes
	if sent < 0 {
		sent = 0
	}

	b.last = now
	b.lastBytes = bytesNow

	return Snapshot{
		Bytes:    sent,
		Elapsed:  elapsed,
		InstMBps: inst,
		EwmaMBps: b.ewma,
		AvgMBps:  float64(sent) / elapsed.Seconds() / mib,
		PeakMBps: b.peak,
	}
}

// Final closes the measurement at now.
func (b *Bench) Final(now time.Time, bytesNow int64) Summary {
	snap := b.Tick(now, bytesNow)
	return Summary{
		Bytes:         snap.Bytes,
		Elapsed:       snap.Elapsed,
		AvgMBps:       snap.AvgMBps,
		PeakMBps:      snap.PeakMBps,
		FirstChunk:    b.firstChunk,
		GotFirstChunk: b.gotFirst,
	}
}

// Aggregate combines the summaries of uploads run one after another: bytes and
// time add up, the peak is the highest single peak.
func Aggregate(sums []Summary) Summary {
	var agg Summary
	for _, s := range sums {
		agg.Bytes += s.Bytes
		agg.Elapsed += s.Elapsed
		if s.PeakMBps > agg.PeakMBps {
			agg.PeakMBps = s.PeakMBps
		}
		if s.GotFirstChunk && !agg.GotFirstChunk {
			agg.GotFirstChunk = true
			agg.FirstChunk = s.FirstChunk
		}
	}
	if agg.Elapsed > 0 {
		agg.AvgMBps = float64(agg.Bytes) / agg.Elapsed.Seconds() / mib
	}
	return agg
}
