package bench

import (
	"testing"
	"time"
)

func TestBenchEWMAAndPeak(t *testing.T) {
	b := New()
	start := time.Unix(0, 0)
	b.Start(start, 0)

	snap := b.Tick(start.Add(1*time.Second), 100*mib)
	if snap.InstMBps < 99 || snap.InstMBps > 101 {
		t.Fatalf("unexpected inst %.2f", snap.InstMBps)
	}
	if snap.PeakMBps < snap.InstMBps {
		t.Fatalf("peak should be >= inst")
	}

	prevEWMA := snap.EwmaMBps
	snap = b.Tick(start.Add(3*time.Second), 150*mib)
	if snap.EwmaMBps <= 0 || snap.EwmaMBps >= prevEWMA {
		t.Fatalf("unexpected ewma %.2f", snap.EwmaMBps)
	}
	if snap.PeakMBps != prevEWMA {
		t.Fatalf("peak should stay at the first interval, got %.2f", snap.PeakMBps)
	}
}

func TestBenchResumedBytesExcluded(t *testing.T) {
	b := New()
	start := time.Unix(0, 0)
	b.Start(start, 40*mib)

	sum := b.Final(start.Add(2*time.Second), 60*mib)
	if sum.Bytes != 20*mib {
		t.Fatalf("expected 20 MiB sent, got %d", sum.Bytes)
	}
	if sum.AvgMBps < 9.9 || sum.AvgMBps > 10.1 {
		t.Fatalf("unexpected avg %.2f", sum.AvgMBps)
	}
}

func TestBenchFirstChunkFreeze(t *testing.T) {
	b := New()
	start := time.Unix(0, 0)
	b.Start(start, 0)
	_ = b.Tick(start.Add(1500*time.Millisecond), 1)
	sum := b.Final(start.Add(2500*time.Millisecond), 2)
	if !sum.GotFirstChunk || sum.FirstChunk != 1500*time.Millisecond {
		t.Fatalf("expected first chunk at 1.5s, got %s", sum.FirstChunk)
	}
}

func TestBenchTickWithoutStart(t *testing.T) {
	b := New()
	start := time.Unix(0, 0)
	snap := b.Tick(start, 5)
	if snap.InstMBps != 0 || snap.Bytes != 0 {
		t.Fatalf("first tick should only seed, got %+v", snap)
	}
	sum := b.Final(start.Add(time.Second), 5)
	if sum.Bytes != 0 || sum.GotFirstChunk {
		t.Fatalf("nothing was sent, got %+v", sum)
	}
}

func TestAggregate(t *testing.T) {
	agg := Aggregate([]Summary{
		{Bytes: 10 * mib, Elapsed: time.Second, PeakMBps: 12},
		{Bytes: 0, Elapsed: 0},
		{Bytes: 20 * mib, Elapsed: 3 * time.Second, PeakMBps: 30, GotFirstChunk: true, FirstChunk: time.Second},
	})
	if agg.Bytes != 30*mib || agg.Elapsed != 4*time.Second {
		t.Fatalf("unexpected totals %+v", agg)
	}
	if agg.AvgMBps < 7.4 || agg.AvgMBps > 7.6 {
		t.Fatalf("unexpected avg %.2f", agg.AvgMBps)
	}
	if agg.PeakMBps != 30 || !agg.GotFirstChunk || agg.FirstChunk != time.Second {
		t.Fatalf("unexpected aggregate %+v", agg)
	}

	if empty := Aggregate(nil); empty.AvgMBps != 0 {
		t.Fatalf("empty aggregate should be zero, got %+v", empty)
	}
}
