package progress

import (
	"math"
	"sync"
)

// Tracker reports upload progress as round((already + confirmed) / total * 100).
// Reported values never decrease within one tracker's lifetime.
type Tracker struct {
	mu       sync.Mutex
	total    int
	done     int
	last     int
	onChange func(percent int)
}

// NewTracker creates a tracker for total chunks of which already are confirmed.
// onChange, if set, is invoked with every new percentage, including the initial one.
func NewTracker(total, already int, onChange func(percent int)) *Tracker {
	if already < 0 {
		already = 0
	}
	if total > 0 && already > total {
		already = total
	}
	t := &Tracker{total: total, done: already, onChange: onChange}
	t.last = t.compute()
	if onChange != nil {
		onChange(t.last)
	}
	return t
}

// Confirm records one more confirmed chunk and returns the current percentage.
func (t *Tracker) Confirm() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done < t.total {
		t.done++
	}
	p := t.compute()
	if p <= t.last {
		return t.last
	}
	t.last = p
	if t.onChange != nil {
		t.onChange(p)
	}
	return p
}

// Percent returns the last reported percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Confirmed returns the number of confirmed chunks including the seed.
func (t *Tracker) Confirmed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *Tracker) compute() int {
	if t.total <= 0 {
		return 100
	}
	return int(math.Round(float64(t.done) / float64(t.total) * 100))
}
