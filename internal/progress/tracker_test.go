package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerSeededAndMonotonic(t *testing.T) {
	var seen []int
	tr := NewTracker(5, 2, func(p int) { seen = append(seen, p) })

	assert.Equal(t, 40, tr.Percent())
	tr.Confirm()
	tr.Confirm()
	tr.Confirm()
	tr.Confirm()

	assert.Equal(t, []int{40, 60, 80, 100}, seen)
	assert.Equal(t, 5, tr.Confirmed())
	assert.Equal(t, 100, tr.Percent())
}

func TestTrackerConcurrentConfirmNeverRegresses(t *testing.T) {
	var mu sync.Mutex
	var seen []int
	tr := NewTracker(300, 0, func(p int) {
		mu.Lock()
		seen = append(seen, p)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 300; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Confirm()
		}()
	}
	wg.Wait()

	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1])
	}
	assert.Equal(t, 100, seen[len(seen)-1])
}

func TestTrackerZeroChunks(t *testing.T) {
	tr := NewTracker(0, 0, nil)
	assert.Equal(t, 100, tr.Percent())
	assert.Equal(t, 100, tr.Confirm())
}

func TestTrackerClampsSeed(t *testing.T) {
	tr := NewTracker(3, 9, nil)
	assert.Equal(t, 3, tr.Confirmed())
	assert.Equal(t, 100, tr.Percent())
}
