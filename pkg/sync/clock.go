// ABOUTME: Monotonic wall-clock sources
// ABOUTME: System clock for playback and a manually advanced clock for tests
package sync

import (
	"sync"
	"time"
)

// Clock supplies monotonic wall-clock readings in microseconds.
type Clock interface {
	NowUs() int64
}

// SystemClock reads the monotonic clock relative to its creation time.
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock reading zero at creation.
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowUs returns microseconds elapsed since the clock was created.
func (c *SystemClock) NowUs() int64 {
	return time.Since(c.start).Microseconds()
}

// FakeClock only moves when told to.
type FakeClock struct {
	mu    sync.RWMutex
	nowUs int64
}

// NewFakeClock creates a clock frozen at startUs.
func NewFakeClock(startUs int64) *FakeClock {
	return &FakeClock{nowUs: startUs}
}

// NowUs returns the current fake time.
func (c *FakeClock) NowUs() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nowUs
}

// Advance moves the clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.AdvanceUs(d.Microseconds())
}

// AdvanceUs moves the clock forward by us microseconds.
func (c *FakeClock) AdvanceUs(us int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowUs += us
}

// Set jumps the clock to nowUs.
func (c *FakeClock) Set(nowUs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nowUs = nowUs
}
