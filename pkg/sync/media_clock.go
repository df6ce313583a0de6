// ABOUTME: Playback position clock
// ABOUTME: Advances a media position from wall time at a playback speed
package sync

import (
	"fmt"
	"math"
	"sync"
)

// MediaClock tracks the playback position. While started the position moves
// with the wall clock scaled by the playback speed:
//
//	position = basePosition + speed * (now - baseTime)
//
// Every change of state rebases the line so the position stays continuous.
type MediaClock struct {
	mu            sync.RWMutex
	clock         Clock
	started       bool
	basePosition  int64 // Position (µs) at baseElapsedUs
	baseElapsedUs int64 // Wall time (µs) when the line was last rebased
	speed         float64
}

// NewMediaClock creates a stopped media clock at position zero.
func NewMediaClock(clock Clock) *MediaClock {
	return &MediaClock{
		clock: clock,
		speed: 1.0,
	}
}

// Start resumes position advancement.
func (m *MediaClock) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return
	}
	m.baseElapsedUs = m.clock.NowUs()
	m.started = true
}

// Stop freezes the position.
func (m *MediaClock) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return
	}
	m.basePosition = m.positionLocked(m.clock.NowUs())
	m.started = false
}

// ResetPosition jumps to positionUs, e.g. after a seek.
func (m *MediaClock) ResetPosition(positionUs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.basePosition = positionUs
	m.baseElapsedUs = m.clock.NowUs()
}

// SetSpeed changes the playback speed. The speed must be positive and finite.
func (m *MediaClock) SetSpeed(speed float64) error {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		return fmt.Errorf("invalid playback speed %v", speed)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.NowUs()
	m.basePosition = m.positionLocked(now)
	m.baseElapsedUs = now
	m.speed = speed
	return nil
}

// Speed returns the playback speed.
func (m *MediaClock) Speed() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.speed
}

// Started reports whether the position is advancing.
func (m *MediaClock) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// PositionUs returns the current playback position.
func (m *MediaClock) PositionUs() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.positionLocked(m.clock.NowUs())
}

func (m *MediaClock) positionLocked(nowUs int64) int64 {
	if !m.started {
		return m.basePosition
	}
	dt := float64(nowUs - m.baseElapsedUs)
	return m.basePosition + int64(m.speed*dt)
}
