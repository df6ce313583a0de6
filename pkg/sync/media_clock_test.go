// ABOUTME: Tests for the playback position clock
// ABOUTME: Verifies start/stop, seeks and speed changes keep the position continuous
package sync

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMediaClockStoppedByDefault(t *testing.T) {
	wall := NewFakeClock(0)
	media := NewMediaClock(wall)

	wall.Advance(time.Second)

	assert.False(t, media.Started())
	assert.Equal(t, int64(0), media.PositionUs())
	assert.Equal(t, 1.0, media.Speed())
}

func TestMediaClockStartStop(t *testing.T) {
	wall := NewFakeClock(0)
	media := NewMediaClock(wall)

	media.Start()
	wall.Advance(100 * time.Millisecond)
	assert.Equal(t, int64(100_000), media.PositionUs())

	media.Stop()
	wall.Advance(time.Second)
	assert.Equal(t, int64(100_000), media.PositionUs())

	media.Start()
	wall.Advance(50 * time.Millisecond)
	assert.Equal(t, int64(150_000), media.PositionUs())
}

func TestMediaClockResetPosition(t *testing.T) {
	wall := NewFakeClock(0)
	media := NewMediaClock(wall)
	media.Start()
	wall.Advance(time.Second)

	media.ResetPosition(5_000_000)
	assert.Equal(t, int64(5_000_000), media.PositionUs())

	wall.Advance(10 * time.Millisecond)
	assert.Equal(t, int64(5_010_000), media.PositionUs())
}

func TestMediaClockSpeed(t *testing.T) {
	wall := NewFakeClock(0)
	media := NewMediaClock(wall)
	media.Start()
	wall.Advance(100 * time.Millisecond)

	require.NoError(t, media.SetSpeed(2.0))
	assert.Equal(t, int64(100_000), media.PositionUs())

	wall.Advance(100 * time.Millisecond)
	assert.Equal(t, int64(300_000), media.PositionUs())
	assert.Equal(t, 2.0, media.Speed())

	assert.Error(t, media.SetSpeed(0))
	assert.Error(t, media.SetSpeed(-1))
	assert.Error(t, media.SetSpeed(math.NaN()))
	assert.Error(t, media.SetSpeed(math.Inf(1)))
	assert.Equal(t, 2.0, media.Speed())
}
