// ABOUTME: Tests for the synthetic frame source
// ABOUTME: Verifies pacing against the position, seeks, size changes and end of stream
package source

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/framepace-go/pkg/video"
)

type fixedPosition struct{ us int64 }

func (p *fixedPosition) PositionUs() int64 { return p.us }

func testConfig() Config {
	config := DefaultConfig()
	config.FPS = 100
	config.Lookahead = 20 * time.Millisecond
	config.Jitter = 0
	config.GOP = 5
	return config
}

func timestamps(frames []Frame) []int64 {
	var pts []int64
	for _, f := range frames {
		pts = append(pts, f.PresentationTimeUs)
	}
	return pts
}

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(c *Config){
		"zero fps":        func(c *Config) { c.FPS = 0 },
		"NaN fps":         func(c *Config) { c.FPS = math.NaN() },
		"fps above 1MHz":  func(c *Config) { c.FPS = 2e6 },
		"infinite fps":    func(c *Config) { c.FPS = math.Inf(1) },
		"negative frames": func(c *Config) { c.Frames = -1 },
		"negative jitter": func(c *Config) { c.Jitter = -time.Millisecond },
		"zero gop":        func(c *Config) { c.GOP = 0 },
		"no sizes":        func(c *Config) { c.Sizes = nil },
		"zero poll":       func(c *Config) { c.PollInterval = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)
			assert.Error(t, config.Validate())

			_, err := NewTestPattern(config, &fixedPosition{})
			assert.Error(t, err)
		})
	}
}

func TestDueWithinLookahead(t *testing.T) {
	position := &fixedPosition{}
	src, err := NewTestPattern(testConfig(), position)
	require.NoError(t, err)

	assert.Equal(t, []int64{0, 10_000, 20_000}, timestamps(src.Due()))
	assert.Empty(t, src.Due())

	position.us = 15_000
	assert.Equal(t, []int64{30_000}, timestamps(src.Due()))
	assert.Equal(t, int64(4), src.Emitted())
}

func TestEndOfStream(t *testing.T) {
	config := testConfig()
	config.Frames = 2
	src, err := NewTestPattern(config, &fixedPosition{us: time.Second.Microseconds()})
	require.NoError(t, err)

	frames := src.Due()

	require.Len(t, frames, 3)
	assert.False(t, frames[1].EndOfStream)
	assert.True(t, frames[2].EndOfStream)
	assert.Empty(t, src.Due())
}

func TestSeekRestartsAtKeyframe(t *testing.T) {
	config := testConfig()
	config.Lookahead = 0
	position := &fixedPosition{}
	src, err := NewTestPattern(config, position)
	require.NoError(t, err)
	src.Due()

	position.us = 72_000
	epoch := src.Seek(72_000)
	frames := src.Due()

	assert.Equal(t, uint64(1), epoch)
	require.Equal(t, []int64{50_000, 60_000, 70_000}, timestamps(frames))
	assert.True(t, frames[0].DecodeOnly)
	assert.True(t, frames[1].DecodeOnly)
	assert.False(t, frames[2].DecodeOnly)
	for _, f := range frames {
		assert.Equal(t, epoch, f.Epoch)
	}
}

func TestSeekAfterEndOfStream(t *testing.T) {
	config := testConfig()
	config.Frames = 3
	position := &fixedPosition{us: time.Second.Microseconds()}
	src, err := NewTestPattern(config, position)
	require.NoError(t, err)
	src.Due()

	position.us = 0
	src.Seek(0)

	assert.Equal(t, []int64{0, 10_000, 20_000, 0}, timestamps(src.Due()))
}

func TestSizeChangesAndDiscontinuities(t *testing.T) {
	config := testConfig()
	config.Sizes = []video.VideoSize{{Width: 640, Height: 360}, {Width: 1280, Height: 720}}
	config.SizeChangeEvery = 2
	config.DiscontinuityEvery = 3
	src, err := NewTestPattern(config, &fixedPosition{us: 30_000})
	require.NoError(t, err)

	frames := src.Due()

	require.Len(t, frames, 6)
	widths := []int{frames[0].Width, frames[1].Width, frames[2].Width, frames[3].Width, frames[4].Width}
	assert.Equal(t, []int{640, 640, 1280, 1280, 640}, widths)
	assert.False(t, frames[0].NewStream)
	assert.True(t, frames[3].NewStream)
	assert.Equal(t, int64(30_000), frames[3].StreamStartUs)
}

func TestJitterDelaysFrames(t *testing.T) {
	config := testConfig()
	config.Lookahead = 0
	config.Jitter = 5 * time.Millisecond
	position := &fixedPosition{}
	src, err := NewTestPattern(config, position)
	require.NoError(t, err)

	// Every frame is emitted once the position passes its timestamp plus the
	// maximum jitter.
	position.us = 45_000
	assert.Equal(t, []int64{0, 10_000, 20_000, 30_000, 40_000}, timestamps(src.Due()))
}

func TestRunEmitsUntilCancelled(t *testing.T) {
	config := testConfig()
	config.Frames = 2
	config.PollInterval = time.Millisecond
	src, err := NewTestPattern(config, &fixedPosition{us: time.Second.Microseconds()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Frame, 4)
	done := make(chan struct{})
	go func() {
		src.Run(ctx, out)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		select {
		case <-out:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for frame")
		}
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
