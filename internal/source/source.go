// ABOUTME: Synthetic decoded-frame source for the simulator
// ABOUTME: Emits test pattern frames ahead of the playback position with decode jitter
package source

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/framepace-go/pkg/video"
)

// Frame is a decoded frame handed to the player.
type Frame struct {
	Epoch              uint64
	PresentationTimeUs int64
	Width              int
	Height             int
	// DecodeOnly frames precede a seek target and only prime the decoder.
	DecodeOnly bool
	// NewStream marks the first frame of a new input stream starting at
	// StreamStartUs.
	NewStream     bool
	StreamStartUs int64
	// EndOfStream is a marker without a picture.
	EndOfStream bool
}

// PositionSource reports the playback position frames are decoded against.
type PositionSource interface {
	PositionUs() int64
}

// Config configures a TestPattern.
type Config struct {
	FPS float64
	// Frames is the stream length. Zero means endless.
	Frames int
	// Lookahead is how far ahead of the position frames are decoded.
	Lookahead time.Duration
	// Jitter is the maximum extra decode delay per frame.
	Jitter time.Duration
	// GOP is the keyframe interval in frames. Seeks restart decoding at the
	// preceding keyframe.
	GOP int
	// Sizes are cycled every SizeChangeEvery frames.
	Sizes           []video.VideoSize
	SizeChangeEvery int
	// DiscontinuityEvery starts a new input stream every n frames. Zero disables.
	DiscontinuityEvery int
	PollInterval       time.Duration
	Seed               uint64
}

// DefaultConfig returns a 30fps endless 720p stream.
func DefaultConfig() Config {
	return Config{
		FPS:          30,
		Lookahead:    60 * time.Millisecond,
		Jitter:       10 * time.Millisecond,
		GOP:          30,
		Sizes:        []video.VideoSize{{Width: 1280, Height: 720}},
		PollInterval: 5 * time.Millisecond,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.FPS <= 0 || math.IsNaN(c.FPS) {
		return fmt.Errorf("fps must be positive, got %v", c.FPS)
	}
	if c.frameDurationUs() <= 0 {
		return fmt.Errorf("fps %v leaves no time per frame", c.FPS)
	}
	if c.Frames < 0 {
		return fmt.Errorf("frames must not be negative, got %d", c.Frames)
	}
	if c.Lookahead < 0 || c.Jitter < 0 {
		return fmt.Errorf("lookahead and jitter must not be negative")
	}
	if c.GOP <= 0 {
		return fmt.Errorf("gop must be positive, got %d", c.GOP)
	}
	if len(c.Sizes) == 0 {
		return fmt.Errorf("at least one frame size is required")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// TestPattern decodes a synthetic stream. A frame is emitted once the
// position is within the lookahead of its timestamp plus a random decode
// delay, so delays larger than the lookahead produce late frames.
type TestPattern struct {
	config   Config
	position PositionSource
	rng      *rand.Rand

	mu         sync.Mutex
	epoch      uint64
	next       int
	seekTarget int64
	delayUs    int64 // decode delay of the next frame
	ended      bool
	emitted    int64
}

// NewTestPattern creates a source decoding against position.
func NewTestPattern(config Config, position PositionSource) (*TestPattern, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source config: %w", err)
	}

	s := &TestPattern{
		config:   config,
		position: position,
		rng:      rand.New(rand.NewPCG(config.Seed, config.Seed^0x9e3779b97f4a7c15)),
	}
	s.delayUs = s.drawDelay()
	return s, nil
}

// FrameDurationUs returns the duration of one frame.
func (s *TestPattern) FrameDurationUs() int64 {
	return s.config.frameDurationUs()
}

func (c Config) frameDurationUs() int64 {
	return int64(float64(time.Second.Microseconds()) / c.FPS)
}

// Seek restarts decoding at the keyframe preceding positionUs. Frames before
// positionUs are emitted as decode-only. Frames carry the returned epoch.
func (s *TestPattern) Seek(positionUs int64) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	target := max(positionUs, 0)
	index := int(target / s.FrameDurationUs())
	if s.config.Frames > 0 {
		index = min(index, s.config.Frames-1)
	}
	keyframe := index - index%s.config.GOP

	s.epoch++
	s.next = keyframe
	s.seekTarget = target
	s.ended = false
	s.delayUs = s.drawDelay()

	log.Debugf("Source seek to %dμs: restarting at frame %d (epoch %d)", target, keyframe, s.epoch)
	return s.epoch
}

// Emitted returns the number of frames emitted so far.
func (s *TestPattern) Emitted() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emitted
}

// Run emits frames to out until ctx is cancelled.
func (s *TestPattern) Run(ctx context.Context, out chan<- Frame) {
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		for _, frame := range s.Due() {
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Due returns the frames that have finished decoding at the current position.
func (s *TestPattern) Due() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ended {
		return nil
	}

	positionUs := s.position.PositionUs()
	lookaheadUs := s.config.Lookahead.Microseconds()
	frameDurationUs := s.FrameDurationUs()

	var frames []Frame
	for {
		if s.config.Frames > 0 && s.next >= s.config.Frames {
			s.ended = true
			frames = append(frames, Frame{Epoch: s.epoch, EndOfStream: true})
			log.Debugf("Source reached end of stream after frame %d", s.next-1)
			return frames
		}

		ptsUs := int64(s.next) * frameDurationUs
		decodeOnly := ptsUs < s.seekTarget
		if !decodeOnly && positionUs+lookaheadUs < ptsUs+s.delayUs {
			return frames
		}

		frames = append(frames, s.frameAt(s.next, ptsUs, decodeOnly))
		s.next++
		s.emitted++
		s.delayUs = s.drawDelay()
	}
}

func (s *TestPattern) frameAt(index int, ptsUs int64, decodeOnly bool) Frame {
	size := s.config.Sizes[0]
	if s.config.SizeChangeEvery > 0 {
		size = s.config.Sizes[(index/s.config.SizeChangeEvery)%len(s.config.Sizes)]
	}

	frame := Frame{
		Epoch:              s.epoch,
		PresentationTimeUs: ptsUs,
		Width:              size.Width,
		Height:             size.Height,
		DecodeOnly:         decodeOnly,
	}
	if s.config.DiscontinuityEvery > 0 && index > 0 && index%s.config.DiscontinuityEvery == 0 {
		frame.NewStream = true
		frame.StreamStartUs = ptsUs
	}
	return frame
}

func (s *TestPattern) drawDelay() int64 {
	jitterUs := s.config.Jitter.Microseconds()
	if jitterUs <= 0 {
		return 0
	}
	return s.rng.Int64N(jitterUs + 1)
}
