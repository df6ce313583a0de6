// ABOUTME: Tick-driven frame release scheduler
// ABOUTME: Feeds decoded frames to the render control and evaluates them every tick
package player

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/framepace-go/internal/source"
	mediasync "github.com/Resonate-Protocol/framepace-go/pkg/sync"
	"github.com/Resonate-Protocol/framepace-go/pkg/video"
)

// DefaultTickInterval is how often queued frames are evaluated.
const DefaultTickInterval = 10 * time.Millisecond

// Config holds scheduler configuration
type Config struct {
	TickInterval                   time.Duration
	AllowedJoiningTime             time.Duration
	ReleaseFirstFrameBeforeStarted bool
	ImmediateReleaseWindow         time.Duration
	// Evaluator defaults to video.NewDefaultFrameTimingEvaluator.
	Evaluator video.FrameTimingEvaluator
}

// Seeker restarts decoding at a new position and returns the epoch that
// frames decoded from there carry.
type Seeker interface {
	Seek(positionUs int64) uint64
}

// Scheduler owns the playback position and releases frames to an Output.
// All methods are safe for concurrent use.
type Scheduler struct {
	config  Config
	clock   mediasync.Clock
	media   *mediasync.MediaClock
	output  *Output
	release *video.FrameReleaseControl
	render  *video.FrameRenderControl
	seeker  Seeker

	mu             sync.Mutex
	epoch          uint64
	lastSize       video.VideoSize
	received       int64
	stale          int64
	outputAttached bool
	ended          bool
	closed         bool
}

// Stats tracks scheduler metrics
type Stats struct {
	Received       int64
	Rendered       int64
	Dropped        int64
	Skipped        int64
	Ignored        int64
	Stale          int64
	Pending        int
	PositionUs     int64
	HeadEarlyUs    int64
	Playing        bool
	Joining        bool
	Ready          bool
	Ended          bool
	OutputAttached bool
	Speed          float64
}

// NewScheduler creates an enabled scheduler releasing frames to output.
// seeker may be nil.
func NewScheduler(config Config, clock mediasync.Clock, output *Output, seeker Seeker) *Scheduler {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	evaluator := config.Evaluator
	if evaluator == nil {
		evaluator = video.NewDefaultFrameTimingEvaluator()
	}

	release := video.NewFrameReleaseControl(evaluator, config.AllowedJoiningTime,
		video.WithClock(clock),
		video.WithImmediateReleaseWindow(config.ImmediateReleaseWindow))
	release.SetOutputTarget(output)
	release.OnEnabled(config.ReleaseFirstFrameBeforeStarted)

	return &Scheduler{
		config:         config,
		clock:          clock,
		media:          mediasync.NewMediaClock(clock),
		output:         output,
		release:        release,
		render:         video.NewFrameRenderControl(output, release),
		seeker:         seeker,
		outputAttached: true,
	}
}

// MediaClock returns the playback position clock.
func (s *Scheduler) MediaClock() *mediasync.MediaClock {
	return s.media
}

// Run evaluates frames every tick and accepts decoded frames until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context, frames <-chan source.Frame) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			s.Submit(frame)
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Submit queues a decoded frame. Frames decoded before the last seek are
// discarded.
func (s *Scheduler) Submit(frame source.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if frame.Epoch != s.epoch {
		s.stale++
		return
	}
	if frame.EndOfStream {
		log.Infof("End of input after %d frames", s.received)
		s.render.SignalEndOfInput()
		return
	}

	// Log first few frames
	if s.received < 5 {
		log.Infof("Queued frame #%d: pts=%dμs size=%dx%d decodeOnly=%v",
			s.received, frame.PresentationTimeUs, frame.Width, frame.Height, frame.DecodeOnly)
	}
	s.received++

	size := video.VideoSize{Width: frame.Width, Height: frame.Height}
	if size != s.lastSize {
		s.render.OnVideoSizeChanged(size.Width, size.Height)
		s.lastSize = size
	}
	if frame.NewStream {
		log.Infof("New stream starting at %dμs", frame.StreamStartUs)
		s.render.OnStreamStartPositionChanged(frame.StreamStartUs)
	}
	if frame.DecodeOnly {
		s.render.OnDecodeOnlyFrameAvailable(frame.PresentationTimeUs)
	} else {
		s.render.OnFrameAvailableForRendering(frame.PresentationTimeUs)
	}
}

// Tick evaluates queued frames at the current position.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	nowUs := s.clock.NowUs()
	positionUs := s.media.PositionUs()
	s.render.Render(positionUs, nowUs)

	if s.render.IsEnded() && !s.ended {
		s.ended = true
		counters := s.render.Counters()
		log.Infof("Playback ended at %dμs: rendered=%d dropped=%d skipped=%d ignored=%d",
			positionUs, counters.Rendered, counters.Dropped, counters.Skipped, counters.Ignored)
	}
}

// Start starts playback.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.media.Started() {
		return
	}
	s.media.Start()
	s.release.OnStarted()
	log.Infof("Playback started at %dμs", s.media.PositionUs())
}

// Pause stops playback, keeping the position.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.media.Started() {
		return
	}
	s.media.Stop()
	s.release.OnStopped()
	log.Infof("Playback paused at %dμs", s.media.PositionUs())
}

// TogglePlayback starts or pauses playback.
func (s *Scheduler) TogglePlayback() {
	s.mu.Lock()
	started := s.media.Started()
	s.mu.Unlock()

	if started {
		s.Pause()
	} else {
		s.Start()
	}
}

// Seek discards queued frames and moves playback to positionUs.
func (s *Scheduler) Seek(positionUs int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.render.Flush()
	s.release.OnPositionReset()
	s.media.ResetPosition(positionUs)
	s.lastSize = video.VideoSize{}
	s.ended = false
	if s.seeker != nil {
		s.epoch = s.seeker.Seek(positionUs)
	}
	log.Infof("Seek to %dμs (epoch %d)", positionUs, s.epoch)
}

// Join starts a joining period.
func (s *Scheduler) Join(renderNextFrameImmediately bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.release.Join(renderNextFrameImmediately)
	log.Infof("Joining for %v (render next frame immediately: %v)",
		s.config.AllowedJoiningTime, renderNextFrameImmediately)
}

// SetSpeed changes the playback speed.
func (s *Scheduler) SetSpeed(speed float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.media.SetSpeed(speed); err != nil {
		return fmt.Errorf("failed to set speed: %w", err)
	}
	s.release.SetPlaybackSpeed(speed)
	log.Infof("Playback speed set to %.2fx", speed)
	return nil
}

// SetOutputAttached attaches or detaches the output. While detached, frames
// are consumed in step with playback without being shown.
func (s *Scheduler) SetOutputAttached(attached bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if attached == s.outputAttached {
		return
	}
	s.outputAttached = attached
	if attached {
		s.release.SetOutputTarget(s.output)
	} else {
		s.release.SetOutputTarget(nil)
	}
	log.Infof("Output %s attached: %v", s.output.Name(), attached)
}

// Close disables the release control. Call after Run has returned. Later
// calls that would release frames are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.media.Stop()
	s.release.OnDisabled()
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	counters := s.render.Counters()
	stats := Stats{
		Received:       s.received,
		Rendered:       counters.Rendered,
		Dropped:        counters.Dropped,
		Skipped:        counters.Skipped,
		Ignored:        counters.Ignored,
		Stale:          s.stale,
		Pending:        s.render.PendingFrames(),
		PositionUs:     s.media.PositionUs(),
		Playing:        s.media.Started(),
		Joining:        s.release.Joining(),
		Ready:          s.render.IsReady(),
		Ended:          s.ended,
		OutputAttached: s.outputAttached,
		Speed:          s.media.Speed(),
	}
	if info := s.render.LastReleaseInfo(); info.Evaluated() {
		stats.HeadEarlyUs = info.EarlyUs
	}
	return stats
}
