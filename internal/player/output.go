// ABOUTME: Simulated video output receiving release decisions
// ABOUTME: Records presented frames, size changes and presentation error
package player

import (
	"sync"

	log "github.com/sirupsen/logrus"

	mediasync "github.com/Resonate-Protocol/framepace-go/pkg/sync"
	"github.com/Resonate-Protocol/framepace-go/pkg/video"
)

// PresentedFrame is a frame handed to the display.
type PresentedFrame struct {
	PresentationTimeUs int64
	ReleaseTimeNs      int64
	FirstFrame         bool
}

// OutputStats summarizes what the output has shown.
type OutputStats struct {
	Presented   int64
	Dropped     int64
	FirstFrames int64
	SizeChanges int64
	Size        video.VideoSize
	Last        PresentedFrame
	// LeadUs is how far ahead of now the last frame was scheduled.
	LeadUs int64
	// MaxLeadUs is the largest lead seen.
	MaxLeadUs int64
}

// Output is a display that accepts frames from a video.FrameRenderControl.
// It is also the output target attached to the release control.
type Output struct {
	name  string
	clock mediasync.Clock

	mu    sync.RWMutex
	stats OutputStats
}

// NewOutput creates a display named name.
func NewOutput(name string, clock mediasync.Clock) *Output {
	return &Output{
		name:  name,
		clock: clock,
	}
}

// Name returns the display name.
func (o *Output) Name() string {
	return o.name
}

// OnVideoSizeChanged implements video.FrameRenderer.
func (o *Output) OnVideoSizeChanged(width, height int) {
	o.mu.Lock()
	o.stats.Size = video.VideoSize{Width: width, Height: height}
	o.stats.SizeChanges++
	o.mu.Unlock()

	log.Infof("Output %s: video size %dx%d", o.name, width, height)
}

// RenderFrame implements video.FrameRenderer.
func (o *Output) RenderFrame(releaseTimeNs, presentationTimeUs int64, isFirstFrame bool) {
	leadUs := releaseTimeNs/1000 - o.clock.NowUs()

	o.mu.Lock()
	o.stats.Presented++
	o.stats.Last = PresentedFrame{
		PresentationTimeUs: presentationTimeUs,
		ReleaseTimeNs:      releaseTimeNs,
		FirstFrame:         isFirstFrame,
	}
	o.stats.LeadUs = leadUs
	o.stats.MaxLeadUs = max(o.stats.MaxLeadUs, leadUs)
	if isFirstFrame {
		o.stats.FirstFrames++
	}
	presented := o.stats.Presented
	o.mu.Unlock()

	// Log first few frames and first frames of each epoch
	if isFirstFrame || presented <= 5 {
		log.Infof("Output %s: presented frame #%d pts=%dμs first=%v lead=%dμs",
			o.name, presented, presentationTimeUs, isFirstFrame, leadUs)
	} else {
		log.Debugf("Output %s: presented pts=%dμs lead=%dμs", o.name, presentationTimeUs, leadUs)
	}
}

// DropFrame implements video.FrameRenderer.
func (o *Output) DropFrame() {
	o.mu.Lock()
	o.stats.Dropped++
	o.mu.Unlock()

	log.Debugf("Output %s: dropped late frame", o.name)
}

// Stats returns a snapshot of the output statistics.
func (o *Output) Stats() OutputStats {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stats
}
