// ABOUTME: Frame render control driving a FrameRenderer from queued frames
// ABOUTME: Applies release decisions in order and reports size changes before frames
package video

import (
	"fmt"
	"time"

	"github.com/cnotch/queue"
)

// VideoSize is a frame resolution in pixels.
type VideoSize struct {
	Width  int
	Height int
}

// FrameRenderer receives the outcome of release decisions.
type FrameRenderer interface {
	// OnVideoSizeChanged is called before the first frame rendered at a new size.
	OnVideoSizeChanged(width, height int)
	// RenderFrame presents a frame at releaseTimeNs on the wall clock.
	RenderFrame(releaseTimeNs, presentationTimeUs int64, isFirstFrame bool)
	// DropFrame reports a frame dropped for being late.
	DropFrame()
}

// FrameCounters counts consumed frames by outcome.
type FrameCounters struct {
	Rendered int64
	Dropped  int64
	Skipped  int64
	Ignored  int64
}

// pendingFrame is a decoded frame waiting to be released. Notes announced
// before the frame was queued travel with it.
type pendingFrame struct {
	presentationTimeUs int64
	videoSize          *VideoSize
	// streamStartPositionUs is unsetTime when the frame does not open a stream.
	streamStartPositionUs int64
	decodeOnly            bool
}

// FrameRenderControl queues decoded frames and releases them to a
// FrameRenderer as a FrameReleaseControl decides. It is not safe for
// concurrent use.
type FrameRenderControl struct {
	renderer FrameRenderer
	release  *FrameReleaseControl
	info     FrameReleaseInfo

	// head is the oldest frame, taken off queue while it awaits a decision.
	head  *pendingFrame
	queue queue.Queue

	// Notes announced but not yet attached to a queued frame.
	pendingVideoSize     *VideoSize
	pendingStreamStartUs int64

	// Size attached to a consumed frame and not yet reported.
	carriedVideoSize  *VideoSize
	reportedVideoSize *VideoSize

	outputStreamStartPositionUs int64
	lastPresentationTimeUs      int64
	inputEnded                  bool
	counters                    FrameCounters
}

// NewFrameRenderControl creates a render control releasing frames to renderer.
func NewFrameRenderControl(renderer FrameRenderer, release *FrameReleaseControl) *FrameRenderControl {
	if renderer == nil {
		panic("video: nil FrameRenderer")
	}
	if release == nil {
		panic("video: nil FrameReleaseControl")
	}
	r := &FrameRenderControl{
		renderer:               renderer,
		release:                release,
		pendingStreamStartUs:   unsetTime,
		lastPresentationTimeUs: unsetTime,
	}
	r.info.reset()
	return r
}

// ReleaseControl returns the release control making decisions.
func (r *FrameRenderControl) ReleaseControl() *FrameReleaseControl {
	return r.release
}

// OnVideoSizeChanged notes a new size for the next queued frame.
func (r *FrameRenderControl) OnVideoSizeChanged(width, height int) {
	r.pendingVideoSize = &VideoSize{Width: width, Height: height}
}

// OnStreamStartPositionChanged notes that the next queued frame opens a stream
// starting at streamStartPositionUs.
func (r *FrameRenderControl) OnStreamStartPositionChanged(streamStartPositionUs int64) {
	r.pendingStreamStartUs = streamStartPositionUs
}

// OnFrameAvailableForRendering queues a decoded frame.
func (r *FrameRenderControl) OnFrameAvailableForRendering(presentationTimeUs int64) {
	r.enqueue(presentationTimeUs, false)
}

// OnDecodeOnlyFrameAvailable queues a frame that was decoded only to prime the
// decoder. It is skipped unless it is the last frame of the stream.
func (r *FrameRenderControl) OnDecodeOnlyFrameAvailable(presentationTimeUs int64) {
	r.enqueue(presentationTimeUs, true)
}

func (r *FrameRenderControl) enqueue(presentationTimeUs int64, decodeOnly bool) {
	if r.inputEnded {
		panic("video: frame queued after end of input")
	}

	r.queue.Push(&pendingFrame{
		presentationTimeUs:    presentationTimeUs,
		videoSize:             r.pendingVideoSize,
		streamStartPositionUs: r.pendingStreamStartUs,
		decodeOnly:            decodeOnly,
	})
	r.pendingVideoSize = nil
	r.pendingStreamStartUs = unsetTime
}

// SignalEndOfInput marks that no more frames will be queued until Flush.
func (r *FrameRenderControl) SignalEndOfInput() {
	r.inputEnded = true
}

// Render evaluates queued frames in order at the given position, stopping at
// the first frame that is not due yet.
func (r *FrameRenderControl) Render(positionUs, elapsedRealtimeUs int64) {
	for r.PendingFrames() > 0 {
		frame := r.peek()
		if frame.streamStartPositionUs != unsetTime {
			r.outputStreamStartPositionUs = frame.streamStartPositionUs
			frame.streamStartPositionUs = unsetTime
			r.release.OnProcessedStreamChange()
		}

		isLastFrame := r.inputEnded && r.PendingFrames() == 1
		action := r.release.FrameReleaseAction(
			frame.presentationTimeUs,
			positionUs,
			elapsedRealtimeUs,
			r.outputStreamStartPositionUs,
			frame.decodeOnly,
			isLastFrame,
			&r.info,
		)

		switch action {
		case TryAgainLater:
			return
		case ReleaseImmediately, ReleaseScheduled:
			r.renderFrame(action)
		case Drop:
			r.consume()
			r.counters.Dropped++
			r.renderer.DropFrame()
		case Skip:
			r.consume()
			r.counters.Skipped++
		case Ignore:
			r.consume()
			r.counters.Ignored++
		default:
			panic(fmt.Sprintf("video: unexpected frame release action %v", action))
		}
	}
}

// Flush discards queued frames and size notes. A stream start note is kept
// for the next queued frame.
func (r *FrameRenderControl) Flush() {
	latestStreamStartUs := r.pendingStreamStartUs
	if r.head != nil && r.head.streamStartPositionUs != unsetTime {
		latestStreamStartUs = r.head.streamStartPositionUs
	}
	for _, elem := range r.queue.Elems() {
		if frame := elem.(*pendingFrame); frame.streamStartPositionUs != unsetTime {
			latestStreamStartUs = frame.streamStartPositionUs
		}
	}
	r.head = nil
	r.queue.Reset()

	r.pendingStreamStartUs = latestStreamStartUs
	r.pendingVideoSize = nil
	r.carriedVideoSize = nil
	r.lastPresentationTimeUs = unsetTime
	r.inputEnded = false
	r.info.reset()
}

// IsReady reports whether the first frame is out or a join is in progress.
func (r *FrameRenderControl) IsReady() bool {
	return r.release.IsReady(true)
}

// IsEnded reports whether input ended and every queued frame was consumed.
func (r *FrameRenderControl) IsEnded() bool {
	return r.inputEnded && r.PendingFrames() == 0
}

// HasReleasedFrame reports whether a frame at or after presentationTimeUs has
// been consumed since the last flush.
func (r *FrameRenderControl) HasReleasedFrame(presentationTimeUs int64) bool {
	return r.lastPresentationTimeUs != unsetTime && r.lastPresentationTimeUs >= presentationTimeUs
}

// PendingFrames returns the number of queued frames.
func (r *FrameRenderControl) PendingFrames() int {
	if r.head != nil {
		return r.queue.Len() + 1
	}
	return r.queue.Len()
}

// Counters returns consumed frame counts.
func (r *FrameRenderControl) Counters() FrameCounters {
	return r.counters
}

// LastReleaseInfo returns the timing details of the last decision.
func (r *FrameRenderControl) LastReleaseInfo() FrameReleaseInfo {
	return r.info
}

// peek returns the oldest queued frame, which stays queued until consumed.
func (r *FrameRenderControl) peek() *pendingFrame {
	if r.head == nil {
		v, _ := r.queue.Pop()
		r.head = v.(*pendingFrame)
	}
	return r.head
}

func (r *FrameRenderControl) consume() *pendingFrame {
	frame := r.peek()
	r.head = nil
	if frame.videoSize != nil {
		r.carriedVideoSize = frame.videoSize
	}
	r.lastPresentationTimeUs = frame.presentationTimeUs
	return frame
}

func (r *FrameRenderControl) renderFrame(action FrameReleaseAction) {
	frame := r.consume()

	if size := r.carriedVideoSize; size != nil {
		r.carriedVideoSize = nil
		if r.reportedVideoSize == nil || *r.reportedVideoSize != *size {
			r.reportedVideoSize = size
			r.renderer.OnVideoSizeChanged(size.Width, size.Height)
		}
	}

	releaseTimeNs := r.info.ReleaseTimeNs
	if action == ReleaseImmediately {
		releaseTimeNs = r.release.Clock().NowUs() * int64(time.Microsecond)
	}
	isFirstFrame := r.release.OnFrameReleasedIsFirstFrame()
	r.counters.Rendered++
	r.renderer.RenderFrame(releaseTimeNs, frame.presentationTimeUs, isFirstFrame)
}
