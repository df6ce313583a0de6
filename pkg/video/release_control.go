// ABOUTME: Frame release control state machine
// ABOUTME: Decides per frame whether to release, schedule, drop, skip, ignore or wait
package video

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/framepace-go/pkg/sync"
)

const (
	// unsetTime marks a timestamp that has not been set.
	unsetTime int64 = math.MinInt64

	// maxEarlyUsThreshold is the furthest ahead a frame may be and still be
	// scheduled. Frames further ahead are retried later.
	maxEarlyUsThreshold int64 = 50_000

	// maxEarlyUsToSkipWithoutTarget is how far ahead a frame may be and still
	// be skipped in step with playback when there is no output target.
	maxEarlyUsToSkipWithoutTarget int64 = 30_000
)

// playbackState is the enable/start state of the release control.
type playbackState int

const (
	stateDisabled playbackState = iota
	stateEnabled
	stateStarted
)

func (s playbackState) String() string {
	switch s {
	case stateDisabled:
		return "disabled"
	case stateEnabled:
		return "enabled"
	case stateStarted:
		return "started"
	}
	return fmt.Sprintf("playbackState(%d)", int(s))
}

// firstFrameState tracks the first frame of the current epoch. An epoch
// starts on enable, output target change, position reset and stream change.
// The values are ordered: lowering never moves to a later state.
type firstFrameState int

const (
	firstFrameNotRenderedOnlyAllowedIfStarted firstFrameState = iota
	firstFrameNotRendered
	firstFrameNotRenderedAfterStreamChange
	firstFrameRendered
)

// joinWindow is an active joining period.
type joinWindow struct {
	deadlineUs                 int64
	renderNextFrameImmediately bool
	// forcePending is set until the next frame has been force released.
	forcePending bool
}

// OutputTarget is an opaque display target handle. The release control only
// looks at whether one is attached.
type OutputTarget any

type outputTargetRef struct {
	handle OutputTarget
}

// Option configures a FrameReleaseControl.
type Option func(*FrameReleaseControl)

// WithClock sets the wall-clock source. Defaults to a SystemClock.
func WithClock(clock sync.Clock) Option {
	return func(c *FrameReleaseControl) {
		c.clock = clock
	}
}

// WithImmediateReleaseWindow releases on-time frames immediately when they are
// at most window early instead of scheduling them. Negative windows count as zero.
func WithImmediateReleaseWindow(window time.Duration) Option {
	return func(c *FrameReleaseControl) {
		c.immediateReleaseWindowUs = max(window.Microseconds(), 0)
	}
}

// FrameReleaseControl owns the frame release state and answers, for each
// frame, which FrameReleaseAction to take.
//
// Calls must be serialized by the caller. Only SetOutputTarget may be called
// from another goroutine.
type FrameReleaseControl struct {
	evaluator                FrameTimingEvaluator
	clock                    sync.Clock
	allowedJoiningTimeUs     int64
	immediateReleaseWindowUs int64

	state                  playbackState
	firstFrame             firstFrameState
	frameSeenWithoutTarget bool
	join                   *joinWindow
	outputTarget           atomic.Pointer[outputTargetRef]
	initialPositionUs      int64
	lastReleaseRealtimeUs  int64
	playbackSpeed          float64
}

// NewFrameReleaseControl creates a disabled release control. A join started
// with Join lasts allowedJoiningTime; zero disables joining.
func NewFrameReleaseControl(evaluator FrameTimingEvaluator, allowedJoiningTime time.Duration, opts ...Option) *FrameReleaseControl {
	if evaluator == nil {
		panic("video: nil FrameTimingEvaluator")
	}

	c := &FrameReleaseControl{
		evaluator:            evaluator,
		clock:                sync.NewSystemClock(),
		allowedJoiningTimeUs: allowedJoiningTime.Microseconds(),
		firstFrame:           firstFrameNotRenderedOnlyAllowedIfStarted,
		initialPositionUs:    unsetTime,
		playbackSpeed:        1.0,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.clock == nil {
		panic("video: nil Clock")
	}
	return c
}

// Clock returns the wall-clock source.
func (c *FrameReleaseControl) Clock() sync.Clock {
	return c.clock
}

// OnEnabled enables the control. When releaseFirstFrameBeforeStarted is false
// the first frame is held until OnStarted.
func (c *FrameReleaseControl) OnEnabled(releaseFirstFrameBeforeStarted bool) {
	if c.state != stateDisabled {
		panic(fmt.Sprintf("video: OnEnabled called while %v", c.state))
	}

	c.state = stateEnabled
	c.frameSeenWithoutTarget = false
	if releaseFirstFrameBeforeStarted {
		c.firstFrame = firstFrameNotRendered
	} else {
		c.firstFrame = firstFrameNotRenderedOnlyAllowedIfStarted
	}
}

// AllowReleaseFirstFrameBeforeStarted lets a held first frame be released
// before OnStarted.
func (c *FrameReleaseControl) AllowReleaseFirstFrameBeforeStarted() {
	if c.firstFrame == firstFrameNotRenderedOnlyAllowedIfStarted {
		c.firstFrame = firstFrameNotRendered
	}
}

// OnStarted marks playback as progressing.
func (c *FrameReleaseControl) OnStarted() {
	if c.state == stateDisabled {
		panic("video: OnStarted called on a disabled release control")
	}

	c.state = stateStarted
	c.lastReleaseRealtimeUs = c.clock.NowUs()
}

// OnStopped reverses OnStarted and ends any join.
func (c *FrameReleaseControl) OnStopped() {
	if c.state == stateStarted {
		c.state = stateEnabled
	}
	c.join = nil
}

// OnDisabled disables the control. The next OnEnabled starts a new epoch.
func (c *FrameReleaseControl) OnDisabled() {
	c.state = stateDisabled
	c.join = nil
	c.lowerFirstFrameState(firstFrameNotRenderedOnlyAllowedIfStarted)
}

// Reset returns the control to its disabled state and clears everything
// derived from previous frames. The output target is kept.
func (c *FrameReleaseControl) Reset() {
	c.state = stateDisabled
	c.firstFrame = firstFrameNotRenderedOnlyAllowedIfStarted
	c.frameSeenWithoutTarget = false
	c.join = nil
	c.initialPositionUs = unsetTime
	c.lastReleaseRealtimeUs = 0
}

// OnPositionReset starts a new first-frame epoch after a seek, keeping the
// enable and start state.
func (c *FrameReleaseControl) OnPositionReset() {
	c.initialPositionUs = unsetTime
	c.join = nil
	c.lowerFirstFrameState(firstFrameNotRendered)
}

// OnProcessedStreamChange starts a new first-frame epoch for a replacement
// input stream. The first frame is released once the position reaches the
// output stream start.
func (c *FrameReleaseControl) OnProcessedStreamChange() {
	c.lowerFirstFrameState(firstFrameNotRenderedAfterStreamChange)
}

// SetOutputTarget attaches target, or detaches the current one when target is
// nil. A new target needs a new first frame.
func (c *FrameReleaseControl) SetOutputTarget(target OutputTarget) {
	if target == nil {
		c.outputTarget.Store(nil)
	} else {
		c.outputTarget.Store(&outputTargetRef{handle: target})
	}
	c.lowerFirstFrameState(firstFrameNotRendered)
}

// OutputTarget returns the attached target, or nil.
func (c *FrameReleaseControl) OutputTarget() OutputTarget {
	if ref := c.outputTarget.Load(); ref != nil {
		return ref.handle
	}
	return nil
}

// HasOutputTarget reports whether an output target is attached.
func (c *FrameReleaseControl) HasOutputTarget() bool {
	return c.outputTarget.Load() != nil
}

// SetPlaybackSpeed sets the speed used to convert media time into wall time.
func (c *FrameReleaseControl) SetPlaybackSpeed(speed float64) {
	if speed <= 0 || math.IsNaN(speed) || math.IsInf(speed, 0) {
		panic(fmt.Sprintf("video: invalid playback speed %v", speed))
	}
	c.playbackSpeed = speed
}

// Join starts a joining period of the allowed joining time. When
// renderNextFrameImmediately is set the next frame is released regardless of
// its timing; otherwise late frames are skipped rather than dropped while
// joining.
func (c *FrameReleaseControl) Join(renderNextFrameImmediately bool) {
	if c.allowedJoiningTimeUs <= 0 {
		c.join = nil
		return
	}
	c.join = &joinWindow{
		deadlineUs:                 c.clock.NowUs() + c.allowedJoiningTimeUs,
		renderNextFrameImmediately: renderNextFrameImmediately,
		forcePending:               renderNextFrameImmediately,
	}
}

// Joining reports whether a joining period is active.
func (c *FrameReleaseControl) Joining() bool {
	return c.activeJoin() != nil
}

// Started reports whether playback is progressing.
func (c *FrameReleaseControl) Started() bool {
	return c.state == stateStarted
}

// Enabled reports whether the control is enabled.
func (c *FrameReleaseControl) Enabled() bool {
	return c.state != stateDisabled
}

// IsReady reports whether the renderer can be considered ready. It is ready
// once the first frame of the epoch was released (or, without an output
// target, became available) and the renderer is otherwise ready, or while a
// joining period is active.
func (c *FrameReleaseControl) IsReady(rendererOtherwiseReady bool) bool {
	firstFrameAvailable := c.firstFrame == firstFrameRendered ||
		(c.frameSeenWithoutTarget && !c.HasOutputTarget())
	if rendererOtherwiseReady && firstFrameAvailable {
		// Joined.
		c.join = nil
		return true
	}
	return c.activeJoin() != nil
}

// OnFrameReleasedIsFirstFrame records that a frame was released and reports
// whether it was the first one of the epoch.
func (c *FrameReleaseControl) OnFrameReleasedIsFirstFrame() bool {
	firstFrame := c.firstFrame != firstFrameRendered
	c.firstFrame = firstFrameRendered
	c.lastReleaseRealtimeUs = c.clock.NowUs()
	return firstFrame
}

// FrameReleaseAction decides what to do with the frame at presentationTimeUs.
//
// positionUs is the playback position and elapsedRealtimeUs the wall-clock
// reading taken when the position was sampled. info receives the early time
// and, for ReleaseScheduled, the release time.
func (c *FrameReleaseControl) FrameReleaseAction(
	presentationTimeUs, positionUs, elapsedRealtimeUs, outputStreamStartPositionUs int64,
	isDecodeOnlyFrame, isLastFrame bool,
	info *FrameReleaseInfo,
) FrameReleaseAction {
	if c.state == stateDisabled {
		panic("video: FrameReleaseAction called on a disabled release control")
	}

	info.reset()
	if c.initialPositionUs == unsetTime {
		c.initialPositionUs = positionUs
	}
	info.EarlyUs = c.calculateEarlyTimeUs(positionUs, elapsedRealtimeUs, presentationTimeUs)

	if isDecodeOnlyFrame {
		if isLastFrame {
			return ReleaseImmediately
		}
		return Skip
	}

	if !c.HasOutputTarget() {
		c.frameSeenWithoutTarget = true
		// Consume frames in step with playback so the right frame is pending
		// when a target is attached.
		if c.evaluator.ShouldIgnoreFrame(info.EarlyUs, positionUs, elapsedRealtimeUs, isLastFrame, true) {
			return Ignore
		}
		if c.state == stateStarted && info.EarlyUs < maxEarlyUsToSkipWithoutTarget {
			return Skip
		}
		return TryAgainLater
	}

	if c.shouldForceRelease(positionUs, info.EarlyUs, outputStreamStartPositionUs) {
		if c.join != nil {
			c.join.forcePending = false
		}
		return ReleaseImmediately
	}

	if c.state != stateStarted || positionUs == c.initialPositionUs || info.EarlyUs > maxEarlyUsThreshold {
		return TryAgainLater
	}

	join := c.activeJoin()
	treatDropAsSkip := join != nil && !join.renderNextFrameImmediately
	if c.evaluator.ShouldIgnoreFrame(info.EarlyUs, positionUs, elapsedRealtimeUs, isLastFrame, treatDropAsSkip) {
		return Ignore
	}
	if c.evaluator.ShouldDropFrame(info.EarlyUs, elapsedRealtimeUs, isLastFrame) {
		if treatDropAsSkip {
			return Skip
		}
		return Drop
	}
	if info.EarlyUs <= c.immediateReleaseWindowUs {
		return ReleaseImmediately
	}

	info.ReleaseTimeNs = (c.clock.NowUs() + info.EarlyUs) * int64(time.Microsecond)
	return ReleaseScheduled
}

// calculateEarlyTimeUs returns the wall time left until the frame is due.
// While started it accounts for the time elapsed since positionUs was sampled.
func (c *FrameReleaseControl) calculateEarlyTimeUs(positionUs, elapsedRealtimeUs, presentationTimeUs int64) int64 {
	earlyUs := int64(float64(presentationTimeUs-positionUs) / c.playbackSpeed)
	if c.state == stateStarted {
		earlyUs -= c.clock.NowUs() - elapsedRealtimeUs
	}
	return earlyUs
}

func (c *FrameReleaseControl) shouldForceRelease(positionUs, earlyUs, outputStreamStartPositionUs int64) bool {
	if join := c.activeJoin(); join != nil {
		if !join.renderNextFrameImmediately {
			// Catch up with the position first.
			return false
		}
		if join.forcePending {
			return true
		}
	}

	switch c.firstFrame {
	case firstFrameNotRenderedOnlyAllowedIfStarted:
		return c.state == stateStarted
	case firstFrameNotRendered:
		return true
	case firstFrameNotRenderedAfterStreamChange:
		return positionUs >= outputStreamStartPositionUs
	case firstFrameRendered:
		elapsedSinceLastReleaseUs := c.clock.NowUs() - c.lastReleaseRealtimeUs
		return c.state == stateStarted && c.evaluator.ShouldForceReleaseFrame(earlyUs, elapsedSinceLastReleaseUs)
	default:
		panic(fmt.Sprintf("video: unexpected first frame state %d", c.firstFrame))
	}
}

// activeJoin returns the current join window, expiring it once its deadline
// has passed.
func (c *FrameReleaseControl) activeJoin() *joinWindow {
	if c.join == nil {
		return nil
	}
	if c.clock.NowUs() >= c.join.deadlineUs {
		c.join = nil
		return nil
	}
	return c.join
}

func (c *FrameReleaseControl) lowerFirstFrameState(state firstFrameState) {
	c.firstFrame = min(c.firstFrame, state)
	c.frameSeenWithoutTarget = false
}
