// ABOUTME: Frame timing policy used by the release control
// ABOUTME: Interface plus the default threshold-based evaluator
package video

// FrameTimingEvaluator answers the timing policy questions asked while
// deciding on a frame. Implementations must be free of side effects.
type FrameTimingEvaluator interface {
	// ShouldForceReleaseFrame reports whether a frame must be released now even
	// though it is not on time, e.g. to avoid a visible stall.
	ShouldForceReleaseFrame(earlyUs, elapsedSinceLastReleaseUs int64) bool

	// ShouldDropFrame reports whether a late frame is discarded instead of shown.
	ShouldDropFrame(earlyUs, elapsedRealtimeUs int64, isLastFrame bool) bool

	// ShouldIgnoreFrame reports whether a frame is consumed without rendering and
	// without counting it as dropped.
	ShouldIgnoreFrame(earlyUs, positionUs, elapsedRealtimeUs int64, isLastFrame, treatDroppedBuffersAsSkipped bool) bool
}

// Default thresholds of DefaultFrameTimingEvaluator.
const (
	DefaultLateThresholdUs     int64 = -30_000
	DefaultVeryLateThresholdUs int64 = -500_000
	DefaultForceReleaseGapUs   int64 = 100_000
)

// DefaultFrameTimingEvaluator is a threshold-based timing policy.
//
// A frame is late when earlyUs < LateThresholdUs and very late when
// earlyUs < VeryLateThresholdUs. Late frames are dropped, very late frames are
// ignored, and a late frame is force released when nothing was released for
// more than ForceReleaseGapUs. The last frame of a stream is never dropped or
// ignored.
type DefaultFrameTimingEvaluator struct {
	LateThresholdUs     int64
	VeryLateThresholdUs int64
	ForceReleaseGapUs   int64
}

// NewDefaultFrameTimingEvaluator creates an evaluator with the default thresholds.
func NewDefaultFrameTimingEvaluator() *DefaultFrameTimingEvaluator {
	return &DefaultFrameTimingEvaluator{
		LateThresholdUs:     DefaultLateThresholdUs,
		VeryLateThresholdUs: DefaultVeryLateThresholdUs,
		ForceReleaseGapUs:   DefaultForceReleaseGapUs,
	}
}

func (e *DefaultFrameTimingEvaluator) ShouldForceReleaseFrame(earlyUs, elapsedSinceLastReleaseUs int64) bool {
	return earlyUs < e.LateThresholdUs && elapsedSinceLastReleaseUs > e.ForceReleaseGapUs
}

func (e *DefaultFrameTimingEvaluator) ShouldDropFrame(earlyUs, elapsedRealtimeUs int64, isLastFrame bool) bool {
	return earlyUs < e.LateThresholdUs && !isLastFrame
}

func (e *DefaultFrameTimingEvaluator) ShouldIgnoreFrame(earlyUs, positionUs, elapsedRealtimeUs int64, isLastFrame, treatDroppedBuffersAsSkipped bool) bool {
	return earlyUs < e.VeryLateThresholdUs && !isLastFrame
}

// FixedFrameTimingEvaluator returns the same answers for every frame. It is
// useful to pin a policy in tests and traces.
type FixedFrameTimingEvaluator struct {
	ForceRelease bool
	DropFrame    bool
	IgnoreFrame  bool
}

func (e FixedFrameTimingEvaluator) ShouldForceReleaseFrame(int64, int64) bool { return e.ForceRelease }

func (e FixedFrameTimingEvaluator) ShouldDropFrame(int64, int64, bool) bool { return e.DropFrame }

func (e FixedFrameTimingEvaluator) ShouldIgnoreFrame(int64, int64, int64, bool, bool) bool {
	return e.IgnoreFrame
}
