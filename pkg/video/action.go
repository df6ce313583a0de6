// ABOUTME: Frame release actions and release info
// ABOUTME: The six possible outcomes of evaluating a frame
package video

import "fmt"

// FrameReleaseAction is the decision taken for a single frame.
type FrameReleaseAction int

const (
	// ReleaseImmediately presents the frame right away.
	ReleaseImmediately FrameReleaseAction = iota
	// ReleaseScheduled presents the frame at FrameReleaseInfo.ReleaseTimeNs.
	ReleaseScheduled
	// Drop discards a late frame and counts it as dropped.
	Drop
	// Skip consumes the frame without presenting it.
	Skip
	// Ignore consumes the frame without presenting it or counting it as dropped.
	Ignore
	// TryAgainLater leaves the frame pending until a later tick.
	TryAgainLater
)

var actionNames = [...]string{
	ReleaseImmediately: "RELEASE_IMMEDIATELY",
	ReleaseScheduled:   "RELEASE_SCHEDULED",
	Drop:               "DROP",
	Skip:               "SKIP",
	Ignore:             "IGNORE",
	TryAgainLater:      "TRY_AGAIN_LATER",
}

func (a FrameReleaseAction) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("FrameReleaseAction(%d)", int(a))
	}
	return actionNames[a]
}

// Releases reports whether the action presents the frame.
func (a FrameReleaseAction) Releases() bool {
	return a == ReleaseImmediately || a == ReleaseScheduled
}

// Consumes reports whether the frame leaves the pending queue.
func (a FrameReleaseAction) Consumes() bool {
	return a != TryAgainLater
}

// FrameReleaseInfo carries the timing details of the last decision.
type FrameReleaseInfo struct {
	// EarlyUs is how early the frame is, in microseconds of wall time.
	// Negative values mean the frame is late.
	EarlyUs int64
	// ReleaseTimeNs is the absolute wall-clock release time. Only set for
	// ReleaseScheduled.
	ReleaseTimeNs int64
}

// Evaluated reports whether EarlyUs holds a value.
func (i FrameReleaseInfo) Evaluated() bool {
	return i.EarlyUs != unsetTime
}

// Scheduled reports whether ReleaseTimeNs holds a value.
func (i FrameReleaseInfo) Scheduled() bool {
	return i.ReleaseTimeNs != unsetTime
}

// reset clears the info before a new evaluation.
func (i *FrameReleaseInfo) reset() {
	i.EarlyUs = unsetTime
	i.ReleaseTimeNs = unsetTime
}
