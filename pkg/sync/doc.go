// ABOUTME: Clock package
// ABOUTME: Wall-clock sources and the playback position clock
// Package sync provides the clocks used for frame release timing.
//
// Clock is the monotonic wall-clock source injected into the release control.
// SystemClock reads the runtime's monotonic clock, FakeClock is advanced by
// hand in tests, and MediaClock derives a playback position from a Clock.
//
// Example:
//
//	clock := sync.NewSystemClock()
//	media := sync.NewMediaClock(clock)
//	media.ResetPosition(0)
//	media.Start()
//	positionUs := media.PositionUs()
package sync
