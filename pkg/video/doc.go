// ABOUTME: Video frame release scheduling package
// ABOUTME: Decides when decoded frames are presented, dropped or skipped
// Package video decides, on every playback tick, what happens to each decoded
// video frame: present it now, present it at a precise wall-clock time, drop
// it, skip it, ignore it, or wait.
//
// The package never blocks and never performs I/O. The caller supplies the
// playback position and the wall-clock time; a FrameTimingEvaluator supplies
// the timing policy.
//
// Example:
//
//	clock := sync.NewSystemClock()
//	release := video.NewFrameReleaseControl(video.NewDefaultFrameTimingEvaluator(), 5*time.Second,
//		video.WithClock(clock))
//	release.SetOutputTarget(surface)
//	release.OnEnabled(true)
//	render := video.NewFrameRenderControl(renderer, release)
//	render.OnFrameAvailableForRendering(0)
//	render.Render(positionUs, clock.NowUs())
package video
