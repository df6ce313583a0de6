// ABOUTME: Scripted release scenarios run against a fake clock
// ABOUTME: Prints the release decision for every evaluated frame
package main

import (
	"fmt"
	"io"
	"time"

	mediasync "github.com/Resonate-Protocol/framepace-go/pkg/sync"
	"github.com/Resonate-Protocol/framepace-go/pkg/video"
)

// lookaheadUs is how far ahead of the position frames arrive.
const lookaheadUs = 20_000

type scenario struct {
	name        string
	description string
	frames      int
	frameUs     int64
	tickUs      int64
	speed       float64
	// delayUs returns extra arrival delay for frame i.
	delayUs                 func(i int) int64
	releaseFirstBeforeStart bool
	startAtUs               int64
	joinMs                  int
	joinAtUs                int64
	joinImmediately         bool
}

var scenarios = []scenario{
	{
		name:        "steady",
		description: "30fps frames arriving on time",
		frames:      10,
		frameUs:     33_333,
		tickUs:      5_000,
		speed:       1,
	},
	{
		name:        "late",
		description: "frames 3 to 5 arrive 60ms late and frame 6 arrives 600ms late",
		frames:      10,
		frameUs:     33_333,
		tickUs:      5_000,
		speed:       1,
		delayUs: func(i int) int64 {
			switch {
			case i >= 3 && i <= 5:
				return 60_000
			case i == 6:
				return 600_000
			}
			return 0
		},
	},
	{
		name:                    "first-frame",
		description:             "first frame shown while paused, playback starts at 200ms",
		frames:                  5,
		frameUs:                 40_000,
		tickUs:                  10_000,
		speed:                   1,
		releaseFirstBeforeStart: true,
		startAtUs:               200_000,
	},
	{
		name:            "join",
		description:     "late frames while joining are skipped, not dropped",
		frames:          8,
		frameUs:         33_333,
		tickUs:          5_000,
		speed:           1,
		joinMs:          500,
		joinAtUs:        0,
		joinImmediately: false,
		delayUs: func(i int) int64 {
			if i >= 2 && i <= 4 {
				return 50_000
			}
			return 0
		},
	},
	{
		name:        "fast",
		description: "double speed playback halves the wall time between frames",
		frames:      8,
		frameUs:     40_000,
		tickUs:      5_000,
		speed:       2,
	},
}

func findScenario(name string) (scenario, bool) {
	for _, s := range scenarios {
		if s.name == name {
			return s, true
		}
	}
	return scenario{}, false
}

type traceSummary struct {
	actions map[video.FrameReleaseAction]int
	first   int
}

// run simulates playback and writes one line per decision to w.
func (s scenario) run(w io.Writer) traceSummary {
	clock := mediasync.NewFakeClock(0)
	media := mediasync.NewMediaClock(clock)
	release := video.NewFrameReleaseControl(video.NewDefaultFrameTimingEvaluator(),
		time.Duration(s.joinMs)*time.Millisecond, video.WithClock(clock))
	release.SetOutputTarget("trace")
	release.OnEnabled(s.releaseFirstBeforeStart)
	if err := media.SetSpeed(s.speed); err != nil {
		panic(err)
	}
	release.SetPlaybackSpeed(s.speed)

	summary := traceSummary{actions: make(map[video.FrameReleaseAction]int)}
	fmt.Fprintf(w, "== %s: %s\n", s.name, s.description)

	var info video.FrameReleaseInfo
	next, queued := 0, []int{}
	joined := s.joinMs == 0
	// Bound the run so a stuck scenario still terminates.
	limitUs := s.startAtUs + int64(float64(int64(s.frames)*s.frameUs)/s.speed) + time.Second.Microseconds()

	for nowUs := int64(0); nowUs <= limitUs; nowUs = clock.NowUs() {
		if !media.Started() && nowUs >= s.startAtUs {
			media.Start()
			release.OnStarted()
			fmt.Fprintf(w, "%8dμs  started\n", nowUs)
		}
		if !joined && nowUs >= s.joinAtUs {
			joined = true
			release.Join(s.joinImmediately)
			fmt.Fprintf(w, "%8dμs  join (immediately: %v)\n", nowUs, s.joinImmediately)
		}

		for next < s.frames && nowUs >= s.arrivalUs(next) {
			queued = append(queued, next)
			next++
		}

		for len(queued) > 0 {
			i := queued[0]
			ptsUs := int64(i) * s.frameUs
			positionUs := media.PositionUs()
			isLast := i == s.frames-1
			action := release.FrameReleaseAction(ptsUs, positionUs, nowUs, 0, false, isLast, &info)
			if action == video.TryAgainLater {
				break
			}

			first := false
			if action.Releases() {
				first = release.OnFrameReleasedIsFirstFrame()
				if first {
					summary.first++
				}
			}
			summary.actions[action]++
			queued = queued[1:]

			fmt.Fprintf(w, "%8dμs  frame %2d pts=%7dμs pos=%7dμs early=%7dμs  %s%s\n",
				nowUs, i, ptsUs, positionUs, info.EarlyUs, action, firstMark(first))
		}

		if next == s.frames && len(queued) == 0 {
			break
		}
		clock.AdvanceUs(s.tickUs)
	}

	fmt.Fprintf(w, "-- released=%d scheduled=%d dropped=%d skipped=%d ignored=%d first=%d\n\n",
		summary.actions[video.ReleaseImmediately], summary.actions[video.ReleaseScheduled],
		summary.actions[video.Drop], summary.actions[video.Skip], summary.actions[video.Ignore], summary.first)
	return summary
}

// arrivalUs returns the wall time at which frame i is decoded.
func (s scenario) arrivalUs(i int) int64 {
	ptsUs := int64(i) * s.frameUs
	// Frames within the lookahead of the start are decoded up front.
	var arrival int64
	if ptsUs > lookaheadUs {
		arrival = s.startAtUs + int64(float64(ptsUs-lookaheadUs)/s.speed)
	}
	if s.delayUs != nil {
		arrival += s.delayUs(i)
	}
	return arrival
}

func firstMark(first bool) string {
	if first {
		return " (first frame)"
	}
	return ""
}
