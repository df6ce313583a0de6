// ABOUTME: Tests for frame release actions
// ABOUTME: Checks names and the release/consume classification
package video

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameReleaseActionString(t *testing.T) {
	assert.Equal(t, "RELEASE_IMMEDIATELY", ReleaseImmediately.String())
	assert.Equal(t, "RELEASE_SCHEDULED", ReleaseScheduled.String())
	assert.Equal(t, "DROP", Drop.String())
	assert.Equal(t, "SKIP", Skip.String())
	assert.Equal(t, "IGNORE", Ignore.String())
	assert.Equal(t, "TRY_AGAIN_LATER", TryAgainLater.String())
	assert.Equal(t, "FrameReleaseAction(42)", FrameReleaseAction(42).String())
}

func TestFrameReleaseActionClassification(t *testing.T) {
	tests := []struct {
		action   FrameReleaseAction
		releases bool
		consumes bool
	}{
		{ReleaseImmediately, true, true},
		{ReleaseScheduled, true, true},
		{Drop, false, true},
		{Skip, false, true},
		{Ignore, false, true},
		{TryAgainLater, false, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.releases, tt.action.Releases(), tt.action.String())
		assert.Equal(t, tt.consumes, tt.action.Consumes(), tt.action.String())
	}
}

func TestFrameReleaseInfoReset(t *testing.T) {
	info := FrameReleaseInfo{EarlyUs: 10, ReleaseTimeNs: 20}
	assert.True(t, info.Evaluated())
	assert.True(t, info.Scheduled())

	info.reset()

	assert.Equal(t, unsetTime, info.EarlyUs)
	assert.Equal(t, unsetTime, info.ReleaseTimeNs)
	assert.False(t, info.Evaluated())
	assert.False(t, info.Scheduled())
}
