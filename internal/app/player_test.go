// ABOUTME: Tests for player application orchestration
// ABOUTME: Tests player creation, commands, stats and a short real-time run
package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/framepace-go/internal/config"
	"github.com/Resonate-Protocol/framepace-go/internal/ui"
	mediasync "github.com/Resonate-Protocol/framepace-go/pkg/sync"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Name = "test-player"
	cfg.StatsPort = 0
	cfg.LogFile = ""
	cfg.JitterMs = 0
	return cfg
}

func TestNewPlayer(t *testing.T) {
	p, err := New(testConfig(), mediasync.NewFakeClock(0))
	require.NoError(t, err)

	assert.Nil(t, p.Server())
	assert.NotNil(t, p.Scheduler())

	stats := p.Stats()
	assert.False(t, stats.Playing)
	assert.Equal(t, 1.0, stats.Speed)
}

func TestNewPlayerWithServer(t *testing.T) {
	cfg := testConfig()
	cfg.StatsPort = 18928
	p, err := New(cfg, mediasync.NewFakeClock(0))
	require.NoError(t, err)
	require.NotNil(t, p.Server())

	status := p.Status()
	assert.Equal(t, ":18928", status.StatsAddr)
	assert.Equal(t, "test-player", status.Name)
}

func TestNewPlayerAppliesSpeed(t *testing.T) {
	cfg := testConfig()
	cfg.Speed = 2
	p, err := New(cfg, mediasync.NewFakeClock(0))
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.Stats().Speed)
}

func TestNewPlayerRejectsBadSource(t *testing.T) {
	cfg := testConfig()
	cfg.FPS = 0
	_, err := New(cfg, mediasync.NewFakeClock(0))
	assert.Error(t, err)
}

func TestHandleCommand(t *testing.T) {
	clock := mediasync.NewFakeClock(0)
	cfg := testConfig()
	cfg.JoinMs = 500
	p, err := New(cfg, clock)
	require.NoError(t, err)

	p.HandleCommand(ui.Command{Kind: ui.CommandTogglePlayback})
	assert.True(t, p.Stats().Playing)

	p.HandleCommand(ui.Command{Kind: ui.CommandSpeed, Speed: 0.5})
	assert.Equal(t, 0.5, p.Stats().Speed)

	// Rejected speeds leave the current one
	p.HandleCommand(ui.Command{Kind: ui.CommandSpeed, Speed: -1})
	assert.Equal(t, 0.5, p.Stats().Speed)

	p.HandleCommand(ui.Command{Kind: ui.CommandJoin})
	assert.True(t, p.Stats().Joining)

	p.HandleCommand(ui.Command{Kind: ui.CommandSetOutput, Attached: false})
	assert.False(t, p.Status().Attached)

	p.HandleCommand(ui.Command{Kind: ui.CommandSeek, SeekUs: 3_000_000})
	assert.Equal(t, int64(3_000_000), p.Stats().PositionUs)

	p.HandleCommand(ui.Command{Kind: ui.CommandTogglePlayback})
	assert.False(t, p.Stats().Playing)
}

func TestRunPlaysFrames(t *testing.T) {
	cfg := testConfig()
	cfg.FPS = 100
	cfg.Frames = 20
	cfg.TickMs = 2
	p, err := New(cfg, mediasync.NewSystemClock())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		return p.Stats().Ended
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	stats := p.Stats()
	assert.Equal(t, int64(20), stats.Received)
	assert.Equal(t, int64(20), stats.Rendered+stats.Dropped+stats.Skipped+stats.Ignored)
	assert.Greater(t, stats.Rendered, int64(0))
	assert.False(t, stats.Playing)

	// Closing twice is harmless
	p.Close()
}

func TestHandleCommandsStopsOnCancel(t *testing.T) {
	p, err := New(testConfig(), mediasync.NewFakeClock(0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	commands := make(chan ui.Command, 1)
	done := make(chan struct{})
	go func() {
		p.HandleCommands(ctx, commands)
		close(done)
	}()

	commands <- ui.Command{Kind: ui.CommandTogglePlayback}
	require.Eventually(t, func() bool { return p.Stats().Playing }, time.Second, time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("HandleCommands did not return")
	}
}
