// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and command forwarding
package ui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keyMsg(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, key string) Model {
	t.Helper()
	next, _ := m.Update(keyMsg(key))
	model, ok := next.(Model)
	require.True(t, ok)
	return model
}

func receive(t *testing.T, controls *Controls) Command {
	t.Helper()
	select {
	case cmd := <-controls.Commands:
		return cmd
	default:
		t.Fatal("expected a command")
		return Command{}
	}
}

func TestNewModel(t *testing.T) {
	model := NewModel(nil) // Controls are optional for testing

	assert.Equal(t, 1.0, model.speed)
	assert.True(t, model.attached)
	assert.False(t, model.playing)
	assert.False(t, model.showDebug)
}

func TestApplyStatus(t *testing.T) {
	model := NewModel(nil)

	model.applyStatus(StatusMsg{
		Name:       "tv",
		PositionUs: 1_500_000,
		Playing:    true,
		Attached:   true,
		Speed:      2,
		Width:      1280,
		Height:     720,
		Rendered:   40,
		Dropped:    2,
	})

	assert.Equal(t, "tv", model.name)
	assert.Equal(t, int64(1_500_000), model.positionUs)
	assert.True(t, model.playing)
	assert.Equal(t, 2.0, model.speed)
	assert.Equal(t, 1280, model.width)
	assert.Equal(t, int64(40), model.rendered)
	assert.Equal(t, int64(2), model.dropped)

	// Zero values do not clear the name, size or speed
	model.applyStatus(StatusMsg{Playing: false})
	assert.Equal(t, "tv", model.name)
	assert.Equal(t, 2.0, model.speed)
	assert.Equal(t, 1280, model.width)
	assert.False(t, model.playing)
}

func TestKeysSendCommands(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)
	model.applyStatus(StatusMsg{PositionUs: 7_000_000, Attached: true, Speed: 1})

	model = press(t, model, " ")
	assert.Equal(t, CommandTogglePlayback, receive(t, controls).Kind)

	model = press(t, model, "right")
	assert.Equal(t, Command{Kind: CommandSeek, SeekUs: 12_000_000}, receive(t, controls))

	model = press(t, model, "left")
	assert.Equal(t, Command{Kind: CommandSeek, SeekUs: 2_000_000}, receive(t, controls))

	model = press(t, model, "j")
	assert.Equal(t, Command{Kind: CommandJoin}, receive(t, controls))

	model = press(t, model, "J")
	assert.Equal(t, Command{Kind: CommandJoin, RenderNextFrameImmediately: true}, receive(t, controls))

	model = press(t, model, "t")
	assert.Equal(t, Command{Kind: CommandSetOutput, Attached: false}, receive(t, controls))
	assert.False(t, model.attached)

	model = press(t, model, "+")
	assert.Equal(t, Command{Kind: CommandSpeed, Speed: 1.5}, receive(t, controls))

	model = press(t, model, "-")
	model = press(t, model, "-")
	receive(t, controls)
	assert.Equal(t, Command{Kind: CommandSpeed, Speed: 0.5}, receive(t, controls))
	assert.Equal(t, 0.5, model.speed)
}

func TestSeekBackClampsAtZero(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)
	model.applyStatus(StatusMsg{PositionUs: 1_000_000})

	press(t, model, "left")
	assert.Equal(t, int64(0), receive(t, controls).SeekUs)
}

func TestNextSpeed(t *testing.T) {
	speed, ok := nextSpeed(4, 1)
	assert.False(t, ok)
	assert.Equal(t, 4.0, speed)

	speed, ok = nextSpeed(0.25, -1)
	assert.False(t, ok)
	assert.Equal(t, 0.25, speed)

	speed, ok = nextSpeed(1.2, 1)
	assert.True(t, ok)
	assert.Equal(t, 1.5, speed)
}

func TestDebugToggle(t *testing.T) {
	model := NewModel(nil)
	model = press(t, model, "d")
	assert.True(t, model.showDebug)
	model = press(t, model, "d")
	assert.False(t, model.showDebug)
}

func TestQuit(t *testing.T) {
	controls := NewControls()
	model := NewModel(controls)

	next, cmd := model.Update(keyMsg("q"))
	require.NotNil(t, cmd)
	assert.True(t, next.(Model).quitting)

	select {
	case <-controls.Quit:
	default:
		t.Fatal("expected quit signal")
	}
}

func TestView(t *testing.T) {
	model := NewModel(nil)
	assert.Equal(t, "Loading...", model.View())

	next, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	model = next.(Model)
	model.applyStatus(StatusMsg{Name: "tv", PositionUs: 65_250_000, Playing: true, Attached: true, Width: 640, Height: 360})

	view := model.View()
	assert.Contains(t, view, "framepace")
	assert.Contains(t, view, "Playing")
	assert.Contains(t, view, "01:05.250")
	assert.Contains(t, view, "640x360")
}

func TestFormatEarly(t *testing.T) {
	assert.Equal(t, "2.5ms early", formatEarly(2_500))
	assert.Equal(t, "40.0ms late", formatEarly(-40_000))
}

func TestCommandKindString(t *testing.T) {
	assert.Equal(t, "seek", CommandSeek.String())
	assert.Equal(t, "unknown", CommandKind(99).String())
}
