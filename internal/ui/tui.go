// ABOUTME: TUI initialization and control
// ABOUTME: Wraps bubbletea program for player UI
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// CommandKind identifies a player command
type CommandKind int

const (
	CommandTogglePlayback CommandKind = iota
	CommandSeek
	CommandSpeed
	CommandJoin
	CommandSetOutput
)

// String returns the command name.
func (k CommandKind) String() string {
	switch k {
	case CommandTogglePlayback:
		return "toggle-playback"
	case CommandSeek:
		return "seek"
	case CommandSpeed:
		return "speed"
	case CommandJoin:
		return "join"
	case CommandSetOutput:
		return "set-output"
	default:
		return "unknown"
	}
}

// Command is a key press translated for the player
type Command struct {
	Kind                       CommandKind
	SeekUs                     int64
	Speed                      float64
	RenderNextFrameImmediately bool
	Attached                   bool
}

// Controls holds channels for player control communication
type Controls struct {
	Commands chan Command
	Quit     chan struct{}
}

// NewControls creates a new control handler
func NewControls() *Controls {
	return &Controls{
		Commands: make(chan Command, 10),
		Quit:     make(chan struct{}, 1),
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		speed:    1,
		attached: true,
		controls: controls,
	}
}

// Run creates the TUI program. The caller starts it.
func Run(controls *Controls) (*tea.Program, error) {
	p := tea.NewProgram(NewModel(controls), tea.WithAltScreen())
	return p, nil
}
