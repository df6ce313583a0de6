// ABOUTME: Bubbletea model for the player TUI
// ABOUTME: Shows frame release stats and turns key presses into player commands
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// SeekStep is how far the arrow keys move playback.
const SeekStep = 5 * time.Second

// speedSteps are the speeds cycled through with +/-.
var speedSteps = []float64{0.25, 0.5, 1, 1.5, 2, 4}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	faintStyle  = lipgloss.NewStyle().Faint(true)
	boxStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Model represents the TUI state
type Model struct {
	name      string
	statsAddr string

	// Playback
	positionUs int64
	playing    bool
	joining    bool
	ready      bool
	ended      bool
	attached   bool
	speed      float64

	// Video
	width  int
	height int

	// Stats
	received    int64
	rendered    int64
	dropped     int64
	skipped     int64
	ignored     int64
	stale       int64
	pending     int
	headEarlyUs int64
	leadUs      int64
	clients     int

	// Debug
	showDebug bool

	// Terminal dimensions
	termWidth  int
	termHeight int

	controls *Controls
	quitting bool
}

// StatusMsg carries a fresh stats snapshot to the TUI
type StatusMsg struct {
	Name        string
	StatsAddr   string
	PositionUs  int64
	Playing     bool
	Joining     bool
	Ready       bool
	Ended       bool
	Attached    bool
	Speed       float64
	Width       int
	Height      int
	Received    int64
	Rendered    int64
	Dropped     int64
	Skipped     int64
	Ignored     int64
	Stale       int64
	Pending     int
	HeadEarlyUs int64
	LeadUs      int64
	Clients     int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.termWidth = msg.Width
		m.termHeight = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}
	if m.termWidth == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderPlayback())
	b.WriteString("\n")
	b.WriteString(m.renderStats())
	if m.showDebug {
		b.WriteString("\n")
		b.WriteString(m.renderDebug())
	}

	return boxStyle.Render(b.String()) + "\n" + m.renderHelp()
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("framepace")
	if m.name != "" {
		title += valueStyle.Render("  " + m.name)
	}
	if m.statsAddr != "" {
		title += faintStyle.Render(fmt.Sprintf("  stats %s (%d watching)", m.statsAddr, m.clients))
	}
	return title + "\n"
}

func (m Model) renderPlayback() string {
	state := "Paused"
	switch {
	case m.ended:
		state = "Ended"
	case m.playing:
		state = "Playing"
	}
	if m.joining {
		state += warnStyle.Render(" (joining)")
	}

	output := "attached"
	if !m.attached {
		output = warnStyle.Render("detached")
	}

	size := "unknown"
	if m.width > 0 {
		size = fmt.Sprintf("%dx%d", m.width, m.height)
	}

	return field("State", state) +
		field("Position", formatPosition(m.positionUs)) +
		field("Speed", fmt.Sprintf("%.2fx", m.speed)) +
		field("Size", size) +
		field("Output", output)
}

func (m Model) renderStats() string {
	dropped := fmt.Sprintf("%d", m.dropped)
	if m.dropped > 0 {
		dropped = badStyle.Render(dropped)
	}

	return field("Frames", fmt.Sprintf("RX: %d  Rendered: %d  Dropped: %s  Skipped: %d  Ignored: %d",
		m.received, m.rendered, dropped, m.skipped, m.ignored)) +
		field("Queue", fmt.Sprintf("%d pending, head %s", m.pending, formatEarly(m.headEarlyUs))) +
		field("Ready", fmt.Sprintf("%v", m.ready))
}

func (m Model) renderDebug() string {
	return headerStyle.Render("DEBUG") + "\n" +
		field("Stale", fmt.Sprintf("%d frames from before the last seek", m.stale)) +
		field("Lead", fmt.Sprintf("last frame released %dμs ahead of now", m.leadUs)) +
		field("Terminal", fmt.Sprintf("%dx%d", m.termWidth, m.termHeight))
}

func (m Model) renderHelp() string {
	return faintStyle.Render("space:Play/Pause  ←/→:Seek  +/-:Speed  j/J:Join  t:Output  d:Debug  q:Quit")
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		if m.controls != nil {
			select {
			case m.controls.Quit <- struct{}{}:
			default:
			}
		}
		return m, tea.Quit
	case " ", "space":
		m.send(Command{Kind: CommandTogglePlayback})
	case "left":
		m.send(Command{Kind: CommandSeek, SeekUs: max(0, m.positionUs-SeekStep.Microseconds())})
	case "right":
		m.send(Command{Kind: CommandSeek, SeekUs: m.positionUs + SeekStep.Microseconds()})
	case "+", "=":
		if speed, ok := nextSpeed(m.speed, 1); ok {
			m.speed = speed
			m.send(Command{Kind: CommandSpeed, Speed: speed})
		}
	case "-", "_":
		if speed, ok := nextSpeed(m.speed, -1); ok {
			m.speed = speed
			m.send(Command{Kind: CommandSpeed, Speed: speed})
		}
	case "j":
		m.send(Command{Kind: CommandJoin})
	case "J":
		m.send(Command{Kind: CommandJoin, RenderNextFrameImmediately: true})
	case "t":
		m.attached = !m.attached
		m.send(Command{Kind: CommandSetOutput, Attached: m.attached})
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// send forwards a command without blocking the UI
func (m Model) send(cmd Command) {
	if m.controls == nil {
		return
	}
	select {
	case m.controls.Commands <- cmd:
	default:
	}
}

// applyStatus updates model from status message
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Name != "" {
		m.name = msg.Name
	}
	if msg.StatsAddr != "" {
		m.statsAddr = msg.StatsAddr
	}
	m.positionUs = msg.PositionUs
	m.playing = msg.Playing
	m.joining = msg.Joining
	m.ready = msg.Ready
	m.ended = msg.Ended
	m.attached = msg.Attached
	if msg.Speed > 0 {
		m.speed = msg.Speed
	}
	if msg.Width > 0 {
		m.width = msg.Width
		m.height = msg.Height
	}
	m.received = msg.Received
	m.rendered = msg.Rendered
	m.dropped = msg.Dropped
	m.skipped = msg.Skipped
	m.ignored = msg.Ignored
	m.stale = msg.Stale
	m.pending = msg.Pending
	m.headEarlyUs = msg.HeadEarlyUs
	m.leadUs = msg.LeadUs
	m.clients = msg.Clients
}

// nextSpeed returns the speed step after current in direction dir.
func nextSpeed(current float64, dir int) (float64, bool) {
	if dir > 0 {
		for _, s := range speedSteps {
			if s > current {
				return s, true
			}
		}
		return current, false
	}
	for i := len(speedSteps) - 1; i >= 0; i-- {
		if speedSteps[i] < current {
			return speedSteps[i], true
		}
	}
	return current, false
}

// Utility functions
func field(name, value string) string {
	return headerStyle.Render(fmt.Sprintf("%-9s", name+":")) + " " + valueStyle.Render(value) + "\n"
}

func formatPosition(us int64) string {
	d := time.Duration(us) * time.Microsecond
	return fmt.Sprintf("%02d:%02d.%03d", int(d.Minutes()), int(d.Seconds())%60, d.Milliseconds()%1000)
}

func formatEarly(us int64) string {
	if us < 0 {
		return fmt.Sprintf("%.1fms late", float64(-us)/1000.0)
	}
	return fmt.Sprintf("%.1fms early", float64(us)/1000.0)
}
