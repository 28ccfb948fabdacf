// Package tui renders live run progress with Bubble Tea: a progress
// pane fed by run and progress events, plus a scrollable event log.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/mbleigh/genthetic/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneProgress PaneID = iota
	PaneLog
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	progressPane ProgressPaneModel
	logPane      LogPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	done         bool // run resolved; next q exits
}

// New creates a new TUI model subscribed to all events on the bus.
func New(bus *events.Bus) Model {
	m := Model{
		progressPane: NewProgressPaneModel(),
		logPane:      NewLogPaneModel(),
		focusedPane:  PaneProgress,
		eventSub:     bus.SubscribeAll(256),
	}
	m.updateFocusStates()
	return m
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeyTab, KeyShiftTab:
			if m.focusedPane == PaneProgress {
				m.focusedPane = PaneLog
			} else {
				m.focusedPane = PaneProgress
			}
			m.updateFocusStates()

		default:
			var cmd tea.Cmd
			m.logPane, cmd = m.logPane.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()

	case events.RunStartedEvent, events.ProgressEvent:
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.StageStartedEvent, events.StageCompletedEvent, events.BatchCompletedEvent:
		var cmd tea.Cmd
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.RunCompletedEvent, events.RunFailedEvent:
		// Both panes care about run resolution.
		var cmd tea.Cmd
		m.progressPane, cmd = m.progressPane.Update(msg)
		cmds = append(cmds, cmd)
		m.logPane, cmd = m.logPane.Update(msg)
		cmds = append(cmds, cmd)
		m.done = true
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	left := m.progressPane.View()
	right := m.logPane.View()
	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, left, right)

	help := HelpView()
	if m.done {
		help = StyleHelp.Render("Run finished. Press q to exit.")
	}

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, help)
}

// computeLayout calculates pane dimensions and updates the child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 40) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1

	m.progressPane.SetSize(leftWidth, availableHeight)
	m.logPane.SetSize(rightWidth, availableHeight)
	m.updateFocusStates()
}

// updateFocusStates updates the focus state of both panes.
func (m *Model) updateFocusStates() {
	m.progressPane.SetFocused(m.focusedPane == PaneProgress)
	m.logPane.SetFocused(m.focusedPane == PaneLog)
}
