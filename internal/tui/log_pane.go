package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mbleigh/genthetic/internal/events"
)

const maxLogLines = 500

// LogPaneModel is a scrollable log of stage and batch events.
type LogPaneModel struct {
	lines    []string
	viewport viewport.Model
	width    int
	height   int
	focused  bool
}

// NewLogPaneModel creates a new log pane model.
func NewLogPaneModel() LogPaneModel {
	vp := viewport.New(0, 0)
	return LogPaneModel{viewport: vp}
}

// Update handles messages for the log pane.
func (m LogPaneModel) Update(msg tea.Msg) (LogPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}
		m.viewport, cmd = m.viewport.Update(msg)

	case events.StageStartedEvent:
		m.append(fmt.Sprintf("%s batch %d: %s started",
			msg.Timestamp.Format("15:04:05"), msg.BatchIndex, msg.Stage))

	case events.StageCompletedEvent:
		m.append(fmt.Sprintf("%s batch %d: %s done in %s",
			msg.Timestamp.Format("15:04:05"), msg.BatchIndex, msg.Stage,
			msg.Duration.Round(time.Millisecond)))

	case events.BatchCompletedEvent:
		m.append(fmt.Sprintf("%s batch %d: %s",
			msg.Timestamp.Format("15:04:05"), msg.BatchIndex,
			StyleStatusComplete.Render(fmt.Sprintf("accepted (%d records)", msg.Size))))

	case events.RunFailedEvent:
		m.append(StyleStatusFailed.Render(fmt.Sprintf("run failed: %v", msg.Err)))
	}

	return m, cmd
}

func (m *LogPaneModel) append(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxLogLines {
		m.lines = m.lines[len(m.lines)-maxLogLines:]
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(strings.Join(m.lines, "\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

// View renders the log pane.
func (m LogPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	title := StyleTitle.Render("Events")
	body := title + "\n" + m.viewport.View()

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(body)
}

// SetSize updates the pane dimensions.
func (m *LogPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

func (m *LogPaneModel) resizeViewport() {
	m.viewport.Width = maxInt(m.width-4, 0)
	m.viewport.Height = maxInt(m.height-4, 0)
}

// SetFocused updates the focus state.
func (m *LogPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
