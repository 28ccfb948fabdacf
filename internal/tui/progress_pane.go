package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/mbleigh/genthetic/internal/events"
)

// ProgressPaneModel shows the run's batch and stage counters with a
// progress bar.
type ProgressPaneModel struct {
	pipeline        string
	runID           string
	totalItems      int
	totalBatches    int
	serial          bool
	batchesComplete int
	stagesComplete  int
	totalStages     int
	elapsed         time.Duration
	status          string // "running", "completed", "failed"
	errMsg          string
	items           int
	bar             progress.Model
	width           int
	height          int
	focused         bool
}

// NewProgressPaneModel creates a new progress pane model.
func NewProgressPaneModel() ProgressPaneModel {
	bar := progress.New(progress.WithDefaultGradient())
	return ProgressPaneModel{bar: bar, status: "running"}
}

// Update handles messages for the progress pane.
func (m ProgressPaneModel) Update(msg tea.Msg) (ProgressPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.bar.Width = minInt(m.width-6, 50)

	case events.RunStartedEvent:
		m.runID = msg.ID
		m.pipeline = msg.Pipeline
		m.totalItems = msg.TotalItems
		m.totalBatches = msg.TotalBatches
		m.serial = msg.Serial
		m.status = "running"

	case events.ProgressEvent:
		m.batchesComplete = msg.BatchesComplete
		m.totalBatches = msg.TotalBatches
		m.stagesComplete = msg.StagesComplete
		m.totalStages = msg.TotalStages
		m.elapsed = msg.Elapsed

	case events.RunCompletedEvent:
		m.status = "completed"
		m.items = msg.Items
		m.elapsed = msg.Duration

	case events.RunFailedEvent:
		m.status = "failed"
		if msg.Err != nil {
			m.errMsg = msg.Err.Error()
		}
		m.elapsed = msg.Duration
	}

	return m, nil
}

// View renders the progress pane.
func (m ProgressPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render(fmt.Sprintf("Run %s", m.pipeline))
	b.WriteString(title)
	b.WriteString("\n\n")

	mode := "parallel"
	if m.serial {
		mode = "serial"
	}
	b.WriteString(fmt.Sprintf("Items:   %d in %d batches (%s)\n", m.totalItems, m.totalBatches, mode))
	b.WriteString(fmt.Sprintf("Batches: %d/%d\n", m.batchesComplete, m.totalBatches))
	b.WriteString(fmt.Sprintf("Stages:  %d/%d (current batch)\n", m.stagesComplete, m.totalStages))
	b.WriteString(fmt.Sprintf("Elapsed: %s\n", m.elapsed.Round(time.Millisecond)))
	b.WriteString("\n")

	percent := 0.0
	if m.totalBatches > 0 {
		percent = float64(m.batchesComplete) / float64(m.totalBatches)
	}
	b.WriteString(m.bar.ViewAs(percent))
	b.WriteString("\n\n")

	switch m.status {
	case "completed":
		b.WriteString(StyleStatusComplete.Render(fmt.Sprintf("Completed: %d records", m.items)))
	case "failed":
		b.WriteString(StyleStatusFailed.Render("Failed: " + m.errMsg))
	default:
		b.WriteString(StyleStatusRunning.Render("Running"))
	}
	b.WriteString("\n")

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(b.String())
}

// SetSize updates the pane dimensions.
func (m *ProgressPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.bar.Width = minInt(w-6, 50)
}

// SetFocused updates the focus state.
func (m *ProgressPaneModel) SetFocused(focused bool) {
	m.focused = focused
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
