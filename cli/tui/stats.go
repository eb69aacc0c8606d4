package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kaidoh/fluentforward/forwarder"
)

// keyMap defines key bindings shared by the stats dashboard.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// StatsModel is a Bubble Tea model for the stats dashboard.
type StatsModel struct {
	data     forwarder.Stats
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(data forwarder.Stats) StatsModel {
	return StatsModel{data: data}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Quit):
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Forwarder Stats"))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Emitted", int(m.data.Metrics.EventsEmitted), highlightColor),
		m.renderStatBox("Sent", int(m.data.Metrics.ChunksSent), successColor),
		m.renderStatBox("Failed", int(m.data.Metrics.ChunksFailed), errorColor),
		m.renderStatBox("Spilled", int(m.data.Metrics.ChunksSpilled), warningColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Buffered chunks:"),
		ValueStyle.Render(fmt.Sprintf("%d", m.data.BufferedChunks))))
	b.WriteString(fmt.Sprintf("%s %s\n",
		LabelStyle.Render("Allocated bytes:"),
		ValueStyle.Render(fmt.Sprintf("%d", m.data.AllocatedBufferBytes))))

	b.WriteString("\n")
	b.WriteString(TitleStyle.Render("Endpoints"))
	b.WriteString("\n")
	for _, ep := range m.data.Endpoints {
		state := "down"
		style := ErrorStyle
		if ep.Available {
			state = "up"
			style = SuccessStyle
		}
		b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(ep.Addr), style.Render(state)))
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return b.String() + "\n" + help
}

func (m StatsModel) renderStatBox(label string, value int, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RunStatsTUI runs the stats dashboard. data must be a forwarder.Stats.
func RunStatsTUI(viewType string, data any) error {
	stats, ok := data.(forwarder.Stats)
	if !ok {
		return fmt.Errorf("tui: stats view requires a forwarder.Stats, got %T", data)
	}
	model := NewStatsModel(stats)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
