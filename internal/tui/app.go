package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/wmcore/internal/ipc"
)

// snapshot is one poll of the daemon.
type snapshot struct {
	status    *ipc.StatusData
	toplevels []ipc.ToplevelInfo
	outputs   []ipc.OutputInfo
	err       error
}

type snapshotMsg snapshot

type tickMsg time.Time

type reloadMsg struct {
	module *ipc.ModuleData
	err    error
}

// model is the root bubbletea model for the TUI.
type model struct {
	src     Source
	refresh time.Duration

	activeTab Tab
	toplevels table.Model
	outputs   table.Model

	last   snapshot
	notice string

	// Terminal dimensions
	width  int
	height int
}

func newModel(src Source, refresh time.Duration) model {
	return model{
		src:       src,
		refresh:   refresh,
		activeTab: TabToplevels,
		toplevels: newTable(toplevelColumns),
		outputs:   newTable(outputColumns),
	}
}

// poll queries the daemon. A failed status query marks the daemon as gone.
func poll(src Source) tea.Cmd {
	return func() tea.Msg {
		var s snapshot
		s.status, s.err = src.GetStatus()
		if s.err != nil {
			return snapshotMsg(s)
		}
		if s.toplevels, s.err = src.ListToplevels(); s.err != nil {
			return snapshotMsg(s)
		}
		s.outputs, s.err = src.ListOutputs()
		return snapshotMsg(s)
	}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func reload(src Source) tea.Cmd {
	return func() tea.Msg {
		m, err := src.ReloadModule("")
		return reloadMsg{module: m, err: err}
	}
}

// contentHeight returns the height available for tab content.
func (m model) contentHeight() int {
	// status bar (1) + tab bar (2 with margin) + help bar (1)
	h := m.height - 4
	if h < 1 {
		h = 1
	}
	return h
}

// Init implements tea.Model.
func (m model) Init() tea.Cmd {
	return tea.Batch(poll(m.src), tick(m.refresh))
}

// Update implements tea.Model.
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1":
			m.activeTab = TabToplevels
			return m, nil
		case "2":
			m.activeTab = TabOutputs
			return m, nil
		case "3":
			m.activeTab = TabModule
			return m, nil
		case "r":
			m.notice = "reloading module..."
			return m, reload(m.src)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		h := m.contentHeight()
		m.toplevels.SetHeight(h)
		m.outputs.SetHeight(h)
		return m, nil

	case tickMsg:
		return m, tea.Batch(poll(m.src), tick(m.refresh))

	case snapshotMsg:
		m.last = snapshot(msg)
		if msg.err == nil {
			m.toplevels.SetRows(toplevelRows(msg.toplevels))
			m.outputs.SetRows(outputRows(msg.outputs))
		}
		return m, nil

	case reloadMsg:
		if msg.err != nil {
			m.notice = "reload failed: " + msg.err.Error()
		} else if msg.module != nil && msg.module.LastLoadError != "" {
			m.notice = msg.module.Name + " still active: " + msg.module.LastLoadError
		} else if msg.module != nil {
			m.notice = "reloaded " + msg.module.Name + " " + msg.module.Version
		}
		return m, poll(m.src)
	}

	// Delegate navigation to the active table.
	var cmd tea.Cmd
	switch m.activeTab {
	case TabToplevels:
		m.toplevels, cmd = m.toplevels.Update(msg)
	case TabOutputs:
		m.outputs, cmd = m.outputs.Update(msg)
	}
	return m, cmd
}

// View implements tea.Model.
func (m model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	statusBar := renderStatusBar(m.last.status, m.last.err, m.width)
	tabBar := renderTabBar(m.activeTab, m.width)
	helpBar := renderHelpBar(m.notice, m.width)

	var content string
	switch m.activeTab {
	case TabToplevels:
		content = m.toplevels.View()
	case TabOutputs:
		content = m.outputs.View()
	case TabModule:
		var mod *ipc.ModuleData
		if m.last.status != nil {
			mod = m.last.status.Module
		}
		content = moduleView(mod)
	}
	content = lipgloss.NewStyle().Height(m.contentHeight()).Render(content)

	return lipgloss.JoinVertical(lipgloss.Left,
		statusBar,
		tabBar,
		content,
		helpBar,
	)
}
