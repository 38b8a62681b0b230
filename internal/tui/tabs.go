package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/wmcore/internal/ipc"
)

// Tab identifies a TUI tab.
type Tab int

const (
	TabToplevels Tab = iota
	TabOutputs
	TabModule
	tabCount // sentinel for iteration
)

func (t Tab) String() string {
	switch t {
	case TabToplevels:
		return "Toplevels"
	case TabOutputs:
		return "Outputs"
	case TabModule:
		return "Module"
	default:
		return "?"
	}
}

var (
	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("250")).
				Background(lipgloss.Color("236")).
				Padding(0, 2)

	tabBarStyle = lipgloss.NewStyle().
			MarginBottom(1)

	tabGap = lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		SetString(" ")
)

// renderTabBar renders the tab bar with the given active tab and width.
func renderTabBar(active Tab, width int) string {
	var tabs []string
	for i := Tab(0); i < tabCount; i++ {
		label := fmt.Sprintf("%d:%s", int(i)+1, i)
		if i == active {
			tabs = append(tabs, activeTabStyle.Render(label))
		} else {
			tabs = append(tabs, inactiveTabStyle.Render(label))
		}
	}

	row := lipgloss.JoinHorizontal(lipgloss.Top, intersperse(tabs, tabGap.Render())...)
	return tabBarStyle.Width(width).Render(row)
}

// intersperse inserts sep between each element of items.
func intersperse(items []string, sep string) []string {
	if len(items) <= 1 {
		return items
	}
	result := make([]string, 0, len(items)*2-1)
	for i, item := range items {
		if i > 0 {
			result = append(result, sep)
		}
		result = append(result, item)
	}
	return result
}

// statusLine summarizes the daemon's state in one line.
func statusLine(st *ipc.StatusData) string {
	parts := []string{
		"backend:" + st.Backend,
		fmt.Sprintf("toplevels:%d", st.Toplevels),
		fmt.Sprintf("outputs:%d", st.Outputs),
		fmt.Sprintf("pending:%d", st.PendingAcks),
		"focus:" + st.KeyboardFocus,
	}
	if len(st.Modifiers) > 0 {
		parts = append(parts, "mods:"+strings.Join(st.Modifiers, "+"))
	}
	return strings.Join(parts, "  ")
}

// renderStatusBar renders the daemon connection status bar.
func renderStatusBar(st *ipc.StatusData, err error, width int) string {
	var status string
	if err == nil && st != nil {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render("●")
		status = dot + " " + statusLine(st)
	} else {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("●")
		status = dot + " daemon not running"
	}

	style := lipgloss.NewStyle().
		Width(width).
		Background(lipgloss.Color("235")).
		Foreground(lipgloss.Color("250")).
		Padding(0, 1)
	return style.Render(status)
}

// renderHelpBar renders the bottom help/keybinding bar.
func renderHelpBar(notice string, width int) string {
	help := "tab/shift-tab: switch tabs  1-3: jump to tab  r: reload module  q/ctrl-c: quit"
	if notice != "" {
		help = notice
	}
	style := lipgloss.NewStyle().
		Width(width).
		Foreground(lipgloss.Color("241")).
		Padding(0, 1)
	return style.Render(help)
}
