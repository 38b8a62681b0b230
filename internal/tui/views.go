package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/1broseidon/wmcore/internal/ipc"
)

var toplevelColumns = []table.Column{
	{Title: "ID", Width: 4},
	{Title: "App", Width: 16},
	{Title: "Title", Width: 24},
	{Title: "Phase", Width: 11},
	{Title: "Geometry", Width: 18},
	{Title: "State", Width: 22},
	{Title: "Pending", Width: 8},
}

var outputColumns = []table.Column{
	{Title: "ID", Width: 4},
	{Title: "Name", Width: 12},
	{Title: "Geometry", Width: 20},
	{Title: "Refresh", Width: 10},
}

func newTable(cols []table.Column) table.Model {
	t := table.New(table.WithColumns(cols), table.WithFocused(true))
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("15")).
		Background(lipgloss.Color("62"))
	t.SetStyles(s)
	return t
}

func toplevelRows(list []ipc.ToplevelInfo) []table.Row {
	rows := make([]table.Row, 0, len(list))
	for _, t := range list {
		geom := "-"
		if t.Geometry != nil {
			geom = t.Geometry.String()
		}
		pending := "-"
		if len(t.Outstanding) > 0 {
			serials := make([]string, len(t.Outstanding))
			for i, s := range t.Outstanding {
				serials[i] = fmt.Sprint(s)
			}
			pending = strings.Join(serials, ",")
		}
		rows = append(rows, table.Row{
			fmt.Sprint(uint32(t.ID)),
			t.AppID,
			t.Title,
			t.Phase,
			geom,
			strings.Join(t.State, ","),
			pending,
		})
	}
	return rows
}

func outputRows(list []ipc.OutputInfo) []table.Row {
	rows := make([]table.Row, 0, len(list))
	for _, o := range list {
		rows = append(rows, table.Row{
			fmt.Sprint(uint32(o.ID)),
			o.Name,
			o.Geometry.String(),
			formatRefresh(o.RefreshRate),
		})
	}
	return rows
}

// formatRefresh renders millihertz as hertz with up to two decimals.
func formatRefresh(mhz uint32) string {
	if mhz == 0 {
		return "-"
	}
	if mhz%1000 == 0 {
		return fmt.Sprintf("%d Hz", mhz/1000)
	}
	return fmt.Sprintf("%.2f Hz", float64(mhz)/1000)
}

var (
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Width(16)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

// moduleView renders the active module's details.
func moduleView(m *ipc.ModuleData) string {
	if m == nil {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Render("no module information")
	}
	line := func(label, value string) string {
		return labelStyle.Render(label) + value
	}
	name := m.Name
	if m.Builtin {
		name += " (builtin)"
	}
	lines := []string{
		line("Name", name),
		line("Version", m.Version),
		line("ABI", m.ABI),
		line("Instance", m.InstanceID),
	}
	if m.Path != "" {
		lines = append(lines, line("Path", m.Path))
	}
	if !m.ActivatedAt.IsZero() {
		lines = append(lines, line("Activated", m.ActivatedAt.Format("2006-01-02 15:04:05")))
	}
	lines = append(lines, line("Failures", fmt.Sprint(m.Failures)))
	if m.LastError != "" {
		lines = append(lines, line("Last error", errorStyle.Render(m.LastError)))
	}
	if m.LastLoadError != "" {
		lines = append(lines, line("Load error", errorStyle.Render(m.LastLoadError)))
	}
	return strings.Join(lines, "\n")
}
