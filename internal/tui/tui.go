// Package tui is a terminal inspector for a running wmcore daemon.
package tui

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/1broseidon/wmcore/internal/ipc"
)

// DefaultRefresh is how often the inspector polls the daemon.
const DefaultRefresh = time.Second

// Source is what the inspector reads from. *ipc.Client satisfies it.
type Source interface {
	GetStatus() (*ipc.StatusData, error)
	ListToplevels() ([]ipc.ToplevelInfo, error)
	ListOutputs() ([]ipc.OutputInfo, error)
	ReloadModule(path string) (*ipc.ModuleData, error)
}

var _ Source = (*ipc.Client)(nil)

// Run starts the inspector and blocks until the user quits.
func Run(src Source, refresh time.Duration) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return fmt.Errorf("tui requires an interactive terminal (stdin/stdout must be TTYs)")
	}
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	p := tea.NewProgram(newModel(src, refresh), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
