package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/1broseidon/wmcore/internal/ipc"
	"github.com/1broseidon/wmcore/internal/tui"
)

func runTUI(args []string) int {
	fs := flag.NewFlagSet("tui", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	refresh := fs.Duration("refresh", tui.DefaultRefresh, "Polling interval")

	if len(args) > 0 && (args[0] == "help" || args[0] == "-h" || args[0] == "--help") {
		fmt.Fprintln(os.Stderr, "Usage: wmcore tui [--refresh DURATION]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Live view of the daemon's toplevels, outputs and module.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Keybindings:")
		fmt.Fprintln(os.Stderr, "  Tab, 1-3  Switch view")
		fmt.Fprintln(os.Stderr, "  j/k, ↑/↓  Navigate rows")
		fmt.Fprintln(os.Stderr, "  r         Reload the configured module")
		fmt.Fprintln(os.Stderr, "  q         Quit")
		return 0
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *refresh <= 0 {
		fmt.Fprintln(os.Stderr, "--refresh must be positive")
		return 2
	}

	if err := tui.Run(ipc.NewClient(), *refresh); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
