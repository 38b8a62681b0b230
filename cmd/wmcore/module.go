package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/1broseidon/wmcore/internal/ipc"
	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/script"
)

func printModuleUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  wmcore module info [--json]")
	fmt.Fprintln(w, "  wmcore module reload [DIR|:builtin]")
	fmt.Fprintln(w, "  wmcore module check <DIR>")
}

func runModule(args []string) int {
	if len(args) == 0 {
		printModuleUsage(os.Stderr)
		return 2
	}

	switch args[0] {
	case "info":
		return runModuleInfo(args[1:], os.Stdout)
	case "reload":
		return runModuleReload(args[1:], os.Stdout)
	case "check":
		return runModuleCheck(args[1:], os.Stdout)
	case "help", "-h", "--help":
		printModuleUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown module command: %s\n\n", args[0])
		printModuleUsage(os.Stderr)
		return 2
	}
}

func runModuleInfo(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	m, err := ipc.NewClient().GetModule()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(w, m)
	}
	printModule(w, m)
	return 0
}

func printModule(w io.Writer, m *ipc.ModuleData) {
	name := m.Name
	if m.Builtin {
		name += " (builtin)"
	}
	fmt.Fprintf(w, "name:     %s\n", name)
	fmt.Fprintf(w, "version:  %s\n", m.Version)
	fmt.Fprintf(w, "abi:      %s\n", m.ABI)
	fmt.Fprintf(w, "instance: %s\n", m.InstanceID)
	if m.Path != "" {
		fmt.Fprintf(w, "path:     %s\n", m.Path)
	}
	fmt.Fprintf(w, "failures: %d\n", m.Failures)
	if m.LastError != "" {
		fmt.Fprintf(w, "last_error: %s\n", m.LastError)
	}
	if m.LastLoadError != "" {
		fmt.Fprintf(w, "last_load_error: %s\n", m.LastLoadError)
	}
}

func runModuleReload(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("reload", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wmcore module reload [DIR|:builtin]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Without DIR the configured module is reloaded.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() > 1 {
		fs.Usage()
		return 2
	}

	path := fs.Arg(0)
	if path != "" && path != ":builtin" {
		abs, err := filepath.Abs(path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		path = abs
	}

	m, err := ipc.NewClient().ReloadModule(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	printModule(w, m)
	if m.LastLoadError != "" {
		return 1
	}
	return 0
}

// runModuleCheck compiles a module, runs get_info and checks its ABI
// against the host without starting a window manager.
func runModuleCheck(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wmcore module check <DIR>")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	m, err := script.Load(fs.Arg(0), script.Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	info, err := m.Info()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := module.CheckABI(module.HostABI, info.ABI); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Fprintf(w, "module: ok (%s %s, abi %s)\n", info.Name, info.Version, info.ABI)
	return 0
}
