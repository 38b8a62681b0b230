package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/1broseidon/wmcore/internal/config"
	"github.com/1broseidon/wmcore/internal/daemon"
	"github.com/1broseidon/wmcore/internal/ipc"
	"github.com/1broseidon/wmcore/internal/x11"
)

func main() {
	if len(os.Args) < 2 {
		printMainUsage(os.Stdout)
		os.Exit(0)
	}

	switch os.Args[1] {
	case "daemon":
		os.Exit(runDaemon(os.Args[2:]))
	case "status":
		os.Exit(runStatus(os.Args[2:]))
	case "toplevels":
		os.Exit(runToplevels(os.Args[2:], os.Stdout))
	case "outputs":
		os.Exit(runOutputs(os.Args[2:], os.Stdout))
	case "module":
		os.Exit(runModule(os.Args[2:]))
	case "config":
		os.Exit(runConfig(os.Args[2:]))
	case "tui":
		os.Exit(runTUI(os.Args[2:]))
	case "mcp":
		os.Exit(runMCP(os.Args[2:]))
	case "help", "-h", "--help":
		printMainUsage(os.Stdout)
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printMainUsage(os.Stderr)
		os.Exit(2)
	}
}

func printMainUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: wmcore <command> [options]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  daemon              Run the window manager (foreground)")
	fmt.Fprintln(w, "  status              Show daemon status")
	fmt.Fprintln(w, "  toplevels           List toplevel windows")
	fmt.Fprintln(w, "  outputs             List outputs")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  module info         Show the active policy module")
	fmt.Fprintln(w, "  module reload       Reload the policy module")
	fmt.Fprintln(w, "  module check        Load a module directory without running it")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  config validate     Validate configuration")
	fmt.Fprintln(w, "  config print        Print configuration")
	fmt.Fprintln(w, "  config path         Print the configuration file path")
	fmt.Fprintln(w, "  config explain      Explain a config value")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "  tui                 Open interactive inspector")
	fmt.Fprintln(w, "  mcp serve           Start MCP server (stdio transport)")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Run 'wmcore <command> --help' for command-specific options.")
}

// newLogger builds the daemon's text logger.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func runDaemon(args []string) int {
	fs := flag.NewFlagSet("daemon", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	path := fs.String("path", "", "Config file path (default: ~/.config/wmcore/config.yaml)")
	headless := fs.Bool("headless", false, "Run without a display, with one virtual output")
	display := fs.String("display", "", "X display to manage (default: x11.display or $DISPLAY)")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wmcore daemon [--path PATH] [--headless] [--display DISPLAY]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Run the window manager in the foreground. SIGHUP reloads the policy module.")
		fmt.Fprintln(os.Stderr, "")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "daemon takes no arguments")
		fs.Usage()
		return 2
	}

	res, err := loadConfig(*path)
	if err != nil {
		log.Printf("Failed to load configuration: %v", err)
		return 1
	}
	cfg := res.Config
	logger := newLogger(os.Stderr, cfg.SlogLevel())

	var driver daemon.Driver
	if *headless {
		driver = daemon.NewHeadless(daemon.DefaultHeadlessOutput)
	} else {
		if *display != "" {
			cfg.X11.Display = *display
		}
		if cfg.X11.XAuthority != "" {
			os.Setenv("XAUTHORITY", cfg.X11.XAuthority)
		}
		adapter, err := x11.NewAdapter(cfg.X11, logger)
		if err != nil {
			log.Printf("Failed to connect to display: %v", err)
			return 1
		}
		driver = adapter
	}

	d, err := daemon.New(daemon.Config{Config: cfg, Logger: logger, Driver: driver})
	if err != nil {
		driver.Close()
		log.Printf("Failed to create daemon: %v", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go reloadOnHangup(ctx, d, logger)

	logger.Info("wmcore daemon starting", "driver", driver.Name(), "config", res.File)
	if err := d.Run(ctx); err != nil {
		logger.Error("daemon stopped", "error", err)
		return 1
	}
	return 0
}

// reloadOnHangup reloads the configured module on SIGHUP.
func reloadOnHangup(ctx context.Context, d *daemon.Daemon, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			m, err := d.ReloadModule("")
			if err != nil {
				logger.Warn("reload failed", "error", err)
				continue
			}
			logger.Info("module reloaded", "name", m.Name, "version", m.Version)
		}
	}
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wmcore status [--json]")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Show daemon status via IPC.")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "status takes no arguments")
		fs.Usage()
		return 2
	}

	client := ipc.NewClient()
	status, err := client.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(os.Stdout, status)
	}
	printStatus(os.Stdout, status)
	return 0
}

func printStatus(w io.Writer, st *ipc.StatusData) {
	fmt.Fprintf(w, "backend:        %s\n", st.Backend)
	fmt.Fprintf(w, "toplevels:      %d (%d closing)\n", st.Toplevels, st.Closing)
	fmt.Fprintf(w, "outputs:        %d\n", st.Outputs)
	fmt.Fprintf(w, "pending_acks:   %d\n", st.PendingAcks)
	fmt.Fprintf(w, "last_serial:    %d\n", st.LastSerial)
	fmt.Fprintf(w, "keyboard_focus: %s\n", st.KeyboardFocus)
	fmt.Fprintf(w, "pointer_focus:  %s\n", st.PointerFocus)
	fmt.Fprintf(w, "modifiers:      %s\n", strings.Join(st.Modifiers, ","))
	if st.Module != nil {
		fmt.Fprintf(w, "module:         %s %s\n", st.Module.Name, st.Module.Version)
	}
	fmt.Fprintf(w, "uptime_seconds: %d\n", st.UptimeSeconds)
}

func runToplevels(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("toplevels", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wmcore toplevels [--json]")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "toplevels takes no arguments")
		fs.Usage()
		return 2
	}

	list, err := ipc.NewClient().ListToplevels()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(w, list)
	}
	printToplevels(w, list)
	return 0
}

func printToplevels(w io.Writer, list []ipc.ToplevelInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAPP\tTITLE\tPHASE\tGEOMETRY\tSTATE")
	for _, t := range list {
		geom := "-"
		if t.Geometry != nil {
			geom = t.Geometry.String()
		}
		state := strings.Join(t.State, ",")
		if state == "" {
			state = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", uint32(t.ID), dash(t.AppID), dash(t.Title), t.Phase, geom, state)
	}
	tw.Flush()
}

func runOutputs(args []string, w io.Writer) int {
	fs := flag.NewFlagSet("outputs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	asJSON := fs.Bool("json", false, "Print JSON")
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: wmcore outputs [--json]")
	}
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "outputs takes no arguments")
		fs.Usage()
		return 2
	}

	list, err := ipc.NewClient().ListOutputs()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if *asJSON {
		return printJSON(w, list)
	}
	printOutputs(w, list)
	return 0
}

func printOutputs(w io.Writer, list []ipc.OutputInfo) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tGEOMETRY\tREFRESH")
	for _, o := range list {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d.%03d Hz\n", uint32(o.ID), o.Name, o.Geometry.String(), o.RefreshRate/1000, o.RefreshRate%1000)
	}
	tw.Flush()
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func loadConfig(path string) (*config.LoadResult, error) {
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return nil, err
		}
	}
	return config.LoadFromPath(path)
}
