package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/1broseidon/wmcore/internal/config"
)

func runConfig(args []string) int {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		fmt.Fprintln(os.Stderr, "Usage:")
		fmt.Fprintln(os.Stderr, "  wmcore config validate [--path PATH]")
		fmt.Fprintln(os.Stderr, "  wmcore config print [--path PATH] [--defaults]")
		fmt.Fprintln(os.Stderr, "  wmcore config path")
		fmt.Fprintln(os.Stderr, "  wmcore config explain [--path PATH] <yaml.path>")
		return 2
	}

	switch args[0] {
	case "validate":
		fs := flag.NewFlagSet("validate", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/wmcore/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		if _, err := loadConfig(*path); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println("config: ok")
		return 0

	case "print":
		fs := flag.NewFlagSet("print", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/wmcore/config.yaml)")
		printDefaults := fs.Bool("defaults", false, "Print built-in defaults (no files)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}

		cfg := config.DefaultConfig()
		if !*printDefaults {
			res, err := loadConfig(*path)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				return 1
			}
			cfg = res.Config
		}
		data, err := config.Marshal(cfg)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Print(string(data))
		return 0

	case "path":
		path, err := config.DefaultConfigPath()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Println(path)
		return 0

	case "explain":
		fs := flag.NewFlagSet("explain", flag.ContinueOnError)
		fs.SetOutput(os.Stderr)
		path := fs.String("path", "", "Config file path (default: ~/.config/wmcore/config.yaml)")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if fs.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "explain requires <yaml.path>")
			return 2
		}
		queryPath := fs.Arg(0)

		res, err := loadConfig(*path)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		value, src, err := config.Explain(res, queryPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		out, err := yaml.Marshal(value)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}

		fmt.Printf("path: %s\n", queryPath)
		fmt.Printf("source: %s\n", formatSource(src))
		fmt.Printf("%s", string(out))
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		return 2
	}
}

func formatSource(src config.Source) string {
	switch src.Kind {
	case config.SourceFile:
		if src.File == "" {
			return "file"
		}
		if src.Line > 0 {
			return fmt.Sprintf("file:%s:%d:%d", src.File, src.Line, src.Column)
		}
		return "file:" + src.File
	case config.SourceDefault:
		return "default"
	default:
		return string(src.Kind)
	}
}
