package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/1broseidon/wmcore/internal/tiling"
)

// Config is the daemon configuration.
type Config struct {
	// LogLevel is one of debug, info, warn (or warning), error.
	LogLevel string        `yaml:"log_level"`
	Module   ModuleConfig  `yaml:"module"`
	Builtin  BuiltinConfig `yaml:"builtin"`
	Metrics  MetricsConfig `yaml:"metrics"`
	X11      X11Config     `yaml:"x11"`
}

// ModuleConfig selects the script module that replaces the built-in policy.
type ModuleConfig struct {
	// Path is a module directory. Empty runs the built-in policy only.
	Path string `yaml:"path"`
	// Watch reloads the module when files in Path change.
	Watch          bool          `yaml:"watch"`
	ReloadDebounce time.Duration `yaml:"reload_debounce"`
	// CallTimeout bounds each entry-point call; zero keeps the manifest's.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// BuiltinConfig tunes the fallback policy.
type BuiltinConfig struct {
	Layout                string `yaml:"layout"`
	Gap                   int    `yaml:"gap"`
	MasterPercent         int    `yaml:"master_percent"`    // master-stack only, 10-90
	FlexibleLastRow       bool   `yaml:"flexible_last_row"` // grid only
	ServerSideDecorations bool   `yaml:"server_side_decorations"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Listen is a host:port for /metrics. Empty disables the endpoint.
	Listen string `yaml:"listen"`
}

// X11Config configures the X11 protocol adapter.
type X11Config struct {
	Display    string `yaml:"display"`
	XAuthority string `yaml:"xauthority"`
	// KeyGrabs are key sequences such as "Mod4-Return" that are routed
	// through the policy's key filter before reaching clients.
	KeyGrabs []string `yaml:"key_grabs"`
}

// DefaultConfig returns the configuration used when no file exists.
func DefaultConfig() *Config {
	layout := tiling.DefaultLayout(tiling.ModeGrid)
	return &Config{
		LogLevel: "info",
		Module: ModuleConfig{
			Watch:          true,
			ReloadDebounce: 250 * time.Millisecond,
		},
		Builtin: BuiltinConfig{
			Layout:          string(layout.Mode),
			Gap:             layout.Gap,
			MasterPercent:   layout.MasterPercent,
			FlexibleLastRow: layout.FlexibleLastRow,
		},
		Metrics: MetricsConfig{},
		X11: X11Config{
			KeyGrabs: []string{"Mod4-Return", "Mod4-q", "Mod4-j", "Mod4-k"},
		},
	}
}

// Validate checks every field and reports the first problem with its path.
func (c *Config) Validate() error {
	if _, err := parseLevel(c.LogLevel); err != nil {
		return &ValidationError{Path: "log_level", Err: err}
	}
	if c.Module.ReloadDebounce < 0 {
		return &ValidationError{Path: "module.reload_debounce", Err: fmt.Errorf("reload_debounce must be >= 0")}
	}
	if c.Module.CallTimeout < 0 {
		return &ValidationError{Path: "module.call_timeout", Err: fmt.Errorf("call_timeout must be >= 0")}
	}
	if _, err := tiling.ParseMode(c.Builtin.Layout); err != nil {
		return &ValidationError{Path: "builtin.layout", Err: err}
	}
	if c.Builtin.Gap < 0 {
		return &ValidationError{Path: "builtin.gap", Err: fmt.Errorf("gap must be >= 0")}
	}
	if c.Builtin.MasterPercent < 10 || c.Builtin.MasterPercent > 90 {
		return &ValidationError{Path: "builtin.master_percent", Err: fmt.Errorf("master_percent must be between 10 and 90")}
	}
	for i, grab := range c.X11.KeyGrabs {
		if strings.TrimSpace(grab) == "" {
			return &ValidationError{Path: fmt.Sprintf("x11.key_grabs.%d", i), Err: fmt.Errorf("key grab must not be empty")}
		}
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level. Validate reports bad values.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("log_level must be one of: debug, info, warning, error")
	}
}

// TilingLayout converts the builtin section into a tiling layout.
func (b BuiltinConfig) TilingLayout() (tiling.Layout, error) {
	mode, err := tiling.ParseMode(b.Layout)
	if err != nil {
		return tiling.Layout{}, err
	}
	layout := tiling.DefaultLayout(mode)
	layout.Gap = b.Gap
	layout.MasterPercent = b.MasterPercent
	layout.FlexibleLastRow = b.FlexibleLastRow
	return layout, nil
}
