package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/1broseidon/wmcore/internal/tiling"
)

func writeConfig(t *testing.T, data string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
	layout, err := cfg.Builtin.TilingLayout()
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if layout.Mode != tiling.ModeGrid {
		t.Fatalf("expected grid, got %q", layout.Mode)
	}
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.File != "" {
		t.Fatalf("expected no file, got %q", res.File)
	}
	if res.Config.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", res.Config.LogLevel)
	}
}

func TestLoadFromPath_EmptyFileUsesDefaults(t *testing.T) {
	res, err := LoadFromPath(writeConfig(t, "# empty\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if res.Config.Builtin.Layout != "grid" {
		t.Fatalf("expected grid, got %q", res.Config.Builtin.Layout)
	}
}

func TestLoadFromPath_Overrides(t *testing.T) {
	data := strings.Join([]string{
		"log_level: debug",
		"module:",
		"  path: /opt/wm/tiler",
		"  reload_debounce: 1s",
		"  call_timeout: 30ms",
		"builtin:",
		"  layout: master-stack",
		"  gap: 0",
		"  master_percent: 60",
		"x11:",
		"  display: \":1\"",
		"  key_grabs: [Mod4-x]",
		"metrics:",
		"  listen: 127.0.0.1:9464",
		"",
	}, "\n")
	res, err := LoadFromPath(writeConfig(t, data))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cfg := res.Config
	if cfg.Module.Path != "/opt/wm/tiler" || cfg.Module.ReloadDebounce != time.Second || cfg.Module.CallTimeout != 30*time.Millisecond {
		t.Fatalf("unexpected module section: %+v", cfg.Module)
	}
	if !cfg.Module.Watch {
		t.Fatalf("expected watch to keep its default")
	}
	layout, err := cfg.Builtin.TilingLayout()
	if err != nil {
		t.Fatalf("layout: %v", err)
	}
	if layout.Mode != tiling.ModeMasterStack || layout.Gap != 0 || layout.MasterPercent != 60 {
		t.Fatalf("unexpected layout: %+v", layout)
	}
	if len(cfg.X11.KeyGrabs) != 1 || cfg.X11.KeyGrabs[0] != "Mod4-x" {
		t.Fatalf("expected key grabs to be replaced, got %v", cfg.X11.KeyGrabs)
	}
	if cfg.Metrics.Listen != "127.0.0.1:9464" {
		t.Fatalf("expected metrics listen, got %q", cfg.Metrics.Listen)
	}
}

func TestLoadFromPath_UnknownKeyRejected(t *testing.T) {
	if _, err := LoadFromPath(writeConfig(t, "builtin:\n  gaps: 4\n")); err == nil {
		t.Fatalf("expected error for unknown key")
	}
}

func TestLoadFromPath_ValidationErrorHasSource(t *testing.T) {
	path := writeConfig(t, "log_level: info\nbuiltin:\n  layout: spiral\n")
	_, err := LoadFromPath(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Path != "builtin.layout" {
		t.Fatalf("expected path builtin.layout, got %q", verr.Path)
	}
	if verr.Source.File != path || verr.Source.Line != 3 {
		t.Fatalf("expected %s:3, got %s:%d", path, verr.Source.File, verr.Source.Line)
	}
	if !strings.HasPrefix(err.Error(), path+":3:") {
		t.Fatalf("expected error prefixed with file position, got %q", err.Error())
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"debounce", func(c *Config) { c.Module.ReloadDebounce = -time.Second }, "module.reload_debounce"},
		{"call timeout", func(c *Config) { c.Module.CallTimeout = -1 }, "module.call_timeout"},
		{"gap", func(c *Config) { c.Builtin.Gap = -1 }, "builtin.gap"},
		{"master percent", func(c *Config) { c.Builtin.MasterPercent = 95 }, "builtin.master_percent"},
		{"empty grab", func(c *Config) { c.X11.KeyGrabs = []string{"Mod4-a", " "} }, "x11.key_grabs.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			var verr *ValidationError
			if err := cfg.Validate(); !errors.As(err, &verr) || verr.Path != tt.path {
				t.Fatalf("expected validation error at %s, got %v", tt.path, err)
			}
		})
	}
}

func TestExplain(t *testing.T) {
	path := writeConfig(t, "builtin:\n  gap: 12\n")
	res, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	val, src, err := Explain(res, "builtin.gap")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != 12 {
		t.Fatalf("expected 12, got %#v", val)
	}
	if src.Kind != SourceFile || src.Line != 2 {
		t.Fatalf("expected file source on line 2, got %+v", src)
	}

	val, src, err = Explain(res, "x11.key_grabs.0")
	if err != nil {
		t.Fatalf("explain: %v", err)
	}
	if val != "Mod4-Return" || src.Kind != SourceDefault {
		t.Fatalf("expected default Mod4-Return, got %#v from %+v", val, src)
	}

	if _, _, err := Explain(res, "builtin.nope"); err == nil {
		t.Fatalf("expected error for unknown path")
	}
}

func TestSlogLevel(t *testing.T) {
	tests := map[string]string{"debug": "DEBUG", "warning": "WARN", "": "INFO", "error": "ERROR"}
	for in, want := range tests {
		cfg := &Config{LogLevel: in}
		if got := cfg.SlogLevel().String(); got != want {
			t.Errorf("SlogLevel(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMarshalRoundTripsThroughStrictDecode(t *testing.T) {
	data, err := Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	res, err := LoadFromPath(writeConfig(t, string(data)))
	if err != nil {
		t.Fatalf("expected printed defaults to load, got %v\n%s", err, data)
	}
	if res.Config.Module.ReloadDebounce != 250*time.Millisecond {
		t.Fatalf("expected debounce to survive, got %v", res.Config.Module.ReloadDebounce)
	}
}
