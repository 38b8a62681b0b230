package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// ManifestFile is the file name looked up in a module directory.
const ManifestFile = "module.toml"

// DefaultMain is the entry file used when the manifest names none.
const DefaultMain = "init.lua"

// DefaultTimeout bounds a single entry-point call.
const DefaultTimeout = 100 * time.Millisecond

// Manifest describes a script module directory.
//
//	main = "init.lua"
//	timeout = "50ms"
//
//	[settings]
//	gap = 12
type Manifest struct {
	Main     string         `toml:"main"`
	Timeout  Duration       `toml:"timeout"`
	Settings map[string]any `toml:"settings"`

	dir string
}

// Duration decodes TOML strings such as "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// LoadManifest reads dir/module.toml. A directory without a manifest gets
// the defaults.
func LoadManifest(dir string) (*Manifest, error) {
	m := &Manifest{dir: dir}
	path := filepath.Join(dir, ManifestFile)
	md, err := toml.DecodeFile(path, m)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	default:
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("%s: unknown key %q", path, undecoded[0].String())
		}
	}

	if m.Main == "" {
		m.Main = DefaultMain
	}
	if m.Timeout.Duration == 0 {
		m.Timeout.Duration = DefaultTimeout
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func (m *Manifest) validate() error {
	if filepath.IsAbs(m.Main) || !filepath.IsLocal(m.Main) {
		return fmt.Errorf("main must be a path inside the module directory, got %q", m.Main)
	}
	if m.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must be positive, got %s", m.Timeout)
	}
	return nil
}

// Dir is the module directory the manifest was loaded from.
func (m *Manifest) Dir() string { return m.dir }

// MainPath is the absolute path of the entry file.
func (m *Manifest) MainPath() string {
	return filepath.Join(m.dir, m.Main)
}
