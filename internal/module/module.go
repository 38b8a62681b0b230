// Package module is the boundary between the engine and the replaceable
// policy module. It negotiates versions, instantiates modules and hands
// them owned or borrowed handles whose lifetimes are checked at runtime.
package module

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Info is what a module reports about itself before it is instantiated.
type Info struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ABI     ABI    `json:"abi"`
}

var (
	errMissingName    = errors.New("module name is required")
	errInvalidVersion = errors.New("module version must be valid semver")
)

// semverPattern validates version strings (simplified semver).
var semverPattern = regexp.MustCompile(`^\d+\.\d+\.\d+(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)

// Validate checks the identity fields. ABI compatibility is checked
// separately by CheckABI.
func (i Info) Validate() error {
	if i.Name == "" {
		return errMissingName
	}
	if !semverPattern.MatchString(i.Version) {
		return fmt.Errorf("%w: %q", errInvalidVersion, i.Version)
	}
	return nil
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (abi %s)", i.Name, i.Version, i.ABI)
}

// Module is a loadable policy. Info must not have side effects; Create
// yields the live instance bound to srv.
type Module interface {
	Info() (Info, error)
	Create(srv *Server) (Instance, error)
}

// Instance receives notifications. Every entry point runs to completion on
// the engine's goroutine and may call back into its Server while it runs.
type Instance interface {
	// NewToplevel transfers an owned handle to the module.
	NewToplevel(t *Toplevel) error
	// ClosedToplevel is the last notification for id.
	ClosedToplevel(id wm.ToplevelID) error
	// UpdateToplevel signals which fields changed; values are re-read
	// through the borrowed handle.
	UpdateToplevel(t *Toplevel, flags wm.UpdateFlags) error
	AckToplevel(t *Toplevel, serial uint32) error
	// CommittedToplevel transfers ownership of snapshot, which may be nil.
	CommittedToplevel(t *Toplevel, snapshot *registry.Snapshot) error
	Key(ev wm.KeyEvent) (wm.KeyFilter, error)
	KeyModifiers(m wm.Modifiers) error
	// NewOutput transfers an owned handle to the module.
	NewOutput(o *Output) error
	DisconnectOutput(id wm.OutputID) error
}

// Closer is implemented by instances that hold resources beyond the
// engine's handles.
type Closer interface {
	Close() error
}

// ToplevelInfo is the host's current view of a toplevel.
type ToplevelInfo struct {
	ID          wm.ToplevelID     `json:"id"`
	Features    wm.Features       `json:"features"`
	AppID       string            `json:"app_id,omitempty"`
	Title       string            `json:"title,omitempty"`
	MinSize     wm.Size           `json:"min_size"`
	MaxSize     wm.Size           `json:"max_size"`
	Geometry    *wm.Geometry      `json:"geometry,omitempty"`
	Parent      wm.ToplevelID     `json:"parent,omitempty"`
	State       wm.ToplevelState  `json:"state"`
	Decorations wm.DecorationMode `json:"decorations"`
	ResizeEdge  wm.ResizeEdge     `json:"resize_edge"`
	Mapped      bool              `json:"mapped"`
}

// OutputInfo is the host's current view of an output.
type OutputInfo struct {
	ID          wm.OutputID `json:"id"`
	Name        string      `json:"name,omitempty"`
	Geometry    wm.Geometry `json:"geometry"`
	RefreshRate uint32      `json:"refresh_mhz"`
}

// Host is what the engine exposes to modules. Every method is invoked on
// the engine's goroutine from inside an entry point.
type Host interface {
	SetKeyboardFocus(wm.Focus) error
	SetPointerFocus(wm.Focus) error
	KeyboardFocus() wm.Focus
	ToplevelInfo(wm.ToplevelID) (ToplevelInfo, error)
	OutputInfo(wm.OutputID) (OutputInfo, error)
	Toplevels() []wm.ToplevelID
	Outputs() []wm.OutputID
	SubmitConfigure(*configure.Request) (uint32, error)
	RequestClose(wm.ToplevelID) error
	ForgetToplevel(wm.ToplevelID)
}
