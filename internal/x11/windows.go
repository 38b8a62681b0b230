package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/1broseidon/wmcore/internal/wm"
)

// clientProps are the client-owned properties the engine tracks.
type clientProps struct {
	AppID        string
	Title        string
	MinSize      wm.Size
	MaxSize      wm.Size
	TransientFor xproto.Window
}

// readClient collects a client's properties. Missing properties are left
// zero.
func (c *Connection) readClient(win xproto.Window) clientProps {
	var p clientProps
	if class, err := icccm.WmClassGet(c.XUtil, win); err == nil {
		p.AppID = class.Class
	}
	p.Title = c.windowTitle(win)
	p.MinSize, p.MaxSize = c.sizeHints(win)
	if parent, err := icccm.WmTransientForGet(c.XUtil, win); err == nil {
		p.TransientFor = parent
	}
	return p
}

// windowTitle prefers _NET_WM_NAME and falls back to WM_NAME.
func (c *Connection) windowTitle(win xproto.Window) string {
	if name, err := ewmh.WmNameGet(c.XUtil, win); err == nil && name != "" {
		return name
	}
	name, _ := icccm.WmNameGet(c.XUtil, win)
	return name
}

func (c *Connection) sizeHints(win xproto.Window) (minSize, maxSize wm.Size) {
	hints, err := icccm.WmNormalHintsGet(c.XUtil, win)
	if err != nil {
		return
	}
	if hints.Flags&icccm.SizeHintPMinSize != 0 {
		minSize = wm.Size{Width: uint32(hints.MinWidth), Height: uint32(hints.MinHeight)}
	}
	if hints.Flags&icccm.SizeHintPMaxSize != 0 {
		maxSize = wm.Size{Width: uint32(hints.MaxWidth), Height: uint32(hints.MaxHeight)}
	}
	return
}

// IsNormalWindow checks if a window is a normal application window
func (c *Connection) IsNormalWindow(windowID xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(c.XUtil, windowID)
	if err != nil {
		// If we can't determine type, assume it's normal
		return true
	}
	return normalWindowType(types)
}

func normalWindowType(types []string) bool {
	for _, t := range types {
		switch t {
		case "_NET_WM_WINDOW_TYPE_NORMAL", "_NET_WM_WINDOW_TYPE_DIALOG":
			return true
		// Reject desktop, dock, splash, etc.
		case "_NET_WM_WINDOW_TYPE_DESKTOP",
			"_NET_WM_WINDOW_TYPE_DOCK",
			"_NET_WM_WINDOW_TYPE_SPLASH",
			"_NET_WM_WINDOW_TYPE_NOTIFICATION":
			return false
		}
	}
	// If no specific type is set, assume it's normal
	return len(types) == 0
}

// stateAtoms translates a proposed state into _NET_WM_STATE atoms. Flags
// with no EWMH equivalent are left out.
func stateAtoms(s wm.ToplevelState) []string {
	atoms := []string{}
	if s.Has(wm.StateMaximized) {
		atoms = append(atoms, "_NET_WM_STATE_MAXIMIZED_VERT", "_NET_WM_STATE_MAXIMIZED_HORZ")
	}
	if s.Has(wm.StateFullscreen) {
		atoms = append(atoms, "_NET_WM_STATE_FULLSCREEN")
	}
	if s.Has(wm.StateActivated) {
		atoms = append(atoms, "_NET_WM_STATE_FOCUSED")
	}
	if s.Has(wm.StateSuspended) {
		atoms = append(atoms, "_NET_WM_STATE_HIDDEN")
	}
	return atoms
}

// _NET_WM_STATE client message actions.
const (
	stateRemove = 0
	stateAdd    = 1
	stateToggle = 2
)

// stateRequests maps a client's _NET_WM_STATE message to request flags.
// Toggles are resolved against the current state.
func stateRequests(action uint32, names []string, current wm.ToplevelState) wm.UpdateFlags {
	var flags wm.UpdateFlags
	for _, name := range names {
		var flag wm.ToplevelState
		var set, unset wm.UpdateFlags
		switch name {
		case "_NET_WM_STATE_MAXIMIZED_VERT", "_NET_WM_STATE_MAXIMIZED_HORZ":
			flag, set, unset = wm.StateMaximized, wm.UpdateRequestSetMaximized, wm.UpdateRequestUnsetMaximized
		case "_NET_WM_STATE_FULLSCREEN":
			flag, set, unset = wm.StateFullscreen, wm.UpdateRequestSetFullscreen, wm.UpdateRequestUnsetFullscreen
		case "_NET_WM_STATE_HIDDEN":
			if action != stateRemove {
				flags |= wm.UpdateRequestMinimize
			}
			continue
		default:
			continue
		}
		switch action {
		case stateAdd:
			flags |= set
		case stateRemove:
			flags |= unset
		case stateToggle:
			if current.Has(flag) {
				flags |= unset
			} else {
				flags |= set
			}
		}
	}
	return flags
}

// stateMessage decodes a _NET_WM_STATE client message into its action and
// property names.
func (c *Connection) stateMessage(data []uint32) (uint32, []string) {
	if len(data) < 3 {
		return 0, nil
	}
	var names []string
	for _, atom := range data[1:3] {
		if atom == 0 {
			continue
		}
		if name, err := xprop.AtomName(c.XUtil, xproto.Atom(atom)); err == nil {
			names = append(names, name)
		}
	}
	return data[0], names
}

// CloseWindow asks a client to close through WM_DELETE_WINDOW, killing it
// when it does not take part in the protocol.
func (c *Connection) CloseWindow(win xproto.Window) error {
	protocols, err := icccm.WmProtocolsGet(c.XUtil, win)
	if err != nil || !contains(protocols, "WM_DELETE_WINDOW") {
		xwindow.New(c.XUtil, win).Kill()
		return nil
	}

	wmProtocols, err := xprop.Atm(c.XUtil, "WM_PROTOCOLS")
	if err != nil {
		return err
	}
	deleteWindow, err := xprop.Atm(c.XUtil, "WM_DELETE_WINDOW")
	if err != nil {
		return err
	}
	cm, err := xevent.NewClientMessage(32, win, wmProtocols, int(deleteWindow), int(xproto.TimeCurrentTime))
	if err != nil {
		return err
	}
	return xproto.SendEventChecked(c.XUtil.Conn(), false, win, xproto.EventMaskNoEvent, string(cm.Bytes())).Check()
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
