package x11

import (
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
)

// supportedHints lists the EWMH hints the adapter maintains or honours.
var supportedHints = []string{
	"_NET_SUPPORTED",
	"_NET_SUPPORTING_WM_CHECK",
	"_NET_WM_NAME",
	"_NET_ACTIVE_WINDOW",
	"_NET_CLIENT_LIST",
	"_NET_NUMBER_OF_DESKTOPS",
	"_NET_CURRENT_DESKTOP",
	"_NET_WM_STATE",
	"_NET_WM_STATE_MAXIMIZED_VERT",
	"_NET_WM_STATE_MAXIMIZED_HORZ",
	"_NET_WM_STATE_FULLSCREEN",
	"_NET_WM_STATE_FOCUSED",
	"_NET_WM_STATE_HIDDEN",
	"_NET_WM_WINDOW_TYPE",
}

// Announce publishes the window manager on the root and check windows.
func (c *Connection) Announce(name string) error {
	if err := ewmh.SupportingWmCheckSet(c.XUtil, c.Root, c.Check); err != nil {
		return err
	}
	if err := ewmh.SupportingWmCheckSet(c.XUtil, c.Check, c.Check); err != nil {
		return err
	}
	if err := ewmh.WmNameSet(c.XUtil, c.Check, name); err != nil {
		return err
	}
	if err := ewmh.SupportedSet(c.XUtil, supportedHints); err != nil {
		return err
	}
	// One desktop: workspaces belong to the policy, not to EWMH pagers.
	if err := ewmh.NumberOfDesktopsSet(c.XUtil, 1); err != nil {
		return err
	}
	return ewmh.CurrentDesktopSet(c.XUtil, 0)
}

// SetActiveWindow updates _NET_ACTIVE_WINDOW; zero clears it.
func (c *Connection) SetActiveWindow(win xproto.Window) error {
	return ewmh.ActiveWindowSet(c.XUtil, win)
}

// SetClientList updates _NET_CLIENT_LIST.
func (c *Connection) SetClientList(wins []xproto.Window) error {
	return ewmh.ClientListSet(c.XUtil, wins)
}

// SetWindowState writes _NET_WM_STATE on a client.
func (c *Connection) SetWindowState(win xproto.Window, atoms []string) error {
	return ewmh.WmStateSet(c.XUtil, win, atoms)
}

// SetMapped sets the ICCCM WM_STATE for a managed window.
func (c *Connection) SetMapped(win xproto.Window, mapped bool) error {
	state := uint(icccm.StateNormal)
	if !mapped {
		state = icccm.StateWithdrawn
	}
	return icccm.WmStateSet(c.XUtil, win, &icccm.WmState{State: state})
}
