package x11

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"
)

// ErrOtherWM is returned when another window manager owns the root window.
var ErrOtherWM = errors.New("another window manager is already running")

// rootEvents is what a window manager selects on the root window.
const rootEvents = xproto.EventMaskSubstructureRedirect |
	xproto.EventMaskSubstructureNotify |
	xproto.EventMaskPropertyChange

// Connection manages the X11 connection and core X resources
type Connection struct {
	XUtil *xgbutil.XUtil
	Root  xproto.Window
	// Check is the _NET_SUPPORTING_WM_CHECK window. It doubles as the
	// target of the wake-up message that ends the event loop.
	Check xproto.Window
}

// NewConnection connects to display, or $DISPLAY when empty, and
// initializes the keybind and RandR extensions.
func NewConnection(display string) (*Connection, error) {
	xu, err := xgbutil.NewConnDisplay(display)
	if err != nil {
		return nil, err
	}

	// Initialize keybind module (required for key grabs)
	keybind.Initialize(xu)

	if err := randr.Init(xu.Conn()); err != nil {
		xu.Conn().Close()
		return nil, fmt.Errorf("randr init failed: %w", err)
	}

	return &Connection{
		XUtil: xu,
		Root:  xu.RootWin(),
	}, nil
}

// BecomeWM selects substructure redirection on the root window. Only one
// client may hold it, so failure means another window manager is running.
func (c *Connection) BecomeWM() error {
	err := xproto.ChangeWindowAttributesChecked(c.XUtil.Conn(), c.Root,
		xproto.CwEventMask, []uint32{uint32(rootEvents)}).Check()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOtherWM, err)
	}

	randr.SelectInput(c.XUtil.Conn(), c.Root, randr.NotifyMaskScreenChange)
	return nil
}

// CreateCheckWindow creates the invisible window used for
// _NET_SUPPORTING_WM_CHECK.
func (c *Connection) CreateCheckWindow() error {
	wid, err := xproto.NewWindowId(c.XUtil.Conn())
	if err != nil {
		return fmt.Errorf("failed to allocate check window: %w", err)
	}
	err = xproto.CreateWindowChecked(c.XUtil.Conn(), 0, wid, c.Root,
		-1, -1, 1, 1, 0, xproto.WindowClassInputOnly, 0, 0, nil).Check()
	if err != nil {
		return fmt.Errorf("failed to create check window: %w", err)
	}
	c.Check = wid
	return nil
}

// EventLoop starts the main X11 event loop (blocking)
func (c *Connection) EventLoop() {
	xevent.Main(c.XUtil)
}

// Quit stops the event loop. xevent only notices the flag after the next
// event, so a client message is sent to our own check window.
func (c *Connection) Quit() {
	xevent.Quit(c.XUtil)
	if c.Check == 0 {
		return
	}
	atom, err := xprop.Atm(c.XUtil, "_WMCORE_WAKE")
	if err != nil {
		return
	}
	cm, err := xevent.NewClientMessage(32, c.Check, atom)
	if err != nil {
		return
	}
	xproto.SendEvent(c.XUtil.Conn(), false, c.Check, 0, string(cm.Bytes()))
	c.XUtil.Sync()
}

// Close cleanly disconnects from the X11 server
func (c *Connection) Close() {
	if c.Check != 0 {
		xproto.DestroyWindow(c.XUtil.Conn(), c.Check)
	}
	c.XUtil.Conn().Close()
}
