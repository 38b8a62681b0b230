package x11

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/randr"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"
	"github.com/BurntSushi/xgbutil/xprop"

	"github.com/1broseidon/wmcore/internal/config"
	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/daemon"
	"github.com/1broseidon/wmcore/internal/engine"
	"github.com/1broseidon/wmcore/internal/wm"
)

// ErrNoWindow is returned when the engine names a toplevel the adapter has
// no window for.
var ErrNoWindow = errors.New("x11: no window for toplevel")

// clientEvents is selected on every managed window.
const clientEvents = xproto.EventMaskPropertyChange

// X11 clients can have their windows hidden, but cannot draw tiled edges
// or hand decorations over.
const clientFeatures = wm.FeatureSuspendedState

// Adapter runs wmcore as an X11 window manager.
type Adapter struct {
	conn   *Connection
	cfg    config.X11Config
	logger *slog.Logger

	numLock uint16

	mu      sync.Mutex
	sink    daemon.Sink
	windows map[xproto.Window]*client
	ids     map[wm.ToplevelID]*client
	outputs map[randr.Crtc]*trackedOutput
	mods    wm.Modifiers

	// creating is the client whose ToplevelCreated is in progress. Only
	// touched on the daemon loop.
	creating *client
}

var _ daemon.Driver = (*Adapter)(nil)

type client struct {
	win    xproto.Window
	id     wm.ToplevelID
	geom   wm.Geometry
	state  wm.ToplevelState
	mapped bool
}

type trackedOutput struct {
	id  wm.OutputID
	src *outputSource
}

// outputSource lets the engine read a monitor's current values.
type outputSource struct {
	mu  sync.Mutex
	mon Monitor
}

func (o *outputSource) set(m Monitor) {
	o.mu.Lock()
	o.mon = m
	o.mu.Unlock()
}

func (o *outputSource) Name() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mon.Name
}

func (o *outputSource) Geometry() wm.Geometry {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mon.Geometry
}

func (o *outputSource) RefreshRate() uint32 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.mon.RefreshRate
}

// windowContents stands in for a client's buffer. The X server owns the
// pixels, so there is nothing to hand back on release.
type windowContents struct {
	size wm.Size
}

func (w windowContents) Size() wm.Size  { return w.size }
func (w windowContents) Scale() float32 { return 1 }
func (w windowContents) Release()       {}

// commitFor describes the commit the window makes after moving from prev
// to geom. Contents are only captured when the presented size changed.
func commitFor(prev, geom wm.Geometry, firstMap bool) engine.Commit {
	g := geom
	c := engine.Commit{Geometry: &g}
	if firstMap || prev.Size() != geom.Size() {
		c.Snapshot = windowContents{size: geom.Size()}
	}
	return c
}

// NewAdapter connects to the display named in cfg.
func NewAdapter(cfg config.X11Config, logger *slog.Logger) (*Adapter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := NewConnection(cfg.Display)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	return &Adapter{
		conn:    conn,
		cfg:     cfg,
		logger:  logger.With("driver", "x11"),
		windows: make(map[xproto.Window]*client),
		ids:     make(map[wm.ToplevelID]*client),
		outputs: make(map[randr.Crtc]*trackedOutput),
	}, nil
}

func (a *Adapter) Name() string { return "x11" }

// Run takes over the root window, adopts existing windows and processes
// X events until ctx is done.
func (a *Adapter) Run(ctx context.Context, sink daemon.Sink) error {
	a.mu.Lock()
	a.sink = sink
	a.mu.Unlock()

	if err := a.conn.BecomeWM(); err != nil {
		return err
	}
	if err := a.conn.CreateCheckWindow(); err != nil {
		return err
	}
	if err := a.conn.Announce("wmcore"); err != nil {
		a.logger.Warn("failed to publish EWMH hints", "error", err)
	}

	a.numLock = configureIgnoreMods(a.conn.XUtil)
	grabs, err := a.conn.parseGrabs(a.cfg.KeyGrabs)
	if err != nil {
		return err
	}
	a.conn.grabKeys(grabs)

	xevent.ErrorHandlerSet(a.conn.XUtil, func(err xgb.Error) {
		a.logger.Debug("X error", "error", err.Error())
	})
	xevent.HookFun(a.handle).Connect(a.conn.XUtil)

	if err := a.refreshOutputs(); err != nil {
		return err
	}
	a.adoptExisting()

	go func() {
		<-ctx.Done()
		a.conn.Quit()
	}()

	a.logger.Info("managing display", "root", a.conn.Root, "grabs", len(grabs))
	a.conn.EventLoop()
	return nil
}

// handle sees every event before xevent's callbacks. Returning true lets
// them run as well.
func (a *Adapter) handle(xu *xgbutil.XUtil, event interface{}) bool {
	switch ev := event.(type) {
	case xproto.MapRequestEvent:
		a.mapRequest(ev.Window)
	case xproto.UnmapNotifyEvent:
		a.unmanage(ev.Window)
	case xproto.DestroyNotifyEvent:
		a.unmanage(ev.Window)
	case xproto.ConfigureRequestEvent:
		a.configureRequest(ev)
	case xproto.PropertyNotifyEvent:
		a.propertyChanged(ev.Window)
	case xproto.ClientMessageEvent:
		a.clientMessage(ev)
	case xproto.KeyPressEvent:
		a.key(ev.State, ev.Detail, ev.Time, wm.KeyPressed)
	case xproto.KeyReleaseEvent:
		a.key(ev.State, ev.Detail, ev.Time, wm.KeyReleased)
	case randr.ScreenChangeNotifyEvent:
		if err := a.refreshOutputs(); err != nil {
			a.logger.Warn("failed to refresh outputs", "error", err)
		}
	}
	return true
}

func (a *Adapter) currentSink() daemon.Sink {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sink
}

func (a *Adapter) lookupWindow(win xproto.Window) *client {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.windows[win]
}

func (a *Adapter) mapRequest(win xproto.Window) {
	if a.lookupWindow(win) != nil {
		xproto.MapWindow(a.conn.XUtil.Conn(), win)
		return
	}
	attrs, err := xproto.GetWindowAttributes(a.conn.XUtil.Conn(), win).Reply()
	if err != nil {
		return
	}
	if attrs.OverrideRedirect || !a.conn.IsNormalWindow(win) {
		xproto.MapWindow(a.conn.XUtil.Conn(), win)
		return
	}
	a.manage(win, false)
}

// adoptExisting manages windows that were mapped before we started.
func (a *Adapter) adoptExisting() {
	tree, err := xproto.QueryTree(a.conn.XUtil.Conn(), a.conn.Root).Reply()
	if err != nil {
		a.logger.Warn("failed to query existing windows", "error", err)
		return
	}
	for _, win := range tree.Children {
		if win == a.conn.Check {
			continue
		}
		attrs, err := xproto.GetWindowAttributes(a.conn.XUtil.Conn(), win).Reply()
		if err != nil || attrs.OverrideRedirect || attrs.MapState != xproto.MapStateViewable {
			continue
		}
		if !a.conn.IsNormalWindow(win) {
			continue
		}
		a.manage(win, true)
	}
}

// manage creates a toplevel for win. Clients that are already on screen
// keep their geometry until the policy configures them.
func (a *Adapter) manage(win xproto.Window, mapped bool) {
	sink := a.currentSink()
	if sink == nil {
		return
	}
	cl := &client{win: win, mapped: mapped}
	if geom, err := xproto.GetGeometry(a.conn.XUtil.Conn(), xproto.Drawable(win)).Reply(); err == nil {
		cl.geom = wm.Geometry{X: int32(geom.X), Y: int32(geom.Y), Width: uint32(geom.Width), Height: uint32(geom.Height)}
	}
	xproto.ChangeWindowAttributes(a.conn.XUtil.Conn(), win, xproto.CwEventMask, []uint32{clientEvents})
	props := a.conn.readClient(win)

	err := sink.Do(func(e *engine.Engine) error {
		a.creating = cl
		id, err := e.ToplevelCreated(clientFeatures)
		a.creating = nil
		if err != nil {
			return err
		}
		a.register(cl, id)
		return e.ToplevelUpdated(id, a.update(props))
	})
	if err != nil {
		a.logger.Warn("failed to manage window", "window", win, "error", err)
		return
	}
	a.logger.Debug("managing window", "window", win, "toplevel", cl.id, "app_id", props.AppID)
	a.publishClientList()
}

func (a *Adapter) register(cl *client, id wm.ToplevelID) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cl.id != 0 {
		return
	}
	cl.id = id
	a.windows[cl.win] = cl
	a.ids[id] = cl
}

// update converts client properties into an engine update. A transient
// parent the adapter does not manage is reported as no parent.
func (a *Adapter) update(p clientProps) engine.Update {
	var parent wm.ToplevelID
	if p.TransientFor != 0 {
		if pc := a.lookupWindow(p.TransientFor); pc != nil {
			parent = pc.id
		}
	}
	return engine.Update{
		AppID:   &p.AppID,
		Title:   &p.Title,
		MinSize: &p.MinSize,
		MaxSize: &p.MaxSize,
		Parent:  &parent,
	}
}

func (a *Adapter) unmanage(win xproto.Window) {
	a.mu.Lock()
	cl, ok := a.windows[win]
	if ok {
		delete(a.windows, win)
		delete(a.ids, cl.id)
	}
	sink := a.sink
	a.mu.Unlock()
	if !ok || sink == nil {
		return
	}

	if err := sink.Do(func(e *engine.Engine) error { return e.ToplevelClosed(cl.id) }); err != nil {
		a.logger.Debug("toplevel close rejected", "toplevel", cl.id, "error", err)
	}
	a.publishClientList()
}

// configureRequest honours requests from unmanaged windows. Managed
// windows are told their current geometry instead.
func (a *Adapter) configureRequest(ev xproto.ConfigureRequestEvent) {
	if cl := a.lookupWindow(ev.Window); cl != nil {
		a.notifyGeometry(cl.win, a.geometry(cl))
		return
	}
	mask, values := configureValues(ev)
	xproto.ConfigureWindow(a.conn.XUtil.Conn(), ev.Window, mask, values)
}

// configureValues rebuilds the value list of a configure request in the
// order the protocol expects.
func configureValues(ev xproto.ConfigureRequestEvent) (uint16, []uint32) {
	var values []uint32
	mask := ev.ValueMask
	if mask&xproto.ConfigWindowX != 0 {
		values = append(values, uint32(int32(ev.X)))
	}
	if mask&xproto.ConfigWindowY != 0 {
		values = append(values, uint32(int32(ev.Y)))
	}
	if mask&xproto.ConfigWindowWidth != 0 {
		values = append(values, uint32(ev.Width))
	}
	if mask&xproto.ConfigWindowHeight != 0 {
		values = append(values, uint32(ev.Height))
	}
	if mask&xproto.ConfigWindowBorderWidth != 0 {
		values = append(values, uint32(ev.BorderWidth))
	}
	if mask&xproto.ConfigWindowSibling != 0 {
		values = append(values, uint32(ev.Sibling))
	}
	if mask&xproto.ConfigWindowStackMode != 0 {
		values = append(values, uint32(ev.StackMode))
	}
	return mask, values
}

func (a *Adapter) geometry(cl *client) wm.Geometry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return cl.geom
}

// notifyGeometry sends the synthetic ConfigureNotify ICCCM requires when
// a window manager moves a client without resizing it.
func (a *Adapter) notifyGeometry(win xproto.Window, g wm.Geometry) {
	ev := xproto.ConfigureNotifyEvent{
		Event:  win,
		Window: win,
		X:      int16(g.X),
		Y:      int16(g.Y),
		Width:  uint16(g.Width),
		Height: uint16(g.Height),
	}
	xproto.SendEvent(a.conn.XUtil.Conn(), false, win, xproto.EventMaskStructureNotify, string(ev.Bytes()))
}

func (a *Adapter) propertyChanged(win xproto.Window) {
	cl := a.lookupWindow(win)
	sink := a.currentSink()
	if cl == nil || sink == nil {
		return
	}
	u := a.update(a.conn.readClient(win))
	if err := sink.Do(func(e *engine.Engine) error { return e.ToplevelUpdated(cl.id, u) }); err != nil {
		a.logger.Debug("property update rejected", "toplevel", cl.id, "error", err)
	}
}

func (a *Adapter) clientMessage(ev xproto.ClientMessageEvent) {
	cl := a.lookupWindow(ev.Window)
	if cl == nil {
		return
	}
	name, err := xprop.AtomName(a.conn.XUtil, ev.Type)
	if err != nil {
		return
	}
	switch name {
	case "_NET_WM_STATE":
		action, names := a.conn.stateMessage(ev.Data.Data32)
		a.mu.Lock()
		current := cl.state
		a.mu.Unlock()
		requests := stateRequests(action, names, current)
		if requests == 0 {
			return
		}
		sink := a.currentSink()
		if sink == nil {
			return
		}
		if err := sink.Do(func(e *engine.Engine) error {
			return e.ToplevelUpdated(cl.id, engine.Update{Requests: requests})
		}); err != nil {
			a.logger.Debug("state request rejected", "toplevel", cl.id, "error", err)
		}
	case "_NET_CLOSE_WINDOW":
		if err := a.conn.CloseWindow(cl.win); err != nil {
			a.logger.Warn("failed to close window", "window", cl.win, "error", err)
		}
	}
}

// key runs a grabbed key through the engine and releases the frozen
// keyboard according to the verdict.
func (a *Adapter) key(state uint16, detail xproto.Keycode, t xproto.Timestamp, status wm.KeyStatus) {
	sink := a.currentSink()
	filter := wm.KeyForward
	if sink != nil {
		ev := a.conn.keyEvent(state, detail, t, status)
		mods := modifiersFromState(state, a.numLock)

		a.mu.Lock()
		modsChanged := mods != a.mods
		a.mods = mods
		a.mu.Unlock()

		err := sink.Do(func(e *engine.Engine) error {
			if modsChanged {
				if err := e.ModifiersChanged(mods); err != nil {
					return err
				}
			}
			f, err := e.Key(ev)
			if err != nil {
				return err
			}
			filter = f
			return nil
		})
		if err != nil {
			a.logger.Debug("key event rejected", "keysym", ev.Keysym, "error", err)
		}
	}
	// Releases only arrive here for keys whose press was dropped.
	if status == wm.KeyPressed {
		a.conn.releaseKeyboard(filter, t)
	}
}

// refreshOutputs reconciles the engine's outputs with RandR.
func (a *Adapter) refreshOutputs() error {
	monitors, err := a.conn.GetMonitors()
	if err != nil {
		return err
	}
	sink := a.currentSink()
	if sink == nil {
		return daemon.ErrNotRunning
	}

	a.mu.Lock()
	known := make(map[randr.Crtc]Monitor, len(a.outputs))
	for crtc, o := range a.outputs {
		known[crtc] = Monitor{Crtc: crtc, Name: o.src.Name(), Geometry: o.src.Geometry(), RefreshRate: o.src.RefreshRate()}
	}
	a.mu.Unlock()

	diff := diffMonitors(known, monitors)
	for _, crtc := range diff.Removed {
		a.mu.Lock()
		o := a.outputs[crtc]
		delete(a.outputs, crtc)
		a.mu.Unlock()
		if o == nil {
			continue
		}
		if err := sink.Do(func(e *engine.Engine) error { return e.OutputDisconnected(o.id) }); err != nil {
			a.logger.Warn("output disconnect rejected", "output", o.id, "error", err)
		}
	}
	for _, m := range diff.Changed {
		a.mu.Lock()
		if o := a.outputs[m.Crtc]; o != nil {
			o.src.set(m)
		}
		a.mu.Unlock()
	}
	for _, m := range diff.Added {
		src := &outputSource{mon: m}
		var id wm.OutputID
		err := sink.Do(func(e *engine.Engine) error {
			var err error
			id, err = e.OutputConnected(src)
			return err
		})
		if err != nil {
			a.logger.Warn("output connect rejected", "output", m.Name, "error", err)
			continue
		}
		a.mu.Lock()
		a.outputs[m.Crtc] = &trackedOutput{id: id, src: src}
		a.mu.Unlock()
		a.logger.Info("output connected", "output", m.Name, "geometry", m.Geometry.String(), "refresh_mhz", m.RefreshRate)
	}
	return nil
}

func (a *Adapter) publishClientList() {
	a.mu.Lock()
	wins := make([]xproto.Window, 0, len(a.windows))
	for win := range a.windows {
		wins = append(wins, win)
	}
	a.mu.Unlock()
	sort.Slice(wins, func(i, j int) bool { return wins[i] < wins[j] })
	if err := a.conn.SetClientList(wins); err != nil {
		a.logger.Debug("failed to update client list", "error", err)
	}
}

// resolve finds the client for id. During ToplevelCreated the module may
// configure the new toplevel before the adapter has learned its id.
func (a *Adapter) resolve(id wm.ToplevelID) *client {
	a.mu.Lock()
	cl := a.ids[id]
	a.mu.Unlock()
	if cl != nil {
		return cl
	}
	if a.creating != nil && a.creating.id == 0 {
		cl = a.creating
		a.register(cl, id)
		return cl
	}
	return nil
}

// SendConfigure applies the configure to the window straight away. The X
// server has no configure handshake, so the acknowledgement and commit
// are posted on the client's behalf.
func (a *Adapter) SendConfigure(serial uint32, req *configure.Request) error {
	cl := a.resolve(req.Toplevel)
	if cl == nil {
		return fmt.Errorf("%w: %v", ErrNoWindow, req.Toplevel)
	}

	a.mu.Lock()
	prev := cl.geom
	geom := cl.geom
	if pos, ok := req.Position(); ok {
		geom.X, geom.Y = pos.X, pos.Y
	}
	if size, ok := req.Size(); ok && !size.IsZero() {
		geom.Width, geom.Height = size.Width, size.Height
	}
	cl.geom = geom
	firstMap := !cl.mapped
	cl.mapped = true
	state, hasState := req.State()
	if hasState {
		cl.state = state
	}
	a.mu.Unlock()

	xc := a.conn.XUtil.Conn()
	xproto.ConfigureWindow(xc, cl.win,
		xproto.ConfigWindowX|xproto.ConfigWindowY|xproto.ConfigWindowWidth|xproto.ConfigWindowHeight,
		[]uint32{uint32(geom.X), uint32(geom.Y), geom.Width, geom.Height})
	a.notifyGeometry(cl.win, geom)
	if hasState {
		if err := a.conn.SetWindowState(cl.win, stateAtoms(state)); err != nil {
			a.logger.Debug("failed to set window state", "window", cl.win, "error", err)
		}
	}
	if firstMap {
		xproto.MapWindow(xc, cl.win)
		a.conn.SetMapped(cl.win, true)
	}

	sink := a.currentSink()
	if sink == nil {
		return daemon.ErrNotRunning
	}
	id := req.Toplevel
	return sink.Post(func(e *engine.Engine) {
		if a.lookupWindow(cl.win) != cl {
			return
		}
		if err := e.ToplevelAcked(id, serial); err != nil {
			a.logger.Debug("configure not acknowledged", "window", cl.win, "serial", serial, "error", err)
			return
		}
		if err := e.ToplevelCommitted(id, commitFor(prev, geom, firstMap)); err != nil {
			a.logger.Warn("commit rejected", "window", cl.win, "serial", serial, "error", err)
		}
	})
}

func (a *Adapter) ApplyKeyboardFocus(f wm.Focus) {
	win := a.conn.Check
	var active xproto.Window
	if id, ok := f.Toplevel(); ok {
		a.mu.Lock()
		cl := a.ids[id]
		a.mu.Unlock()
		if cl != nil {
			win = cl.win
			active = cl.win
		}
	}
	xproto.SetInputFocus(a.conn.XUtil.Conn(), xproto.InputFocusPointerRoot, win, xproto.TimeCurrentTime)
	if err := a.conn.SetActiveWindow(active); err != nil {
		a.logger.Debug("failed to set active window", "error", err)
	}
}

// ApplyPointerFocus is a no-op: the X server routes pointer events to the
// window under the cursor.
func (a *Adapter) ApplyPointerFocus(f wm.Focus) {}

func (a *Adapter) RequestClose(id wm.ToplevelID) error {
	a.mu.Lock()
	cl := a.ids[id]
	a.mu.Unlock()
	if cl == nil {
		return fmt.Errorf("%w: %v", ErrNoWindow, id)
	}
	return a.conn.CloseWindow(cl.win)
}

func (a *Adapter) ForgetToplevel(id wm.ToplevelID) {
	a.logger.Debug("policy released toplevel", "toplevel", id)
}

// Toplevels lists the toplevels backed by a live window.
func (a *Adapter) Toplevels() []wm.ToplevelID {
	a.mu.Lock()
	defer a.mu.Unlock()
	ids := make([]wm.ToplevelID, 0, len(a.ids))
	for id := range a.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (a *Adapter) Close() error {
	a.conn.Close()
	return nil
}
