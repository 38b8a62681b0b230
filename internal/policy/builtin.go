// Package policy provides the built-in window-management policy. It is
// active whenever no loadable module is, so the session stays usable.
package policy

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/tiling"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Version of the built-in policy.
const Version = "0.1.0"

// Options configures the built-in policy.
type Options struct {
	Layout                tiling.Layout
	ServerSideDecorations bool
	Logger                *slog.Logger
}

// Builtin is a module.Module that tiles top-level windows on the first
// output and focuses the newest window. Logo with an arrow key or h/j/k/l
// moves focus between tiled windows; every other key is forwarded.
type Builtin struct {
	opts Options
}

var _ module.Module = (*Builtin)(nil)

// New returns the built-in policy.
func New(opts Options) *Builtin {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Layout.Mode == "" {
		opts.Layout = tiling.DefaultLayout(tiling.ModeGrid)
	}
	return &Builtin{opts: opts}
}

func (b *Builtin) Info() (module.Info, error) {
	return module.Info{Name: "builtin", Version: Version, ABI: module.HostABI}, nil
}

func (b *Builtin) Create(srv *module.Server) (module.Instance, error) {
	if _, err := tiling.ParseMode(string(b.opts.Layout.Mode)); err != nil {
		return nil, err
	}
	return &instance{opts: b.opts, srv: srv, logger: b.opts.Logger.With("module", "builtin")}, nil
}

type windowMode uint8

const (
	modeTiled windowMode = iota
	modeMaximized
	modeFullscreen
)

type window struct {
	t    *module.Toplevel
	mode windowMode
	// fresh windows get their decoration mode on the next configure.
	fresh bool
}

type instance struct {
	opts   Options
	srv    *module.Server
	logger *slog.Logger

	windows []*window
	outputs []*module.Output
	focused wm.ToplevelID
	mods    wm.Modifiers
	// slots holds the tiled placement from the last arrange.
	slots map[wm.ToplevelID]wm.Geometry
}

func (w *instance) find(id wm.ToplevelID) (int, *window) {
	for i, win := range w.windows {
		if win.t.ID() == id {
			return i, win
		}
	}
	return -1, nil
}

func (w *instance) NewToplevel(t *module.Toplevel) error {
	w.windows = append(w.windows, &window{t: t, fresh: true})
	if err := w.focus(t); err != nil {
		return err
	}
	return w.arrange()
}

func (w *instance) ClosedToplevel(id wm.ToplevelID) error {
	i, win := w.find(id)
	if i < 0 {
		return nil
	}
	w.windows = append(w.windows[:i], w.windows[i+1:]...)
	if err := win.t.Release(); err != nil {
		w.logger.Debug("release closed toplevel", "toplevel", id, "error", err)
	}
	if w.focused == id {
		w.focused = 0
		if n := len(w.windows); n > 0 {
			if err := w.focus(w.windows[n-1].t); err != nil {
				return err
			}
		}
	}
	return w.arrange()
}

func (w *instance) UpdateToplevel(t *module.Toplevel, flags wm.UpdateFlags) error {
	_, win := w.find(t.ID())
	if win == nil {
		return nil
	}
	changed := flags&wm.UpdateParent != 0
	switch {
	case flags&wm.UpdateRequestSetFullscreen != 0:
		win.mode, changed = modeFullscreen, true
	case flags&wm.UpdateRequestSetMaximized != 0:
		win.mode, changed = modeMaximized, true
	case flags&(wm.UpdateRequestUnsetFullscreen|wm.UpdateRequestUnsetMaximized) != 0:
		win.mode, changed = modeTiled, true
	}
	if !changed {
		return nil
	}
	return w.arrange()
}

func (w *instance) AckToplevel(*module.Toplevel, uint32) error { return nil }

// CommittedToplevel releases snapshots right away; the built-in policy does
// not draw previews.
func (w *instance) CommittedToplevel(_ *module.Toplevel, snap *registry.Snapshot) error {
	if snap != nil {
		return snap.Release()
	}
	return nil
}

// Key drops navigation chords in both directions so the client never sees
// a lone release.
func (w *instance) Key(ev wm.KeyEvent) (wm.KeyFilter, error) {
	dir, ok := directionForKeysym(ev.Keysym)
	if !ok || w.mods&wm.ModLogo == 0 {
		return wm.KeyForward, nil
	}
	if ev.Status == wm.KeyPressed {
		if err := w.move(dir); err != nil {
			return wm.KeyDrop, err
		}
	}
	return wm.KeyDrop, nil
}

func (w *instance) KeyModifiers(m wm.Modifiers) error {
	w.mods = m
	return nil
}

// move focuses the tiled neighbour of the focused window.
func (w *instance) move(dir Direction) error {
	var (
		wins    []*window
		rects   []wm.Geometry
		current = -1
	)
	for _, win := range w.windows {
		g, ok := w.slots[win.t.ID()]
		if !ok {
			continue
		}
		if win.t.ID() == w.focused {
			current = len(wins)
		}
		wins = append(wins, win)
		rects = append(rects, g)
	}
	if current < 0 {
		if len(wins) == 0 {
			return nil
		}
		current = 0
	} else {
		current = Neighbor(current, dir, rects)
	}

	target := wins[current].t
	if target.ID() == w.focused {
		return nil
	}
	if err := w.focus(target); err != nil {
		return err
	}
	return w.arrange()
}

func (w *instance) NewOutput(o *module.Output) error {
	w.outputs = append(w.outputs, o)
	return w.arrange()
}

func (w *instance) DisconnectOutput(id wm.OutputID) error {
	for i, o := range w.outputs {
		if o.ID() == id {
			w.outputs = append(w.outputs[:i], w.outputs[i+1:]...)
			if err := o.Release(); err != nil {
				w.logger.Debug("release disconnected output", "output", id, "error", err)
			}
			break
		}
	}
	return w.arrange()
}

func (w *instance) focus(t *module.Toplevel) error {
	if err := w.srv.SetKeyboardFocus(t); err != nil {
		return err
	}
	w.focused = t.ID()
	return nil
}

// area is the geometry of the first connected output.
func (w *instance) area() (wm.Geometry, bool) {
	for _, o := range w.outputs {
		g, err := o.Geometry()
		if err == nil {
			return g, true
		}
	}
	return wm.Geometry{}, false
}

// arrange submits one configure per window reflecting its slot, state and
// decorations.
func (w *instance) arrange() error {
	area, hasArea := w.area()

	var tiled []*window
	for _, win := range w.windows {
		if win.mode != modeTiled {
			continue
		}
		if parent, err := win.t.Parent(); err == nil && parent != nil {
			continue
		}
		tiled = append(tiled, win)
	}

	slots := make(map[wm.ToplevelID]wm.Geometry)
	if hasArea && len(tiled) > 0 {
		geoms, err := tiling.Arrange(len(tiled), area, w.opts.Layout)
		if err != nil {
			w.logger.Warn("layout failed", "layout", string(w.opts.Layout.Mode), "windows", len(tiled), "error", err)
		}
		for i, g := range geoms {
			slots[tiled[i].t.ID()] = g
		}
	}
	w.slots = slots

	var errs []error
	for _, win := range w.windows {
		if err := w.configure(win, slots, area, hasArea); err != nil {
			errs = append(errs, fmt.Errorf("configure %v: %w", win.t.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (w *instance) configure(win *window, slots map[wm.ToplevelID]wm.Geometry, area wm.Geometry, hasArea bool) error {
	cfg, err := w.srv.NewConfigure(win.t)
	if err != nil {
		return err
	}
	features, err := win.t.Features()
	if err != nil {
		return err
	}

	var state wm.ToplevelState
	if win.t.ID() == w.focused {
		state |= wm.StateActivated
	}

	var target *wm.Geometry
	switch win.mode {
	case modeFullscreen:
		state |= wm.StateFullscreen
	case modeMaximized:
		state |= wm.StateMaximized
	}
	if win.mode != modeTiled && hasArea {
		target = &area
	} else if g, ok := slots[win.t.ID()]; ok {
		target = &g
		if w.opts.Layout.Mode != tiling.ModeStack {
			state |= wm.StateTiled
		}
	}

	if err := cfg.SetState(features.MaskState(state)); err != nil {
		return err
	}
	if target != nil {
		if err := cfg.SetPosition(wm.Point{X: target.X, Y: target.Y}); err != nil {
			return err
		}
		if err := cfg.SetSize(target.Size()); err != nil {
			return err
		}
	}
	if hasArea {
		if err := cfg.SetBounds(area.Size()); err != nil {
			return err
		}
	}
	if win.fresh {
		mode := wm.DecorationClientSide
		if w.opts.ServerSideDecorations {
			mode = features.MaskDecorations(wm.DecorationServerSide)
		}
		if err := cfg.SetDecorations(mode); err != nil {
			return err
		}
	}

	if _, err := cfg.Submit(); err != nil {
		return err
	}
	win.fresh = false
	return nil
}
