package engine

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/wm"
)

// host is the engine as seen by the module boundary. Its methods only run
// inside module entry points, on the engine's goroutine.
type host struct {
	e *Engine
}

var _ module.Host = (*host)(nil)

func (h *host) SetKeyboardFocus(f wm.Focus) error {
	changed, err := h.e.router.SetKeyboardFocus(f)
	if changed {
		h.e.metrics.focusChanged("keyboard")
		h.e.logger.Debug("keyboard focus", "target", f.String())
	}
	return err
}

func (h *host) SetPointerFocus(f wm.Focus) error {
	changed, err := h.e.router.SetPointerFocus(f)
	if changed {
		h.e.metrics.focusChanged("pointer")
	}
	return err
}

func (h *host) KeyboardFocus() wm.Focus {
	return h.e.router.KeyboardFocus()
}

func (h *host) ToplevelInfo(id wm.ToplevelID) (module.ToplevelInfo, error) {
	t, err := h.e.live(id)
	if err != nil {
		return module.ToplevelInfo{}, err
	}
	return t.info(), nil
}

func (h *host) OutputInfo(id wm.OutputID) (module.OutputInfo, error) {
	if err := h.e.registry.CheckOutput(id); err != nil {
		return module.OutputInfo{}, err
	}
	o, ok := h.e.outputs[id]
	if !ok {
		return module.OutputInfo{}, fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
	}
	return outputInfo(o), nil
}

func outputInfo(o *output) module.OutputInfo {
	return module.OutputInfo{
		ID:          o.id,
		Name:        o.source.Name(),
		Geometry:    o.source.Geometry(),
		RefreshRate: o.source.RefreshRate(),
	}
}

func (h *host) Toplevels() []wm.ToplevelID {
	return h.e.registry.LiveToplevels()
}

func (h *host) Outputs() []wm.OutputID {
	return h.e.registry.LiveOutputs()
}

// SubmitConfigure issues a serial and forwards the configure to the
// client. If the protocol layer cannot send it the serial is withdrawn and
// the error returned.
func (h *host) SubmitConfigure(req *configure.Request) (uint32, error) {
	e := h.e
	if _, err := e.live(req.Toplevel); err != nil {
		return 0, err
	}
	if parent, ok := req.Parent(); ok && parent != 0 {
		if err := e.checkParent(req.Toplevel, parent); err != nil {
			return 0, err
		}
	}

	serial, err := e.configures.Issue(req)
	if err != nil {
		return 0, err
	}
	if err := e.backend.SendConfigure(serial, req); err != nil {
		if werr := e.configures.Withdraw(serial); werr != nil {
			e.logger.Error("failed to withdraw unsent configure", "serial", serial, "error", werr)
		}
		return 0, fmt.Errorf("send configure %d to %v: %w", serial, req.Toplevel, err)
	}
	e.metrics.configureSubmitted()
	e.logger.Debug("configure submitted", "toplevel", req.Toplevel, "serial", serial, "request", req.String())
	return serial, nil
}

func (h *host) RequestClose(id wm.ToplevelID) error {
	if _, err := h.e.live(id); err != nil {
		return err
	}
	return h.e.backend.RequestClose(id)
}

func (h *host) ForgetToplevel(id wm.ToplevelID) {
	h.e.logger.Debug("module released toplevel", "toplevel", id)
	h.e.backend.ForgetToplevel(id)
}
