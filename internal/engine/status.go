package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// ToplevelStatus is a toplevel as reported to inspection tools.
type ToplevelStatus struct {
	module.ToplevelInfo
	Phase       string   `json:"phase"`
	Outstanding []uint32 `json:"outstanding,omitempty"`
	Snapshots   int      `json:"snapshots"`
}

// Status summarizes the engine for inspection tools.
type Status struct {
	Toplevels     int            `json:"toplevels"`
	Closing       int            `json:"closing"`
	Outputs       int            `json:"outputs"`
	LastSerial    uint32         `json:"last_serial"`
	PendingAcks   int            `json:"pending_acks"`
	KeyboardFocus string         `json:"keyboard_focus"`
	PointerFocus  string         `json:"pointer_focus"`
	Modifiers     []string       `json:"modifiers"`
	Module        *module.Status `json:"module,omitempty"`
	LastLoadError string         `json:"last_load_error,omitempty"`
	Uptime        time.Duration  `json:"uptime"`
}

// Status returns a summary of the engine's state.
func (e *Engine) Status() Status {
	st := Status{
		Toplevels:     len(e.registry.LiveToplevels()),
		Closing:       len(e.registry.ClosingToplevels()),
		Outputs:       len(e.outputs),
		LastSerial:    e.configures.LastSerial(),
		PendingAcks:   e.configures.Len(),
		KeyboardFocus: e.router.KeyboardFocus().String(),
		PointerFocus:  e.router.PointerFocus().String(),
		Modifiers:     e.router.Modifiers().Names(),
		LastLoadError: e.boundary.LastLoadError(),
		Uptime:        time.Since(e.started),
	}
	if ms, ok := e.boundary.Status(); ok {
		st.Module = &ms
	}
	return st
}

// Toplevels lists live and closing toplevels in id order.
func (e *Engine) Toplevels() []ToplevelStatus {
	ids := append(e.registry.LiveToplevels(), e.registry.ClosingToplevels()...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	out := make([]ToplevelStatus, 0, len(ids))
	for _, id := range ids {
		t, ok := e.toplevels[id]
		if !ok {
			continue
		}
		outstanding := e.configures.Outstanding(id)
		out = append(out, ToplevelStatus{
			ToplevelInfo: t.info(),
			Phase:        t.phase(len(outstanding)).String(),
			Outstanding:  outstanding,
			Snapshots:    e.registry.Snapshots(id),
		})
	}
	return out
}

// Outputs lists connected outputs in id order.
func (e *Engine) Outputs() []module.OutputInfo {
	ids := e.registry.LiveOutputs()
	out := make([]module.OutputInfo, 0, len(ids))
	for _, id := range ids {
		if o, ok := e.outputs[id]; ok {
			out = append(out, outputInfo(o))
		}
	}
	return out
}

// Phase reports the lifecycle phase of id, including retired ids.
func (e *Engine) Phase(id wm.ToplevelID) (Phase, error) {
	if t, ok := e.toplevels[id]; ok {
		return t.phase(len(e.configures.Outstanding(id))), nil
	}
	if e.registry.Status(id) == registry.StatusRetired {
		return PhaseRetired, nil
	}
	return 0, fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
}

// LiveToplevels lists toplevels that have not been closed.
func (e *Engine) LiveToplevels() []wm.ToplevelID {
	return e.registry.LiveToplevels()
}
