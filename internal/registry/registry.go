// Package registry allocates and tracks the identifiers of toplevels and
// outputs. It is the single source of truth for whether an identifier still
// refers to a live object.
package registry

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Status is the ownership state of an identifier.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusLive
	// StatusClosing means the object was invalidated but snapshots tied to
	// it are still held.
	StatusClosing
	StatusRetired
)

func (s Status) String() string {
	switch s {
	case StatusLive:
		return "live"
	case StatusClosing:
		return "closing"
	case StatusRetired:
		return "retired"
	default:
		return "unknown"
	}
}

type toplevelEntry struct {
	status    Status
	snapshots int
}

// ErrExhausted is returned once every toplevel identifier has been used.
var ErrExhausted = errors.New("registry: toplevel identifiers exhausted")

// Registry is not safe for concurrent use; it is owned by the engine's
// event-loop goroutine.
type Registry struct {
	lastToplevel wm.ToplevelID
	lastOutput   wm.OutputID

	toplevels map[wm.ToplevelID]*toplevelEntry
	outputs   map[wm.OutputID]struct{}

	onRetire func(wm.ToplevelID)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		toplevels: make(map[wm.ToplevelID]*toplevelEntry),
		outputs:   make(map[wm.OutputID]struct{}),
	}
}

// OnRetire installs a hook that runs when a toplevel reaches StatusRetired.
func (r *Registry) OnRetire(fn func(wm.ToplevelID)) {
	r.onRetire = fn
}

// AllocToplevel returns a fresh toplevel identifier. Identifiers increase
// monotonically and are never handed out twice in a session.
func (r *Registry) AllocToplevel() (wm.ToplevelID, error) {
	if r.lastToplevel == math.MaxUint32 {
		return 0, ErrExhausted
	}
	r.lastToplevel++
	r.toplevels[r.lastToplevel] = &toplevelEntry{status: StatusLive}
	return r.lastToplevel, nil
}

// AllocOutput returns a fresh output identifier.
func (r *Registry) AllocOutput() wm.OutputID {
	r.lastOutput++
	r.outputs[r.lastOutput] = struct{}{}
	return r.lastOutput
}

// CheckToplevel fails with wm.ErrUnknownHandle unless id is live.
func (r *Registry) CheckToplevel(id wm.ToplevelID) error {
	if e, ok := r.toplevels[id]; ok && e.status == StatusLive {
		return nil
	}
	return fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
}

// CheckOutput fails with wm.ErrUnknownHandle unless id is connected.
func (r *Registry) CheckOutput(id wm.OutputID) error {
	if _, ok := r.outputs[id]; ok {
		return nil
	}
	return fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
}

// InvalidateToplevel marks id invalid. It succeeds exactly once per
// identifier. The toplevel retires immediately unless snapshots are held.
func (r *Registry) InvalidateToplevel(id wm.ToplevelID) error {
	e, ok := r.toplevels[id]
	if !ok || e.status != StatusLive {
		return fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
	}
	e.status = StatusClosing
	if e.snapshots == 0 {
		r.retire(id)
	}
	return nil
}

// InvalidateOutput marks id disconnected. Outputs carry no snapshots, so the
// identifier is retired immediately.
func (r *Registry) InvalidateOutput(id wm.OutputID) error {
	if _, ok := r.outputs[id]; !ok {
		return fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
	}
	delete(r.outputs, id)
	return nil
}

// Status reports the ownership state of a toplevel identifier.
func (r *Registry) Status(id wm.ToplevelID) Status {
	if e, ok := r.toplevels[id]; ok {
		return e.status
	}
	if id != 0 && id <= r.lastToplevel {
		return StatusRetired
	}
	return StatusUnknown
}

// Snapshots reports how many snapshot references are held for id.
func (r *Registry) Snapshots(id wm.ToplevelID) int {
	if e, ok := r.toplevels[id]; ok {
		return e.snapshots
	}
	return 0
}

// LiveToplevels returns the live toplevel identifiers in allocation order.
func (r *Registry) LiveToplevels() []wm.ToplevelID {
	ids := make([]wm.ToplevelID, 0, len(r.toplevels))
	for id, e := range r.toplevels {
		if e.status == StatusLive {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ClosingToplevels returns invalidated toplevels still pinned by snapshots.
func (r *Registry) ClosingToplevels() []wm.ToplevelID {
	var ids []wm.ToplevelID
	for id, e := range r.toplevels {
		if e.status == StatusClosing {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// LiveOutputs returns the connected output identifiers in allocation order.
func (r *Registry) LiveOutputs() []wm.OutputID {
	ids := make([]wm.OutputID, 0, len(r.outputs))
	for id := range r.outputs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) retire(id wm.ToplevelID) {
	delete(r.toplevels, id)
	if r.onRetire != nil {
		r.onRetire(id)
	}
}
