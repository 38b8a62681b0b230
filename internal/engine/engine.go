// Package engine is the lifecycle orchestrator. It is the only component
// the protocol layer talks to: every inbound event runs one state
// transition, notifies the policy module and returns before the next
// event is processed.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/focus"
	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/platform"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// OutputSource is the protocol layer's live view of an output.
type OutputSource interface {
	Name() string
	Geometry() wm.Geometry
	// RefreshRate is in millihertz.
	RefreshRate() uint32
}

type output struct {
	id        wm.OutputID
	source    OutputSource
	connected time.Time
}

// Config configures an Engine.
type Config struct {
	Logger  *slog.Logger
	Backend platform.Backend
	Metrics *Metrics
	// Fallback is the built-in policy used when no module can be loaded.
	Fallback module.Module
}

// Engine must only be used from a single goroutine.
type Engine struct {
	logger  *slog.Logger
	backend platform.Backend
	metrics *Metrics

	registry   *registry.Registry
	configures *configure.Tracker
	router     *focus.Router
	boundary   *module.Boundary

	toplevels map[wm.ToplevelID]*toplevel
	outputs   map[wm.OutputID]*output
	// held keeps commits that arrived while the toplevel's own ack was
	// still waiting on an older serial of another toplevel.
	held map[wm.ToplevelID][]heldCommit

	busy    bool
	started time.Time
}

// New creates an engine with no module loaded.
func New(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, errors.New("engine: backend is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{
		logger:     logger,
		backend:    cfg.Backend,
		metrics:    cfg.Metrics,
		registry:   registry.New(),
		configures: configure.NewTracker(),
		toplevels:  make(map[wm.ToplevelID]*toplevel),
		outputs:    make(map[wm.OutputID]*output),
		held:       make(map[wm.ToplevelID][]heldCommit),
		started:    time.Now(),
	}
	e.registry.OnRetire(e.retire)
	e.router = focus.NewRouter(cfg.Backend, e.registry.CheckToplevel)
	e.boundary = module.NewBoundary(&host{e: e}, logger, cfg.Fallback)
	return e, nil
}

// enter guards against an inbound event arriving while another is still
// being processed, which would break the one-notification-at-a-time rule.
func (e *Engine) enter(event string) (func(), error) {
	if e.busy {
		err := fmt.Errorf("%w: %s while another event is being processed", wm.ErrInvalidState, event)
		e.metrics.reject(event, err)
		return nil, err
	}
	e.busy = true
	return func() { e.busy = false }, nil
}

func (e *Engine) reject(event string, err error) error {
	e.metrics.reject(event, err)
	e.logger.Debug("event rejected", "event", event, "error", err)
	return err
}

// call times a module entry point. Module failures are contained here:
// they are logged by the boundary and counted, never returned to the
// protocol layer.
func (e *Engine) call(entry string, fn func() error) {
	start := time.Now()
	err := fn()
	e.metrics.moduleCall(entry, time.Since(start), err)
}

func (e *Engine) updateCounts() {
	e.metrics.setCounts(len(e.registry.LiveToplevels()), len(e.outputs))
}

// LoadModule activates m. When activation changes the running instance,
// every live output and toplevel is replayed to it before the call
// returns. On failure the previous instance keeps running.
func (e *Engine) LoadModule(m module.Module) (module.Info, error) {
	leave, err := e.enter("load-module")
	if err != nil {
		return module.Info{}, err
	}
	defer leave()

	gen := e.boundary.Generation()
	info, err := e.boundary.Activate(m)
	e.metrics.moduleLoad(err)
	if e.boundary.Generation() != gen {
		e.replay()
	}
	return info, err
}

// LoadFallback activates the built-in policy.
func (e *Engine) LoadFallback() (module.Info, error) {
	leave, err := e.enter("load-fallback")
	if err != nil {
		return module.Info{}, err
	}
	defer leave()

	gen := e.boundary.Generation()
	info, err := e.boundary.ActivateFallback()
	e.metrics.moduleLoad(err)
	if e.boundary.Generation() != gen {
		e.replay()
	}
	return info, err
}

func (e *Engine) replay() {
	outputs := e.registry.LiveOutputs()
	toplevels := e.registry.LiveToplevels()
	for _, id := range outputs {
		e.call("new-output", func() error { return e.boundary.NewOutput(id) })
	}
	for _, id := range toplevels {
		e.call("new-toplevel", func() error { return e.boundary.NewToplevel(id) })
	}
	e.logger.Info("replayed live objects to module", "outputs", len(outputs), "toplevels", len(toplevels))
}

// ToplevelCreated registers a new, unmapped toplevel with the given
// capabilities and hands it to the module.
func (e *Engine) ToplevelCreated(features wm.Features) (wm.ToplevelID, error) {
	leave, err := e.enter("toplevel-created")
	if err != nil {
		return 0, err
	}
	defer leave()

	id, err := e.registry.AllocToplevel()
	if err != nil {
		return 0, e.reject("toplevel-created", err)
	}
	e.toplevels[id] = &toplevel{id: id, features: features, created: time.Now()}
	e.updateCounts()
	e.logger.Debug("toplevel created", "toplevel", id, "features", features.String())

	e.call("new-toplevel", func() error { return e.boundary.NewToplevel(id) })
	return id, nil
}

// ToplevelUpdated stores changed client-side fields and tells the module
// which ones changed. Nothing is delivered when nothing changed.
func (e *Engine) ToplevelUpdated(id wm.ToplevelID, u Update) error {
	leave, err := e.enter("toplevel-updated")
	if err != nil {
		return err
	}
	defer leave()

	t, err := e.live(id)
	if err != nil {
		return e.reject("toplevel-updated", err)
	}
	if u.Parent != nil && *u.Parent != 0 {
		if err := e.checkParent(id, *u.Parent); err != nil {
			return e.reject("toplevel-updated", err)
		}
	}

	flags := t.apply(u)
	if flags == 0 {
		return nil
	}
	e.call("update-toplevel", func() error { return e.boundary.UpdateToplevel(id, flags) })
	return nil
}

// ToplevelAcked records that the client applied serial. Acknowledgments
// are delivered to the module strictly in submission order, so an early
// ack may be held until older serials are acknowledged.
func (e *Engine) ToplevelAcked(id wm.ToplevelID, serial uint32) error {
	leave, err := e.enter("toplevel-ack")
	if err != nil {
		return err
	}
	defer leave()

	if _, err := e.live(id); err != nil {
		return e.reject("toplevel-ack", err)
	}
	acks, err := e.configures.Ack(id, serial)
	if err != nil {
		return e.reject("toplevel-ack", err)
	}
	e.deliverAcks(acks)
	return nil
}

func (e *Engine) deliverAcks(acks []configure.Ack) {
	for _, ack := range acks {
		t, ok := e.toplevels[ack.Toplevel]
		if !ok || t.closing {
			continue
		}
		e.applyAcked(t, ack.Request)
		e.metrics.ackDelivered()
		e.call("ack-toplevel", func() error { return e.boundary.AckToplevel(ack.Toplevel, ack.Serial) })
		e.releaseHeld(t, ack.Serial)
	}
}

type heldCommit struct {
	// after is the serial that must reach the module first.
	after  uint32
	commit Commit
	snap   *registry.Snapshot
}

// releaseHeld delivers the commits of t that were waiting for serial.
func (e *Engine) releaseHeld(t *toplevel, serial uint32) {
	queue := e.held[t.id]
	n := 0
	for _, h := range queue {
		if h.after > serial {
			break
		}
		e.commit(t, h.commit, h.snap)
		n++
	}
	if n == len(queue) {
		delete(e.held, t.id)
		return
	}
	e.held[t.id] = queue[n:]
}

// dropHeld releases the snapshots of commits that will never be delivered.
func (e *Engine) dropHeld(id wm.ToplevelID) {
	queue := e.held[id]
	delete(e.held, id)
	for _, h := range queue {
		if h.snap == nil {
			continue
		}
		if err := h.snap.Release(); err != nil {
			e.logger.Debug("release held snapshot", "toplevel", id, "error", err)
		}
	}
}

// applyAcked makes the acknowledged configure's values current. State and
// decorations are masked by the toplevel's features.
func (e *Engine) applyAcked(t *toplevel, req *configure.Request) {
	t.acked = true
	if v, ok := req.State(); ok {
		t.state = t.features.MaskState(v)
	}
	if v, ok := req.Decorations(); ok {
		t.decorations = t.features.MaskDecorations(v)
	}
	if v, ok := req.Parent(); ok {
		if v == 0 || e.registry.CheckToplevel(v) == nil {
			t.parent = v
		}
	}
	if v, ok := req.Size(); ok {
		sz := v
		t.ackedSize = &sz
	}
	if v, ok := req.Position(); ok {
		p := v
		t.ackedPosition = &p
	}
}

// ToplevelCommitted makes the client's latest content authoritative. A
// commit is only valid after at least one configure was acknowledged.
func (e *Engine) ToplevelCommitted(id wm.ToplevelID, c Commit) error {
	leave, err := e.enter("toplevel-committed")
	if err != nil {
		return err
	}
	defer leave()

	t, err := e.live(id)
	if err != nil {
		return e.reject("toplevel-committed", err)
	}
	serial, waiting := e.configures.Held(id)
	if !t.acked && !waiting {
		return e.reject("toplevel-committed",
			fmt.Errorf("%w: %v committed before acknowledging a configure", wm.ErrInvalidState, id))
	}

	var snap *registry.Snapshot
	if c.Snapshot != nil {
		snap, err = e.registry.NewSnapshot(id, c.Snapshot)
		if err != nil {
			return e.reject("toplevel-committed", err)
		}
	}
	if waiting {
		e.held[id] = append(e.held[id], heldCommit{after: serial, commit: c, snap: snap})
		e.logger.Debug("commit held", "toplevel", id, "serial", serial)
		return nil
	}
	e.commit(t, c, snap)
	return nil
}

func (e *Engine) commit(t *toplevel, c Commit, snap *registry.Snapshot) {
	var size *wm.Size
	if snap != nil {
		sz, _ := snap.Size()
		size = &sz
	}
	t.geometry = t.commitGeometry(c, size)
	t.ackedSize = nil
	t.ackedPosition = nil
	t.committed = true
	t.mapped = !c.Unmap

	id := t.id
	e.call("committed-toplevel", func() error { return e.boundary.CommittedToplevel(id, snap) })
}

// ToplevelClosed invalidates id in one step: registry, pending configures
// and focus are updated before the module hears about it, and the close
// is the last notification the module receives for id.
func (e *Engine) ToplevelClosed(id wm.ToplevelID) error {
	leave, err := e.enter("toplevel-closed")
	if err != nil {
		return err
	}
	defer leave()

	t, ok := e.toplevels[id]
	if err := e.registry.InvalidateToplevel(id); err != nil {
		return e.reject("toplevel-closed", err)
	}
	if ok {
		t.closing = true
		t.mapped = false
	}
	released := e.configures.Cancel(id)
	e.router.Forget(id)
	e.updateCounts()
	e.logger.Debug("toplevel closed", "toplevel", id)

	e.call("closed-toplevel", func() error { return e.boundary.ClosedToplevel(id) })
	e.dropHeld(id)

	for _, child := range e.registry.LiveToplevels() {
		if ct := e.toplevels[child]; ct != nil && ct.parent == id {
			ct.parent = 0
			e.call("update-toplevel", func() error { return e.boundary.UpdateToplevel(child, wm.UpdateParent) })
		}
	}
	e.deliverAcks(released)
	return nil
}

func (e *Engine) retire(id wm.ToplevelID) {
	delete(e.toplevels, id)
	e.logger.Debug("toplevel retired", "toplevel", id)
}

// OutputConnected registers an output and hands it to the module.
func (e *Engine) OutputConnected(src OutputSource) (wm.OutputID, error) {
	leave, err := e.enter("output-connected")
	if err != nil {
		return 0, err
	}
	defer leave()

	if src == nil {
		return 0, e.reject("output-connected", fmt.Errorf("%w: nil output source", wm.ErrInvalidState))
	}
	id := e.registry.AllocOutput()
	e.outputs[id] = &output{id: id, source: src, connected: time.Now()}
	e.updateCounts()
	e.logger.Info("output connected", "output", id, "name", src.Name(), "geometry", src.Geometry().String())

	e.call("new-output", func() error { return e.boundary.NewOutput(id) })
	return id, nil
}

// OutputDisconnected invalidates id immediately; outputs have no grace
// period.
func (e *Engine) OutputDisconnected(id wm.OutputID) error {
	leave, err := e.enter("output-disconnected")
	if err != nil {
		return err
	}
	defer leave()

	if err := e.registry.InvalidateOutput(id); err != nil {
		return e.reject("output-disconnected", err)
	}
	delete(e.outputs, id)
	e.updateCounts()
	e.logger.Info("output disconnected", "output", id)

	e.call("disconnect-output", func() error { return e.boundary.DisconnectOutput(id) })
	return nil
}

// Key asks the module whether ev should reach the focused client and
// returns the verdict synchronously. Module failures forward the key.
func (e *Engine) Key(ev wm.KeyEvent) (wm.KeyFilter, error) {
	leave, err := e.enter("key")
	if err != nil {
		return wm.KeyForward, err
	}
	defer leave()

	var verdict wm.KeyFilter
	e.call("key", func() error {
		var ferr error
		verdict, ferr = e.router.FilterKey(ev, e.boundary.Key)
		return ferr
	})
	e.metrics.key(verdict)
	return verdict, nil
}

// ModifiersChanged delivers a new modifier mask. Modifier changes are
// never filtered.
func (e *Engine) ModifiersChanged(m wm.Modifiers) error {
	leave, err := e.enter("modifiers")
	if err != nil {
		return err
	}
	defer leave()

	if !e.router.SetModifiers(m) {
		return nil
	}
	e.call("key-modifiers", func() error { return e.boundary.KeyModifiers(m) })
	return nil
}

// Close retires the active module.
func (e *Engine) Close() {
	e.boundary.Close()
}

func (e *Engine) live(id wm.ToplevelID) (*toplevel, error) {
	if err := e.registry.CheckToplevel(id); err != nil {
		return nil, err
	}
	t, ok := e.toplevels[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
	}
	return t, nil
}

// checkParent rejects unknown parents and parent chains that would loop
// back to child.
func (e *Engine) checkParent(child, parent wm.ToplevelID) error {
	seen := map[wm.ToplevelID]bool{child: true}
	for cur := parent; cur != 0; {
		if seen[cur] {
			return fmt.Errorf("%w: parent %v of %v would create a cycle", wm.ErrInvalidState, parent, child)
		}
		seen[cur] = true
		t, err := e.live(cur)
		if err != nil {
			return err
		}
		cur = t.parent
	}
	return nil
}
