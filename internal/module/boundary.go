package module

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Status describes the active module instance.
type Status struct {
	Info        Info      `json:"info"`
	InstanceID  string    `json:"instance_id"`
	Builtin     bool      `json:"builtin"`
	ActivatedAt time.Time `json:"activated_at"`
	Failures    int       `json:"failures"`
	LastError   string    `json:"last_error,omitempty"`
}

type active struct {
	status Status
	inst   Instance
	srv    *Server
}

// Boundary owns the active instance and delivers notifications to it. It
// is confined to the engine's goroutine.
type Boundary struct {
	host     Host
	logger   *slog.Logger
	fallback Module

	current    *active
	generation uint64
	delivering bool

	// lastLoadError is kept across swaps so a rejected module stays visible.
	lastLoadError string
}

// NewBoundary creates a boundary with no active module. fallback, if not
// nil, is activated whenever a load fails while nothing else is active.
func NewBoundary(host Host, logger *slog.Logger, fallback Module) *Boundary {
	if logger == nil {
		logger = slog.Default()
	}
	return &Boundary{host: host, logger: logger, fallback: fallback}
}

// Generation increments on every successful activation. Callers compare it
// to decide whether live objects must be replayed.
func (b *Boundary) Generation() uint64 {
	return b.generation
}

// Status reports the active instance, if any.
func (b *Boundary) Status() (Status, bool) {
	if b.current == nil {
		return Status{}, false
	}
	return b.current.status, true
}

// LastLoadError is the most recent activation failure, if any.
func (b *Boundary) LastLoadError() string {
	return b.lastLoadError
}

// Activate negotiates with m and makes it the active instance. On any
// failure the previous instance stays active; when there is none the
// fallback is activated instead. The returned error is always one of
// wm.ErrModuleInit or wm.ErrIncompatibleABI.
func (b *Boundary) Activate(m Module) (Info, error) {
	info, err := b.activate(m, false)
	if err == nil {
		b.lastLoadError = ""
		return info, nil
	}
	b.lastLoadError = err.Error()
	b.logger.Warn("module activation failed", "error", err)

	if b.current == nil && b.fallback != nil && m != b.fallback {
		if _, ferr := b.ActivateFallback(); ferr != nil {
			b.logger.Error("fallback policy failed to start", "error", ferr)
		}
	}
	return info, err
}

// ActivateFallback makes the built-in policy active.
func (b *Boundary) ActivateFallback() (Info, error) {
	if b.fallback == nil {
		return Info{}, fmt.Errorf("%w: no fallback policy configured", wm.ErrModuleInit)
	}
	return b.activate(b.fallback, true)
}

func (b *Boundary) activate(m Module, builtin bool) (Info, error) {
	if m == nil {
		return Info{}, fmt.Errorf("%w: nil module", wm.ErrModuleInit)
	}
	if b.delivering {
		return Info{}, fmt.Errorf("%w: module swap requested from inside a notification", wm.ErrInvalidState)
	}

	info, err := moduleInfo(m)
	if err != nil {
		return Info{}, fmt.Errorf("%w: get-info: %v", wm.ErrModuleInit, err)
	}
	if err := info.Validate(); err != nil {
		return info, fmt.Errorf("%w: %v", wm.ErrModuleInit, err)
	}
	if err := CheckABI(HostABI, info.ABI); err != nil {
		return info, err
	}

	srv := newServer(b.host)
	inst, err := b.create(m, srv)
	if err != nil {
		srv.retire()
		return info, fmt.Errorf("%w: create-wm %s: %v", wm.ErrModuleInit, info.Name, err)
	}

	next := &active{
		status: Status{
			Info:        info,
			InstanceID:  uuid.NewString(),
			Builtin:     builtin,
			ActivatedAt: time.Now(),
		},
		inst: inst,
		srv:  srv,
	}
	prev := b.current
	b.current = next
	b.generation++
	if prev != nil {
		b.shutdown(prev)
	}
	b.logger.Info("module activated",
		"module", info.Name,
		"version", info.Version,
		"abi", info.ABI.String(),
		"instance", next.status.InstanceID,
		"builtin", builtin,
	)
	return info, nil
}

func moduleInfo(m Module) (info Info, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return m.Info()
}

func (b *Boundary) create(m Module, srv *Server) (inst Instance, err error) {
	b.delivering = true
	sc := srv.enter()
	defer func() {
		srv.leave(sc)
		b.delivering = false
		if r := recover(); r != nil {
			inst, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	inst, err = m.Create(srv)
	if err == nil && inst == nil {
		err = errors.New("module returned no instance")
	}
	return inst, err
}

func (b *Boundary) shutdown(a *active) {
	if leaked := a.srv.retire(); leaked > 0 {
		b.logger.Warn("reclaimed snapshots held by retired module",
			"module", a.status.Info.Name, "instance", a.status.InstanceID, "count", leaked)
	}
	if c, ok := a.inst.(Closer); ok {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("module close panic recovered", "module", a.status.Info.Name, "error", r)
				}
			}()
			if err := c.Close(); err != nil {
				b.logger.Warn("module close failed", "module", a.status.Info.Name, "error", err)
			}
		}()
	}
}

// Close retires the active instance.
func (b *Boundary) Close() {
	if b.current == nil {
		return
	}
	b.shutdown(b.current)
	b.current = nil
}

// deliver runs fn against the active instance inside a fresh call scope.
// Panics are recovered and reported as errors.
func (b *Boundary) deliver(name string, fn func(*active) error) (err error) {
	a := b.current
	if a == nil {
		return nil
	}
	if b.delivering {
		return fmt.Errorf("%w: %s delivered while another notification is in progress", wm.ErrInvalidState, name)
	}
	b.delivering = true
	sc := a.srv.enter()
	defer func() {
		a.srv.leave(sc)
		b.delivering = false
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: module panic: %v", name, r)
		}
		if err != nil {
			a.status.Failures++
			a.status.LastError = err.Error()
			b.logger.Warn("module entry point failed",
				"entry", name, "module", a.status.Info.Name, "instance", a.status.InstanceID, "error", err)
		}
	}()
	return fn(a)
}

// Delivering reports whether an entry point is running.
func (b *Boundary) Delivering() bool {
	return b.delivering
}

// NewToplevel hands the module an owned handle for id.
func (b *Boundary) NewToplevel(id wm.ToplevelID) error {
	return b.deliver("new-toplevel", func(a *active) error {
		return a.inst.NewToplevel(a.srv.ownToplevel(id))
	})
}

// ClosedToplevel is the last notification the module receives for id.
func (b *Boundary) ClosedToplevel(id wm.ToplevelID) error {
	return b.deliver("closed-toplevel", func(a *active) error {
		return a.inst.ClosedToplevel(id)
	})
}

func (b *Boundary) UpdateToplevel(id wm.ToplevelID, flags wm.UpdateFlags) error {
	return b.deliver("update-toplevel", func(a *active) error {
		return a.inst.UpdateToplevel(a.srv.borrowToplevel(id), flags)
	})
}

func (b *Boundary) AckToplevel(id wm.ToplevelID, serial uint32) error {
	return b.deliver("ack-toplevel", func(a *active) error {
		return a.inst.AckToplevel(a.srv.borrowToplevel(id), serial)
	})
}

// CommittedToplevel transfers snap to the module. Without an active module
// the snapshot is released immediately.
func (b *Boundary) CommittedToplevel(id wm.ToplevelID, snap *registry.Snapshot) error {
	if b.current == nil {
		if snap != nil {
			return snap.Release()
		}
		return nil
	}
	return b.deliver("committed-toplevel", func(a *active) error {
		if snap != nil {
			a.srv.adopt(snap)
		}
		return a.inst.CommittedToplevel(a.srv.borrowToplevel(id), snap)
	})
}

// Key asks the module whether ev reaches the focused client. Without an
// active module every key is forwarded.
func (b *Boundary) Key(ev wm.KeyEvent) (wm.KeyFilter, error) {
	verdict := wm.KeyForward
	err := b.deliver("key", func(a *active) error {
		v, err := a.inst.Key(ev)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return wm.KeyForward, err
	}
	return verdict, nil
}

func (b *Boundary) KeyModifiers(m wm.Modifiers) error {
	return b.deliver("key-modifiers", func(a *active) error {
		return a.inst.KeyModifiers(m)
	})
}

// NewOutput hands the module an owned handle for id.
func (b *Boundary) NewOutput(id wm.OutputID) error {
	return b.deliver("new-output", func(a *active) error {
		return a.inst.NewOutput(a.srv.ownOutput(id))
	})
}

func (b *Boundary) DisconnectOutput(id wm.OutputID) error {
	return b.deliver("disconnect-output", func(a *active) error {
		return a.inst.DisconnectOutput(id)
	})
}
