package registry

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Backing is the rendering backend's storage behind a snapshot. The core
// never looks at pixel contents.
type Backing interface {
	Size() wm.Size
	Scale() float32
	// Release hands the storage back to the rendering backend.
	Release()
}

// Snapshot is an owned reference to a captured surface. Whoever holds it is
// responsible for calling Release exactly once. A snapshot stays usable after
// its toplevel has been closed, until it is released.
type Snapshot struct {
	reg      *Registry
	toplevel wm.ToplevelID
	backing  Backing
	released bool
}

// NewSnapshot ties a new snapshot reference to a live toplevel.
func (r *Registry) NewSnapshot(id wm.ToplevelID, b Backing) (*Snapshot, error) {
	if b == nil {
		return nil, fmt.Errorf("%w: nil snapshot backing", wm.ErrInvalidState)
	}
	if err := r.CheckToplevel(id); err != nil {
		return nil, err
	}
	r.toplevels[id].snapshots++
	return &Snapshot{reg: r, toplevel: id, backing: b}, nil
}

// Toplevel returns the toplevel the snapshot was captured from.
func (s *Snapshot) Toplevel() wm.ToplevelID {
	return s.toplevel
}

// Size returns the snapshot's pixel size.
func (s *Snapshot) Size() (wm.Size, error) {
	if s.released {
		return wm.Size{}, fmt.Errorf("%w: released snapshot of %v", wm.ErrUnknownHandle, s.toplevel)
	}
	return s.backing.Size(), nil
}

// Scale returns the snapshot's scale factor.
func (s *Snapshot) Scale() (float32, error) {
	if s.released {
		return 0, fmt.Errorf("%w: released snapshot of %v", wm.ErrUnknownHandle, s.toplevel)
	}
	return s.backing.Scale(), nil
}

// Released reports whether Release has been called.
func (s *Snapshot) Released() bool {
	return s.released
}

// Release returns the backing storage and drops the reference. Releasing the
// last snapshot of a closed toplevel retires it.
func (s *Snapshot) Release() error {
	if s.released {
		return fmt.Errorf("%w: snapshot of %v already released", wm.ErrUnknownHandle, s.toplevel)
	}
	s.released = true
	s.backing.Release()
	s.reg.releaseSnapshot(s.toplevel)
	return nil
}

func (r *Registry) releaseSnapshot(id wm.ToplevelID) {
	e, ok := r.toplevels[id]
	if !ok {
		return
	}
	e.snapshots--
	if e.snapshots <= 0 && e.status == StatusClosing {
		r.retire(id)
	}
}
