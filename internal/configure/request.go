// Package configure holds pending configure requests and the session-wide
// serial tracker that keeps acknowledgments in submission order.
package configure

import (
	"fmt"
	"strings"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Field is an optional value. An unset field leaves the client's previous
// value in place.
type Field[T any] struct {
	value T
	set   bool
}

// Set stores v, replacing any earlier value.
func (f *Field[T]) Set(v T) {
	f.value = v
	f.set = true
}

// Get returns the stored value and whether one was set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// IsSet reports whether a value was stored.
func (f Field[T]) IsSet() bool {
	return f.set
}

// Request accumulates at most one value per field for a single toplevel.
// Writes after Freeze fail with wm.ErrInvalidState.
type Request struct {
	Toplevel wm.ToplevelID

	decorations Field[wm.DecorationMode]
	state       Field[wm.ToplevelState]
	parent      Field[wm.ToplevelID]
	size        Field[wm.Size]
	bounds      Field[wm.Size]
	position    Field[wm.Point]

	frozen bool
}

// NewRequest returns an empty request targeting id.
func NewRequest(id wm.ToplevelID) *Request {
	return &Request{Toplevel: id}
}

func (r *Request) writable() error {
	if r.frozen {
		return fmt.Errorf("%w: configure for %v already submitted", wm.ErrInvalidState, r.Toplevel)
	}
	return nil
}

// SetDecorations requests a decoration mode.
func (r *Request) SetDecorations(m wm.DecorationMode) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.decorations.Set(m)
	return nil
}

// SetState requests the full toplevel state set.
func (r *Request) SetState(s wm.ToplevelState) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.state.Set(s)
	return nil
}

// SetParent requests a new parent. Zero clears the parent.
func (r *Request) SetParent(id wm.ToplevelID) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.parent.Set(id)
	return nil
}

// SetSize requests a surface size. A zero dimension lets the client choose.
func (r *Request) SetSize(s wm.Size) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.size.Set(s)
	return nil
}

// SetBounds advertises the largest size the client should pick on its own.
func (r *Request) SetBounds(s wm.Size) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.bounds.Set(s)
	return nil
}

// SetPosition places the toplevel in the global space. It is applied by
// the compositor, not the client.
func (r *Request) SetPosition(p wm.Point) error {
	if err := r.writable(); err != nil {
		return err
	}
	r.position.Set(p)
	return nil
}

func (r *Request) Decorations() (wm.DecorationMode, bool) { return r.decorations.Get() }
func (r *Request) State() (wm.ToplevelState, bool)        { return r.state.Get() }
func (r *Request) Parent() (wm.ToplevelID, bool)          { return r.parent.Get() }
func (r *Request) Size() (wm.Size, bool)                  { return r.size.Get() }
func (r *Request) Bounds() (wm.Size, bool)                { return r.bounds.Get() }
func (r *Request) Position() (wm.Point, bool)             { return r.position.Get() }

// Empty reports whether no field was set.
func (r *Request) Empty() bool {
	return !r.decorations.IsSet() && !r.state.IsSet() && !r.parent.IsSet() &&
		!r.size.IsSet() && !r.bounds.IsSet() && !r.position.IsSet()
}

// Frozen reports whether the request has been submitted.
func (r *Request) Frozen() bool {
	return r.frozen
}

// Freeze marks the request submitted. A request can be frozen once.
func (r *Request) Freeze() error {
	if err := r.writable(); err != nil {
		return err
	}
	r.frozen = true
	return nil
}

func (r *Request) String() string {
	var parts []string
	if v, ok := r.Decorations(); ok {
		parts = append(parts, "decorations="+v.String())
	}
	if v, ok := r.State(); ok {
		parts = append(parts, "state="+v.String())
	}
	if v, ok := r.Parent(); ok {
		if v == 0 {
			parts = append(parts, "parent=none")
		} else {
			parts = append(parts, "parent="+v.String())
		}
	}
	if v, ok := r.Size(); ok {
		parts = append(parts, "size="+v.String())
	}
	if v, ok := r.Bounds(); ok {
		parts = append(parts, "bounds="+v.String())
	}
	if v, ok := r.Position(); ok {
		parts = append(parts, "position="+v.String())
	}
	return fmt.Sprintf("configure(%v){%s}", r.Toplevel, strings.Join(parts, " "))
}
