package module

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Ownership tags a handle as owned by the module or borrowed for one call.
type Ownership uint8

const (
	// Owned handles stay valid until released or invalidated.
	Owned Ownership = iota
	// Borrowed handles are valid only during the entry point that
	// produced them.
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

type handle struct {
	srv       *Server
	ownership Ownership
	scope     *scope
	released  bool
}

func (h *handle) check(what fmt.Stringer) error {
	if err := h.srv.active(); err != nil {
		return err
	}
	if h.ownership == Borrowed && h.scope != h.srv.current {
		return fmt.Errorf("%w: borrowed %v used after its call returned", wm.ErrInvalidState, what)
	}
	if h.released {
		return fmt.Errorf("%w: %v was released", wm.ErrUnknownHandle, what)
	}
	return nil
}

func (h *handle) release(what fmt.Stringer) error {
	if h.ownership == Borrowed {
		return fmt.Errorf("%w: cannot release borrowed %v", wm.ErrInvalidState, what)
	}
	if err := h.srv.active(); err != nil {
		return err
	}
	if h.released {
		return fmt.Errorf("%w: %v already released", wm.ErrUnknownHandle, what)
	}
	h.released = true
	return nil
}

// Toplevel is a module's reference to a client window. Accessors re-read
// the host's current values on every call.
type Toplevel struct {
	handle
	id wm.ToplevelID
}

func (t *Toplevel) usable() error {
	return t.check(t.id)
}

func (t *Toplevel) info() (ToplevelInfo, error) {
	if err := t.usable(); err != nil {
		return ToplevelInfo{}, err
	}
	return t.srv.host.ToplevelInfo(t.id)
}

func (t *Toplevel) ID() wm.ToplevelID    { return t.id }
func (t *Toplevel) Ownership() Ownership { return t.ownership }

// Borrow returns a borrowed handle to the same toplevel for the current call.
func (t *Toplevel) Borrow() (*Toplevel, error) {
	if _, err := t.info(); err != nil {
		return nil, err
	}
	return t.srv.borrowToplevel(t.id), nil
}

// Features are fixed at creation.
func (t *Toplevel) Features() (wm.Features, error) {
	i, err := t.info()
	return i.Features, err
}

// AppID returns the application id, empty when the client never set one.
func (t *Toplevel) AppID() (string, error) {
	i, err := t.info()
	return i.AppID, err
}

func (t *Toplevel) Title() (string, error) {
	i, err := t.info()
	return i.Title, err
}

// MinSize returns the client's minimum size; zero dimensions are unconstrained.
func (t *Toplevel) MinSize() (wm.Size, error) {
	i, err := t.info()
	return i.MinSize, err
}

func (t *Toplevel) MaxSize() (wm.Size, error) {
	i, err := t.info()
	return i.MaxSize, err
}

// Geometry reports ok=false until the first commit.
func (t *Toplevel) Geometry() (geom wm.Geometry, ok bool, err error) {
	i, err := t.info()
	if err != nil || i.Geometry == nil {
		return wm.Geometry{}, false, err
	}
	return *i.Geometry, true, nil
}

// Parent returns a borrowed handle to the parent, or nil.
func (t *Toplevel) Parent() (*Toplevel, error) {
	i, err := t.info()
	if err != nil || i.Parent == 0 {
		return nil, err
	}
	return t.srv.borrowToplevel(i.Parent), nil
}

func (t *Toplevel) State() (wm.ToplevelState, error) {
	i, err := t.info()
	return i.State, err
}

func (t *Toplevel) Decorations() (wm.DecorationMode, error) {
	i, err := t.info()
	return i.Decorations, err
}

// ResizeEdge is wm.EdgeNone unless an interactive resize is in progress.
func (t *Toplevel) ResizeEdge() (wm.ResizeEdge, error) {
	i, err := t.info()
	return i.ResizeEdge, err
}

func (t *Toplevel) Mapped() (bool, error) {
	i, err := t.info()
	return i.Mapped, err
}

// RequestClose asks the client to close. The toplevel stays live until the
// close notification arrives.
func (t *Toplevel) RequestClose() error {
	if err := t.usable(); err != nil {
		return err
	}
	return t.srv.host.RequestClose(t.id)
}

// Release gives up an owned handle. The host is told the module no longer
// tracks the toplevel.
func (t *Toplevel) Release() error {
	if err := t.release(t.id); err != nil {
		return err
	}
	t.srv.host.ForgetToplevel(t.id)
	return nil
}

// Output is a module's reference to a display output.
type Output struct {
	handle
	id wm.OutputID
}

func (o *Output) info() (OutputInfo, error) {
	if err := o.check(o.id); err != nil {
		return OutputInfo{}, err
	}
	return o.srv.host.OutputInfo(o.id)
}

func (o *Output) ID() wm.OutputID      { return o.id }
func (o *Output) Ownership() Ownership { return o.ownership }

// Borrow returns a borrowed handle to the same output for the current call.
func (o *Output) Borrow() (*Output, error) {
	if _, err := o.info(); err != nil {
		return nil, err
	}
	return o.srv.borrowOutput(o.id), nil
}

func (o *Output) Name() (string, error) {
	i, err := o.info()
	return i.Name, err
}

// Geometry is read live from the protocol layer.
func (o *Output) Geometry() (wm.Geometry, error) {
	i, err := o.info()
	return i.Geometry, err
}

// RefreshRate is in millihertz.
func (o *Output) RefreshRate() (uint32, error) {
	i, err := o.info()
	return i.RefreshRate, err
}

// Release gives up an owned output handle.
func (o *Output) Release() error {
	return o.release(o.id)
}
