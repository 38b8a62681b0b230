package module

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// scope is one entry-point invocation. Borrowed handles are tied to it.
type scope struct {
	open bool
}

// Server is a module instance's only channel for changing compositor
// state. It is usable while one of the instance's entry points runs.
type Server struct {
	host    Host
	current *scope
	retired bool

	// snapshots handed to this instance; released on retirement if the
	// instance never released them.
	snapshots []*registry.Snapshot
}

func newServer(host Host) *Server {
	return &Server{host: host}
}

func (s *Server) enter() *scope {
	sc := &scope{open: true}
	s.current = sc
	return sc
}

func (s *Server) leave(sc *scope) {
	sc.open = false
	if s.current == sc {
		s.current = nil
	}
}

func (s *Server) active() error {
	if s.retired {
		return fmt.Errorf("%w: module instance is no longer active", wm.ErrInvalidState)
	}
	if s.current == nil || !s.current.open {
		return fmt.Errorf("%w: server used outside a module entry point", wm.ErrInvalidState)
	}
	return nil
}

func (s *Server) adopt(snap *registry.Snapshot) {
	kept := s.snapshots[:0]
	for _, held := range s.snapshots {
		if !held.Released() {
			kept = append(kept, held)
		}
	}
	s.snapshots = append(kept, snap)
}

// retire disables the server and reclaims snapshots the instance leaked.
func (s *Server) retire() int {
	s.retired = true
	s.current = nil
	leaked := 0
	for _, snap := range s.snapshots {
		if !snap.Released() {
			_ = snap.Release()
			leaked++
		}
	}
	s.snapshots = nil
	return leaked
}

// Toplevel returns a borrowed handle valid until the current entry point
// returns.
func (s *Server) Toplevel(id wm.ToplevelID) (*Toplevel, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	if _, err := s.host.ToplevelInfo(id); err != nil {
		return nil, err
	}
	return s.borrowToplevel(id), nil
}

// Output returns a borrowed output handle.
func (s *Server) Output(id wm.OutputID) (*Output, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	if _, err := s.host.OutputInfo(id); err != nil {
		return nil, err
	}
	return s.borrowOutput(id), nil
}

// Toplevels returns borrowed handles for every live toplevel.
func (s *Server) Toplevels() ([]*Toplevel, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	ids := s.host.Toplevels()
	out := make([]*Toplevel, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.borrowToplevel(id))
	}
	return out, nil
}

// Outputs returns borrowed handles for every connected output.
func (s *Server) Outputs() ([]*Output, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	ids := s.host.Outputs()
	out := make([]*Output, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.borrowOutput(id))
	}
	return out, nil
}

// SetKeyboardFocus focuses t, or clears focus when t is nil.
func (s *Server) SetKeyboardFocus(t *Toplevel) error {
	f, err := s.focusTarget(t)
	if err != nil {
		return err
	}
	return s.host.SetKeyboardFocus(f)
}

// SetPointerFocus moves pointer focus to t, or clears it when t is nil.
func (s *Server) SetPointerFocus(t *Toplevel) error {
	f, err := s.focusTarget(t)
	if err != nil {
		return err
	}
	return s.host.SetPointerFocus(f)
}

// KeyboardFocus returns a borrowed handle for the focused toplevel, or nil.
func (s *Server) KeyboardFocus() (*Toplevel, error) {
	if err := s.active(); err != nil {
		return nil, err
	}
	id, ok := s.host.KeyboardFocus().Toplevel()
	if !ok {
		return nil, nil
	}
	return s.borrowToplevel(id), nil
}

func (s *Server) focusTarget(t *Toplevel) (wm.Focus, error) {
	if err := s.active(); err != nil {
		return wm.Focus{}, err
	}
	if t == nil {
		return wm.NoFocus(), nil
	}
	if err := t.usable(); err != nil {
		return wm.Focus{}, err
	}
	return wm.FocusOn(t.id), nil
}

func (s *Server) borrowToplevel(id wm.ToplevelID) *Toplevel {
	return &Toplevel{handle: handle{srv: s, ownership: Borrowed, scope: s.current}, id: id}
}

func (s *Server) borrowOutput(id wm.OutputID) *Output {
	return &Output{handle: handle{srv: s, ownership: Borrowed, scope: s.current}, id: id}
}

func (s *Server) ownToplevel(id wm.ToplevelID) *Toplevel {
	return &Toplevel{handle: handle{srv: s, ownership: Owned}, id: id}
}

func (s *Server) ownOutput(id wm.OutputID) *Output {
	return &Output{handle: handle{srv: s, ownership: Owned}, id: id}
}
