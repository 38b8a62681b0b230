package module

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Configure is a pending configure for one toplevel. Setters overwrite
// earlier values; nothing reaches the client until Submit.
type Configure struct {
	srv *Server
	req *configure.Request
}

// NewConfigure starts a configure for t.
func (s *Server) NewConfigure(t *Toplevel) (*Configure, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: configure without a toplevel", wm.ErrInvalidState)
	}
	if _, err := t.info(); err != nil {
		return nil, err
	}
	return &Configure{srv: s, req: configure.NewRequest(t.id)}, nil
}

func (c *Configure) Toplevel() wm.ToplevelID { return c.req.Toplevel }

func (c *Configure) SetDecorations(m wm.DecorationMode) error { return c.req.SetDecorations(m) }
func (c *Configure) SetState(st wm.ToplevelState) error       { return c.req.SetState(st) }
func (c *Configure) SetSize(sz wm.Size) error                 { return c.req.SetSize(sz) }
func (c *Configure) SetBounds(sz wm.Size) error               { return c.req.SetBounds(sz) }
func (c *Configure) SetPosition(p wm.Point) error             { return c.req.SetPosition(p) }

// SetParent proposes p as the new parent, or no parent when p is nil. Only
// a borrowed handle is accepted.
func (c *Configure) SetParent(p *Toplevel) error {
	if p == nil {
		return c.req.SetParent(0)
	}
	if p.ownership != Borrowed {
		return fmt.Errorf("%w: parent must be a borrowed handle", wm.ErrInvalidState)
	}
	if err := p.usable(); err != nil {
		return err
	}
	if p.id == c.req.Toplevel {
		return fmt.Errorf("%w: %v cannot be its own parent", wm.ErrInvalidState, p.id)
	}
	return c.req.SetParent(p.id)
}

// Submit freezes the configure, sends it to the client and returns its
// serial. A configure can be submitted once.
func (c *Configure) Submit() (uint32, error) {
	if err := c.srv.active(); err != nil {
		return 0, err
	}
	if c.req.Frozen() {
		return 0, fmt.Errorf("%w: configure for %v already submitted", wm.ErrInvalidState, c.req.Toplevel)
	}
	return c.srv.host.SubmitConfigure(c.req)
}

func (c *Configure) String() string {
	return c.req.String()
}
