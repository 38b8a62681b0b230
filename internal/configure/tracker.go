package configure

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Ack is an acknowledgment ready for delivery to the module.
type Ack struct {
	Toplevel wm.ToplevelID
	Serial   uint32
	Request  *Request
}

type outstanding struct {
	serial  uint32
	req     *Request
	acked   bool
	dropped bool
}

// Tracker issues serials and releases acknowledgments strictly in
// submission order across the whole session. Every outstanding serial is
// tracked independently; a later configure never supersedes an earlier one.
type Tracker struct {
	last  uint32
	queue []*outstanding
}

// NewTracker returns a tracker whose first serial is 1.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Issue freezes req and assigns it the next serial.
func (t *Tracker) Issue(req *Request) (uint32, error) {
	if req == nil {
		return 0, fmt.Errorf("%w: nil configure", wm.ErrInvalidState)
	}
	if err := req.Freeze(); err != nil {
		return 0, err
	}
	t.last++
	t.queue = append(t.queue, &outstanding{serial: t.last, req: req})
	return t.last, nil
}

// Ack records that the client of toplevel applied serial. It returns the
// acknowledgments that became deliverable, which may be none when an
// earlier serial is still outstanding.
func (t *Tracker) Ack(toplevel wm.ToplevelID, serial uint32) ([]Ack, error) {
	var entry *outstanding
	for _, o := range t.queue {
		if o.serial == serial {
			entry = o
			break
		}
	}
	if entry == nil || entry.dropped {
		return nil, fmt.Errorf("%w: serial %d is not outstanding", wm.ErrInvalidState, serial)
	}
	if entry.req.Toplevel != toplevel {
		return nil, fmt.Errorf("%w: serial %d belongs to %v, not %v", wm.ErrInvalidState, serial, entry.req.Toplevel, toplevel)
	}
	if entry.acked {
		return nil, fmt.Errorf("%w: serial %d acknowledged twice", wm.ErrInvalidState, serial)
	}
	entry.acked = true
	return t.drain(), nil
}

// Cancel drops every outstanding serial of toplevel, typically because it
// closed. Acknowledgments that were only waiting on those serials are
// returned in order.
func (t *Tracker) Cancel(toplevel wm.ToplevelID) []Ack {
	for _, o := range t.queue {
		if o.req.Toplevel == toplevel {
			o.dropped = true
		}
	}
	return t.drain()
}

func (t *Tracker) drain() []Ack {
	var ready []Ack
	n := 0
	for _, o := range t.queue {
		if !o.acked && !o.dropped {
			break
		}
		if !o.dropped {
			ready = append(ready, Ack{Toplevel: o.req.Toplevel, Serial: o.serial, Request: o.req})
		}
		n++
	}
	t.queue = t.queue[n:]
	return ready
}

// Outstanding lists the unacknowledged serials of toplevel in order.
func (t *Tracker) Outstanding(toplevel wm.ToplevelID) []uint32 {
	var serials []uint32
	for _, o := range t.queue {
		if o.req.Toplevel == toplevel && !o.acked && !o.dropped {
			serials = append(serials, o.serial)
		}
	}
	return serials
}

// Held returns the newest serial of toplevel that the client acknowledged
// but that still waits behind an older outstanding serial.
func (t *Tracker) Held(toplevel wm.ToplevelID) (uint32, bool) {
	var (
		serial uint32
		held   bool
	)
	for _, o := range t.queue {
		if o.req.Toplevel == toplevel && o.acked && !o.dropped {
			serial, held = o.serial, true
		}
	}
	return serial, held
}

// Len reports how many serials are waiting for delivery.
func (t *Tracker) Len() int {
	n := 0
	for _, o := range t.queue {
		if !o.dropped {
			n++
		}
	}
	return n
}

// LastSerial returns the most recently issued serial, or zero.
func (t *Tracker) LastSerial() uint32 {
	return t.last
}

// Withdraw takes back the most recently issued serial when its configure
// could not be sent. Only the latest serial can be withdrawn, so no held
// acknowledgment depends on it.
func (t *Tracker) Withdraw(serial uint32) error {
	n := len(t.queue)
	if n == 0 || t.queue[n-1].serial != serial || t.queue[n-1].acked {
		return fmt.Errorf("%w: serial %d cannot be withdrawn", wm.ErrInvalidState, serial)
	}
	t.queue = t.queue[:n-1]
	return nil
}
