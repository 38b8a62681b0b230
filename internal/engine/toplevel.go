package engine

import (
	"time"

	"github.com/1broseidon/wmcore/internal/module"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Phase is a toplevel's lifecycle position.
type Phase uint8

const (
	PhaseCreated Phase = iota
	PhasePendingAck
	PhaseAcked
	PhaseCommitted
	PhaseMapped
	PhaseClosing
	PhaseRetired
)

var phaseNames = [...]string{"created", "pending-ack", "acked", "committed", "mapped", "closing", "retired"}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

type toplevel struct {
	id       wm.ToplevelID
	features wm.Features
	created  time.Time

	appID       string
	title       string
	minSize     wm.Size
	maxSize     wm.Size
	geometry    *wm.Geometry
	parent      wm.ToplevelID
	state       wm.ToplevelState
	decorations wm.DecorationMode
	resizeEdge  wm.ResizeEdge

	// ackedSize and ackedPosition come from the latest acknowledged
	// configure; they become authoritative only on commit.
	ackedSize     *wm.Size
	ackedPosition *wm.Point

	acked     bool
	committed bool
	mapped    bool
	closing   bool
}

func (t *toplevel) phase(outstanding int) Phase {
	switch {
	case t.closing:
		return PhaseClosing
	case t.mapped:
		return PhaseMapped
	case t.committed:
		return PhaseCommitted
	case outstanding > 0:
		return PhasePendingAck
	case t.acked:
		return PhaseAcked
	default:
		return PhaseCreated
	}
}

func (t *toplevel) info() module.ToplevelInfo {
	info := module.ToplevelInfo{
		ID:          t.id,
		Features:    t.features,
		AppID:       t.appID,
		Title:       t.title,
		MinSize:     t.minSize,
		MaxSize:     t.maxSize,
		Parent:      t.parent,
		State:       t.state,
		Decorations: t.decorations,
		ResizeEdge:  t.resizeEdge,
		Mapped:      t.mapped,
	}
	if t.geometry != nil {
		g := *t.geometry
		info.Geometry = &g
	}
	return info
}

// Update carries the fields a protocol event touched. Nil fields were not
// part of the event.
type Update struct {
	AppID      *string
	Title      *string
	Parent     *wm.ToplevelID
	MinSize    *wm.Size
	MaxSize    *wm.Size
	Geometry   *wm.Geometry
	ResizeEdge *wm.ResizeEdge
	// Requests holds client requests such as set-maximized. Bits outside
	// wm.UpdateRequests are ignored.
	Requests wm.UpdateFlags
}

// apply stores u and returns the flags of fields whose value changed.
func (t *toplevel) apply(u Update) wm.UpdateFlags {
	var flags wm.UpdateFlags
	if u.AppID != nil && *u.AppID != t.appID {
		t.appID = *u.AppID
		flags |= wm.UpdateAppID
	}
	if u.Title != nil && *u.Title != t.title {
		t.title = *u.Title
		flags |= wm.UpdateTitle
	}
	if u.Parent != nil && *u.Parent != t.parent {
		t.parent = *u.Parent
		flags |= wm.UpdateParent
	}
	if u.MinSize != nil && *u.MinSize != t.minSize {
		t.minSize = *u.MinSize
		flags |= wm.UpdateMinSize
	}
	if u.MaxSize != nil && *u.MaxSize != t.maxSize {
		t.maxSize = *u.MaxSize
		flags |= wm.UpdateMaxSize
	}
	if u.Geometry != nil && (t.geometry == nil || *u.Geometry != *t.geometry) {
		g := *u.Geometry
		t.geometry = &g
		flags |= wm.UpdateGeometry
	}
	// Entering or leaving an interactive resize reads as a resize request.
	if u.ResizeEdge != nil && *u.ResizeEdge != t.resizeEdge {
		t.resizeEdge = *u.ResizeEdge
		flags |= wm.UpdateRequestResize
	}
	return flags | (u.Requests & wm.UpdateRequests)
}

// Commit describes a client commit. Snapshot is optional and present when
// the presented size changed; Geometry, when set, overrides the position
// and size derived from the snapshot.
type Commit struct {
	Geometry *wm.Geometry
	Snapshot registry.Backing
	// Unmap reports that the client removed its content.
	Unmap bool
}

// commitGeometry resolves the geometry that becomes authoritative.
func (t *toplevel) commitGeometry(c Commit, snapshotSize *wm.Size) *wm.Geometry {
	if c.Geometry != nil {
		g := *c.Geometry
		return &g
	}
	var g wm.Geometry
	if t.geometry != nil {
		g = *t.geometry
	}
	if t.ackedPosition != nil {
		g.X, g.Y = t.ackedPosition.X, t.ackedPosition.Y
	}
	switch {
	case snapshotSize != nil:
		g.Width, g.Height = snapshotSize.Width, snapshotSize.Height
	case t.ackedSize != nil && !t.ackedSize.IsZero():
		g.Width, g.Height = t.ackedSize.Width, t.ackedSize.Height
	case t.geometry == nil && t.ackedPosition == nil:
		return nil
	}
	return &g
}
