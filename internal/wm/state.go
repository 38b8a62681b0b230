package wm

import "fmt"

// ToplevelState is the set of state flags a policy proposes for a toplevel.
// Flags are independent; the policy decides which combinations make sense.
type ToplevelState uint32

const (
	StateMaximized ToplevelState = 1 << iota
	StateFullscreen
	StateResizing
	StateActivated
	StateTiledLeft
	StateTiledRight
	StateTiledTop
	StateTiledBottom
	StateSuspended
)

// StateTiled covers every tiled edge.
const StateTiled = StateTiledLeft | StateTiledRight | StateTiledTop | StateTiledBottom

var stateNames = []flagName[ToplevelState]{
	{StateMaximized, "maximized"},
	{StateFullscreen, "fullscreen"},
	{StateResizing, "resizing"},
	{StateActivated, "activated"},
	{StateTiledLeft, "tiled-left"},
	{StateTiledRight, "tiled-right"},
	{StateTiledTop, "tiled-top"},
	{StateTiledBottom, "tiled-bottom"},
	{StateSuspended, "suspended"},
}

// Has reports whether every flag in f is set.
func (s ToplevelState) Has(f ToplevelState) bool {
	return s&f == f
}

func (s ToplevelState) String() string {
	return formatFlags(s, stateNames)
}

// Names lists the set flags in declaration order.
func (s ToplevelState) Names() []string {
	return flagList(s, stateNames)
}

// ParseStateFlag maps a flag name such as "activated" or "tiled-left" to its value.
func ParseStateFlag(name string) (ToplevelState, bool) {
	return lookupFlag(name, stateNames)
}

// DecorationMode selects who draws window decorations.
type DecorationMode uint8

const (
	DecorationClientSide DecorationMode = iota
	DecorationServerSide
)

func (d DecorationMode) String() string {
	switch d {
	case DecorationClientSide:
		return "client-side"
	case DecorationServerSide:
		return "server-side"
	default:
		return fmt.Sprintf("decoration(%d)", uint8(d))
	}
}

// ParseDecorationMode accepts "client-side"/"client" and "server-side"/"server".
func ParseDecorationMode(s string) (DecorationMode, error) {
	switch s {
	case "client-side", "client":
		return DecorationClientSide, nil
	case "server-side", "server":
		return DecorationServerSide, nil
	default:
		return 0, fmt.Errorf("unknown decoration mode %q", s)
	}
}

// Features are the capabilities a toplevel's client advertised at creation.
// They never change afterwards.
type Features uint8

const (
	FeatureServerSideDecorations Features = 1 << iota
	FeatureTiledState
	FeatureSuspendedState
)

var featureNames = []flagName[Features]{
	{FeatureServerSideDecorations, "server-side-decorations"},
	{FeatureTiledState, "tiled-state"},
	{FeatureSuspendedState, "suspended-state"},
}

// Has reports whether every feature in f is supported.
func (f Features) Has(x Features) bool {
	return f&x == x
}

func (f Features) String() string {
	return formatFlags(f, featureNames)
}

// Names lists the supported features.
func (f Features) Names() []string {
	return flagList(f, featureNames)
}

// MaskState drops state flags the client cannot represent.
func (f Features) MaskState(s ToplevelState) ToplevelState {
	if !f.Has(FeatureTiledState) {
		s &^= StateTiled
	}
	if !f.Has(FeatureSuspendedState) {
		s &^= StateSuspended
	}
	return s
}

// MaskDecorations falls back to client-side decorations when the client
// cannot hand drawing over to the server.
func (f Features) MaskDecorations(d DecorationMode) DecorationMode {
	if d == DecorationServerSide && !f.Has(FeatureServerSideDecorations) {
		return DecorationClientSide
	}
	return d
}

// ResizeEdge is the edge or corner grabbed during an interactive resize.
type ResizeEdge uint8

const (
	EdgeNone ResizeEdge = iota
	EdgeTop
	EdgeBottom
	EdgeLeft
	EdgeTopLeft
	EdgeBottomLeft
	EdgeRight
	EdgeTopRight
	EdgeBottomRight
)

var edgeNames = [...]string{"none", "top", "bottom", "left", "top-left", "bottom-left", "right", "top-right", "bottom-right"}

func (e ResizeEdge) String() string {
	if int(e) < len(edgeNames) {
		return edgeNames[e]
	}
	return fmt.Sprintf("edge(%d)", uint8(e))
}
