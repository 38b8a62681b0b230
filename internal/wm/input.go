package wm

import "fmt"

// KeyStatus is the direction of a key transition.
type KeyStatus uint8

const (
	KeyReleased KeyStatus = iota
	KeyPressed
)

func (s KeyStatus) String() string {
	if s == KeyPressed {
		return "pressed"
	}
	return "released"
}

// KeyFilter is a module's verdict on a raw key event.
type KeyFilter uint8

const (
	KeyForward KeyFilter = iota
	KeyDrop
)

func (f KeyFilter) String() string {
	switch f {
	case KeyForward:
		return "forward"
	case KeyDrop:
		return "drop"
	default:
		return fmt.Sprintf("filter(%d)", uint8(f))
	}
}

// KeyEvent is a raw key transition as seen by the seat.
type KeyEvent struct {
	Time   uint32
	Keysym uint32
	// Compose is the text the key produces, empty when it produces none.
	Compose string
	Status  KeyStatus
}

// Modifiers is the latched/depressed modifier mask of a seat.
type Modifiers uint8

const (
	ModCtrl Modifiers = 1 << iota
	ModAlt
	ModShift
	ModCapsLock
	ModLogo
	ModNumLock
)

var modifierNames = []flagName[Modifiers]{
	{ModCtrl, "ctrl"},
	{ModAlt, "alt"},
	{ModShift, "shift"},
	{ModCapsLock, "caps-lock"},
	{ModLogo, "logo"},
	{ModNumLock, "num-lock"},
}

func (m Modifiers) String() string {
	return formatFlags(m, modifierNames)
}

// Names lists the active modifiers.
func (m Modifiers) Names() []string {
	return flagList(m, modifierNames)
}

// Has reports whether every modifier in x is active.
func (m Modifiers) Has(x Modifiers) bool {
	return m&x == x
}
