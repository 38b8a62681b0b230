// Package wm holds the vocabulary shared by the window-management engine and
// the policy modules it drives: identifiers, geometry, state flags, update
// flags, key events, focus targets and the error taxonomy.
package wm

import "fmt"

// ToplevelID identifies a toplevel for the whole session. Zero is never
// allocated and is used as "no toplevel".
type ToplevelID uint32

func (id ToplevelID) String() string {
	return fmt.Sprintf("toplevel#%d", uint32(id))
}

// OutputID identifies an output for the whole session. Zero is never allocated.
type OutputID uint32

func (id OutputID) String() string {
	return fmt.Sprintf("output#%d", uint32(id))
}
