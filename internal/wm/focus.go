package wm

// Focus is an input target: nothing, or one toplevel. The zero value is no focus.
type Focus struct {
	toplevel ToplevelID
}

// NoFocus returns the empty focus target.
func NoFocus() Focus {
	return Focus{}
}

// FocusOn targets the given toplevel.
func FocusOn(id ToplevelID) Focus {
	return Focus{toplevel: id}
}

// Toplevel returns the focused toplevel, if any.
func (f Focus) Toplevel() (ToplevelID, bool) {
	return f.toplevel, f.toplevel != 0
}

// IsNone reports whether nothing is focused.
func (f Focus) IsNone() bool {
	return f.toplevel == 0
}

func (f Focus) String() string {
	if f.IsNone() {
		return "none"
	}
	return f.toplevel.String()
}
