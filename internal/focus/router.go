// Package focus tracks keyboard and pointer focus and routes raw key events
// through the active policy's filter.
package focus

import (
	"fmt"

	"github.com/1broseidon/wmcore/internal/wm"
)

// Applier pushes focus changes out to the display server.
type Applier interface {
	ApplyKeyboardFocus(wm.Focus)
	ApplyPointerFocus(wm.Focus)
}

// Validator reports wm.ErrUnknownHandle for identifiers that are not live.
type Validator func(wm.ToplevelID) error

// KeyHandler decides whether a key event reaches the focused client.
type KeyHandler func(wm.KeyEvent) (wm.KeyFilter, error)

// Router is owned by the event-loop goroutine and holds no locks.
type Router struct {
	applier  Applier
	validate Validator

	keyboard  wm.Focus
	pointer   wm.Focus
	modifiers wm.Modifiers

	filtering bool
}

// NewRouter creates a router with nothing focused.
func NewRouter(applier Applier, validate Validator) *Router {
	return &Router{applier: applier, validate: validate}
}

func (r *Router) check(f wm.Focus) error {
	id, ok := f.Toplevel()
	if !ok || r.validate == nil {
		return nil
	}
	return r.validate(id)
}

// SetKeyboardFocus moves keyboard focus. Setting the current value is a
// no-op and reports changed=false. An invalid target leaves focus as it was.
func (r *Router) SetKeyboardFocus(f wm.Focus) (bool, error) {
	if err := r.check(f); err != nil {
		return false, err
	}
	if f == r.keyboard {
		return false, nil
	}
	r.keyboard = f
	if r.applier != nil {
		r.applier.ApplyKeyboardFocus(f)
	}
	return true, nil
}

// SetPointerFocus moves pointer focus with the same rules as keyboard focus.
func (r *Router) SetPointerFocus(f wm.Focus) (bool, error) {
	if err := r.check(f); err != nil {
		return false, err
	}
	if f == r.pointer {
		return false, nil
	}
	r.pointer = f
	if r.applier != nil {
		r.applier.ApplyPointerFocus(f)
	}
	return true, nil
}

func (r *Router) KeyboardFocus() wm.Focus { return r.keyboard }
func (r *Router) PointerFocus() wm.Focus  { return r.pointer }

// Forget clears any focus pointing at id. It runs when id is invalidated so
// no stale target survives the close notification.
func (r *Router) Forget(id wm.ToplevelID) {
	if cur, ok := r.keyboard.Toplevel(); ok && cur == id {
		r.keyboard = wm.NoFocus()
		if r.applier != nil {
			r.applier.ApplyKeyboardFocus(r.keyboard)
		}
	}
	if cur, ok := r.pointer.Toplevel(); ok && cur == id {
		r.pointer = wm.NoFocus()
		if r.applier != nil {
			r.applier.ApplyPointerFocus(r.pointer)
		}
	}
}

// FilterKey hands ev to fn and returns its verdict before the caller may
// process another event. A nested call while a decision is in flight fails
// with wm.ErrInvalidState. When fn fails the event is forwarded.
func (r *Router) FilterKey(ev wm.KeyEvent, fn KeyHandler) (wm.KeyFilter, error) {
	if r.filtering {
		return wm.KeyForward, fmt.Errorf("%w: key event delivered while another is being filtered", wm.ErrInvalidState)
	}
	if fn == nil {
		return wm.KeyForward, nil
	}
	r.filtering = true
	defer func() { r.filtering = false }()

	verdict, err := fn(ev)
	if err != nil {
		return wm.KeyForward, err
	}
	if verdict != wm.KeyDrop {
		verdict = wm.KeyForward
	}
	return verdict, nil
}

// SetModifiers records the seat's modifier mask and reports whether it
// differs from the previous one. Modifier changes are never filtered.
func (r *Router) SetModifiers(m wm.Modifiers) bool {
	if m == r.modifiers {
		return false
	}
	r.modifiers = m
	return true
}

func (r *Router) Modifiers() wm.Modifiers { return r.modifiers }
