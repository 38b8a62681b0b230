package x11

import (
	"fmt"
	"unicode/utf8"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/keybind"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/1broseidon/wmcore/internal/wm"
)

// keyGrab is one parsed key sequence.
type keyGrab struct {
	seq      string
	mods     uint16
	keycodes []xproto.Keycode
}

// configureIgnoreMods makes grabs fire regardless of lock modifiers and
// returns the Num_Lock mask.
func configureIgnoreMods(xu *xgbutil.XUtil) uint16 {
	// Always ignore CapsLock.
	caps := uint16(xproto.ModMaskLock)

	numLock := modMaskForKeysym(xu, "Num_Lock")
	scrollLock := modMaskForKeysym(xu, "Scroll_Lock")

	base := []uint16{caps}
	if numLock != 0 && numLock != caps {
		base = append(base, numLock)
	}
	if scrollLock != 0 && scrollLock != caps && scrollLock != numLock {
		base = append(base, scrollLock)
	}

	xevent.IgnoreMods = maskSubsets(base)
	return numLock
}

// maskSubsets returns every combination of the given masks, including the
// empty one, without duplicates.
func maskSubsets(base []uint16) []uint16 {
	unique := map[uint16]bool{0: true}
	masks := []uint16{0}
	for subset := 1; subset < (1 << len(base)); subset++ {
		var mask uint16
		for bit := range base {
			if subset&(1<<bit) != 0 {
				mask |= base[bit]
			}
		}
		if !unique[mask] {
			unique[mask] = true
			masks = append(masks, mask)
		}
	}
	return masks
}

func modMaskForKeysym(xu *xgbutil.XUtil, keysym string) uint16 {
	for _, keycode := range keybind.StrToKeycodes(xu, keysym) {
		if mask := keybind.ModGet(xu, keycode); mask != 0 {
			return mask
		}
	}
	return 0
}

// parseGrabs resolves key sequences such as "Mod4-Return".
func (c *Connection) parseGrabs(seqs []string) ([]keyGrab, error) {
	grabs := make([]keyGrab, 0, len(seqs))
	for _, seq := range seqs {
		mods, keycodes, err := keybind.ParseString(c.XUtil, seq)
		if err != nil {
			return nil, fmt.Errorf("invalid key grab %q: %w", seq, err)
		}
		grabs = append(grabs, keyGrab{seq: seq, mods: mods, keycodes: keycodes})
	}
	return grabs, nil
}

// grabKeys grabs each sequence on the root window with a synchronous
// keyboard, so every press waits for the key filter's verdict.
func (c *Connection) grabKeys(grabs []keyGrab) {
	for _, g := range grabs {
		for _, kc := range g.keycodes {
			for _, m := range xevent.IgnoreMods {
				xproto.GrabKey(c.XUtil.Conn(), true, c.Root, g.mods|m, kc,
					xproto.GrabModeAsync, xproto.GrabModeSync)
			}
		}
	}
}

// releaseKeyboard resumes keyboard processing after a synchronous grab.
func (c *Connection) releaseKeyboard(filter wm.KeyFilter, t xproto.Timestamp) {
	xproto.AllowEvents(c.XUtil.Conn(), allowMode(filter), t)
}

// allowMode picks how a frozen keyboard resumes. A forwarded key is
// replayed to the focused client, which ends the grab: its release goes
// to the client and the key filter never sees it. A dropped key keeps the
// grab active until release, so that release reaches the filter.
func allowMode(filter wm.KeyFilter) byte {
	if filter == wm.KeyForward {
		return xproto.AllowReplayKeyboard
	}
	return xproto.AllowAsyncKeyboard
}

// keyEvent translates a key transition into the engine's terms.
func (c *Connection) keyEvent(state uint16, detail xproto.Keycode, t xproto.Timestamp, status wm.KeyStatus) wm.KeyEvent {
	column := byte(0)
	if state&xproto.ModMaskShift != 0 {
		column = 1
	}
	sym := keybind.KeysymGet(c.XUtil, detail, column)
	if sym == 0 {
		sym = keybind.KeysymGet(c.XUtil, detail, 0)
	}
	ev := wm.KeyEvent{Time: uint32(t), Keysym: uint32(sym), Status: status}
	if status == wm.KeyPressed && state&xproto.ModMaskControl == 0 {
		ev.Compose = composeText(keybind.LookupString(c.XUtil, state, detail))
	}
	return ev
}

// composeText keeps lookups that name a single character; keysym names
// such as "Return" produce no text.
func composeText(s string) string {
	if utf8.RuneCountInString(s) == 1 {
		return s
	}
	switch s {
	case "space":
		return " "
	}
	return ""
}

// modifiersFromState converts a core protocol key state mask.
func modifiersFromState(state, numLock uint16) wm.Modifiers {
	var m wm.Modifiers
	if state&xproto.ModMaskControl != 0 {
		m |= wm.ModCtrl
	}
	if state&xproto.ModMask1 != 0 {
		m |= wm.ModAlt
	}
	if state&xproto.ModMaskShift != 0 {
		m |= wm.ModShift
	}
	if state&xproto.ModMaskLock != 0 {
		m |= wm.ModCapsLock
	}
	if state&xproto.ModMask4 != 0 {
		m |= wm.ModLogo
	}
	if numLock != 0 && state&numLock != 0 {
		m |= wm.ModNumLock
	}
	return m
}
