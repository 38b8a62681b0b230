// Package platform defines what the engine needs from the display protocol
// layer, plus a recording implementation for headless runs and tests.
package platform

import (
	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Backend is the outbound half of the protocol layer. Calls are made from
// the engine's goroutine and must not block on client round trips.
type Backend interface {
	// SendConfigure forwards a frozen configure to the client. The client
	// later answers through the engine's ToplevelAcked.
	SendConfigure(serial uint32, req *configure.Request) error
	ApplyKeyboardFocus(f wm.Focus)
	ApplyPointerFocus(f wm.Focus)
	// RequestClose asks the client to close politely.
	RequestClose(id wm.ToplevelID) error
	// ForgetToplevel reports that the policy released its handle.
	ForgetToplevel(id wm.ToplevelID)
}
