package daemon

import (
	"context"

	"github.com/1broseidon/wmcore/internal/engine"
	"github.com/1broseidon/wmcore/internal/platform"
	"github.com/1broseidon/wmcore/internal/wm"
)

// Sink hands protocol events to the engine on the daemon's loop.
type Sink interface {
	// Post queues fn and returns immediately. It is safe to call from
	// inside a Backend method.
	Post(fn func(e *engine.Engine)) error
	// Do runs fn and waits for it. It must not be called from inside a
	// Backend method.
	Do(fn func(e *engine.Engine) error) error
}

// Driver is a protocol layer. The engine reaches it through
// platform.Backend; the driver reaches the engine through a Sink.
type Driver interface {
	platform.Backend
	// Name identifies the driver in status output.
	Name() string
	// Run delivers protocol events until ctx is done or the display goes
	// away.
	Run(ctx context.Context, sink Sink) error
	// Toplevels lists the toplevels the driver still has clients for. It
	// is called on the loop.
	Toplevels() []wm.ToplevelID
	Close() error
}
