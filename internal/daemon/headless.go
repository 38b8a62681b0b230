package daemon

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/engine"
	"github.com/1broseidon/wmcore/internal/platform"
	"github.com/1broseidon/wmcore/internal/wm"
)

// ErrNotRunning is returned when a headless client is spawned before Run.
var ErrNotRunning = errors.New("daemon: driver is not running")

// DefaultHeadlessOutput is the single output a headless driver exposes.
var DefaultHeadlessOutput = wm.Geometry{Width: 1920, Height: 1080}

// Headless is a Driver with no display. It exposes one virtual output and
// simulates well-behaved clients that acknowledge every configure and
// commit a buffer of the suggested size right away.
type Headless struct {
	*platform.Recorder

	output wm.Geometry

	mu      sync.Mutex
	sink    Sink
	clients map[wm.ToplevelID]bool
}

var _ Driver = (*Headless)(nil)

// NewHeadless creates a headless driver with one output covering geom.
func NewHeadless(geom wm.Geometry) *Headless {
	h := &Headless{
		Recorder: platform.NewRecorder(),
		output:   geom,
		clients:  make(map[wm.ToplevelID]bool),
	}
	h.Recorder.OnConfigure = h.configured
	return h
}

func (h *Headless) Name() string { return "headless" }

// Run connects the virtual output and waits for ctx.
func (h *Headless) Run(ctx context.Context, sink Sink) error {
	h.mu.Lock()
	h.sink = sink
	h.mu.Unlock()

	out := virtualOutput{name: "HEADLESS-1", geom: h.output}
	if err := sink.Do(func(e *engine.Engine) error {
		_, err := e.OutputConnected(out)
		return err
	}); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

func (h *Headless) currentSink() Sink {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink
}

func (h *Headless) alive(id wm.ToplevelID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients[id]
}

// Spawn simulates a client creating a toplevel.
func (h *Headless) Spawn(features wm.Features, appID, title string) (wm.ToplevelID, error) {
	sink := h.currentSink()
	if sink == nil {
		return 0, ErrNotRunning
	}
	var id wm.ToplevelID
	err := sink.Do(func(e *engine.Engine) error {
		var err error
		id, err = e.ToplevelCreated(features)
		if err != nil {
			return err
		}
		h.mu.Lock()
		h.clients[id] = true
		h.mu.Unlock()
		if appID == "" && title == "" {
			return nil
		}
		return e.ToplevelUpdated(id, engine.Update{AppID: &appID, Title: &title})
	})
	return id, err
}

// Destroy simulates a client going away.
func (h *Headless) Destroy(id wm.ToplevelID) error {
	sink := h.currentSink()
	if sink == nil {
		return ErrNotRunning
	}
	return sink.Do(func(e *engine.Engine) error {
		if !h.drop(id) {
			return nil
		}
		return e.ToplevelClosed(id)
	})
}

func (h *Headless) drop(id wm.ToplevelID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[id] {
		return false
	}
	delete(h.clients, id)
	return true
}

// configured answers a configure the way a simple client would. It runs
// inside SendConfigure, so the answer is posted rather than run inline.
func (h *Headless) configured(serial uint32, req *configure.Request) {
	sink := h.currentSink()
	if sink == nil {
		return
	}
	id := req.Toplevel
	sink.Post(func(e *engine.Engine) {
		if !h.alive(id) {
			return
		}
		if err := e.ToplevelAcked(id, serial); err != nil {
			return
		}
		var commit engine.Commit
		if size, ok := req.Size(); ok && !size.IsZero() {
			commit.Snapshot = &buffer{size: size}
		}
		e.ToplevelCommitted(id, commit)
	})
}

// RequestClose records the request and closes the simulated client.
func (h *Headless) RequestClose(id wm.ToplevelID) error {
	if err := h.Recorder.RequestClose(id); err != nil {
		return err
	}
	sink := h.currentSink()
	if sink == nil {
		return nil
	}
	return sink.Post(func(e *engine.Engine) {
		if h.drop(id) {
			e.ToplevelClosed(id)
		}
	})
}

// Toplevels lists the simulated clients.
func (h *Headless) Toplevels() []wm.ToplevelID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]wm.ToplevelID, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *Headless) Close() error { return nil }

type virtualOutput struct {
	name string
	geom wm.Geometry
}

func (o virtualOutput) Name() string          { return o.name }
func (o virtualOutput) Geometry() wm.Geometry { return o.geom }
func (o virtualOutput) RefreshRate() uint32   { return 60000 }

// buffer is a simulated client buffer.
type buffer struct {
	size wm.Size
}

func (b *buffer) Size() wm.Size  { return b.size }
func (b *buffer) Scale() float32 { return 1 }
func (b *buffer) Release()       {}
