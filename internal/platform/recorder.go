package platform

import (
	"sync"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/wm"
)

// SentConfigure is a configure observed by a Recorder.
type SentConfigure struct {
	Serial  uint32
	Request *configure.Request
}

// Recorder is a Backend without a display. It remembers every outbound call
// and can hand configures to a simulated client.
type Recorder struct {
	mu sync.Mutex

	configures []SentConfigure
	keyboard   []wm.Focus
	pointer    []wm.Focus
	closes     []wm.ToplevelID
	forgotten  []wm.ToplevelID

	// OnConfigure, if set, runs after a configure is recorded.
	OnConfigure func(serial uint32, req *configure.Request)
	// CloseErr is returned by RequestClose when set.
	CloseErr error
}

var _ Backend = (*Recorder)(nil)

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) SendConfigure(serial uint32, req *configure.Request) error {
	r.mu.Lock()
	r.configures = append(r.configures, SentConfigure{Serial: serial, Request: req})
	hook := r.OnConfigure
	r.mu.Unlock()

	if hook != nil {
		hook(serial, req)
	}
	return nil
}

func (r *Recorder) ApplyKeyboardFocus(f wm.Focus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keyboard = append(r.keyboard, f)
}

func (r *Recorder) ApplyPointerFocus(f wm.Focus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pointer = append(r.pointer, f)
}

func (r *Recorder) RequestClose(id wm.ToplevelID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.CloseErr != nil {
		return r.CloseErr
	}
	r.closes = append(r.closes, id)
	return nil
}

func (r *Recorder) ForgetToplevel(id wm.ToplevelID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forgotten = append(r.forgotten, id)
}

// Configures returns the configures sent so far.
func (r *Recorder) Configures() []SentConfigure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SentConfigure(nil), r.configures...)
}

// KeyboardFocus returns every keyboard focus change applied.
func (r *Recorder) KeyboardFocus() []wm.Focus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wm.Focus(nil), r.keyboard...)
}

// PointerFocus returns every pointer focus change applied.
func (r *Recorder) PointerFocus() []wm.Focus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wm.Focus(nil), r.pointer...)
}

// Closes returns the toplevels asked to close.
func (r *Recorder) Closes() []wm.ToplevelID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wm.ToplevelID(nil), r.closes...)
}

// Forgotten returns the toplevels the policy released.
func (r *Recorder) Forgotten() []wm.ToplevelID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]wm.ToplevelID(nil), r.forgotten...)
}
