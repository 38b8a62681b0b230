package module

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"

	"github.com/1broseidon/wmcore/internal/configure"
	"github.com/1broseidon/wmcore/internal/registry"
	"github.com/1broseidon/wmcore/internal/wm"
)

type fakeHost struct {
	toplevels map[wm.ToplevelID]ToplevelInfo
	outputs   map[wm.OutputID]OutputInfo
	keyboard  wm.Focus
	pointer   wm.Focus
	tracker   *configure.Tracker
	submitted []*configure.Request
	closes    []wm.ToplevelID
	forgotten []wm.ToplevelID
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		toplevels: make(map[wm.ToplevelID]ToplevelInfo),
		outputs:   make(map[wm.OutputID]OutputInfo),
		tracker:   configure.NewTracker(),
	}
}

func (h *fakeHost) check(id wm.ToplevelID) error {
	if _, ok := h.toplevels[id]; !ok {
		return fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
	}
	return nil
}

func (h *fakeHost) SetKeyboardFocus(f wm.Focus) error {
	if id, ok := f.Toplevel(); ok {
		if err := h.check(id); err != nil {
			return err
		}
	}
	h.keyboard = f
	return nil
}

func (h *fakeHost) SetPointerFocus(f wm.Focus) error {
	h.pointer = f
	return nil
}

func (h *fakeHost) KeyboardFocus() wm.Focus { return h.keyboard }

func (h *fakeHost) ToplevelInfo(id wm.ToplevelID) (ToplevelInfo, error) {
	if err := h.check(id); err != nil {
		return ToplevelInfo{}, err
	}
	return h.toplevels[id], nil
}

func (h *fakeHost) OutputInfo(id wm.OutputID) (OutputInfo, error) {
	info, ok := h.outputs[id]
	if !ok {
		return OutputInfo{}, fmt.Errorf("%w: %v", wm.ErrUnknownHandle, id)
	}
	return info, nil
}

func (h *fakeHost) Toplevels() []wm.ToplevelID {
	var ids []wm.ToplevelID
	for id := range h.toplevels {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (h *fakeHost) Outputs() []wm.OutputID {
	var ids []wm.OutputID
	for id := range h.outputs {
		ids = append(ids, id)
	}
	return ids
}

func (h *fakeHost) SubmitConfigure(req *configure.Request) (uint32, error) {
	if err := h.check(req.Toplevel); err != nil {
		return 0, err
	}
	serial, err := h.tracker.Issue(req)
	if err != nil {
		return 0, err
	}
	h.submitted = append(h.submitted, req)
	return serial, nil
}

func (h *fakeHost) RequestClose(id wm.ToplevelID) error {
	if err := h.check(id); err != nil {
		return err
	}
	h.closes = append(h.closes, id)
	return nil
}

func (h *fakeHost) ForgetToplevel(id wm.ToplevelID) {
	h.forgotten = append(h.forgotten, id)
}

// scripted is a Module whose behavior is supplied per test.
type scripted struct {
	info      Info
	infoErr   error
	createErr error
	panicIn   string

	srv *Server

	onNewToplevel func(*Toplevel) error
	onUpdate      func(*Toplevel, wm.UpdateFlags) error
	onCommitted   func(*Toplevel, *registry.Snapshot) error
	onKey         func(wm.KeyEvent) (wm.KeyFilter, error)
	closed        bool
}

func newScripted(name string) *scripted {
	return &scripted{info: Info{Name: name, Version: "1.0.0", ABI: HostABI}}
}

func (s *scripted) Info() (Info, error) {
	if s.panicIn == "info" {
		panic("info exploded")
	}
	return s.info, s.infoErr
}

func (s *scripted) Create(srv *Server) (Instance, error) {
	if s.panicIn == "create" {
		panic("create exploded")
	}
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.srv = srv
	return s, nil
}

func (s *scripted) NewToplevel(t *Toplevel) error {
	if s.onNewToplevel != nil {
		return s.onNewToplevel(t)
	}
	return nil
}

func (s *scripted) ClosedToplevel(wm.ToplevelID) error { return nil }

func (s *scripted) UpdateToplevel(t *Toplevel, flags wm.UpdateFlags) error {
	if s.onUpdate != nil {
		return s.onUpdate(t, flags)
	}
	return nil
}

func (s *scripted) AckToplevel(*Toplevel, uint32) error { return nil }

func (s *scripted) CommittedToplevel(t *Toplevel, snap *registry.Snapshot) error {
	if s.onCommitted != nil {
		return s.onCommitted(t, snap)
	}
	return nil
}

func (s *scripted) Key(ev wm.KeyEvent) (wm.KeyFilter, error) {
	if s.panicIn == "key" {
		panic("key exploded")
	}
	if s.onKey != nil {
		return s.onKey(ev)
	}
	return wm.KeyForward, nil
}

func (s *scripted) KeyModifiers(wm.Modifiers) error    { return nil }
func (s *scripted) NewOutput(*Output) error            { return nil }
func (s *scripted) DisconnectOutput(wm.OutputID) error { return nil }

func (s *scripted) Close() error {
	s.closed = true
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCheckABI(t *testing.T) {
	host := ABI{Major: 1, Minor: 3}
	tests := []struct {
		mod  ABI
		okay bool
	}{
		{ABI{Major: 1, Minor: 3}, true},
		{ABI{Major: 1, Minor: 0}, true},
		{ABI{Major: 1, Minor: 4}, false},
		{ABI{Major: 2, Minor: 0}, false},
		{ABI{Major: 0, Minor: 3}, false},
	}
	for _, tt := range tests {
		err := CheckABI(host, tt.mod)
		if tt.okay && err != nil {
			t.Errorf("CheckABI(%v, %v) = %v, want nil", host, tt.mod, err)
		}
		if !tt.okay && !errors.Is(err, wm.ErrIncompatibleABI) {
			t.Errorf("CheckABI(%v, %v) = %v, want ErrIncompatibleABI", host, tt.mod, err)
		}
	}
}

func TestInfoValidate(t *testing.T) {
	tests := []struct {
		info Info
		okay bool
	}{
		{Info{Name: "tiler", Version: "0.1.0"}, true},
		{Info{Name: "tiler", Version: "1.2.3-rc.1+build.5"}, true},
		{Info{Name: "", Version: "1.0.0"}, false},
		{Info{Name: "tiler", Version: "1.0"}, false},
		{Info{Name: "tiler", Version: "v1.0.0"}, false},
	}
	for _, tt := range tests {
		err := tt.info.Validate()
		if (err == nil) != tt.okay {
			t.Errorf("Validate(%+v) = %v, want ok=%v", tt.info, err, tt.okay)
		}
	}
}

func TestIncompatibleModuleKeepsPrevious(t *testing.T) {
	b := NewBoundary(newFakeHost(), quietLogger(), nil)
	if _, err := b.Activate(newScripted("first")); err != nil {
		t.Fatalf("activate first: %v", err)
	}

	next := newScripted("next")
	next.info.ABI = ABI{Major: HostABI.Major + 1, Minor: 0}
	if _, err := b.Activate(next); !errors.Is(err, wm.ErrIncompatibleABI) {
		t.Fatalf("expected ErrIncompatibleABI, got %v", err)
	}
	if next.srv != nil {
		t.Fatalf("incompatible module must not be instantiated")
	}
	st, ok := b.Status()
	if !ok || st.Info.Name != "first" {
		t.Fatalf("expected first to remain active, got %+v", st)
	}
	if b.LastLoadError() == "" {
		t.Fatalf("expected load error to be recorded")
	}
}

func TestFailedCreateFallsBackToBuiltin(t *testing.T) {
	fallback := newScripted("builtin")
	b := NewBoundary(newFakeHost(), quietLogger(), fallback)

	broken := newScripted("broken")
	broken.createErr = errors.New("no layout named spiral")
	_, err := b.Activate(broken)
	if !errors.Is(err, wm.ErrModuleInit) {
		t.Fatalf("expected ErrModuleInit, got %v", err)
	}
	st, ok := b.Status()
	if !ok || !st.Builtin || st.Info.Name != "builtin" {
		t.Fatalf("expected builtin fallback active, got %+v ok=%v", st, ok)
	}
}

func TestPanicsBecomeModuleInitErrors(t *testing.T) {
	for _, where := range []string{"info", "create"} {
		b := NewBoundary(newFakeHost(), quietLogger(), nil)
		m := newScripted("panicky")
		m.panicIn = where
		if _, err := b.Activate(m); !errors.Is(err, wm.ErrModuleInit) {
			t.Errorf("panic in %s: expected ErrModuleInit, got %v", where, err)
		}
		if _, ok := b.Status(); ok {
			t.Errorf("panic in %s: expected no active module", where)
		}
	}
}

func TestInvalidInfoRejected(t *testing.T) {
	b := NewBoundary(newFakeHost(), quietLogger(), nil)
	m := newScripted("noversion")
	m.info.Version = ""
	if _, err := b.Activate(m); !errors.Is(err, wm.ErrModuleInit) {
		t.Fatalf("expected ErrModuleInit, got %v", err)
	}
	m = newScripted("infofail")
	m.infoErr = errors.New("bad manifest")
	if _, err := b.Activate(m); !errors.Is(err, wm.ErrModuleInit) {
		t.Fatalf("expected ErrModuleInit, got %v", err)
	}
}

func TestBorrowedHandleExpires(t *testing.T) {
	host := newFakeHost()
	host.toplevels[1] = ToplevelInfo{ID: 1, Title: "term"}
	m := newScripted("wm")
	var kept *Toplevel
	m.onUpdate = func(t *Toplevel, _ wm.UpdateFlags) error {
		kept = t
		_, err := t.Title()
		return err
	}
	b := NewBoundary(host, quietLogger(), nil)
	if _, err := b.Activate(m); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := b.UpdateToplevel(1, wm.UpdateTitle); err != nil {
		t.Fatalf("update: %v", err)
	}

	m.onUpdate = func(*Toplevel, wm.UpdateFlags) error {
		_, err := kept.Title()
		return err
	}
	if err := b.UpdateToplevel(1, wm.UpdateTitle); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected stale borrowed handle to fail with ErrInvalidState, got %v", err)
	}
	if err := kept.Release(); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected releasing borrowed handle to fail, got %v", err)
	}
}

func TestOwnedHandleOutlivesCall(t *testing.T) {
	host := newFakeHost()
	host.toplevels[1] = ToplevelInfo{ID: 1, AppID: "foot"}
	m := newScripted("wm")
	var owned *Toplevel
	m.onNewToplevel = func(t *Toplevel) error {
		owned = t
		return nil
	}
	b := NewBoundary(host, quietLogger(), nil)
	_, _ = b.Activate(m)
	if err := b.NewToplevel(1); err != nil {
		t.Fatalf("new toplevel: %v", err)
	}
	if owned.Ownership() != Owned {
		t.Fatalf("expected owned handle, got %v", owned.Ownership())
	}

	// Outside an entry point nothing may touch the server.
	if _, err := owned.AppID(); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState outside a call, got %v", err)
	}

	var appID string
	m.onUpdate = func(*Toplevel, wm.UpdateFlags) error {
		var err error
		appID, err = owned.AppID()
		if err != nil {
			return err
		}
		return owned.Release()
	}
	if err := b.UpdateToplevel(1, wm.UpdateAppID); err != nil {
		t.Fatalf("update: %v", err)
	}
	if appID != "foot" {
		t.Fatalf("expected app id foot, got %q", appID)
	}
	if len(host.forgotten) != 1 || host.forgotten[0] != 1 {
		t.Fatalf("expected host to forget toplevel 1, got %v", host.forgotten)
	}

	m.onUpdate = func(*Toplevel, wm.UpdateFlags) error {
		_, err := owned.AppID()
		return err
	}
	if err := b.UpdateToplevel(1, wm.UpdateAppID); !errors.Is(err, wm.ErrUnknownHandle) {
		t.Fatalf("expected released handle to fail with ErrUnknownHandle, got %v", err)
	}
}

func TestConfigureBuilder(t *testing.T) {
	host := newFakeHost()
	host.toplevels[1] = ToplevelInfo{ID: 1}
	host.toplevels[2] = ToplevelInfo{ID: 2}
	m := newScripted("wm")
	var owned *Toplevel
	m.onNewToplevel = func(t *Toplevel) error {
		owned = t
		return nil
	}
	b := NewBoundary(host, quietLogger(), nil)
	_, _ = b.Activate(m)
	_ = b.NewToplevel(2)

	var serial uint32
	var parentErr, resubmitErr error
	m.onUpdate = func(t *Toplevel, _ wm.UpdateFlags) error {
		cfg, err := m.srv.NewConfigure(t)
		if err != nil {
			return err
		}
		parentErr = cfg.SetParent(owned)
		borrowed, err := owned.Borrow()
		if err != nil {
			return err
		}
		if err := cfg.SetParent(borrowed); err != nil {
			return err
		}
		_ = cfg.SetState(wm.StateActivated)
		serial, err = cfg.Submit()
		if err != nil {
			return err
		}
		_, resubmitErr = cfg.Submit()
		return nil
	}
	if err := b.UpdateToplevel(1, wm.UpdateParent); err != nil {
		t.Fatalf("update: %v", err)
	}
	if !errors.Is(parentErr, wm.ErrInvalidState) {
		t.Fatalf("expected owned parent to be rejected, got %v", parentErr)
	}
	if serial != 1 {
		t.Fatalf("expected serial 1, got %d", serial)
	}
	if !errors.Is(resubmitErr, wm.ErrInvalidState) {
		t.Fatalf("expected resubmit to fail with ErrInvalidState, got %v", resubmitErr)
	}
	req := host.submitted[0]
	if p, ok := req.Parent(); !ok || p != 2 {
		t.Fatalf("expected parent 2, got %v (set=%v)", p, ok)
	}
}

func TestReentrantDeliveryRejected(t *testing.T) {
	host := newFakeHost()
	host.toplevels[1] = ToplevelInfo{ID: 1}
	m := newScripted("wm")
	b := NewBoundary(host, quietLogger(), nil)
	_, _ = b.Activate(m)

	var nested error
	m.onNewToplevel = func(*Toplevel) error {
		nested = b.UpdateToplevel(1, wm.UpdateTitle)
		return nil
	}
	if err := b.NewToplevel(1); err != nil {
		t.Fatalf("new toplevel: %v", err)
	}
	if !errors.Is(nested, wm.ErrInvalidState) {
		t.Fatalf("expected nested delivery to fail with ErrInvalidState, got %v", nested)
	}
}

func TestKeyPanicRecovered(t *testing.T) {
	m := newScripted("wm")
	m.panicIn = "key"
	b := NewBoundary(newFakeHost(), quietLogger(), nil)
	_, _ = b.Activate(m)

	verdict, err := b.Key(wm.KeyEvent{Keysym: 'a', Status: wm.KeyPressed})
	if err == nil {
		t.Fatalf("expected panic to surface as error")
	}
	if verdict != wm.KeyForward {
		t.Fatalf("expected forward after failure, got %v", verdict)
	}
	st, _ := b.Status()
	if st.Failures != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", st.Failures)
	}

	m.panicIn = ""
	m.onKey = func(wm.KeyEvent) (wm.KeyFilter, error) { return wm.KeyDrop, nil }
	if verdict, err := b.Key(wm.KeyEvent{}); err != nil || verdict != wm.KeyDrop {
		t.Fatalf("expected boundary usable after panic, got %v %v", verdict, err)
	}
}

type testBacking struct{ releases int }

func (b *testBacking) Size() wm.Size  { return wm.Size{Width: 10, Height: 10} }
func (b *testBacking) Scale() float32 { return 1 }
func (b *testBacking) Release()       { b.releases++ }

func TestSwapRetiresOldInstance(t *testing.T) {
	host := newFakeHost()
	host.toplevels[1] = ToplevelInfo{ID: 1}
	reg := registry.New()
	id, _ := reg.AllocToplevel()
	backing := &testBacking{}
	snap, err := reg.NewSnapshot(id, backing)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}

	old := newScripted("old")
	b := NewBoundary(host, quietLogger(), nil)
	_, _ = b.Activate(old)
	if err := b.CommittedToplevel(1, snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
	oldSrv := old.srv

	if _, err := b.Activate(newScripted("new")); err != nil {
		t.Fatalf("activate new: %v", err)
	}
	if !old.closed {
		t.Fatalf("expected old instance to be closed")
	}
	if backing.releases != 1 {
		t.Fatalf("expected leaked snapshot to be reclaimed, got %d releases", backing.releases)
	}
	if err := oldSrv.active(); !errors.Is(err, wm.ErrInvalidState) {
		t.Fatalf("expected retired server to reject calls, got %v", err)
	}
	if b.Generation() != 2 {
		t.Fatalf("expected generation 2, got %d", b.Generation())
	}
}

func TestCommittedWithoutModuleReleasesSnapshot(t *testing.T) {
	reg := registry.New()
	id, _ := reg.AllocToplevel()
	backing := &testBacking{}
	snap, _ := reg.NewSnapshot(id, backing)

	b := NewBoundary(newFakeHost(), quietLogger(), nil)
	if err := b.CommittedToplevel(id, snap); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if backing.releases != 1 {
		t.Fatalf("expected snapshot released, got %d", backing.releases)
	}
}
